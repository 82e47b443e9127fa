package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/klauspost/compress/zstd"

	"godown/internal/core/id"
	appctx "godown/internal/core/context"
	"godown/internal/domain/sales"
)

const saleHistoryTable = "doc_sale_history"

// CompressionAlgo specifies the compression algorithm used for a stored value.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// Compile-time check that SaleHistoryStore implements sales.HistoryStore.
var _ sales.HistoryStore = (*SaleHistoryStore)(nil)

// SaleHistoryStore persists the append-only edit history of sales.
// Large old/new values (free-text fields, serialized line snapshots) are
// zstd-compressed above a size threshold.
type SaleHistoryStore struct {
	txManager         *TxManager
	builder           squirrel.StatementBuilderType
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewSaleHistoryStore creates a new edit history store.
func NewSaleHistoryStore(txManager *TxManager) (*SaleHistoryStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &SaleHistoryStore{
		txManager:         txManager,
		builder:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 1024, // 1KB
	}, nil
}

// AppendEntries adds audit records. Existing entries are never touched.
func (s *SaleHistoryStore) AppendEntries(ctx context.Context, entries []sales.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	q := s.builder.
		Insert(saleHistoryTable).
		Columns("id", "sale_id", "field",
			"old_value", "old_compressed", "new_value", "new_compressed",
			"compression_algo", "edited_at", "edited_by")

	for _, e := range entries {
		if id.IsNil(e.ID) {
			e.ID = id.New()
		}
		if e.EditedAt.IsZero() {
			e.EditedAt = time.Now().UTC()
		}
		if e.EditedBy == "" {
			e.EditedBy = appctx.GetUserID(ctx)
		}

		oldVal, oldCompressed := e.OldValue, []byte(nil)
		newVal, newCompressed := e.NewValue, []byte(nil)
		algo := CompressionNone
		if len(e.OldValue) > s.compressThreshold || len(e.NewValue) > s.compressThreshold {
			algo = CompressionZstd
			oldCompressed = s.encoder.EncodeAll([]byte(e.OldValue), nil)
			newCompressed = s.encoder.EncodeAll([]byte(e.NewValue), nil)
			oldVal, newVal = "", ""
		}

		q = q.Values(e.ID, e.SaleID, e.Field,
			oldVal, oldCompressed, newVal, newCompressed,
			algo, e.EditedAt, e.EditedBy)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert history: %w", err)
	}

	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListEntries returns a sale's audit trail, oldest first.
func (s *SaleHistoryStore) ListEntries(ctx context.Context, saleID id.ID) ([]sales.HistoryEntry, error) {
	q := s.builder.
		Select("id", "sale_id", "field",
			"old_value", "old_compressed", "new_value", "new_compressed",
			"compression_algo", "edited_at", "edited_by").
		From(saleHistoryTable).
		Where(squirrel.Eq{"sale_id": saleID}).
		OrderBy("edited_at ASC", "id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []sales.HistoryEntry
	for rows.Next() {
		var (
			e                            sales.HistoryEntry
			oldCompressed, newCompressed []byte
			algo                         CompressionAlgo
		)
		if err := rows.Scan(&e.ID, &e.SaleID, &e.Field,
			&e.OldValue, &oldCompressed, &e.NewValue, &newCompressed,
			&algo, &e.EditedAt, &e.EditedBy); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}

		if algo == CompressionZstd {
			oldVal, err := s.decoder.DecodeAll(oldCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress old value: %w", err)
			}
			newVal, err := s.decoder.DecodeAll(newCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress new value: %w", err)
			}
			e.OldValue, e.NewValue = string(oldVal), string(newVal)
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
