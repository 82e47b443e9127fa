package stockledger

import (
	"context"
	"time"

	"godown/internal/core/id"
)

// Repository defines persistence for the stock register.
type Repository interface {
	// Unit counters

	// GetUnit returns the counters for a unit. A unit with no recorded
	// events yet is returned with zero counters and Version 0.
	GetUnit(ctx context.Context, unitID id.ID) (StockUnit, error)

	// GetUnits returns counters for multiple units in one round trip.
	// Units with no events are present with zero counters.
	GetUnits(ctx context.Context, unitIDs []id.ID) (map[id.ID]StockUnit, error)

	// UpdateUnit writes the counters conditionally on expectedVersion.
	// expectedVersion 0 inserts a fresh row. A version mismatch fails with
	// CONCURRENT_MODIFICATION and leaves the row untouched.
	UpdateUnit(ctx context.Context, unit StockUnit, expectedVersion int) error

	// Events

	// AppendEvent inserts one ledger entry. Events are immutable.
	AppendEvent(ctx context.Context, event StockEvent) error

	// GetEventsByUnit returns the event history for a unit, oldest first.
	GetEventsByUnit(ctx context.Context, unitID id.ID, filter EventFilter) ([]StockEvent, error)

	// GetEventsByRecorder returns all events produced by one document.
	GetEventsByRecorder(ctx context.Context, recorderID id.ID) ([]StockEvent, error)
}

// EventFilter narrows event history queries.
type EventFilter struct {
	Types    []EventType
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}
