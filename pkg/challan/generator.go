// Package challan provides human-readable challan label generation.
//
// Labels follow the retailer's established scheme: the business date, the
// last four digits of the customer's phone number, and a short random
// suffix, e.g. "20260831-4417_208". The label is a display identity only;
// records are keyed by surrogate UUIDs. Uniqueness is probabilistic and
// must be enforced by a unique constraint at insert time, with the caller
// regenerating on collision (bounded attempts).
package challan

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// MaxAttempts bounds collision-driven regeneration before the caller
// escalates the failure as a configuration-class error.
const MaxAttempts = 5

// suffixRange is the exclusive upper bound of the random suffix (000-999).
const suffixRange = 1000

// Generator produces challan labels. Safe for concurrent use.
type Generator struct {
	mu   sync.Mutex
	rand *rand.Rand
	now  func() time.Time
}

// New creates a Generator seeded from the current time.
func New() *Generator {
	return &Generator{
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
		now:  time.Now,
	}
}

// NewWithSource creates a Generator with injected randomness and clock.
// Use for deterministic tests.
func NewWithSource(src rand.Source, now func() time.Time) *Generator {
	return &Generator{
		rand: rand.New(src),
		now:  now,
	}
}

// Next returns a label for the given phone number using the generator's
// clock: "YYYYMMDD-<last4>_<NNN>".
func (g *Generator) Next(phone string) string {
	return g.For(g.nowUTC(), phone)
}

// For returns a label for an explicit business date.
func (g *Generator) For(date time.Time, phone string) string {
	g.mu.Lock()
	suffix := g.rand.Intn(suffixRange)
	g.mu.Unlock()

	return fmt.Sprintf("%s-%s_%03d", date.Format("20060102"), LastDigits(phone, 4), suffix)
}

func (g *Generator) nowUTC() time.Time {
	if g.now != nil {
		return g.now().UTC()
	}
	return time.Now().UTC()
}

// LastDigits extracts the trailing n digits of a phone number, ignoring
// formatting characters. Shorter numbers are left-padded with zeros so the
// label shape stays fixed.
func LastDigits(phone string, n int) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	for len(digits) < n {
		digits = "0" + digits
	}
	return digits
}
