package challan

import (
	"math/rand"
	"regexp"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)
}

func TestNext_Format(t *testing.T) {
	g := NewWithSource(rand.NewSource(1), fixedNow)

	label := g.Next("+880 1712-344417")

	pattern := regexp.MustCompile(`^20260831-4417_\d{3}$`)
	if !pattern.MatchString(label) {
		t.Errorf("label %q does not match expected shape", label)
	}
}

func TestFor_UsesBusinessDate(t *testing.T) {
	g := NewWithSource(rand.NewSource(7), fixedNow)

	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	label := g.For(date, "01812559000")

	if got := label[:13]; got != "20250102-9000" {
		t.Errorf("expected date+phone prefix 20250102-9000, got %s", got)
	}
}

func TestLastDigits(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"plain", "01712344417", "4417"},
		{"formatted", "+880 (171) 234-4417", "4417"},
		{"short", "42", "0042"},
		{"empty", "", "0000"},
		{"no digits", "n/a", "0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastDigits(tt.phone, 4); got != tt.want {
				t.Errorf("LastDigits(%q) = %q, want %q", tt.phone, got, tt.want)
			}
		})
	}
}

func TestNext_SuffixVaries(t *testing.T) {
	g := NewWithSource(rand.NewSource(99), fixedNow)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[g.Next("01712344417")] = true
	}

	// 50 draws from 1000 suffixes should not all collide.
	if len(seen) < 2 {
		t.Errorf("expected varying suffixes, got %d distinct labels", len(seen))
	}
}
