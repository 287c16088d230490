package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursor_Precedes(t *testing.T) {
	at := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	c := Cursor{At: at, ID: low}

	tests := []struct {
		name string
		at   time.Time
		id   uuid.UUID
		want bool
	}{
		{"later key", at.Add(time.Second), low, true},
		{"earlier key", at.Add(-time.Second), high, false},
		{"same key higher id", at, high, true},
		{"same row", at, low, false},
	}
	for _, tt := range tests {
		if got := c.Precedes(tt.at, tt.id); got != tt.want {
			t.Fatalf("%s: Precedes = %v, want %v", tt.name, got, tt.want)
		}
	}
	if !(Cursor{}).Precedes(at, low) {
		t.Fatalf("zero cursor must admit every row")
	}
}
