package domain

import (
	"errors"
	"testing"
	"time"
)

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	at := func(startMin, endMin int) Interval {
		return Interval{
			Start: base.Add(time.Duration(startMin) * time.Minute),
			End:   base.Add(time.Duration(endMin) * time.Minute),
		}
	}

	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{name: "identical", a: at(0, 30), b: at(0, 30), want: true},
		{name: "a starts inside b", a: at(15, 45), b: at(0, 30), want: true},
		{name: "a ends inside b", a: at(-15, 15), b: at(0, 30), want: true},
		{name: "a covers b", a: at(-30, 60), b: at(0, 30), want: true},
		{name: "b covers a", a: at(5, 10), b: at(0, 30), want: true},
		{name: "touching end to start", a: at(30, 60), b: at(0, 30), want: false},
		{name: "touching start to end", a: at(-30, 0), b: at(0, 30), want: false},
		{name: "disjoint", a: at(120, 150), b: at(0, 30), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Fatalf("Overlaps(a, b) = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.b, tt.a); got != tt.want {
				t.Fatalf("Overlaps(b, a) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateSlots(t *testing.T) {
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, FixedOffset(300))

	slots, err := GenerateSlots(day, MustClockTime("09:00"), MustClockTime("10:45"), 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots (trailing partial dropped), got %d", len(slots))
	}
	want := []string{"09:00", "09:30", "10:00"}
	for i, s := range slots {
		if got := s.Start.Format("15:04"); got != want[i] {
			t.Fatalf("slot %d starts %s, want %s", i, got, want[i])
		}
		if s.Duration() != 30*time.Minute {
			t.Fatalf("slot %d duration = %s", i, s.Duration())
		}
		if s.Start.Location() != day.Location() {
			t.Fatalf("slot %d not in the day's location", i)
		}
	}
}

func TestGenerateSlots_DefaultStep(t *testing.T) {
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	slots, err := GenerateSlots(day, MustClockTime("09:00"), MustClockTime("10:00"), 0)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots with the default step, got %d", len(slots))
	}
}

func TestGenerateSlots_InvalidWindow(t *testing.T) {
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		start, end ClockTime
	}{
		{name: "end equals start", start: MustClockTime("09:00"), end: MustClockTime("09:00")},
		{name: "end before start", start: MustClockTime("12:00"), end: MustClockTime("09:00")},
		{name: "past midnight", start: MustClockTime("23:00"), end: ClockTime(25 * 60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateSlots(day, tt.start, tt.end, 30*time.Minute)
			if !errors.Is(err, ErrInvalidWindow) {
				t.Fatalf("expected ErrInvalidWindow, got %v", err)
			}
		})
	}
}

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{in: "09:00", want: 540},
		{in: "9:30", want: 570},
		{in: "24:00", want: 1440},
		{in: "24:01", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClockTime(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClockTime(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseClockTime(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
