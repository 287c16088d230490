package domain

import (
	"encoding/json"
	"testing"
	"time"
)

var tashkent = FixedOffset(5 * 60)

func mondayMorning() WeeklyAvailability {
	return WeeklyAvailability{
		Monday: {
			IsAvailable: true,
			Windows:     []TimeWindow{{Start: MustClockTime("09:00"), End: MustClockTime("12:00")}},
		},
	}
}

func TestResolveDay_MondayMorning(t *testing.T) {
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, tashkent) // Monday
	now := date.Add(-24 * time.Hour)

	slots, err := ResolveDay(mondayMorning(), date, now, nil, DefaultSlotStep)
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	want := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(slots))
	}
	for i, s := range slots {
		if got := s.Start.In(tashkent).Format("15:04"); got != want[i] {
			t.Fatalf("slot %d starts %s, want %s", i, got, want[i])
		}
		if !s.End.Equal(s.Start.Add(30 * time.Minute)) {
			t.Fatalf("slot %d ends %s, want start+30m", i, s.End)
		}
	}
}

func TestResolveDay_Filters(t *testing.T) {
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, tashkent)
	now := time.Date(2026, 1, 5, 9, 30, 0, 0, tashkent)
	busy := []Interval{
		NewInterval(time.Date(2026, 1, 5, 10, 15, 0, 0, tashkent), 30*time.Minute),
	}

	slots, err := ResolveDay(mondayMorning(), date, now, busy, DefaultSlotStep)
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	// 09:00 and 09:30 are not strictly after now; 10:00 and 10:30 overlap the booking.
	want := []string{"11:00", "11:30"}
	if len(slots) != len(want) {
		t.Fatalf("expected %v, got %d slots", want, len(slots))
	}
	for i, s := range slots {
		if got := s.Start.In(tashkent).Format("15:04"); got != want[i] {
			t.Fatalf("slot %d starts %s, want %s", i, got, want[i])
		}
	}
}

func TestResolveDay_ClosedDay(t *testing.T) {
	tuesday := time.Date(2026, 1, 6, 0, 0, 0, 0, tashkent)
	slots, err := ResolveDay(mondayMorning(), tuesday, tuesday.Add(-time.Hour), nil, DefaultSlotStep)
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", slots)
	}

	unavailable := WeeklyAvailability{Tuesday: {IsAvailable: false, Windows: []TimeWindow{{Start: 540, End: 600}}}}
	slots, err = ResolveDay(unavailable, tuesday, tuesday.Add(-time.Hour), nil, DefaultSlotStep)
	if err != nil || len(slots) != 0 {
		t.Fatalf("expected no slots for unavailable day, got %v, %v", slots, err)
	}
}

func TestResolveDay_LegacyWindowAndOrdering(t *testing.T) {
	start, end := MustClockTime("14:00"), MustClockTime("15:00")
	w := WeeklyAvailability{
		Monday: {IsAvailable: true, StartTime: &start, EndTime: &end},
		Wednesday: {IsAvailable: true, Windows: []TimeWindow{
			{Start: MustClockTime("16:00"), End: MustClockTime("17:00")},
			{Start: MustClockTime("08:00"), End: MustClockTime("09:00")},
		}},
	}

	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, tashkent)
	slots, err := ResolveDay(w, monday, monday.Add(-time.Hour), nil, DefaultSlotStep)
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	if len(slots) != 2 || slots[0].Start.In(tashkent).Hour() != 14 {
		t.Fatalf("expected legacy window slots at 14:00, got %v", slots)
	}

	wednesday := time.Date(2026, 1, 7, 0, 0, 0, 0, tashkent)
	slots, err = ResolveDay(w, wednesday, wednesday.Add(-time.Hour), nil, DefaultSlotStep)
	if err != nil {
		t.Fatalf("ResolveDay: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i-1].Start.Before(slots[i].Start) {
			t.Fatalf("slots not ordered: %v", slots)
		}
	}
}

func TestWeekdayOf_ISO(t *testing.T) {
	sunday := time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC)
	if got := WeekdayOf(sunday); got != Sunday {
		t.Fatalf("WeekdayOf(sunday) = %d, want %d", got, Sunday)
	}
	monday := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	if got := WeekdayOf(monday); got != Monday {
		t.Fatalf("WeekdayOf(monday) = %d, want %d", got, Monday)
	}

	// 22:00 UTC Sunday is already Monday at +05:00.
	late := time.Date(2026, 1, 4, 22, 0, 0, 0, time.UTC)
	if got := WeekdayOf(late.In(tashkent)); got != Monday {
		t.Fatalf("expected Monday in provider location, got %d", got)
	}
}

func TestFitsAvailability(t *testing.T) {
	w := mondayMorning()
	at := func(h, m, minutes int) Interval {
		return NewInterval(time.Date(2026, 1, 5, h, m, 0, 0, tashkent), time.Duration(minutes)*time.Minute)
	}

	tests := []struct {
		name string
		in   Interval
		want bool
	}{
		{name: "first slot", in: at(9, 0, 30), want: true},
		{name: "long session inside window", in: at(10, 0, 120), want: true},
		{name: "runs past window", in: at(11, 30, 60), want: false},
		{name: "off boundary", in: at(9, 10, 30), want: false},
		{name: "before window", in: at(8, 30, 30), want: false},
		{name: "other day", in: NewInterval(time.Date(2026, 1, 6, 9, 0, 0, 0, tashkent), 30*time.Minute), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FitsAvailability(w, tt.in, DefaultSlotStep); got != tt.want {
				t.Fatalf("FitsAvailability = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeeklyAvailability_JSON(t *testing.T) {
	raw := `{"1":{"isAvailable":true,"timeSlots":[{"startTime":"09:00","endTime":"12:00"}]},"3":{"isAvailable":true,"startTime":"14:00","endTime":"18:00"}}`

	var w WeeklyAvailability
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := w[Monday].EffectiveWindows(); len(got) != 1 || got[0].Start != MustClockTime("09:00") {
		t.Fatalf("unexpected monday windows: %v", got)
	}
	if got := w[Wednesday].EffectiveWindows(); len(got) != 1 || got[0].End != MustClockTime("18:00") {
		t.Fatalf("unexpected wednesday windows: %v", got)
	}
}
