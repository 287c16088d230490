package domain

import (
	"fmt"
	"sort"
	"time"
)

// ISOWeekday numbers days Monday=1 through Sunday=7.
type ISOWeekday int

const (
	Monday ISOWeekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

func WeekdayOf(t time.Time) ISOWeekday {
	wd := t.Weekday()
	if wd == time.Sunday {
		return Sunday
	}
	return ISOWeekday(wd)
}

func (d ISOWeekday) Valid() bool {
	return d >= Monday && d <= Sunday
}

type TimeWindow struct {
	Start ClockTime `json:"startTime"`
	End   ClockTime `json:"endTime"`
}

// DayAvailability is one day of a provider's recurring week. Windows holds the
// structured entries; StartTime/EndTime is the older single-window form and is only
// consulted when Windows is empty.
type DayAvailability struct {
	IsAvailable bool         `json:"isAvailable"`
	Windows     []TimeWindow `json:"timeSlots,omitempty"`
	StartTime   *ClockTime   `json:"startTime,omitempty"`
	EndTime     *ClockTime   `json:"endTime,omitempty"`
}

func (d DayAvailability) EffectiveWindows() []TimeWindow {
	if len(d.Windows) > 0 {
		out := make([]TimeWindow, len(d.Windows))
		copy(out, d.Windows)
		sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
		return out
	}
	if d.StartTime != nil && d.EndTime != nil {
		return []TimeWindow{{Start: *d.StartTime, End: *d.EndTime}}
	}
	return nil
}

type WeeklyAvailability map[ISOWeekday]DayAvailability

// Day returns the configuration for date's weekday, evaluated in date's location.
func (w WeeklyAvailability) Day(date time.Time) (DayAvailability, bool) {
	if w == nil {
		return DayAvailability{}, false
	}
	d, ok := w[WeekdayOf(date)]
	if !ok || !d.IsAvailable {
		return DayAvailability{}, false
	}
	return d, true
}

// WorkdayStart is the earliest configured window start on date's weekday.
func (w WeeklyAvailability) WorkdayStart(date time.Time) (time.Time, bool) {
	d, ok := w.Day(date)
	if !ok {
		return time.Time{}, false
	}
	windows := d.EffectiveWindows()
	if len(windows) == 0 {
		return time.Time{}, false
	}
	return windows[0].Start.On(date), true
}

// ResolveDay returns the bookable slots for date: every configured window is tiled with
// step-long slots, then slots that do not start strictly after now, or that overlap a busy
// interval, are removed. date must already be expressed in the provider's location.
// An empty result is a fully booked (or closed) day, not an error.
func ResolveDay(w WeeklyAvailability, date, now time.Time, busy []Interval, step time.Duration) ([]Interval, error) {
	d, ok := w.Day(date)
	if !ok {
		return []Interval{}, nil
	}

	seen := make(map[int64]struct{})
	out := make([]Interval, 0, 16)
	for _, win := range d.EffectiveWindows() {
		slots, err := GenerateSlots(date, win.Start, win.End, step)
		if err != nil {
			return nil, fmt.Errorf("window %s-%s: %w", win.Start, win.End, err)
		}
		for _, s := range slots {
			if !s.Start.After(now) {
				continue
			}
			if OverlapsAny(s, busy) {
				continue
			}
			key := s.Start.UnixNano()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// FitsAvailability reports whether candidate starts on a slot boundary of one of the
// configured windows for its day and ends inside that same window. candidate must be
// expressed in the provider's location.
func FitsAvailability(w WeeklyAvailability, candidate Interval, step time.Duration) bool {
	d, ok := w.Day(candidate.Start)
	if !ok {
		return false
	}
	for _, win := range d.EffectiveWindows() {
		slots, err := GenerateSlots(candidate.Start, win.Start, win.End, step)
		if err != nil {
			continue
		}
		windowEnd := win.End.On(candidate.Start)
		if candidate.End.After(windowEnd) {
			continue
		}
		for _, s := range slots {
			if s.Start.Equal(candidate.Start) {
				return true
			}
		}
	}
	return false
}
