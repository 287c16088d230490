package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DefaultSlotStep = 30 * time.Minute

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewInterval(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Overlaps reports whether a and b intersect on a non-zero span: a starts inside b,
// a ends inside b, or a covers b. For half-open ranges that collapses to a single test.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func OverlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(candidate, b) {
			return true
		}
	}
	return false
}

// ClockTime is a wall-clock time of day expressed in minutes after midnight.
type ClockTime int

const endOfDay ClockTime = 24 * 60

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

func ParseClockTime(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return NewClockTime(h, m), nil
}

func MustClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	v, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// On places the clock time on the calendar day of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location()).Add(time.Duration(c) * time.Minute)
}

// GenerateSlots tiles [start, end) on day with step-long intervals. A trailing slot that
// would run past end is dropped.
func GenerateSlots(day time.Time, start, end ClockTime, step time.Duration) ([]Interval, error) {
	if end <= start || end > endOfDay || start < 0 {
		return nil, ErrInvalidWindow
	}
	if step <= 0 {
		step = DefaultSlotStep
	}

	windowStart := start.On(day)
	windowEnd := end.On(day)

	out := make([]Interval, 0, int(windowEnd.Sub(windowStart)/step))
	for t := windowStart; !t.Add(step).After(windowEnd); t = t.Add(step) {
		out = append(out, Interval{Start: t, End: t.Add(step)})
	}
	return out, nil
}
