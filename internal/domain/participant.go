package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ParticipantKind string

const (
	KindProvider ParticipantKind = "provider"
	KindConsumer ParticipantKind = "consumer"
)

// Participant is either a Provider or a Consumer. The unexported method keeps the set
// closed so a type switch over the two variants is exhaustive.
type Participant interface {
	ParticipantID() string
	Kind() ParticipantKind
	isParticipant()
}

type Provider struct {
	ID           string
	DisplayName  string
	Location     *time.Location
	Availability WeeklyAvailability
	// RateMinor is the current session price in minor currency units.
	RateMinor int64
}

func (p Provider) ParticipantID() string { return p.ID }
func (Provider) Kind() ParticipantKind   { return KindProvider }
func (Provider) isParticipant()          {}

type Consumer struct {
	ID          string
	DisplayName string
	Location    *time.Location
}

func (c Consumer) ParticipantID() string { return c.ID }
func (Consumer) Kind() ParticipantKind   { return KindConsumer }
func (Consumer) isParticipant()          {}

// FixedOffset returns a zone for a UTC offset given in minutes.
func FixedOffset(minutes int) *time.Location {
	sign := "+"
	abs := minutes
	if minutes < 0 {
		sign = "-"
		abs = -minutes
	}
	return time.FixedZone(fmt.Sprintf("UTC%s%02d:%02d", sign, abs/60, abs%60), minutes*60)
}

// ParseUTCOffset accepts "+05:00", "-03:30", "+5" or "Z".
func ParseUTCOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "Z" || strings.EqualFold(s, "utc") {
		return time.UTC, nil
	}
	sign := 1
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	default:
		return nil, fmt.Errorf("invalid utc offset %q", s)
	}
	hh, mm, _ := strings.Cut(s, ":")
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 14 {
		return nil, fmt.Errorf("invalid utc offset %q", s)
	}
	m := 0
	if mm != "" {
		m, err = strconv.Atoi(mm)
		if err != nil || m < 0 || m > 59 {
			return nil, fmt.Errorf("invalid utc offset %q", s)
		}
	}
	return FixedOffset(sign * (h*60 + m)), nil
}
