package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Hours evaluates wall-clock windows in the business timezone. Night spans
// NightStart through NightEnd across midnight; deliveries held during the
// night resume at BusinessStart.
type Hours struct {
	location      *time.Location
	nightStart    time.Duration
	nightEnd      time.Duration
	businessStart time.Duration
}

// Options carry the clock-time strings ("15:04") and timezone name used to
// build an Hours evaluator.
type Options struct {
	Timezone      string
	NightStart    string
	NightEnd      string
	BusinessStart string
}

// NewHours parses the configured times and resolves the timezone.
func NewHours(opts Options) (*Hours, error) {
	if opts.Timezone == "" {
		return nil, errors.New("schedule: timezone is required")
	}
	location, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule: load timezone %q: %w", opts.Timezone, err)
	}

	nightStart, err := parseClock(opts.NightStart)
	if err != nil {
		return nil, fmt.Errorf("schedule: night start: %w", err)
	}
	nightEnd, err := parseClock(opts.NightEnd)
	if err != nil {
		return nil, fmt.Errorf("schedule: night end: %w", err)
	}
	businessStart, err := parseClock(opts.BusinessStart)
	if err != nil {
		return nil, fmt.Errorf("schedule: business start: %w", err)
	}

	return &Hours{
		location:      location,
		nightStart:    nightStart,
		nightEnd:      nightEnd,
		businessStart: businessStart,
	}, nil
}

// IsNight reports whether the instant falls inside the night window.
func (h *Hours) IsNight(at time.Time) bool {
	elapsed := h.sinceMidnight(at)
	if h.nightStart <= h.nightEnd {
		return elapsed >= h.nightStart && elapsed < h.nightEnd
	}
	// Window crosses midnight.
	return elapsed >= h.nightStart || elapsed < h.nightEnd
}

// NextBusinessTime returns the instant itself when it falls outside the
// night window, otherwise the next BusinessStart in the business timezone.
func (h *Hours) NextBusinessTime(at time.Time) time.Time {
	if !h.IsNight(at) {
		return at
	}

	local := at.In(h.location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, h.location)
	candidate := midnight.Add(h.businessStart)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// Location exposes the resolved business timezone.
func (h *Hours) Location() *time.Location {
	return h.location
}

func (h *Hours) sinceMidnight(at time.Time) time.Duration {
	local := at.In(h.location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, h.location)
	return local.Sub(midnight)
}

func parseClock(value string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", value)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}
