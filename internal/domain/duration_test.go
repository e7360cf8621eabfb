package domain

import (
	"testing"
	"time"
)

func TestFormatSessionDuration(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{0, "0:00:00"},
		{45 * time.Second, "0:00:45"},
		{90 * time.Minute, "1:30:00"},
		{time.Hour + 5*time.Minute + 9*time.Second, "1:05:09"},
		{26*time.Hour + 59*time.Second, "26:00:59"},
	}
	for _, tc := range cases {
		if got := FormatSessionDuration(tc.elapsed); got != tc.want {
			t.Fatalf("FormatSessionDuration(%v) = %q, want %q", tc.elapsed, got, tc.want)
		}
	}
}

func TestParseSessionDurationRoundTrip(t *testing.T) {
	for _, elapsed := range []time.Duration{0, time.Minute, 90 * time.Minute, 7*time.Hour + 3*time.Second} {
		formatted := FormatSessionDuration(elapsed)
		parsed, err := ParseSessionDuration(formatted)
		if err != nil {
			t.Fatalf("ParseSessionDuration(%q): %v", formatted, err)
		}
		if parsed != elapsed {
			t.Fatalf("round trip of %v through %q gave %v", elapsed, formatted, parsed)
		}
	}
}

func TestParseSessionDurationRejectsMalformed(t *testing.T) {
	for _, value := range []string{"", "90", "1:2", "1:aa:00", "-1:00:00"} {
		if _, err := ParseSessionDuration(value); err == nil {
			t.Fatalf("ParseSessionDuration(%q) accepted malformed input", value)
		}
	}
}

func TestSessionTimeText(t *testing.T) {
	if got := SessionTimeText("1:30:00"); got != "1 tim 30 min" {
		t.Fatalf("SessionTimeText = %q", got)
	}
	if got := SessionTimeText("0:05:10"); got != "0 tim 5 min" {
		t.Fatalf("SessionTimeText = %q", got)
	}
}

func TestMinutesText(t *testing.T) {
	cases := map[int]string{
		10:  "10min",
		59:  "59min",
		60:  "1h",
		90:  "01h 30min",
		150: "02h 30min",
	}
	for minutes, want := range cases {
		if got := MinutesText(minutes); got != want {
			t.Fatalf("MinutesText(%d) = %q, want %q", minutes, got, want)
		}
	}
}
