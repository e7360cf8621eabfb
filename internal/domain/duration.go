package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatSessionDuration renders an elapsed session as H:MM:SS, the form stored
// on the job once a session ends.
func FormatSessionDuration(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = -elapsed
	}
	total := int(elapsed.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
}

// ParseSessionDuration reads an H:MM:SS string back into a duration. It
// accepts the output of FormatSessionDuration only.
func ParseSessionDuration(value string) (time.Duration, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("session duration %q: want H:MM:SS", value)
	}
	var fields [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("session duration %q: want H:MM:SS", value)
		}
		fields[i] = n
	}
	return time.Duration(fields[0])*time.Hour +
		time.Duration(fields[1])*time.Minute +
		time.Duration(fields[2])*time.Second, nil
}

// SessionTimeText renders an H:MM:SS session duration as the human form used
// in session-ended mails, e.g. "1 tim 30 min".
func SessionTimeText(sessionDuration string) string {
	elapsed, err := ParseSessionDuration(sessionDuration)
	if err != nil {
		return sessionDuration
	}
	hours := int(elapsed.Hours())
	minutes := int(elapsed.Minutes()) % 60
	return fmt.Sprintf("%d tim %d min", hours, minutes)
}

// MinutesText renders a planned duration in minutes for message bodies:
// plain minutes under an hour, "1h" exactly, otherwise hours and minutes.
func MinutesText(minutes int) string {
	switch {
	case minutes < 60:
		return fmt.Sprintf("%dmin", minutes)
	case minutes == 60:
		return "1h"
	default:
		return fmt.Sprintf("%02dh %02dmin", minutes/60, minutes%60)
	}
}
