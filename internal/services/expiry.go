package services

import "time"

// Expiry thresholds relative to how far ahead the session is booked.
const (
	expiryShortNotice  = 24 * time.Hour
	expiryMediumNotice = 72 * time.Hour
	expiryLongNotice   = 90 * time.Hour

	expiryShortWindow  = 90 * time.Minute
	expiryMediumWindow = 16 * time.Hour
	expiryLongLead     = 48 * time.Hour
)

// ExpiryPolicy computes when an unaccepted booking leaves the matching pool.
type ExpiryPolicy interface {
	WillExpireAt(due, createdAt time.Time) time.Time
}

// DefaultExpiryPolicy grants short-notice bookings a brief acceptance window
// and far-future bookings a window that closes two days ahead of the session.
type DefaultExpiryPolicy struct{}

func (DefaultExpiryPolicy) WillExpireAt(due, createdAt time.Time) time.Time {
	notice := due.Sub(createdAt)
	switch {
	case notice <= expiryShortNotice:
		return createdAt.Add(expiryShortWindow)
	case notice <= expiryMediumNotice:
		return createdAt.Add(expiryMediumWindow)
	case notice <= expiryLongNotice:
		return due
	default:
		return due.Add(-expiryLongLead)
	}
}
