package services

import (
	"testing"
	"time"
)

func TestDefaultExpiryPolicy(t *testing.T) {
	createdAt := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	policy := DefaultExpiryPolicy{}

	cases := []struct {
		name string
		due  time.Time
		want time.Time
	}{
		{
			"short notice gets 90 minutes",
			createdAt.Add(6 * time.Hour),
			createdAt.Add(90 * time.Minute),
		},
		{
			"exactly 24h ahead still short notice",
			createdAt.Add(24 * time.Hour),
			createdAt.Add(90 * time.Minute),
		},
		{
			"two days ahead gets 16 hours",
			createdAt.Add(48 * time.Hour),
			createdAt.Add(16 * time.Hour),
		},
		{
			"under 90h expires at due",
			createdAt.Add(80 * time.Hour),
			createdAt.Add(80 * time.Hour),
		},
		{
			"far future expires 48h before due",
			createdAt.Add(200 * time.Hour),
			createdAt.Add(152 * time.Hour),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.WillExpireAt(tc.due, createdAt); !got.Equal(tc.want) {
				t.Fatalf("WillExpireAt = %v, want %v", got, tc.want)
			}
		})
	}
}
