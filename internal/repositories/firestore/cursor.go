package firestore

import (
	"time"

	"github.com/tolkfield/api/internal/platform/pagination"
)

// Cursor helpers shared by the list queries in this package. Cursors anchor
// on (createdAt, document id) so the ordering stays stable across pages.
// Timestamps travel through the token as RFC3339 strings and are restored to
// time.Time before they reach StartAfter, which compares typed values.

func decodeCursor(token string) (pagination.Cursor, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return pagination.Cursor{}, err
	}
	for i, value := range cursor.StartAfter {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			cursor.StartAfter[i] = ts
		}
	}
	return cursor, nil
}

func encodeCursor(createdAt time.Time, docID string) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID},
	})
}
