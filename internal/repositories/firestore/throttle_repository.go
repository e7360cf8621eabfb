package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/tolkfield/api/internal/domain"
	pfirestore "github.com/tolkfield/api/internal/platform/firestore"
	"github.com/tolkfield/api/internal/repositories"
)

const throttleCollection = "login_throttles"

// ThrottleRepository stores login-throttle records in Firestore.
type ThrottleRepository struct {
	base *pfirestore.BaseRepository[throttleDocument]
}

// NewThrottleRepository constructs a Firestore-backed throttle repository.
func NewThrottleRepository(provider *pfirestore.Provider) (*ThrottleRepository, error) {
	if provider == nil {
		return nil, errors.New("throttle repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[throttleDocument](provider, throttleCollection, nil, nil)
	return &ThrottleRepository{base: base}, nil
}

// FindByID loads the throttle record by identifier.
func (r *ThrottleRepository) FindByID(ctx context.Context, throttleID string) (domain.LoginThrottle, error) {
	if strings.TrimSpace(throttleID) == "" {
		return domain.LoginThrottle{}, errors.New("throttle id is required")
	}

	doc, err := r.base.Get(ctx, throttleID)
	if err != nil {
		return domain.LoginThrottle{}, err
	}
	return toDomainThrottle(doc.ID, doc.Data), nil
}

// SetIgnored flags the record so it no longer appears in back-office alerts.
func (r *ThrottleRepository) SetIgnored(ctx context.Context, throttleID string, at time.Time) error {
	if strings.TrimSpace(throttleID) == "" {
		return errors.New("throttle id is required")
	}

	_, err := r.base.Update(ctx, throttleID, []firestore.Update{
		{Path: "ignored", Value: true},
		{Path: "updatedAt", Value: at.UTC()},
	})
	return err
}

// List pages through throttle records, newest first.
func (r *ThrottleRepository) List(ctx context.Context, filter repositories.ThrottleListFilter) (domain.CursorPage[domain.LoginThrottle], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	cursor, err := decodeCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.LoginThrottle]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if !filter.IncludeIgnored {
			query = query.Where("ignored", "==", false)
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.LoginThrottle]{}, err
	}

	page := domain.CursorPage[domain.LoginThrottle]{}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, toDomainThrottle(doc.ID, doc.Data))
	}
	if len(docs) > pageSize {
		last := docs[pageSize-1]
		token, err := encodeCursor(last.Data.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.LoginThrottle]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

type throttleDocument struct {
	UserID    string    `firestore:"userId,omitempty"`
	IP        string    `firestore:"ip"`
	Attempts  int       `firestore:"attempts"`
	Ignored   bool      `firestore:"ignored"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func toDomainThrottle(id string, doc throttleDocument) domain.LoginThrottle {
	return domain.LoginThrottle{
		ID:        id,
		UserID:    doc.UserID,
		IP:        doc.IP,
		Attempts:  doc.Attempts,
		Ignored:   doc.Ignored,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
