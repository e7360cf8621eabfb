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

const auditLogCollection = "audit_logs"

// AuditLogRepository stores immutable audit trail entries in Firestore.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditLogDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogCollection, nil, nil)
	return &AuditLogRepository{base: base}, nil
}

// Append writes the entry. Entries are never updated afterwards.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("audit log entry id is required")
	}

	_, err := r.base.Set(ctx, entry.ID, auditLogDocument{
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Metadata:   entry.Metadata,
		IPHash:     entry.IPHash,
		RequestID:  entry.RequestID,
		CreatedAt:  entry.CreatedAt.UTC(),
	})
	return err
}

// List pages through entries matching the filter, newest first.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	cursor, err := decodeCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.TargetType != "" {
			query = query.Where("targetType", "==", filter.TargetType)
		}
		if filter.TargetID != "" {
			query = query.Where("targetId", "==", filter.TargetID)
		}
		if filter.ActorID != "" {
			query = query.Where("actorId", "==", filter.ActorID)
		}
		if filter.Action != "" {
			query = query.Where("action", "==", filter.Action)
		}
		if filter.DateRange.From != nil {
			query = query.Where("createdAt", ">=", *filter.DateRange.From)
		}
		if filter.DateRange.To != nil {
			query = query.Where("createdAt", "<=", *filter.DateRange.To)
		}

		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	page := domain.CursorPage[domain.AuditLogEntry]{}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, toDomainAuditLog(doc.ID, doc.Data))
	}
	if len(docs) > pageSize {
		last := docs[pageSize-1]
		token, err := encodeCursor(last.Data.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

type auditLogDocument struct {
	ActorID    string         `firestore:"actorId"`
	ActorRole  string         `firestore:"actorRole"`
	Action     string         `firestore:"action"`
	TargetType string         `firestore:"targetType"`
	TargetID   string         `firestore:"targetId"`
	Metadata   map[string]any `firestore:"metadata,omitempty"`
	IPHash     string         `firestore:"ipHash,omitempty"`
	RequestID  string         `firestore:"requestId,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt"`
}

func toDomainAuditLog(id string, doc auditLogDocument) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:         id,
		ActorID:    doc.ActorID,
		ActorRole:  doc.ActorRole,
		Action:     doc.Action,
		TargetType: doc.TargetType,
		TargetID:   doc.TargetID,
		Metadata:   doc.Metadata,
		IPHash:     doc.IPHash,
		RequestID:  doc.RequestID,
		CreatedAt:  doc.CreatedAt,
	}
}
