package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/tolkfield/api/internal/domain"
	pfirestore "github.com/tolkfield/api/internal/platform/firestore"
)

const assignmentCollection = "translator_assignments"

// AssignmentRepository owns translator-to-job assignment rows in Firestore.
type AssignmentRepository struct {
	base     *pfirestore.BaseRepository[assignmentDocument]
	provider *pfirestore.Provider
}

// NewAssignmentRepository constructs a Firestore-backed assignment repository.
func NewAssignmentRepository(provider *pfirestore.Provider) (*AssignmentRepository, error) {
	if provider == nil {
		return nil, errors.New("assignment repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[assignmentDocument](provider, assignmentCollection, nil, nil)
	return &AssignmentRepository{base: base, provider: provider}, nil
}

// Insert stores a new assignment row. The due instant is copied from the job
// so double-booking checks stay a single query.
func (r *AssignmentRepository) Insert(ctx context.Context, assignment domain.TranslatorAssignment) error {
	if strings.TrimSpace(assignment.ID) == "" {
		return errors.New("assignment id is required")
	}
	_, err := r.base.Set(ctx, assignment.ID, fromDomainAssignment(assignment, time.Time{}))
	return err
}

// FindLiveByJob returns the live assignment for the job.
func (r *AssignmentRepository) FindLiveByJob(ctx context.Context, jobID string) (domain.TranslatorAssignment, error) {
	if strings.TrimSpace(jobID) == "" {
		return domain.TranslatorAssignment{}, errors.New("job id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("jobId", "==", jobID).
			Where("live", "==", true).
			Limit(1)
	})
	if err != nil {
		return domain.TranslatorAssignment{}, err
	}
	if len(docs) == 0 {
		return domain.TranslatorAssignment{}, pfirestore.NewNotFound("translator_assignments.live", errors.New("no live assignment for job"))
	}
	return toDomainAssignment(docs[0].ID, docs[0].Data), nil
}

// CancelLiveByJob closes every still-live assignment for the job.
func (r *AssignmentRepository) CancelLiveByJob(ctx context.Context, jobID string, at time.Time) (int, error) {
	if strings.TrimSpace(jobID) == "" {
		return 0, errors.New("job id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("jobId", "==", jobID).
			Where("live", "==", true)
	})
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, doc := range docs {
		_, err := r.base.Update(ctx, doc.ID, []firestore.Update{
			{Path: "cancelAt", Value: at.UTC()},
			{Path: "live", Value: false},
		})
		if err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// Complete marks the assignment as finished.
func (r *AssignmentRepository) Complete(ctx context.Context, assignmentID string, at time.Time, completedBy string) error {
	if strings.TrimSpace(assignmentID) == "" {
		return errors.New("assignment id is required")
	}

	_, err := r.base.Update(ctx, assignmentID, []firestore.Update{
		{Path: "completedAt", Value: at.UTC()},
		{Path: "completedBy", Value: completedBy},
		{Path: "live", Value: false},
	})
	return err
}

// HasBookingAt reports whether the translator holds a live assignment on a
// job due at the given instant.
func (r *AssignmentRepository) HasBookingAt(ctx context.Context, translatorID string, due time.Time) (bool, error) {
	if strings.TrimSpace(translatorID) == "" {
		return false, errors.New("translator id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("translatorId", "==", translatorID).
			Where("live", "==", true).
			Where("jobDue", "==", due.UTC()).
			Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// WasDeclinedBy reports whether the translator previously held and then
// cancelled an assignment on the job.
func (r *AssignmentRepository) WasDeclinedBy(ctx context.Context, jobID string, translatorID string) (bool, error) {
	if strings.TrimSpace(jobID) == "" || strings.TrimSpace(translatorID) == "" {
		return false, errors.New("job id and translator id are required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("jobId", "==", jobID).
			Where("translatorId", "==", translatorID).
			Limit(10)
	})
	if err != nil {
		return false, err
	}
	for _, doc := range docs {
		if doc.Data.CancelAt != nil {
			return true, nil
		}
	}
	return false, nil
}

// ListByTranslator pages through the translator's assignment history, newest
// first.
func (r *AssignmentRepository) ListByTranslator(ctx context.Context, translatorID string, pager domain.Pagination) (domain.CursorPage[domain.TranslatorAssignment], error) {
	if strings.TrimSpace(translatorID) == "" {
		return domain.CursorPage[domain.TranslatorAssignment]{}, errors.New("translator id is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	cursor, err := decodeCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.TranslatorAssignment]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.
			Where("translatorId", "==", translatorID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.TranslatorAssignment]{}, err
	}

	page := domain.CursorPage[domain.TranslatorAssignment]{}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, toDomainAssignment(doc.ID, doc.Data))
	}
	if len(docs) > pageSize {
		last := docs[pageSize-1]
		token, err := encodeCursor(last.Data.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.TranslatorAssignment]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

type assignmentDocument struct {
	JobID        string     `firestore:"jobId"`
	TranslatorID string     `firestore:"translatorId"`
	JobDue       time.Time  `firestore:"jobDue"`
	Live         bool       `firestore:"live"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	CancelAt     *time.Time `firestore:"cancelAt,omitempty"`
	CompletedAt  *time.Time `firestore:"completedAt,omitempty"`
	CompletedBy  string     `firestore:"completedBy,omitempty"`
}

func fromDomainAssignment(assignment domain.TranslatorAssignment, jobDue time.Time) assignmentDocument {
	return assignmentDocument{
		JobID:        assignment.JobID,
		TranslatorID: assignment.TranslatorID,
		JobDue:       jobDue.UTC(),
		Live:         assignment.Live(),
		CreatedAt:    assignment.CreatedAt.UTC(),
		CancelAt:     assignment.CancelAt,
		CompletedAt:  assignment.CompletedAt,
		CompletedBy:  assignment.CompletedBy,
	}
}

func toDomainAssignment(id string, doc assignmentDocument) domain.TranslatorAssignment {
	return domain.TranslatorAssignment{
		ID:           id,
		JobID:        doc.JobID,
		TranslatorID: doc.TranslatorID,
		CreatedAt:    doc.CreatedAt,
		CancelAt:     doc.CancelAt,
		CompletedAt:  doc.CompletedAt,
		CompletedBy:  doc.CompletedBy,
	}
}
