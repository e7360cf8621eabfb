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

const jobCollection = "jobs"

// JobRepository persists booking documents in Firestore.
type JobRepository struct {
	base        *pfirestore.BaseRepository[jobDocument]
	assignments *AssignmentRepository
	provider    *pfirestore.Provider
}

// NewJobRepository constructs a Firestore-backed job repository. The
// assignment repository is needed for the transactional accept path.
func NewJobRepository(provider *pfirestore.Provider, assignments *AssignmentRepository) (*JobRepository, error) {
	if provider == nil {
		return nil, errors.New("job repository requires firestore provider")
	}
	if assignments == nil {
		return nil, errors.New("job repository requires assignment repository")
	}

	base := pfirestore.NewBaseRepository[jobDocument](provider, jobCollection, nil, nil)
	return &JobRepository{base: base, assignments: assignments, provider: provider}, nil
}

// Insert stores a new booking document under its identifier.
func (r *JobRepository) Insert(ctx context.Context, job domain.Job) error {
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("job id is required")
	}
	_, err := r.base.Set(ctx, job.ID, fromDomainJob(job))
	return err
}

// Update overwrites the booking document.
func (r *JobRepository) Update(ctx context.Context, job domain.Job) error {
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("job id is required")
	}
	_, err := r.base.Set(ctx, job.ID, fromDomainJob(job))
	return err
}

// FindByID loads the booking by identifier.
func (r *JobRepository) FindByID(ctx context.Context, jobID string) (domain.Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return domain.Job{}, errors.New("job id is required")
	}

	doc, err := r.base.Get(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	return toDomainJob(doc.ID, doc.Data), nil
}

// List runs the filtered booking query ordered by creation time descending.
func (r *JobRepository) List(ctx context.Context, filter repositories.JobListFilter) (domain.CursorPage[domain.Job], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	cursor, err := decodeCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Job]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.CustomerID != "" {
			query = query.Where("customerId", "==", filter.CustomerID)
		}
		if len(filter.Status) == 1 {
			query = query.Where("status", "==", string(filter.Status[0]))
		} else if len(filter.Status) > 1 {
			values := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				values = append(values, string(status))
			}
			query = query.Where("status", "in", values)
		}
		if filter.Kind != "" {
			query = query.Where("kind", "==", string(filter.Kind))
		}
		if len(filter.LanguageIDs) > 0 {
			query = query.Where("fromLanguageId", "in", filter.LanguageIDs)
		}
		if filter.DueRange.From != nil {
			query = query.Where("due", ">=", *filter.DueRange.From)
		}
		if filter.DueRange.To != nil {
			query = query.Where("due", "<=", *filter.DueRange.To)
		}
		if filter.CreatedAt.From != nil {
			query = query.Where("createdAt", ">=", *filter.CreatedAt.From)
		}
		if filter.CreatedAt.To != nil {
			query = query.Where("createdAt", "<=", *filter.CreatedAt.To)
		}
		if filter.PendingUnexpired {
			query = query.Where("status", "==", string(domain.JobStatusPending)).
				Where("willExpireAt", ">", filter.Now)
		}
		if filter.ExpiringSoon {
			query = query.Where("status", "==", string(domain.JobStatusPending)).
				Where("willExpireAt", "<=", filter.Now).
				Where("ignoreAlerts", "==", false)
		}

		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Job]{}, err
	}

	page := domain.CursorPage[domain.Job]{}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, toDomainJob(doc.ID, doc.Data))
	}
	if len(docs) > pageSize {
		last := docs[pageSize-1]
		token, err := encodeCursor(last.Data.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.Job]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// AcceptIfPending transitions the job to assigned and writes the live
// assignment row in a single transaction. The status guard runs against the
// transactional snapshot, so two concurrent accepts cannot both succeed.
func (r *JobRepository) AcceptIfPending(ctx context.Context, jobID string, assignment domain.TranslatorAssignment) (domain.Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return domain.Job{}, errors.New("job id is required")
	}
	if strings.TrimSpace(assignment.ID) == "" || strings.TrimSpace(assignment.TranslatorID) == "" {
		return domain.Job{}, errors.New("assignment id and translator id are required")
	}

	jobRef, err := r.base.DocumentRef(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	assignmentRef, err := r.assignments.base.DocumentRef(ctx, assignment.ID)
	if err != nil {
		return domain.Job{}, err
	}

	var accepted domain.Job
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(jobRef)
		if err != nil {
			return pfirestore.WrapError("jobs.accept", err)
		}
		doc, err := r.base.Decode(ctx, snap)
		if err != nil {
			return err
		}
		if doc.Data.Status != string(domain.JobStatusPending) {
			return pfirestore.NewConflict("jobs.accept", errors.New("job is no longer pending"))
		}

		job := toDomainJob(doc.ID, doc.Data)
		job.Status = domain.JobStatusAssigned
		job.UpdatedAt = assignment.CreatedAt

		if err := tx.Set(jobRef, fromDomainJob(job)); err != nil {
			return pfirestore.WrapError("jobs.accept", err)
		}
		if err := tx.Set(assignmentRef, fromDomainAssignment(assignment, job.Due)); err != nil {
			return pfirestore.WrapError("translator_assignments.accept", err)
		}

		accepted = job
		return nil
	})
	if err != nil {
		return domain.Job{}, err
	}
	return accepted, nil
}

type jobDocument struct {
	CustomerID string `firestore:"customerId"`

	FromLanguageID string `firestore:"fromLanguageId"`
	Gender         string `firestore:"gender,omitempty"`
	Certified      string `firestore:"certified,omitempty"`
	Kind           string `firestore:"kind"`

	PhoneDelivery    bool `firestore:"phoneDelivery"`
	PhysicalDelivery bool `firestore:"physicalDelivery"`
	Immediate        bool `firestore:"immediate"`

	Due                    time.Time `firestore:"due"`
	PlannedDurationMinutes int       `firestore:"plannedDurationMinutes"`
	ActualSessionDuration  string    `firestore:"actualSessionDuration,omitempty"`

	Status       string     `firestore:"status"`
	WillExpireAt time.Time  `firestore:"willExpireAt"`
	EndAt        *time.Time `firestore:"endAt,omitempty"`
	WithdrawAt   *time.Time `firestore:"withdrawAt,omitempty"`

	AdminComments string `firestore:"adminComments,omitempty"`
	Reference     string `firestore:"reference,omitempty"`

	ContactEmail string `firestore:"contactEmail,omitempty"`
	Address      string `firestore:"address,omitempty"`
	Instructions string `firestore:"instructions,omitempty"`
	Town         string `firestore:"town,omitempty"`

	ByAdmin       bool `firestore:"byAdmin"`
	IgnoreAlerts  bool `firestore:"ignoreAlerts"`
	IgnoreExpired bool `firestore:"ignoreExpired"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
	CreatedBy *string   `firestore:"createdBy,omitempty"`
	UpdatedBy *string   `firestore:"updatedBy,omitempty"`
}

func fromDomainJob(job domain.Job) jobDocument {
	return jobDocument{
		CustomerID:             job.CustomerID,
		FromLanguageID:         job.FromLanguageID,
		Gender:                 string(job.Gender),
		Certified:              string(job.Certified),
		Kind:                   string(job.Kind),
		PhoneDelivery:          job.PhoneDelivery,
		PhysicalDelivery:       job.PhysicalDelivery,
		Immediate:              job.Immediate,
		Due:                    job.Due.UTC(),
		PlannedDurationMinutes: job.PlannedDurationMinutes,
		ActualSessionDuration:  job.ActualSessionDuration,
		Status:                 string(job.Status),
		WillExpireAt:           job.WillExpireAt.UTC(),
		EndAt:                  job.EndAt,
		WithdrawAt:             job.WithdrawAt,
		AdminComments:          job.AdminComments,
		Reference:              job.Reference,
		ContactEmail:           job.ContactEmail,
		Address:                job.Address,
		Instructions:           job.Instructions,
		Town:                   job.Town,
		ByAdmin:                job.ByAdmin,
		IgnoreAlerts:           job.IgnoreAlerts,
		IgnoreExpired:          job.IgnoreExpired,
		CreatedAt:              job.CreatedAt.UTC(),
		UpdatedAt:              job.UpdatedAt.UTC(),
		CreatedBy:              job.Audit.CreatedBy,
		UpdatedBy:              job.Audit.UpdatedBy,
	}
}

func toDomainJob(id string, doc jobDocument) domain.Job {
	return domain.Job{
		ID:                     id,
		CustomerID:             doc.CustomerID,
		FromLanguageID:         doc.FromLanguageID,
		Gender:                 domain.Gender(doc.Gender),
		Certified:              domain.Certification(doc.Certified),
		Kind:                   domain.JobKind(doc.Kind),
		PhoneDelivery:          doc.PhoneDelivery,
		PhysicalDelivery:       doc.PhysicalDelivery,
		Immediate:              doc.Immediate,
		Due:                    doc.Due,
		PlannedDurationMinutes: doc.PlannedDurationMinutes,
		ActualSessionDuration:  doc.ActualSessionDuration,
		Status:                 domain.JobStatus(doc.Status),
		WillExpireAt:           doc.WillExpireAt,
		EndAt:                  doc.EndAt,
		WithdrawAt:             doc.WithdrawAt,
		AdminComments:          doc.AdminComments,
		Reference:              doc.Reference,
		ContactEmail:           doc.ContactEmail,
		Address:                doc.Address,
		Instructions:           doc.Instructions,
		Town:                   doc.Town,
		ByAdmin:                doc.ByAdmin,
		IgnoreAlerts:           doc.IgnoreAlerts,
		IgnoreExpired:          doc.IgnoreExpired,
		CreatedAt:              doc.CreatedAt,
		UpdatedAt:              doc.UpdatedAt,
		Audit: domain.AuditInfo{
			CreatedBy: doc.CreatedBy,
			UpdatedBy: doc.UpdatedBy,
		},
	}
}
