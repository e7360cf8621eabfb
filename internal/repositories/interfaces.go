package repositories

import (
	"context"
	"time"

	domain "github.com/tolkfield/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Jobs() JobRepository
	Assignments() AssignmentRepository
	Directory() DirectoryRepository
	AuditLogs() AuditLogRepository
	Throttles() ThrottleRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// JobRepository persists booking documents.
type JobRepository interface {
	Insert(ctx context.Context, job domain.Job) error
	Update(ctx context.Context, job domain.Job) error
	FindByID(ctx context.Context, jobID string) (domain.Job, error)
	List(ctx context.Context, filter JobListFilter) (domain.CursorPage[domain.Job], error)

	// AcceptIfPending atomically transitions the job from pending to assigned
	// and creates a live assignment row for the translator. When the job is no
	// longer pending it must return a RepositoryError with IsConflict true and
	// leave no assignment behind.
	AcceptIfPending(ctx context.Context, jobID string, assignment domain.TranslatorAssignment) (domain.Job, error)
}

// AssignmentRepository owns translator-to-job assignment rows.
type AssignmentRepository interface {
	Insert(ctx context.Context, assignment domain.TranslatorAssignment) error

	// FindLiveByJob returns the assignment with neither CancelAt nor
	// CompletedAt set, or a not-found RepositoryError.
	FindLiveByJob(ctx context.Context, jobID string) (domain.TranslatorAssignment, error)

	// CancelLiveByJob closes every still-live assignment for the job and
	// reports how many rows were touched.
	CancelLiveByJob(ctx context.Context, jobID string, at time.Time) (int, error)

	Complete(ctx context.Context, assignmentID string, at time.Time, completedBy string) error

	// HasBookingAt reports whether the translator already holds a live
	// assignment on a job due at the given instant.
	HasBookingAt(ctx context.Context, translatorID string, due time.Time) (bool, error)

	// WasDeclinedBy reports whether the translator previously held and then
	// cancelled an assignment on the job.
	WasDeclinedBy(ctx context.Context, jobID string, translatorID string) (bool, error)

	ListByTranslator(ctx context.Context, translatorID string, pager domain.Pagination) (domain.CursorPage[domain.TranslatorAssignment], error)
}

// DirectoryRepository is the read-only view of users, languages, and blacklists.
type DirectoryRepository interface {
	FindUserByID(ctx context.Context, userID string) (domain.UserProfile, error)
	FindUserByEmail(ctx context.Context, email string) (domain.UserProfile, error)
	ListActiveTranslators(ctx context.Context, excludeUserID string) ([]domain.UserProfile, error)
	FindLanguage(ctx context.Context, languageID string) (domain.Language, error)
	ListLanguages(ctx context.Context) ([]domain.Language, error)

	// BlacklistedTranslators returns the translator ids the customer has
	// excluded from their bookings.
	BlacklistedTranslators(ctx context.Context, customerID string) ([]string, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// ThrottleRepository stores login-throttle records surfaced in back-office alerts.
type ThrottleRepository interface {
	FindByID(ctx context.Context, throttleID string) (domain.LoginThrottle, error)
	SetIgnored(ctx context.Context, throttleID string, at time.Time) error
	List(ctx context.Context, filter ThrottleListFilter) (domain.CursorPage[domain.LoginThrottle], error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type JobListFilter struct {
	CustomerID  string
	Status      []domain.JobStatus
	Kind        domain.JobKind
	LanguageIDs []string
	DueRange    domain.RangeQuery[time.Time]
	CreatedAt   domain.RangeQuery[time.Time]

	// PendingUnexpired narrows to pending jobs whose WillExpireAt is still in
	// the future relative to Now.
	PendingUnexpired bool
	// ExpiringSoon narrows to jobs whose WillExpireAt falls before Now and
	// which have not been flagged ignored.
	ExpiringSoon bool
	Now          time.Time

	Pagination domain.Pagination
}

type AuditLogFilter struct {
	TargetType string
	TargetID   string
	ActorID    string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type ThrottleListFilter struct {
	IncludeIgnored bool
	Pagination     domain.Pagination
}
