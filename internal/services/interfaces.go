package services

import (
	"context"
	"time"

	domain "github.com/tolkfield/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination              = domain.Pagination
	Job                     = domain.Job
	JobStatus               = domain.JobStatus
	JobKind                 = domain.JobKind
	Gender                  = domain.Gender
	Certification           = domain.Certification
	TranslatorAssignment    = domain.TranslatorAssignment
	UserProfile             = domain.UserProfile
	Language                = domain.Language
	NotificationChannel     = domain.NotificationChannel
	NotificationMessage     = domain.NotificationMessage
	NotificationPreferences = domain.NotificationPreferences
	SoundProfile            = domain.SoundProfile
	AuditLogEntry           = domain.AuditLogEntry
	LoginThrottle           = domain.LoginThrottle
	SystemHealthReport      = domain.SystemHealthReport
)

// ActorRef identifies who is driving a lifecycle operation. Authentication
// happens upstream; the role arrives resolved on the command.
type ActorRef struct {
	ID   string
	Role string
}

// Actor roles accepted on lifecycle commands.
const (
	RoleCustomer   = "customer"
	RoleTranslator = "translator"
	RoleAdmin      = "admin"
)

// BookingService is the job lifecycle state machine.
type BookingService interface {
	CreateJob(ctx context.Context, cmd CreateJobCommand) (CreatedJob, error)
	AcceptJob(ctx context.Context, cmd AcceptJobCommand) (Job, error)
	CancelJob(ctx context.Context, cmd CancelJobCommand) (Job, error)
	EndSession(ctx context.Context, cmd EndSessionCommand) (Job, error)
	MarkCustomerNoShow(ctx context.Context, cmd NoShowCommand) (Job, error)
	UpdateJob(ctx context.Context, cmd UpdateJobCommand) (Job, error)
	Reopen(ctx context.Context, cmd ReopenCommand) (Job, error)
	AttachContactDetails(ctx context.Context, cmd AttachContactCommand) (Job, error)

	ActiveJobsFor(ctx context.Context, userID string) (UserJobs, error)
	JobHistoryFor(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Job], error)

	IgnoreExpiring(ctx context.Context, jobID string, actor ActorRef) error
	IgnoreExpired(ctx context.Context, jobID string, actor ActorRef) error
	IgnoreThrottle(ctx context.Context, throttleID string, actor ActorRef) error
}

// CreateJobCommand carries the inbound booking request.
type CreateJobCommand struct {
	Actor      ActorRef
	CustomerID string

	FromLanguageID string
	JobForOptions  []string

	Immediate       bool
	DueDate         string
	DueTime         string
	DurationMinutes int

	PhoneDelivery    bool
	PhysicalDelivery bool

	Reference string
	ByAdmin   bool
}

// CreatedJob pairs the stored job with the human-readable restatement of the
// requested gender/certification options for confirmation display.
type CreatedJob struct {
	Job           Job
	DisplayJobFor []string
}

// AcceptJobCommand identifies the translator taking the job.
type AcceptJobCommand struct {
	Actor ActorRef
	JobID string
}

// CancelJobCommand carries a cancellation; behaviour branches on Actor.Role.
type CancelJobCommand struct {
	Actor ActorRef
	JobID string
}

// EndSessionCommand closes a started session. SessionTime optionally supplies
// the elapsed interval as H:MM:SS on admin-driven end paths; when empty the
// elapsed time is computed from the due instant.
type EndSessionCommand struct {
	Actor       ActorRef
	JobID       string
	SessionTime string
}

// NoShowCommand marks a session the customer did not attend.
type NoShowCommand struct {
	Actor ActorRef
	JobID string
}

// UpdateJobCommand is the admin patch. Nil pointer fields are untouched.
type UpdateJobCommand struct {
	Actor ActorRef
	JobID string

	TranslatorID    *string
	TranslatorEmail *string
	Due             *time.Time
	FromLanguageID  *string
	Status          *JobStatus
	AdminComments   *string
	Reference       *string
}

// ReopenCommand re-enters a job into the matching pool.
type ReopenCommand struct {
	Actor ActorRef
	JobID string
}

// AttachContactCommand sets the override contact details supplied after
// creation and releases the booking into the matching pool.
type AttachContactCommand struct {
	Actor ActorRef
	JobID string

	ContactEmail string
	Address      string
	Instructions string
	Town         string
}

// UserJobs splits a user's live bookings into emergency and scheduled lists.
type UserJobs struct {
	Emergency []Job
	Scheduled []Job
}

// MatcherService produces the job/translator visibility sets.
type MatcherService interface {
	JobsFor(ctx context.Context, translatorID string) ([]Job, error)
	TranslatorsFor(ctx context.Context, job Job, excludeUserID string) (MatchedTranslators, error)
}

// DelayedRecipient is an eligible translator whose push is held until
// business hours.
type DelayedRecipient struct {
	Profile   UserProfile
	SendAfter time.Time
}

// MatchedTranslators partitions eligible translators by push timing.
type MatchedTranslators struct {
	Immediate []UserProfile
	Delayed   []DelayedRecipient
}

// ChannelDecider resolves the delivery channel and timing for one recipient.
type ChannelDecider interface {
	ChannelFor(recipient UserProfile, at time.Time) (NotificationChannel, *time.Time)
}

// NotificationService decides recipients, template, and channel for every
// booking event and hands off to the transports. Failures are logged by the
// implementation, never propagated into committed state transitions.
type NotificationService interface {
	ChannelDecider

	NotifyJobPosted(ctx context.Context, job Job, excludeUserID string) error
	BroadcastJobBySMS(ctx context.Context, job Job) (int, error)
	NotifyJobAccepted(ctx context.Context, job Job, translator UserProfile) error
	NotifySessionReminder(ctx context.Context, job Job, recipientIDs []string) error
	NotifyJobCancelled(ctx context.Context, job Job, recipientIDs []string) error
	NotifyJobChanged(ctx context.Context, job Job, change JobChange, recipientIDs []string) error
	NotifySessionEnded(ctx context.Context, job Job, customer UserProfile, translator UserProfile) error
	SendBookingReceived(ctx context.Context, job Job, customer UserProfile) error
}

// JobChange names the field whose change triggered a notification.
type JobChange string

const (
	JobChangeDue      JobChange = "due"
	JobChangeLanguage JobChange = "language"
)

// AuditLogService records mutating decisions and serves the back-office trail.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// AuditLogRecord is the write-side input to the audit trail.
type AuditLogRecord struct {
	Actor      ActorRef
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
	// SensitiveMetadataKeys are hashed instead of stored in clear.
	SensitiveMetadataKeys []string
	IPAddress             string
	RequestID             string
	OccurredAt            time.Time
}

// AuditLogFilter narrows the audit listing.
type AuditLogFilter struct {
	TargetType string
	TargetID   string
	ActorID    string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}

// Transport collaborator contracts -------------------------------------------

// PushSender delivers one push notification, honouring SendAfter when set.
type PushSender interface {
	Send(ctx context.Context, message NotificationMessage) (string, error)
}

// SmsSender delivers one text message and returns the delivery identifier.
type SmsSender interface {
	Send(ctx context.Context, to string, body string) (string, error)
}

// Mailer delivers one templated transactional mail.
type Mailer interface {
	Send(ctx context.Context, toEmail, toName, subject, templateKey string, payload map[string]any) error
}

// JobEventPublisher emits booking lifecycle events post-commit.
type JobEventPublisher interface {
	PublishJobEvent(ctx context.Context, message JobEventMessage) (string, error)
}

// Job lifecycle event names.
const (
	EventJobCreated       = "job.created"
	EventJobStatusChanged = "job.status.changed"
	EventJobReopened      = "job.reopened"
	EventJobSessionEnded  = "job.session.ended"
)

// JobEventMessage is the payload published on the job events topic.
type JobEventMessage struct {
	Event          string     `json:"event"`
	JobID          string     `json:"jobId"`
	Status         JobStatus  `json:"status,omitempty"`
	PreviousStatus JobStatus  `json:"previousStatus,omitempty"`
	TranslatorID   string     `json:"translatorId,omitempty"`
	CustomerID     string     `json:"customerId,omitempty"`
	LanguageID     string     `json:"languageId,omitempty"`
	Due            *time.Time `json:"due,omitempty"`
	OccurredAt     time.Time  `json:"occurredAt"`
}

// ThrottleService surfaces login-throttle records to the back office.
type ThrottleService interface {
	List(ctx context.Context, includeIgnored bool, pager Pagination) (domain.CursorPage[LoginThrottle], error)
}

// SystemService aggregates operational health for the status endpoints.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}
