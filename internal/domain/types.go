package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results together with the next page token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// JobStatus enumerates the lifecycle states of a booking.
type JobStatus string

const (
	// JobStatusPending means the job is open for translators to accept.
	JobStatusPending JobStatus = "pending"
	// JobStatusAssigned means a translator holds the job.
	JobStatusAssigned JobStatus = "assigned"
	// JobStatusStarted means the interpretation session is underway.
	JobStatusStarted JobStatus = "started"
	// JobStatusCompleted means the session finished normally.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusWithdrawBefore24 means the customer cancelled 24h or more before due.
	JobStatusWithdrawBefore24 JobStatus = "withdrawbefore24"
	// JobStatusWithdrawAfter24 means the customer cancelled inside the 24h window.
	JobStatusWithdrawAfter24 JobStatus = "withdrawafter24"
	// JobStatusTimedOut means no translator accepted before the job expired.
	JobStatusTimedOut JobStatus = "timedout"
	// JobStatusNotCarriedOutCustomer means the customer did not show up.
	JobStatusNotCarriedOutCustomer JobStatus = "not_carried_out_customer"
)

// KnownJobStatuses lists every status value accepted on the wire.
var KnownJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusAssigned,
	JobStatusStarted,
	JobStatusCompleted,
	JobStatusWithdrawBefore24,
	JobStatusWithdrawAfter24,
	JobStatusTimedOut,
	JobStatusNotCarriedOutCustomer,
}

// IsKnownJobStatus reports whether the value is a recognised lifecycle status.
func IsKnownJobStatus(value JobStatus) bool {
	for _, status := range KnownJobStatuses {
		if status == value {
			return true
		}
	}
	return false
}

// JobKind classifies who pays for the interpretation.
type JobKind string

const (
	// JobKindPaid is a standard commercially paid booking.
	JobKindPaid JobKind = "paid"
	// JobKindRWS is a booking funded through the RWS scheme.
	JobKindRWS JobKind = "rws"
	// JobKindUnpaid is a volunteer (NGO) booking.
	JobKindUnpaid JobKind = "unpaid"
)

// Gender is the requested or held target gender for a booking or translator.
type Gender string

const (
	// GenderUnspecified places no gender constraint.
	GenderUnspecified Gender = ""
	// GenderMale requests or identifies a male translator.
	GenderMale Gender = "male"
	// GenderFemale requests or identifies a female translator.
	GenderFemale Gender = "female"
)

// Certification is a booking's certification requirement.
type Certification string

const (
	// CertificationNone places no certification constraint.
	CertificationNone Certification = ""
	// CertificationNormal accepts lay translators.
	CertificationNormal Certification = "normal"
	// CertificationCertified requires a certified translator.
	CertificationCertified Certification = "certified"
	// CertificationLaw requires certification with specialisation in law.
	CertificationLaw Certification = "law"
	// CertificationNormalLaw accepts lay translators alongside law certification.
	CertificationNormalLaw Certification = "n_law"
	// CertificationHealth requires certification with specialisation in health care.
	CertificationHealth Certification = "health"
	// CertificationNormalHealth accepts lay translators alongside health certification.
	CertificationNormalHealth Certification = "n_health"
	// CertificationBoth accepts both lay and certified translators.
	CertificationBoth Certification = "both"
)

// TranslatorType classifies a translator's engagement model.
type TranslatorType string

const (
	// TranslatorTypeProfessional works paid bookings.
	TranslatorTypeProfessional TranslatorType = "professional"
	// TranslatorTypeRWS works RWS-funded bookings.
	TranslatorTypeRWS TranslatorType = "rwstranslator"
	// TranslatorTypeVolunteer works unpaid bookings.
	TranslatorTypeVolunteer TranslatorType = "volunteer"
)

// TranslatorLevel is a qualification level held by a translator.
type TranslatorLevel string

const (
	// LevelCertified is a generally certified translator.
	LevelCertified TranslatorLevel = "Certified"
	// LevelCertifiedLaw is certified with specialisation in law.
	LevelCertifiedLaw TranslatorLevel = "Certified with specialisation in law"
	// LevelCertifiedHealth is certified with specialisation in health care.
	LevelCertifiedHealth TranslatorLevel = "Certified with specialisation in health care"
	// LevelLayman is an uncertified lay translator.
	LevelLayman TranslatorLevel = "Layman"
	// LevelReadCourses has completed translation courses without certification.
	LevelReadCourses TranslatorLevel = "Read Translation courses"
)

// AuditInfo tracks who created or last touched an entity.
type AuditInfo struct {
	CreatedBy *string
	UpdatedBy *string
}

// Job is the central booking entity.
type Job struct {
	ID         string
	CustomerID string

	FromLanguageID string
	Gender         Gender
	Certified      Certification
	Kind           JobKind

	PhoneDelivery    bool
	PhysicalDelivery bool
	Immediate        bool

	Due                    time.Time
	PlannedDurationMinutes int
	// ActualSessionDuration holds the elapsed session time as H:MM:SS once the
	// session has ended; empty before that.
	ActualSessionDuration string

	Status       JobStatus
	WillExpireAt time.Time
	EndAt        *time.Time
	WithdrawAt   *time.Time

	AdminComments string
	Reference     string

	// Contact overrides supplied after creation; empty means "use the
	// customer profile values".
	ContactEmail string
	Address      string
	Instructions string
	Town         string

	ByAdmin       bool
	IgnoreAlerts  bool
	IgnoreExpired bool

	CreatedAt time.Time
	UpdatedAt time.Time
	Audit     AuditInfo
}

// IsLive reports whether the job is still moving towards a session.
func (j Job) IsLive() bool {
	switch j.Status {
	case JobStatusPending, JobStatusAssigned, JobStatusStarted:
		return true
	default:
		return false
	}
}

// PhysicalOnly reports whether the job can only be delivered on site.
func (j Job) PhysicalOnly() bool {
	return j.PhysicalDelivery && !j.PhoneDelivery
}

// TranslatorAssignment links a translator to a job.
//
// At most one assignment per job may have both CancelAt and CompletedAt nil;
// that row is the live assignment.
type TranslatorAssignment struct {
	ID           string
	JobID        string
	TranslatorID string
	CreatedAt    time.Time
	CancelAt     *time.Time
	CompletedAt  *time.Time
	CompletedBy  string
}

// Live reports whether the assignment is neither cancelled nor completed.
func (a TranslatorAssignment) Live() bool {
	return a.CancelAt == nil && a.CompletedAt == nil
}

// NotificationPreferences carries the per-user delivery opt-outs read from the
// directory.
type NotificationPreferences struct {
	NotGetEmergency    bool
	NotGetNighttime    bool
	NotGetNotification bool
}

// UserProfile is the directory view of a customer or translator.
type UserProfile struct {
	ID     string
	Email  string
	Name   string
	Mobile string
	Town   string

	// Customer attributes.
	ConsumerType string

	// Translator attributes.
	Gender      Gender
	Type        TranslatorType
	Level       TranslatorLevel
	LanguageIDs []string

	Active      bool
	Preferences NotificationPreferences
}

// SpeaksLanguage reports whether the profile lists the language id.
func (p UserProfile) SpeaksLanguage(languageID string) bool {
	for _, id := range p.LanguageIDs {
		if id == languageID {
			return true
		}
	}
	return false
}

// Language is a directory language record.
type Language struct {
	ID   string
	Name string
}

// NotificationChannel is the outcome of the per-recipient channel decision.
type NotificationChannel string

const (
	// ChannelNone suppresses the notification entirely.
	ChannelNone NotificationChannel = "none"
	// ChannelPushNow delivers a push immediately.
	ChannelPushNow NotificationChannel = "push_now"
	// ChannelPushDelayed defers the push to the next business-hours instant.
	ChannelPushDelayed NotificationChannel = "push_delayed"
)

// SoundProfile selects the notification sounds per platform.
type SoundProfile struct {
	Android string
	IOS     string
}

// NotificationMessage is the ephemeral value handed to the push transport.
type NotificationMessage struct {
	Recipients  []string
	JobID       string
	TemplateKey string
	Payload     map[string]any
	Text        string
	Sound       SoundProfile
	// SendAfter defers delivery when set; nil means immediate.
	SendAfter *time.Time
}

// AuditLogEntry records one mutating decision for operational traceability.
type AuditLogEntry struct {
	ID         string
	ActorID    string
	ActorRole  string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
	IPHash     string
	RequestID  string
	CreatedAt  time.Time
}

// Health status values reported by dependency probes.
const (
	// HealthStatusOK means the dependency responded normally.
	HealthStatusOK = "ok"
	// HealthStatusDegraded means the dependency responded with an error.
	HealthStatusDegraded = "degraded"
	// HealthStatusError means the dependency timed out or was cancelled.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	GeneratedAt time.Time
}

// LoginThrottle is a back-office record of repeated failed sign-ins.
type LoginThrottle struct {
	ID        string
	UserID    string
	IP        string
	Attempts  int
	Ignored   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
