package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tolkfield/api/internal/domain"
	"github.com/tolkfield/api/internal/platform/textutil"
	"github.com/tolkfield/api/internal/repositories"
)

const (
	defaultImmediateLead      = 5 * time.Minute
	defaultCancellationWindow = 24 * time.Hour

	dueInputLayout = "2006-01-02 15:04"
)

type bookingService struct {
	jobs        repositories.JobRepository
	assignments repositories.AssignmentRepository
	directory   repositories.DirectoryRepository
	throttles   repositories.ThrottleRepository

	matcher       MatcherService
	notifications NotificationService
	audit         AuditLogService
	events        JobEventPublisher
	expiry        ExpiryPolicy

	location           *time.Location
	immediateLead      time.Duration
	cancellationWindow time.Duration

	now    func() time.Time
	newID  func() string
	logger func(ctx context.Context, msg string, fields map[string]any)
}

// BookingServiceDeps bundles constructor inputs for the booking lifecycle.
type BookingServiceDeps struct {
	Jobs        repositories.JobRepository
	Assignments repositories.AssignmentRepository
	Directory   repositories.DirectoryRepository
	Throttles   repositories.ThrottleRepository

	Matcher       MatcherService
	Notifications NotificationService
	Audit         AuditLogService
	Events        JobEventPublisher
	Expiry        ExpiryPolicy

	// Location is the timezone booking due dates are entered in.
	Location           *time.Location
	ImmediateLead      time.Duration
	CancellationWindow time.Duration

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, msg string, fields map[string]any)
}

// NewBookingService assembles the job lifecycle state machine.
func NewBookingService(deps BookingServiceDeps) (BookingService, error) {
	if deps.Jobs == nil {
		return nil, errors.New("booking service: job repository is required")
	}
	if deps.Assignments == nil {
		return nil, errors.New("booking service: assignment repository is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("booking service: directory is required")
	}
	if deps.Throttles == nil {
		return nil, errors.New("booking service: throttle repository is required")
	}
	if deps.Matcher == nil {
		return nil, errors.New("booking service: matcher is required")
	}
	if deps.Notifications == nil {
		return nil, errors.New("booking service: notification service is required")
	}
	if deps.Events == nil {
		return nil, errors.New("booking service: event publisher is required")
	}

	audit := deps.Audit
	if audit == nil {
		audit = NewNoopAuditLogService()
	}
	expiry := deps.Expiry
	if expiry == nil {
		expiry = DefaultExpiryPolicy{}
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	immediateLead := deps.ImmediateLead
	if immediateLead <= 0 {
		immediateLead = defaultImmediateLead
	}
	cancellationWindow := deps.CancellationWindow
	if cancellationWindow <= 0 {
		cancellationWindow = defaultCancellationWindow
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &bookingService{
		jobs:               deps.Jobs,
		assignments:        deps.Assignments,
		directory:          deps.Directory,
		throttles:          deps.Throttles,
		matcher:            deps.Matcher,
		notifications:      deps.Notifications,
		audit:              audit,
		events:             deps.Events,
		expiry:             expiry,
		location:           location,
		immediateLead:      immediateLead,
		cancellationWindow: cancellationWindow,
		now:                func() time.Time { return clock().UTC() },
		newID:              newID,
		logger:             logger,
	}, nil
}

func (s *bookingService) newJobID() string        { return "job_" + s.newID() }
func (s *bookingService) newAssignmentID() string { return "tra_" + s.newID() }

// CreateJob validates the booking request and stores it as a pending job.
// Immediate bookings enter the matching pool right away; scheduled bookings
// are released when the contact details arrive.
func (s *bookingService) CreateJob(ctx context.Context, cmd CreateJobCommand) (CreatedJob, error) {
	if cmd.Actor.Role != RoleCustomer && cmd.Actor.Role != RoleAdmin {
		return CreatedJob{}, invalidField("actor")
	}
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		customerID = cmd.Actor.ID
	}
	if customerID == "" {
		return CreatedJob{}, invalidField("customer_id")
	}
	if strings.TrimSpace(cmd.FromLanguageID) == "" {
		return CreatedJob{}, invalidField("from_language_id")
	}
	if cmd.DurationMinutes <= 0 {
		return CreatedJob{}, invalidField("duration")
	}
	if !cmd.Immediate {
		if strings.TrimSpace(cmd.DueDate) == "" {
			return CreatedJob{}, invalidField("due_date")
		}
		if strings.TrimSpace(cmd.DueTime) == "" {
			return CreatedJob{}, invalidField("due_time")
		}
		if !cmd.PhoneDelivery && !cmd.PhysicalDelivery {
			return CreatedJob{}, invalidField("delivery")
		}
	}

	customer, err := s.directory.FindUserByID(ctx, customerID)
	if err != nil {
		if isRepoNotFound(err) {
			return CreatedJob{}, invalidField("customer_id")
		}
		return CreatedJob{}, mapRepositoryError(err)
	}
	if _, err := s.directory.FindLanguage(ctx, cmd.FromLanguageID); err != nil {
		if isRepoNotFound(err) {
			return CreatedJob{}, invalidField("from_language_id")
		}
		return CreatedJob{}, mapRepositoryError(err)
	}

	now := s.now()
	var due time.Time
	if cmd.Immediate {
		due = now.Add(s.immediateLead)
	} else {
		parsed, err := time.ParseInLocation(dueInputLayout,
			strings.TrimSpace(cmd.DueDate)+" "+strings.TrimSpace(cmd.DueTime), s.location)
		if err != nil {
			return CreatedJob{}, invalidField("due_date")
		}
		due = parsed.UTC()
		if !due.After(now) {
			return CreatedJob{}, invalidField("due_date")
		}
	}

	gender, certified := domain.DeriveJobFor(cmd.JobForOptions)

	job := domain.Job{
		ID:             s.newJobID(),
		CustomerID:     customerID,
		FromLanguageID: cmd.FromLanguageID,
		Gender:         gender,
		Certified:      certified,
		Kind:           domain.KindForConsumerType(customer.ConsumerType),

		PhoneDelivery:    cmd.PhoneDelivery || cmd.Immediate,
		PhysicalDelivery: cmd.PhysicalDelivery,
		Immediate:        cmd.Immediate,

		Due:                    due,
		PlannedDurationMinutes: cmd.DurationMinutes,

		Status:       domain.JobStatusPending,
		WillExpireAt: s.expiry.WillExpireAt(due, now),

		Reference: textutil.CleanText(cmd.Reference),
		ByAdmin:   cmd.ByAdmin || cmd.Actor.Role == RoleAdmin,

		CreatedAt: now,
		UpdatedAt: now,
		Audit:     domain.AuditInfo{CreatedBy: &cmd.Actor.ID},
	}

	if err := s.jobs.Insert(ctx, job); err != nil {
		return CreatedJob{}, mapRepositoryError(err)
	}

	s.audit.Record(ctx, AuditLogRecord{
		Actor:      cmd.Actor,
		Action:     "job.create",
		TargetType: "job",
		TargetID:   job.ID,
		Metadata: map[string]any{
			"immediate": job.Immediate,
			"kind":      string(job.Kind),
			"language":  job.FromLanguageID,
		},
	})
	s.publishEvent(ctx, EventJobCreated, job, "")

	if job.Immediate {
		s.postCommit(ctx, "job.create.notify", job.ID, func(ctx context.Context) error {
			return s.notifications.NotifyJobPosted(ctx, job, "")
		})
		s.postCommit(ctx, "job.create.sms", job.ID, func(ctx context.Context) error {
			_, err := s.notifications.BroadcastJobBySMS(ctx, job)
			return err
		})
	}

	return CreatedJob{
		Job:           job,
		DisplayJobFor: domain.DisplayJobFor(gender, certified),
	}, nil
}

// AcceptJob atomically claims a pending job for the acting translator. When
// several translators race, exactly one wins; the rest get ErrAlreadyTaken.
func (s *bookingService) AcceptJob(ctx context.Context, cmd AcceptJobCommand) (Job, error) {
	if cmd.Actor.Role != RoleTranslator {
		return Job{}, invalidField("actor")
	}

	job, err := s.jobs.FindByID(ctx, cmd.JobID)
	if err != nil {
		return Job{}, mapRepositoryError(err)
	}

	translator, err := s.directory.FindUserByID(ctx, cmd.Actor.ID)
	if err != nil {
		return Job{}, mapRepositoryError(err)
	}

	busy, err := s.assignments.HasBookingAt(ctx, cmd.Actor.ID, job.Due)
	if err != nil {
		return Job{}, mapRepositoryError(err)
	}
	if busy {
		return Job{}, ErrAlreadyBooked
	}

	now := s.now()
	assignment := domain.TranslatorAssignment{
		ID:           s.newAssignmentID(),
		JobID:        job.ID,
		TranslatorID: cmd.Actor.ID,
		CreatedAt:    now,
	}

	job, err = s.jobs.AcceptIfPending(ctx, job.ID, assignment)
	if err != nil {
		return Job{}, mapRepositoryError(err)
	}

	s.audit.Record(ctx, AuditLogRecord{
		Actor:      cmd.Actor,
		Action:     "job.accept",
		TargetType: "job",
		TargetID:   job.ID,
		Metadata:   map[string]any{"assignment_id": assignment.ID},
	})
	s.publishEvent(ctx, EventJobStatusChanged, job, domain.JobStatusPending)

	s.postCommit(ctx, "job.accept.notify", job.ID, func(ctx context.Context) error {
		return s.notifications.NotifyJobAccepted(ctx, job, translator)
	})
	s.postCommit(ctx, "job.accept.reminder", job.ID, func(ctx context.Context) error {
		return s.notifications.NotifySessionReminder(ctx, job, []string{job.CustomerID, cmd.Actor.ID})
	})

	return job, nil
}

// CancelJob branches on who is cancelling. Customers may always withdraw; the
// resulting status depends on whether the session is more than the
// cancellation window away. Translators and admins may only hand a job back
// outside the window, which re-enters it into the matching pool.
func (s *bookingService) CancelJob(ctx context.Context, cmd CancelJobCommand) (Job, error) {
	job, err := s.jobs.FindByID(ctx, cmd.JobID)
	if err != nil {
		return Job{}, mapRepositoryError(err)
	}
	if !job.IsLive() {
		return Job{}, invalidField("status")
	}

	switch cmd.Actor.Role {
	case RoleTranslator:
		return s.translatorCancel(ctx, cmd, job)
	case RoleCustomer:
		return s.customerCancel(ctx, cmd, job)
	case RoleAdmin:
		return s.adminCancel(ctx, cmd, job)
	default:
		return Job{}, invalidField("actor")
	}
}

func (s *bookingService) customerCancel(ctx context.Context, cmd CancelJobCommand, job Job) (Job, error) {
	if job.CustomerID != cmd.Actor.ID {
		return Job{}, fmt.Errorf("%w: job %s", ErrBookingNotFound, job.ID)
	}

	now := s.now()
	previous := job.Status
	if job.Due.Sub(now) >= s.cancellationWindow {
		job.Status = domain.JobStatusWithdrawBefore24
	} else {
		job.Status = domain.JobStatusWithdrawAfter24
	}
	job.WithdrawAt = &now
	job.UpdatedAt = now

	if err := s.jobs.Update(ctx, job); err != nil {
		return Job{}, mapRepositoryError(err)
	}

	var translatorID string
	if assignment, err := s.assignments.FindLiveByJob(ctx, job.ID); err == nil {
		translatorID = assignment.TranslatorID
	}
	if _, err := s.assignments.CancelLiveByJob(ctx, job.ID, now); err != nil {
		s.logger(ctx, "closing assignments after withdraw failed", map[string]any{
			"job_id": job.ID, "error": err.Error(),
		})
	}

	s.audit.Record(ctx, AuditLogRecord{
		Actor:      cmd.Actor,
		Action:     "job.cancel",
		TargetType: "job",
		TargetID:   job.ID,
		Metadata:   map[string]any{"status": string(job.Status), "previous": string(previous)},
	})
	s.publishEvent(ctx, EventJobStatusChanged, job, previous)

	if translatorID != "" {
		s.postCommit(ctx, "job.cancel.notify", job.ID, func(ctx context.Context) error {
			return s.notifications.NotifyJobCancelled(ctx, job, []string{translatorID})
		})
	}
	return job, nil
}

func (s *bookingService) translatorCancel(ctx context.Context, cmd CancelJobCommand, job Job) (Job, error) {
	assignment, err := s.assignments.FindLiveByJob(ctx, job.ID)
	if err != nil {
		return Job{}, mapRepositoryError(err)
	}
	if assignment.TranslatorID != cmd.Actor.ID {
		return Job{}, fmt.Errorf("%w: job %s", ErrBookingNotFound, job.ID)
	}
	return s.handBack(ctx, cmd, job, assignment, "job.decline")
}

// adminCancel takes the translator path on the translator's behalf: same
// window gate, same reset to pending, same re-broadcast. The job may also be
// unassigned, in which case there is no assignment to close and nobody to
// exclude from the repost.
func (s *bookingService) adminCancel(ctx context.Context, cmd CancelJobCommand, job Job) (Job, error) {
	var assignment domain.TranslatorAssignment
	if live, err := s.assignments.FindLiveByJob(ctx, job.ID); err == nil {
		assignment = live
	} else if !isRepoNotFound(err) {
		return Job{}, mapRepositoryError(err)
	}
	return s.handBack(ctx, cmd, job, assignment, "job.cancel")
}

// handBack releases a job from its current assignment and re-enters it into
// the matching pool as if newly created, excluding the translator who held it.
func (s *bookingService) handBack(ctx context.Context, cmd CancelJobCommand, job Job, assignment domain.TranslatorAssignment, action string) (Job, error) {
	now := s.now()
	if job.Due.Sub(now) <= s.cancellationWindow {
		return Job{}, ErrCancellationWindowClosed
	}

	if _, err := s.assignments.CancelLiveByJob(ctx, job.ID, now); err != nil {
		return Job{}, mapRepositoryError(err)
	}

	previous := job.Status
	job.Status = domain.JobStatusPending
	job.CreatedAt = now
	job.WillExpireAt = s.expiry.WillExpireAt(job.Due, now)
	job.UpdatedAt = now

	if err := s.jobs.Update(ctx, job); err != nil {
		return Job{}, mapRepositoryError(err)
	}

	metadata := map[string]any{"previous": string(previous)}
	if assignment.ID != "" {
		metadata["assignment_id"] = assignment.ID
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      cmd.Actor,
		Action:     action,
		TargetType: "job",
		TargetID:   job.ID,
		Metadata:   metadata,
	})
	s.publishEvent(ctx, EventJobStatusChanged, job, previous)

	s.postCommit(ctx, action+".repost", job.ID, func(ctx context.Context) error {
		return s.notifications.NotifyJobPosted(ctx, job, assignment.TranslatorID)
	})

	return job, nil
}

// EndSession completes a session and records the elapsed time. Only a started
// session can end; calling it on a job in any other status is a no-op
// returning the stored state, so repeated calls stay safe.
func (s *bookingService) EndSession(ctx context.Context, cmd EndSessionCommand) (Job, error) {
	job, err := s.jobs.FindByID(ctx, cmd.JobID)
	if err != nil {
		return Job{}, mapRepositoryError(err)
	}
	if job.Status != domain.JobStatusStarted {
		return job, nil
	}

	now := s.now()
	var elapsed time.Duration
	if strings.TrimSpace(cmd.SessionTime) != "" {
		elapsed, err = domain.ParseSessionDuration(strings.TrimSpace(cmd.SessionTime))
		if err != nil {
			return Job{}, invalidField("session_time")
		}
	} else {
		elapsed = now.Sub(job.Due)
		if elapsed < 0 {
			elapsed = 0
		}
	}

	previous := job.Status
	job.Status = domain.JobStatusCompleted
	job.ActualSessionDuration = domain.FormatSessionDuration(elapsed)
	job.EndAt = &now
	job.UpdatedAt = now

	if err := s.jobs.Update(ctx, job); err != nil {
		return Job{}, mapRepositoryError(err)
	}

	var translatorID string
	if assignment, err := s.assignments.FindLiveByJob(ctx, job.ID); err == nil {
		translatorID = assignment.TranslatorID
		if err := s.assignments.Complete(ctx, assignment.ID, now, cmd.Actor.ID); err != nil {
			s.logger(ctx, "completing assignment failed", map[string]any{
				"job_id": job.ID, "assignment_id": assignment.ID, "error": err.Error(),
			})
		}
	}

	s.audit.Record(ctx, AuditLogRecord{
		Actor:      cmd.Actor,
		Action:     "job.end_session",
		TargetType: "job",
		TargetID:   job.ID,
		Metadata:   map[string]any{"session_time": job.ActualSessionDuration},
	})
	s.publishEvent(ctx, EventJobSessionEnded, job, previous)

	s.notifySessionEnded(ctx, job, translatorID)
	return job, nil
}

func (s *bookingService) notifySessionEnded(ctx context.Context, job Job, translatorID string) {
	customer, err := s.directory.FindUserByID(ctx, job.CustomerID)
	if err != nil {
		s.logger(ctx, "customer lookup for session mail failed", map[string]any{
			"job_id": job.ID, "error": err.Error(),
		})
		customer = UserProfile{ID: job.CustomerID}
	}
	var translator UserProfile
	if translatorID != "" {
		translator, err = s.directory.FindUserByID(ctx, translatorID)
		if err != nil {
			s.logger(ctx, "translator lookup for session mail failed", map[string]any{
				"job_id": job.ID, "error": err.Error(),
			})
			translator = UserProfile{ID: translatorID}
		}
	}
	s.postCommit(ctx, "job.end_session.mail", job.ID, func(ctx context.Context) error {
		return s.notifications.NotifySessionEnded(ctx, job, customer, translator)
	})
}

// MarkCustomerNoShow closes a session the customer did not attend. No
// notifications go out; the status itself carries the outcome.
func (s *bookingService) MarkCustomerNoShow(ctx context.Context, cmd NoShowCommand) (Job, error) {
	job, err := s.jobs.FindByID(ctx, cmd.JobID)
	if err != nil {
		return Job{}, mapRepositoryError(err)
	}
	if job.Status == domain.JobStatusNotCarriedOutCustomer {
		return job, nil
	}
	if job.Status != domain.JobStatusAssigned && job.Status != domain.JobStatusStarted {
		return Job{}, invalidField("status")
	}

	now := s.now()
	previous := job.Status
	job.Status = domain.JobStatusNotCarriedOutCustomer
	job.EndAt = &now
	job.UpdatedAt = now

	if err := s.jobs.Update(ctx, job); err != nil {
		return Job{}, mapRepositoryError(err)
	}

	// The assignment is closed by the translator who showed up, regardless of
	// who reported the no-show.
	if assignment, err := s.assignments.FindLiveByJob(ctx, job.ID); err == nil {
		if err := s.assignments.Complete(ctx, assignment.ID, now, assignment.TranslatorID); err != nil {
			s.logger(ctx, "completing assignment failed", map[string]any{
				"job_id": job.ID, "assignment_id": assignment.ID, "error": err.Error(),
			})
		}
	}

	s.audit.Record(ctx, AuditLogRecord{
		Actor:      cmd.Actor,
		Action:     "job.no_show",
		TargetType: "job",
		TargetID:   job.ID,
		Metadata:   map[string]any{"previous": string(previous)},
	})
	s.publishEvent(ctx, EventJobStatusChanged, job, previous)

	return job, nil
}

// Reopen re-enters a job into the matching pool. Timed-out jobs are reopened
// as a fresh booking referencing the original; live jobs reset in place.
func (s *bookingService) Reopen(ctx context.Context, cmd ReopenCommand) (Job, error) {
	job, err := s.jobs.FindByID(ctx, cmd.JobID)
	if err != nil {
		return Job{}, mapRepositoryError(err)
	}

	now := s.now()
	if job.Status == domain.JobStatusTimedOut {
		reopened := job
		reopened.ID = s.newJobID()
		reopened.Status = domain.JobStatusPending
		reopened.CreatedAt = now
		reopened.UpdatedAt = now
		reopened.WillExpireAt = s.expiry.WillExpireAt(reopened.Due, now)
		reopened.IgnoreAlerts = false
		reopened.IgnoreExpired = false
		comment := fmt.Sprintf("reopening of booking #%s", job.ID)
		if reopened.AdminComments != "" {
			reopened.AdminComments += "\n" + comment
		} else {
			reopened.AdminComments = comment
		}

		if err := s.jobs.Insert(ctx, reopened); err != nil {
			if isRepoNotFound(err) {
				return Job{}, fmt.Errorf("%w: %v", ErrReopenFailed, err)
			}
			return Job{}, mapRepositoryError(err)
		}
		s.finishReopen(ctx, cmd.Actor, reopened, job.Status)
		return reopened, nil
	}

	previous := job.Status
	if _, err := s.assignments.CancelLiveByJob(ctx, job.ID, now); err != nil {
		return Job{}, mapRepositoryError(err)
	}
	job.Status = domain.JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	job.WillExpireAt = s.expiry.WillExpireAt(job.Due, now)

	if err := s.jobs.Update(ctx, job); err != nil {
		if isRepoNotFound(err) {
			return Job{}, fmt.Errorf("%w: %v", ErrReopenFailed, err)
		}
		return Job{}, mapRepositoryError(err)
	}
	s.finishReopen(ctx, cmd.Actor, job, previous)
	return job, nil
}

func (s *bookingService) finishReopen(ctx context.Context, actor ActorRef, job Job, previous JobStatus) {
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      actor,
		Action:     "job.reopen",
		TargetType: "job",
		TargetID:   job.ID,
		Metadata:   map[string]any{"previous": string(previous)},
	})
	s.publishEvent(ctx, EventJobReopened, job, previous)
	s.postCommit(ctx, "job.reopen.notify", job.ID, func(ctx context.Context) error {
		return s.notifications.NotifyJobPosted(ctx, job, "")
	})
}

// AttachContactDetails stores the override contact fields supplied after
// creation, confirms the booking by mail, and releases scheduled bookings
// into the matching pool.
func (s *bookingService) AttachContactDetails(ctx context.Context, cmd AttachContactCommand) (Job, error) {
	job, err := s.jobs.FindByID(ctx, cmd.JobID)
	if err != nil {
		return Job{}, mapRepositoryError(err)
	}
	if cmd.Actor.Role == RoleCustomer && job.CustomerID != cmd.Actor.ID {
		return Job{}, fmt.Errorf("%w: job %s", ErrBookingNotFound, job.ID)
	}

	contactEmail := strings.TrimSpace(cmd.ContactEmail)
	if contactEmail != "" && !strings.Contains(contactEmail, "@") {
		return Job{}, invalidField("contact_email")
	}

	now := s.now()
	job.ContactEmail = contactEmail
	job.Address = textutil.CleanText(cmd.Address)
	job.Instructions = textutil.CleanText(cmd.Instructions)
	job.Town = textutil.CleanText(cmd.Town)
	job.UpdatedAt = now

	if err := s.jobs.Update(ctx, job); err != nil {
		return Job{}, mapRepositoryError(err)
	}

	customer, err := s.directory.FindUserByID(ctx, job.CustomerID)
	if err != nil {
		s.logger(ctx, "customer lookup for booking confirmation failed", map[string]any{
			"job_id": job.ID, "error": err.Error(),
		})
		customer = UserProfile{ID: job.CustomerID}
	}

	s.audit.Record(ctx, AuditLogRecord{
		Actor:                 cmd.Actor,
		Action:                "job.attach_contact",
		TargetType:            "job",
		TargetID:              job.ID,
		Metadata:              map[string]any{"contact_email": contactEmail, "town": job.Town},
		SensitiveMetadataKeys: []string{"contact_email"},
	})

	s.postCommit(ctx, "job.attach_contact.mail", job.ID, func(ctx context.Context) error {
		return s.notifications.SendBookingReceived(ctx, job, customer)
	})

	// Immediate bookings were already broadcast at creation.
	if !job.Immediate && job.Status == domain.JobStatusPending {
		s.postCommit(ctx, "job.attach_contact.notify", job.ID, func(ctx context.Context) error {
			return s.notifications.NotifyJobPosted(ctx, job, "")
		})
		s.postCommit(ctx, "job.attach_contact.sms", job.ID, func(ctx context.Context) error {
			_, err := s.notifications.BroadcastJobBySMS(ctx, job)
			return err
		})
	}

	return job, nil
}

// ActiveJobsFor returns the user's live bookings split into emergency and
// scheduled lists. Translators see the pending jobs they are eligible for;
// customers see their own live jobs.
func (s *bookingService) ActiveJobsFor(ctx context.Context, userID string) (UserJobs, error) {
	user, err := s.directory.FindUserByID(ctx, userID)
	if err != nil {
		return UserJobs{}, mapRepositoryError(err)
	}

	var jobs []Job
	if _, isTranslator := domain.KindForTranslatorType(user.Type); isTranslator {
		jobs, err = s.matcher.JobsFor(ctx, userID)
		if err != nil {
			return UserJobs{}, err
		}
	} else {
		page, err := s.jobs.List(ctx, repositories.JobListFilter{
			CustomerID: userID,
			Status: []domain.JobStatus{
				domain.JobStatusPending,
				domain.JobStatusAssigned,
				domain.JobStatusStarted,
			},
		})
		if err != nil {
			return UserJobs{}, mapRepositoryError(err)
		}
		jobs = page.Items
	}

	var result UserJobs
	for _, job := range jobs {
		if job.Immediate {
			result.Emergency = append(result.Emergency, job)
		} else {
			result.Scheduled = append(result.Scheduled, job)
		}
	}
	return result, nil
}

// JobHistoryFor pages through the user's past and present bookings, newest
// first.
func (s *bookingService) JobHistoryFor(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Job], error) {
	user, err := s.directory.FindUserByID(ctx, userID)
	if err != nil {
		return domain.CursorPage[Job]{}, mapRepositoryError(err)
	}

	if _, isTranslator := domain.KindForTranslatorType(user.Type); isTranslator {
		return s.translatorHistory(ctx, userID, pager)
	}

	page, err := s.jobs.List(ctx, repositories.JobListFilter{
		CustomerID: userID,
		Pagination: pager,
	})
	if err != nil {
		return domain.CursorPage[Job]{}, mapRepositoryError(err)
	}
	return page, nil
}

func (s *bookingService) translatorHistory(ctx context.Context, translatorID string, pager Pagination) (domain.CursorPage[Job], error) {
	assignments, err := s.assignments.ListByTranslator(ctx, translatorID, pager)
	if err != nil {
		return domain.CursorPage[Job]{}, mapRepositoryError(err)
	}

	jobs := make([]Job, 0, len(assignments.Items))
	for _, assignment := range assignments.Items {
		job, err := s.jobs.FindByID(ctx, assignment.JobID)
		if err != nil {
			if isRepoNotFound(err) {
				continue
			}
			return domain.CursorPage[Job]{}, mapRepositoryError(err)
		}
		jobs = append(jobs, job)
	}
	return domain.CursorPage[Job]{Items: jobs, NextPageToken: assignments.NextPageToken}, nil
}

// IgnoreExpiring silences the expiring-soon alert for a job.
func (s *bookingService) IgnoreExpiring(ctx context.Context, jobID string, actor ActorRef) error {
	return s.setIgnoreFlag(ctx, jobID, actor, "job.ignore_expiring", func(job *Job) {
		job.IgnoreAlerts = true
	})
}

// IgnoreExpired silences the expired alert for a job.
func (s *bookingService) IgnoreExpired(ctx context.Context, jobID string, actor ActorRef) error {
	return s.setIgnoreFlag(ctx, jobID, actor, "job.ignore_expired", func(job *Job) {
		job.IgnoreExpired = true
	})
}

func (s *bookingService) setIgnoreFlag(ctx context.Context, jobID string, actor ActorRef, action string, apply func(*Job)) error {
	if actor.Role != RoleAdmin {
		return invalidField("actor")
	}
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return mapRepositoryError(err)
	}

	apply(&job)
	job.UpdatedAt = s.now()
	if err := s.jobs.Update(ctx, job); err != nil {
		return mapRepositoryError(err)
	}

	s.audit.Record(ctx, AuditLogRecord{
		Actor:      actor,
		Action:     action,
		TargetType: "job",
		TargetID:   job.ID,
	})
	return nil
}

// IgnoreThrottle dismisses a login-throttle alert.
func (s *bookingService) IgnoreThrottle(ctx context.Context, throttleID string, actor ActorRef) error {
	if actor.Role != RoleAdmin {
		return invalidField("actor")
	}
	if err := s.throttles.SetIgnored(ctx, throttleID, s.now()); err != nil {
		return mapRepositoryError(err)
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      actor,
		Action:     "throttle.ignore",
		TargetType: "throttle",
		TargetID:   throttleID,
	})
	return nil
}

// post-commit side effects never fail the primary mutation.
func (s *bookingService) postCommit(ctx context.Context, op string, jobID string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		s.logger(ctx, "post-commit side effect failed", map[string]any{
			"op":     op,
			"job_id": jobID,
			"error":  err.Error(),
		})
	}
}

func (s *bookingService) publishEvent(ctx context.Context, event string, job Job, previous JobStatus) {
	due := job.Due
	message := JobEventMessage{
		Event:          event,
		JobID:          job.ID,
		Status:         job.Status,
		PreviousStatus: previous,
		CustomerID:     job.CustomerID,
		LanguageID:     job.FromLanguageID,
		Due:            &due,
		OccurredAt:     s.now(),
	}
	if _, err := s.events.PublishJobEvent(ctx, message); err != nil {
		s.logger(ctx, "event publish failed", map[string]any{
			"event":  event,
			"job_id": job.ID,
			"error":  err.Error(),
		})
	}
}
