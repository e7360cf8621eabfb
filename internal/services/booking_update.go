package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/tolkfield/api/internal/domain"
	"github.com/tolkfield/api/internal/platform/textutil"
)

// jobDelta captures what an admin patch actually changes, resolved against
// the stored job before anything is written.
type jobDelta struct {
	dueChanged      bool
	previousDue     time.Time
	languageChanged bool
	oldLanguageID   string
	statusChanged   bool
	previousStatus  JobStatus

	translatorChanged    bool
	previousTranslatorID string
	newTranslatorID      string
}

// UpdateJob applies an admin patch to a job. The four deltas (translator,
// due, language, status) are resolved independently against the stored job;
// which side effects run depends on the status the job held before the patch.
// Notifications are suppressed once the due instant has passed, but the patch
// itself still persists.
func (s *bookingService) UpdateJob(ctx context.Context, cmd UpdateJobCommand) (Job, error) {
	if cmd.Actor.Role != RoleAdmin {
		return Job{}, invalidField("actor")
	}

	job, err := s.jobs.FindByID(ctx, cmd.JobID)
	if err != nil {
		return Job{}, mapRepositoryError(err)
	}

	delta, err := s.resolveDelta(ctx, cmd, job)
	if err != nil {
		return Job{}, err
	}
	if err := validateStatusTransition(cmd, job, delta); err != nil {
		return Job{}, err
	}

	now := s.now()

	// Apply the patch.
	if delta.dueChanged {
		job.Due = cmd.Due.UTC()
		job.WillExpireAt = s.expiry.WillExpireAt(job.Due, now)
	}
	if delta.languageChanged {
		job.FromLanguageID = *cmd.FromLanguageID
	}
	if cmd.AdminComments != nil {
		job.AdminComments = textutil.CleanText(*cmd.AdminComments)
	}
	if cmd.Reference != nil {
		job.Reference = textutil.CleanText(*cmd.Reference)
	}
	if delta.statusChanged {
		job.Status = *cmd.Status
	}
	if delta.translatorChanged && job.Status == domain.JobStatusPending && !delta.statusChanged {
		job.Status = domain.JobStatusAssigned
		delta.statusChanged = true
	}
	job.UpdatedAt = now
	job.Audit.UpdatedBy = &cmd.Actor.ID

	if err := s.jobs.Update(ctx, job); err != nil {
		return Job{}, mapRepositoryError(err)
	}

	// The assignment swap follows the job write so a failed patch never
	// leaves a fresh live row pointing at a stale job.
	if delta.translatorChanged {
		if _, err := s.assignments.CancelLiveByJob(ctx, job.ID, now); err != nil {
			return Job{}, mapRepositoryError(err)
		}
		assignment := domain.TranslatorAssignment{
			ID:           s.newAssignmentID(),
			JobID:        job.ID,
			TranslatorID: delta.newTranslatorID,
			CreatedAt:    now,
		}
		if err := s.assignments.Insert(ctx, assignment); err != nil {
			return Job{}, mapRepositoryError(err)
		}
	}

	s.recordUpdateAudit(ctx, cmd, job, delta)

	if delta.statusChanged {
		s.publishEvent(ctx, EventJobStatusChanged, job, delta.previousStatus)
	}

	// A patch landing after the session instant never notifies anyone.
	if job.Due.After(now) {
		s.dispatchUpdateNotifications(ctx, job, delta)
	}

	return job, nil
}

func (s *bookingService) resolveDelta(ctx context.Context, cmd UpdateJobCommand, job Job) (jobDelta, error) {
	delta := jobDelta{
		previousStatus: job.Status,
		previousDue:    job.Due,
		oldLanguageID:  job.FromLanguageID,
	}

	if assignment, err := s.assignments.FindLiveByJob(ctx, job.ID); err == nil {
		delta.previousTranslatorID = assignment.TranslatorID
	} else if !isRepoNotFound(err) {
		return jobDelta{}, mapRepositoryError(err)
	}

	newTranslatorID := ""
	switch {
	case cmd.TranslatorID != nil:
		newTranslatorID = strings.TrimSpace(*cmd.TranslatorID)
	case cmd.TranslatorEmail != nil:
		translator, err := s.directory.FindUserByEmail(ctx, strings.TrimSpace(*cmd.TranslatorEmail))
		if err != nil {
			if isRepoNotFound(err) {
				return jobDelta{}, invalidField("translator_email")
			}
			return jobDelta{}, mapRepositoryError(err)
		}
		newTranslatorID = translator.ID
	}
	if newTranslatorID != "" && newTranslatorID != delta.previousTranslatorID {
		if _, err := s.directory.FindUserByID(ctx, newTranslatorID); err != nil {
			if isRepoNotFound(err) {
				return jobDelta{}, invalidField("translator_id")
			}
			return jobDelta{}, mapRepositoryError(err)
		}
		delta.translatorChanged = true
		delta.newTranslatorID = newTranslatorID
	}

	if cmd.Due != nil && !cmd.Due.UTC().Equal(job.Due) {
		delta.dueChanged = true
	}

	if cmd.FromLanguageID != nil && *cmd.FromLanguageID != job.FromLanguageID {
		if _, err := s.directory.FindLanguage(ctx, *cmd.FromLanguageID); err != nil {
			if isRepoNotFound(err) {
				return jobDelta{}, invalidField("from_language_id")
			}
			return jobDelta{}, mapRepositoryError(err)
		}
		delta.languageChanged = true
	}

	if cmd.Status != nil && *cmd.Status != job.Status {
		if !domain.IsKnownJobStatus(*cmd.Status) {
			return jobDelta{}, invalidField("status")
		}
		delta.statusChanged = true
	}

	return delta, nil
}

// validateStatusTransition enforces the per-status rules an admin patch must
// respect. Timing out a job someone is accountable for requires an
// explanatory comment.
func validateStatusTransition(cmd UpdateJobCommand, job Job, delta jobDelta) error {
	if !delta.statusChanged {
		return nil
	}
	target := *cmd.Status

	needsComment := target == domain.JobStatusTimedOut &&
		(job.Status == domain.JobStatusAssigned || job.Status == domain.JobStatusWithdrawAfter24)
	if needsComment {
		comment := job.AdminComments
		if cmd.AdminComments != nil {
			comment = strings.TrimSpace(*cmd.AdminComments)
		}
		if comment == "" {
			return invalidField("admin_comments")
		}
	}

	switch job.Status {
	case domain.JobStatusCompleted, domain.JobStatusNotCarriedOutCustomer:
		return fmt.Errorf("%w: status", ErrBookingInvalidInput)
	case domain.JobStatusStarted:
		if target != domain.JobStatusCompleted {
			return fmt.Errorf("%w: status", ErrBookingInvalidInput)
		}
	}
	return nil
}

// dispatchUpdateNotifications runs the side effects the applied deltas call
// for. The handler chosen for a status change depends on the status the job
// held before the patch.
func (s *bookingService) dispatchUpdateNotifications(ctx context.Context, job Job, delta jobDelta) {
	if delta.statusChanged {
		switch delta.previousStatus {
		case domain.JobStatusTimedOut:
			s.notifyAfterTimeoutPatch(ctx, job, delta)
		case domain.JobStatusStarted:
			if job.Status == domain.JobStatusCompleted {
				s.notifySessionEnded(ctx, job, delta.currentTranslatorID())
			}
		case domain.JobStatusPending:
			s.notifyAfterPendingPatch(ctx, job, delta)
		case domain.JobStatusAssigned:
			s.notifyAfterAssignedPatch(ctx, job, delta)
		}
	} else if delta.translatorChanged {
		s.notifyAccepted(ctx, job, delta.newTranslatorID)
	}

	if delta.dueChanged {
		s.postCommit(ctx, "job.update.due", job.ID, func(ctx context.Context) error {
			return s.notifications.NotifyJobChanged(ctx, job, JobChangeDue, s.updateRecipients(job, delta))
		})
	}
	if delta.languageChanged {
		s.postCommit(ctx, "job.update.language", job.ID, func(ctx context.Context) error {
			return s.notifications.NotifyJobChanged(ctx, job, JobChangeLanguage, s.updateRecipients(job, delta))
		})
	}
}

func (s *bookingService) notifyAfterTimeoutPatch(ctx context.Context, job Job, delta jobDelta) {
	switch {
	case job.Status == domain.JobStatusPending:
		s.postCommit(ctx, "job.update.repost", job.ID, func(ctx context.Context) error {
			return s.notifications.NotifyJobPosted(ctx, job, "")
		})
	case delta.translatorChanged:
		s.notifyAccepted(ctx, job, delta.newTranslatorID)
	}
}

func (s *bookingService) notifyAfterPendingPatch(ctx context.Context, job Job, delta jobDelta) {
	if job.Status == domain.JobStatusAssigned && delta.translatorChanged {
		s.notifyAccepted(ctx, job, delta.newTranslatorID)
		return
	}
	s.postCommit(ctx, "job.update.cancel", job.ID, func(ctx context.Context) error {
		return s.notifications.NotifyJobCancelled(ctx, job, []string{job.CustomerID})
	})
}

func (s *bookingService) notifyAfterAssignedPatch(ctx context.Context, job Job, delta jobDelta) {
	switch job.Status {
	case domain.JobStatusWithdrawBefore24, domain.JobStatusWithdrawAfter24:
		recipients := []string{job.CustomerID}
		if delta.previousTranslatorID != "" {
			recipients = append(recipients, delta.previousTranslatorID)
		}
		s.postCommit(ctx, "job.update.cancel", job.ID, func(ctx context.Context) error {
			return s.notifications.NotifyJobCancelled(ctx, job, recipients)
		})
	case domain.JobStatusTimedOut:
		if delta.previousTranslatorID != "" {
			s.postCommit(ctx, "job.update.cancel", job.ID, func(ctx context.Context) error {
				return s.notifications.NotifyJobCancelled(ctx, job, []string{delta.previousTranslatorID})
			})
		}
	case domain.JobStatusPending:
		s.postCommit(ctx, "job.update.repost", job.ID, func(ctx context.Context) error {
			return s.notifications.NotifyJobPosted(ctx, job, delta.previousTranslatorID)
		})
	}
}

func (s *bookingService) notifyAccepted(ctx context.Context, job Job, translatorID string) {
	translator, err := s.directory.FindUserByID(ctx, translatorID)
	if err != nil {
		s.logger(ctx, "translator lookup for accept notice failed", map[string]any{
			"job_id": job.ID, "translator_id": translatorID, "error": err.Error(),
		})
		translator = UserProfile{ID: translatorID}
	}
	s.postCommit(ctx, "job.update.accept", job.ID, func(ctx context.Context) error {
		return s.notifications.NotifyJobAccepted(ctx, job, translator)
	})
	s.postCommit(ctx, "job.update.reminder", job.ID, func(ctx context.Context) error {
		return s.notifications.NotifySessionReminder(ctx, job, []string{job.CustomerID, translatorID})
	})
}

func (s *bookingService) updateRecipients(job Job, delta jobDelta) []string {
	recipients := []string{job.CustomerID}
	if id := delta.currentTranslatorID(); id != "" {
		recipients = append(recipients, id)
	}
	return recipients
}

func (s *bookingService) recordUpdateAudit(ctx context.Context, cmd UpdateJobCommand, job Job, delta jobDelta) {
	metadata := map[string]any{}
	if delta.statusChanged {
		metadata["status"] = string(job.Status)
		metadata["previous_status"] = string(delta.previousStatus)
	}
	if delta.dueChanged {
		metadata["due"] = job.Due.Format(time.RFC3339)
		metadata["previous_due"] = delta.previousDue.Format(time.RFC3339)
	}
	if delta.languageChanged {
		metadata["language"] = job.FromLanguageID
		metadata["previous_language"] = delta.oldLanguageID
	}
	if delta.translatorChanged {
		metadata["translator"] = delta.newTranslatorID
		if delta.previousTranslatorID != "" {
			metadata["previous_translator"] = delta.previousTranslatorID
		}
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      cmd.Actor,
		Action:     "job.update",
		TargetType: "job",
		TargetID:   job.ID,
		Metadata:   metadata,
	})
}

// currentTranslatorID is the translator accountable for the job after the
// patch: the newly attached one, else whoever held the live assignment.
func (d jobDelta) currentTranslatorID() string {
	if d.translatorChanged {
		return d.newTranslatorID
	}
	return d.previousTranslatorID
}
