package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/tolkfield/api/internal/domain"
	"github.com/tolkfield/api/internal/repositories"
)

// sessionReminderLead is how long before the due instant the reminder fires.
const sessionReminderLead = time.Hour

const (
	dueDateTimeLayout = "2006-01-02 15:04"
	dueTimeLayout     = "15:04"
)

// BusinessHours resolves the night window and the next deliverable instant.
type BusinessHours interface {
	IsNight(at time.Time) bool
	NextBusinessTime(at time.Time) time.Time
}

type notificationService struct {
	push      PushSender
	sms       SmsSender
	mail      Mailer
	matcher   MatcherService
	directory repositories.DirectoryRepository
	hours     BusinessHours

	normalSound SoundProfile
	urgentSound SoundProfile
	locale      string
	now         func() time.Time
	logger      func(ctx context.Context, msg string, fields map[string]any)
}

// NotificationServiceDeps bundles constructor inputs for the dispatcher.
type NotificationServiceDeps struct {
	Push      PushSender
	SMS       SmsSender
	Mail      Mailer
	Matcher   MatcherService
	Directory repositories.DirectoryRepository
	Hours     BusinessHours

	NormalSound SoundProfile
	UrgentSound SoundProfile
	Locale      string
	Clock       func() time.Time
	Logger      func(ctx context.Context, msg string, fields map[string]any)
}

// NewNotificationService creates the dispatch policy service. The matcher is
// optional at construction and may be attached later to break the mutual
// dependency between matching and channel policy.
func NewNotificationService(deps NotificationServiceDeps) (*notificationServiceImpl, error) {
	if deps.Push == nil {
		return nil, errors.New("notification service: push sender is required")
	}
	if deps.SMS == nil {
		return nil, errors.New("notification service: sms sender is required")
	}
	if deps.Mail == nil {
		return nil, errors.New("notification service: mailer is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("notification service: directory is required")
	}
	if deps.Hours == nil {
		return nil, errors.New("notification service: business hours are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	locale := deps.Locale
	if locale == "" {
		locale = "sv"
	}

	return &notificationServiceImpl{
		notificationService: notificationService{
			push:        deps.Push,
			sms:         deps.SMS,
			mail:        deps.Mail,
			matcher:     deps.Matcher,
			directory:   deps.Directory,
			hours:       deps.Hours,
			normalSound: deps.NormalSound,
			urgentSound: deps.UrgentSound,
			locale:      locale,
			now:         func() time.Time { return clock().UTC() },
			logger:      logger,
		},
	}, nil
}

// notificationServiceImpl exists so AttachMatcher can stay off the interface.
type notificationServiceImpl struct {
	notificationService
}

var _ NotificationService = (*notificationServiceImpl)(nil)

// AttachMatcher wires the matcher after construction.
func (s *notificationServiceImpl) AttachMatcher(matcher MatcherService) {
	s.matcher = matcher
}

// ChannelFor decides delivery channel and timing for one recipient.
func (s *notificationService) ChannelFor(recipient UserProfile, at time.Time) (NotificationChannel, *time.Time) {
	if recipient.Preferences.NotGetNotification {
		return domain.ChannelNone, nil
	}
	if s.hours.IsNight(at) && recipient.Preferences.NotGetNighttime {
		sendAfter := s.hours.NextBusinessTime(at)
		return domain.ChannelPushDelayed, &sendAfter
	}
	return domain.ChannelPushNow, nil
}

// NotifyJobPosted fans the new booking out to every matched translator,
// immediately or at the next business-hours instant per recipient.
func (s *notificationService) NotifyJobPosted(ctx context.Context, job Job, excludeUserID string) error {
	if s.matcher == nil {
		return errors.New("notification service: matcher not attached")
	}

	matched, err := s.matcher.TranslatorsFor(ctx, job, excludeUserID)
	if err != nil {
		return err
	}
	if len(matched.Immediate) == 0 && len(matched.Delayed) == 0 {
		return nil
	}

	payload, text := s.jobOfferContent(ctx, job)
	sound := s.soundFor(job)

	var errs []error
	if len(matched.Immediate) > 0 {
		ids := profileIDs(matched.Immediate)
		if _, err := s.push.Send(ctx, NotificationMessage{
			Recipients:  ids,
			JobID:       job.ID,
			TemplateKey: s.jobOfferTemplate(job),
			Payload:     payload,
			Text:        text,
			Sound:       sound,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	for sendAfter, profiles := range groupBySendAfter(matched.Delayed) {
		after := sendAfter
		if _, err := s.push.Send(ctx, NotificationMessage{
			Recipients:  profileIDs(profiles),
			JobID:       job.ID,
			TemplateKey: s.jobOfferTemplate(job),
			Payload:     payload,
			Text:        text,
			Sound:       sound,
			SendAfter:   &after,
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BroadcastJobBySMS texts every matched translator about the new booking and
// returns how many were contacted.
func (s *notificationService) BroadcastJobBySMS(ctx context.Context, job Job) (int, error) {
	if s.matcher == nil {
		return 0, errors.New("notification service: matcher not attached")
	}

	matched, err := s.matcher.TranslatorsFor(ctx, job, "")
	if err != nil {
		return 0, err
	}

	recipients := matched.Immediate
	for _, delayed := range matched.Delayed {
		recipients = append(recipients, delayed.Profile)
	}

	text := s.smsText(ctx, job)
	contacted := 0
	for _, recipient := range recipients {
		if recipient.Mobile == "" {
			continue
		}
		if _, err := s.sms.Send(ctx, recipient.Mobile, text); err != nil {
			s.logger(ctx, "sms broadcast delivery failed", map[string]any{
				"job_id":       job.ID,
				"recipient_id": recipient.ID,
				"error":        err.Error(),
			})
			continue
		}
		contacted++
	}
	return contacted, nil
}

// NotifyJobAccepted tells the customer a translator took the booking.
func (s *notificationService) NotifyJobAccepted(ctx context.Context, job Job, translator UserProfile) error {
	payload, _ := s.jobOfferContent(ctx, job)
	_, err := s.push.Send(ctx, NotificationMessage{
		Recipients:  []string{job.CustomerID},
		JobID:       job.ID,
		TemplateKey: TemplateJobAccepted,
		Payload:     payload,
		Text:        MessageText(s.locale, TemplateJobAccepted, job.ID),
		Sound:       s.normalSound,
	})
	return err
}

// NotifySessionReminder schedules a start reminder ahead of the due instant.
// When the session is closer than the lead the reminder goes out immediately.
func (s *notificationService) NotifySessionReminder(ctx context.Context, job Job, recipientIDs []string) error {
	if len(recipientIDs) == 0 {
		return nil
	}

	message := NotificationMessage{
		Recipients:  recipientIDs,
		JobID:       job.ID,
		TemplateKey: TemplateSessionReminder,
		Payload:     map[string]any{"job_id": job.ID, "due": job.Due.Format(dueDateTimeLayout)},
		Text:        MessageText(s.locale, TemplateSessionReminder, job.ID, job.Due.Format(dueTimeLayout)),
		Sound:       s.normalSound,
	}
	if reminderAt := job.Due.Add(-sessionReminderLead); reminderAt.After(s.now()) {
		message.SendAfter = &reminderAt
	}
	_, err := s.push.Send(ctx, message)
	return err
}

// NotifyJobCancelled pushes a cancellation notice to the given recipients.
func (s *notificationService) NotifyJobCancelled(ctx context.Context, job Job, recipientIDs []string) error {
	if len(recipientIDs) == 0 {
		return nil
	}
	_, err := s.push.Send(ctx, NotificationMessage{
		Recipients:  recipientIDs,
		JobID:       job.ID,
		TemplateKey: TemplateJobCancelled,
		Payload:     map[string]any{"job_id": job.ID},
		Text:        MessageText(s.locale, TemplateJobCancelled, job.ID),
		Sound:       s.normalSound,
	})
	return err
}

// NotifyJobChanged pushes a reschedule or language-change notice.
func (s *notificationService) NotifyJobChanged(ctx context.Context, job Job, change JobChange, recipientIDs []string) error {
	if len(recipientIDs) == 0 {
		return nil
	}

	var templateKey, text string
	switch change {
	case JobChangeDue:
		templateKey = TemplateJobChangedDate
		text = MessageText(s.locale, TemplateJobChangedDate, job.ID, job.Due.Format(dueDateTimeLayout))
	case JobChangeLanguage:
		templateKey = TemplateJobChangedLanguage
		languageName := s.languageName(ctx, job.FromLanguageID)
		text = MessageText(s.locale, TemplateJobChangedLanguage, job.ID, languageName)
	default:
		return errors.New("notification service: unknown job change")
	}

	_, err := s.push.Send(ctx, NotificationMessage{
		Recipients:  recipientIDs,
		JobID:       job.ID,
		TemplateKey: templateKey,
		Payload:     map[string]any{"job_id": job.ID, "due": job.Due.Format(dueDateTimeLayout)},
		Text:        text,
		Sound:       s.normalSound,
	})
	return err
}

// NotifySessionEnded mails the invoice summary to the customer and the payout
// summary to the translator, both carrying the same elapsed session time.
func (s *notificationService) NotifySessionEnded(ctx context.Context, job Job, customer UserProfile, translator UserProfile) error {
	sessionText := domain.SessionTimeText(job.ActualSessionDuration)
	payload := map[string]any{
		"job_id":            job.ID,
		"session_time":      job.ActualSessionDuration,
		"session_time_text": sessionText,
	}

	var errs []error
	if customer.Email != "" {
		if err := s.mail.Send(ctx, customer.Email, customer.Name,
			"Information om avslutad tolkning", TemplateSessionEndedInvoice, payload); err != nil {
			errs = append(errs, err)
		}
	}
	if translator.Email != "" {
		if err := s.mail.Send(ctx, translator.Email, translator.Name,
			"Information om avslutad tolkning", TemplateSessionEndedSalary, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendBookingReceived mails the booking confirmation to the customer contact.
func (s *notificationService) SendBookingReceived(ctx context.Context, job Job, customer UserProfile) error {
	toEmail := job.ContactEmail
	if toEmail == "" {
		toEmail = customer.Email
	}
	if toEmail == "" {
		return nil
	}

	return s.mail.Send(ctx, toEmail, customer.Name, "Vi har mottagit din bokning", TemplateBookingReceived, map[string]any{
		"job_id":    job.ID,
		"due":       job.Due.Format(dueDateTimeLayout),
		"duration":  domain.MinutesText(job.PlannedDurationMinutes),
		"reference": job.Reference,
	})
}

func (s *notificationService) jobOfferTemplate(job Job) string {
	if job.Immediate {
		return TemplateJobPostedImmediate
	}
	return TemplateJobPostedScheduled
}

func (s *notificationService) jobOfferContent(ctx context.Context, job Job) (map[string]any, string) {
	languageName := s.languageName(ctx, job.FromLanguageID)

	customer, err := s.directory.FindUserByID(ctx, job.CustomerID)
	if err != nil {
		s.logger(ctx, "customer lookup for notification failed", map[string]any{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		customer = UserProfile{ID: job.CustomerID}
	}

	payload := domain.PushPayload(job, languageName, customer)

	var text string
	if job.Immediate {
		text = MessageText(s.locale, TemplateJobPostedImmediate, languageName, domain.MinutesText(job.PlannedDurationMinutes))
	} else {
		text = MessageText(s.locale, TemplateJobPostedScheduled, languageName, job.Due.Format(dueDateTimeLayout))
	}
	return payload, text
}

func (s *notificationService) smsText(ctx context.Context, job Job) string {
	due := job.Due.Format(dueDateTimeLayout)
	duration := domain.MinutesText(job.PlannedDurationMinutes)
	if job.PhysicalOnly() {
		return MessageText(s.locale, TemplateSMSJobPhysical, job.Town, due, duration)
	}
	return MessageText(s.locale, TemplateSMSJobPhone, due, duration)
}

func (s *notificationService) languageName(ctx context.Context, languageID string) string {
	lang, err := s.directory.FindLanguage(ctx, languageID)
	if err != nil {
		s.logger(ctx, "language lookup for notification failed", map[string]any{
			"language_id": languageID,
			"error":       err.Error(),
		})
		return languageID
	}
	return lang.Name
}

func (s *notificationService) soundFor(job Job) SoundProfile {
	if job.Immediate {
		return s.urgentSound
	}
	return s.normalSound
}

func profileIDs(profiles []UserProfile) []string {
	ids := make([]string, 0, len(profiles))
	for _, profile := range profiles {
		ids = append(ids, profile.ID)
	}
	return ids
}

func groupBySendAfter(delayed []DelayedRecipient) map[time.Time][]UserProfile {
	if len(delayed) == 0 {
		return nil
	}
	grouped := make(map[time.Time][]UserProfile)
	for _, recipient := range delayed {
		key := recipient.SendAfter.UTC()
		grouped[key] = append(grouped[key], recipient.Profile)
	}
	return grouped
}
