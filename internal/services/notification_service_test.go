package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/tolkfield/api/internal/domain"
)

type pushStub struct {
	sent []NotificationMessage
	err  error
}

func (p *pushStub) Send(_ context.Context, message NotificationMessage) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, message)
	return "push_1", nil
}

type smsStub struct {
	sent []struct{ to, body string }
	fail map[string]error
}

func (s *smsStub) Send(_ context.Context, to string, body string) (string, error) {
	if err, ok := s.fail[to]; ok {
		return "", err
	}
	s.sent = append(s.sent, struct{ to, body string }{to, body})
	return "sms_1", nil
}

type mailStub struct {
	sent []struct {
		toEmail, toName, subject, template string
		payload                            map[string]any
	}
}

func (m *mailStub) Send(_ context.Context, toEmail, toName, subject, templateKey string, payload map[string]any) error {
	m.sent = append(m.sent, struct {
		toEmail, toName, subject, template string
		payload                            map[string]any
	}{toEmail, toName, subject, templateKey, payload})
	return nil
}

type matcherStub struct {
	matched MatchedTranslators
	jobs    []Job
	err     error
}

func (m *matcherStub) JobsFor(context.Context, string) ([]Job, error) { return m.jobs, m.err }

func (m *matcherStub) TranslatorsFor(context.Context, Job, string) (MatchedTranslators, error) {
	return m.matched, m.err
}

type directoryStub struct {
	users       map[string]UserProfile
	languages   map[string]Language
	translators []UserProfile
	blacklist   map[string][]string
	findErr     error
}

func (d *directoryStub) FindUserByID(_ context.Context, userID string) (UserProfile, error) {
	if d.findErr != nil {
		return UserProfile{}, d.findErr
	}
	user, ok := d.users[userID]
	if !ok {
		return UserProfile{}, notFoundErr{}
	}
	return user, nil
}

func (d *directoryStub) FindUserByEmail(_ context.Context, email string) (UserProfile, error) {
	for _, user := range d.users {
		if user.Email == email {
			return user, nil
		}
	}
	return UserProfile{}, notFoundErr{}
}

func (d *directoryStub) ListActiveTranslators(_ context.Context, excludeUserID string) ([]UserProfile, error) {
	var active []UserProfile
	for _, translator := range d.translators {
		if translator.ID == excludeUserID {
			continue
		}
		active = append(active, translator)
	}
	return active, nil
}

func (d *directoryStub) FindLanguage(_ context.Context, languageID string) (Language, error) {
	lang, ok := d.languages[languageID]
	if !ok {
		return Language{}, notFoundErr{}
	}
	return lang, nil
}

func (d *directoryStub) ListLanguages(context.Context) ([]Language, error) { return nil, nil }

func (d *directoryStub) BlacklistedTranslators(_ context.Context, customerID string) ([]string, error) {
	return d.blacklist[customerID], nil
}

// notFoundErr mimics the repository not-found categorisation in tests.
type notFoundErr struct{}

func (notFoundErr) Error() string       { return "not found" }
func (notFoundErr) IsNotFound() bool    { return true }
func (notFoundErr) IsConflict() bool    { return false }
func (notFoundErr) IsUnavailable() bool { return false }

// conflictErr mimics the repository conflict categorisation in tests.
type conflictErr struct{}

func (conflictErr) Error() string       { return "conflict" }
func (conflictErr) IsNotFound() bool    { return false }
func (conflictErr) IsConflict() bool    { return true }
func (conflictErr) IsUnavailable() bool { return false }

type hoursStub struct {
	night        bool
	nextBusiness time.Time
}

func (h *hoursStub) IsNight(time.Time) bool { return h.night }

func (h *hoursStub) NextBusinessTime(at time.Time) time.Time {
	if h.nextBusiness.IsZero() {
		return at
	}
	return h.nextBusiness
}

func notificationFixture(t *testing.T, hours *hoursStub, matched MatchedTranslators) (*notificationServiceImpl, *pushStub, *smsStub, *mailStub) {
	t.Helper()

	push := &pushStub{}
	sms := &smsStub{}
	mail := &mailStub{}
	service, err := NewNotificationService(NotificationServiceDeps{
		Push:    push,
		SMS:     sms,
		Mail:    mail,
		Matcher: &matcherStub{matched: matched},
		Directory: &directoryStub{
			users: map[string]UserProfile{
				"user_customer": {ID: "user_customer", Name: "Vårdcentralen Eken", Email: "booking@eken.se"},
			},
			languages: map[string]Language{"lang_ar": {ID: "lang_ar", Name: "Arabiska"}},
		},
		Hours:       hours,
		NormalSound: SoundProfile{Android: "normal", IOS: "normal.wav"},
		UrgentSound: SoundProfile{Android: "urgent", IOS: "urgent.wav"},
		Clock:       func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	return service, push, sms, mail
}

func offerJob() Job {
	return Job{
		ID:                     "job_1",
		CustomerID:             "user_customer",
		FromLanguageID:         "lang_ar",
		Status:                 domain.JobStatusPending,
		Due:                    time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC),
		PlannedDurationMinutes: 60,
		PhysicalDelivery:       true,
		Town:                   "Uppsala",
	}
}

func TestChannelForSuppressedRecipient(t *testing.T) {
	service, _, _, _ := notificationFixture(t, &hoursStub{}, MatchedTranslators{})

	recipient := UserProfile{ID: "user_t1", Preferences: domain.NotificationPreferences{NotGetNotification: true}}
	channel, sendAfter := service.ChannelFor(recipient, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	if channel != domain.ChannelNone {
		t.Fatalf("channel = %q, want %q", channel, domain.ChannelNone)
	}
	if sendAfter != nil {
		t.Fatalf("sendAfter = %v, want nil", sendAfter)
	}
}

func TestChannelForNightOptOutDelaysUntilMorning(t *testing.T) {
	morning := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	service, _, _, _ := notificationFixture(t, &hoursStub{night: true, nextBusiness: morning}, MatchedTranslators{})

	recipient := UserProfile{ID: "user_t1", Preferences: domain.NotificationPreferences{NotGetNighttime: true}}
	channel, sendAfter := service.ChannelFor(recipient, time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC))
	if channel != domain.ChannelPushDelayed {
		t.Fatalf("channel = %q, want %q", channel, domain.ChannelPushDelayed)
	}
	if sendAfter == nil || !sendAfter.Equal(morning) {
		t.Fatalf("sendAfter = %v, want %v", sendAfter, morning)
	}

	// Without the opt-out the night window does not delay anything.
	channel, sendAfter = service.ChannelFor(UserProfile{ID: "user_t2"}, time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC))
	if channel != domain.ChannelPushNow || sendAfter != nil {
		t.Fatalf("channel = %q sendAfter = %v, want immediate push", channel, sendAfter)
	}
}

func TestNotifyJobPostedSplitsImmediateAndDelayed(t *testing.T) {
	morning := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	matched := MatchedTranslators{
		Immediate: []UserProfile{{ID: "user_t1"}, {ID: "user_t2"}},
		Delayed: []DelayedRecipient{
			{Profile: UserProfile{ID: "user_t3"}, SendAfter: morning},
			{Profile: UserProfile{ID: "user_t4"}, SendAfter: morning},
		},
	}
	service, push, _, _ := notificationFixture(t, &hoursStub{}, matched)

	if err := service.NotifyJobPosted(context.Background(), offerJob(), ""); err != nil {
		t.Fatalf("NotifyJobPosted: %v", err)
	}
	if len(push.sent) != 2 {
		t.Fatalf("sent %d pushes, want 2", len(push.sent))
	}

	var immediate, delayed *NotificationMessage
	for i := range push.sent {
		if push.sent[i].SendAfter == nil {
			immediate = &push.sent[i]
		} else {
			delayed = &push.sent[i]
		}
	}
	if immediate == nil || delayed == nil {
		t.Fatalf("expected one immediate and one delayed push, got %+v", push.sent)
	}
	if len(immediate.Recipients) != 2 {
		t.Fatalf("immediate recipients = %v, want 2 ids", immediate.Recipients)
	}
	if len(delayed.Recipients) != 2 || !delayed.SendAfter.Equal(morning) {
		t.Fatalf("delayed push = %+v, want both delayed ids at %v", delayed, morning)
	}
	if immediate.TemplateKey != TemplateJobPostedScheduled {
		t.Fatalf("template = %q, want %q", immediate.TemplateKey, TemplateJobPostedScheduled)
	}
	if immediate.Sound.Android != "normal" {
		t.Fatalf("sound = %q, want normal profile for scheduled job", immediate.Sound.Android)
	}
}

func TestNotifyJobPostedUrgentSoundForImmediateJob(t *testing.T) {
	matched := MatchedTranslators{Immediate: []UserProfile{{ID: "user_t1"}}}
	service, push, _, _ := notificationFixture(t, &hoursStub{}, matched)

	job := offerJob()
	job.Immediate = true
	if err := service.NotifyJobPosted(context.Background(), job, ""); err != nil {
		t.Fatalf("NotifyJobPosted: %v", err)
	}
	if len(push.sent) != 1 {
		t.Fatalf("sent %d pushes, want 1", len(push.sent))
	}
	if push.sent[0].Sound.Android != "urgent" {
		t.Fatalf("sound = %q, want urgent profile", push.sent[0].Sound.Android)
	}
	if push.sent[0].TemplateKey != TemplateJobPostedImmediate {
		t.Fatalf("template = %q, want %q", push.sent[0].TemplateKey, TemplateJobPostedImmediate)
	}
}

func TestBroadcastJobBySMSCountsOnlyDelivered(t *testing.T) {
	matched := MatchedTranslators{
		Immediate: []UserProfile{
			{ID: "user_t1", Mobile: "+46701111111"},
			{ID: "user_t2"}, // no mobile on file
			{ID: "user_t3", Mobile: "+46703333333"},
		},
		Delayed: []DelayedRecipient{
			{Profile: UserProfile{ID: "user_t4", Mobile: "+46704444444"}, SendAfter: time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)},
		},
	}
	service, _, sms, _ := notificationFixture(t, &hoursStub{}, matched)
	sms.fail = map[string]error{"+46703333333": errors.New("gateway timeout")}

	contacted, err := service.BroadcastJobBySMS(context.Background(), offerJob())
	if err != nil {
		t.Fatalf("BroadcastJobBySMS: %v", err)
	}
	if contacted != 2 {
		t.Fatalf("contacted = %d, want 2", contacted)
	}
	for _, msg := range sms.sent {
		if msg.body == "" {
			t.Fatalf("empty sms body for %s", msg.to)
		}
	}
}

func TestNotifySessionReminderSchedulesBeforeDue(t *testing.T) {
	service, push, _, _ := notificationFixture(t, &hoursStub{}, MatchedTranslators{})

	job := offerJob()
	if err := service.NotifySessionReminder(context.Background(), job, []string{"user_customer", "user_t1"}); err != nil {
		t.Fatalf("NotifySessionReminder: %v", err)
	}
	if len(push.sent) != 1 {
		t.Fatalf("sent %d pushes, want 1", len(push.sent))
	}
	wantAt := job.Due.Add(-time.Hour)
	if push.sent[0].SendAfter == nil || !push.sent[0].SendAfter.Equal(wantAt) {
		t.Fatalf("sendAfter = %v, want %v", push.sent[0].SendAfter, wantAt)
	}
}

func TestNotifySessionReminderFiresNowWhenDueIsClose(t *testing.T) {
	service, push, _, _ := notificationFixture(t, &hoursStub{}, MatchedTranslators{})

	job := offerJob()
	job.Due = time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC) // 30 minutes out
	if err := service.NotifySessionReminder(context.Background(), job, []string{"user_t1"}); err != nil {
		t.Fatalf("NotifySessionReminder: %v", err)
	}
	if len(push.sent) != 1 || push.sent[0].SendAfter != nil {
		t.Fatalf("push = %+v, want an immediate reminder", push.sent)
	}
}

func TestNotifySessionEndedSendsBothMails(t *testing.T) {
	service, _, _, mail := notificationFixture(t, &hoursStub{}, MatchedTranslators{})

	job := offerJob()
	job.ActualSessionDuration = "1:05:30"
	customer := UserProfile{ID: "user_customer", Name: "Vårdcentralen Eken", Email: "booking@eken.se"}
	translator := UserProfile{ID: "user_t1", Name: "Amira Haddad", Email: "amira@example.se"}

	if err := service.NotifySessionEnded(context.Background(), job, customer, translator); err != nil {
		t.Fatalf("NotifySessionEnded: %v", err)
	}
	if len(mail.sent) != 2 {
		t.Fatalf("sent %d mails, want 2", len(mail.sent))
	}
	if mail.sent[0].template != TemplateSessionEndedInvoice || mail.sent[0].toEmail != customer.Email {
		t.Fatalf("first mail = %+v, want invoice to customer", mail.sent[0])
	}
	if mail.sent[1].template != TemplateSessionEndedSalary || mail.sent[1].toEmail != translator.Email {
		t.Fatalf("second mail = %+v, want salary summary to translator", mail.sent[1])
	}
	for _, m := range mail.sent {
		if m.payload["session_time_text"] == "" {
			t.Fatalf("mail %q missing session time text", m.template)
		}
	}
}

func TestSendBookingReceivedPrefersContactEmail(t *testing.T) {
	service, _, _, mail := notificationFixture(t, &hoursStub{}, MatchedTranslators{})

	job := offerJob()
	job.ContactEmail = "reception@eken.se"
	customer := UserProfile{ID: "user_customer", Name: "Vårdcentralen Eken", Email: "booking@eken.se"}

	if err := service.SendBookingReceived(context.Background(), job, customer); err != nil {
		t.Fatalf("SendBookingReceived: %v", err)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mail.sent))
	}
	if mail.sent[0].toEmail != "reception@eken.se" || mail.sent[0].template != TemplateBookingReceived {
		t.Fatalf("mail = %+v, want booking confirmation to contact address", mail.sent[0])
	}
}
