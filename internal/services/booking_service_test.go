package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/tolkfield/api/internal/domain"
	"github.com/tolkfield/api/internal/repositories"
)

type stubJobRepo struct {
	mu   sync.Mutex
	jobs map[string]domain.Job

	assignments *stubAssignmentRepo

	insertErr error
	updateErr error

	listFilter repositories.JobListFilter
	listPage   domain.CursorPage[domain.Job]
	listErr    error
}

func newStubJobRepo(assignments *stubAssignmentRepo) *stubJobRepo {
	return &stubJobRepo{jobs: map[string]domain.Job{}, assignments: assignments}
}

func (r *stubJobRepo) Insert(_ context.Context, job domain.Job) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *stubJobRepo) Update(_ context.Context, job domain.Job) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return notFoundErr{}
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *stubJobRepo) FindByID(_ context.Context, jobID string) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.Job{}, notFoundErr{}
	}
	return job, nil
}

func (r *stubJobRepo) List(_ context.Context, filter repositories.JobListFilter) (domain.CursorPage[domain.Job], error) {
	r.listFilter = filter
	return r.listPage, r.listErr
}

func (r *stubJobRepo) AcceptIfPending(_ context.Context, jobID string, assignment domain.TranslatorAssignment) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.Job{}, notFoundErr{}
	}
	if job.Status != domain.JobStatusPending {
		return domain.Job{}, conflictErr{}
	}
	job.Status = domain.JobStatusAssigned
	job.UpdatedAt = assignment.CreatedAt
	r.jobs[jobID] = job
	r.assignments.put(assignment)
	return job, nil
}

type stubAssignmentRepo struct {
	mu   sync.Mutex
	rows map[string]domain.TranslatorAssignment

	busyAt   map[string]time.Time
	declined map[string]bool

	listPage domain.CursorPage[domain.TranslatorAssignment]
}

func newStubAssignmentRepo() *stubAssignmentRepo {
	return &stubAssignmentRepo{
		rows:     map[string]domain.TranslatorAssignment{},
		busyAt:   map[string]time.Time{},
		declined: map[string]bool{},
	}
}

func (r *stubAssignmentRepo) put(assignment domain.TranslatorAssignment) {
	r.rows[assignment.ID] = assignment
}

func (r *stubAssignmentRepo) Insert(_ context.Context, assignment domain.TranslatorAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(assignment)
	return nil
}

func (r *stubAssignmentRepo) FindLiveByJob(_ context.Context, jobID string) (domain.TranslatorAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.JobID == jobID && row.Live() {
			return row, nil
		}
	}
	return domain.TranslatorAssignment{}, notFoundErr{}
}

func (r *stubAssignmentRepo) CancelLiveByJob(_ context.Context, jobID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, row := range r.rows {
		if row.JobID == jobID && row.Live() {
			cancelAt := at
			row.CancelAt = &cancelAt
			r.rows[id] = row
			count++
		}
	}
	return count, nil
}

func (r *stubAssignmentRepo) Complete(_ context.Context, assignmentID string, at time.Time, completedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[assignmentID]
	if !ok {
		return notFoundErr{}
	}
	completedAt := at
	row.CompletedAt = &completedAt
	row.CompletedBy = completedBy
	r.rows[assignmentID] = row
	return nil
}

func (r *stubAssignmentRepo) HasBookingAt(_ context.Context, translatorID string, due time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.busyAt[translatorID]
	return ok && at.Equal(due), nil
}

func (r *stubAssignmentRepo) WasDeclinedBy(_ context.Context, jobID string, translatorID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.declined[jobID+"/"+translatorID], nil
}

func (r *stubAssignmentRepo) ListByTranslator(_ context.Context, _ string, _ domain.Pagination) (domain.CursorPage[domain.TranslatorAssignment], error) {
	return r.listPage, nil
}

type stubThrottleRepo struct {
	ignored []string
}

func (r *stubThrottleRepo) FindByID(_ context.Context, throttleID string) (domain.LoginThrottle, error) {
	return domain.LoginThrottle{ID: throttleID}, nil
}

func (r *stubThrottleRepo) SetIgnored(_ context.Context, throttleID string, _ time.Time) error {
	r.ignored = append(r.ignored, throttleID)
	return nil
}

func (r *stubThrottleRepo) List(context.Context, repositories.ThrottleListFilter) (domain.CursorPage[domain.LoginThrottle], error) {
	return domain.CursorPage[domain.LoginThrottle]{}, nil
}

// notificationRecorder captures every dispatch call made by the lifecycle.
type notificationRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (n *notificationRecorder) record(call string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call)
}

func (n *notificationRecorder) has(prefix string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, call := range n.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

func (n *notificationRecorder) ChannelFor(UserProfile, time.Time) (NotificationChannel, *time.Time) {
	return domain.ChannelPushNow, nil
}

func (n *notificationRecorder) NotifyJobPosted(_ context.Context, job Job, excludeUserID string) error {
	n.record("posted:" + job.ID + ":" + excludeUserID)
	return nil
}

func (n *notificationRecorder) BroadcastJobBySMS(_ context.Context, job Job) (int, error) {
	n.record("sms:" + job.ID)
	return 1, nil
}

func (n *notificationRecorder) NotifyJobAccepted(_ context.Context, job Job, translator UserProfile) error {
	n.record("accepted:" + job.ID + ":" + translator.ID)
	return nil
}

func (n *notificationRecorder) NotifySessionReminder(_ context.Context, job Job, recipientIDs []string) error {
	n.record("reminder:" + job.ID + ":" + strings.Join(recipientIDs, ","))
	return nil
}

func (n *notificationRecorder) NotifyJobCancelled(_ context.Context, job Job, recipientIDs []string) error {
	n.record("cancelled:" + job.ID + ":" + strings.Join(recipientIDs, ","))
	return nil
}

func (n *notificationRecorder) NotifyJobChanged(_ context.Context, job Job, change JobChange, recipientIDs []string) error {
	n.record("changed:" + job.ID + ":" + string(change) + ":" + strings.Join(recipientIDs, ","))
	return nil
}

func (n *notificationRecorder) NotifySessionEnded(_ context.Context, job Job, customer UserProfile, translator UserProfile) error {
	n.record("ended:" + job.ID + ":" + customer.ID + ":" + translator.ID)
	return nil
}

func (n *notificationRecorder) SendBookingReceived(_ context.Context, job Job, customer UserProfile) error {
	n.record("received:" + job.ID + ":" + customer.ID)
	return nil
}

type eventsStub struct {
	mu       sync.Mutex
	messages []JobEventMessage
}

func (e *eventsStub) PublishJobEvent(_ context.Context, message JobEventMessage) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, message)
	return "msg_1", nil
}

func (e *eventsStub) events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.messages))
	for _, message := range e.messages {
		names = append(names, message.Event)
	}
	return names
}

type bookingFixture struct {
	service     BookingService
	jobs        *stubJobRepo
	assignments *stubAssignmentRepo
	throttles   *stubThrottleRepo
	directory   *directoryStub
	notices     *notificationRecorder
	events      *eventsStub
	now         time.Time
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	assignments := newStubAssignmentRepo()
	jobs := newStubJobRepo(assignments)
	throttles := &stubThrottleRepo{}
	notices := &notificationRecorder{}
	events := &eventsStub{}
	directory := &directoryStub{
		users: map[string]UserProfile{
			"user_customer": {ID: "user_customer", Name: "Vårdcentralen Eken", Email: "booking@eken.se", ConsumerType: "paid", Town: "Uppsala"},
			"user_t1": {ID: "user_t1", Name: "Amira Haddad", Email: "amira@example.se",
				Type: domain.TranslatorTypeProfessional, Level: domain.LevelCertified,
				LanguageIDs: []string{"lang_ar"}, Active: true},
		},
		languages: map[string]Language{"lang_ar": {ID: "lang_ar", Name: "Arabiska"}},
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	counter := 0
	service, err := NewBookingService(BookingServiceDeps{
		Jobs:          jobs,
		Assignments:   assignments,
		Directory:     directory,
		Throttles:     throttles,
		Matcher:       &matcherStub{},
		Notifications: notices,
		Events:        events,
		Location:      time.UTC,
		Clock:         func() time.Time { return now },
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("%04d", counter)
		},
	})
	if err != nil {
		t.Fatalf("NewBookingService: %v", err)
	}

	return &bookingFixture{
		service:     service,
		jobs:        jobs,
		assignments: assignments,
		throttles:   throttles,
		directory:   directory,
		notices:     notices,
		events:      events,
		now:         now,
	}
}

func (f *bookingFixture) seedJob(t *testing.T, job domain.Job) domain.Job {
	t.Helper()
	if job.ID == "" {
		job.ID = "job_seed"
	}
	if job.CustomerID == "" {
		job.CustomerID = "user_customer"
	}
	if job.FromLanguageID == "" {
		job.FromLanguageID = "lang_ar"
	}
	if job.Due.IsZero() {
		job.Due = f.now.Add(48 * time.Hour)
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if job.PlannedDurationMinutes == 0 {
		job.PlannedDurationMinutes = 60
	}
	f.jobs.jobs[job.ID] = job
	return job
}

func (f *bookingFixture) seedLiveAssignment(jobID, translatorID string) domain.TranslatorAssignment {
	assignment := domain.TranslatorAssignment{
		ID:           "tra_seed_" + jobID,
		JobID:        jobID,
		TranslatorID: translatorID,
		CreatedAt:    f.now.Add(-time.Hour),
	}
	f.assignments.put(assignment)
	return assignment
}

func TestCreateJobValidation(t *testing.T) {
	f := newBookingFixture(t)
	base := CreateJobCommand{
		Actor:            ActorRef{ID: "user_customer", Role: RoleCustomer},
		FromLanguageID:   "lang_ar",
		DueDate:          "2026-03-12",
		DueTime:          "09:00",
		DurationMinutes:  60,
		PhysicalDelivery: true,
	}

	cases := []struct {
		name   string
		mutate func(*CreateJobCommand)
		field  string
	}{
		{"missing language", func(c *CreateJobCommand) { c.FromLanguageID = "" }, "from_language_id"},
		{"unknown language", func(c *CreateJobCommand) { c.FromLanguageID = "lang_xx" }, "from_language_id"},
		{"missing duration", func(c *CreateJobCommand) { c.DurationMinutes = 0 }, "duration"},
		{"missing due date", func(c *CreateJobCommand) { c.DueDate = "" }, "due_date"},
		{"missing due time", func(c *CreateJobCommand) { c.DueTime = "" }, "due_time"},
		{"past due", func(c *CreateJobCommand) { c.DueDate = "2026-03-01" }, "due_date"},
		{"no delivery mode", func(c *CreateJobCommand) { c.PhysicalDelivery = false }, "delivery"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := base
			tc.mutate(&cmd)
			_, err := f.service.CreateJob(context.Background(), cmd)
			if !errors.Is(err, ErrBookingInvalidInput) {
				t.Fatalf("err = %v, want invalid input", err)
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Fatalf("err %q does not name field %q", err, tc.field)
			}
		})
	}
}

func TestCreateJobScheduled(t *testing.T) {
	f := newBookingFixture(t)

	created, err := f.service.CreateJob(context.Background(), CreateJobCommand{
		Actor:            ActorRef{ID: "user_customer", Role: RoleCustomer},
		FromLanguageID:   "lang_ar",
		JobForOptions:    []string{domain.JobForFemale, domain.JobForNormal, domain.JobForCertified},
		DueDate:          "2026-03-12",
		DueTime:          "09:00",
		DurationMinutes:  90,
		PhysicalDelivery: true,
		Reference:        "  Avd <b>7</b>  ",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job := created.Job
	if job.Status != domain.JobStatusPending {
		t.Fatalf("status = %q, want pending", job.Status)
	}
	if job.Gender != domain.GenderFemale || job.Certified != domain.CertificationBoth {
		t.Fatalf("jobFor derived %q/%q, want female/both", job.Gender, job.Certified)
	}
	if job.Kind != domain.JobKindPaid {
		t.Fatalf("kind = %q, want paid from consumer type", job.Kind)
	}
	wantDue := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	if !job.Due.Equal(wantDue) {
		t.Fatalf("due = %v, want %v", job.Due, wantDue)
	}
	// Notice is under 72h, so the acceptance window is 16h from creation.
	if want := f.now.Add(16 * time.Hour); !job.WillExpireAt.Equal(want) {
		t.Fatalf("willExpireAt = %v, want %v", job.WillExpireAt, want)
	}
	if job.Reference != "Avd 7" {
		t.Fatalf("reference = %q, want sanitised text", job.Reference)
	}
	if got := created.DisplayJobFor; len(got) != 3 || got[0] != domain.JobForFemale {
		t.Fatalf("displayJobFor = %v, want round-trip of request", got)
	}

	// Scheduled jobs wait for contact details before fanning out.
	if f.notices.has("posted:") || f.notices.has("sms:") {
		t.Fatalf("scheduled job fanned out at creation: %v", f.notices.calls)
	}
	if got := f.events.events(); len(got) != 1 || got[0] != EventJobCreated {
		t.Fatalf("events = %v, want single job.created", got)
	}
}

func TestCreateJobImmediateFansOut(t *testing.T) {
	f := newBookingFixture(t)

	created, err := f.service.CreateJob(context.Background(), CreateJobCommand{
		Actor:           ActorRef{ID: "user_customer", Role: RoleCustomer},
		FromLanguageID:  "lang_ar",
		Immediate:       true,
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if !created.Job.Immediate || !created.Job.PhoneDelivery {
		t.Fatalf("immediate job = %+v, want phone delivery set", created.Job)
	}
	if want := f.now.Add(5 * time.Minute); !created.Job.Due.Equal(want) {
		t.Fatalf("due = %v, want now plus lead", created.Job.Due)
	}
	if !f.notices.has("posted:" + created.Job.ID) {
		t.Fatalf("immediate job was not pushed: %v", f.notices.calls)
	}
	if !f.notices.has("sms:" + created.Job.ID) {
		t.Fatalf("immediate job was not broadcast by sms: %v", f.notices.calls)
	}
}

func TestAcceptJobHappyPath(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1"})

	accepted, err := f.service.AcceptJob(context.Background(), AcceptJobCommand{
		Actor: ActorRef{ID: "user_t1", Role: RoleTranslator},
		JobID: job.ID,
	})
	if err != nil {
		t.Fatalf("AcceptJob: %v", err)
	}
	if accepted.Status != domain.JobStatusAssigned {
		t.Fatalf("status = %q, want assigned", accepted.Status)
	}
	live, err := f.assignments.FindLiveByJob(context.Background(), job.ID)
	if err != nil || live.TranslatorID != "user_t1" {
		t.Fatalf("live assignment = %+v (%v), want user_t1", live, err)
	}
	if !f.notices.has("accepted:" + job.ID + ":user_t1") {
		t.Fatalf("customer not told about acceptance: %v", f.notices.calls)
	}
	if !f.notices.has("reminder:" + job.ID) {
		t.Fatalf("session reminder not scheduled: %v", f.notices.calls)
	}
}

func TestAcceptJobRaceSingleWinner(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_race"})

	const racers = 8
	for i := 0; i < racers; i++ {
		id := fmt.Sprintf("user_racer_%d", i)
		f.directory.users[id] = UserProfile{ID: id, Type: domain.TranslatorTypeProfessional, Active: true}
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.AcceptJob(context.Background(), AcceptJobCommand{
				Actor: ActorRef{ID: fmt.Sprintf("user_racer_%d", i), Role: RoleTranslator},
				JobID: job.ID,
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyTaken):
		default:
			t.Fatalf("unexpected race error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestAcceptJobDoubleBookingRejected(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1"})
	f.assignments.busyAt["user_t1"] = job.Due

	_, err := f.service.AcceptJob(context.Background(), AcceptJobCommand{
		Actor: ActorRef{ID: "user_t1", Role: RoleTranslator},
		JobID: job.ID,
	})
	if !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("err = %v, want ErrAlreadyBooked", err)
	}
}

func TestCustomerCancelOutsideWindow(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusAssigned, Due: f.now.Add(24*time.Hour + time.Minute)})
	f.seedLiveAssignment(job.ID, "user_t1")

	cancelled, err := f.service.CancelJob(context.Background(), CancelJobCommand{
		Actor: ActorRef{ID: "user_customer", Role: RoleCustomer},
		JobID: job.ID,
	})
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if cancelled.Status != domain.JobStatusWithdrawBefore24 {
		t.Fatalf("status = %q, want withdrawbefore24 at 24h01m", cancelled.Status)
	}
	if cancelled.WithdrawAt == nil {
		t.Fatal("withdrawAt not set")
	}
	if !f.notices.has("cancelled:" + job.ID + ":user_t1") {
		t.Fatalf("translator not told: %v", f.notices.calls)
	}
	if _, err := f.assignments.FindLiveByJob(context.Background(), job.ID); !errors.Is(err, notFoundErr{}) {
		t.Fatalf("live assignment survived withdraw: %v", err)
	}
}

func TestCustomerCancelInsideWindow(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusAssigned, Due: f.now.Add(23*time.Hour + 59*time.Minute)})
	f.seedLiveAssignment(job.ID, "user_t1")

	cancelled, err := f.service.CancelJob(context.Background(), CancelJobCommand{
		Actor: ActorRef{ID: "user_customer", Role: RoleCustomer},
		JobID: job.ID,
	})
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if cancelled.Status != domain.JobStatusWithdrawAfter24 {
		t.Fatalf("status = %q, want withdrawafter24 at 23h59m", cancelled.Status)
	}
}

func TestCustomerCancelExactlyAtWindowBoundary(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusAssigned, Due: f.now.Add(24 * time.Hour)})
	f.seedLiveAssignment(job.ID, "user_t1")

	cancelled, err := f.service.CancelJob(context.Background(), CancelJobCommand{
		Actor: ActorRef{ID: "user_customer", Role: RoleCustomer},
		JobID: job.ID,
	})
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	// A full 24 hours of notice still counts as early withdrawal.
	if cancelled.Status != domain.JobStatusWithdrawBefore24 {
		t.Fatalf("status = %q, want withdrawbefore24 at exactly 24h", cancelled.Status)
	}
}

func TestTranslatorCancelOutsideWindowRepostsJob(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusAssigned, Due: f.now.Add(48 * time.Hour)})
	f.seedLiveAssignment(job.ID, "user_t1")

	reposted, err := f.service.CancelJob(context.Background(), CancelJobCommand{
		Actor: ActorRef{ID: "user_t1", Role: RoleTranslator},
		JobID: job.ID,
	})
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if reposted.Status != domain.JobStatusPending {
		t.Fatalf("status = %q, want pending", reposted.Status)
	}
	if !reposted.CreatedAt.Equal(f.now) {
		t.Fatalf("createdAt = %v, want refreshed to now", reposted.CreatedAt)
	}
	// 48h notice falls in the <=72h bracket: 16h window from the refreshed creation.
	if want := f.now.Add(16 * time.Hour); !reposted.WillExpireAt.Equal(want) {
		t.Fatalf("willExpireAt = %v, want %v", reposted.WillExpireAt, want)
	}
	// The decliner is excluded from the repost fan-out.
	if !f.notices.has("posted:" + job.ID + ":user_t1") {
		t.Fatalf("repost fan-out missing or not excluding decliner: %v", f.notices.calls)
	}
}

func TestTranslatorCancelInsideWindowRejected(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusAssigned, Due: f.now.Add(23 * time.Hour)})
	f.seedLiveAssignment(job.ID, "user_t1")

	_, err := f.service.CancelJob(context.Background(), CancelJobCommand{
		Actor: ActorRef{ID: "user_t1", Role: RoleTranslator},
		JobID: job.ID,
	})
	if !errors.Is(err, ErrCancellationWindowClosed) {
		t.Fatalf("err = %v, want ErrCancellationWindowClosed", err)
	}
	if got := f.jobs.jobs[job.ID].Status; got != domain.JobStatusAssigned {
		t.Fatalf("status = %q, job must stay assigned", got)
	}
}

func TestAdminCancelOutsideWindowRepostsJob(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusAssigned, Due: f.now.Add(48 * time.Hour)})
	old := f.seedLiveAssignment(job.ID, "user_t1")

	cancelled, err := f.service.CancelJob(context.Background(), CancelJobCommand{
		Actor: ActorRef{ID: "user_admin", Role: RoleAdmin},
		JobID: job.ID,
	})
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	// An admin cancellation hands the job back, it never withdraws it.
	if cancelled.Status != domain.JobStatusPending {
		t.Fatalf("status = %q, want pending", cancelled.Status)
	}
	if !cancelled.CreatedAt.Equal(f.now) {
		t.Fatalf("createdAt = %v, want refreshed to now", cancelled.CreatedAt)
	}
	if row := f.assignments.rows[old.ID]; row.CancelAt == nil {
		t.Fatal("assignment survived admin cancel")
	}
	// The released translator is excluded from the repost fan-out.
	if !f.notices.has("posted:" + job.ID + ":user_t1") {
		t.Fatalf("repost fan-out missing or not excluding translator: %v", f.notices.calls)
	}
}

func TestAdminCancelInsideWindowRejected(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusAssigned, Due: f.now.Add(23 * time.Hour)})
	f.seedLiveAssignment(job.ID, "user_t1")

	_, err := f.service.CancelJob(context.Background(), CancelJobCommand{
		Actor: ActorRef{ID: "user_admin", Role: RoleAdmin},
		JobID: job.ID,
	})
	if !errors.Is(err, ErrCancellationWindowClosed) {
		t.Fatalf("err = %v, want ErrCancellationWindowClosed", err)
	}
	if got := f.jobs.jobs[job.ID].Status; got != domain.JobStatusAssigned {
		t.Fatalf("status = %q, job must stay assigned", got)
	}
}

func TestEndSessionComputesDurationAndMails(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusStarted, Due: f.now.Add(-65 * time.Minute)})
	f.seedLiveAssignment(job.ID, "user_t1")

	ended, err := f.service.EndSession(context.Background(), EndSessionCommand{
		Actor: ActorRef{ID: "user_t1", Role: RoleTranslator},
		JobID: job.ID,
	})
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ended.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed", ended.Status)
	}
	if ended.ActualSessionDuration != "1:05:00" {
		t.Fatalf("sessionDuration = %q, want 1:05:00", ended.ActualSessionDuration)
	}
	if !f.notices.has("ended:" + job.ID + ":user_customer:user_t1") {
		t.Fatalf("session-ended mails not sent: %v", f.notices.calls)
	}
	if got := f.events.events(); got[len(got)-1] != EventJobSessionEnded {
		t.Fatalf("events = %v, want session ended last", got)
	}
}

func TestEndSessionIdempotent(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{
		ID:                    "job_1",
		Status:                domain.JobStatusCompleted,
		ActualSessionDuration: "0:45:00",
	})

	again, err := f.service.EndSession(context.Background(), EndSessionCommand{
		Actor: ActorRef{ID: "user_t1", Role: RoleTranslator},
		JobID: job.ID,
	})
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if again.ActualSessionDuration != "0:45:00" {
		t.Fatalf("sessionDuration = %q, second call must not recompute", again.ActualSessionDuration)
	}
	if len(f.notices.calls) != 0 {
		t.Fatalf("repeat end sent notifications: %v", f.notices.calls)
	}
}

func TestEndSessionOnUnstartedJobIsNoOp(t *testing.T) {
	for _, status := range []JobStatus{
		domain.JobStatusPending,
		domain.JobStatusAssigned,
		domain.JobStatusWithdrawAfter24,
		domain.JobStatusTimedOut,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newBookingFixture(t)
			job := f.seedJob(t, domain.Job{ID: "job_1", Status: status})

			same, err := f.service.EndSession(context.Background(), EndSessionCommand{
				Actor: ActorRef{ID: "user_t1", Role: RoleTranslator},
				JobID: job.ID,
			})
			if err != nil {
				t.Fatalf("EndSession: %v", err)
			}
			if same.Status != status {
				t.Fatalf("status = %q, want stored %q back", same.Status, status)
			}
			if got := f.jobs.jobs[job.ID].Status; got != status {
				t.Fatalf("persisted status = %q, want untouched %q", got, status)
			}
			if len(f.notices.calls) != 0 {
				t.Fatalf("no-op end sent notifications: %v", f.notices.calls)
			}
		})
	}
}

func TestEndSessionExplicitSessionTime(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusStarted})
	f.seedLiveAssignment(job.ID, "user_t1")

	ended, err := f.service.EndSession(context.Background(), EndSessionCommand{
		Actor:       ActorRef{ID: "user_admin", Role: RoleAdmin},
		JobID:       job.ID,
		SessionTime: "2:15:30",
	})
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ended.ActualSessionDuration != "2:15:30" {
		t.Fatalf("sessionDuration = %q, want supplied value", ended.ActualSessionDuration)
	}

	if _, err := f.service.EndSession(context.Background(), EndSessionCommand{
		Actor:       ActorRef{ID: "user_admin", Role: RoleAdmin},
		JobID:       "job_missing",
		SessionTime: "bogus",
	}); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("err = %v, want not found before parsing", err)
	}
}

func TestMarkCustomerNoShowStaysQuiet(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusAssigned})
	assignment := f.seedLiveAssignment(job.ID, "user_t1")

	marked, err := f.service.MarkCustomerNoShow(context.Background(), NoShowCommand{
		Actor: ActorRef{ID: "user_t1", Role: RoleTranslator},
		JobID: job.ID,
	})
	if err != nil {
		t.Fatalf("MarkCustomerNoShow: %v", err)
	}
	if marked.Status != domain.JobStatusNotCarriedOutCustomer {
		t.Fatalf("status = %q, want not_carried_out_customer", marked.Status)
	}
	if len(f.notices.calls) != 0 {
		t.Fatalf("no-show must not notify anyone: %v", f.notices.calls)
	}
	row := f.assignments.rows[assignment.ID]
	if row.CompletedAt == nil || row.CompletedBy != "user_t1" {
		t.Fatalf("assignment not closed by translator: %+v", row)
	}
}

func TestMarkCustomerNoShowByAdminStillClosedByTranslator(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusStarted})
	assignment := f.seedLiveAssignment(job.ID, "user_t1")

	if _, err := f.service.MarkCustomerNoShow(context.Background(), NoShowCommand{
		Actor: ActorRef{ID: "user_admin", Role: RoleAdmin},
		JobID: job.ID,
	}); err != nil {
		t.Fatalf("MarkCustomerNoShow: %v", err)
	}
	row := f.assignments.rows[assignment.ID]
	if row.CompletedBy != "user_t1" {
		t.Fatalf("completedBy = %q, the translator self-closes regardless of reporter", row.CompletedBy)
	}
}

func TestReopenTimedOutCreatesNewJob(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_old", Status: domain.JobStatusTimedOut, Due: f.now.Add(96 * time.Hour)})

	reopened, err := f.service.Reopen(context.Background(), ReopenCommand{
		Actor: ActorRef{ID: "user_admin", Role: RoleAdmin},
		JobID: job.ID,
	})
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if reopened.ID == job.ID {
		t.Fatal("timed-out reopen must create a new job")
	}
	if reopened.Status != domain.JobStatusPending {
		t.Fatalf("status = %q, want pending", reopened.Status)
	}
	if want := "reopening of booking #job_old"; !strings.Contains(reopened.AdminComments, want) {
		t.Fatalf("adminComments = %q, want reference to original", reopened.AdminComments)
	}
	if got := f.jobs.jobs[job.ID].Status; got != domain.JobStatusTimedOut {
		t.Fatalf("original job status = %q, must stay timedout", got)
	}
	if !f.notices.has("posted:" + reopened.ID) {
		t.Fatalf("reopened job not fanned out: %v", f.notices.calls)
	}
}

func TestReopenLiveJobResetsInPlace(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Status: domain.JobStatusAssigned, Due: f.now.Add(80 * time.Hour)})
	f.seedLiveAssignment(job.ID, "user_t1")

	reopened, err := f.service.Reopen(context.Background(), ReopenCommand{
		Actor: ActorRef{ID: "user_admin", Role: RoleAdmin},
		JobID: job.ID,
	})
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if reopened.ID != job.ID || reopened.Status != domain.JobStatusPending {
		t.Fatalf("reopened = %+v, want same job back to pending", reopened)
	}
	if _, err := f.assignments.FindLiveByJob(context.Background(), job.ID); err == nil {
		t.Fatal("live assignment survived reopen")
	}
}

func TestAttachContactDetailsReleasesScheduledJob(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1"})

	updated, err := f.service.AttachContactDetails(context.Background(), AttachContactCommand{
		Actor:        ActorRef{ID: "user_customer", Role: RoleCustomer},
		JobID:        job.ID,
		ContactEmail: "reception@eken.se",
		Address:      "Storgatan 1<script>x</script>",
		Instructions: "Ring på &amp; vänta",
		Town:         "Uppsala",
	})
	if err != nil {
		t.Fatalf("AttachContactDetails: %v", err)
	}
	if updated.Address != "Storgatan 1" {
		t.Fatalf("address = %q, want markup stripped", updated.Address)
	}
	if updated.Instructions != "Ring på & vänta" {
		t.Fatalf("instructions = %q, want entity decoded", updated.Instructions)
	}
	if !f.notices.has("received:" + job.ID) {
		t.Fatalf("booking-received mail missing: %v", f.notices.calls)
	}
	if !f.notices.has("posted:"+job.ID) || !f.notices.has("sms:"+job.ID) {
		t.Fatalf("scheduled job not released to matching pool: %v", f.notices.calls)
	}
}

func TestAttachContactDetailsImmediateSkipsRefanout(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1", Immediate: true})

	if _, err := f.service.AttachContactDetails(context.Background(), AttachContactCommand{
		Actor:        ActorRef{ID: "user_customer", Role: RoleCustomer},
		JobID:        job.ID,
		ContactEmail: "reception@eken.se",
	}); err != nil {
		t.Fatalf("AttachContactDetails: %v", err)
	}
	if f.notices.has("posted:") {
		t.Fatalf("immediate job re-broadcast on contact attach: %v", f.notices.calls)
	}
	if !f.notices.has("received:" + job.ID) {
		t.Fatalf("booking-received mail missing: %v", f.notices.calls)
	}
}

func TestActiveJobsForCustomerSplitsEmergency(t *testing.T) {
	f := newBookingFixture(t)
	f.jobs.listPage = domain.CursorPage[domain.Job]{Items: []domain.Job{
		{ID: "job_1", Immediate: true, Status: domain.JobStatusPending},
		{ID: "job_2", Status: domain.JobStatusAssigned},
	}}

	jobs, err := f.service.ActiveJobsFor(context.Background(), "user_customer")
	if err != nil {
		t.Fatalf("ActiveJobsFor: %v", err)
	}
	if len(jobs.Emergency) != 1 || jobs.Emergency[0].ID != "job_1" {
		t.Fatalf("emergency = %+v", jobs.Emergency)
	}
	if len(jobs.Scheduled) != 1 || jobs.Scheduled[0].ID != "job_2" {
		t.Fatalf("scheduled = %+v", jobs.Scheduled)
	}
	wantStatuses := []domain.JobStatus{domain.JobStatusPending, domain.JobStatusAssigned, domain.JobStatusStarted}
	if len(f.jobs.listFilter.Status) != len(wantStatuses) {
		t.Fatalf("filter statuses = %v, want live statuses", f.jobs.listFilter.Status)
	}
}

func TestIgnoreFlagsAndThrottle(t *testing.T) {
	f := newBookingFixture(t)
	job := f.seedJob(t, domain.Job{ID: "job_1"})
	admin := ActorRef{ID: "user_admin", Role: RoleAdmin}

	if err := f.service.IgnoreExpiring(context.Background(), job.ID, admin); err != nil {
		t.Fatalf("IgnoreExpiring: %v", err)
	}
	if !f.jobs.jobs[job.ID].IgnoreAlerts {
		t.Fatal("ignoreAlerts not set")
	}
	if err := f.service.IgnoreExpired(context.Background(), job.ID, admin); err != nil {
		t.Fatalf("IgnoreExpired: %v", err)
	}
	if !f.jobs.jobs[job.ID].IgnoreExpired {
		t.Fatal("ignoreExpired not set")
	}
	if err := f.service.IgnoreThrottle(context.Background(), "thr_1", admin); err != nil {
		t.Fatalf("IgnoreThrottle: %v", err)
	}
	if len(f.throttles.ignored) != 1 || f.throttles.ignored[0] != "thr_1" {
		t.Fatalf("throttle not ignored: %v", f.throttles.ignored)
	}

	if err := f.service.IgnoreExpiring(context.Background(), job.ID, ActorRef{ID: "user_t1", Role: RoleTranslator}); !errors.Is(err, ErrBookingInvalidInput) {
		t.Fatalf("non-admin ignore err = %v, want invalid input", err)
	}
}
