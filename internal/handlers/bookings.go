package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tolkfield/api/internal/domain"
	"github.com/tolkfield/api/internal/platform/httpx"
	"github.com/tolkfield/api/internal/platform/pagination"
	"github.com/tolkfield/api/internal/services"
)

const (
	maxBookingBodySize = 64 * 1024

	createJobRateLimit  = 60
	createJobRateWindow = time.Minute
)

type createJobRequest struct {
	CustomerID       string   `json:"customer_id"`
	FromLanguageID   string   `json:"from_language_id"`
	JobFor           []string `json:"job_for"`
	Immediate        bool     `json:"immediate"`
	DueDate          string   `json:"due_date"`
	DueTime          string   `json:"due_time"`
	Duration         int      `json:"duration"`
	PhoneDelivery    bool     `json:"phone_delivery"`
	PhysicalDelivery bool     `json:"physical_delivery"`
	Reference        string   `json:"reference"`
}

type endSessionRequest struct {
	SessionTime string `json:"session_time"`
}

type updateJobRequest struct {
	TranslatorID    *string `json:"translator_id"`
	TranslatorEmail *string `json:"translator_email"`
	Due             *string `json:"due"`
	FromLanguageID  *string `json:"from_language_id"`
	Status          *string `json:"status"`
	AdminComments   *string `json:"admin_comments"`
	Reference       *string `json:"reference"`
}

type attachContactRequest struct {
	ContactEmail string `json:"contact_email"`
	Address      string `json:"address"`
	Instructions string `json:"instructions"`
	Town         string `json:"town"`
}

type jobPayload struct {
	ID               string    `json:"id"`
	CustomerID       string    `json:"customer_id"`
	FromLanguageID   string    `json:"from_language_id"`
	JobFor           []string  `json:"job_for,omitempty"`
	Kind             string    `json:"kind"`
	Status           string    `json:"status"`
	Immediate        bool      `json:"immediate"`
	PhoneDelivery    bool      `json:"phone_delivery"`
	PhysicalDelivery bool      `json:"physical_delivery"`
	Due              time.Time `json:"due"`
	Duration         int       `json:"duration"`
	SessionTime      string    `json:"session_time,omitempty"`
	WillExpireAt     time.Time `json:"will_expire_at"`
	Reference        string    `json:"reference,omitempty"`
	AdminComments    string    `json:"admin_comments,omitempty"`
	Town             string    `json:"town,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toJobPayload(job services.Job) jobPayload {
	return jobPayload{
		ID:               job.ID,
		CustomerID:       job.CustomerID,
		FromLanguageID:   job.FromLanguageID,
		JobFor:           domain.DisplayJobFor(job.Gender, job.Certified),
		Kind:             string(job.Kind),
		Status:           string(job.Status),
		Immediate:        job.Immediate,
		PhoneDelivery:    job.PhoneDelivery,
		PhysicalDelivery: job.PhysicalDelivery,
		Due:              job.Due,
		Duration:         job.PlannedDurationMinutes,
		SessionTime:      job.ActualSessionDuration,
		WillExpireAt:     job.WillExpireAt,
		Reference:        job.Reference,
		AdminComments:    job.AdminComments,
		Town:             job.Town,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}
}

func toJobPayloads(jobs []services.Job) []jobPayload {
	payloads := make([]jobPayload, 0, len(jobs))
	for _, job := range jobs {
		payloads = append(payloads, toJobPayload(job))
	}
	return payloads
}

// BookingHandlers exposes the booking lifecycle endpoints.
type BookingHandlers struct {
	bookings services.BookingService
	limiter  rateLimiter
}

// NewBookingHandlers constructs the booking handler set.
func NewBookingHandlers(bookings services.BookingService) *BookingHandlers {
	return &BookingHandlers{
		bookings: bookings,
		limiter:  newSimpleRateLimiter(createJobRateLimit, createJobRateWindow, nil),
	}
}

// Routes registers the /jobs endpoints.
func (h *BookingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createJob)
	r.Post("/{jobID}:accept", h.acceptJob)
	r.Post("/{jobID}:cancel", h.cancelJob)
	r.Post("/{jobID}:end", h.endSession)
	r.Post("/{jobID}:no-show", h.markNoShow)
	r.Post("/{jobID}:reopen", h.reopenJob)
	r.Patch("/{jobID}", h.updateJob)
	r.Put("/{jobID}/contact", h.attachContact)
}

// UserRoutes registers the /users job listing endpoints.
func (h *BookingHandlers) UserRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{userID}/jobs", h.activeJobs)
	r.Get("/{userID}/jobs/history", h.jobHistory)
}

func (h *BookingHandlers) createJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(actor.ID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many booking requests", http.StatusTooManyRequests))
		return
	}

	var req createJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.bookings.CreateJob(ctx, services.CreateJobCommand{
		Actor:            actor,
		CustomerID:       req.CustomerID,
		FromLanguageID:   req.FromLanguageID,
		JobForOptions:    req.JobFor,
		Immediate:        req.Immediate,
		DueDate:          req.DueDate,
		DueTime:          req.DueTime,
		DurationMinutes:  req.Duration,
		PhoneDelivery:    req.PhoneDelivery,
		PhysicalDelivery: req.PhysicalDelivery,
		Reference:        req.Reference,
		ByAdmin:          actor.Role == services.RoleAdmin,
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}

	payload := toJobPayload(created.Job)
	payload.JobFor = created.DisplayJobFor
	httpx.WriteJSON(w, http.StatusCreated, payload)
}

func (h *BookingHandlers) acceptJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	job, err := h.bookings.AcceptJob(ctx, services.AcceptJobCommand{
		Actor: actor,
		JobID: chi.URLParam(r, "jobID"),
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toJobPayload(job))
}

func (h *BookingHandlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	job, err := h.bookings.CancelJob(ctx, services.CancelJobCommand{
		Actor: actor,
		JobID: chi.URLParam(r, "jobID"),
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toJobPayload(job))
}

func (h *BookingHandlers) endSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req endSessionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	job, err := h.bookings.EndSession(ctx, services.EndSessionCommand{
		Actor:       actor,
		JobID:       chi.URLParam(r, "jobID"),
		SessionTime: req.SessionTime,
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toJobPayload(job))
}

func (h *BookingHandlers) markNoShow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	job, err := h.bookings.MarkCustomerNoShow(ctx, services.NoShowCommand{
		Actor: actor,
		JobID: chi.URLParam(r, "jobID"),
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toJobPayload(job))
}

func (h *BookingHandlers) reopenJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	job, err := h.bookings.Reopen(ctx, services.ReopenCommand{
		Actor: actor,
		JobID: chi.URLParam(r, "jobID"),
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toJobPayload(job))
}

func (h *BookingHandlers) updateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	var req updateJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cmd := services.UpdateJobCommand{
		Actor:           actor,
		JobID:           chi.URLParam(r, "jobID"),
		TranslatorID:    req.TranslatorID,
		TranslatorEmail: req.TranslatorEmail,
		FromLanguageID:  req.FromLanguageID,
		AdminComments:   req.AdminComments,
		Reference:       req.Reference,
	}
	if req.Due != nil {
		due, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.Due))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "due must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.Due = &due
	}
	if req.Status != nil {
		status := services.JobStatus(strings.TrimSpace(*req.Status))
		if !domain.IsKnownJobStatus(status) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown job status", http.StatusBadRequest))
			return
		}
		cmd.Status = &status
	}

	job, err := h.bookings.UpdateJob(ctx, cmd)
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toJobPayload(job))
}

func (h *BookingHandlers) attachContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req attachContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	job, err := h.bookings.AttachContactDetails(ctx, services.AttachContactCommand{
		Actor:        actor,
		JobID:        chi.URLParam(r, "jobID"),
		ContactEmail: req.ContactEmail,
		Address:      req.Address,
		Instructions: req.Instructions,
		Town:         req.Town,
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toJobPayload(job))
}

func (h *BookingHandlers) activeJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	if actor.Role != services.RoleAdmin && actor.ID != userID {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "cannot list another user's jobs", http.StatusForbidden))
		return
	}

	jobs, err := h.bookings.ActiveJobsFor(ctx, userID)
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"emergency": toJobPayloads(jobs.Emergency),
		"scheduled": toJobPayloads(jobs.Scheduled),
	})
}

func (h *BookingHandlers) jobHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	if actor.Role != services.RoleAdmin && actor.ID != userID {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "cannot list another user's jobs", http.StatusForbidden))
		return
	}

	params, err := pagination.FromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.bookings.JobHistoryFor(ctx, userID, services.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":           toJobPayloads(page.Items),
		"next_page_token": page.NextPageToken,
	})
}

// decodeJSON reads a bounded JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBookingBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

// writeBookingError maps the service error taxonomy onto HTTP responses.
func writeBookingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrBookingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrBookingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("job_not_found", "job not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAlreadyTaken):
		httpx.WriteError(ctx, w, httpx.NewError("job_already_taken", "another translator accepted this job first", http.StatusConflict))
	case errors.Is(err, services.ErrAlreadyBooked):
		httpx.WriteError(ctx, w, httpx.NewError("translator_already_booked", "translator already holds a booking at that time", http.StatusConflict))
	case errors.Is(err, services.ErrCancellationWindowClosed):
		httpx.WriteError(ctx, w, httpx.NewError("cancellation_window_closed", "cancellations are closed within 24 hours of the session", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrReopenFailed):
		httpx.WriteError(ctx, w, httpx.NewError("reopen_failed", "the job could not be reopened", http.StatusConflict))
	case errors.Is(err, services.ErrBookingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "booking storage temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
