package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tolkfield/api/internal/domain"
	"github.com/tolkfield/api/internal/platform/httpx"
	"github.com/tolkfield/api/internal/platform/pagination"
	"github.com/tolkfield/api/internal/services"
)

type auditLogPayload struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	ActorRole  string         `json:"actor_role"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IPHash     string         `json:"ip_hash,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type throttlePayload struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Attempts  int       `json:"attempts"`
	Ignored   bool      `json:"ignored"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdminHandlers serves the back-office endpoints: the audit trail, login
// throttles, and the expiry alert mute switches.
type AdminHandlers struct {
	bookings  services.BookingService
	auditLogs services.AuditLogService
	throttles services.ThrottleService
}

func NewAdminHandlers(bookings services.BookingService, auditLogs services.AuditLogService, throttles services.ThrottleService) *AdminHandlers {
	return &AdminHandlers{bookings: bookings, auditLogs: auditLogs, throttles: throttles}
}

// Routes registers the /admin endpoints. Callers are expected to also mount
// the admin guard middleware in front of this group.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/audit-logs", h.listAuditLogs)
	r.Get("/throttles", h.listThrottles)
	r.Post("/throttles/{throttleID}:ignore", h.ignoreThrottle)
	r.Post("/jobs/{jobID}:ignore-expiring", h.ignoreExpiring)
	r.Post("/jobs/{jobID}:ignore-expired", h.ignoreExpired)
}

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	params, err := pagination.FromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.AuditLogFilter{
		TargetType: strings.TrimSpace(query.Get("targetType")),
		TargetID:   strings.TrimSpace(query.Get("targetId")),
		ActorID:    strings.TrimSpace(query.Get("actorId")),
		Action:     strings.TrimSpace(query.Get("action")),
		Pagination: services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	}
	filter.DateRange, err = parseDateRange(query.Get("from"), query.Get("to"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from/to must be RFC3339 timestamps", http.StatusBadRequest))
		return
	}

	page, err := h.auditLogs.List(ctx, filter)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "audit log temporarily unavailable", http.StatusServiceUnavailable))
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, auditLogPayload{
			ID:         entry.ID,
			ActorID:    entry.ActorID,
			ActorRole:  entry.ActorRole,
			Action:     entry.Action,
			TargetType: entry.TargetType,
			TargetID:   entry.TargetID,
			Metadata:   entry.Metadata,
			IPHash:     entry.IPHash,
			RequestID:  entry.RequestID,
			CreatedAt:  entry.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *AdminHandlers) listThrottles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	params, err := pagination.FromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	includeIgnored := r.URL.Query().Get("includeIgnored") == "true"

	page, err := h.throttles.List(ctx, includeIgnored, services.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "throttle listing temporarily unavailable", http.StatusServiceUnavailable))
		return
	}

	items := make([]throttlePayload, 0, len(page.Items))
	for _, throttle := range page.Items {
		items = append(items, throttlePayload{
			ID:        throttle.ID,
			UserID:    throttle.UserID,
			IP:        throttle.IP,
			Attempts:  throttle.Attempts,
			Ignored:   throttle.Ignored,
			CreatedAt: throttle.CreatedAt,
			UpdatedAt: throttle.UpdatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *AdminHandlers) ignoreThrottle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	if err := h.bookings.IgnoreThrottle(ctx, chi.URLParam(r, "throttleID"), actor); err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) ignoreExpiring(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	if err := h.bookings.IgnoreExpiring(ctx, chi.URLParam(r, "jobID"), actor); err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) ignoreExpired(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	if err := h.bookings.IgnoreExpired(ctx, chi.URLParam(r, "jobID"), actor); err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseDateRange(fromRaw, toRaw string) (domain.RangeQuery[time.Time], error) {
	var rng domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(fromRaw); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return rng, err
		}
		rng.From = &from
	}
	if raw := strings.TrimSpace(toRaw); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return rng, err
		}
		rng.To = &to
	}
	return rng, nil
}
