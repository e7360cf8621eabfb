package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tolkfield/api/internal/domain"
	"github.com/tolkfield/api/internal/services"
)

type systemServiceStub struct {
	report services.SystemHealthReport
	err    error
}

func (s *systemServiceStub) Health(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func TestHealthzAlwaysOK(t *testing.T) {
	h := NewHealthHandlers(nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "ok" {
		t.Fatalf("status field = %v", payload["status"])
	}
}

func TestReadyzReportsHealthyDependencies(t *testing.T) {
	h := NewHealthHandlers(&systemServiceStub{report: services.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
		},
	}})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
}

func TestReadyzFailsOnDegradedReport(t *testing.T) {
	h := NewHealthHandlers(&systemServiceStub{report: services.SystemHealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
		},
	}})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestReadyzFailsWhenProbeErrors(t *testing.T) {
	h := NewHealthHandlers(&systemServiceStub{err: errors.New("firestore unreachable")})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
