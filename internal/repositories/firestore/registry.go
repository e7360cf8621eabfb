package firestore

import (
	"context"
	"errors"

	"github.com/tolkfield/api/internal/domain"
	pfirestore "github.com/tolkfield/api/internal/platform/firestore"
	"github.com/tolkfield/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind the
// repositories.Registry interface.
type Registry struct {
	provider *pfirestore.Provider

	jobs        *JobRepository
	assignments *AssignmentRepository
	directory   *DirectoryRepository
	auditLogs   *AuditLogRepository
	throttles   *ThrottleRepository
	health      repositories.HealthRepository
}

// RegistryOptions configure registry construction.
type RegistryOptions struct {
	// HealthChecks are the dependency probes surfaced via Health(). The
	// caller decides which downstreams to cover.
	HealthChecks []repositories.DependencyCheck
	Version      string
	Environment  string
}

// NewRegistry builds every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts RegistryOptions) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	assignments, err := NewAssignmentRepository(provider)
	if err != nil {
		return nil, err
	}
	jobs, err := NewJobRepository(provider, assignments)
	if err != nil {
		return nil, err
	}
	directory, err := NewDirectoryRepository(provider)
	if err != nil {
		return nil, err
	}
	auditLogs, err := NewAuditLogRepository(provider)
	if err != nil {
		return nil, err
	}
	throttles, err := NewThrottleRepository(provider)
	if err != nil {
		return nil, err
	}
	checks := opts.HealthChecks
	if len(checks) == 0 {
		checks = []repositories.DependencyCheck{{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		}}
	}
	probes, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:    provider,
		jobs:        jobs,
		assignments: assignments,
		directory:   directory,
		auditLogs:   auditLogs,
		throttles:   throttles,
		health: &stampedHealthRepository{
			inner:       probes,
			version:     opts.Version,
			environment: opts.Environment,
		},
	}, nil
}

// stampedHealthRepository decorates probe reports with build metadata.
type stampedHealthRepository struct {
	inner       repositories.HealthRepository
	version     string
	environment string
}

func (r *stampedHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	report, err := r.inner.Collect(ctx)
	if err != nil {
		return domain.SystemHealthReport{}, err
	}
	report.Version = r.version
	report.Environment = r.environment
	return report, nil
}

func (r *Registry) Jobs() repositories.JobRepository               { return r.jobs }
func (r *Registry) Assignments() repositories.AssignmentRepository { return r.assignments }
func (r *Registry) Directory() repositories.DirectoryRepository    { return r.directory }
func (r *Registry) AuditLogs() repositories.AuditLogRepository     { return r.auditLogs }
func (r *Registry) Throttles() repositories.ThrottleRepository     { return r.throttles }
func (r *Registry) Health() repositories.HealthRepository          { return r.health }

// RunInTx groups repository calls under one logical unit. Cross-document
// atomicity is provided where it matters by JobRepository.AcceptIfPending;
// other flows tolerate partial writes and reconcile on read.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return fn(ctx)
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
