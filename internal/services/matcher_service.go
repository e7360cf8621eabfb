package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/tolkfield/api/internal/domain"
	"github.com/tolkfield/api/internal/repositories"
)

// matcherPageSize bounds the pending-job scan per translator.
const matcherPageSize = 100

type matcherService struct {
	jobs        repositories.JobRepository
	assignments repositories.AssignmentRepository
	directory   repositories.DirectoryRepository
	policy      ChannelDecider
	now         func() time.Time
}

// MatcherServiceDeps bundles constructor inputs for the matcher.
type MatcherServiceDeps struct {
	Jobs        repositories.JobRepository
	Assignments repositories.AssignmentRepository
	Directory   repositories.DirectoryRepository
	Policy      ChannelDecider
	Clock       func() time.Time
}

// NewMatcherService creates the translator/job matching service.
func NewMatcherService(deps MatcherServiceDeps) (MatcherService, error) {
	if deps.Jobs == nil {
		return nil, errors.New("matcher service: job repository is required")
	}
	if deps.Assignments == nil {
		return nil, errors.New("matcher service: assignment repository is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("matcher service: directory is required")
	}
	if deps.Policy == nil {
		return nil, errors.New("matcher service: channel decider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &matcherService{
		jobs:        deps.Jobs,
		assignments: deps.Assignments,
		directory:   deps.Directory,
		policy:      deps.Policy,
		now:         func() time.Time { return clock().UTC() },
	}, nil
}

// JobsFor returns the pending, unexpired jobs the translator may accept.
func (s *matcherService) JobsFor(ctx context.Context, translatorID string) ([]Job, error) {
	profile, err := s.directory.FindUserByID(ctx, translatorID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	kind, ok := domain.KindForTranslatorType(profile.Type)
	if !ok {
		return nil, nil
	}

	page, err := s.jobs.List(ctx, repositories.JobListFilter{
		Kind:             kind,
		PendingUnexpired: true,
		Now:              s.now(),
		Pagination:       Pagination{PageSize: matcherPageSize},
	})
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	var visible []Job
	for _, job := range page.Items {
		eligible, err := s.eligibleForJob(ctx, job, profile)
		if err != nil {
			return nil, err
		}
		if eligible {
			visible = append(visible, job)
		}
	}
	return visible, nil
}

// TranslatorsFor scans active translators for the job and partitions the
// eligible ones into immediate and delayed push recipients.
func (s *matcherService) TranslatorsFor(ctx context.Context, job Job, excludeUserID string) (MatchedTranslators, error) {
	candidates, err := s.directory.ListActiveTranslators(ctx, excludeUserID)
	if err != nil {
		return MatchedTranslators{}, mapRepositoryError(err)
	}

	ownerTown, blacklisted, err := s.ownerFacts(ctx, job)
	if err != nil {
		return MatchedTranslators{}, err
	}

	now := s.now()
	matched := MatchedTranslators{}
	for _, candidate := range candidates {
		if candidate.Preferences.NotGetNotification {
			continue
		}
		if job.Immediate && candidate.Preferences.NotGetEmergency {
			continue
		}

		declined, err := s.assignments.WasDeclinedBy(ctx, job.ID, candidate.ID)
		if err != nil {
			return MatchedTranslators{}, mapRepositoryError(err)
		}

		if !IsEligible(EligibilityInput{
			Job:             job,
			Candidate:       candidate,
			OwnerTown:       ownerTown,
			BlacklistedIDs:  blacklisted,
			AlreadyDeclined: declined,
		}) {
			continue
		}

		channel, sendAfter := s.policy.ChannelFor(candidate, now)
		switch channel {
		case domain.ChannelPushNow:
			matched.Immediate = append(matched.Immediate, candidate)
		case domain.ChannelPushDelayed:
			if sendAfter == nil {
				return MatchedTranslators{}, fmt.Errorf("matcher service: delayed channel without send-after for %s", candidate.ID)
			}
			matched.Delayed = append(matched.Delayed, DelayedRecipient{
				Profile:   candidate,
				SendAfter: *sendAfter,
			})
		}
	}
	return matched, nil
}

func (s *matcherService) eligibleForJob(ctx context.Context, job Job, candidate UserProfile) (bool, error) {
	ownerTown, blacklisted, err := s.ownerFacts(ctx, job)
	if err != nil {
		return false, err
	}

	declined, err := s.assignments.WasDeclinedBy(ctx, job.ID, candidate.ID)
	if err != nil {
		return false, mapRepositoryError(err)
	}

	return IsEligible(EligibilityInput{
		Job:             job,
		Candidate:       candidate,
		OwnerTown:       ownerTown,
		BlacklistedIDs:  blacklisted,
		AlreadyDeclined: declined,
	}), nil
}

// ownerFacts resolves the job owner's effective town and blacklist. A job
// town override wins over the owner's profile town.
func (s *matcherService) ownerFacts(ctx context.Context, job Job) (string, []string, error) {
	town := job.Town
	owner, err := s.directory.FindUserByID(ctx, job.CustomerID)
	if err != nil {
		if !isRepoNotFound(err) {
			return "", nil, mapRepositoryError(err)
		}
	} else if town == "" {
		town = owner.Town
	}

	blacklisted, err := s.directory.BlacklistedTranslators(ctx, job.CustomerID)
	if err != nil {
		return "", nil, mapRepositoryError(err)
	}
	return town, blacklisted, nil
}
