package services

import (
	domain "github.com/tolkfield/api/internal/domain"
)

// EligibilityInput bundles the facts the predicate needs beyond the job and
// candidate themselves: the job owner's town, the owner's blacklist, and
// whether the candidate already declined this job.
type EligibilityInput struct {
	Job       Job
	Candidate UserProfile

	OwnerTown       string
	BlacklistedIDs  []string
	AlreadyDeclined bool
}

// IsEligible reports whether the candidate may be offered the job. Pure, no
// side effects; callers resolve the directory facts first.
func IsEligible(input EligibilityInput) bool {
	job := input.Job
	candidate := input.Candidate

	kind, ok := domain.KindForTranslatorType(candidate.Type)
	if !ok || kind != job.Kind {
		return false
	}

	if !candidate.SpeaksLanguage(job.FromLanguageID) {
		return false
	}

	if job.Gender != domain.GenderUnspecified && candidate.Gender != job.Gender {
		return false
	}

	if !domain.LevelAccepted(job.Certified, candidate.Level) {
		return false
	}

	for _, id := range input.BlacklistedIDs {
		if id == candidate.ID {
			return false
		}
	}

	// On-site-only jobs stay local; phone-capable jobs travel anywhere.
	if job.PhysicalOnly() && input.OwnerTown != "" && candidate.Town != input.OwnerTown {
		return false
	}

	if input.AlreadyDeclined {
		return false
	}

	return true
}
