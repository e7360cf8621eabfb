package domain

// Job-for option values accepted on booking creation.
const (
	JobForMale            = "male"
	JobForFemale          = "female"
	JobForNormal          = "normal"
	JobForCertified       = "certified"
	JobForCertifiedLaw    = "certified_in_law"
	JobForCertifiedHealth = "certified_in_health"
)

// DeriveJobFor resolves the requested "job for" option set into the gender and
// certification fields stored on the job. Combination options take precedence
// over single certifications: normal+certified is "both", normal with a
// specialised certification keeps the lay option alongside it.
func DeriveJobFor(options []string) (Gender, Certification) {
	var (
		gender    Gender
		requested = make(map[string]bool, len(options))
	)
	for _, option := range options {
		requested[option] = true
	}
	if requested[JobForMale] {
		gender = GenderMale
	} else if requested[JobForFemale] {
		gender = GenderFemale
	}

	var certified Certification
	switch {
	case requested[JobForNormal] && requested[JobForCertified]:
		certified = CertificationBoth
	case requested[JobForNormal] && requested[JobForCertifiedLaw]:
		certified = CertificationNormalLaw
	case requested[JobForNormal] && requested[JobForCertifiedHealth]:
		certified = CertificationNormalHealth
	case requested[JobForCertified]:
		certified = CertificationCertified
	case requested[JobForCertifiedLaw]:
		certified = CertificationLaw
	case requested[JobForCertifiedHealth]:
		certified = CertificationHealth
	case requested[JobForNormal]:
		certified = CertificationNormal
	}
	return gender, certified
}

// DisplayJobFor restates stored gender and certification as the option labels
// the caller originally supplied. It is the exact inverse of DeriveJobFor so a
// create round-trip always confirms what was requested.
func DisplayJobFor(gender Gender, certified Certification) []string {
	var options []string
	switch gender {
	case GenderMale:
		options = append(options, JobForMale)
	case GenderFemale:
		options = append(options, JobForFemale)
	}
	switch certified {
	case CertificationBoth:
		options = append(options, JobForNormal, JobForCertified)
	case CertificationNormalLaw:
		options = append(options, JobForNormal, JobForCertifiedLaw)
	case CertificationNormalHealth:
		options = append(options, JobForNormal, JobForCertifiedHealth)
	case CertificationCertified:
		options = append(options, JobForCertified)
	case CertificationLaw:
		options = append(options, JobForCertifiedLaw)
	case CertificationHealth:
		options = append(options, JobForCertifiedHealth)
	case CertificationNormal:
		options = append(options, JobForNormal)
	}
	return options
}

var consumerTypeKinds = map[string]JobKind{
	"rwsconsumer": JobKindRWS,
	"ngo":         JobKindUnpaid,
	"paid":        JobKindPaid,
}

// KindForConsumerType maps a customer's consumer type to the kind of jobs it
// creates. Unknown consumer types book paid jobs.
func KindForConsumerType(consumerType string) JobKind {
	if kind, ok := consumerTypeKinds[consumerType]; ok {
		return kind
	}
	return JobKindPaid
}

var translatorTypeKinds = map[TranslatorType]JobKind{
	TranslatorTypeProfessional: JobKindPaid,
	TranslatorTypeRWS:          JobKindRWS,
	TranslatorTypeVolunteer:    JobKindUnpaid,
}

// KindForTranslatorType maps a translator type to the job kind that
// translator may work. The second return is false for unknown types.
func KindForTranslatorType(translatorType TranslatorType) (JobKind, bool) {
	kind, ok := translatorTypeKinds[translatorType]
	return kind, ok
}

var (
	certifiedLevels = []TranslatorLevel{
		LevelCertified,
		LevelCertifiedLaw,
		LevelCertifiedHealth,
	}
	layLevels = []TranslatorLevel{
		LevelLayman,
		LevelReadCourses,
	}
)

// AcceptedLevels expands a certification requirement into the set of
// translator levels allowed to take the job. An empty requirement accepts
// every level.
func AcceptedLevels(certified Certification) []TranslatorLevel {
	switch certified {
	case CertificationCertified:
		return append([]TranslatorLevel(nil), certifiedLevels...)
	case CertificationLaw, CertificationNormalLaw:
		return []TranslatorLevel{LevelCertifiedLaw}
	case CertificationHealth, CertificationNormalHealth:
		return []TranslatorLevel{LevelCertifiedHealth}
	case CertificationNormal:
		return append([]TranslatorLevel(nil), layLevels...)
	case CertificationBoth:
		levels := append([]TranslatorLevel(nil), certifiedLevels...)
		return append(levels, layLevels...)
	default:
		levels := append([]TranslatorLevel(nil), certifiedLevels...)
		return append(levels, layLevels...)
	}
}

// LevelAccepted reports whether the level satisfies the certification
// requirement.
func LevelAccepted(certified Certification, level TranslatorLevel) bool {
	for _, accepted := range AcceptedLevels(certified) {
		if accepted == level {
			return true
		}
	}
	return false
}
