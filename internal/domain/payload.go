package domain

// Swedish display labels used inside push payloads.
const (
	labelMale           = "Man"
	labelFemale         = "Kvinna"
	labelApproved       = "Godkänd tolk"
	labelAuthorised     = "Auktoriserad"
	labelHealthApproved = "Sjukvårdstolk"
	labelLawApproved    = "Rättstolk"
	yesValue            = "yes"
	noValue             = "no"
	dueDateLayout       = "2006-01-02"
	dueTimeLayout       = "15:04:05"
)

// PushPayload assembles the structured payload broadcast with job push
// notifications. Scheduled jobs carry the due instant split into date and
// time components.
func PushPayload(job Job, languageName string, customer UserProfile) map[string]any {
	payload := map[string]any{
		"job_id":                 job.ID,
		"from_language_id":       languageName,
		"immediate":              boolFlag(job.Immediate),
		"duration":               job.PlannedDurationMinutes,
		"status":                 string(job.Status),
		"gender":                 string(job.Gender),
		"certified":              string(job.Certified),
		"job_type":               string(job.Kind),
		"customer_phone_type":    boolFlag(job.PhoneDelivery),
		"customer_physical_type": boolFlag(job.PhysicalDelivery),
		"customer_town":          customer.Town,
		"customer_type":          customer.ConsumerType,
		"job_for":                payloadJobFor(job),
	}
	if !job.Due.IsZero() {
		payload["due_date"] = job.Due.Format(dueDateLayout)
		payload["due_time"] = job.Due.Format(dueTimeLayout)
	}
	return payload
}

func boolFlag(v bool) string {
	if v {
		return yesValue
	}
	return noValue
}

func payloadJobFor(job Job) []string {
	var labels []string
	switch job.Gender {
	case GenderMale:
		labels = append(labels, labelMale)
	case GenderFemale:
		labels = append(labels, labelFemale)
	}
	switch job.Certified {
	case CertificationBoth:
		labels = append(labels, labelApproved, labelAuthorised)
	case CertificationCertified:
		labels = append(labels, labelAuthorised)
	case CertificationHealth, CertificationNormalHealth:
		labels = append(labels, labelHealthApproved)
	case CertificationLaw, CertificationNormalLaw:
		labels = append(labels, labelLawApproved)
	case CertificationNone:
	default:
		labels = append(labels, string(job.Certified))
	}
	return labels
}
