package services

import (
	"fmt"

	"golang.org/x/text/language"
)

// Template keys handed to the transports. Bodies live with the transport
// templates; the short texts below are the push/SMS fallback lines.
const (
	TemplateJobPostedImmediate  = "job-posted-immediate"
	TemplateJobPostedScheduled  = "job-posted-scheduled"
	TemplateJobAccepted         = "job-accepted"
	TemplateSessionReminder     = "session-reminder"
	TemplateJobCancelled        = "job-cancelled"
	TemplateJobChangedDate      = "job-changed-date"
	TemplateJobChangedLanguage  = "job-changed-language"
	TemplateSessionEndedInvoice = "session-ended-invoice"
	TemplateSessionEndedSalary  = "session-ended-salary"
	TemplateBookingReceived     = "booking-received"
	TemplateSMSJobPhysical      = "sms-job-physical"
	TemplateSMSJobPhone         = "sms-job-phone"
)

// Swedish is the service language; English covers everyone else.
var localeMatcher = language.NewMatcher([]language.Tag{
	language.Swedish,
	language.English,
})

var messageTexts = map[language.Tag]map[string]string{
	language.Swedish: {
		TemplateJobPostedImmediate: "Du har fått ett nytt akut tolkuppdrag: %s, %s",
		TemplateJobPostedScheduled: "Du har fått ett nytt tolkuppdrag: %s den %s",
		TemplateJobAccepted:        "Din bokning %s har accepterats av en tolk",
		TemplateSessionReminder:    "Påminnelse: tolkuppdraget %s börjar %s",
		TemplateJobCancelled:       "Bokningen %s har avbokats",
		TemplateJobChangedDate:     "Tiden för bokningen %s har ändrats till %s",
		TemplateJobChangedLanguage: "Språket för bokningen %s har ändrats till %s",
		TemplateSMSJobPhysical:     "Nytt platstolkningsuppdrag i %s den %s (%s). Logga in för att acceptera.",
		TemplateSMSJobPhone:        "Nytt telefontolkningsuppdrag den %s (%s). Logga in för att acceptera.",
	},
	language.English: {
		TemplateJobPostedImmediate: "New urgent interpretation job: %s, %s",
		TemplateJobPostedScheduled: "New interpretation job: %s on %s",
		TemplateJobAccepted:        "Your booking %s has been accepted by an interpreter",
		TemplateSessionReminder:    "Reminder: interpretation session %s starts %s",
		TemplateJobCancelled:       "Booking %s has been cancelled",
		TemplateJobChangedDate:     "Booking %s has been rescheduled to %s",
		TemplateJobChangedLanguage: "The language for booking %s has changed to %s",
		TemplateSMSJobPhysical:     "New on-site interpretation job in %s on %s (%s). Sign in to accept.",
		TemplateSMSJobPhone:        "New phone interpretation job on %s (%s). Sign in to accept.",
	},
}

// MessageText renders the short notification line for the template key in the
// closest supported locale.
func MessageText(locale string, key string, args ...any) string {
	tag, _ := language.MatchStrings(localeMatcher, locale)
	base, _ := tag.Base()

	texts, ok := messageTexts[language.Make(base.String())]
	if !ok {
		texts = messageTexts[language.Swedish]
	}
	format, ok := texts[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
