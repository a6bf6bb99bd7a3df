package qualify

import "salesforce-lead-backend/internal/types"

const (
	leadCreatedMessage   = "Thank you for your interest! I've passed your details to our team, and they'll reach out shortly to talk about how we can help with your Salesforce implementation."
	caseEscalatedMessage = "Thank you for walking me through your requirements. Since your needs go beyond a standard setup, I've asked our expert team to contact you directly. They'll be in touch soon to go over your project in detail."
	crmFailureMessage    = "I'm sorry, something went wrong while I was saving your information. Our team will reach out to you soon."
)

// FallbackResponse is the fixed reply for stage, used whenever a generated one
// is unavailable.
func FallbackResponse(stage types.Stage) string {
	switch stage {
	case types.StageInitial:
		return "Hello! I'd love to hear what you're hoping to achieve with Salesforce. Could you give me a brief overview?"
	case types.StageGatheringRequirements:
		return "Thanks for sharing that. What kind of timeline and budget do you have in mind?"
	case types.StageContactInfo:
		return "Great! So our expert team can follow up, could you share your name, company and email address?"
	case types.StageQualification:
		return "Thank you for your interest. Our expert team will reach out to discuss your needs in detail."
	default:
		return "Is there anything else I can help with before our Salesforce team gets in touch?"
	}
}
