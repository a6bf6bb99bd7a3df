package qualify

import (
	"strings"

	"salesforce-lead-backend/internal/types"
)

// SupportedFeatures are the service areas the team takes on.
var SupportedFeatures = []string{
	"Apex Development",
	"Flows",
	"Salesforce Admin tasks",
	"Sales Cloud",
	"Service Cloud",
	"Commerce Cloud",
}

var (
	complexRequirementTerms = []string{"complex", "custom", "integration", "migration"}
	urgentTimelineTerms     = []string{"urgent"}
	humanContactTerms       = []string{"speak", "call", "talk", "human"}
)

// Analysis is the qualification verdict for a conversation.
type Analysis struct {
	IsComplex       bool
	MissingInfo     []string
	MatchedFeatures []string
}

// AnalyzeRequirements classifies state. It has no side effects.
func AnalyzeRequirements(state *types.ConversationState) Analysis {
	if state == nil {
		state = &types.ConversationState{}
	}

	missing := make([]string, 0, 3)
	if state.ProjectRequirements == "" {
		missing = append(missing, "basic requirements")
	}
	if state.Email() == "" {
		missing = append(missing, "contact email")
	}
	if state.Company() == "" {
		missing = append(missing, "company name")
	}

	matched := make([]string, 0, len(state.DesiredFeatures))
	for _, f := range state.DesiredFeatures {
		if isSupportedFeature(f) {
			matched = append(matched, f)
		}
	}

	isComplex := containsAny(strings.ToLower(state.ProjectRequirements), complexRequirementTerms) ||
		containsAny(strings.ToLower(state.Timeline), urgentTimelineTerms) ||
		containsAny(strings.ToLower(state.AdditionalNotes), humanContactTerms)

	return Analysis{IsComplex: isComplex, MissingInfo: missing, MatchedFeatures: matched}
}

func isSupportedFeature(f string) bool {
	for _, s := range SupportedFeatures {
		if s == f {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
