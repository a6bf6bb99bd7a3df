package types

// Stage is a step of the qualification conversation. Stages only move forward
// through the order of Stages.
type Stage string

const (
	StageInitial               Stage = "initial"
	StageGatheringRequirements Stage = "gathering_requirements"
	StageContactInfo           Stage = "contact_info"
	StageQualification         Stage = "qualification"
	StageComplete              Stage = "complete"
)

// Stages lists every stage in conversation order.
var Stages = []Stage{
	StageInitial,
	StageGatheringRequirements,
	StageContactInfo,
	StageQualification,
	StageComplete,
}

// Index returns the position of s in Stages, or -1 for an unknown stage.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool { return s.Index() >= 0 }

type ContactInfo struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
}

// ConversationState is everything learned about a prospect so far.
// A text field counts as present only when non-empty.
type ConversationState struct {
	Stage               Stage        `json:"stage"`
	ProjectRequirements string       `json:"projectRequirements,omitempty"`
	DesiredFeatures     []string     `json:"desiredFeatures,omitempty"`
	Budget              string       `json:"budget,omitempty"`
	Timeline            string       `json:"timeline,omitempty"`
	AdditionalNotes     string       `json:"additionalNotes,omitempty"`
	ContactInfo         *ContactInfo `json:"contactInfo,omitempty"`
	Context             string       `json:"context,omitempty"`
}

// NewConversationState returns the state used when a caller sends none.
func NewConversationState() *ConversationState {
	return &ConversationState{Stage: StageInitial}
}

// Email returns the contact email or "" when no contact info is known.
func (s *ConversationState) Email() string {
	if s.ContactInfo == nil {
		return ""
	}
	return s.ContactInfo.Email
}

// Company returns the contact company or "" when no contact info is known.
func (s *ConversationState) Company() string {
	if s.ContactInfo == nil {
		return ""
	}
	return s.ContactInfo.Company
}

// Clone returns a deep copy of s. A nil receiver yields a fresh initial state.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return NewConversationState()
	}
	c := *s
	if s.DesiredFeatures != nil {
		c.DesiredFeatures = append([]string{}, s.DesiredFeatures...)
	}
	if s.ContactInfo != nil {
		ci := *s.ContactInfo
		c.ContactInfo = &ci
	}
	return &c
}
