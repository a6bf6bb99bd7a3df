package types

import "time"

// ChatRequest is one conversation turn. State is owned by the caller and
// round-tripped on every turn; it is omitted on the first one.
type ChatRequest struct {
	Input string             `json:"input" validate:"required,max=4000"`
	State *ConversationState `json:"state,omitempty"`
}

type ChatResponse struct {
	Response  string             `json:"response"`
	State     *ConversationState `json:"state"`
	ShouldEnd bool               `json:"shouldEnd"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// OAuthErrorResponse echoes the error parameters Salesforce appended to the callback.
type OAuthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// TokenSet is the credential obtained from the Salesforce token endpoint.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	InstanceURL  string    `json:"instance_url"`
	TokenType    string    `json:"token_type,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}
