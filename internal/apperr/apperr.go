// Package apperr defines the error taxonomy shared by the OAuth flow, the CRM
// client and the conversation node. Handlers map kinds to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of an error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration: a required credential or identifier is missing.
	KindConfiguration
	// KindInvalidState: the OAuth state token is unknown or already used.
	KindInvalidState
	// KindTokenExchange: the token endpoint rejected an authorization code.
	KindTokenExchange
	// KindTokenRefresh: the token endpoint rejected a refresh token.
	KindTokenRefresh
	// KindCRMWrite: the CRM rejected a Lead or Case write.
	KindCRMWrite
	// KindExtraction: the model output could not be turned into fields.
	KindExtraction
	// KindValidation: a request body failed validation.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindInvalidState:
		return "invalid_state"
	case KindTokenExchange:
		return "token_exchange"
	case KindTokenRefresh:
		return "token_refresh"
	case KindCRMWrite:
		return "crm_write"
	case KindExtraction:
		return "extraction"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a typed error with an optional operation, cause and details.
type Error struct {
	Kind    Kind
	Message string
	Op      string
	Err     error
	Details any
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code handlers use for this kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidState, KindValidation:
		return http.StatusBadRequest
	case KindTokenRefresh, KindCRMWrite:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithOp sets the failing operation and returns e.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails attaches response details and returns e.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Configuration(message string) *Error { return New(KindConfiguration, message) }

func InvalidState(message string) *Error { return New(KindInvalidState, message) }

func Validation(message string) *Error { return New(KindValidation, message) }

// GetKind returns the kind of the first *Error in err's chain.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && GetKind(err) == kind
}
