package service

import (
	"context"
	"errors"
	"net/http"
)

// Kind classifies a service failure. Handlers branch on Kind only.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthenticated
	KindInvalidToken
	KindUnauthorized
	KindExternalService
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidToken:
		return "invalid_token"
	case KindUnauthorized:
		return "unauthorized"
	case KindExternalService:
		return "external_service_error"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthenticated, KindInvalidToken, KindUnauthorized:
		return http.StatusUnauthorized
	case KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error every service operation returns. Message is safe
// to show to clients; Err is the cause and only ever goes to logs.
type Error struct {
	Kind    Kind
	Reason  string // optional finer-grained tag, e.g. "token_reuse"
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Reason when the target sets one, so
// errors.Is(err, ErrInvalidToken) holds for every invalid-token failure
// while errors.Is(err, ErrTokenReuse) only holds for reuse.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// Sentinels for errors.Is.
var (
	ErrBadRequest      = &Error{Kind: KindBadRequest}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrInvalidToken    = &Error{Kind: KindInvalidToken}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrExternalService = &Error{Kind: KindExternalService}
	ErrInternal        = &Error{Kind: KindInternal}

	// ErrTokenReuse is an InvalidToken raised when a refresh token that is
	// no longer the stored one is presented.
	ErrTokenReuse = &Error{Kind: KindInvalidToken, Reason: ReasonTokenReuse}
)

const ReasonTokenReuse = "token_reuse"

// FieldError describes one failed input validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func badRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg}
}

func unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func invalidToken(msg string, cause error) *Error {
	return &Error{Kind: KindInvalidToken, Message: msg, Err: cause}
}

func unauthorized(msg string, cause error) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg, Err: cause}
}

func externalService(msg string, cause error) *Error {
	return &Error{Kind: KindExternalService, Message: msg, Err: cause}
}

// internalError wraps an unexpected dependency failure. Deadline overruns
// are reported as ExternalServiceError since the dependency did not answer.
func internalError(cause error) *Error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return externalService("upstream dependency timed out", cause)
	}
	return &Error{Kind: KindInternal, Message: "internal server error", Err: cause}
}

// AsError returns err as *Error, wrapping anything untyped as Internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internalError(err)
}
