package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind is the well-known classification of a failed gateway call.
type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotAvailable    Kind = "NOT_AVAILABLE"
	KindSessionExpired  Kind = "SESSION_EXPIRED"
	KindSessionNotFound Kind = "SESSION_NOT_FOUND"
	KindUnknown         Kind = "UNKNOWN"
)

// Classified is the result of mapping an opaque failure to one error kind
// plus its payload.
type Classified struct {
	Kind    Kind            `json:"kind"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var codeKinds = map[string]Kind{
	CodeExamNotFound:         KindNotFound,
	CodeExamAlreadySubmitted: KindConflict,
	CodeMaxAttemptsExceeded:  KindForbidden,
	CodeExamNotAvailable:     KindNotAvailable,
	CodeSessionNotFound:      KindSessionNotFound,
	CodeSessionExpired:       KindSessionExpired,
}

var statusKinds = map[int]Kind{
	http.StatusNotFound:  KindNotFound,
	http.StatusConflict:  KindConflict,
	http.StatusForbidden: KindForbidden,
	http.StatusGone:      KindSessionExpired,
}

// Classify maps a raised failure into one well-known kind plus its payload.
// It never fails: anything it cannot interpret, including plain transport
// errors and rejection bodies that are not machine-parseable, degrades to
// KindUnknown carrying the raw message text.
func Classify(err error) Classified {
	if err == nil {
		return Classified{Kind: KindUnknown}
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return Classified{Kind: KindUnknown, Message: err.Error()}
	}

	kind, ok := codeKinds[apiErr.Code]
	if !ok {
		kind, ok = statusKinds[apiErr.StatusCode]
		if !ok {
			kind = KindUnknown
		}
	}

	message := apiErr.Message
	if message == "" {
		message = string(apiErr.Body)
	}

	return Classified{
		Kind:    kind,
		Message: message,
		Payload: apiErr.Body,
	}
}

// IsConflict reports whether err classifies as an already-finalized conflict.
func IsConflict(err error) bool {
	return Classify(err).Kind == KindConflict
}

// IsForbidden reports whether err classifies as an attempt quota rejection.
func IsForbidden(err error) bool {
	return Classify(err).Kind == KindForbidden
}

// IsNotAvailable reports whether err classifies as outside the exam's open window.
func IsNotAvailable(err error) bool {
	return Classify(err).Kind == KindNotAvailable
}

// IsSessionExpired reports whether err classifies as an expired session.
func IsSessionExpired(err error) bool {
	return Classify(err).Kind == KindSessionExpired
}

// IsSessionNotFound reports whether err classifies as a missing session.
func IsSessionNotFound(err error) bool {
	return Classify(err).Kind == KindSessionNotFound
}

// IsNotFound reports whether err classifies as missing metadata or exam.
func IsNotFound(err error) bool {
	return Classify(err).Kind == KindNotFound
}
