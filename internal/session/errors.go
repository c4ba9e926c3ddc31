package session

import (
	"encoding/json"
	"errors"

	apperrors "github.com/medecole/examsession/internal/errors"
)

var (
	// ErrInvalidPhase is returned when an operation is called outside the
	// phases that permit it.
	ErrInvalidPhase = errors.New("operation not valid in current phase")
	// ErrAttemptFinalized is returned for mutations after the attempt reached
	// results.
	ErrAttemptFinalized = errors.New("attempt already finalized")
	// ErrSubmitInFlight is returned when a submission is already being
	// dispatched.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrNoSession is returned when an operation needs a started session and
	// none exists.
	ErrNoSession = errors.New("no active session")
)

// ErrorType is the presentation-facing classification of a terminal failure.
type ErrorType string

const (
	ErrorAlreadySubmitted    ErrorType = "ALREADY_SUBMITTED"
	ErrorMaxAttemptsExceeded ErrorType = "MAX_ATTEMPTS_EXCEEDED"
	ErrorNotAvailable        ErrorType = "NOT_AVAILABLE"
	ErrorSessionExpired      ErrorType = "SESSION_EXPIRED"
	ErrorUnknown             ErrorType = "UNKNOWN"
)

// ExamError is the terminal error state retained for presentation after a
// metadata or start failure. Payload carries the service's rejection body,
// such as the previous attempt summary on an already-submitted conflict.
type ExamError struct {
	Type    ErrorType       `json:"type"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// classifyExamError maps a gateway failure to the terminal error taxonomy.
func classifyExamError(err error) *ExamError {
	classified := apperrors.Classify(err)

	examErr := &ExamError{
		Message: classified.Message,
		Payload: classified.Payload,
	}
	switch classified.Kind {
	case apperrors.KindConflict:
		examErr.Type = ErrorAlreadySubmitted
	case apperrors.KindForbidden:
		examErr.Type = ErrorMaxAttemptsExceeded
	case apperrors.KindNotAvailable:
		examErr.Type = ErrorNotAvailable
	case apperrors.KindSessionExpired, apperrors.KindSessionNotFound:
		// A missing session is indistinguishable from an expired one for the
		// user: the attempt cannot continue either way.
		examErr.Type = ErrorSessionExpired
	default:
		examErr.Type = ErrorUnknown
	}
	return examErr
}
