package errors

import (
	"encoding/json"
	"fmt"
)

// Rejection codes the remote exam service attaches to structured error bodies.
const (
	CodeExamNotFound         = "EXAM_NOT_FOUND"
	CodeExamAlreadySubmitted = "EXAM_ALREADY_SUBMITTED"
	CodeMaxAttemptsExceeded  = "MAX_ATTEMPTS_EXCEEDED"
	CodeExamNotAvailable     = "EXAM_NOT_AVAILABLE"
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeSessionExpired       = "SESSION_EXPIRED"
)

// APIError is a rejection from the remote exam service. Body holds the raw
// response body so domain payloads (previous attempt summary, attempt counts,
// availability window) survive classification intact.
type APIError struct {
	StatusCode int             `json:"status_code"`
	Code       string          `json:"code,omitempty"`
	Message    string          `json:"message"`
	Body       json.RawMessage `json:"body,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exam service rejected request (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("exam service rejected request (status %d): %s", e.StatusCode, e.Message)
}

// RejectionBody is the structured error body the exam service sends. Field
// naming varies across endpoints, so both code spellings are accepted.
type RejectionBody struct {
	Err       string          `json:"error,omitempty"`
	Code      string          `json:"code,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RejectionCode returns the service-assigned code, whichever field carried it.
func (b *RejectionBody) RejectionCode() string {
	if b.ErrorCode != "" {
		return b.ErrorCode
	}
	return b.Code
}

// RejectionMessage returns the human-readable text of the rejection.
func (b *RejectionBody) RejectionMessage() string {
	if b.Message != "" {
		return b.Message
	}
	return b.Err
}
