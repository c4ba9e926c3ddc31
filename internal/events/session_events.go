package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the lifecycle events a session emits.
type EventType string

const (
	EventSessionStarted   EventType = "exam.session.started"
	EventAnswersSynced    EventType = "exam.answers.synced"
	EventAttemptSubmitted EventType = "exam.attempt.submitted"
	EventTimeExpired      EventType = "exam.session.time_expired"
)

// SessionEvent is the base event structure for all session lifecycle events.
type SessionEvent struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	ExamSlug  string      `json:"exam_slug"`
	SessionID string      `json:"session_id,omitempty"`
	AttemptID uint        `json:"attempt_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// NewSessionEvent builds a session event with identity and envelope fields
// filled in.
func NewSessionEvent(eventType EventType, examSlug, sessionID string, attemptID uint, data interface{}) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "examsession",
		Version:   "1.0",
		ExamSlug:  examSlug,
		SessionID: sessionID,
		AttemptID: attemptID,
		Data:      data,
	}
}

// Session lifecycle event payloads

type SessionStartedEvent struct {
	TimeRemaining   int `json:"time_remaining"`
	TotalQuestions  int `json:"total_questions"`
	RestoredAnswers int `json:"restored_answers"`
}

type AnswersSyncedEvent struct {
	SyncedCount   int `json:"synced_count"`
	TimeRemaining int `json:"time_remaining"`
}

type AttemptSubmittedEvent struct {
	Score         float64 `json:"score"`
	Passed        bool    `json:"passed"`
	AutoSubmitted bool    `json:"auto_submitted"`
	TimeTaken     int     `json:"time_taken_seconds"`
}

type TimeExpiredEvent struct {
	AnsweredCount int `json:"answered_count"`
}
