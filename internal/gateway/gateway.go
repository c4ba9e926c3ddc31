package gateway

import (
	"context"
	"encoding/json"

	"github.com/medecole/examsession/internal/models"
)

// Gateway is the network boundary to the remote exam service. It exposes the
// metadata, session start/fetch, answer sync, submit and results operations
// the session engine consumes. Implementations return *errors.APIError for
// structured rejections so callers can classify them.
type Gateway interface {
	GetExamMeta(ctx context.Context, examSlug string) (*models.ExamMetadata, error)
	StartExam(ctx context.Context, examSlug string, req *StartExamRequest) (*StartExamResponse, error)
	GetSession(ctx context.Context, sessionID string) (*SessionResponse, error)
	SyncAnswers(ctx context.Context, sessionID string, req *SyncRequest) (*SyncResponse, error)
	SubmitExam(ctx context.Context, req *SubmitRequest) (*models.ExamResult, error)
	GetResults(ctx context.Context, sessionID string) (*ResultDetail, error)
}

// DeviceInfo describes the client taking the exam. The service records it
// against the attempt; the IP address is determined server-side.
type DeviceInfo struct {
	Browser   string `json:"browser"`
	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`
	ClientID  string `json:"client_id,omitempty"`
}

// StartExamRequest starts a new exam session.
type StartExamRequest struct {
	PackageSlug string     `json:"package_slug" validate:"required"`
	DeviceInfo  DeviceInfo `json:"device_info"`
}

// StartExamResponse is the session handle issued by the service.
type StartExamResponse struct {
	SessionID string              `json:"session_id"`
	AttemptID uint                `json:"attempt_id"`
	ExamMeta  models.ExamMetadata `json:"exam_meta"`
}

// SessionQuestion is a question as the service ships it for an active
// session: service-side type names, no correctness information.
type SessionQuestion struct {
	ID           uint                             `json:"id"`
	QuestionText string                           `json:"question_text"`
	QuestionType string                           `json:"question_type"`
	Options      map[string]models.QuestionOption `json:"options"`
	Points       int                              `json:"points"`
}

// SessionExam is the exam content of a session response.
type SessionExam struct {
	ID              uint              `json:"id"`
	Title           string            `json:"title"`
	Slug            string            `json:"slug"`
	DurationMinutes int               `json:"duration_minutes"`
	PassingScore    float64           `json:"passing_score"`
	TotalMarks      float64           `json:"total_marks"`
	Instructions    string            `json:"instructions"`
	Questions       []SessionQuestion `json:"questions"`
}

// SavedAnswer is a previously-synced answer returned on session fetch. The
// selected option is a single scalar or a JSON-array string for multi-valued
// answers; see the answers package codec.
type SavedAnswer struct {
	QuestionID     uint   `json:"question_id"`
	SelectedOption string `json:"selected_option"`
}

// SessionState is the timing and progress side of a session response.
// TimeRemaining is server-authoritative.
type SessionState struct {
	SessionID     string        `json:"session_id"`
	AttemptID     uint          `json:"attempt_id"`
	Status        string        `json:"status"`
	TimeRemaining int           `json:"time_remaining"`
	StartedAt     string        `json:"started_at,omitempty"`
	SavedAnswers  []SavedAnswer `json:"saved_answers,omitempty"`
}

// SessionResponse is the full payload of GET /exams/session/{id}.
type SessionResponse struct {
	Exam    SessionExam  `json:"exam"`
	Session SessionState `json:"session"`
}

// AnswerSync is one answer in a sync request.
type AnswerSync struct {
	QuestionID     uint   `json:"question_id" validate:"required"`
	SelectedOption string `json:"selected_option" validate:"required"`
}

// SyncRequest replaces the server-side answer snapshot with the full current
// answer set.
type SyncRequest struct {
	Answers []AnswerSync `json:"answers" validate:"required,min=1,dive"`
}

// SyncResponse acknowledges a sync.
type SyncResponse struct {
	Success       bool   `json:"success"`
	SyncedCount   int    `json:"synced_count"`
	LastSyncAt    string `json:"last_sync_at"`
	TimeRemaining int    `json:"time_remaining"`
}

// SubmitRequest finalizes a session.
type SubmitRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// ResultOption is one option in the post-submission answer breakdown.
type ResultOption struct {
	ID         int    `json:"id"`
	OptionText string `json:"option_text"`
	IsCorrect  bool   `json:"is_correct"`
}

// ResultQuestion is one question in the post-submission answer breakdown.
// Correct and user answers are polymorphic (option index for SBA, judgment
// list for true/false sets), so they stay raw for the consumer to interpret.
type ResultQuestion struct {
	ID            uint            `json:"id"`
	Question      string          `json:"question"`
	QuestionType  string          `json:"question_type"`
	Options       []ResultOption  `json:"options"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	UserAnswer    json.RawMessage `json:"user_answer"`
	IsCorrect     *bool           `json:"is_correct,omitempty"`
	EarnedPoints  *float64        `json:"earned_points,omitempty"`
}

// ResultAttempt is the attempt summary in the result detail.
type ResultAttempt struct {
	ID              uint    `json:"id"`
	Status          string  `json:"status"`
	StartedAt       string  `json:"started_at"`
	CompletedAt     string  `json:"completed_at"`
	Score           float64 `json:"score"`
	MaxScore        float64 `json:"max_score"`
	ScorePercentage float64 `json:"score_percentage"`
	CorrectAnswers  int     `json:"correct_answers"`
	WrongAnswers    int     `json:"wrong_answers"`
	IsPassed        bool    `json:"is_passed"`
	TimeSpent       int     `json:"time_spent"`
}

// ResultDetail is the full answer/result breakdown for a finalized session.
// It feeds the downstream results view, not the session engine's control flow.
type ResultDetail struct {
	Exam      models.ExamMetadata `json:"exam"`
	Attempt   ResultAttempt       `json:"attempt"`
	Questions []ResultQuestion    `json:"questions"`
}
