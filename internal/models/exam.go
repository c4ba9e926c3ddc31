package models

// QuestionType identifies how a question is answered.
type QuestionType string

const (
	// QuestionSBA is "single best answer" - exactly one option may be selected.
	QuestionSBA QuestionType = "SBA"
	// QuestionTrueFalse carries an independent true/false judgment per option,
	// producing a multi-valued answer.
	QuestionTrueFalse QuestionType = "TRUE_FALSE"
)

// QuestionOption is one selectable option of a question. Active sessions never
// include correctness information.
type QuestionOption struct {
	Text string `json:"text"`
}

// Question is a single exam question as presented during an active session.
type Question struct {
	ID           uint                      `json:"id"`
	QuestionText string                    `json:"question_text"`
	QuestionType QuestionType              `json:"question_type"`
	Options      map[string]QuestionOption `json:"options"`
	Points       int                       `json:"points"`
}

// ExamMetadata describes an exam before any session exists. It is fetched once
// per attempt lifecycle and immutable afterwards.
type ExamMetadata struct {
	ID              uint    `json:"id"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	TotalQuestions  int     `json:"total_questions"`
	DurationMinutes int     `json:"duration_minutes"`
	PassingScore    float64 `json:"passing_score"`
	TotalMarks      float64 `json:"total_marks"`
	MaxAttempts     int     `json:"max_attempts"`
	Instructions    string  `json:"instructions"`
}

// ExamSession is the live server-side record of an in-progress attempt as seen
// by the client. TimeRemaining is server-authoritative at creation and locally
// decremented afterwards.
type ExamSession struct {
	SessionID     string     `json:"session_id"`
	AttemptID     uint       `json:"attempt_id"`
	Questions     []Question `json:"questions"`
	TimeRemaining int        `json:"time_remaining"`
}

// QuestionIDs returns the ordered ids of the session's question list.
func (s *ExamSession) QuestionIDs() []uint {
	ids := make([]uint, len(s.Questions))
	for i, q := range s.Questions {
		ids[i] = q.ID
	}
	return ids
}
