package models

// ExamResult is the finalized outcome of a submitted attempt, produced by the
// remote exam service. The client never computes scores itself.
type ExamResult struct {
	SessionID        string  `json:"session_id"`
	Score            float64 `json:"score"`
	Passed           bool    `json:"passed"`
	TotalQuestions   int     `json:"total_questions"`
	CorrectAnswers   int     `json:"correct_answers"`
	TimeTakenSeconds int     `json:"time_taken_seconds"`
	SubmittedAt      string  `json:"submitted_at"`
}
