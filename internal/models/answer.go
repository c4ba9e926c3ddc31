package models

import "time"

// UserAnswer is the local record of a user's answer to one question. An empty
// selection list marks the question skipped - the entry remains, distinct from
// "no entry at all".
type UserAnswer struct {
	QuestionID      uint      `json:"question_id"`
	SelectedOptions []string  `json:"selected_options"`
	IsSkipped       bool      `json:"is_skipped"`
	AnsweredAt      time.Time `json:"answered_at"`
}

// Answered reports whether the answer counts toward progress: a non-skipped
// entry with at least one selection.
func (a UserAnswer) Answered() bool {
	return !a.IsSkipped && len(a.SelectedOptions) > 0
}
