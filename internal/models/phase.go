package models

// Phase is the current stage of an exam attempt. Exactly one phase is active
// at a time; there is no phase stack.
type Phase string

const (
	PhaseLoading      Phase = "loading"
	PhaseInstructions Phase = "instructions"
	PhaseExam         Phase = "exam"
	PhaseReview       Phase = "review"
	PhaseResults      Phase = "results"
	PhaseError        Phase = "error"
)

// Active reports whether the countdown is running and answers may be mutated.
func (p Phase) Active() bool {
	return p == PhaseExam || p == PhaseReview
}
