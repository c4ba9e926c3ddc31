package answers

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/medecole/examsession/internal/gateway"
	"github.com/medecole/examsession/internal/models"
)

// ErrUnknownQuestion is returned when an answer targets a question id that is
// not part of the current session's question list.
var ErrUnknownQuestion = errors.New("question is not part of the current session")

// Store holds the authoritative local answer set for the current attempt,
// keyed by question id. Entries are only ever overwritten, never removed; an
// empty selection marks the question skipped.
type Store struct {
	mu      sync.RWMutex
	allowed map[uint]struct{}
	byID    map[uint]models.UserAnswer
}

// NewStore creates an empty store. Reset must be called with the session's
// question ids before answers can be set.
func NewStore() *Store {
	return &Store{
		allowed: make(map[uint]struct{}),
		byID:    make(map[uint]models.UserAnswer),
	}
}

// Reset clears all answers and constrains the store to the given question ids.
func (s *Store) Reset(questionIDs []uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowed = make(map[uint]struct{}, len(questionIDs))
	for _, id := range questionIDs {
		s.allowed[id] = struct{}{}
	}
	s.byID = make(map[uint]models.UserAnswer, len(questionIDs))
}

// Set records the answer for a question, replacing any prior answer. An empty
// selection list marks the question skipped.
func (s *Store) Set(questionID uint, selections []string) (models.UserAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.allowed[questionID]; !ok {
		return models.UserAnswer{}, ErrUnknownQuestion
	}

	answer := models.UserAnswer{
		QuestionID:      questionID,
		SelectedOptions: selections,
		IsSkipped:       len(selections) == 0,
		AnsweredAt:      time.Now(),
	}
	s.byID[questionID] = answer
	return answer, nil
}

// Get returns the stored answer for a question, if any.
func (s *Store) Get(questionID uint) (models.UserAnswer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	answer, ok := s.byID[questionID]
	return answer, ok
}

// Len returns the number of entries, skipped ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// AnsweredCount returns the number of non-skipped answers with at least one
// selection.
func (s *Store) AnsweredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, answer := range s.byID {
		if answer.Answered() {
			count++
		}
	}
	return count
}

// CanSubmit reports whether at least one non-skipped answer exists.
func (s *Store) CanSubmit() bool {
	return s.AnsweredCount() > 0
}

// All returns every stored answer, ordered by question id.
func (s *Store) All() []models.UserAnswer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]models.UserAnswer, 0, len(s.byID))
	for _, answer := range s.byID {
		all = append(all, answer)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].QuestionID < all[j].QuestionID })
	return all
}

// SyncSet encodes the entire current non-skipped answer set for a sync call.
// The remote cache is a replaceable snapshot, so every sync carries the full
// set rather than a delta.
func (s *Store) SyncSet() []gateway.AnswerSync {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make([]gateway.AnswerSync, 0, len(s.byID))
	for _, answer := range s.byID {
		if !answer.Answered() {
			continue
		}
		set = append(set, gateway.AnswerSync{
			QuestionID:     answer.QuestionID,
			SelectedOption: EncodeSelection(answer.SelectedOptions),
		})
	}
	sort.Slice(set, func(i, j int) bool { return set[i].QuestionID < set[j].QuestionID })
	return set
}

// Restore decodes previously-synced answers into the store and returns how
// many were loaded. Saved answers for questions outside the session's
// question list are dropped.
func (s *Store) Restore(saved []gateway.SavedAnswer) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, entry := range saved {
		if _, ok := s.allowed[entry.QuestionID]; !ok {
			continue
		}
		s.byID[entry.QuestionID] = models.UserAnswer{
			QuestionID:      entry.QuestionID,
			SelectedOptions: DecodeSelection(entry.SelectedOption),
			IsSkipped:       false,
			AnsweredAt:      time.Now(),
		}
		restored++
	}
	return restored
}
