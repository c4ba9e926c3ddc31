package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medecole/examsession/internal/cache"
	apperrors "github.com/medecole/examsession/internal/errors"
	"github.com/medecole/examsession/internal/events"
	"github.com/medecole/examsession/internal/gateway"
	"github.com/medecole/examsession/internal/models"
)

// fakeGateway is an in-memory Gateway for deterministic controller tests.
type fakeGateway struct {
	mu sync.Mutex

	meta          models.ExamMetadata
	questions     []gateway.SessionQuestion
	timeRemaining int
	saved         []gateway.SavedAnswer
	result        models.ExamResult

	metaErr    error
	startErr   error
	sessionErr error
	syncErr    error
	submitErr  error

	metaCalls   int
	startCalls  int
	submitCalls int
	syncCalls   [][]gateway.AnswerSync
}

func (f *fakeGateway) GetExamMeta(ctx context.Context, examSlug string) (*models.ExamMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaCalls++
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	meta := f.meta
	return &meta, nil
}

func (f *fakeGateway) StartExam(ctx context.Context, examSlug string, req *gateway.StartExamRequest) (*gateway.StartExamResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &gateway.StartExamResponse{SessionID: "sess-1", AttemptID: 1, ExamMeta: f.meta}, nil
}

func (f *fakeGateway) GetSession(ctx context.Context, sessionID string) (*gateway.SessionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return &gateway.SessionResponse{
		Exam: gateway.SessionExam{
			ID:        f.meta.ID,
			Title:     f.meta.Title,
			Slug:      f.meta.Slug,
			Questions: f.questions,
		},
		Session: gateway.SessionState{
			SessionID:     sessionID,
			AttemptID:     1,
			Status:        "in_progress",
			TimeRemaining: f.timeRemaining,
			SavedAnswers:  f.saved,
		},
	}, nil
}

func (f *fakeGateway) SyncAnswers(ctx context.Context, sessionID string, req *gateway.SyncRequest) (*gateway.SyncResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	set := append([]gateway.AnswerSync(nil), req.Answers...)
	f.syncCalls = append(f.syncCalls, set)
	return &gateway.SyncResponse{Success: true, SyncedCount: len(set), TimeRemaining: f.timeRemaining}, nil
}

func (f *fakeGateway) SubmitExam(ctx context.Context, req *gateway.SubmitRequest) (*models.ExamResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	result := f.result
	result.SessionID = req.SessionID
	return &result, nil
}

func (f *fakeGateway) GetResults(ctx context.Context, sessionID string) (*gateway.ResultDetail, error) {
	return &gateway.ResultDetail{}, nil
}

func (f *fakeGateway) recordedSyncs() [][]gateway.AnswerSync {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]gateway.AnswerSync(nil), f.syncCalls...)
}

func apiError(status int, code string) error {
	return &apperrors.APIError{StatusCode: status, Code: code, Message: code}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway() *fakeGateway {
	return &fakeGateway{
		meta: models.ExamMetadata{
			ID:              1,
			Title:           "Algebra Basics",
			Slug:            "algebra-basics",
			TotalQuestions:  2,
			DurationMinutes: 30,
			PassingScore:    50,
			MaxAttempts:     3,
		},
		questions: []gateway.SessionQuestion{
			{ID: 3, QuestionText: "Q3", QuestionType: "TRUE_FALSE", Points: 2},
			{ID: 7, QuestionText: "Q7", QuestionType: "SINGLE_CHOICE", Points: 1},
		},
		timeRemaining: 1200,
		result: models.ExamResult{
			Score:            80,
			Passed:           true,
			TotalQuestions:   2,
			CorrectAnswers:   2,
			TimeTakenSeconds: 600,
		},
	}
}

func newTestController(gw *fakeGateway, opts ...Option) *Controller {
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	return NewController("algebra-basics", "math-pack", gw, opts...)
}

// startExam drives a controller to the exam phase and stops the background
// ticker so tests can advance time deterministically through handleTick.
func startExam(t *testing.T, c *Controller) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.LoadMetadata(ctx))
	require.NoError(t, c.Start(ctx))

	c.mu.Lock()
	c.stopTickerLocked()
	c.mu.Unlock()
}

func TestLoadMetadata(t *testing.T) {
	t.Run("moves to instructions and pre-seeds time from the duration", func(t *testing.T) {
		gw := newTestGateway()
		c := newTestController(gw)
		defer c.Close()

		require.NoError(t, c.LoadMetadata(context.Background()))

		assert.Equal(t, models.PhaseInstructions, c.Phase())
		assert.Equal(t, 1800, c.TimeRemaining())
		require.NotNil(t, c.Metadata())
		assert.Equal(t, "Algebra Basics", c.Metadata().Title)
	})

	t.Run("failure enters the error phase and can be retried", func(t *testing.T) {
		gw := newTestGateway()
		gw.metaErr = errors.New("connection refused")
		c := newTestController(gw)
		defer c.Close()

		err := c.LoadMetadata(context.Background())
		require.Error(t, err)
		assert.Equal(t, models.PhaseError, c.Phase())
		require.NotNil(t, c.ExamError())
		assert.Equal(t, ErrorUnknown, c.ExamError().Type)

		gw.mu.Lock()
		gw.metaErr = nil
		gw.mu.Unlock()

		require.NoError(t, c.LoadMetadata(context.Background()))
		assert.Equal(t, models.PhaseInstructions, c.Phase())
		assert.Nil(t, c.ExamError())
	})

	t.Run("second load is served from the cache", func(t *testing.T) {
		gw := newTestGateway()
		mem := cache.NewMemoryCache()

		first := newTestController(gw, WithCache(mem))
		require.NoError(t, first.LoadMetadata(context.Background()))
		first.Close()

		second := newTestController(gw, WithCache(mem))
		defer second.Close()
		require.NoError(t, second.LoadMetadata(context.Background()))

		gw.mu.Lock()
		defer gw.mu.Unlock()
		assert.Equal(t, 1, gw.metaCalls)
	})

	t.Run("rejected outside loading and error phases", func(t *testing.T) {
		gw := newTestGateway()
		c := newTestController(gw)
		defer c.Close()

		require.NoError(t, c.LoadMetadata(context.Background()))
		assert.ErrorIs(t, c.LoadMetadata(context.Background()), ErrInvalidPhase)
	})
}

func TestStart(t *testing.T) {
	t.Run("seeds remaining time from the server, not the duration", func(t *testing.T) {
		gw := newTestGateway()
		c := newTestController(gw)
		defer c.Close()

		require.NoError(t, c.LoadMetadata(context.Background()))
		assert.Equal(t, 1800, c.TimeRemaining())

		require.NoError(t, c.Start(context.Background()))
		assert.Equal(t, models.PhaseExam, c.Phase())
		assert.Equal(t, 1200, c.TimeRemaining())
	})

	t.Run("maps service question types onto the local enumeration", func(t *testing.T) {
		gw := newTestGateway()
		gw.questions = append(gw.questions, gateway.SessionQuestion{ID: 9, QuestionType: "ESSAY"})
		c := newTestController(gw)
		defer c.Close()

		startExam(t, c)

		questions := c.Questions()
		require.Len(t, questions, 3)
		assert.Equal(t, models.QuestionTrueFalse, questions[0].QuestionType)
		assert.Equal(t, models.QuestionSBA, questions[1].QuestionType)
		assert.Equal(t, models.QuestionSBA, questions[2].QuestionType, "unrecognized types default to SBA")
	})

	t.Run("restores previously synced answers", func(t *testing.T) {
		gw := newTestGateway()
		gw.saved = []gateway.SavedAnswer{
			{QuestionID: 3, SelectedOption: `["a:true","b:false"]`},
			{QuestionID: 7, SelectedOption: "b"},
		}
		c := newTestController(gw)
		defer c.Close()

		startExam(t, c)

		multi, ok := c.Answer(3)
		require.True(t, ok)
		assert.Equal(t, []string{"a:true", "b:false"}, multi.SelectedOptions)

		single, ok := c.Answer(7)
		require.True(t, ok)
		assert.Equal(t, []string{"b"}, single.SelectedOptions)
		assert.Equal(t, 2, c.AnsweredCount())
	})

	t.Run("already-submitted conflict lands in a distinct error state", func(t *testing.T) {
		gw := newTestGateway()
		gw.startErr = apiError(http.StatusConflict, apperrors.CodeExamAlreadySubmitted)
		c := newTestController(gw)
		defer c.Close()

		require.NoError(t, c.LoadMetadata(context.Background()))
		require.Error(t, c.Start(context.Background()))

		assert.Equal(t, models.PhaseError, c.Phase())
		require.NotNil(t, c.ExamError())
		assert.Equal(t, ErrorAlreadySubmitted, c.ExamError().Type)
	})

	t.Run("attempt quota exhaustion lands in a distinct error state", func(t *testing.T) {
		gw := newTestGateway()
		gw.startErr = apiError(http.StatusForbidden, apperrors.CodeMaxAttemptsExceeded)
		c := newTestController(gw)
		defer c.Close()

		require.NoError(t, c.LoadMetadata(context.Background()))
		require.Error(t, c.Start(context.Background()))
		assert.Equal(t, ErrorMaxAttemptsExceeded, c.ExamError().Type)
	})

	t.Run("closed exam window lands in a distinct error state", func(t *testing.T) {
		gw := newTestGateway()
		gw.startErr = apiError(http.StatusForbidden, apperrors.CodeExamNotAvailable)
		c := newTestController(gw)
		defer c.Close()

		require.NoError(t, c.LoadMetadata(context.Background()))
		require.Error(t, c.Start(context.Background()))
		assert.Equal(t, ErrorNotAvailable, c.ExamError().Type)
	})

	t.Run("expired session fetch lands in the session-expired state", func(t *testing.T) {
		gw := newTestGateway()
		gw.sessionErr = apiError(http.StatusGone, apperrors.CodeSessionExpired)
		c := newTestController(gw)
		defer c.Close()

		require.NoError(t, c.LoadMetadata(context.Background()))
		require.Error(t, c.Start(context.Background()))
		assert.Equal(t, ErrorSessionExpired, c.ExamError().Type)
	})

	t.Run("a resumed session with no time left finalizes immediately", func(t *testing.T) {
		gw := newTestGateway()
		gw.timeRemaining = 0
		c := newTestController(gw)
		defer c.Close()

		require.NoError(t, c.LoadMetadata(context.Background()))
		require.NoError(t, c.Start(context.Background()))

		assert.Equal(t, models.PhaseResults, c.Phase())
		gw.mu.Lock()
		defer gw.mu.Unlock()
		assert.Equal(t, 1, gw.submitCalls)
	})
}

func TestUpdateAnswer(t *testing.T) {
	t.Run("replaces the prior answer for a question", func(t *testing.T) {
		gw := newTestGateway()
		c := newTestController(gw)
		startExam(t, c)

		require.NoError(t, c.UpdateAnswer(context.Background(), 7, []string{"b"}))
		require.NoError(t, c.UpdateAnswer(context.Background(), 7, []string{"a"}))
		c.Close()

		answer, ok := c.Answer(7)
		require.True(t, ok)
		assert.Equal(t, []string{"a"}, answer.SelectedOptions)
		assert.Equal(t, 1, c.AnsweredCount())
	})

	t.Run("every change pushes the full non-skipped set", func(t *testing.T) {
		gw := newTestGateway()
		c := newTestController(gw)
		startExam(t, c)

		require.NoError(t, c.UpdateAnswer(context.Background(), 7, []string{"b"}))
		require.NoError(t, c.UpdateAnswer(context.Background(), 3, []string{"a:true", "b:false"}))
		c.Close()

		syncs := gw.recordedSyncs()
		require.Len(t, syncs, 2)
		last := syncs[len(syncs)-1]
		require.Len(t, last, 2)
		assert.Equal(t, uint(3), last[0].QuestionID)
		assert.Equal(t, `["a:true","b:false"]`, last[0].SelectedOption)
		assert.Equal(t, uint(7), last[1].QuestionID)
	})

	t.Run("sync failures are swallowed and local state stays authoritative", func(t *testing.T) {
		gw := newTestGateway()
		gw.syncErr = errors.New("network down")
		c := newTestController(gw)
		startExam(t, c)

		require.NoError(t, c.UpdateAnswer(context.Background(), 7, []string{"b"}))
		c.Close()

		answer, ok := c.Answer(7)
		require.True(t, ok)
		assert.Equal(t, []string{"b"}, answer.SelectedOptions)
		assert.Empty(t, gw.recordedSyncs())
	})

	t.Run("rejects unknown question ids", func(t *testing.T) {
		gw := newTestGateway()
		c := newTestController(gw)
		defer c.Close()
		startExam(t, c)

		err := c.UpdateAnswer(context.Background(), 99, []string{"a"})
		assert.Error(t, err)
		assert.Equal(t, 0, c.AnsweredCount())
	})

	t.Run("rejected before the session starts", func(t *testing.T) {
		gw := newTestGateway()
		c := newTestController(gw)
		defer c.Close()

		require.NoError(t, c.LoadMetadata(context.Background()))
		assert.ErrorIs(t, c.UpdateAnswer(context.Background(), 7, []string{"b"}), ErrInvalidPhase)
	})

	t.Run("allowed during review", func(t *testing.T) {
		gw := newTestGateway()
		c := newTestController(gw)
		defer c.Close()
		startExam(t, c)

		require.NoError(t, c.EnterReview())
		assert.NoError(t, c.UpdateAnswer(context.Background(), 7, []string{"b"}))
	})
}

func TestReviewToggle(t *testing.T) {
	gw := newTestGateway()
	c := newTestController(gw)
	defer c.Close()
	startExam(t, c)

	require.NoError(t, c.EnterReview())
	assert.Equal(t, models.PhaseReview, c.Phase())

	// The countdown keeps running across the toggle.
	before := c.TimeRemaining()
	c.handleTick(context.Background())
	assert.Equal(t, before-1, c.TimeRemaining())

	require.NoError(t, c.ExitReview())
	assert.Equal(t, models.PhaseExam, c.Phase())

	assert.ErrorIs(t, c.ExitReview(), ErrInvalidPhase)
}

func TestSubmit(t *testing.T) {
	t.Run("success finalizes the attempt and exposes the result", func(t *testing.T) {
		gw := newTestGateway()
		publisher := events.NewMockEventPublisher(testLogger())
		sink := cache.NewResultSink(cache.NewMemoryCache(), 0)
		c := newTestController(gw, WithPublisher(publisher), WithResultSink(sink))
		defer c.Close()
		startExam(t, c)

		require.NoError(t, c.UpdateAnswer(context.Background(), 7, []string{"b"}))
		require.True(t, c.CanSubmit())

		result, err := c.Submit(context.Background())
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, float64(80), result.Score)
		assert.True(t, result.Passed)
		assert.Equal(t, models.PhaseResults, c.Phase())
		assert.Equal(t, result, c.Result())

		stored, err := sink.Load(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Equal(t, result.Score, stored.Score)

		var submitted bool
		for _, event := range publisher.GetPublishedEvents() {
			if event.Type == events.EventAttemptSubmitted {
				submitted = true
			}
		}
		assert.True(t, submitted, "expected an attempt submitted event")
	})

	t.Run("already-submitted conflict converges to results without an error", func(t *testing.T) {
		gw := newTestGateway()
		gw.submitErr = apiError(http.StatusConflict, apperrors.CodeExamAlreadySubmitted)
		c := newTestController(gw)
		defer c.Close()
		startExam(t, c)

		result, err := c.Submit(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, models.PhaseResults, c.Phase())
		assert.Nil(t, c.ExamError())
	})

	t.Run("other failures re-open the exam without restarting the timer", func(t *testing.T) {
		gw := newTestGateway()
		gw.submitErr = errors.New("gateway timeout")
		c := newTestController(gw)
		defer c.Close()
		startExam(t, c)

		require.NoError(t, c.EnterReview())

		_, err := c.Submit(context.Background())
		require.Error(t, err)
		assert.Equal(t, models.PhaseExam, c.Phase())

		c.mu.Lock()
		assert.Nil(t, c.tickerStop, "timer must stay stopped until the caller resumes")
		c.mu.Unlock()

		// The attempt can be retried.
		gw.mu.Lock()
		gw.submitErr = nil
		gw.mu.Unlock()
		result, err := c.Submit(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, result)
		assert.Equal(t, models.PhaseResults, c.Phase())
	})

	t.Run("mutation is rejected after results", func(t *testing.T) {
		gw := newTestGateway()
		c := newTestController(gw)
		defer c.Close()
		startExam(t, c)

		_, err := c.Submit(context.Background())
		require.NoError(t, err)

		assert.ErrorIs(t, c.UpdateAnswer(context.Background(), 7, []string{"b"}), ErrAttemptFinalized)
		_, err = c.Submit(context.Background())
		assert.ErrorIs(t, err, ErrAttemptFinalized)
		gw.mu.Lock()
		defer gw.mu.Unlock()
		assert.Equal(t, 1, gw.submitCalls)
	})
}

func TestAutoSubmit(t *testing.T) {
	t.Run("fires exactly once when time runs out", func(t *testing.T) {
		gw := newTestGateway()
		gw.timeRemaining = 3
		publisher := events.NewMockEventPublisher(testLogger())
		c := newTestController(gw, WithPublisher(publisher))
		defer c.Close()
		startExam(t, c)

		require.NoError(t, c.UpdateAnswer(context.Background(), 7, []string{"b"}))

		for i := 0; i < 5; i++ {
			c.handleTick(context.Background())
		}

		assert.Equal(t, models.PhaseResults, c.Phase())
		assert.Equal(t, 0, c.TimeRemaining())
		gw.mu.Lock()
		assert.Equal(t, 1, gw.submitCalls)
		gw.mu.Unlock()

		var expired bool
		for _, event := range publisher.GetPublishedEvents() {
			if event.Type == events.EventTimeExpired {
				expired = true
			}
		}
		assert.True(t, expired, "expected a time expired event")
	})

	t.Run("fires during review as well", func(t *testing.T) {
		gw := newTestGateway()
		gw.timeRemaining = 1
		c := newTestController(gw)
		defer c.Close()
		startExam(t, c)

		require.NoError(t, c.EnterReview())
		c.handleTick(context.Background())

		assert.Equal(t, models.PhaseResults, c.Phase())
	})

	t.Run("does not fire again after a failed auto-submit", func(t *testing.T) {
		gw := newTestGateway()
		gw.timeRemaining = 1
		gw.submitErr = errors.New("gateway timeout")
		c := newTestController(gw)
		defer c.Close()
		startExam(t, c)

		c.handleTick(context.Background())
		assert.Equal(t, models.PhaseExam, c.Phase())

		c.handleTick(context.Background())
		gw.mu.Lock()
		defer gw.mu.Unlock()
		assert.Equal(t, 1, gw.submitCalls, "the expiry edge fires once; retry is explicit")
	})
}

func TestProgress(t *testing.T) {
	gw := newTestGateway()
	c := newTestController(gw)
	defer c.Close()

	assert.Equal(t, 0.0, c.Progress())

	startExam(t, c)
	assert.Equal(t, 2, c.TotalQuestions())

	require.NoError(t, c.UpdateAnswer(context.Background(), 7, []string{"b"}))
	assert.InDelta(t, 0.5, c.Progress(), 1e-9)
	assert.Equal(t, 1, c.AnsweredCount())

	// A skipped question does not count as progress.
	require.NoError(t, c.UpdateAnswer(context.Background(), 3, nil))
	assert.InDelta(t, 0.5, c.Progress(), 1e-9)
}

func TestReset(t *testing.T) {
	gw := newTestGateway()
	c := newTestController(gw)
	defer c.Close()
	startExam(t, c)

	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	c.Reset()

	assert.Equal(t, models.PhaseLoading, c.Phase())
	assert.Nil(t, c.Metadata())
	assert.Nil(t, c.Result())
	assert.Equal(t, 0, c.TimeRemaining())
	assert.Equal(t, 0, c.AnsweredCount())

	// The controller can run a fresh attempt.
	require.NoError(t, c.LoadMetadata(context.Background()))
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, models.PhaseExam, c.Phase())
}
