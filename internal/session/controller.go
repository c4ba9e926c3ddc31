package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/medecole/examsession/internal/answers"
	"github.com/medecole/examsession/internal/cache"
	apperrors "github.com/medecole/examsession/internal/errors"
	"github.com/medecole/examsession/internal/events"
	"github.com/medecole/examsession/internal/gateway"
	"github.com/medecole/examsession/internal/models"
)

// metadataTTL bounds how long cached exam metadata is served before the
// gateway is consulted again.
const metadataTTL = 5 * time.Minute

// ResultSink receives the finalized result after a successful submission so a
// downstream results view can read it without a process-wide mutable slot.
type ResultSink interface {
	Put(ctx context.Context, result *models.ExamResult) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithPublisher sets the lifecycle event publisher. Publishing is
// best-effort; failures are logged and never affect the state machine.
func WithPublisher(publisher events.EventPublisher) Option {
	return func(c *Controller) { c.publisher = publisher }
}

// WithCache sets the metadata cache consulted before the gateway.
func WithCache(svc cache.CacheService) Option {
	return func(c *Controller) { c.cache = svc }
}

// WithResultSink sets the sink that receives the finalized result.
func WithResultSink(sink ResultSink) Option {
	return func(c *Controller) { c.sink = sink }
}

// WithDeviceInfo overrides the device info sent on session start.
func WithDeviceInfo(device gateway.DeviceInfo) Option {
	return func(c *Controller) { c.device = device }
}

// Controller drives one user through a single exam attempt: metadata load,
// instructions, the timed exam/review phases, submission and results. All
// operations and the timer tick are serialized on one mutex; answer syncs are
// the only work running outside it.
type Controller struct {
	mu sync.Mutex

	slug        string
	packageSlug string
	gw          gateway.Gateway
	logger      *slog.Logger
	publisher   events.EventPublisher
	cache       cache.CacheService
	sink        ResultSink
	device      gateway.DeviceInfo

	store     *answers.Store
	countdown *Countdown

	phase   models.Phase
	meta    *models.ExamMetadata
	session *models.ExamSession
	result  *models.ExamResult
	examErr *ExamError

	submitting bool
	autoFired  bool
	tickerStop chan struct{}
	syncWG     sync.WaitGroup
}

// NewController creates a controller for one attempt at the given exam. The
// returned controller is in the loading phase; call LoadMetadata next.
func NewController(examSlug, packageSlug string, gw gateway.Gateway, opts ...Option) *Controller {
	c := &Controller{
		slug:        examSlug,
		packageSlug: packageSlug,
		gw:          gw,
		logger:      slog.Default(),
		device:      gateway.DefaultDeviceInfo(),
		store:       answers.NewStore(),
		countdown:   NewCountdown(0),
		phase:       models.PhaseLoading,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("exam_slug", examSlug)
	return c
}

// LoadMetadata fetches the exam metadata and moves to the instructions phase.
// On failure the controller enters the error phase with a classified error;
// calling LoadMetadata again from there restarts the flow.
func (c *Controller) LoadMetadata(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != models.PhaseLoading && c.phase != models.PhaseError {
		return ErrInvalidPhase
	}
	c.examErr = nil

	meta, err := c.loadMetadataLocked(ctx)
	if err != nil {
		return c.failLocked("metadata load failed", err)
	}

	c.meta = meta
	// Pre-seed from the advertised duration; Start replaces this with the
	// server-reported remaining time.
	c.countdown.Seed(meta.DurationMinutes * 60)
	c.phase = models.PhaseInstructions

	c.logger.Info("exam metadata loaded",
		"title", meta.Title,
		"total_questions", meta.TotalQuestions,
		"duration_minutes", meta.DurationMinutes)
	return nil
}

func (c *Controller) loadMetadataLocked(ctx context.Context) (*models.ExamMetadata, error) {
	key := cache.MetadataKey(c.slug)
	if c.cache != nil {
		var cached models.ExamMetadata
		if err := c.cache.Get(ctx, key, &cached); err == nil {
			c.logger.Debug("exam metadata served from cache")
			return &cached, nil
		} else if !cache.IsKeyNotFound(err) {
			c.logger.Warn("metadata cache read failed", "error", err)
		}
	}

	meta, err := c.gw.GetExamMeta(ctx, c.slug)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, meta, metadataTTL); err != nil {
			c.logger.Warn("metadata cache write failed", "error", err)
		}
	}
	return meta, nil
}

// Start requests a new session, restores any previously-synced answers and
// begins the countdown. Remaining time is seeded from the server-reported
// value, never from the advertised duration, so resumed sessions keep their
// already-reduced clock.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != models.PhaseInstructions {
		return ErrInvalidPhase
	}

	started, err := c.gw.StartExam(ctx, c.slug, &gateway.StartExamRequest{
		PackageSlug: c.packageSlug,
		DeviceInfo:  c.device,
	})
	if err != nil {
		return c.failLocked("exam start failed", err)
	}

	state, err := c.gw.GetSession(ctx, started.SessionID)
	if err != nil {
		return c.failLocked("session fetch failed", err)
	}

	questions := make([]models.Question, len(state.Exam.Questions))
	for i, q := range state.Exam.Questions {
		questions[i] = models.Question{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: mapQuestionType(q.QuestionType),
			Options:      q.Options,
			Points:       q.Points,
		}
	}

	c.session = &models.ExamSession{
		SessionID:     started.SessionID,
		AttemptID:     started.AttemptID,
		Questions:     questions,
		TimeRemaining: state.Session.TimeRemaining,
	}

	c.store.Reset(c.session.QuestionIDs())
	restored := c.store.Restore(state.Session.SavedAnswers)
	if restored > 0 {
		c.logger.Info("restored saved answers",
			"session_id", c.session.SessionID,
			"restored", restored)
	}

	c.countdown.Seed(state.Session.TimeRemaining)
	c.phase = models.PhaseExam
	c.result = nil
	c.autoFired = false
	c.submitting = false

	c.logger.Info("exam session started",
		"session_id", c.session.SessionID,
		"attempt_id", c.session.AttemptID,
		"time_remaining", state.Session.TimeRemaining,
		"total_questions", len(questions))

	c.publishLocked(events.EventSessionStarted, events.SessionStartedEvent{
		TimeRemaining:   state.Session.TimeRemaining,
		TotalQuestions:  len(questions),
		RestoredAnswers: restored,
	})

	if c.countdown.Remaining() <= 0 {
		// A resumed session whose clock already ran out: finalize right away
		// instead of waiting for a tick that will never fire the edge.
		c.autoFired = true
		c.publishLocked(events.EventTimeExpired, events.TimeExpiredEvent{
			AnsweredCount: c.store.AnsweredCount(),
		})
		if _, err := c.finalizeLocked(ctx, true); err != nil {
			return fmt.Errorf("auto-submit of expired session: %w", err)
		}
		return nil
	}

	c.startTickerLocked()
	return nil
}

// UpdateAnswer records the answer locally and mirrors the full current answer
// set to the gateway in the background. The local update never waits for, and
// never fails because of, the sync.
func (c *Controller) UpdateAnswer(ctx context.Context, questionID uint, selections []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == models.PhaseResults {
		return ErrAttemptFinalized
	}
	if !c.phase.Active() {
		return ErrInvalidPhase
	}
	if c.session == nil {
		return ErrNoSession
	}

	if _, err := c.store.Set(questionID, selections); err != nil {
		return fmt.Errorf("answer update rejected: %w", err)
	}

	set := c.store.SyncSet()
	if len(set) == 0 {
		return nil
	}

	c.syncWG.Add(1)
	go c.syncAnswers(c.session.SessionID, c.session.AttemptID, set)
	return nil
}

// syncAnswers pushes the complete answer snapshot. The remote copy is a
// replaceable snapshot, so later calls supersede earlier ones regardless of
// arrival order, and a failure is logged and swallowed.
func (c *Controller) syncAnswers(sessionID string, attemptID uint, set []gateway.AnswerSync) {
	defer c.syncWG.Done()

	ctx := context.Background()
	resp, err := c.gw.SyncAnswers(ctx, sessionID, &gateway.SyncRequest{Answers: set})
	if err != nil {
		c.logger.Warn("answer sync failed, keeping local state",
			"session_id", sessionID,
			"answer_count", len(set),
			"error", err)
		return
	}

	c.logger.Debug("answers synced",
		"session_id", sessionID,
		"synced_count", resp.SyncedCount)
	c.publish(events.EventAnswersSynced, sessionID, attemptID, events.AnswersSyncedEvent{
		SyncedCount:   resp.SyncedCount,
		TimeRemaining: resp.TimeRemaining,
	})
}

// EnterReview switches from exam to the review overview. The countdown keeps
// running; review does not pause the exam.
func (c *Controller) EnterReview() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != models.PhaseExam {
		return ErrInvalidPhase
	}
	c.phase = models.PhaseReview
	return nil
}

// ExitReview returns from review to the exam.
func (c *Controller) ExitReview() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != models.PhaseReview {
		return ErrInvalidPhase
	}
	c.phase = models.PhaseExam
	return nil
}

// Submit finalizes the attempt. The countdown is stopped before the gateway
// call is issued. An already-submitted conflict converges to the results
// phase without an error; any other failure re-opens the exam phase with the
// countdown left stopped at its current value.
func (c *Controller) Submit(ctx context.Context) (*models.ExamResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalizeLocked(ctx, false)
}

func (c *Controller) finalizeLocked(ctx context.Context, auto bool) (*models.ExamResult, error) {
	if c.phase == models.PhaseResults {
		return c.result, ErrAttemptFinalized
	}
	if !c.phase.Active() {
		return nil, ErrInvalidPhase
	}
	if c.session == nil {
		return nil, ErrNoSession
	}
	if c.submitting {
		return nil, ErrSubmitInFlight
	}

	c.submitting = true
	c.stopTickerLocked()

	result, err := c.gw.SubmitExam(ctx, &gateway.SubmitRequest{SessionID: c.session.SessionID})
	c.submitting = false

	if err != nil {
		if apperrors.IsConflict(err) {
			// The attempt is already finalized server-side, which is the end
			// state submission was after. Converge without surfacing an error.
			c.logger.Info("attempt already submitted, converging to results",
				"session_id", c.session.SessionID)
			c.phase = models.PhaseResults
			return nil, nil
		}

		// Re-open the exam so the user can retry. The countdown stays stopped
		// at its current value; resuming is the caller's call.
		c.phase = models.PhaseExam
		c.logger.Error("submit failed, exam re-opened",
			"session_id", c.session.SessionID,
			"auto", auto,
			"error", err)
		return nil, fmt.Errorf("submit failed: %w", err)
	}

	c.result = result
	c.phase = models.PhaseResults

	c.logger.Info("attempt submitted",
		"session_id", c.session.SessionID,
		"score", result.Score,
		"passed", result.Passed,
		"auto", auto)

	c.publishLocked(events.EventAttemptSubmitted, events.AttemptSubmittedEvent{
		Score:         result.Score,
		Passed:        result.Passed,
		AutoSubmitted: auto,
		TimeTaken:     result.TimeTakenSeconds,
	})

	if c.sink != nil {
		if err := c.sink.Put(ctx, result); err != nil {
			c.logger.Warn("failed to store result in sink",
				"session_id", c.session.SessionID,
				"error", err)
		}
	}
	return result, nil
}

// handleTick advances the countdown by one second and dispatches the one-time
// auto-submit when the clock runs out.
func (c *Controller) handleTick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.phase.Active() || c.submitting {
		return
	}

	_, expired := c.countdown.Tick()
	if !expired || c.autoFired {
		return
	}
	c.autoFired = true

	c.logger.Info("session time expired, auto-submitting",
		"session_id", c.session.SessionID,
		"answered", c.store.AnsweredCount())
	c.publishLocked(events.EventTimeExpired, events.TimeExpiredEvent{
		AnsweredCount: c.store.AnsweredCount(),
	})

	if _, err := c.finalizeLocked(ctx, true); err != nil {
		c.logger.Error("auto-submit failed", "error", err)
	}
}

// Reset re-arms the controller for a fresh attempt at the same exam.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTickerLocked()
	c.phase = models.PhaseLoading
	c.meta = nil
	c.session = nil
	c.result = nil
	c.examErr = nil
	c.store = answers.NewStore()
	c.countdown.Seed(0)
	c.autoFired = false
	c.submitting = false

	c.logger.Info("controller reset for a fresh attempt")
}

// Close tears the controller down: the countdown is stopped and in-flight
// answer syncs are waited for. The gateway, publisher and cache are owned by
// the caller and left open.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopTickerLocked()
	c.mu.Unlock()

	c.syncWG.Wait()
}

func (c *Controller) startTickerLocked() {
	c.stopTickerLocked()
	stop := make(chan struct{})
	c.tickerStop = stop

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.handleTick(context.Background())
			}
		}
	}()
}

func (c *Controller) stopTickerLocked() {
	if c.tickerStop != nil {
		close(c.tickerStop)
		c.tickerStop = nil
	}
}

func (c *Controller) failLocked(op string, err error) error {
	c.examErr = classifyExamError(err)
	c.phase = models.PhaseError
	c.logger.Error(op,
		"error_type", c.examErr.Type,
		"error", err)
	return fmt.Errorf("%s: %w", op, err)
}

// publishLocked emits a lifecycle event for the current session. Must be
// called with the mutex held.
func (c *Controller) publishLocked(eventType events.EventType, data interface{}) {
	sessionID := ""
	var attemptID uint
	if c.session != nil {
		sessionID = c.session.SessionID
		attemptID = c.session.AttemptID
	}
	c.publish(eventType, sessionID, attemptID, data)
}

func (c *Controller) publish(eventType events.EventType, sessionID string, attemptID uint, data interface{}) {
	if c.publisher == nil {
		return
	}
	event := events.NewSessionEvent(eventType, c.slug, sessionID, attemptID, data)
	if err := c.publisher.PublishSessionEvent(context.Background(), event); err != nil {
		c.logger.Warn("failed to publish session event",
			"event_type", eventType,
			"error", err)
	}
}

// mapQuestionType converts the service's question type names to the local
// enumeration. Unrecognized types fall back to single best answer.
func mapQuestionType(serviceType string) models.QuestionType {
	switch serviceType {
	case "TRUE_FALSE":
		return models.QuestionTrueFalse
	case "SINGLE_CHOICE":
		return models.QuestionSBA
	default:
		return models.QuestionSBA
	}
}

// Phase returns the current phase.
func (c *Controller) Phase() models.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// TimeRemaining returns the seconds left on the countdown.
func (c *Controller) TimeRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countdown.Remaining()
}

// AnsweredCount returns the number of non-skipped answers.
func (c *Controller) AnsweredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.AnsweredCount()
}

// TotalQuestions returns the session's question count, falling back to the
// metadata's advertised count before a session exists.
func (c *Controller) TotalQuestions() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return len(c.session.Questions)
	}
	if c.meta != nil {
		return c.meta.TotalQuestions
	}
	return 0
}

// Progress returns the answered fraction in [0, 1].
func (c *Controller) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	if c.session != nil {
		total = len(c.session.Questions)
	} else if c.meta != nil {
		total = c.meta.TotalQuestions
	}
	if total == 0 {
		return 0
	}
	return float64(c.store.AnsweredCount()) / float64(total)
}

// CanSubmit reports whether an explicit submission is currently possible.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase.Active() && !c.submitting && c.store.CanSubmit()
}

// ExamError returns the retained terminal error, if the controller is in the
// error phase.
func (c *Controller) ExamError() *ExamError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.examErr
}

// Metadata returns the loaded exam metadata, nil before LoadMetadata.
func (c *Controller) Metadata() *models.ExamMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// Questions returns a copy of the session's question list.
func (c *Controller) Questions() []models.Question {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	questions := make([]models.Question, len(c.session.Questions))
	copy(questions, c.session.Questions)
	return questions
}

// Answer returns the stored answer for a question, if any.
func (c *Controller) Answer(questionID uint) (models.UserAnswer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(questionID)
}

// Result returns the finalized result, nil until a successful submission.
func (c *Controller) Result() *models.ExamResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}
