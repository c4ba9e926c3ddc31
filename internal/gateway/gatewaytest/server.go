// Package gatewaytest provides an in-process fake of the remote exam service
// for transport-level and end-to-end tests. Handlers mirror the real
// service's routes, success payloads and structured rejection bodies.
package gatewaytest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medecole/examsession/internal/errors"
	"github.com/medecole/examsession/internal/gateway"
	"github.com/medecole/examsession/internal/models"
)

// Operation names accepted by Reject.
const (
	OpMeta    = "meta"
	OpStart   = "start"
	OpSession = "session"
	OpSync    = "sync"
	OpSubmit  = "submit"
	OpResults = "results"
)

type rejection struct {
	status int
	body   gin.H
}

// Server fakes the exam service for a single exam. Configure the exported
// fields before issuing requests; mutate behavior mid-test with Reject and
// MarkSubmitted.
type Server struct {
	mu sync.Mutex

	meta      models.ExamMetadata
	questions []gateway.SessionQuestion

	// TimeRemaining seeds new sessions; SavedAnswers are returned on session
	// fetch to exercise restoration.
	TimeRemaining int
	SavedAnswers  []gateway.SavedAnswer

	// Result is returned on submit, Detail on the results endpoint.
	Result models.ExamResult
	Detail gateway.ResultDetail

	rejects map[string]rejection

	submitted     bool
	sessionSeq    int
	activeSession string
	attemptID     uint

	startCalls  int
	submitCalls int
	syncCalls   []gateway.SyncRequest

	srv *httptest.Server
}

// New starts a fake exam service for the given exam. Close must be called
// when done.
func New(meta models.ExamMetadata, questions []gateway.SessionQuestion) *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		meta:          meta,
		questions:     questions,
		TimeRemaining: meta.DurationMinutes * 60,
		rejects:       make(map[string]rejection),
	}

	router := gin.New()
	router.GET("/exams/meta/:slug", s.handleMeta)
	router.POST("/exams/:slug/start", s.handleStart)
	router.GET("/exams/session/:id", s.handleSession)
	router.PUT("/exams/session/:id/sync", s.handleSync)
	router.POST("/exams/submit", s.handleSubmit)
	router.GET("/exams/results/:id", s.handleResults)

	s.srv = httptest.NewServer(router)
	return s
}

// URL returns the base URL of the fake service.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts the fake service down.
func (s *Server) Close() {
	s.srv.Close()
}

// Reject makes the named operation fail with the given status and body until
// ClearRejection is called.
func (s *Server) Reject(op string, status int, body gin.H) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects[op] = rejection{status: status, body: body}
}

// ClearRejection restores the named operation's normal behavior.
func (s *Server) ClearRejection(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rejects, op)
}

// MarkSubmitted puts the exam in the already-finalized state: start, sync and
// submit all answer with the already-submitted conflict.
func (s *Server) MarkSubmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = true
}

// ActiveSession returns the id of the most recently started session.
func (s *Server) ActiveSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSession
}

// StartCalls returns how many start requests were received.
func (s *Server) StartCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCalls
}

// SubmitCalls returns how many submit requests were received.
func (s *Server) SubmitCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitCalls
}

// SyncCalls returns a copy of every sync request received, in arrival order.
func (s *Server) SyncCalls() []gateway.SyncRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gateway.SyncRequest(nil), s.syncCalls...)
}

// LastSync returns the most recent sync request, if any.
func (s *Server) LastSync() (gateway.SyncRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.syncCalls) == 0 {
		return gateway.SyncRequest{}, false
	}
	return s.syncCalls[len(s.syncCalls)-1], true
}

func (s *Server) rejected(c *gin.Context, op string) bool {
	if r, ok := s.rejects[op]; ok {
		c.JSON(r.status, r.body)
		return true
	}
	return false
}

func (s *Server) handleMeta(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rejected(c, OpMeta) {
		return
	}
	if c.Param("slug") != s.meta.Slug {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "exam not found",
			"error_code": errors.CodeExamNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, s.meta)
}

func (s *Server) handleStart(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startCalls++
	if s.rejected(c, OpStart) {
		return
	}

	var req gateway.StartExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if c.Param("slug") != s.meta.Slug {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "exam not found",
			"error_code": errors.CodeExamNotFound,
		})
		return
	}
	if s.submitted {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "exam already submitted",
			"error_code": errors.CodeExamAlreadySubmitted,
			"data": gin.H{
				"previous_attempt": gin.H{
					"attempt_id":   s.attemptID,
					"submitted_at": time.Now().UTC().Format(time.RFC3339),
					"score":        s.Result.Score,
					"status":       "completed",
				},
				"can_retry": false,
			},
		})
		return
	}

	s.sessionSeq++
	s.activeSession = fmt.Sprintf("sess-%d", s.sessionSeq)
	s.attemptID = uint(s.sessionSeq)

	c.JSON(http.StatusOK, gateway.StartExamResponse{
		SessionID: s.activeSession,
		AttemptID: s.attemptID,
		ExamMeta:  s.meta,
	})
}

func (s *Server) handleSession(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rejected(c, OpSession) {
		return
	}
	if c.Param("id") != s.activeSession || s.activeSession == "" {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "session not found",
			"error_code": errors.CodeSessionNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, gateway.SessionResponse{
		Exam: gateway.SessionExam{
			ID:              s.meta.ID,
			Title:           s.meta.Title,
			Slug:            s.meta.Slug,
			DurationMinutes: s.meta.DurationMinutes,
			PassingScore:    s.meta.PassingScore,
			TotalMarks:      s.meta.TotalMarks,
			Instructions:    s.meta.Instructions,
			Questions:       s.questions,
		},
		Session: gateway.SessionState{
			SessionID:     s.activeSession,
			AttemptID:     s.attemptID,
			Status:        "in_progress",
			TimeRemaining: s.TimeRemaining,
			StartedAt:     time.Now().UTC().Format(time.RFC3339),
			SavedAnswers:  s.SavedAnswers,
		},
	})
}

func (s *Server) handleSync(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rejected(c, OpSync) {
		return
	}

	var req gateway.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if c.Param("id") != s.activeSession || s.activeSession == "" {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "session not found",
			"error_code": errors.CodeSessionNotFound,
		})
		return
	}
	if s.submitted {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "exam already submitted",
			"error_code": errors.CodeExamAlreadySubmitted,
		})
		return
	}

	s.syncCalls = append(s.syncCalls, req)

	c.JSON(http.StatusOK, gateway.SyncResponse{
		Success:       true,
		SyncedCount:   len(req.Answers),
		LastSyncAt:    time.Now().UTC().Format(time.RFC3339),
		TimeRemaining: s.TimeRemaining,
	})
}

func (s *Server) handleSubmit(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.submitCalls++
	if s.rejected(c, OpSubmit) {
		return
	}

	var req gateway.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.SessionID != s.activeSession || s.activeSession == "" {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "session not found",
			"error_code": errors.CodeSessionNotFound,
		})
		return
	}
	if s.submitted {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "exam already submitted",
			"error_code": errors.CodeExamAlreadySubmitted,
		})
		return
	}

	s.submitted = true
	result := s.Result
	result.SessionID = req.SessionID
	if result.SubmittedAt == "" {
		result.SubmittedAt = time.Now().UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleResults(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rejected(c, OpResults) {
		return
	}
	if c.Param("id") != s.activeSession || s.activeSession == "" {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "session not found",
			"error_code": errors.CodeSessionNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "results retrieved",
		"data":    s.Detail,
	})
}
