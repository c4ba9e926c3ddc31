package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/medecole/examsession/internal/errors"
	"github.com/medecole/examsession/internal/models"
	"github.com/medecole/examsession/internal/utils"
)

const defaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a rejection body is retained as payload.
const maxErrorBody = 64 << 10

// Config holds configuration for the HTTP gateway client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  utils.Logger

	// TokenProvider supplies the bearer token for authenticated calls. The
	// surrounding application owns credential storage; the client only
	// attaches what it is given.
	TokenProvider func() string
}

// HTTPGateway is the Gateway implementation speaking JSON over HTTP to the
// remote exam service.
type HTTPGateway struct {
	baseURL   string
	client    *http.Client
	logger    utils.Logger
	validator *utils.Validator
	token     func() string
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway creates a gateway client for the exam service at cfg.BaseURL.
func NewHTTPGateway(cfg Config) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = utils.NewDefaultLogger()
	}
	return &HTTPGateway{
		baseURL:   cfg.BaseURL,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With("component", "exam_gateway"),
		validator: utils.NewValidator(),
		token:     cfg.TokenProvider,
	}
}

// DefaultDeviceInfo builds device info for a headless Go client. The IP
// address is filled in by the service.
func DefaultDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Browser:   "Go",
		UserAgent: "examsession-go (" + runtime.Version() + ")",
		IPAddress: "0.0.0.0",
		ClientID:  uuid.NewString(),
	}
}

func (g *HTTPGateway) GetExamMeta(ctx context.Context, examSlug string) (*models.ExamMetadata, error) {
	var meta models.ExamMetadata
	codes := map[int]string{
		http.StatusNotFound: apperrors.CodeExamNotFound,
	}
	if err := g.do(ctx, http.MethodGet, "/exams/meta/"+examSlug, nil, &meta, codes); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (g *HTTPGateway) StartExam(ctx context.Context, examSlug string, req *StartExamRequest) (*StartExamResponse, error) {
	if err := g.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("invalid start request: %w", err)
	}
	var resp StartExamResponse
	codes := map[int]string{
		http.StatusConflict:  apperrors.CodeExamAlreadySubmitted,
		http.StatusForbidden: apperrors.CodeMaxAttemptsExceeded,
		http.StatusNotFound:  apperrors.CodeExamNotFound,
	}
	if err := g.do(ctx, http.MethodPost, "/exams/"+examSlug+"/start", req, &resp, codes); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *HTTPGateway) GetSession(ctx context.Context, sessionID string) (*SessionResponse, error) {
	var resp SessionResponse
	codes := map[int]string{
		http.StatusNotFound: apperrors.CodeSessionNotFound,
		http.StatusGone:     apperrors.CodeSessionExpired,
	}
	if err := g.do(ctx, http.MethodGet, "/exams/session/"+sessionID, nil, &resp, codes); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *HTTPGateway) SyncAnswers(ctx context.Context, sessionID string, req *SyncRequest) (*SyncResponse, error) {
	if err := g.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("invalid sync request: %w", err)
	}
	var resp SyncResponse
	codes := map[int]string{
		http.StatusNotFound: apperrors.CodeSessionNotFound,
		http.StatusConflict: apperrors.CodeExamAlreadySubmitted,
	}
	if err := g.do(ctx, http.MethodPut, "/exams/session/"+sessionID+"/sync", req, &resp, codes); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *HTTPGateway) SubmitExam(ctx context.Context, req *SubmitRequest) (*models.ExamResult, error) {
	if err := g.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("invalid submit request: %w", err)
	}
	var result models.ExamResult
	codes := map[int]string{
		http.StatusNotFound: apperrors.CodeSessionNotFound,
		http.StatusConflict: apperrors.CodeExamAlreadySubmitted,
	}
	if err := g.do(ctx, http.MethodPost, "/exams/submit", req, &result, codes); err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *HTTPGateway) GetResults(ctx context.Context, sessionID string) (*ResultDetail, error) {
	// The results endpoint wraps its payload in the service's response
	// envelope, unlike the session endpoints.
	var wrapped struct {
		Success bool         `json:"success"`
		Message string       `json:"message"`
		Data    ResultDetail `json:"data"`
	}
	codes := map[int]string{
		http.StatusNotFound: apperrors.CodeSessionNotFound,
	}
	if err := g.do(ctx, http.MethodGet, "/exams/results/"+sessionID, nil, &wrapped, codes); err != nil {
		return nil, err
	}
	return &wrapped.Data, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out any, codes map[int]string) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if g.token != nil {
		if token := g.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("exam service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return g.rejection(method, path, resp, codes)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// rejection turns a non-2xx response into an *errors.APIError. The body is
// retained raw; a structured rejection body refines the code and message, an
// unparseable one degrades to the endpoint's status mapping.
func (g *HTTPGateway) rejection(method, path string, resp *http.Response, codes map[int]string) error {
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		raw = nil
	}

	apiErr := &apperrors.APIError{
		StatusCode: resp.StatusCode,
		Code:       codes[resp.StatusCode],
		Message:    http.StatusText(resp.StatusCode),
		Body:       raw,
	}

	var rejection apperrors.RejectionBody
	if err := json.Unmarshal(raw, &rejection); err == nil {
		if code := rejection.RejectionCode(); code != "" {
			apiErr.Code = code
		}
		if msg := rejection.RejectionMessage(); msg != "" {
			apiErr.Message = msg
		}
	}

	g.logger.Warn("exam service rejected request",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"code", apiErr.Code)

	return apiErr
}
