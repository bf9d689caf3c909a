// Package genclient wraps the content generator API. All lesson, quiz,
// grading, diagnostic and planning content comes through here; callers get
// schema-validated structs or a classified error, never raw model output.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/derasmus-hub/intake-eval-school/internal/config"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/httpx"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

// UseCase selects the model tier for a request.
type UseCase string

const (
	UseLesson     UseCase = "lesson"
	UseQuiz       UseCase = "quiz"
	UseAssessment UseCase = "assessment"
	UsePlan       UseCase = "plan"
	UseGrading    UseCase = "grading"
	UseExtraction UseCase = "extraction"
)

// Request is one generation job. Out must be a pointer to the expected
// contract struct; the client unmarshals and validates into it.
type Request struct {
	UseCase    UseCase
	PromptName string
	System     string
	User       string
	StudentID  *uint
}

type Generator interface {
	Generate(ctx context.Context, req Request, out any) error
}

type Client struct {
	baseURL      string
	apiKey       string
	timeoutFirst time.Duration
	timeoutRetry time.Duration
	retries      int
	models       map[UseCase]string
	httpClient   *http.Client
	validate     *validator.Validate
	calls        repos.GenCallRepo
	log          *logger.Logger
}

func New(cfg config.Settings, calls repos.GenCallRepo, log *logger.Logger) *Client {
	pick := func(specific string) string {
		if specific != "" {
			return specific
		}
		return cfg.GeneratorModel
	}
	return &Client{
		baseURL:      cfg.GeneratorBaseURL,
		apiKey:       cfg.GeneratorAPIKey,
		timeoutFirst: cfg.GeneratorTimeoutInitial,
		timeoutRetry: cfg.GeneratorTimeoutRetry,
		retries:      cfg.GeneratorRetries,
		models: map[UseCase]string{
			UseLesson:     pick(cfg.GeneratorLessonModel),
			UseQuiz:       pick(cfg.GeneratorLessonModel),
			UseAssessment: pick(cfg.GeneratorAssessModel),
			UsePlan:       pick(cfg.GeneratorAssessModel),
			UseGrading:    pick(cfg.GeneratorCheapModel),
			UseExtraction: pick(cfg.GeneratorCheapModel),
		},
		httpClient: &http.Client{},
		validate:   validator.New(),
		calls:      calls,
		log:        log.With("service", "GenClient"),
	}
}

// Generate runs the request with the configured retry budget. Timeouts and
// transient upstream failures get one shorter retry; malformed output fails
// immediately because a second identical prompt rarely fixes a schema
// violation and the budget is better spent surfacing the failure.
func (c *Client) Generate(ctx context.Context, req Request, out any) error {
	model := c.models[req.UseCase]
	if model == "" {
		return fmt.Errorf("%w: no model for use case %q", apperr.ErrValidation, req.UseCase)
	}
	callID := uuid.New()
	log := c.log.With("use_case", string(req.UseCase), "model", model, "call_id", callID.String())

	timeout := c.timeoutFirst
	var lastErr error
	for attempt := 1; attempt <= c.retries+1; attempt++ {
		start := time.Now()
		err := c.doOnce(ctx, model, req, timeout, out)
		c.record(ctx, callID, req, model, attempt, start, err)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, apperr.ErrGenerationInvalid) || ctx.Err() != nil {
			break
		}
		if !httpx.IsRetryableError(err) && !apperr.IsRetryable(err) {
			break
		}
		if attempt <= c.retries {
			log.Warn("Generation attempt failed, retrying", "attempt", attempt, "error", err)
			timeout = c.timeoutRetry
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, model string, req Request, timeout time.Duration, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
		"response_format": map[string]string{"type": "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: generator call exceeded %s", apperr.ErrTimeout, timeout)
		}
		return fmt.Errorf("%w: %v", apperr.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", apperr.ErrTransient, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{status: resp.StatusCode, body: truncate(string(raw), 512)}
	}

	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: malformed envelope: %v", apperr.ErrGenerationInvalid, err)
	}
	if len(envelope.Choices) == 0 {
		return fmt.Errorf("%w: empty choices", apperr.ErrGenerationInvalid)
	}
	return DecodeInto(c.validate, []byte(envelope.Choices[0].Message.Content), out)
}

// DecodeInto unmarshals generator output and enforces the contract's
// validation tags. Shared with the fake so tests exercise the same gate.
func DecodeInto(v *validator.Validate, content []byte, out any) error {
	if err := json.Unmarshal(content, out); err != nil {
		return fmt.Errorf("%w: unmarshal content: %v", apperr.ErrGenerationInvalid, err)
	}
	if err := v.Struct(out); err != nil {
		return fmt.Errorf("%w: schema violation: %v", apperr.ErrGenerationInvalid, err)
	}
	return nil
}

func (c *Client) record(ctx context.Context, callID uuid.UUID, req Request, model string, attempt int, start time.Time, callErr error) {
	if c.calls == nil {
		return
	}
	status := types.GenerationCallOK
	errText := ""
	switch {
	case callErr == nil:
	case errors.Is(callErr, apperr.ErrTimeout):
		status = types.GenerationCallTimeout
		errText = callErr.Error()
	case errors.Is(callErr, apperr.ErrGenerationInvalid):
		status = types.GenerationCallInvalid
		errText = callErr.Error()
	default:
		status = types.GenerationCallFailed
		errText = callErr.Error()
	}
	entry := &types.GenerationCallLog{
		CallID:     callID,
		UseCase:    string(req.UseCase),
		Model:      model,
		StudentID:  req.StudentID,
		Attempt:    attempt,
		Status:     status,
		LatencyMS:  time.Since(start).Milliseconds(),
		ErrorText:  truncate(errText, 1024),
		PromptName: req.PromptName,
	}
	// Provenance logging must never fail the generation itself.
	if err := c.calls.Record(context.WithoutCancel(ctx), nil, entry); err != nil {
		c.log.Warn("Failed to record generation call", "error", err)
	}
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("generator returned %d: %s", e.status, e.body)
}

func (e *apiError) HTTPStatusCode() int { return e.status }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
