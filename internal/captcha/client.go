package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	pkerrors "pumpkit/internal/errors"
	"pumpkit/internal/httpclient"
	"pumpkit/internal/logging"
	"pumpkit/internal/observability"
	"pumpkit/internal/utils/id"
)

const (
	DefaultBaseURL      = "https://api.capsolver.com"
	DefaultCreatePath   = "/createTask"
	DefaultResultPath   = "/getTaskResult"
	DefaultPollInterval = 3 * time.Second
	DefaultMaxAttempts  = 40
)

// Config describes the solving service and the polling bounds.
type Config struct {
	APIKey     string
	BaseURL    string
	CreatePath string
	ResultPath string

	// Task is solved by Solve when it is called with a zero Task.
	Task Task

	PollInterval time.Duration
	// InitialDelay is waited before the first poll. Zero means PollInterval,
	// a negative value polls immediately.
	InitialDelay time.Duration
	MaxAttempts  int

	// RequestsPerSecond paces outbound calls when positive.
	RequestsPerSecond float64
	HTTPTimeout       time.Duration
}

// Recorder observes polling progress. *observability.MetricsCollector satisfies it.
type Recorder interface {
	RecordSolverPoll(ctx context.Context, status string)
	RecordSolverTask(ctx context.Context, outcome string)
}

var _ Recorder = (*observability.MetricsCollector)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default breaker-guarded HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(c *Client) {
		c.recorder = recorder
	}
}

// WithSleep swaps the delay function used between polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// Client talks to a createTask/getTaskResult style solving service.
// It is safe for concurrent use; every call owns its own task.
type Client struct {
	cfg      Config
	http     *http.Client
	logger   logging.Logger
	recorder Recorder
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg = withDefaults(cfg)
	logger := logging.NewComponentLogger("captcha")
	c := &Client{
		cfg:    cfg,
		http:   NewHTTPClient(cfg.HTTPTimeout, logger, pkerrors.DefaultCircuitBreakerConfig()),
		logger: logger,
		sleep:  sleepContext,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger.Debug("solver client ready: base=%s key=%s", cfg.BaseURL, observability.SanitizeAPIKey(cfg.APIKey))
	return c
}

// BreakerName identifies the solver client's circuit breaker.
const BreakerName = "captcha-solver"

// NewHTTPClient builds the breaker-guarded client for the solving service.
// Transport failures and 5xx replies trip the breaker: either way no task
// handle was issued, so failing fast costs nothing. Other statuses carry a
// JSON error body that Submit and Status report themselves.
func NewHTTPClient(timeout time.Duration, logger logging.Logger, breaker pkerrors.CircuitBreakerConfig) *http.Client {
	return httpclient.NewWithBreaker(timeout, logger, httpclient.BreakerOptions{
		Name:      BreakerName,
		Config:    breaker,
		IsFailure: httpclient.ServerFailures,
	})
}

func withDefaults(cfg Config) Config {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CreatePath == "" {
		cfg.CreatePath = DefaultCreatePath
	}
	if cfg.ResultPath == "" {
		cfg.ResultPath = DefaultResultPath
	}
	if cfg.Task.Kind == "" {
		cfg.Task.Kind = KindHCaptchaTurbo
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return cfg
}

// Solve submits task and waits for its token with the configured bounds.
func (c *Client) Solve(ctx context.Context, task Task) (string, error) {
	if task == (Task{}) {
		task = c.cfg.Task
	}
	handle, err := c.Submit(ctx, task)
	if err != nil {
		return "", err
	}
	return c.AwaitToken(ctx, handle, c.cfg.PollInterval, c.cfg.MaxAttempts)
}

// Submit creates a remote task and returns its handle.
func (c *Client) Submit(ctx context.Context, task Task) (TaskHandle, error) {
	if c.cfg.APIKey == "" {
		return "", &pkerrors.TaskCreationError{Reason: "solver api key is not configured"}
	}
	if task.Kind == "" {
		task.Kind = c.cfg.Task.Kind
	}
	if err := task.Validate(); err != nil {
		return "", &pkerrors.TaskCreationError{Reason: err.Error()}
	}

	body := createTaskRequest{
		ClientKey: c.cfg.APIKey,
		Task: taskPayload{
			Type:       string(task.Kind),
			WebsiteURL: task.WebsiteURL,
			WebsiteKey: task.WebsiteKey,
		},
	}
	status, raw, err := c.post(ctx, "create task", c.cfg.CreatePath, body)
	if err != nil {
		return "", err
	}

	var resp createTaskResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &pkerrors.TaskCreationError{
			Reason: fmt.Sprintf("malformed response (HTTP %d)", status),
			Body:   string(raw),
		}
	}
	if resp.ErrorID != 0 {
		return "", &pkerrors.TaskCreationError{Reason: firstNonEmpty(resp.reason(), "service rejected the task"), Body: string(raw)}
	}
	taskID := strings.TrimSpace(string(resp.TaskID))
	if taskID == "" {
		return "", &pkerrors.TaskCreationError{Reason: "response carried no task id", Body: string(raw)}
	}

	c.logger.Info("captcha task created: %s (%s)", taskID, task.Kind)
	return TaskHandle(taskID), nil
}

// Status queries the task once.
func (c *Client) Status(ctx context.Context, handle TaskHandle) (TaskStatus, error) {
	body := getTaskResultRequest{ClientKey: c.cfg.APIKey, TaskID: string(handle)}
	status, raw, err := c.post(ctx, "get task result", c.cfg.ResultPath, body)
	if err != nil {
		return TaskStatus{}, err
	}
	var resp getTaskResultResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return TaskStatus{}, &pkerrors.TaskProcessingError{
			TaskID: string(handle),
			Reason: fmt.Sprintf("malformed status response (HTTP %d)", status),
		}
	}
	return resp.status(), nil
}

// AwaitToken polls handle until a terminal state or until maxAttempts polls
// have been made. pollInterval and maxAttempts fall back to the client
// defaults when not positive.
func (c *Client) AwaitToken(ctx context.Context, handle TaskHandle, pollInterval time.Duration, maxAttempts int) (string, error) {
	if pollInterval <= 0 {
		pollInterval = c.cfg.PollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = c.cfg.MaxAttempts
	}
	taskID := string(handle)

	initial := c.cfg.InitialDelay
	if initial == 0 {
		initial = pollInterval
	}
	if initial > 0 {
		if err := c.sleep(ctx, initial); err != nil {
			return "", c.cancelled(ctx, taskID, 0, err)
		}
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := c.Status(ctx, handle)
		if err != nil {
			c.recordTask(ctx, "error")
			return "", err
		}
		c.recordPoll(ctx, status.State.String())

		switch status.State {
		case StateReady:
			c.logger.Info("captcha task %s solved after %d poll(s)", taskID, attempt)
			c.recordTask(ctx, "ready")
			return status.Token, nil
		case StateFailed:
			c.logger.Warn("captcha task %s failed: %s", taskID, status.Reason)
			c.recordTask(ctx, "failed")
			return "", &pkerrors.TaskProcessingError{TaskID: taskID, Reason: status.Reason}
		}

		c.logger.Debug("Solving captcha... task=%s attempt=%d/%d", taskID, attempt, maxAttempts)
		if attempt == maxAttempts {
			break
		}
		if err := c.sleep(ctx, pollInterval); err != nil {
			return "", c.cancelled(ctx, taskID, attempt, err)
		}
	}

	c.recordTask(ctx, "timeout")
	return "", &pkerrors.TaskTimeoutError{TaskID: taskID, Attempts: maxAttempts}
}

func (c *Client) cancelled(ctx context.Context, taskID string, attempts int, err error) error {
	c.recordTask(ctx, "cancelled")
	return &pkerrors.TaskTimeoutError{TaskID: taskID, Attempts: attempts, Cancelled: true, Err: err}
}

func (c *Client) post(ctx context.Context, op, path string, payload any) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, pkerrors.NewNetworkError(op, err)
		}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, pkerrors.NewNetworkError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", id.NewRequestID())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, pkerrors.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	raw, err := httpclient.ReadAllWithLimit(resp.Body, httpclient.DefaultBodyLimit)
	if err != nil {
		return resp.StatusCode, nil, pkerrors.NewNetworkError(op, err)
	}
	return resp.StatusCode, raw, nil
}

func (c *Client) recordPoll(ctx context.Context, status string) {
	if c.recorder != nil {
		c.recorder.RecordSolverPoll(ctx, status)
	}
}

func (c *Client) recordTask(ctx context.Context, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordSolverTask(ctx, outcome)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
