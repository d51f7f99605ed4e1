package pumpfun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	pkerrors "pumpkit/internal/errors"
	"pumpkit/internal/httpclient"
	"pumpkit/internal/logging"
	"pumpkit/internal/utils/id"
)

const (
	DefaultCreateURL = "https://frontend-api-v3.pump.fun/coins/create"
	DefaultOrigin    = "https://pump.fun"
	DefaultReferer   = "https://pump.fun/"
	DefaultUserAgent = "Mozilla/5.0"

	errorBodyLimit int64 = 4 << 10
)

type ClientConfig struct {
	CreateURL   string
	Origin      string
	Referer     string
	UserAgent   string
	HTTPTimeout time.Duration
}

// Recorder observes action responses. *observability.MetricsCollector satisfies it.
type Recorder interface {
	RecordActionRequest(ctx context.Context, statusCode int)
}

// BreakerName identifies the action client's circuit breaker.
const BreakerName = "pumpfun-create"

// NewHTTPClient builds the breaker-guarded client for the action service.
// Only transport failures count against the breaker; every HTTP reply,
// including 4xx and 5xx, is surfaced to the caller as an HTTPError.
func NewHTTPClient(timeout time.Duration, logger logging.Logger, breaker pkerrors.CircuitBreakerConfig) *http.Client {
	return httpclient.NewWithBreaker(timeout, logger, httpclient.BreakerOptions{
		Name:      BreakerName,
		Config:    breaker,
		IsFailure: httpclient.TransportFailures,
	})
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

func WithRecorder(recorder Recorder) ClientOption {
	return func(c *Client) {
		c.recorder = recorder
	}
}

// Confirmation is the service's answer to a successful create.
type Confirmation struct {
	Raw json.RawMessage
	ID  string
}

// String renders the confirmation as compact JSON.
func (c Confirmation) String() string {
	if len(c.Raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, c.Raw); err != nil {
		return string(c.Raw)
	}
	return buf.String()
}

// Client sends create-coin requests. Safe for concurrent use.
type Client struct {
	cfg      ClientConfig
	http     *http.Client
	logger   logging.Logger
	recorder Recorder
}

func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	if strings.TrimSpace(cfg.CreateURL) == "" {
		cfg.CreateURL = DefaultCreateURL
	}
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	if cfg.Referer == "" {
		cfg.Referer = DefaultReferer
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	logger := logging.NewComponentLogger("pumpfun")
	c := &Client{
		cfg:    cfg,
		http:   NewHTTPClient(cfg.HTTPTimeout, logger, pkerrors.DefaultCircuitBreakerConfig()),
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create posts req once. Only HTTP 201 counts as success; any other status is
// returned as *errors.HTTPError with the (capped) response body.
func (c *Client) Create(ctx context.Context, req ActionRequest) (Confirmation, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Confirmation{}, fmt.Errorf("encode create request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CreateURL, bytes.NewReader(payload))
	if err != nil {
		return Confirmation{}, pkerrors.NewNetworkError("create coin", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Origin", c.cfg.Origin)
	httpReq.Header.Set("Referer", c.cfg.Referer)
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	requestID := id.NewRequestID()
	httpReq.Header.Set("X-Request-ID", requestID)

	c.logger.Info("Creating coin %s (%s) request=%s", req.Name, req.Ticker, requestID)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.record(ctx, 0)
		return Confirmation{}, pkerrors.NewNetworkError("create coin", err)
	}
	defer resp.Body.Close()
	c.record(ctx, resp.StatusCode)

	if resp.StatusCode != http.StatusCreated {
		body, readErr := httpclient.ReadSnippet(resp.Body, errorBodyLimit)
		if readErr != nil {
			c.logger.Warn("reading error body failed: %v", readErr)
		}
		c.logger.Warn("create coin rejected: status=%d", resp.StatusCode)
		return Confirmation{}, &pkerrors.HTTPError{Code: resp.StatusCode, Body: body}
	}

	body, err := httpclient.ReadAllWithLimit(resp.Body, httpclient.DefaultBodyLimit)
	if err != nil {
		return Confirmation{}, pkerrors.NewNetworkError("read create response", err)
	}
	confirmation := decodeConfirmation(body)
	if confirmation.ID == "" {
		c.logger.Debug("create response carried no id field")
	}
	return confirmation, nil
}

// Ready reports whether Create would currently reach the service. It lets
// callers skip paid preparation while the breaker is open.
func (c *Client) Ready() error {
	return httpclient.Ready(c.http)
}

func (c *Client) record(ctx context.Context, statusCode int) {
	if c.recorder != nil {
		c.recorder.RecordActionRequest(ctx, statusCode)
	}
}

func decodeConfirmation(body []byte) Confirmation {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Confirmation{Raw: json.RawMessage("{}")}
	}

	raw := json.RawMessage(trimmed)
	if !json.Valid(trimmed) {
		repaired, err := jsonrepair.JSONRepair(string(trimmed))
		if err == nil && json.Valid([]byte(repaired)) {
			raw = json.RawMessage(repaired)
		} else {
			quoted, _ := json.Marshal(string(trimmed))
			return Confirmation{Raw: quoted}
		}
	}
	return Confirmation{Raw: raw, ID: extractID(raw)}
}

func extractID(raw json.RawMessage) string {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"id", "mint", "address"} {
		switch value := fields[key].(type) {
		case string:
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		case float64:
			return fmt.Sprintf("%.0f", value)
		}
	}
	return ""
}
