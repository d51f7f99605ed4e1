package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	pkerrors "pumpkit/internal/errors"
)

type fakeSolver struct {
	mu       sync.Mutex
	creates  []map[string]any
	polls    int
	create   string
	statuses []string
}

func (f *fakeSolver) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/createTask", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode create body: %v", err)
		}
		f.mu.Lock()
		f.creates = append(f.creates, body)
		resp := f.create
		f.mu.Unlock()
		if resp == "" {
			resp = `{"errorId":0,"taskId":"task-1"}`
		}
		_, _ = w.Write([]byte(resp))
	})
	mux.HandleFunc("/getTaskResult", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		idx := f.polls
		f.polls++
		var resp string
		if idx < len(f.statuses) {
			resp = f.statuses[idx]
		} else if len(f.statuses) > 0 {
			resp = f.statuses[len(f.statuses)-1]
		}
		f.mu.Unlock()
		_, _ = w.Write([]byte(resp))
	})
	return mux
}

func (f *fakeSolver) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepLog) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

type countingRecorder struct {
	mu       sync.Mutex
	polls    []string
	outcomes []string
}

func (r *countingRecorder) RecordSolverPoll(_ context.Context, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls = append(r.polls, status)
}

func (r *countingRecorder) RecordSolverTask(_ context.Context, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

const (
	processing = `{"errorId":0,"status":"processing"}`
	idle       = `{"errorId":0,"status":"idle"}`
)

func newTestClient(t *testing.T, fake *fakeSolver, cfg Config, opts ...Option) (*Client, *sleepLog) {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	if cfg.APIKey == "" {
		cfg.APIKey = "CAP-test-key-0123456789"
	}
	cfg.BaseURL = server.URL
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = -1
	}
	sleeps := &sleepLog{}
	opts = append([]Option{WithHTTPClient(server.Client()), WithSleep(sleeps.sleep)}, opts...)
	return NewClient(cfg, opts...), sleeps
}

func TestAwaitTokenReturnsAfterTwoDelays(t *testing.T) {
	fake := &fakeSolver{statuses: []string{
		processing,
		idle,
		`{"errorId":0,"status":"ready","solution":{"gRecaptchaResponse":"P1_token"}}`,
	}}
	client, sleeps := newTestClient(t, fake, Config{})

	token, err := client.AwaitToken(context.Background(), "task-1", time.Second, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "P1_token" {
		t.Fatalf("expected token P1_token, got %q", token)
	}
	if got := sleeps.count(); got != 2 {
		t.Fatalf("expected 2 poll delays, got %d", got)
	}
	if got := fake.pollCount(); got != 3 {
		t.Fatalf("expected 3 polls, got %d", got)
	}
	for _, d := range sleeps.delays {
		if d != time.Second {
			t.Fatalf("expected delays of 1s, got %v", sleeps.delays)
		}
	}
}

func TestAwaitTokenWaitsBeforeFirstPollByDefault(t *testing.T) {
	fake := &fakeSolver{statuses: []string{
		processing,
		`{"errorId":0,"status":"ready","solution":{"token":"abc"}}`,
	}}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	sleeps := &sleepLog{}
	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, PollInterval: 2 * time.Second},
		WithHTTPClient(server.Client()), WithSleep(sleeps.sleep))

	token, err := client.AwaitToken(context.Background(), "task-1", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "abc" {
		t.Fatalf("expected token abc, got %q", token)
	}
	if got := sleeps.count(); got != 2 {
		t.Fatalf("expected initial delay plus one poll delay, got %v", sleeps.delays)
	}
	if sleeps.delays[0] != 2*time.Second {
		t.Fatalf("expected initial delay to match poll interval, got %v", sleeps.delays[0])
	}
}

func TestAwaitTokenFailedStopsAfterFirstPoll(t *testing.T) {
	fake := &fakeSolver{statuses: []string{
		`{"errorId":1,"errorCode":"ERROR_INVALID_TASK_DATA","errorDescription":"bad sitekey"}`,
		processing,
	}}
	recorder := &countingRecorder{}
	client, sleeps := newTestClient(t, fake, Config{}, WithRecorder(recorder))

	_, err := client.AwaitToken(context.Background(), "task-9", time.Second, 10)
	var procErr *pkerrors.TaskProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected TaskProcessingError, got %T (%v)", err, err)
	}
	if procErr.Reason != "bad sitekey" || procErr.TaskID != "task-9" {
		t.Fatalf("unexpected error payload: %+v", procErr)
	}
	if got := fake.pollCount(); got != 1 {
		t.Fatalf("expected exactly one poll, got %d", got)
	}
	if got := sleeps.count(); got != 0 {
		t.Fatalf("expected no delays, got %d", got)
	}
	if len(recorder.outcomes) != 1 || recorder.outcomes[0] != "failed" {
		t.Fatalf("expected failed outcome, got %v", recorder.outcomes)
	}
}

func TestAwaitTokenFailedStatus(t *testing.T) {
	fake := &fakeSolver{statuses: []string{`{"errorId":0,"status":"failed","errorDescription":"unsolvable"}`}}
	client, _ := newTestClient(t, fake, Config{})

	_, err := client.AwaitToken(context.Background(), "task-1", time.Second, 3)
	if pkerrors.KindOf(err) != pkerrors.KindTaskProcessing {
		t.Fatalf("expected task processing error, got %v", err)
	}
}

func TestAwaitTokenReadyWithoutTokenIsFailure(t *testing.T) {
	fake := &fakeSolver{statuses: []string{`{"errorId":0,"status":"ready","solution":{}}`}}
	client, _ := newTestClient(t, fake, Config{})

	_, err := client.AwaitToken(context.Background(), "task-1", time.Second, 3)
	var procErr *pkerrors.TaskProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected TaskProcessingError, got %v", err)
	}
	if procErr.Reason != "solution missing token" {
		t.Fatalf("unexpected reason %q", procErr.Reason)
	}
}

func TestAwaitTokenUnknownStatusIsFailure(t *testing.T) {
	fake := &fakeSolver{statuses: []string{`{"errorId":0,"status":"mystery"}`}}
	client, _ := newTestClient(t, fake, Config{})

	_, err := client.AwaitToken(context.Background(), "task-1", time.Second, 3)
	if pkerrors.KindOf(err) != pkerrors.KindTaskProcessing {
		t.Fatalf("expected task processing error, got %v", err)
	}
	if fake.pollCount() != 1 {
		t.Fatalf("expected a single poll, got %d", fake.pollCount())
	}
}

func TestAwaitTokenMalformedStatus(t *testing.T) {
	fake := &fakeSolver{statuses: []string{`<html>bad gateway</html>`}}
	client, _ := newTestClient(t, fake, Config{})

	_, err := client.AwaitToken(context.Background(), "task-1", time.Second, 3)
	if pkerrors.KindOf(err) != pkerrors.KindTaskProcessing {
		t.Fatalf("expected task processing error, got %v", err)
	}
}

func TestAwaitTokenTimesOutAfterMaxAttempts(t *testing.T) {
	fake := &fakeSolver{statuses: []string{processing}}
	recorder := &countingRecorder{}
	client, sleeps := newTestClient(t, fake, Config{}, WithRecorder(recorder))

	_, err := client.AwaitToken(context.Background(), "task-1", time.Second, 3)
	var timeoutErr *pkerrors.TaskTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TaskTimeoutError, got %v", err)
	}
	if timeoutErr.Cancelled {
		t.Fatal("did not expect cancellation")
	}
	if timeoutErr.Attempts != 3 || fake.pollCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d (polls %d)", timeoutErr.Attempts, fake.pollCount())
	}
	if got := sleeps.count(); got != 2 {
		t.Fatalf("expected 2 delays between 3 polls, got %d", got)
	}
	if len(recorder.polls) != 3 || recorder.polls[0] != "pending" {
		t.Fatalf("unexpected recorded polls: %v", recorder.polls)
	}
	if len(recorder.outcomes) != 1 || recorder.outcomes[0] != "timeout" {
		t.Fatalf("unexpected outcomes: %v", recorder.outcomes)
	}
}

func TestAwaitTokenNonPositiveMaxAttemptsUsesDefault(t *testing.T) {
	fake := &fakeSolver{statuses: []string{processing}}
	client, _ := newTestClient(t, fake, Config{MaxAttempts: 4})

	_, err := client.AwaitToken(context.Background(), "task-1", time.Second, 0)
	var timeoutErr *pkerrors.TaskTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TaskTimeoutError, got %v", err)
	}
	if timeoutErr.Attempts != 4 {
		t.Fatalf("expected default of 4 attempts, got %d", timeoutErr.Attempts)
	}
}

func TestAwaitTokenHonoursCancellation(t *testing.T) {
	fake := &fakeSolver{statuses: []string{processing}}
	client, _ := newTestClient(t, fake, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	client.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := client.AwaitToken(ctx, "task-1", time.Second, 10)
	var timeoutErr *pkerrors.TaskTimeoutError
	if !errors.As(err, &timeoutErr) || !timeoutErr.Cancelled {
		t.Fatalf("expected cancelled TaskTimeoutError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
	if fake.pollCount() != 1 {
		t.Fatalf("expected polling to stop after cancellation, got %d polls", fake.pollCount())
	}
}

func TestSubmitSendsTaskPayload(t *testing.T) {
	fake := &fakeSolver{create: `{"errorId":0,"taskId":12345}`}
	client, _ := newTestClient(t, fake, Config{APIKey: "CAP-abc"})

	handle, err := client.Submit(context.Background(), Task{
		WebsiteURL: "https://pump.fun",
		WebsiteKey: "site-key",
		Kind:       KindHCaptchaTurbo,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle != "12345" {
		t.Fatalf("expected numeric task id to be accepted, got %q", handle)
	}
	if len(fake.creates) != 1 {
		t.Fatalf("expected one create call, got %d", len(fake.creates))
	}
	body := fake.creates[0]
	if body["clientKey"] != "CAP-abc" {
		t.Fatalf("unexpected client key: %v", body["clientKey"])
	}
	task, ok := body["task"].(map[string]any)
	if !ok {
		t.Fatalf("task object missing: %v", body)
	}
	if task["type"] != "HCaptchaTurboTask" || task["websiteURL"] != "https://pump.fun" || task["websiteKey"] != "site-key" {
		t.Fatalf("unexpected task payload: %v", task)
	}
}

func TestSubmitCreationFailures(t *testing.T) {
	cases := map[string]string{
		"service error": `{"errorId":1,"errorCode":"ERROR_KEY_DENIED_ACCESS","errorDescription":"key denied"}`,
		"malformed":     `not json`,
		"empty id":      `{"errorId":0,"taskId":""}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fake := &fakeSolver{create: body}
			client, _ := newTestClient(t, fake, Config{})

			_, err := client.Submit(context.Background(), Task{WebsiteURL: "https://x", WebsiteKey: "k"})
			var createErr *pkerrors.TaskCreationError
			if !errors.As(err, &createErr) {
				t.Fatalf("expected TaskCreationError, got %T (%v)", err, err)
			}
			if fake.pollCount() != 0 {
				t.Fatalf("submit must not poll")
			}
		})
	}
}

func TestSubmitWithoutAPIKeyMakesNoRequest(t *testing.T) {
	fake := &fakeSolver{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, WithHTTPClient(server.Client()))
	_, err := client.Submit(context.Background(), Task{WebsiteURL: "https://x", WebsiteKey: "k"})
	if pkerrors.KindOf(err) != pkerrors.KindTaskCreation {
		t.Fatalf("expected task creation error, got %v", err)
	}
	if len(fake.creates) != 0 {
		t.Fatalf("expected no outbound call, got %d", len(fake.creates))
	}
}

func TestSubmitNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: url})
	_, err := client.Submit(context.Background(), Task{WebsiteURL: "https://x", WebsiteKey: "k"})
	if pkerrors.KindOf(err) != pkerrors.KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestSolveUsesConfiguredTask(t *testing.T) {
	fake := &fakeSolver{statuses: []string{
		processing,
		`{"errorId":0,"status":"ready","solution":{"gRecaptchaResponse":"solved"}}`,
	}}
	recorder := &countingRecorder{}
	client, sleeps := newTestClient(t, fake, Config{
		Task:         Task{WebsiteURL: "https://pump.fun", WebsiteKey: "site"},
		PollInterval: 500 * time.Millisecond,
		MaxAttempts:  5,
	}, WithRecorder(recorder))

	token, err := client.Solve(context.Background(), Task{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "solved" {
		t.Fatalf("expected solved, got %q", token)
	}
	task := fake.creates[0]["task"].(map[string]any)
	if task["type"] != string(KindHCaptchaTurbo) {
		t.Fatalf("expected default task type, got %v", task["type"])
	}
	if sleeps.count() != 1 || sleeps.delays[0] != 500*time.Millisecond {
		t.Fatalf("unexpected delays: %v", sleeps.delays)
	}
	if len(recorder.outcomes) != 1 || recorder.outcomes[0] != "ready" {
		t.Fatalf("unexpected outcomes: %v", recorder.outcomes)
	}
}

func TestRateLimiterPacesCalls(t *testing.T) {
	fake := &fakeSolver{statuses: []string{`{"errorId":0,"status":"ready","solution":{"token":"t"}}`}}
	client, _ := newTestClient(t, fake, Config{RequestsPerSecond: 1000})
	if client.limiter == nil {
		t.Fatal("expected limiter to be installed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Status(ctx, "task-1")
	if pkerrors.KindOf(err) != pkerrors.KindNetwork {
		t.Fatalf("expected limiter wait failure to surface as network error, got %v", err)
	}
	if fake.pollCount() != 0 {
		t.Fatalf("expected no request once the limiter wait fails")
	}
}
