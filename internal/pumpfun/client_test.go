package pumpfun

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	pkerrors "pumpkit/internal/errors"
)

type statusRecorder struct {
	codes []int
}

func (r *statusRecorder) RecordActionRequest(_ context.Context, code int) {
	r.codes = append(r.codes, code)
}

func TestCreateSuccess(t *testing.T) {
	var got ActionRequest
	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "abc", "name": "Yongi"}`))
	}))
	defer server.Close()

	recorder := &statusRecorder{}
	client := NewClient(ClientConfig{CreateURL: server.URL}, WithHTTPClient(server.Client()), WithRecorder(recorder))
	req := ActionRequest{CaptchaToken: "t", VanityKeyCaptchaToken: "t", Name: "Yongi", Ticker: "YNG", ShowName: true}

	confirmation, err := client.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmation.ID != "abc" {
		t.Fatalf("expected id abc, got %q", confirmation.ID)
	}
	if confirmation.String() != `{"id":"abc","name":"Yongi"}` {
		t.Fatalf("unexpected confirmation text %s", confirmation.String())
	}
	if got != req {
		t.Fatalf("server saw %+v, want %+v", got, req)
	}
	expectedHeaders := map[string]string{
		"Content-Type": "application/json",
		"Origin":       DefaultOrigin,
		"Referer":      DefaultReferer,
		"User-Agent":   DefaultUserAgent,
	}
	for key, want := range expectedHeaders {
		if headers.Get(key) != want {
			t.Fatalf("header %s: expected %q, got %q", key, want, headers.Get(key))
		}
	}
	if !strings.HasPrefix(headers.Get("X-Request-ID"), "req-") {
		t.Fatalf("expected request id header, got %q", headers.Get("X-Request-ID"))
	}
	if len(recorder.codes) != 1 || recorder.codes[0] != http.StatusCreated {
		t.Fatalf("unexpected recorded codes: %v", recorder.codes)
	}
}

func TestCreateNonCreatedStatusIsHTTPError(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte("server error"))
		}))

		client := NewClient(ClientConfig{CreateURL: server.URL}, WithHTTPClient(server.Client()))
		_, err := client.Create(context.Background(), ActionRequest{})
		server.Close()

		var httpErr *pkerrors.HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("status %d: expected HTTPError, got %v", code, err)
		}
		if httpErr.Code != code || httpErr.Body != "server error" {
			t.Fatalf("status %d: unexpected error %+v", code, httpErr)
		}
	}
}

func TestCreateCapsErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", int(errorBodyLimit)*2)))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{CreateURL: server.URL}, WithHTTPClient(server.Client()))
	_, err := client.Create(context.Background(), ActionRequest{})
	var httpErr *pkerrors.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if !strings.HasSuffix(httpErr.Body, "...(truncated)") {
		t.Fatalf("expected truncated body, got %d bytes", len(httpErr.Body))
	}
}

func TestCreateRepairsMalformedConfirmation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"mint": "Mint111", "ok": true,}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{CreateURL: server.URL}, WithHTTPClient(server.Client()))
	confirmation, err := client.Create(context.Background(), ActionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !json.Valid(confirmation.Raw) {
		t.Fatalf("expected valid JSON, got %s", confirmation.Raw)
	}
	if confirmation.ID != "Mint111" {
		t.Fatalf("expected id from mint field, got %q", confirmation.ID)
	}
}

func TestCreateEmptyConfirmation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{CreateURL: server.URL}, WithHTTPClient(server.Client()))
	confirmation, err := client.Create(context.Background(), ActionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmation.String() != "{}" || confirmation.ID != "" {
		t.Fatalf("unexpected confirmation %+v", confirmation)
	}
}

func TestCreateSendsExactlyOneRequest(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{CreateURL: server.URL}, WithHTTPClient(server.Client()))
	_, _ = client.Create(context.Background(), ActionRequest{})
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestCreateNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(ClientConfig{CreateURL: url})
	_, err := client.Create(context.Background(), ActionRequest{})
	if pkerrors.KindOf(err) != pkerrors.KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestExtractID(t *testing.T) {
	tests := map[string]string{
		`{"id":"abc"}`:                "abc",
		`{"mint":"m1"}`:               "m1",
		`{"address":"addr"}`:          "addr",
		`{"id":42}`:                   "42",
		`{"id":"","mint":"fallback"}`: "fallback",
		`[1,2]`:                       "",
	}
	for raw, want := range tests {
		if got := extractID(json.RawMessage(raw)); got != want {
			t.Fatalf("%s: expected %q, got %q", raw, want, got)
		}
	}
}
