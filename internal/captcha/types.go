package captcha

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// TaskKind is the challenge type understood by the solving service.
type TaskKind string

const (
	KindHCaptchaTurbo      TaskKind = "HCaptchaTurboTask"
	KindHCaptchaProxyless  TaskKind = "HCaptchaTaskProxyLess"
	KindReCaptchaV2        TaskKind = "ReCaptchaV2TaskProxyLess"
	KindTurnstileProxyless TaskKind = "AntiTurnstileTaskProxyLess"
)

// ParseTaskKind accepts the wire name of a supported kind.
func ParseTaskKind(raw string) (TaskKind, error) {
	switch kind := TaskKind(strings.TrimSpace(raw)); kind {
	case KindHCaptchaTurbo, KindHCaptchaProxyless, KindReCaptchaV2, KindTurnstileProxyless:
		return kind, nil
	case "":
		return KindHCaptchaTurbo, nil
	default:
		return "", errors.New("unsupported task type: " + raw)
	}
}

// Task identifies the challenge to solve. Treat it as a value.
type Task struct {
	WebsiteURL string
	WebsiteKey string
	Kind       TaskKind
}

// Validate reports the first missing field.
func (t Task) Validate() error {
	switch {
	case strings.TrimSpace(t.WebsiteURL) == "":
		return errors.New("website url is required")
	case strings.TrimSpace(t.WebsiteKey) == "":
		return errors.New("website key is required")
	case t.Kind == "":
		return errors.New("task type is required")
	}
	return nil
}

// TaskHandle is the opaque id returned on task creation.
type TaskHandle string

// StatusState is the lifecycle position of a remote task. Pending may move to
// Ready or Failed; terminal states never change again.
type StatusState int

const (
	StatePending StatusState = iota
	StateReady
	StateFailed
)

func (s StatusState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether polling should stop.
func (s StatusState) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// TaskStatus is one observation of a remote task.
type TaskStatus struct {
	State  StatusState
	Token  string // set when Ready
	Reason string // set when Failed
}

func Pending() TaskStatus { return TaskStatus{State: StatePending} }

func Ready(token string) TaskStatus { return TaskStatus{State: StateReady, Token: token} }

func Failed(reason string) TaskStatus { return TaskStatus{State: StateFailed, Reason: reason} }

type createTaskRequest struct {
	ClientKey string      `json:"clientKey"`
	Task      taskPayload `json:"task"`
}

type taskPayload struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL"`
	WebsiteKey string `json:"websiteKey"`
}

type createTaskResponse struct {
	ErrorID          int        `json:"errorId"`
	ErrorCode        string     `json:"errorCode"`
	ErrorDescription string     `json:"errorDescription"`
	TaskID           flexString `json:"taskId"`
}

type getTaskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    string `json:"taskId"`
}

type getTaskResultResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		Token              string `json:"token"`
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

// status maps a result payload onto the task lifecycle.
func (r getTaskResultResponse) status() TaskStatus {
	if r.ErrorID != 0 {
		return Failed(firstNonEmpty(r.ErrorDescription, r.ErrorCode, "errorId "+strconv.Itoa(r.ErrorID)))
	}
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case "processing", "idle":
		return Pending()
	case "ready":
		token := firstNonEmpty(r.Solution.Token, r.Solution.GRecaptchaResponse)
		if token == "" {
			return Failed("solution missing token")
		}
		return Ready(token)
	case "failed":
		return Failed(firstNonEmpty(r.ErrorDescription, r.ErrorCode, "task failed"))
	default:
		return Failed("unexpected status " + strconv.Quote(r.Status))
	}
}

func (r createTaskResponse) reason() string {
	return firstNonEmpty(r.ErrorDescription, r.ErrorCode)
}

// flexString accepts ids encoded either as JSON strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
