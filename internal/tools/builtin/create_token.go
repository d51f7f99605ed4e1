package builtin

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pumpkit/internal/agent/ports"
	"pumpkit/internal/captcha"
	"pumpkit/internal/command"
	pkerrors "pumpkit/internal/errors"
	"pumpkit/internal/logging"
	"pumpkit/internal/observability"
	"pumpkit/internal/pumpfun"
	"pumpkit/internal/utils/id"
)

const CreateTokenName = "create_token"

// CreateTokenUsage is shown whenever the command text cannot be parsed.
const CreateTokenUsage = "Format: 'Create token with name <NAME> ticker <TICKER> description <TEXT> image <IPFS_HASH>'"

const (
	stageParse     = "parse"
	stageAuthorize = "authorize"
	stageSend      = "send"
	stageReport    = "report"
)

// ChallengeSolver produces the authorisation token. *captcha.Client satisfies it.
type ChallengeSolver interface {
	Submit(ctx context.Context, task captcha.Task) (captcha.TaskHandle, error)
	AwaitToken(ctx context.Context, handle captcha.TaskHandle, pollInterval time.Duration, maxAttempts int) (string, error)
}

// ActionSender delivers the authorised request. *pumpfun.Client satisfies it.
type ActionSender interface {
	Create(ctx context.Context, req pumpfun.ActionRequest) (pumpfun.Confirmation, error)
}

type CreateTokenConfig struct {
	Solver ChallengeSolver
	Sender ActionSender
	// Task is the challenge submitted for every launch.
	Task         captcha.Task
	PollInterval time.Duration
	MaxAttempts  int

	Parser  *command.Parser
	Builder pumpfun.Builder

	Metrics *observability.MetricsCollector
	Tracer  *observability.TracerProvider
	Logger  logging.Logger
}

type createToken struct {
	cfg    CreateTokenConfig
	logger logging.Logger
}

// NewCreateToken builds the launch capability. Execute never returns an error;
// every failure is rendered as text in the result.
func NewCreateToken(cfg CreateTokenConfig) ports.Capability {
	return newCreateToken(cfg)
}

func newCreateToken(cfg CreateTokenConfig) *createToken {
	if cfg.Parser == nil {
		cfg.Parser = command.NewParser(command.Options{})
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NoopTracerProvider()
	}
	logger := cfg.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("create_token")
	}
	return &createToken{cfg: cfg, logger: logger}
}

func (t *createToken) Metadata() ports.Metadata {
	return ports.Metadata{
		Name:      CreateTokenName,
		Version:   "1.0.0",
		Category:  "launch",
		Tags:      []string{"pumpfun", "token", "captcha"},
		Dangerous: true,
	}
}

func (t *createToken) Definition() ports.Definition {
	return ports.Definition{
		Name:        CreateTokenName,
		Description: "Create a new token on pump.fun from a short text description. Solves the launch captcha and submits the create request.",
		Usage:       CreateTokenUsage,
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"text": {
					Type:        "string",
					Description: "Free-form command containing name, ticker, description and optionally image.",
				},
			},
			Required: []string{"text"},
		},
	}
}

// Invoke is the text-in, text-out form of Execute.
func (t *createToken) Invoke(ctx context.Context, text string) string {
	result, _ := t.Execute(ctx, ports.Call{ID: id.NewCallID(), Name: CreateTokenName, Input: text})
	return result.Content
}

// launch is the per-invocation state handed from stage to stage.
type launch struct {
	stage   string
	content string
	err     error
	taskID  string
	tokenID string
}

func (l *launch) fail(stage string, err error, content string) {
	l.stage = stage
	l.err = err
	l.content = content
}

func (t *createToken) Execute(ctx context.Context, call ports.Call) (*ports.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	callID := strings.TrimSpace(call.ID)
	if callID == "" {
		callID = id.NewCallID()
	}
	ctx = observability.ContextWithCallID(ctx, callID)
	ctx, span := t.cfg.Tracer.StartSpan(ctx, observability.SpanCapabilityExecute, observability.CapabilityAttrs(CreateTokenName)...)
	defer span.End()

	started := time.Now()
	outcome := t.run(ctx, call.Text())
	duration := time.Since(started)

	status := "success"
	if outcome.err != nil {
		status = "failed"
		span.SetAttributes(observability.ErrorAttrs(outcome.err)...)
		span.SetStatus(codes.Error, outcome.err.Error())
	}
	span.SetAttributes(
		attribute.String(observability.AttrStage, outcome.stage),
		attribute.String(observability.AttrStatus, status),
	)
	if outcome.taskID != "" {
		span.SetAttributes(attribute.String(observability.AttrTaskID, outcome.taskID))
	}
	t.cfg.Metrics.RecordCapabilityExecution(ctx, CreateTokenName, outcome.stage, status, duration)

	logger := logging.WithContext(ctx, t.logger)
	if outcome.err != nil {
		logger.Warn("create_token failed at %s after %s: %v", outcome.stage, duration.Round(time.Millisecond), outcome.err)
	} else {
		logger.Info("create_token succeeded in %s (token %s)", duration.Round(time.Millisecond), outcome.tokenID)
	}

	metadata := map[string]any{
		"stage":  outcome.stage,
		"status": status,
	}
	if outcome.taskID != "" {
		metadata["task_id"] = outcome.taskID
	}
	if outcome.tokenID != "" {
		metadata["token_id"] = outcome.tokenID
	}
	if kind := pkerrors.KindOf(outcome.err); kind != pkerrors.KindUnknown {
		metadata["error_kind"] = kind.String()
	}
	if pkerrors.IsNetwork(outcome.err) {
		metadata["retryable"] = true
	}

	return &ports.Result{
		CallID:   callID,
		Content:  outcome.content,
		Error:    outcome.err,
		Metadata: metadata,
	}, nil
}

// run executes parse, authorize, send and report in order. The first failing
// stage short-circuits to the report.
func (t *createToken) run(ctx context.Context, text string) (outcome launch) {
	outcome.stage = stageParse
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("create_token panic at %s: %v\n%s", outcome.stage, r, debug.Stack())
			err := fmt.Errorf("internal error: %v", r)
			outcome.fail(outcome.stage, err, failureText(outcome.stage, err))
		}
	}()

	cmd, err := t.parse(ctx, text)
	if err != nil {
		outcome.fail(stageParse, err, parseFailureText(err))
		return outcome
	}

	// An unreachable action service would waste the solved challenge.
	if err := t.senderReady(); err != nil {
		outcome.fail(stageSend, err, failureText(stageSend, err))
		return outcome
	}

	outcome.stage = stageAuthorize
	token, err := t.authorize(ctx, &outcome)
	if err != nil {
		outcome.fail(stageAuthorize, err, failureText(stageAuthorize, err))
		return outcome
	}

	outcome.stage = stageSend
	confirmation, err := t.send(ctx, cmd, token)
	if err != nil {
		outcome.fail(stageSend, err, failureText(stageSend, err))
		return outcome
	}

	outcome.stage = stageReport
	outcome.tokenID = confirmation.ID
	outcome.content = "Token created successfully: " + confirmation.String()
	return outcome
}

func (t *createToken) parse(ctx context.Context, text string) (command.ParsedCommand, error) {
	_, span := t.cfg.Tracer.StartSpan(ctx, observability.SpanStageParse)
	defer span.End()
	cmd, err := t.cfg.Parser.Parse(text)
	if err != nil {
		span.SetAttributes(observability.ErrorAttrs(err)...)
	}
	return cmd, err
}

func (t *createToken) authorize(ctx context.Context, outcome *launch) (string, error) {
	ctx, span := t.cfg.Tracer.StartSpan(ctx, observability.SpanStageAuthorize)
	defer span.End()

	if t.cfg.Solver == nil {
		return "", errors.New("challenge solver is not configured")
	}
	handle, err := t.cfg.Solver.Submit(ctx, t.cfg.Task)
	if err != nil {
		span.SetAttributes(observability.ErrorAttrs(err)...)
		return "", err
	}
	outcome.taskID = string(handle)
	span.SetAttributes(attribute.String(observability.AttrTaskID, outcome.taskID))

	token, err := t.cfg.Solver.AwaitToken(ctx, handle, t.cfg.PollInterval, t.cfg.MaxAttempts)
	if err != nil {
		span.SetAttributes(observability.ErrorAttrs(err)...)
		return "", err
	}
	return token, nil
}

// readiness is implemented by senders that can refuse a request before it is
// built. *pumpfun.Client reports its circuit breaker through it.
type readiness interface {
	Ready() error
}

func (t *createToken) senderReady() error {
	if checker, ok := t.cfg.Sender.(readiness); ok {
		return checker.Ready()
	}
	return nil
}

func (t *createToken) send(ctx context.Context, cmd command.ParsedCommand, token string) (pumpfun.Confirmation, error) {
	ctx, span := t.cfg.Tracer.StartSpan(ctx, observability.SpanStageSend)
	defer span.End()

	if t.cfg.Sender == nil {
		return pumpfun.Confirmation{}, errors.New("action sender is not configured")
	}
	confirmation, err := t.cfg.Sender.Create(ctx, t.cfg.Builder.Build(cmd, token))
	if err != nil {
		span.SetAttributes(observability.ErrorAttrs(err)...)
	}
	return confirmation, err
}

func parseFailureText(err error) string {
	return fmt.Sprintf("Could not read the token command: %v. %s", err, CreateTokenUsage)
}

func failureText(stage string, err error) string {
	return fmt.Sprintf("Failed to create token (%s): %s", stage, pkerrors.Describe(err))
}
