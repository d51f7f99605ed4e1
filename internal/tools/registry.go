package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"pumpkit/internal/agent/ports"
	"pumpkit/internal/captcha"
	"pumpkit/internal/command"
	"pumpkit/internal/config"
	pkerrors "pumpkit/internal/errors"
	"pumpkit/internal/httpclient"
	"pumpkit/internal/logging"
	"pumpkit/internal/observability"
	"pumpkit/internal/pumpfun"
	"pumpkit/internal/tools/builtin"
	"pumpkit/internal/utils/id"
)

// Registry implements ports.Registry with builtin and dynamic tiers.
type Registry struct {
	static  map[string]ports.Capability
	dynamic map[string]ports.Capability
	mu      sync.RWMutex
	logger  logging.Logger
}

var _ ports.Registry = (*Registry)(nil)

type Option func(*registryOptions)

type registryOptions struct {
	metrics        *observability.MetricsCollector
	tracer         *observability.TracerProvider
	breakerMetrics *observability.BreakerMetrics
	logger         logging.Logger
}

// WithMetrics records capability, solver and action metrics on collector.
func WithMetrics(collector *observability.MetricsCollector) Option {
	return func(o *registryOptions) {
		o.metrics = collector
	}
}

func WithTracer(tracer *observability.TracerProvider) Option {
	return func(o *registryOptions) {
		o.tracer = tracer
	}
}

// WithBreakerMetrics exports circuit breaker transitions of the outbound clients.
func WithBreakerMetrics(metrics *observability.BreakerMetrics) Option {
	return func(o *registryOptions) {
		o.breakerMetrics = metrics
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(o *registryOptions) {
		o.logger = logger
	}
}

// NewRegistry wires the builtin capabilities from cfg.
func NewRegistry(cfg config.RuntimeConfig, opts ...Option) (*Registry, error) {
	options := registryOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("registry")
	}

	r := &Registry{
		static:  make(map[string]ports.Capability),
		dynamic: make(map[string]ports.Capability),
		logger:  logger,
	}
	if err := r.registerBuiltins(cfg, options); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) registerBuiltins(cfg config.RuntimeConfig, options registryOptions) error {
	kind, err := captcha.ParseTaskKind(cfg.CaptchaTaskType)
	if err != nil {
		return err
	}

	breakerConfig := pkerrors.DefaultCircuitBreakerConfig()
	if options.breakerMetrics != nil {
		breakerConfig.OnStateChange = func(from, to pkerrors.CircuitState, name string) {
			options.breakerMetrics.ObserveTransition(name, from.String(), to.String())
		}
	}

	solverHTTP := captcha.NewHTTPClient(cfg.HTTPTimeout, r.logger, breakerConfig)
	pumpHTTP := pumpfun.NewHTTPClient(cfg.HTTPTimeout, r.logger, breakerConfig)
	if err := httpclient.SetProxy(solverHTTP, cfg.ProxyURL); err != nil {
		return fmt.Errorf("solver client: %w", err)
	}
	if err := httpclient.SetProxy(pumpHTTP, cfg.ProxyURL); err != nil {
		return fmt.Errorf("pumpfun client: %w", err)
	}

	task := captcha.Task{WebsiteURL: cfg.CaptchaWebsiteURL, WebsiteKey: cfg.CaptchaSiteKey, Kind: kind}
	solver := captcha.NewClient(captcha.Config{
		APIKey:            cfg.CapSolverAPIKey,
		BaseURL:           cfg.CapSolverBaseURL,
		Task:              task,
		PollInterval:      cfg.PollInterval,
		MaxAttempts:       cfg.MaxPollAttempts,
		RequestsPerSecond: cfg.SolverRequestsPerSecond,
		HTTPTimeout:       cfg.HTTPTimeout,
	}, captcha.WithHTTPClient(solverHTTP), captcha.WithRecorder(options.metrics))

	sender := pumpfun.NewClient(pumpfun.ClientConfig{
		CreateURL:   cfg.CreateURL,
		Origin:      cfg.Origin,
		Referer:     cfg.Referer,
		UserAgent:   cfg.UserAgent,
		HTTPTimeout: cfg.HTTPTimeout,
	}, pumpfun.WithHTTPClient(pumpHTTP), pumpfun.WithRecorder(options.metrics))

	r.static[builtin.CreateTokenName] = builtin.NewCreateToken(builtin.CreateTokenConfig{
		Solver:       solver,
		Sender:       sender,
		Task:         task,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxPollAttempts,
		Parser: command.NewParser(command.Options{
			DefaultImageRef: cfg.DefaultImageRef,
			RequireImage:    cfg.RequireImage,
		}),
		Builder: pumpfun.NewBuilder(cfg.IPFSGateway),
		Metrics: options.metrics,
		Tracer:  options.tracer,
	})
	return nil
}

func (r *Registry) Register(capability ports.Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := capability.Metadata().Name
	if _, exists := r.static[name]; exists {
		return fmt.Errorf("capability already exists: %s", name)
	}
	if _, exists := r.dynamic[name]; exists {
		return fmt.Errorf("capability already exists: %s", name)
	}
	r.dynamic[name] = capability
	return nil
}

func (r *Registry) Get(name string) (ports.Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if capability, ok := r.static[name]; ok {
		return capability, nil
	}
	if capability, ok := r.dynamic[name]; ok {
		return capability, nil
	}
	return nil, fmt.Errorf("capability not found: %s", name)
}

// List returns definitions sorted by name.
func (r *Registry) List() []ports.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ports.Definition, 0, len(r.static)+len(r.dynamic))
	for _, capability := range r.static {
		defs = append(defs, capability.Definition())
	}
	for _, capability := range r.dynamic {
		defs = append(defs, capability.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.static[name]; ok {
		return fmt.Errorf("cannot unregister built-in capability: %s", name)
	}
	delete(r.dynamic, name)
	return nil
}

// Invoke runs the named capability on text and always answers with text.
func (r *Registry) Invoke(ctx context.Context, name, text string) string {
	capability, err := r.Get(strings.TrimSpace(name))
	if err != nil {
		return fmt.Sprintf("Unknown capability %q", name)
	}
	result, err := capability.Execute(ctx, ports.Call{ID: id.NewCallID(), Name: name, Input: text})
	if err != nil {
		r.logger.Warn("capability %s returned an error: %v", name, err)
		return fmt.Sprintf("Capability %s failed: %v", name, err)
	}
	if result == nil {
		return ""
	}
	return result.Content
}
