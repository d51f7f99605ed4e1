package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pumpkit/internal/observability"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "PUMPKIT_"

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	overrides  Overrides
	configPath string
	now        func() time.Time
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithOverrides applies caller overrides that take highest precedence.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// WithConfigPath forces the loader to read configuration from a specific file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithFileReader injects a custom reader, used primarily for tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		o.readFile = reader
	}
}

// WithHomeDir overrides how the loader resolves the user's home directory.
func WithHomeDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = resolver
	}
}

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapEnvLookup serves lookups from a fixed map.
func MapEnvLookup(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

// Load constructs the runtime configuration by merging defaults, file, env and overrides.
func Load(opts ...Option) (RuntimeConfig, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.envLookup == nil {
		options.envLookup = DefaultEnvLookup
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: options.now()}
	cfg := Defaults()

	if err := applyFile(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	if err := applyEnv(&cfg, &meta, options.envLookup); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	applyOverrides(&cfg, &meta, options.overrides)
	normalize(&cfg)

	return cfg, meta, nil
}

// ResolveConfigPath picks the config file: PUMPKIT_CONFIG first, then
// ~/.pumpkit/config.yaml.
func ResolveConfigPath(lookup EnvLookup, homeDir func() (string, error)) (string, bool) {
	if lookup != nil {
		if value, ok := lookup(EnvPrefix + "CONFIG"); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
	}
	if homeDir == nil {
		return "", false
	}
	home, err := homeDir()
	if err != nil || home == "" {
		return "", false
	}
	return filepath.Join(home, ".pumpkit", "config.yaml"), false
}

// binding ties one config field to its file key and environment variables.
type binding struct {
	key string
	env []string
	set func(cfg *RuntimeConfig, raw string) error
}

func envNames(key string, aliases ...string) []string {
	return append([]string{EnvPrefix + strings.ToUpper(key)}, aliases...)
}

var bindings = []binding{
	{key: "capsolver_api_key", env: envNames("capsolver_api_key", "CAPSOLVER_API_KEY"), set: setString(func(c *RuntimeConfig) *string { return &c.CapSolverAPIKey })},
	{key: "capsolver_base_url", env: envNames("capsolver_base_url"), set: setString(func(c *RuntimeConfig) *string { return &c.CapSolverBaseURL })},
	{key: "captcha_site_key", env: envNames("captcha_site_key"), set: setString(func(c *RuntimeConfig) *string { return &c.CaptchaSiteKey })},
	{key: "captcha_website_url", env: envNames("captcha_website_url"), set: setString(func(c *RuntimeConfig) *string { return &c.CaptchaWebsiteURL })},
	{key: "captcha_task_type", env: envNames("captcha_task_type"), set: setString(func(c *RuntimeConfig) *string { return &c.CaptchaTaskType })},
	{key: "poll_interval", env: envNames("poll_interval"), set: setDuration(func(c *RuntimeConfig) *time.Duration { return &c.PollInterval })},
	{key: "max_poll_attempts", env: envNames("max_poll_attempts"), set: setInt(func(c *RuntimeConfig) *int { return &c.MaxPollAttempts })},
	{key: "solver_requests_per_second", env: envNames("solver_requests_per_second", EnvPrefix+"SOLVER_RPS"), set: setFloat(func(c *RuntimeConfig) *float64 { return &c.SolverRequestsPerSecond })},
	{key: "create_url", env: envNames("create_url"), set: setString(func(c *RuntimeConfig) *string { return &c.CreateURL })},
	{key: "origin", env: envNames("origin"), set: setString(func(c *RuntimeConfig) *string { return &c.Origin })},
	{key: "referer", env: envNames("referer"), set: setString(func(c *RuntimeConfig) *string { return &c.Referer })},
	{key: "user_agent", env: envNames("user_agent"), set: setString(func(c *RuntimeConfig) *string { return &c.UserAgent })},
	{key: "ipfs_gateway", env: envNames("ipfs_gateway"), set: setString(func(c *RuntimeConfig) *string { return &c.IPFSGateway })},
	{key: "default_image_ref", env: envNames("default_image_ref", EnvPrefix+"DEFAULT_IMAGE"), set: setString(func(c *RuntimeConfig) *string { return &c.DefaultImageRef })},
	{key: "require_image", env: envNames("require_image"), set: setBool(func(c *RuntimeConfig) *bool { return &c.RequireImage })},
	{key: "http_timeout", env: envNames("http_timeout"), set: setDuration(func(c *RuntimeConfig) *time.Duration { return &c.HTTPTimeout })},
	{key: "proxy_url", env: envNames("proxy_url"), set: setString(func(c *RuntimeConfig) *string { return &c.ProxyURL })},
	{key: "log_level", env: envNames("log_level"), set: setString(func(c *RuntimeConfig) *string { return &c.Observability.Logging.Level })},
	{key: "log_format", env: envNames("log_format"), set: setString(func(c *RuntimeConfig) *string { return &c.Observability.Logging.Format })},
	{key: "metrics_enabled", env: envNames("metrics_enabled"), set: setBool(func(c *RuntimeConfig) *bool { return &c.Observability.Metrics.Enabled })},
	{key: "metrics_port", env: envNames("metrics_port"), set: setInt(func(c *RuntimeConfig) *int { return &c.Observability.Metrics.PrometheusPort })},
	{key: "tracing_enabled", env: envNames("tracing_enabled"), set: setBool(func(c *RuntimeConfig) *bool { return &c.Observability.Tracing.Enabled })},
	{key: "tracing_exporter", env: envNames("tracing_exporter"), set: setString(func(c *RuntimeConfig) *string { return &c.Observability.Tracing.Exporter })},
	{key: "tracing_endpoint", env: envNames("tracing_endpoint"), set: setTracingEndpoint},
}

func setString(field func(*RuntimeConfig) *string) func(*RuntimeConfig, string) error {
	return func(cfg *RuntimeConfig, raw string) error {
		*field(cfg) = strings.TrimSpace(raw)
		return nil
	}
}

// setDuration accepts Go durations ("3s", "250ms") or a plain number of seconds.
func setDuration(field func(*RuntimeConfig) *time.Duration) func(*RuntimeConfig, string) error {
	return func(cfg *RuntimeConfig, raw string) error {
		raw = strings.TrimSpace(raw)
		if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
			*field(cfg) = time.Duration(seconds * float64(time.Second))
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*field(cfg) = parsed
		return nil
	}
}

func setInt(field func(*RuntimeConfig) *int) func(*RuntimeConfig, string) error {
	return func(cfg *RuntimeConfig, raw string) error {
		parsed, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		*field(cfg) = parsed
		return nil
	}
}

func setFloat(field func(*RuntimeConfig) *float64) func(*RuntimeConfig, string) error {
	return func(cfg *RuntimeConfig, raw string) error {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return err
		}
		*field(cfg) = parsed
		return nil
	}
}

func setBool(field func(*RuntimeConfig) *bool) func(*RuntimeConfig, string) error {
	return func(cfg *RuntimeConfig, raw string) error {
		parsed, err := parseBool(raw)
		if err != nil {
			return err
		}
		*field(cfg) = parsed
		return nil
	}
}

func setTracingEndpoint(cfg *RuntimeConfig, raw string) error {
	endpoint := strings.TrimSpace(raw)
	cfg.Observability.Tracing.OTLPEndpoint = endpoint
	cfg.Observability.Tracing.ZipkinEndpoint = endpoint
	return nil
}

func applyFile(cfg *RuntimeConfig, meta *Metadata, opts loadOptions) error {
	configPath := strings.TrimSpace(opts.configPath)
	explicit := configPath != ""
	if !explicit {
		configPath, explicit = ResolveConfigPath(opts.envLookup, opts.homeDir)
	}
	if configPath == "" {
		return nil
	}

	data, err := opts.readFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	meta.path = configPath
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if section, ok := raw["observability"]; ok && section != nil {
		var parsed struct {
			Observability observability.Config `yaml:"observability"`
		}
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("parse observability section: %w", err)
		}
		cfg.Observability = cfg.Observability.Merge(parsed.Observability)
		meta.sources["observability"] = SourceFile
	}

	expand := func(key string) string {
		value, _ := opts.envLookup(key)
		return value
	}
	for _, b := range bindings {
		value, ok := raw[b.key]
		if !ok || value == nil {
			continue
		}
		text := os.Expand(fmt.Sprint(value), expand)
		if err := b.set(cfg, text); err != nil {
			return fmt.Errorf("config file field %s: %w", b.key, err)
		}
		meta.sources[b.key] = SourceFile
	}
	return nil
}

func applyEnv(cfg *RuntimeConfig, meta *Metadata, lookup EnvLookup) error {
	for _, b := range bindings {
		for _, name := range b.env {
			value, ok := lookup(name)
			if !ok || strings.TrimSpace(value) == "" {
				continue
			}
			if err := b.set(cfg, value); err != nil {
				return fmt.Errorf("environment variable %s: %w", name, err)
			}
			meta.sources[b.key] = SourceEnv
			break
		}
	}
	return nil
}

func applyOverrides(cfg *RuntimeConfig, meta *Metadata, overrides Overrides) {
	setSource := func(field string) {
		meta.sources[field] = SourceOverride
	}

	if overrides.CapSolverAPIKey != nil {
		cfg.CapSolverAPIKey = *overrides.CapSolverAPIKey
		setSource("capsolver_api_key")
	}
	if overrides.CapSolverBaseURL != nil {
		cfg.CapSolverBaseURL = *overrides.CapSolverBaseURL
		setSource("capsolver_base_url")
	}
	if overrides.CaptchaSiteKey != nil {
		cfg.CaptchaSiteKey = *overrides.CaptchaSiteKey
		setSource("captcha_site_key")
	}
	if overrides.CaptchaWebsiteURL != nil {
		cfg.CaptchaWebsiteURL = *overrides.CaptchaWebsiteURL
		setSource("captcha_website_url")
	}
	if overrides.CaptchaTaskType != nil {
		cfg.CaptchaTaskType = *overrides.CaptchaTaskType
		setSource("captcha_task_type")
	}
	if overrides.PollInterval != nil {
		cfg.PollInterval = *overrides.PollInterval
		setSource("poll_interval")
	}
	if overrides.MaxPollAttempts != nil {
		cfg.MaxPollAttempts = *overrides.MaxPollAttempts
		setSource("max_poll_attempts")
	}
	if overrides.SolverRequestsPerSecond != nil {
		cfg.SolverRequestsPerSecond = *overrides.SolverRequestsPerSecond
		setSource("solver_requests_per_second")
	}
	if overrides.CreateURL != nil {
		cfg.CreateURL = *overrides.CreateURL
		setSource("create_url")
	}
	if overrides.IPFSGateway != nil {
		cfg.IPFSGateway = *overrides.IPFSGateway
		setSource("ipfs_gateway")
	}
	if overrides.DefaultImageRef != nil {
		cfg.DefaultImageRef = *overrides.DefaultImageRef
		setSource("default_image_ref")
	}
	if overrides.RequireImage != nil {
		cfg.RequireImage = *overrides.RequireImage
		setSource("require_image")
	}
	if overrides.HTTPTimeout != nil {
		cfg.HTTPTimeout = *overrides.HTTPTimeout
		setSource("http_timeout")
	}
	if overrides.ProxyURL != nil {
		cfg.ProxyURL = *overrides.ProxyURL
		setSource("proxy_url")
	}
	if overrides.LogLevel != nil {
		cfg.Observability.Logging.Level = *overrides.LogLevel
		setSource("log_level")
	}
	if overrides.LogFormat != nil {
		cfg.Observability.Logging.Format = *overrides.LogFormat
		setSource("log_format")
	}
	if overrides.MetricsEnabled != nil {
		cfg.Observability.Metrics.Enabled = *overrides.MetricsEnabled
		setSource("metrics_enabled")
	}
	if overrides.MetricsPort != nil {
		cfg.Observability.Metrics.PrometheusPort = *overrides.MetricsPort
		setSource("metrics_port")
	}
	if overrides.TracingEnabled != nil {
		cfg.Observability.Tracing.Enabled = *overrides.TracingEnabled
		setSource("tracing_enabled")
	}
	if overrides.TracingExporter != nil {
		cfg.Observability.Tracing.Exporter = *overrides.TracingExporter
		setSource("tracing_exporter")
	}
	if overrides.TracingEndpoint != nil {
		_ = setTracingEndpoint(cfg, *overrides.TracingEndpoint)
		setSource("tracing_endpoint")
	}
}

func normalize(cfg *RuntimeConfig) {
	cfg.CapSolverAPIKey = strings.TrimSpace(cfg.CapSolverAPIKey)
	cfg.CapSolverBaseURL = strings.TrimRight(strings.TrimSpace(cfg.CapSolverBaseURL), "/")
	cfg.Observability.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Observability.Logging.Level))
	cfg.Observability.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Observability.Logging.Format))
	cfg.Observability.Tracing.Exporter = strings.ToLower(strings.TrimSpace(cfg.Observability.Tracing.Exporter))
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", value)
	}
}
