package config

import (
	"time"

	"pumpkit/internal/observability"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

const (
	DefaultCapSolverBaseURL  = "https://api.capsolver.com"
	DefaultCaptchaSiteKey    = "1e3d0e3e-fd0b-4b8f-95a6-6d7b6b7b7204"
	DefaultCaptchaWebsiteURL = "https://pump.fun"
	DefaultCaptchaTaskType   = "HCaptchaTurboTask"
	DefaultPollInterval      = 3 * time.Second
	DefaultMaxPollAttempts   = 40
	DefaultCreateURL         = "https://frontend-api-v3.pump.fun/coins/create"
	DefaultOrigin            = "https://pump.fun"
	DefaultReferer           = "https://pump.fun/"
	DefaultUserAgent         = "Mozilla/5.0"
	DefaultIPFSGateway       = "https://ipfs.io/ipfs/"
	DefaultImageRef          = "QmUC123456789"
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultLogLevel          = "warn"
)

// RuntimeConfig captures user-configurable settings for the token launcher.
type RuntimeConfig struct {
	CapSolverAPIKey         string        `json:"-" yaml:"capsolver_api_key"`
	CapSolverBaseURL        string        `json:"capsolver_base_url" yaml:"capsolver_base_url"`
	CaptchaSiteKey          string        `json:"captcha_site_key" yaml:"captcha_site_key"`
	CaptchaWebsiteURL       string        `json:"captcha_website_url" yaml:"captcha_website_url"`
	CaptchaTaskType         string        `json:"captcha_task_type" yaml:"captcha_task_type"`
	PollInterval            time.Duration `json:"poll_interval" yaml:"poll_interval"`
	MaxPollAttempts         int           `json:"max_poll_attempts" yaml:"max_poll_attempts"`
	SolverRequestsPerSecond float64       `json:"solver_requests_per_second" yaml:"solver_requests_per_second"`

	CreateURL   string `json:"create_url" yaml:"create_url"`
	Origin      string `json:"origin" yaml:"origin"`
	Referer     string `json:"referer" yaml:"referer"`
	UserAgent   string `json:"user_agent" yaml:"user_agent"`
	IPFSGateway string `json:"ipfs_gateway" yaml:"ipfs_gateway"`

	DefaultImageRef string `json:"default_image_ref" yaml:"default_image_ref"`
	RequireImage    bool   `json:"require_image" yaml:"require_image"`

	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout"`
	ProxyURL    string        `json:"proxy_url" yaml:"proxy_url"`

	Observability observability.Config `json:"observability" yaml:"observability"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() RuntimeConfig {
	obs := observability.DefaultConfig()
	obs.Logging.Level = DefaultLogLevel
	return RuntimeConfig{
		CapSolverBaseURL:  DefaultCapSolverBaseURL,
		CaptchaSiteKey:    DefaultCaptchaSiteKey,
		CaptchaWebsiteURL: DefaultCaptchaWebsiteURL,
		CaptchaTaskType:   DefaultCaptchaTaskType,
		PollInterval:      DefaultPollInterval,
		MaxPollAttempts:   DefaultMaxPollAttempts,
		CreateURL:         DefaultCreateURL,
		Origin:            DefaultOrigin,
		Referer:           DefaultReferer,
		UserAgent:         DefaultUserAgent,
		IPFSGateway:       DefaultIPFSGateway,
		DefaultImageRef:   DefaultImageRef,
		HTTPTimeout:       DefaultHTTPTimeout,
		Observability:     obs,
	}
}

// Metadata records provenance for each configured field.
type Metadata struct {
	sources  map[string]ValueSource
	loadedAt time.Time
	path     string
}

// Sources returns a copy of the provenance map.
func (m Metadata) Sources() map[string]ValueSource {
	out := make(map[string]ValueSource, len(m.sources))
	for key, value := range m.sources {
		out[key] = value
	}
	return out
}

// Source returns the origin for the given configuration field.
func (m Metadata) Source(field string) ValueSource {
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// Path is the config file that was read, or "" when none was found.
func (m Metadata) Path() string {
	return m.path
}

// Overrides conveys caller-specified values that win over env/file sources.
type Overrides struct {
	CapSolverAPIKey         *string
	CapSolverBaseURL        *string
	CaptchaSiteKey          *string
	CaptchaWebsiteURL       *string
	CaptchaTaskType         *string
	PollInterval            *time.Duration
	MaxPollAttempts         *int
	SolverRequestsPerSecond *float64
	CreateURL               *string
	IPFSGateway             *string
	DefaultImageRef         *string
	RequireImage            *bool
	HTTPTimeout             *time.Duration
	ProxyURL                *string
	LogLevel                *string
	LogFormat               *string
	MetricsEnabled          *bool
	MetricsPort             *int
	TracingEnabled          *bool
	TracingExporter         *string
	TracingEndpoint         *string
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)
