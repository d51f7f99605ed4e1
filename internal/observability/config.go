package observability

// Config represents the complete observability configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default observability configuration
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			PrometheusPort: 9090,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "pumpkit",
			ServiceVersion: "0.1.0",
		},
	}
}

// Merge overlays the non-zero values of override onto c. Enabled flags are
// always taken from override because false is meaningful there.
func (c Config) Merge(override Config) Config {
	if override.Logging.Level != "" {
		c.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		c.Logging.Format = override.Logging.Format
	}

	c.Metrics.Enabled = override.Metrics.Enabled
	if override.Metrics.PrometheusPort > 0 {
		c.Metrics.PrometheusPort = override.Metrics.PrometheusPort
	}

	c.Tracing.Enabled = override.Tracing.Enabled
	if override.Tracing.Exporter != "" {
		c.Tracing.Exporter = override.Tracing.Exporter
	}
	if override.Tracing.OTLPEndpoint != "" {
		c.Tracing.OTLPEndpoint = override.Tracing.OTLPEndpoint
	}
	if override.Tracing.ZipkinEndpoint != "" {
		c.Tracing.ZipkinEndpoint = override.Tracing.ZipkinEndpoint
	}
	// sample_rate 0 cannot be expressed here; disable tracing instead
	if override.Tracing.SampleRate > 0 && override.Tracing.SampleRate <= 1.0 {
		c.Tracing.SampleRate = override.Tracing.SampleRate
	}
	if override.Tracing.ServiceName != "" {
		c.Tracing.ServiceName = override.Tracing.ServiceName
	}
	if override.Tracing.ServiceVersion != "" {
		c.Tracing.ServiceVersion = override.Tracing.ServiceVersion
	}
	return c
}
