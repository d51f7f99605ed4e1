package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"pumpkit/internal/captcha"
)

// Validate reports every setting that would make a launch fail before any
// network call is made.
func (c RuntimeConfig) Validate() error {
	var errs []error

	if c.CapSolverAPIKey == "" {
		errs = append(errs, errors.New("solver api key is not set (CAPSOLVER_API_KEY)"))
	}
	if _, err := captcha.ParseTaskKind(c.CaptchaTaskType); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.CaptchaSiteKey) == "" {
		errs = append(errs, errors.New("captcha site key is empty"))
	}
	for name, raw := range map[string]string{
		"capsolver base url":  c.CapSolverBaseURL,
		"captcha website url": c.CaptchaWebsiteURL,
		"create url":          c.CreateURL,
	} {
		if err := validateURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.ProxyURL != "" {
		if err := validateURL(c.ProxyURL); err != nil {
			errs = append(errs, fmt.Errorf("proxy url: %w", err))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.MaxPollAttempts <= 0 {
		errs = append(errs, fmt.Errorf("max poll attempts must be positive, got %d", c.MaxPollAttempts))
	}
	if c.SolverRequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("solver requests per second must not be negative, got %g", c.SolverRequestsPerSecond))
	}
	if c.HTTPTimeout < 0 {
		errs = append(errs, fmt.Errorf("http timeout must not be negative, got %s", c.HTTPTimeout))
	}
	switch c.Observability.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Observability.Logging.Level))
	}
	switch c.Observability.Tracing.Exporter {
	case "otlp", "zipkin":
	default:
		errs = append(errs, fmt.Errorf("unknown tracing exporter %q", c.Observability.Tracing.Exporter))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%q is not an absolute url", raw)
	}
	return nil
}
