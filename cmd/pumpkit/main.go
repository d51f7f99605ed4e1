package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pumpkit/internal/config"
	"pumpkit/internal/logging"
	"pumpkit/internal/observability"
	"pumpkit/internal/tools"
	"pumpkit/internal/tools/builtin"
)

var version = "0.1.0"

func main() {
	// A missing .env is normal; the environment may already carry everything.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(newApp()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		os.Exit(1)
	}
}

// invoker is the part of tools.Registry the commands depend on.
type invoker interface {
	Invoke(ctx context.Context, name, text string) string
}

// app owns the runtime wired from configuration for a single command run.
type app struct {
	flags    *viper.Viper
	registry invoker
	cleanup  []func(context.Context) error
}

func newApp() *app {
	return &app{flags: viper.New()}
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pumpkit",
		Short: "Launch pump.fun tokens from a one-line description",
		Long: fmt.Sprintf(`%s

Turns a command such as

  Create token with name Yongi, ticker YNG, description best coin, image QmAB

into a captcha-authorised create request against pump.fun.

%s
  pumpkit create "Create token with name Yongi ticker YNG description best coin"
  pumpkit repl
  echo "name Yongi ticker YNG description best coin" | pumpkit

%s
  CAPSOLVER_API_KEY   solver API key (required)
  PUMPKIT_CONFIG      config file, default ~/.pumpkit/config.yaml`,
			bold("pumpkit "+version),
			bold("EXAMPLES:"),
			bold("ENVIRONMENT:")),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initialize(cmd.Context()); err != nil {
				return err
			}
			defer a.shutdown()
			if len(args) > 0 {
				return a.runOnce(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "))
			}
			if isTTY() {
				return a.runInteractive(cmd.Context())
			}
			return a.runPiped(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ~/.pumpkit/config.yaml)")
	flags.String("api-key", "", "CapSolver API key")
	flags.String("task-type", "", "Captcha task type")
	flags.Duration("poll-interval", 0, "Delay between solver polls")
	flags.Int("max-attempts", 0, "Maximum solver polls")
	flags.String("proxy", "", "HTTP proxy for outbound requests")
	flags.String("default-image", "", "Image reference used when the command has none")
	flags.Bool("require-image", false, "Reject commands without an image")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text, json)")
	flags.Bool("metrics", false, "Expose Prometheus metrics")
	flags.Int("metrics-port", 0, "Prometheus metrics port")
	flags.Bool("tracing", false, "Export traces")
	flags.String("tracing-exporter", "", "Trace exporter (otlp, zipkin)")
	flags.String("tracing-endpoint", "", "Trace collector endpoint")
	_ = a.flags.BindPFlags(flags)

	rootCmd.AddCommand(newCreateCommand(a))
	rootCmd.AddCommand(newReplCommand(a))
	return rootCmd
}

func newCreateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <text>",
		Short: "Create a token from a single command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initialize(cmd.Context()); err != nil {
				return err
			}
			defer a.shutdown()
			return a.runOnce(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}
}

func newReplCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Read token commands line by line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.initialize(cmd.Context()); err != nil {
				return err
			}
			defer a.shutdown()
			if !isTTY() {
				return a.runPiped(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return a.runInteractive(cmd.Context())
		},
	}
}

// initialize loads configuration and wires logging, metrics, tracing and the registry.
func (a *app) initialize(context.Context) error {
	if a.registry != nil {
		return nil
	}

	opts := []config.Option{config.WithOverrides(overridesFromFlags(a.flags))}
	if path := strings.TrimSpace(a.flags.GetString("config")); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, meta, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	obs := cfg.Observability
	logging.SetDefault(observability.NewLogger(observability.LogConfig{
		Level:  obs.Logging.Level,
		Format: obs.Logging.Format,
	}))
	logger := logging.NewComponentLogger("cli")
	if meta.Path() != "" {
		logger.Debug("loaded config from %s", meta.Path())
	}
	logger.Debug("api key source: %s (%s)", meta.Source("capsolver_api_key"), observability.SanitizeAPIKey(cfg.CapSolverAPIKey))

	metrics, err := observability.NewMetricsCollector(obs.Metrics)
	if err != nil {
		return err
	}
	a.cleanup = append(a.cleanup, metrics.Shutdown)

	tracer, err := observability.NewTracerProvider(obs.Tracing)
	if err != nil {
		return err
	}
	a.cleanup = append(a.cleanup, tracer.Shutdown)

	registryOpts := []tools.Option{tools.WithMetrics(metrics), tools.WithTracer(tracer)}
	if obs.Metrics.Enabled {
		registryOpts = append(registryOpts, tools.WithBreakerMetrics(observability.NewBreakerMetrics(prometheus.DefaultRegisterer)))
	}
	registry, err := tools.NewRegistry(cfg, registryOpts...)
	if err != nil {
		return err
	}
	a.registry = registry
	return nil
}

// shutdown flushes metrics and traces. Failures are logged, not returned.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		if err := a.cleanup[i](ctx); err != nil {
			logging.NewComponentLogger("cli").Warn("shutdown: %v", err)
		}
	}
	a.cleanup = nil
}

// overridesFromFlags returns overrides for the flags that were set explicitly.
func overridesFromFlags(v *viper.Viper) config.Overrides {
	var o config.Overrides
	str := func(key string) *string {
		if !v.IsSet(key) {
			return nil
		}
		value := v.GetString(key)
		return &value
	}
	dur := func(key string) *time.Duration {
		if !v.IsSet(key) {
			return nil
		}
		value := v.GetDuration(key)
		return &value
	}
	num := func(key string) *int {
		if !v.IsSet(key) {
			return nil
		}
		value := v.GetInt(key)
		return &value
	}
	flag := func(key string) *bool {
		if !v.IsSet(key) {
			return nil
		}
		value := v.GetBool(key)
		return &value
	}

	o.CapSolverAPIKey = str("api-key")
	o.CaptchaTaskType = str("task-type")
	o.PollInterval = dur("poll-interval")
	o.MaxPollAttempts = num("max-attempts")
	o.ProxyURL = str("proxy")
	o.DefaultImageRef = str("default-image")
	o.RequireImage = flag("require-image")
	o.LogLevel = str("log-level")
	o.LogFormat = str("log-format")
	o.MetricsEnabled = flag("metrics")
	o.MetricsPort = num("metrics-port")
	o.TracingEnabled = flag("tracing")
	o.TracingExporter = str("tracing-exporter")
	o.TracingEndpoint = str("tracing-endpoint")
	return o
}

func (a *app) invoke(ctx context.Context, text string) string {
	return a.registry.Invoke(ctx, builtin.CreateTokenName, text)
}
