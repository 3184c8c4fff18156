package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	inletruntime "github.com/inlethq/inlet/internal/runtime"
	"github.com/inlethq/inlet/pkg/config"
	"github.com/inlethq/inlet/pkg/json"
	"github.com/inlethq/inlet/pkg/logger"
	"github.com/inlethq/inlet/pkg/parser"
	"github.com/inlethq/inlet/pkg/storage"

	// Import the built-in parsers to register them
	_ "github.com/inlethq/inlet/pkg/parser/csv"
	_ "github.com/inlethq/inlet/pkg/parser/lines"
	_ "github.com/inlethq/inlet/pkg/parser/ndjson"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "inlet",
		Short: "Inlet - Streaming ingestion agent for schema-less document stores",
		Long: `Inlet is a long-running ingestion agent. It accepts continuous byte
streams over TCP or Unix domain sockets, optionally decompresses them,
parses them into records and persists each record to a document store.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindEnv(viper.New(), cmd.Flags(), "INLET")
		},
	}

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Inlet v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	// Parsers command to show registered parsers
	root.AddCommand(&cobra.Command{
		Use:   "parsers",
		Short: "List registered parsers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Registered parsers:")
			for _, name := range parser.List() {
				if info, ok := parser.Describe(name); ok {
					fmt.Printf("  - %-8s %s\n", name, info.Description)
					continue
				}
				fmt.Printf("  - %s\n", name)
			}
		},
	})

	// Check command validates a configuration without starting the agent
	var checkConfigFile string
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate an agent configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkConfig(checkConfigFile)
		},
	}
	checkCmd.Flags().StringVarP(&checkConfigFile, "config", "c", "inlet.yaml", "Path to agent configuration YAML file")
	root.AddCommand(checkCmd)

	// Main run command
	var (
		runConfigFile string
		parserName    string
		logLevel      string
		metricsAddr   string
		heartbeat     time.Duration
		enableTracing bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run an ingestion agent",
		Long: `Run an ingestion agent with the given configuration file.

The agent listens on the configured endpoint, parses inbound streams with
the configured parser and persists every record to the configured document
store. SIGINT and SIGTERM trigger an orderly shutdown.

Example:
  inlet run --config inlet.yaml --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(runConfigFile)
			if err != nil {
				return err
			}

			// Flags override file values only when set explicitly (or via
			// the INLET_* environment).
			if cmd.Flags().Changed("parser") {
				cfg.Parser = parserName
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Observability.LogLevel = logLevel
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Observability.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("heartbeat") {
				cfg.Observability.HeartbeatInterval = heartbeat
			}
			if cmd.Flags().Changed("enable-tracing") {
				cfg.Observability.EnableTracing = enableTracing
			}

			return runAgent(cfg, runConfigFile)
		},
	}

	runCmd.Flags().StringVarP(&runConfigFile, "config", "c", "inlet.yaml", "Path to agent configuration YAML file")
	runCmd.Flags().StringVarP(&parserName, "parser", "p", "", "Parser to use, overriding the configuration file")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (host:port)")
	runCmd.Flags().DurationVar(&heartbeat, "heartbeat", 0, "Emit a periodic resource status line at this interval (0 = off)")
	runCmd.Flags().BoolVar(&enableTracing, "enable-tracing", false, "Enable OpenTelemetry span export")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bindEnv applies prefixed environment variables to flags that were not set
// on the command line: INLET_LOG_LEVEL populates --log-level and so on.
// Explicit flags always win.
func bindEnv(v *viper.Viper, flags *pflag.FlagSet, envPrefix string) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		if value := v.GetString(f.Name); value != "" {
			flagErr = f.Value.Set(value)
		}
	})
	return flagErr
}

// runAgent runs an agent until a signal arrives, then lets the runtime
// drive the ordered shutdown. A second signal during shutdown is ignored;
// the handler stays registered until the agent has terminated.
func runAgent(cfg *config.Config, configFile string) error {
	if err := logger.Init(logger.Config{Level: cfg.Observability.LogLevel}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.WithValue(context.Background(), logger.EndpointKey, cfg.Endpoint.Address)
	log := logger.WithContext(ctx).With(zap.String("component", "inlet-cli"))

	log.Info("starting agent",
		zap.String("config", configFile),
		zap.String("parser", cfg.Parser),
		zap.String("compression", cfg.Compression),
		zap.String("storage_driver", cfg.Storage.Driver))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := inletruntime.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("agent startup failed: %w", err)
	}

	start := time.Now()
	if err := rt.Run(ctx); err != nil {
		return fmt.Errorf("agent terminated with error: %w", err)
	}

	log.Info("agent stopped", zap.Duration("uptime", time.Since(start)))
	return nil
}

// checkConfig loads and validates a configuration file and prints the
// resolved configuration without starting anything.
func checkConfig(configFile string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return err
	}

	if cfg.Parser != "" && !parser.Has(cfg.Parser) {
		return fmt.Errorf("parser %q is not registered (known: %s)",
			cfg.Parser, strings.Join(parser.List(), ", "))
	}

	resolved, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	fmt.Printf("configuration ok: %s\n", configFile)
	fmt.Printf("%s\n", resolved)
	fmt.Printf("endpoint: %s (%s)\n", cfg.Endpoint.Target(), cfg.Endpoint.Network())

	if cfg.Storage.Driver == "mongodb" {
		target, err := storage.ResolveTarget(cfg.Storage.Host)
		if err != nil {
			return err
		}
		fmt.Printf("storage target: %s\n", target)
	}
	return nil
}
