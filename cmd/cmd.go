package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/btumor-intake/pkg/analysis"
	"github.com/Azure/btumor-intake/pkg/config"
	"github.com/Azure/btumor-intake/pkg/intake"
	"github.com/Azure/btumor-intake/pkg/logger"
	"github.com/Azure/btumor-intake/pkg/monitoring"
	"github.com/Azure/btumor-intake/pkg/session"
	"github.com/Azure/btumor-intake/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Set via -ldflags at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	envFile        string
	storageRoot    string
	storeBackend   string
	boltPath       string
	httpAddr       string
	httpPort       int
	maxUploadBytes int64
	logLevel       string
	logJSON        bool
	disableMetrics bool
)

var rootCmd = &cobra.Command{
	Use:   "btumor-intake",
	Short: "MRI session intake and analysis results service",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  `The serve command starts the session intake API and runs until it receives SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		log := logger.New(logger.Config{
			Level:   cfg.LogLevel,
			Service: cfg.ServiceName,
			JSON:    logJSON,
		})

		server, cleanup, err := buildServer(*cfg, log)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().
			Str("version", getVersion()).
			Str("storage_root", cfg.StorageRoot).
			Str("store_backend", cfg.StoreBackend).
			Str("addr", cfg.ListenAddr()).
			Msg("Starting intake server")

		if err := server.Serve(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		log.Info().Msg("Server stopped")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), getVersion())
	},
}

func Execute() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func getVersion() string {
	if Version == "dev" {
		return fmt.Sprintf("dev (commit: %s)", GitCommit)
	}
	return fmt.Sprintf("v%s (commit: %s, built: %s)", Version, GitCommit, BuildTime)
}

// loadConfig layers explicitly set flags over env file and environment
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("storage-root") {
		cfg.StorageRoot = storageRoot
	}
	if flags.Changed("store-backend") {
		cfg.StoreBackend = storeBackend
	}
	if flags.Changed("bolt-path") {
		cfg.BoltPath = boltPath
	}
	if flags.Changed("addr") {
		cfg.HTTPAddr = httpAddr
	}
	if flags.Changed("port") {
		cfg.HTTPPort = httpPort
	}
	if flags.Changed("max-upload-bytes") {
		cfg.MaxUploadBytes = maxUploadBytes
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if disableMetrics {
		cfg.MetricsEnabled = false
	}
	if cfg.ServiceVersion == "dev" {
		cfg.ServiceVersion = Version
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildServer wires store, analyzer, service and transport from cfg. The
// cleanup function closes the store.
func buildServer(cfg config.Config, log zerolog.Logger) (*transport.HTTPTransport, func(), error) {
	store, err := session.Open(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close session store")
		}
	}

	stub, err := analysis.NewStub(log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	metrics := monitoring.NewMetricsCollector(monitoring.MetricsConfig{
		Enabled: cfg.MetricsEnabled,
	}, log)

	svc, err := intake.NewService(intake.Config{
		Store:             store,
		Analyzer:          stub,
		SequenceTypes:     cfg.SequenceTypes,
		AllowedExtensions: cfg.AllowedExtensions,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		Metrics:           metrics,
		Logger:            log,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	server := transport.NewHTTPTransport(transport.HTTPTransportConfig{
		Addr:           cfg.HTTPAddr,
		Port:           cfg.HTTPPort,
		CORSOrigins:    cfg.CORSOrigins,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Service:        svc,
		Metrics:        metrics,
		Logger:         log,
	})
	return server, cleanup, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to an env file (defaults to .env when present)")

	serveCmd.Flags().StringVar(&storageRoot, "storage-root", "", "Directory holding one subdirectory per session")
	serveCmd.Flags().StringVar(&storeBackend, "store-backend", config.StoreBackendFile, "Metadata store backend, options: file, bolt")
	serveCmd.Flags().StringVar(&boltPath, "bolt-path", "", "Path of the bolt database when --store-backend=bolt")
	serveCmd.Flags().StringVar(&httpAddr, "addr", "0.0.0.0", "Address to listen on")
	serveCmd.Flags().IntVarP(&httpPort, "port", "p", 5001, "Port to listen on")
	serveCmd.Flags().Int64Var(&maxUploadBytes, "max-upload-bytes", config.DefaultMaxUploadBytes, "Maximum size of an upload request body")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level, options: debug, info, warn, error")
	serveCmd.Flags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs instead of console output")
	serveCmd.Flags().BoolVar(&disableMetrics, "disable-metrics", false, "Do not expose /metrics")
}
