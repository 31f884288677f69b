package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/snipvault/snipvault/internal/adapter/inbound/http"
	auditfile "github.com/snipvault/snipvault/internal/adapter/outbound/audit"
	celadapter "github.com/snipvault/snipvault/internal/adapter/outbound/cel"
	"github.com/snipvault/snipvault/internal/adapter/outbound/executor"
	"github.com/snipvault/snipvault/internal/adapter/outbound/memory"
	"github.com/snipvault/snipvault/internal/adapter/outbound/sqlite"
	"github.com/snipvault/snipvault/internal/config"
	"github.com/snipvault/snipvault/internal/domain/admission"
	"github.com/snipvault/snipvault/internal/domain/audit"
	"github.com/snipvault/snipvault/internal/domain/auth"
	"github.com/snipvault/snipvault/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server",
	Long: `Start the SnipVault API server.

All routes are served from a single HTTP listener, including /health and
/metrics. Admission control is active by default; disable it only for load
testing via admission.enabled: false.

Examples:
  # Start with config file settings
  snipvault start

  # Start with a specific config file
  snipvault --config /path/to/config.yaml start

  # Development mode: in-memory storage, seeded dev user, debug logging
  snipvault start --dev`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, in-memory storage, seeded dev user)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("snipvault stopped")
	return nil
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Admission stores with background sweepers.
	cleanupInterval := config.Duration(cfg.Admission.CleanupInterval, 5*time.Minute)
	violationRetention := config.Duration(cfg.Admission.ViolationRetention, time.Hour)

	counterStore := memory.NewCounterStore(
		memory.WithCounterCleanupInterval(cleanupInterval),
	)
	counterStore.StartCleanup(ctx)
	defer counterStore.Stop()

	violationStore := memory.NewViolationStore(
		memory.WithViolationCleanupInterval(cleanupInterval),
		memory.WithViolationRetention(violationRetention),
	)
	violationStore.StartCleanup(ctx)
	defer violationStore.Stop()

	sessionStore := memory.NewSessionStore()
	sessionStore.StartCleanup(ctx)
	defer sessionStore.Stop()

	// Policy catalog with config overrides.
	catalog := admission.DefaultCatalog()
	for _, override := range cfg.Admission.Policies {
		window := config.Duration(override.Window, 0)
		if err := catalog.Override(override.Name, window, override.Limit); err != nil {
			return fmt.Errorf("policy override: %w", err)
		}
		logger.Info("admission policy overridden",
			"policy", override.Name,
			"window", override.Window,
			"limit", override.Limit,
		)
	}

	// Bypass rules compile at startup; a bad expression is fatal.
	var bypass *celadapter.BypassEvaluator
	if len(cfg.Admission.BypassRules) > 0 {
		specs := make([]celadapter.RuleSpec, 0, len(cfg.Admission.BypassRules))
		for _, rule := range cfg.Admission.BypassRules {
			specs = append(specs, celadapter.RuleSpec{Name: rule.Name, Condition: rule.Condition})
		}
		var err error
		bypass, err = celadapter.NewBypassEvaluator(specs)
		if err != nil {
			return fmt.Errorf("bypass rules: %w", err)
		}
		logger.Info("admission bypass rules compiled", "count", len(specs))
	}

	admissionSvc := service.NewAdmissionService(counterStore, violationStore)

	// Denial audit trail. File-backed when audit.dir is set, in-memory otherwise.
	var auditStore audit.Store
	if cfg.Audit.Dir != "" {
		fileStore, err := auditfile.NewFileStore(auditfile.FileStoreConfig{
			Dir:           cfg.Audit.Dir,
			RetentionDays: cfg.Audit.RetentionDays,
			MaxFileSizeMB: cfg.Audit.MaxFileSizeMB,
			CacheSize:     cfg.Audit.BufferSize,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to open denial log store: %w", err)
		}
		defer func() { _ = fileStore.Close() }()
		auditStore = fileStore
		logger.Info("denial log persistence enabled", "dir", cfg.Audit.Dir)
	} else {
		auditStore = memory.NewAuditStore(cfg.Audit.BufferSize)
	}
	auditSvc := service.NewAuditService(auditStore, logger,
		service.WithAuditChannelSize(cfg.Audit.ChannelSize),
		service.WithAuditBatchSize(cfg.Audit.BatchSize),
		service.WithAuditFlushInterval(config.Duration(cfg.Audit.FlushInterval, time.Second)),
	)
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	// File-based accounts.
	users := make([]auth.User, 0, len(cfg.Auth.Users))
	for _, u := range cfg.Auth.Users {
		users = append(users, auth.User{
			ID:           u.ID,
			Email:        strings.ToLower(u.Email),
			PasswordHash: u.PasswordHash,
		})
	}
	credentialStore := memory.NewCredentialStore(users)
	logger.Info("accounts loaded", "count", len(users))

	// Snippet persistence.
	snippetStore, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open snippet store: %w", err)
	}
	defer func() { _ = snippetStore.Close() }()
	if err := snippetStore.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate snippet store: %w", err)
	}
	logger.Info("snippet store ready", "path", cfg.Store.Path)

	// External execution backend.
	execClient := executor.NewClient(cfg.Executor.URL,
		executor.WithTimeout(config.Duration(cfg.Executor.Timeout, 30*time.Second)),
	)
	if !execClient.Configured() {
		logger.Warn("no executor backend configured, /api/execute will return 503")
	}

	adm := httpadapter.NewAdmissionMiddleware(
		admissionSvc,
		catalog,
		bypass,
		auditSvc,
		nil, // metrics injected by the server
		cfg.Admission.SuspiciousThreshold,
		cfg.Admission.Enabled,
	)
	if !cfg.Admission.Enabled {
		logger.Warn("admission control is DISABLED")
	}

	handlers := httpadapter.NewHandlers(
		adm,
		credentialStore,
		sessionStore,
		config.Duration(cfg.Auth.SessionTTL, 24*time.Hour),
		snippetStore,
		execClient,
		auditSvc,
		nil, // metrics injected by the server
	)

	healthChecker := httpadapter.NewHealthChecker(counterStore, violationStore, sessionStore, auditSvc, Version)

	server := httpadapter.NewServer(adm, handlers, sessionStore,
		httpadapter.WithAddr(cfg.Server.HTTPAddr),
		httpadapter.WithLogger(logger),
		httpadapter.WithHealthChecker(healthChecker),
		httpadapter.WithGaugeSources(sessionStore.Size, counterStore.Size),
	)

	printBanner(Version, cfg.Server.HTTPAddr, cfg.DevMode, len(catalog.Names()), len(users))

	return server.Start(ctx)
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printBanner(version, httpAddr string, devMode bool, policyCount, userCount int) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	apiURL := fmt.Sprintf("http://localhost%s/api", httpAddr)
	if !strings.HasPrefix(httpAddr, ":") {
		apiURL = fmt.Sprintf("http://%s/api", httpAddr)
	}

	modeStr := green + "production" + reset
	if devMode {
		modeStr = yellow + "development" + reset
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%s SnipVault %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "API:", apiURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %-14s %d active\n", "Policies:", policyCount)
	fmt.Fprintf(os.Stderr, "  %-14s %d configured\n", "Accounts:", userCount)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}
