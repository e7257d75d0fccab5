package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kidvoice-labs/safegate/internal/alert"
	"github.com/kidvoice-labs/safegate/internal/api"
	"github.com/kidvoice-labs/safegate/internal/config"
	"github.com/kidvoice-labs/safegate/internal/detect"
	"github.com/kidvoice-labs/safegate/internal/genai"
	"github.com/kidvoice-labs/safegate/internal/lockfile"
	"github.com/kidvoice-labs/safegate/internal/models"
	"github.com/kidvoice-labs/safegate/internal/orchestrator"
	"github.com/kidvoice-labs/safegate/internal/store"
	"github.com/kidvoice-labs/safegate/internal/util"
)

func main() {
	initializeLogger()

	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	configPath := flag.String("config", os.Getenv("SAFEGATE_CONFIG"), "Path to YAML configuration file")
	apiAddr := flag.String("addr", "", "Gateway listen address (overrides config)")
	storeDriver := flag.String("store-driver", "", "Event log driver: memory, sqlite3, or postgres (overrides config)")
	storeDSN := flag.String("store-dsn", "", "Event log DSN (overrides config)")
	openaiKey := flag.String("openai-api-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key; empty disables generation (fallback only)")
	alertsEnabled := flag.Bool("caregiver-alerts", util.ParseBoolEnv("CAREGIVER_ALERTS", false), "Send an SMS to the caregiver on the first RED escalation")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}
	if *apiAddr != "" {
		cfg.Server.Addr = *apiAddr
	}
	if *storeDriver != "" {
		cfg.Store.Driver = *storeDriver
	}
	if *storeDSN != "" {
		cfg.Store.DSN = *storeDSN
	}
	cfg.Generator.Timeout = util.ParseDurationEnv("GENERATOR_TIMEOUT", cfg.Generator.Timeout)

	deps := orchestrator.Dependencies{
		Detector:        detect.NewDetector(detect.WithLexicon(buildLexicon(cfg))),
		PlannedDuration: cfg.Session.PlannedDuration,
	}

	// A SQLite event log is a local file; take the data directory lock so a
	// second instance cannot corrupt it.
	if cfg.Store.Driver == "sqlite3" && cfg.Store.DSN != "" {
		lock, err := lockfile.AcquireLock(filepath.Dir(cfg.Store.DSN))
		if err != nil {
			slog.Error("Failed to lock data directory", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				slog.Warn("Failed to release data directory lock", "error", err)
			}
		}()
	}

	deps.Store, err = buildStore(cfg)
	if err != nil {
		slog.Error("Failed to open event log store", "error", err, "driver", cfg.Store.Driver)
		os.Exit(1)
	}
	defer func() {
		if err := deps.Store.Close(); err != nil {
			slog.Warn("Failed to close event log store", "error", err)
		}
	}()

	if *openaiKey != "" {
		client, err := genai.NewClient(
			genai.WithAPIKey(*openaiKey),
			genai.WithModel(cfg.Generator.Model),
			genai.WithTimeout(cfg.Generator.Timeout),
		)
		if err != nil {
			slog.Error("Failed to create response generator", "error", err)
			os.Exit(1)
		}
		deps.Generator = client
	} else {
		slog.Warn("No OpenAI API key configured; all coaching lines will use fallback text")
	}

	if *alertsEnabled {
		notifier, err := alert.NewTwilioNotifier()
		if err != nil {
			slog.Error("Failed to create caregiver notifier", "error", err)
			os.Exit(1)
		}
		deps.Notifier = notifier
	}

	manager := orchestrator.NewManager(deps)
	server := api.NewServer(manager, deps.Store,
		api.WithAddr(cfg.Server.Addr),
		api.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping safegate",
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Driver,
		"generator", deps.Generator != nil,
		"alerts", deps.Notifier != nil,
		"plannedDuration", cfg.Session.PlannedDuration)
	if err := server.Run(ctx); err != nil {
		slog.Error("safegate failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("safegate exited successfully")
}

// initializeLogger sets up structured logging at the level named by LOG_LEVEL.
func initializeLogger() {
	level := util.ParseLogLevelEnv("LOG_LEVEL", slog.LevelInfo)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// buildLexicon layers configured keyword overrides over the built-in lexicon.
func buildLexicon(cfg config.Config) detect.Lexicon {
	lex := detect.DefaultLexicon()
	for name, keywords := range cfg.Lexicon {
		lex[models.Signal(name)] = keywords
	}
	return lex
}

// buildStore opens the session event log named by the configuration.
func buildStore(cfg config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite3":
		return store.NewSQLiteStore(store.WithDSN(cfg.Store.DSN))
	case "postgres":
		return store.NewPostgresStore(store.WithDSN(cfg.Store.DSN))
	default:
		return store.NewInMemoryStore(), nil
	}
}
