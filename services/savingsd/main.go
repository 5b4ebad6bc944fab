package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"savingsbank/core"
	"savingsbank/core/events"
	"savingsbank/core/genesis"
	"savingsbank/gateway/middleware"
	"savingsbank/observability"
	"savingsbank/observability/logging"
	telemetry "savingsbank/observability/otel"
	"savingsbank/services/savingsd/audit"
	"savingsbank/services/savingsd/config"
	"savingsbank/services/savingsd/server"
	"savingsbank/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to savingsd configuration file (defaults plus SAVINGSD_* overrides when empty)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("savingsd: load config: %v", err)
	}

	logger := logging.SetupWithOptions("savingsd", cfg.Env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    "savingsd",
		Environment:    cfg.Env,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		Insecure:       cfg.Observability.OTLPInsecure,
		Headers:        telemetry.ParseHeaders(cfg.Observability.OTLPHeaders),
		Metrics:        cfg.Observability.Metrics,
		Traces:         cfg.Observability.Traces,
		MetricInterval: cfg.Observability.MetricInterval.Duration,
	})
	if err != nil {
		log.Fatalf("savingsd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	var db storage.Database
	if dir := strings.TrimSpace(cfg.DataDir); dir != "" {
		ldb, err := storage.NewLevelDB(dir)
		if err != nil {
			log.Fatalf("savingsd: open state database: %v", err)
		}
		db = ldb
	} else {
		logger.Warn("no data_dir configured; state is kept in memory", slog.String("component", "savingsd"))
		db = storage.NewMemDB()
	}
	defer db.Close()

	store, err := audit.Open(cfg.Audit.Driver, cfg.Audit.DSN, logger)
	if err != nil {
		log.Fatalf("savingsd: open audit store: %v", err)
	}
	defer store.Close()

	hub := server.NewHub()
	node, err := core.NewNode(db,
		core.WithEmitter(events.Fanout{store, hub, observability.EventCounter{}}),
		core.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("savingsd: init node: %v", err)
	}

	if path := strings.TrimSpace(cfg.Genesis); path != "" {
		spec, err := genesis.LoadSpec(path)
		if err != nil {
			log.Fatalf("savingsd: load genesis: %v", err)
		}
		applied, err := node.InitGenesis(spec)
		if err != nil {
			log.Fatalf("savingsd: apply genesis: %v", err)
		}
		logger.Info("genesis processed",
			slog.String("component", "savingsd"),
			slog.String("path", path),
			slog.Bool("applied", applied))
	}

	srv, err := server.New(serverConfig(cfg), node, store, hub, logger)
	if err != nil {
		log.Fatalf("savingsd: init server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("savingsd listening",
		slog.String("address", cfg.ListenAddress),
		slog.String("env", cfg.Env),
		slog.String("audit_driver", cfg.Audit.Driver),
		logging.MaskField("audit_dsn", cfg.Audit.DSN),
		logging.MaskField("hmac_secret", cfg.Auth.HMACSecret),
		slog.Bool("auth", cfg.Auth.Enabled))
	if err := srv.Run(ctx); err != nil {
		logger.Error("savingsd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func serverConfig(cfg config.Config) server.Config {
	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for group, limit := range cfg.RateLimits {
		limits[group] = middleware.RateLimit{
			RatePerSecond: limit.RatePerSecond,
			Burst:         limit.Burst,
			DefaultTokens: limit.DefaultTokens,
			Tokens:        limit.Tokens,
		}
	}
	return server.Config{
		ListenAddress:   cfg.ListenAddress,
		ReadTimeout:     cfg.ReadTimeout.Duration,
		WriteTimeout:    cfg.WriteTimeout.Duration,
		ShutdownTimeout: cfg.ShutdownTimeout.Duration,
		Auth: middleware.AuthConfig{
			Enabled:        cfg.Auth.Enabled,
			HMACSecret:     cfg.Auth.HMACSecret,
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			ClockSkew:      cfg.Auth.ClockSkew.Duration,
			AllowAnonymous: cfg.Auth.AllowAnonymous,
		},
		RateLimits: limits,
		CORS:       middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Observability: middleware.ObservabilityConfig{
			ServiceName: "savingsd",
			LogRequests: cfg.Observability.LogRequests,
			Enabled:     true,
		},
	}
}
