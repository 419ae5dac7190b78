package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/stake-plus/trustink/src/auth"
	"github.com/stake-plus/trustink/src/cache"
	"github.com/stake-plus/trustink/src/certify"
	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/data"
	"github.com/stake-plus/trustink/src/metrics"
	"github.com/stake-plus/trustink/src/notify"
	"github.com/stake-plus/trustink/src/reports"
	"github.com/stake-plus/trustink/src/scoring"
	"github.com/stake-plus/trustink/src/submissions"
	"github.com/stake-plus/trustink/src/trust"
	"github.com/stake-plus/trustink/src/webserver"
	"go.uber.org/zap"
)

const eventQueueSize = 256

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting TrustInk", zap.String("version", version))
	cfg.LogSummary(logger)

	db := data.MustOpen(cfg.Database, logger)
	if err := data.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb, err := data.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	var store cache.Store = cache.NewMemoryStore()
	var sinks []notify.Sink
	if rdb != nil {
		defer rdb.Close()
		store = cache.NewRedisStore(rdb)
		sinks = append(sinks, notify.NewStreamSink(rdb))
	} else {
		logger.Warn("Redis not configured, using in-process registry cache and no event stream")
	}
	if cfg.Discord.Token != "" && cfg.Discord.ChannelID != "" {
		session, err := notify.NewDiscordSession(cfg.Discord.Token)
		if err != nil {
			return fmt.Errorf("discord session: %w", err)
		}
		sinks = append(sinks, notify.NewDiscordSink(session, cfg.Discord.ChannelID, cfg.PublicURL))
	}
	events := notify.NewDispatcher(logger, eventQueueSize, sinks...)
	defer events.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	engine := trust.NewEngine(db, cfg.Trust, logger)
	registry := certify.NewRegistry(db, certify.NewSigner(cfg.Signing.HMACSecret), cfg.Registry, certify.Deps{
		Cache:   cache.NewRegistry(store, cfg.Registry.CacheTTL, logger),
		Trust:   engine,
		Events:  events,
		Metrics: m,
		Logger:  logger,
	})
	deps := submissions.Deps{
		DB:       db,
		Registry: registry,
		Trust:    engine,
		Events:   events,
		Metrics:  m,
		Logger:   logger,
	}
	oracle := scoring.New(cfg.Oracle)
	logger.Info("Scoring oracle selected", zap.String("oracle", oracle.Name()))

	srv := webserver.New(cfg, webserver.Services{
		DB:        db,
		Redis:     rdb,
		Auth:      auth.NewService(db, cfg.Auth, engine, logger),
		APIKeys:   auth.NewAPIKeys(db, cfg.APIKeys, logger),
		Intake:    submissions.NewIntake(deps, oracle, cfg.Policy, cfg.Oracle.Timeout),
		Queue:     submissions.NewQueue(deps, cfg.Policy.QueueLimit),
		Dashboard: submissions.NewDashboard(deps),
		Registry:  registry,
		Reports:   reports.NewGenerator(cfg.PublicURL),
		Metrics:   m,
		Gatherer:  reg,
		Logger:    logger,
	})
	defer srv.Close()

	start := time.Now()
	err = srv.Run(ctx)
	logger.Info("Server stopped", zap.Duration("uptime", time.Since(start).Round(time.Second)))
	return err
}
