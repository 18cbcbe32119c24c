package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobwatch/crawler/internal/adapter"
	"github.com/jobwatch/crawler/internal/clock/system"
	"github.com/jobwatch/crawler/internal/config"
	"github.com/jobwatch/crawler/internal/crawler"
	"github.com/jobwatch/crawler/internal/events"
	collyfetcher "github.com/jobwatch/crawler/internal/fetcher/colly"
	"github.com/jobwatch/crawler/internal/logging"
	"github.com/jobwatch/crawler/internal/metrics"
	"github.com/jobwatch/crawler/internal/orchestrator"
	"github.com/jobwatch/crawler/internal/reconciler"
	"github.com/jobwatch/crawler/internal/storage/postgres"
)

// newCrawlCmd creates and configures the 'crawl' subcommand: one full pass
// over the active targets, then exit. Scheduling belongs to the operator
// (systemd timer, Kubernetes CronJob).
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl pass over all active targets",
		RunE:  runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	poolCfg := postgres.PoolConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer pool.Close()

	targetStore, err := postgres.NewTargetStoreWithPool(pool)
	if err != nil {
		return fmt.Errorf("init target store: %w", err)
	}
	postingStore, err := postgres.NewPostingStoreWithPool(pool)
	if err != nil {
		return fmt.Errorf("init posting store: %w", err)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.HTTP.FetchTimeout(),
		MaxAttempts: cfg.HTTP.MaxRetries,
		BackoffBase: cfg.HTTP.BackoffBase(),
		BackoffMax:  cfg.HTTP.BackoffMax(),
	})

	var publisher crawler.Publisher
	if cfg.NATS.URL != "" {
		natsPublisher, err := events.NewPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return fmt.Errorf("init publisher: %w", err)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
	}

	if cfg.Metrics.ListenAddr != "" {
		startMetricsServer(cfg.Metrics.ListenAddr, logger)
	}

	clock := system.New()
	registry := adapter.NewRegistry(fetcher, logger)
	rec := reconciler.New(postingStore, clock)
	orch := orchestrator.New(targetStore, registry, rec, publisher, clock, logger)

	stats, err := orch.RunPass(ctx)
	if err != nil {
		return fmt.Errorf("run crawl pass: %w", err)
	}
	if stats.Errors > 0 {
		return fmt.Errorf("crawl pass finished with %d errors", stats.Errors)
	}
	return nil
}

// startMetricsServer serves /metrics and /healthz for the lifetime of the
// pass. The process exits when the pass ends, so there is no shutdown dance.
func startMetricsServer(addr string, logger *zap.Logger) {
	server := &http.Server{Addr: addr, Handler: metrics.NewRouter()}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics server listening", zap.String("addr", addr))
}
