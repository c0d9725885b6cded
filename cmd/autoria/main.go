package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okarpenko/autoria-scraper/internal/config"
	"github.com/okarpenko/autoria-scraper/internal/coordinator"
	"github.com/okarpenko/autoria-scraper/internal/database"
	scrapeerrors "github.com/okarpenko/autoria-scraper/internal/errors"
	"github.com/okarpenko/autoria-scraper/internal/extractor"
	"github.com/okarpenko/autoria-scraper/internal/fetcher"
	"github.com/okarpenko/autoria-scraper/internal/logger"
	"github.com/okarpenko/autoria-scraper/internal/metrics"
	"github.com/okarpenko/autoria-scraper/internal/scheduler"
	"github.com/okarpenko/autoria-scraper/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "run a single scrape immediately and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New("info", true).Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	log.Info().
		Str("start_url", cfg.StartURL).
		Int("max_pages", cfg.MaxPages).
		Int("max_tickets", cfg.MaxTicketsPerRun).
		Int("concurrency", cfg.MaxConcurrentRequests).
		Bool("test_mode", cfg.TestMode).
		Msg("starting autoria scraper")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewPipelineMetrics()
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, m, log)
	}

	db, err := database.Initialize(cfg.DatabasePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	runs, closeRuns, err := buildRunStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize run store")
	}
	defer closeRuns()

	coord := coordinator.New(
		coordinator.Config{
			StartURL:         cfg.StartURL,
			MaxPages:         cfg.MaxPages,
			MaxTicketsPerRun: cfg.MaxTicketsPerRun,
			Workers:          cfg.MaxConcurrentRequests,
		},
		buildFetcher(cfg, m, log),
		extractor.New(cfg.BaseURL, log),
		db, runs, m, log,
	)

	if *once {
		runScrape(ctx, coord, log)
		return
	}

	sched := scheduler.New([]scheduler.Job{
		{
			Name: "scrape",
			At:   mustClock(cfg.ScrapeTime),
			Run:  func(ctx context.Context) { runScrape(ctx, coord, log) },
		},
		{
			Name: "dump",
			At:   mustClock(cfg.DumpTime),
			Run: func(ctx context.Context) {
				if path, err := db.Dump(cfg.DumpDir); err != nil {
					log.Error().Err(err).Msg("database dump failed")
				} else {
					log.Info().Str("path", path).Msg("database dump written")
				}
			},
		},
	}, log)
	sched.Start(ctx)
	defer sched.Stop()

	log.Info().
		Str("scrape_time", cfg.ScrapeTime).
		Str("dump_time", cfg.DumpTime).
		Msg("scheduler running")

	<-ctx.Done()
	log.Info().Msg("shutting down")
}

func runScrape(ctx context.Context, coord *coordinator.Coordinator, log *logger.Logger) {
	summary, err := coord.RunOnce(ctx)
	if err != nil {
		if scrapeerrors.IsType(err, scrapeerrors.ErrorTypeBusy) {
			log.Warn().Msg("scrape trigger skipped, a run is already in progress")
			return
		}
		log.Error().Err(err).Msg("scrape run failed to start")
		return
	}
	log.Info().
		Str("run_id", summary.RunID).
		Str("reason", string(summary.TerminationReason)).
		Int("inserted", summary.RecordsInserted).
		Int("updated", summary.RecordsUpdated).
		Int("unchanged", summary.RecordsUnchanged).
		Msg("scrape run complete")
}

// buildFetcher assembles the fetch stack: headless Chrome (or mock files in
// test mode) behind the throttling/retry policy.
func buildFetcher(cfg *config.Config, m *metrics.PipelineMetrics, log *logger.Logger) fetcher.Fetcher {
	var sink fetcher.DebugSink
	if cfg.SaveDebugHTML {
		fileSink, err := fetcher.NewFileSink(cfg.DebugDir, log)
		if err != nil {
			log.Warn().Err(err).Msg("debug sink unavailable, dumps disabled")
		} else {
			sink = fileSink
		}
	}

	var inner fetcher.Fetcher
	if cfg.TestMode {
		log.Info().
			Str("listing", cfg.MockListingFile).
			Str("detail", cfg.MockDetailFile).
			Msg("test mode: fetching from local files")
		inner = fetcher.NewFile(cfg.MockListingFile, cfg.MockDetailFile)
	} else {
		var proxies *fetcher.ProxyPool
		if cfg.UseProxies {
			proxies = fetcher.NewProxyPool(cfg.ProxyList, cfg.ProxyUsername, cfg.ProxyPassword, cfg.ProxyCooldown)
			log.Info().
				Int("proxies", proxies.Size()).
				Bool("authenticated", cfg.ProxyUsername != "").
				Msg("proxy rotation enabled")
		}
		inner = fetcher.NewHeadless(fetcher.HeadlessOptions{
			PageLoadTimeout: cfg.PageLoadTimeout,
			NoSandbox:       os.Getenv("HEADLESS_NO_SANDBOX") == "true",
		}, proxies, log)
	}

	return fetcher.NewThrottled(inner, fetcher.Options{
		MaxConcurrent: cfg.MaxConcurrentRequests,
		RequestDelay:  cfg.RequestDelay,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}, sink, m, log)
}

func buildRunStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.RunStore, func(), error) {
	if cfg.RedisAddr == "" {
		return storage.NewMemoryRunStore(100), func() {}, nil
	}
	redisStore, err := storage.NewRedisRunStore(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisKeyPrefix)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("run summaries persisted to redis")
	return redisStore, func() { _ = redisStore.Close() }, nil
}

func serveMetrics(addr string, m *metrics.PipelineMetrics, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.GetRegistry(), promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

func mustClock(s string) config.Clock {
	c, err := config.ParseClock(s)
	if err != nil {
		// Validate() already rejected bad values; this cannot happen.
		panic(err)
	}
	return c
}
