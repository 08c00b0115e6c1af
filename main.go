package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"skill-runner/internal/address"
	"skill-runner/internal/api"
	"skill-runner/internal/auth"
	"skill-runner/internal/catalog"
	"skill-runner/internal/constants"
	"skill-runner/internal/docreader"
	"skill-runner/internal/domain"
	"skill-runner/internal/geocoder"
	"skill-runner/internal/infrastructure/repository"
	"skill-runner/internal/processor"
	"skill-runner/internal/prompts"
	"skill-runner/pkg/config"
	"skill-runner/pkg/container"
	"skill-runner/pkg/database"
	"skill-runner/pkg/events"
	"skill-runner/pkg/geography"
	"skill-runner/pkg/health"
	"skill-runner/pkg/logging"
	metricsPkg "skill-runner/pkg/metrics"
	"skill-runner/pkg/monitoring"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Default().Fatal("invalid configuration", err)
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	})
	if err != nil {
		logging.Default().Fatal("logger init failed", err)
	}
	logging.SetDefault(logger)
	defer logger.Close()
	lg := logger.WithComponent("main")

	c := container.New()
	defer func() {
		if err := c.Close(); err != nil {
			lg.Error("closing resources", err)
		}
	}()
	if err := provide(c, cfg, logger); err != nil {
		logger.Fatal("container setup failed", err)
	}

	var (
		lazy     *catalog.Lazy
		geo      *geocoder.Geocoder
		reader   *docreader.Reader
		cache    *geocoder.RedisCache
		db       *database.DB
		repo     domain.Repository
		es       events.EventStore
		pipeline *processor.Pipeline
		eng      *processor.ProcessingEngine
		rev      *auth.ReviewerResolver
	)
	for _, target := range []any{&lazy, &cache, &geo, &reader, &db, &repo, &es, &pipeline, &eng, &rev} {
		if err := c.Resolve(target); err != nil {
			logger.Fatal("dependency resolution failed", err)
		}
	}

	// Load the postal catalog now so a missing file shows up at startup.
	if err := lazy.Err(); err != nil {
		lg.Warn("starting with an empty postal catalog", logging.String("path", cfg.CatalogPath), logging.Error(err))
	}

	monitoring.EnableProfiling(cfg.ProfilingEnabled)
	lg.Info("starting address verification service",
		logging.Any("config", cfg.Summary()),
		logging.Bool("persistence", db != nil),
		logging.Bool("geocoding", geo.Configured()),
		logging.Bool("document_reader", reader.Configured()),
		logging.Bool("geocode_cache", cache != nil),
		logging.Int("catalog_records", lazy.Len()))

	eng.Start()

	hm := health.NewHealthManager(health.DefaultHealthConfig(), logger)
	hm.RegisterChecker(health.NewCatalogChecker("catalog", lazy))
	if db != nil {
		hm.RegisterChecker(health.NewDatabaseHealthChecker(db.Conn(), "database"))
	}
	if cache != nil {
		hm.RegisterChecker(health.NewCacheChecker("redis", cache))
	}
	hm.RegisterChecker(health.NewProcessorChecker("processor", func() health.QueueStats {
		st := eng.GetStats()
		return health.QueueStats{Queued: st.QueueSize, Capacity: cfg.QueueSize, Workers: st.WorkerCount}
	}))

	// Config hot reload: worker count, rate limits, model and log level.
	cw := config.NewWatcher(time.Duration(cfg.ConfigReloadIntervalSeconds)*time.Second, cfg)
	cw.Start()
	defer cw.Close()
	go func() {
		tun := processor.Tunables{Engine: eng, Geocoder: geo, Reader: reader}
		for chg := range cw.Subscribe() {
			if chg.Err != nil {
				lg.Warn("config reload rejected", logging.Error(chg.Err))
				continue
			}
			processor.ApplyConfig(tun, chg.New, chg.Fields, logger)
			lg.Info("config applied", logging.Strings("fields", chg.Fields))
		}
	}()

	router := api.NewRouter(api.Deps{
		Catalog:   lazy.Get,
		Pipeline:  pipeline,
		Engine:    eng,
		Repo:      repo,
		Events:    es,
		Reviewers: rev,
		Health:    hm,
		Logger:    logger,
		Costs:     reader.Costs,
	})
	reqMetrics := monitoring.NewMetrics(512)
	router.Use(monitoring.Middleware(reqMetrics, logger))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var adminServer *http.Server
	if cfg.ProfilingEnabled || cfg.MetricsEnabled {
		mux := http.NewServeMux()
		if cfg.ProfilingEnabled {
			monitoring.RegisterPprof(mux)
		}
		if cfg.MetricsEnabled {
			mux.Handle(cfg.MetricsPath, metricsPkg.Handler())
			if cfg.MetricsPath != "/metrics.json" {
				mux.Handle("/metrics.json", monitoring.MetricsHandler(reqMetrics))
			}
		}
		adminServer = &http.Server{Addr: ":" + cfg.AdminPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			lg.Info("admin server (pprof/metrics) starting", logging.String("port", cfg.AdminPort))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("admin HTTP server error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		lg.Info("server starting", logging.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// SIGHUP reloads the reviewers file; SIGINT/SIGTERM shut down.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
wait:
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				if err := rev.Reload(); err != nil {
					lg.Error("reviewers reload failed", err, logging.String("path", cfg.ReviewersFile))
				} else {
					lg.Info("reviewers reloaded", logging.Int("entries", rev.Len()))
				}
				continue
			}
			lg.Info("received shutdown signal, initiating graceful shutdown", logging.String("signal", sig.String()))
			break wait
		case err := <-serverErr:
			lg.Error("HTTP server error", err)
			break wait
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeoutDefault)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("HTTP server shutdown error", err)
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			lg.Error("admin HTTP server shutdown error", err)
		}
	}
	if err := eng.Stop(constants.GracefulShutdownTimeoutDefault); err != nil {
		lg.Error("processing engine shutdown error", err)
	}
	lg.Info("application shutdown complete")
}

// provide registers the service graph. Persistence-backed providers yield
// nil when DATABASE_URL is empty; the geocode cache is nil without REDIS_ADDR.
func provide(c *container.Container, cfg *config.Config, logger *logging.Logger) error {
	steps := []error{
		c.ProvideValue(cfg),
		c.ProvideValue(logger),

		c.Provide(func(cfg *config.Config, l *logging.Logger) *catalog.Lazy {
			return catalog.NewLazy(cfg.CatalogPath, l)
		}, true),
		c.Provide(func(cfg *config.Config) (*address.Analyzer, error) {
			dict, err := geography.Load(cfg.DictionaryPath)
			if err != nil {
				return nil, err
			}
			return address.NewAnalyzer(dict), nil
		}, true),
		c.Provide(func(src *catalog.Lazy, a *address.Analyzer) *catalog.Validator {
			return catalog.NewValidator(src, a)
		}, true),

		c.Provide(func(cfg *config.Config, l *logging.Logger) *geocoder.RedisCache {
			if cfg.RedisAddr == "" {
				return nil
			}
			return geocoder.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.GeocodeCacheTTL, l)
		}, true),
		c.Provide(func(cfg *config.Config, rc *geocoder.RedisCache, l *logging.Logger) (*geocoder.Geocoder, error) {
			opts := geocoder.Options{Timeout: cfg.GeocodeTimeout, RPS: cfg.GeocodeRPS, Logger: l}
			if rc != nil {
				opts.Cache = rc
			}
			return geocoder.New(cfg.GoogleMapsAPIKey, opts)
		}, true),

		c.Provide(func(cfg *config.Config) (*prompts.Manager, error) {
			return prompts.NewManager(cfg.PromptDir)
		}, true),
		c.Provide(func(cfg *config.Config, pm *prompts.Manager, l *logging.Logger) *docreader.Reader {
			return docreader.New(cfg.OpenAIAPIKey, pm, docreader.Options{
				Model:       cfg.OpenAIModel,
				Temperature: cfg.OpenAITemperature,
				MaxTokens:   cfg.OpenAIMaxTokens,
				Timeout:     cfg.OpenAITimeout,
				RPS:         cfg.LLMRPS,
				Logger:      l,
			})
		}, true),

		c.Provide(func(cfg *config.Config) (*database.DB, error) {
			if !cfg.PersistenceEnabled() {
				return nil, nil
			}
			return database.NewWithConfig(cfg.DatabaseURL, cfg)
		}, true),
		c.Provide(func(db *database.DB) domain.Repository {
			if db == nil {
				return nil
			}
			return repository.NewSQLRepository(db)
		}, true),
		c.Provide(func(db *database.DB) (events.EventStore, error) {
			if db == nil {
				return events.NewMemoryStore(0), nil
			}
			return events.NewSQLEventStore(context.Background(), db)
		}, true),

		c.Provide(func(r *docreader.Reader, g *geocoder.Geocoder, v *catalog.Validator, a *address.Analyzer,
			repo domain.Repository, es events.EventStore, l *logging.Logger) *processor.Pipeline {
			return processor.NewPipeline(processor.PipelineDeps{
				Reader:    r,
				Geocoder:  g,
				Validator: v,
				Analyzer:  a,
				Repo:      repo,
				Events:    es,
				Logger:    l,
			})
		}, true),
		c.Provide(func(cfg *config.Config, p *processor.Pipeline, l *logging.Logger) *processor.ProcessingEngine {
			pc := processor.DefaultProcessingConfig()
			pc.WorkerCount = cfg.WorkerCount
			pc.QueueSize = cfg.QueueSize
			return processor.NewProcessingEngine(p, pc, l)
		}, true),

		c.Provide(func(cfg *config.Config, l *logging.Logger) *auth.ReviewerResolver {
			return auth.NewReviewerResolver(cfg.ReviewersFile, l)
		}, true),
	}
	return errors.Join(steps...)
}
