package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"memetic/internal/cache"
	"memetic/internal/client/coingecko"
	"memetic/internal/client/dexscreener"
	"memetic/internal/client/neynar"
	"memetic/internal/config"
	"memetic/internal/correction"
	cronrunner "memetic/internal/cron"
	"memetic/internal/db"
	"memetic/internal/engine"
	"memetic/internal/handler"
	"memetic/internal/identity"
	"memetic/internal/ingest"
	"memetic/internal/ledger"
	"memetic/internal/logger"
	"memetic/internal/marketdata"
	"memetic/internal/metrics"
	"memetic/internal/provider"
	"memetic/internal/repository"
	gormrepository "memetic/internal/repository/gorm"
	"memetic/internal/repository/memory"
	"memetic/internal/scheduler"
	"memetic/internal/scoring"
	"memetic/internal/service"

	_ "memetic/docs"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		panic(err)
	}
	cfgPath := os.Getenv("MFS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("MFS_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	checks := map[string]handler.Check{}

	var store repository.Repository
	if strings.TrimSpace(cfg.DB.DSN) == "" {
		log.Warn("db.dsn is empty, using in-process store; state is lost on restart")
		store = memory.New()
	} else {
		dbConn, err := db.Open(cfg.DB, log)
		if err != nil {
			log.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)
		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			log.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			log.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormrepository.New(dbConn.Gorm)
		checks["db"] = func(ctx context.Context) error { return db.Ping(ctx, dbConn) }
	}

	var (
		metaCache cache.Store = cache.NewMemoryStore()
		queue     scheduler.Queue
	)
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		metaCache = cache.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
		queue = scheduler.NewRedisQueue(rdb, cfg.Redis.KeyPrefix, cfg.Scheduler.Lease)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		log.Warn("redis.addr is empty, resolution queue is in-process")
		queue = scheduler.NewMemoryQueue(cfg.Scheduler.Lease)
	}

	m := metrics.New()

	resolver := &marketdata.Resolver{
		Sources:         buildSources(cfg, log, m),
		Cache:           metaCache,
		CacheTTL:        cfg.Resolver.CacheTTL,
		PlaceholderName: cfg.Resolver.PlaceholderName,
		Logger:          log.Named("marketdata"),
		Observer:        m,
	}
	policy, err := scoring.FromConfig(cfg.Scoring)
	if err != nil {
		log.Fatal("scoring policy", zap.Error(err))
	}

	l := ledger.New(store, log.Named("ledger"), cfg.Chain.DeploymentTimestamp)
	if cfg.Ledger.MaxConflictRetries > 0 {
		l.MaxConflictRetries = cfg.Ledger.MaxConflictRetries
	}
	if cfg.Ledger.ConflictBackoff > 0 {
		l.ConflictBackoff = cfg.Ledger.ConflictBackoff
	}

	sched := scheduler.New(cfg.Scheduler, queue, nil, store, log.Named("scheduler"))
	sched.Observer = m

	var profiles *identity.Service
	if cfg.Identity.Enabled && cfg.Providers.Neynar.Enabled {
		gate := provider.NewClient(providerOptions("neynar", cfg.Providers.Neynar, log, m))
		profiles = &identity.Service{
			Lookup:       neynar.NewClient(cfg.Providers.Neynar.BaseURL, cfg.Providers.Neynar.APIKey, gate),
			Store:        store,
			Logger:       log.Named("identity"),
			RefreshBatch: cfg.Identity.RefreshBatch,
			Timeout:      cfg.Providers.Neynar.Timeout,
		}
	}

	eng := &engine.Engine{
		Ledger:   l,
		Market:   resolver,
		Policy:   policy,
		Queue:    sched,
		Records:  store,
		Tokens:   store,
		Logger:   log.Named("engine"),
		Observer: m,
	}
	if profiles != nil {
		eng.Profiles = profiles
	}
	sched.Runner = eng

	dispatcher := &ingest.Dispatcher{
		Engine:      eng,
		Corrections: &correction.Handler{Ledger: l, Logger: log.Named("correction")},
		Sync:        store,
		Rejections:  store,
		Logger:      log.Named("ingest"),
		Observer:    m,
	}

	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		log.Warn("init default system switches failed", zap.Error(err))
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.CORSMiddleware())
	apiKey := cfg.Server.APIKey
	if apiKey == "" {
		apiKey = cfg.Ingest.APIKey
	}
	if apiKey == "" {
		log.Warn("no api key configured, write endpoints are open")
	}
	router.Use(handler.RequireAPIKey(apiKey))
	router.Use(handler.WriteAuditMiddleware(log.Named("http")))

	(&handler.HealthHandler{Checks: checks}).Register(router)
	(&handler.SignalHandler{Repo: store}).Register(router)
	(&handler.AuthorHandler{Repo: store}).Register(router)
	(&handler.JobsHandler{Repo: store, Scheduler: sched}).Register(router)
	(&handler.SystemHandler{Repo: store, Ledger: l, Queue: queue}).Register(router)
	(&handler.EventsHandler{Dispatcher: dispatcher, Settings: settingsSvc, Rejected: store, MaxBatch: cfg.Ingest.MaxBatch}).Register(router)
	(&handler.SystemSettingsHandler{Settings: settingsSvc}).Register(router)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(log, ctx)
	if cfg.Cron.Enabled {
		registerCron(cronRunner, cfg, log, store, sched, queue, profiles, l, m, settingsSvc)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if cfg.Scheduler.Enabled {
		if added, err := sched.Reconcile(ctx); err != nil {
			log.Warn("startup reconcile failed", zap.Error(err))
		} else if added > 0 {
			log.Info("startup reconcile enqueued jobs", zap.Int("jobs", added))
		}
		go func() {
			if !settingsSvc.IsEnabled(ctx, service.FeatureScheduler, true) {
				log.Info("resolution scheduler disabled by switch")
				return
			}
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("resolution scheduler stopped", zap.Error(err))
			}
		}()
	}

	if url := strings.TrimSpace(cfg.Ingest.StreamURL); url != "" && settingsSvc.IsEnabled(ctx, service.FeatureEventStream, true) {
		stream := ingest.NewStream(ingest.StreamOptions{
			URL:        url,
			ChainID:    cfg.Chain.ID,
			BackoffMin: cfg.Ingest.StreamReconnect,
			Logger:     log.Named("stream"),
		}, dispatcher)
		go func() {
			if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("event stream stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func providerOptions(name string, pc config.ProviderConfig, log *zap.Logger, obs provider.Observer) provider.Options {
	return provider.Options{
		Name:        name,
		MinInterval: pc.MinInterval,
		CallTimeout: pc.Timeout,
		Cooldown:    pc.Cooldown,
		Logger:      log.Named("provider." + name),
		Observer:    obs,
	}
}

// buildSources returns the market-data providers in priority order.
func buildSources(cfg config.Config, log *zap.Logger, obs provider.Observer) []marketdata.Source {
	var sources []marketdata.Source
	if pc := cfg.Providers.CoinGecko; pc.Enabled {
		gate := provider.NewClient(providerOptions("coingecko", pc, log, obs))
		sources = append(sources, &marketdata.CoinGeckoSource{
			API:      coingecko.NewClient(pc.BaseURL, pc.APIKey, gate),
			Platform: cfg.Chain.Network,
			Window:   cfg.Resolver.SeriesWindow,
		})
	}
	if pc := cfg.Providers.DexScreener; pc.Enabled {
		gate := provider.NewClient(providerOptions("dexscreener", pc, log, obs))
		sources = append(sources, &marketdata.DexScreenerSource{
			API:   dexscreener.NewClient(pc.BaseURL, gate),
			Chain: cfg.Chain.Network,
			Pricer: marketdata.ChangeWindowPricer{
				FreshWindow: cfg.Resolver.DexFreshWindow,
				MaxLookback: cfg.Resolver.DexMaxLookback,
			},
		})
	}
	if len(sources) == 0 {
		log.Warn("no market-data providers enabled, every signal will resolve indeterminate")
	}
	return sources
}

func registerCron(
	r *cronrunner.Runner,
	cfg config.Config,
	log *zap.Logger,
	store repository.Repository,
	sched *scheduler.Scheduler,
	queue scheduler.Queue,
	profiles *identity.Service,
	l *ledger.Ledger,
	m *metrics.Metrics,
	settings *service.SystemSettingsService,
) {
	if cfg.Scheduler.Enabled {
		_, err := r.Add("reconcile", cfg.Cron.Reconcile, settings.Gate(service.FeatureReconcile, true, func(ctx context.Context) {
			added, err := sched.Reconcile(ctx)
			if err != nil {
				log.Warn("cron reconcile failed", zap.Error(err))
				return
			}
			if added > 0 {
				log.Info("cron reconcile enqueued jobs", zap.Int("jobs", added))
			}
		}))
		if err != nil {
			log.Warn("cron register reconcile failed", zap.Error(err))
		}
	}

	if profiles != nil {
		_, err := r.Add("profile_refresh", cfg.Cron.ProfileRefresh, settings.Gate(service.FeatureIdentityRefresh, true, func(ctx context.Context) {
			n, err := profiles.RefreshStale(ctx)
			if err != nil {
				log.Warn("cron profile refresh failed", zap.Int("refreshed", n), zap.Error(err))
				return
			}
			log.Info("cron profile refresh ok", zap.Int("refreshed", n))
		}))
		if err != nil {
			log.Warn("cron register profile refresh failed", zap.Error(err))
		}
	}

	_, err := r.Add("stats_log", cfg.Cron.StatsLog, settings.Gate(service.FeatureStatsLog, true, func(ctx context.Context) {
		now := time.Now().UTC()
		state, err := store.GetSystemState(ctx, now, l.Day(now.Unix()))
		if err != nil {
			log.Warn("cron stats failed", zap.Error(err))
			return
		}
		depth, err := queue.Len(ctx)
		if err != nil {
			log.Warn("queue depth failed", zap.Error(err))
		}
		m.SetQueueDepth(depth)
		m.SetParkedJobs(state.ParkedJobs)
		m.SetActiveSignals(state.ActiveSignals)
		log.Info("system state",
			zap.Int64("signals", state.TotalSignals),
			zap.Int64("active", state.ActiveSignals),
			zap.Int64("resolved", state.ResolvedSignals),
			zap.Int64("corrected", state.CorrectedSignals),
			zap.Int64("today", state.SignalsToday),
			zap.Int64("parked_jobs", state.ParkedJobs),
			zap.Int64("queue_depth", depth),
		)
	}))
	if err != nil {
		log.Warn("cron register stats log failed", zap.Error(err))
	}
}
