// Command server starts the device comparison HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/ai-device-compare/internal/adapter/ai/remote"
	"github.com/fairyhunter13/ai-device-compare/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-device-compare/internal/adapter/events"
	httpserver "github.com/fairyhunter13/ai-device-compare/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-device-compare/internal/adapter/kv"
	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/app"
	"github.com/fairyhunter13/ai-device-compare/internal/config"
	"github.com/fairyhunter13/ai-device-compare/internal/domain"
	"github.com/fairyhunter13/ai-device-compare/internal/service/cache"
	"github.com/fairyhunter13/ai-device-compare/internal/service/queue"
	"github.com/fairyhunter13/ai-device-compare/internal/service/quota"
	"github.com/fairyhunter13/ai-device-compare/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-device-compare/internal/usecase"
)

// redisPinger adapts *redis.Client to app.RedisClient.
type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) Ping(ctx context.Context) app.RedisPingResult { return p.rdb.Ping(ctx) }

func main() {
	hashPassword := flag.String("hash-password", "", "print an argon2id hash for ADMIN_PASSWORD_HASH and exit")
	flag.Parse()
	if *hashPassword != "" {
		h, err := httpserver.HashPassword(*hashPassword, httpserver.DefaultArgon2Params)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Durable state for quota and cache snapshots
	store, err := kv.Open(ctx, cfg)
	if err != nil {
		slog.Error("kv open failed", slog.String("backend", cfg.KVBackend), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	prompts, err := config.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		slog.Error("prompts load failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Quota alerts go to Kafka only when brokers are configured.
	var trackerOpts []quota.Option
	var publisher *events.AlertPublisher
	if cfg.AlertsEnabled() {
		publisher, err = events.NewAlertPublisher(ctx, cfg.KafkaBrokers, cfg.AlertTopic)
		if err != nil {
			slog.Error("alert publisher init failed; alerts will only be logged", slog.Any("error", err))
		} else {
			trackerOpts = append(trackerOpts, quota.WithAlertSink(publisher))
		}
	}
	tracker := quota.NewTracker(ctx, store, cfg.DailyQuotaLimit, trackerOpts...)

	// Executor and the quota gate the orchestrator consults
	var (
		exec   domain.Executor
		gate   domain.QuotaGate = tracker
		source                  = domain.SourceAPI
	)
	switch strings.ToLower(cfg.Executor) {
	case "gemini":
		exec, err = gemini.New(ctx, cfg)
		if err != nil {
			slog.Error("gemini executor init failed", slog.Any("error", err))
			os.Exit(1)
		}
	case "remote":
		rc := remote.New(cfg.RemoteBaseURL, cfg.UpstreamTimeout)
		exec, gate = rc, rc
		slog.Info("using remote executor", slog.String("base_url", cfg.RemoteBaseURL))
	case "stub":
		exec, source = stub.New(), domain.SourceMock
		slog.Warn("using stub executor; results are simulated")
	}

	// Rate limiter: process-local or shared through Redis
	var (
		limiter ratelimiter.Limiter
		rdbPing app.RedisClient
	)
	if strings.EqualFold(cfg.RateLimitBackend, "redis") {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		limiter = ratelimiter.NewRedisWindow(rdb, "adc:ratelimit", cfg.RateLimitPerWindow, cfg.RateLimitWindow)
		rdbPing = redisPinger{rdb: rdb}
	} else {
		limiter = ratelimiter.NewFixedWindow(cfg.RateLimitPerWindow, cfg.RateLimitWindow)
	}

	respCache, err := cache.New(ctx, store,
		cache.WithTTLs(cfg.CacheTTLs()),
		cache.WithDefaultTTL(cfg.CacheTTLDefault),
		cache.WithMaxEntries(cfg.CacheMaxEntries),
	)
	if err != nil {
		slog.Error("cache init failed", slog.Any("error", err))
		os.Exit(1)
	}
	go app.NewCacheSweeper(respCache, cfg.CacheSweepInterval).Run(ctx)

	// The queue enforces and counts the quota at dispatch time.
	reqQueue := queue.New(exec, limiter,
		queue.WithInterRequestDelay(cfg.QueueInterRequestDelay),
		queue.WithCallTimeout(cfg.UpstreamTimeout),
		queue.WithQuotaGate(gate),
	)

	compareSvc := usecase.NewCompareService(reqQueue, gate, respCache, prompts,
		usecase.WithMinSpecCount(cfg.MinSpecCount),
		usecase.WithSource(source),
	)

	srv := httpserver.NewServer(cfg, compareSvc, reqQueue, tracker, respCache, app.BuildReadinessCheck(store, rdbPing))
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting",
			slog.Int("port", cfg.Port),
			slog.String("executor", cfg.Executor),
			slog.String("kv_backend", cfg.KVBackend),
			slog.String("rate_limit_backend", cfg.RateLimitBackend))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancelShutdown()
	_ = srvHTTP.Shutdown(shutdownCtx)
	if err := reqQueue.Shutdown(shutdownCtx); err != nil {
		slog.Warn("queue shutdown incomplete", slog.Any("error", err))
	}
	cancel()
	if publisher != nil {
		if err := publisher.Close(shutdownCtx); err != nil {
			slog.Warn("alert publisher close failed", slog.Any("error", err))
		}
	}
}
