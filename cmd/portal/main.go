package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/incidentdesk/internal/analysis"
	"github.com/geocoder89/incidentdesk/internal/backend"
	"github.com/geocoder89/incidentdesk/internal/cache"
	"github.com/geocoder89/incidentdesk/internal/config"
	httpx "github.com/geocoder89/incidentdesk/internal/http"
	"github.com/geocoder89/incidentdesk/internal/http/middlewares"
	"github.com/geocoder89/incidentdesk/internal/observability"
	"github.com/geocoder89/incidentdesk/internal/session"
	"github.com/geocoder89/incidentdesk/internal/storage"
	"github.com/geocoder89/incidentdesk/internal/views"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: cfg.ServiceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(reg)

	kv, err := storage.Open(ctx, storage.Options{
		Driver:        cfg.StorageDriver,
		DefaultTTL:    cfg.TokenTTL,
		DBURL:         cfg.DBURL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,

		ConnectAttempts: 5,
	}, prom)
	if err != nil {
		log.Error("storage open failed", "driver", cfg.StorageDriver, "err", err)
		os.Exit(1)
	}
	defer kv.Close()

	// redis expires keys itself; the others need a sweeper
	if purger, ok := kv.(storage.Purger); ok {
		go storage.NewSweeper(cfg.SweepInterval, purger, log).Run(ctx)
	}

	client := backend.New(backend.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.APITimeout}, prom)

	sessions := session.NewStore(client, kv, session.Options{
		TokenTTL:       cfg.TokenTTL,
		RestoreWait:    cfg.RestoreWait,
		RestoreTimeout: cfg.RestoreTimeout,
		Log:            log,
		Prom:           prom,
	})
	client.OnUnauthorized(sessions.Teardown)

	live := analysis.NewLive(analysis.NewBreaker(client, analysis.BreakerConfig{Timeout: cfg.APITimeout}), analysis.Options{
		Window: cfg.AnalyzeDebounce,
		Prom:   prom,
		Log:    log,
	})
	snapshots := cache.New(cfg.SnapshotTTL)

	sessions.OnTeardown(live.Forget)
	sessions.OnTeardown(func(clientID string) { snapshots.ForgetClient(clientID) })

	renderer, err := views.NewRenderer()
	if err != nil {
		log.Error("templates failed to parse", "err", err)
		os.Exit(1)
	}

	loginLimiter := middlewares.NewRateLimiter(cfg.LoginRatePerMinute, 10*time.Minute)
	apiLimiter := middlewares.NewRateLimiter(cfg.APIRatePerMinute, 10*time.Minute)
	go loginLimiter.Run(ctx)
	go apiLimiter.Run(ctx)

	router := httpx.NewRouter(httpx.Deps{
		Log:          log,
		Config:       cfg,
		Sessions:     sessions,
		API:          client,
		Live:         live,
		Snapshots:    snapshots,
		Views:        renderer,
		Prom:         prom,
		Gatherer:     reg,
		Ping:         kv.Ping,
		LoginLimiter: loginLimiter,
		APILimiter:   apiLimiter,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// live analysis holds requests for the debounce window plus the API call
		WriteTimeout: cfg.AnalyzeDebounce + cfg.APITimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("portal starting", "port", cfg.Port, "env", cfg.Env, "api", cfg.APIBaseURL, "storage", cfg.StorageDriver)

		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("portal shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}

	log.Info("shutdown complete")
}
