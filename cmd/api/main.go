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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/carepulse/cmd/mainconfig"
	"github.com/wolfman30/carepulse/internal/api/router"
	"github.com/wolfman30/carepulse/internal/app/bootstrap"
	"github.com/wolfman30/carepulse/internal/appointments"
	appconfig "github.com/wolfman30/carepulse/internal/config"
	"github.com/wolfman30/carepulse/internal/events"
	"github.com/wolfman30/carepulse/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/carepulse/internal/http/middleware"
	"github.com/wolfman30/carepulse/internal/notify"
	"github.com/wolfman30/carepulse/internal/observability/metrics"
	"github.com/wolfman30/carepulse/internal/patients"
	"github.com/wolfman30/carepulse/internal/remote"
	"github.com/wolfman30/carepulse/pkg/logging"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.NewWithOptions(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "carepulse-api",
	})
	logger.Info("starting carepulse API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setupApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// app is the assembled HTTP handler plus everything to release on exit.
type app struct {
	Handler http.Handler
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setupApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{}
	metricsHandler, schedulerMetrics := setupMetrics()

	var awsCfg *aws.Config
	if bootstrap.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &loaded
	}
	email := bootstrap.BuildEmailSender(cfg, awsCfg, logger)

	backend, err := bootstrap.BuildBackend(ctx, cfg, bootstrap.BackendDeps{AWS: awsCfg, Email: email}, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, backend.Close)

	client := remote.Instrument(remote.WithTimeout(backend.Client, cfg.RemoteTimeout), schedulerMetrics)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}
	view := bootstrap.BuildAdminView(redisClient, cfg.AdminCacheTTL, logger)

	checks := map[string]handlers.Check{}
	for name, check := range backend.Checks {
		checks[name] = check
	}
	for name, check := range view.Checks {
		checks[name] = check
	}

	dispatcher := notify.NewDispatcher(client, notify.DispatcherConfig{
		Required: cfg.NotifyRequired,
		Metrics:  schedulerMetrics,
	}, logger)
	appointmentService := appointments.NewService(client, dispatcher, appointments.Config{
		Composer: notify.NewComposer(cfg.ProductName, loc),
		Cache:    view.Cache,
		Events:   view.Broker,
		Metrics:  schedulerMetrics,
	}, logger)
	patientService := patients.NewService(client, patients.Config{Bucket: cfg.BucketID}, logger)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		a.closers = append(a.closers, limiter.Close)
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes disabled")
	}

	a.Handler = router.New(&router.Config{
		Logger:             logger,
		Appointments:       handlers.NewAppointmentsHandler(appointmentService, logger),
		Patients:           handlers.NewPatientsHandler(patientService, logger),
		Health:             handlers.NewHealthHandler(checks),
		AdminStream:        events.NewStreamHandler(view.Broker, cfg.CORSAllowedOrigins, logger),
		MetricsHandler:     metricsHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
	})
	return a, nil
}

func setupMetrics() (http.Handler, *metrics.SchedulerMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewSchedulerMetrics(reg)
}
