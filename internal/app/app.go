// Package app wires configuration, storage, integrations and HTTP routes into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/bissquit/alert-garden/internal/alerting"
	alertingpostgres "github.com/bissquit/alert-garden/internal/alerting/postgres"
	"github.com/bissquit/alert-garden/internal/config"
	"github.com/bissquit/alert-garden/internal/cronrun"
	cronrunpostgres "github.com/bissquit/alert-garden/internal/cronrun/postgres"
	"github.com/bissquit/alert-garden/internal/incidents"
	"github.com/bissquit/alert-garden/internal/incidents/kafka"
	incidentspostgres "github.com/bissquit/alert-garden/internal/incidents/postgres"
	"github.com/bissquit/alert-garden/internal/notifications"
	"github.com/bissquit/alert-garden/internal/notifications/discord"
	notificationspostgres "github.com/bissquit/alert-garden/internal/notifications/postgres"
	"github.com/bissquit/alert-garden/internal/notifications/slack"
	"github.com/bissquit/alert-garden/internal/notifications/webhook"
	"github.com/bissquit/alert-garden/internal/pkg/auth"
	"github.com/bissquit/alert-garden/internal/pkg/ctxlog"
	"github.com/bissquit/alert-garden/internal/pkg/httputil"
	"github.com/bissquit/alert-garden/internal/pkg/lock"
	"github.com/bissquit/alert-garden/internal/pkg/metrics"
	"github.com/bissquit/alert-garden/internal/pkg/postgres"
	"github.com/bissquit/alert-garden/internal/scheduler"
	"github.com/bissquit/alert-garden/internal/version"
	"github.com/bissquit/alert-garden/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// App owns the pool, the optional Redis and Kafka clients, the HTTP servers and the scheduler.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	publisher     *kafka.Publisher
	server        *http.Server
	metricsServer *http.Server
	background    context.CancelFunc
	scheduler     *scheduler.Scheduler

	evaluator          *alerting.Evaluator
	notificationWorker *notifications.Worker
}

// New migrates the database when configured, connects every client and builds the router.
// Nothing listens until Run.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Database.MigrateOnStart {
		if err := migrations.Up(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer cancelConnect()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	a := &App{config: cfg, logger: logger, db: db}

	router, err := a.setupRouter(connectCtx)
	if err != nil {
		_ = a.closeClients()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	a.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	a.metricsServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.startBackground()

	return a, nil
}

// startBackground launches the gauge collectors and, when enabled, the scheduler.
// Everything started here stops when Shutdown cancels a.background.
func (a *App) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	a.background = cancel

	go a.collectGauges(ctx, notificationspostgres.NewRepository(a.db))

	if !a.config.Scheduler.Enabled {
		return
	}
	a.scheduler = scheduler.New(
		scheduler.Job{
			Name:     cronrun.JobEvaluateAlerts,
			Interval: a.config.Scheduler.EvaluateInterval,
			Run: func(ctx context.Context) error {
				_, err := a.evaluator.Run(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:     cronrun.JobProcessNotifications,
			Interval: a.config.Scheduler.NotifyInterval,
			Run: func(ctx context.Context) error {
				_, err := a.notificationWorker.RunOnce(ctx)
				return err
			},
		},
	)
	a.scheduler.Start(ctx)
}

// Run serves the API and the metrics endpoint. It returns when the API server stops.
func (a *App) Run() error {
	go func() {
		if err := a.serve("metrics", a.metricsServer); err != nil {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	return a.serve("api", a.server)
}

func (a *App) serve(name string, srv *http.Server) error {
	a.logger.Info("listening", "server", name, "addr", srv.Addr, "version", version.Version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// Shutdown stops the scheduler first so in-flight runs finish against an open pool,
// then drains both servers and closes the clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.background()
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	servers := map[string]*http.Server{"api": a.server, "metrics": a.metricsServer}
	errCh := make(chan error, len(servers))
	for name, srv := range servers {
		go func() {
			if err := srv.Shutdown(ctx); err != nil {
				errCh <- fmt.Errorf("shutdown %s server: %w", name, err)
				return
			}
			errCh <- nil
		}()
	}

	errs := make([]error, 0, len(servers)+1)
	for range servers {
		errs = append(errs, <-errCh)
	}
	errs = append(errs, a.closeClients())

	return errors.Join(errs...)
}

func (a *App) closeClients() error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka publisher: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	a.db.Close()
	return errors.Join(errs...)
}

const gaugeInterval = 15 * time.Second

// collectGauges refreshes the pool and queue gauges until ctx is done.
func (a *App) collectGauges(ctx context.Context, queue notifications.QueueReader) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()

	for {
		metrics.RecordDBPoolMetrics(a.db)
		if stats, err := queue.GetQueueStats(ctx); err == nil {
			notifications.RecordQueueStats(stats)
		} else if ctx.Err() == nil {
			a.logger.Error("failed to get queue stats", "error", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the API handler; integration tests serve it with httptest.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Evaluator returns the alert rule evaluator.
func (a *App) Evaluator() *alerting.Evaluator {
	return a.evaluator
}

// NotificationWorker returns the delivery worker.
func (a *App) NotificationWorker() *notifications.Worker {
	return a.notificationWorker
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	cfg := a.config

	secretVerifier, err := auth.NewSecretVerifier(cfg.Cron.Secret, cfg.Cron.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("create cron secret verifier: %w", err)
	}

	locker := lock.Locker(lock.Noop{})
	if cfg.Redis.URL != "" {
		client, err := lock.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		locker = lock.NewRedis(client, cfg.Alerting.LockKey, cfg.Alerting.LockTTL)
	}

	var publisher incidents.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		a.publisher, err = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, fmt.Errorf("create kafka publisher: %w", err)
		}
		publisher = a.publisher
	}

	a.logger.Info("integrations configured",
		"redis_lock", a.redis != nil,
		"kafka_publisher", a.publisher != nil,
		"operator_api", cfg.Operator.JWTSecret != "",
		"scheduler", cfg.Scheduler.Enabled,
	)

	runs := cronrunpostgres.NewRepository(a.db)

	notificationsRepo := notificationspostgres.NewRepository(a.db)
	dispatcher := notifications.NewDispatcher(notificationsRepo, cfg.Notifications.BaseURL)

	workerCfg := cfg.Notifications.Worker
	a.notificationWorker = notifications.NewWorker(
		notifications.WorkerConfig{
			BatchSize:           workerCfg.BatchSize,
			MaxAttempts:         workerCfg.MaxAttempts,
			BackoffSchedule:     workerCfg.BackoffSchedule,
			RequestTimeout:      workerCfg.RequestTimeout,
			StuckTimeout:        workerCfg.StuckTimeout,
			FailFastOnMisconfig: workerCfg.FailFastOnMisconfig,
		},
		notificationsRepo,
		runs,
		discord.NewSender(cfg.Notifications.Discord.RateLimit),
		slack.NewSender(cfg.Notifications.Slack.RateLimit),
		webhook.NewSender(cfg.Notifications.Webhook.RateLimit),
	)

	incidentsService := incidents.NewService(incidentspostgres.NewRepository(a.db), publisher, dispatcher)

	a.evaluator = alerting.NewEvaluator(
		alertingpostgres.NewRepository(a.db),
		incidentsService,
		dispatcher,
		runs,
		locker,
	)

	alertingHandler := alerting.NewHandler(a.evaluator)
	incidentsHandler := incidents.NewHandler(incidentsService)
	notificationsHandler := notifications.NewHandler(a.notificationWorker, notificationsRepo)

	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httputil.SharedSecretMiddleware(secretVerifier))
			alertingHandler.RegisterCronRoutes(r)
			notificationsHandler.RegisterCronRoutes(r)
		})

		if cfg.Operator.JWTSecret == "" {
			a.logger.Warn("operator API is disabled: operator.jwt_secret is not set")
			return
		}

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(auth.NewJWTValidator(cfg.Operator.JWTSecret, cfg.Operator.Issuer)))
			incidentsHandler.RegisterOperatorRoutes(r)
			notificationsHandler.RegisterOperatorRoutes(r)
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
