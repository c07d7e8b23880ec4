package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/hanguk-bookings/internal/audit"
	"github.com/diagnosis/hanguk-bookings/internal/http/handlers"
	"github.com/diagnosis/hanguk-bookings/internal/http/middleware"
	"github.com/diagnosis/hanguk-bookings/internal/janitor"
	"github.com/diagnosis/hanguk-bookings/internal/notify"
	"github.com/diagnosis/hanguk-bookings/internal/ratelimit"
	"github.com/diagnosis/hanguk-bookings/internal/repo"
	"github.com/diagnosis/hanguk-bookings/internal/repo/backend"
	"github.com/diagnosis/hanguk-bookings/internal/service"
	"github.com/diagnosis/hanguk-bookings/internal/validation"
	"github.com/diagnosis/hanguk-bookings/pkg/config"
	"github.com/diagnosis/hanguk-bookings/pkg/database"
	"github.com/diagnosis/hanguk-bookings/pkg/events"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
	"github.com/diagnosis/hanguk-bookings/pkg/metrics"
)

const devSecret = "dev-only-secret-change-in-prod"

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Env)

	if err := run(cfg); err != nil {
		logger.Error("HanGuk Bites API failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if cfg.IsProduction() && (cfg.Auth.JWTSecret == "" || cfg.Auth.JWTSecret == devSecret) {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}

	ctx := context.Background()

	store, pool, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	counter, redisClient, err := openCounter(ctx, cfg, pool)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var eventBus events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		eventBus = bus
	}
	defer eventBus.Close()

	recorder := audit.NewRecorder(store.Audit(), audit.Options{
		QueueSize: cfg.Audit.QueueSize,
		Publisher: eventBus,
	})

	validator, err := validation.New(validation.Rules{
		OpeningTime:    cfg.Restaurant.OpeningTime,
		ClosingTime:    cfg.Restaurant.ClosingTime,
		MaxGuests:      cfg.Restaurant.MaxGuests,
		MaxMonthsAhead: cfg.Restaurant.MaxMonthsAhead,
	}, cfg.Location(), nil)
	if err != nil {
		return fmt.Errorf("restaurant rules: %w", err)
	}

	mailer, err := notify.NewMailer(cfg.Mail)
	if err != nil {
		return err
	}
	var notifier *notify.Notifier
	var guestNotifier service.Notifier
	if mailer != nil {
		notifier = notify.New(mailer, cfg.Restaurant.Name)
		guestNotifier = notifier
	}

	bookingService := service.NewBookingService(store.Bookings(), store.Admins(), store.Audit(), validator, recorder, eventBus, guestNotifier, cfg.Restaurant.SlotCapacity)
	sessionService, err := service.NewSessionService(store.Admins(), store.Tokens(), validator, recorder, service.SessionConfig{
		Secret:   cfg.Auth.JWTSecret,
		TokenTTL: cfg.Auth.TokenTTL,
	})
	if err != nil {
		return err
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	warnIfNoAdmins(ctx, store)

	h := handlers.New(bookingService, sessionService, store, cfg.Server.Env)
	router := h.Router(handlers.RouterConfig{
		Auth: sessionService,
		GeneralLimiter: ratelimit.New(ratelimit.Policy{
			Name:    "general",
			Limit:   cfg.RateLimit.MaxRequests,
			Window:  cfg.RateLimit.Window,
			Message: "Too many requests, please try again later.",
		}, counter, nil),
		LoginLimiter: ratelimit.New(ratelimit.Policy{
			Name:           "auth",
			Limit:          cfg.RateLimit.AuthMaxRequests,
			Window:         cfg.RateLimit.AuthWindow,
			SkipSuccessful: true,
			Message:        "Too many login attempts, please try again later.",
		}, counter, nil),
		CORSOrigins:    cfg.CORS.AllowedOrigins,
		Production:     cfg.IsProduction(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		TrustedProxies: trusted,
	})

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	if tasks := janitorTasks(cfg, store, counter); len(tasks) > 0 {
		go janitor.New(cfg.Audit.ReaperInterval, nil, tasks...).Start(janitorCtx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", metrics.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		}
		go func() {
			logger.Info("Serving metrics", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down HanGuk Bites API...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(ctx); err != nil {
				logger.Error("Metrics server shutdown error", "error", err)
			}
		}
		stopJanitor()
		if err := recorder.Close(ctx); err != nil {
			logger.Error("Audit queue not fully drained", "error", err)
		}
		if notifier != nil {
			if err := notifier.Close(ctx); err != nil {
				logger.Error("Guest emails still in flight", "error", err)
			}
		}
	}()

	logger.Info("Starting HanGuk Bites API",
		"port", cfg.Server.Port,
		"env", cfg.Server.Env,
		"store", store.Backend(),
		"rate_limit_backend", cfg.RateLimit.Backend,
		"mail_provider", cfg.Mail.Provider,
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	<-shutdownDone
	return nil
}

func openCounter(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (ratelimit.Counter, *redis.Client, error) {
	switch cfg.RateLimit.Backend {
	case "redis":
		if cfg.Redis.URL == "" {
			return nil, nil, fmt.Errorf("RATE_LIMIT_BACKEND=redis requires REDIS_URL")
		}
		client, err := database.ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		return ratelimit.NewRedisCounter(client), client, nil
	case "postgres":
		if pool == nil {
			return nil, nil, fmt.Errorf("RATE_LIMIT_BACKEND=postgres requires a postgres DATABASE_URL")
		}
		return ratelimit.NewPostgresCounter(pool), nil, nil
	case "", "memory":
		return ratelimit.NewMemoryCounter(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", cfg.RateLimit.Backend)
	}
}

// janitorTasks lists the purges the chosen backends cannot do on their own.
// MongoDB expires sessions and audit entries through TTL indexes and Redis
// expires its counters.
func janitorTasks(cfg *config.Config, store repo.Store, counter ratelimit.Counter) []janitor.Task {
	var tasks []janitor.Task
	if store.Backend() != "mongodb" {
		tasks = append(tasks,
			janitor.ExpiredSessions(store.Tokens()),
			janitor.StaleAudit(store.Audit(), cfg.Audit.Retention),
		)
	}
	if p, ok := counter.(janitor.Purger); ok {
		tasks = append(tasks, janitor.RateLimitCounters(p))
	}
	return tasks
}

func warnIfNoAdmins(ctx context.Context, store repo.Store) {
	n, err := store.Admins().Count(ctx)
	if err != nil {
		logger.Warn("Could not count admin accounts", "error", err)
		return
	}
	if n == 0 {
		logger.Warn("No admin accounts exist; create one with: go run ./cmd/createadmin")
	}
}
