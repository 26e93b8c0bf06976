package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inkwell-labs/tourbook/internal/config"
	"github.com/inkwell-labs/tourbook/internal/dispatch"
	"github.com/inkwell-labs/tourbook/internal/domain"
	"github.com/inkwell-labs/tourbook/internal/postgres"
	"github.com/inkwell-labs/tourbook/internal/redis"
	postgresrepo "github.com/inkwell-labs/tourbook/internal/repository/postgres"
	redisrepo "github.com/inkwell-labs/tourbook/internal/repository/redis"
	"github.com/inkwell-labs/tourbook/internal/schedule"
	"github.com/inkwell-labs/tourbook/internal/service"
	"github.com/inkwell-labs/tourbook/internal/service/availability"
	"github.com/inkwell-labs/tourbook/internal/service/booking"
	httpgin "github.com/inkwell-labs/tourbook/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	services   *service.Services
	producer   *dispatch.Producer
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	dsn := cfg.Postgres.DSN()

	if err := postgres.Migrate(dsn); err != nil {
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redis.New(context.Background(), redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Static schedule configuration
	cal, err := schedule.LoadCalendar(cfg.Schedule.CalendarPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tour calendar: %w", err)
	}

	prices, err := schedule.LoadPriceBook(cfg.Schedule.PricingPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load price book: %w", err)
	}

	openMin, err := domain.ParseMinute(cfg.Schedule.OpenTime)
	if err != nil {
		return nil, fmt.Errorf("invalid DAY_OPEN: %w", err)
	}
	closeMin, err := domain.ParseMinute(cfg.Schedule.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("invalid DAY_CLOSE: %w", err)
	}

	// Repositories and outbound side effects
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewAvailabilityPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "tourbook:v1:rl:bookings", 10, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)
	producer := dispatch.NewProducer(cfg.Kafka.Brokers, logger)

	services := service.NewServices(store, cache, pubsub, limiter, producer, cal, prices, logger, service.Config{
		Booking: booking.Config{
			PendingTTL:        cfg.Booking.PendingTTL,
			HealingCheckAfter: cfg.Booking.HealingCheckAfter,
		},
		Availability: availability.Config{
			OpenMin:  openMin,
			CloseMin: closeMin,
		},
	})

	webhookHandler := httpgin.NewWebhookHandler(services.Booking, cfg.Stripe.WebhookSecret, logger)

	router := httpgin.NewRouter(services, idempotencyStore, webhookHandler, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		services: services,
		producer: producer,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Periodic maintenance: expire unpaid holds, send aftercare follow-ups.
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Booking.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				a.sweep(gCtx)
			}
		}
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")

		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close failed", "error", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) sweep(ctx context.Context) {
	now := time.Now().UTC()

	if expired, err := a.services.Booking.ExpirePending(ctx, now); err != nil {
		a.logger.Error("pending expiry sweep failed", "error", err)
	} else if expired > 0 {
		a.logger.Info("expired unpaid bookings", "count", expired)
	}

	if sent, err := a.services.Booking.SweepHealingChecks(ctx, now); err != nil {
		a.logger.Error("healing check sweep failed", "error", err)
	} else if sent > 0 {
		a.logger.Info("sent healing checks", "count", sent)
	}
}
