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

	"canteen-runner-api/config"
	"canteen-runner-api/events"
	"canteen-runner-api/handlers"
	"canteen-runner-api/jobs"
	"canteen-runner-api/logger"
	"canteen-runner-api/mailer"
	"canteen-runner-api/middleware"
	"canteen-runner-api/realtime"
	"canteen-runner-api/routes"
	"canteen-runner-api/service"

	"github.com/gin-gonic/gin"
	healthgo "github.com/hellofresh/health-go/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "canteen-runner-api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	gin.SetMode(cfg.HTTP.GinMode)

	// Initialize database
	db, err := config.InitDB(cfg.Database)
	if err != nil {
		return err
	}
	log.Info("database connected and migrated", zap.String("path", cfg.Database.Path))

	hub := realtime.NewHub(cfg.Events.SubscriberBuffer, log)
	defer hub.Close()

	var (
		publisher events.Publisher = events.NewLocalPublisher(hub)
		nc        *nats.Conn
	)
	if cfg.Events.NATSURL != "" {
		nc, err = events.Connect(cfg.Events.NATSURL, log)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		bridge := events.NewNATSBridge(nc, cfg.Events.Subject, hub, log)
		if err := bridge.Start(); err != nil {
			return err
		}
		defer func() { _ = bridge.Stop() }()
		publisher = events.NewNATSPublisher(nc, cfg.Events.Subject)
	}

	// Services
	authSvc := service.NewAuthService(db, mailer.NewLogMailer(log), cfg.Auth, log)
	profileSvc := service.NewProfileService(db)
	orderSvc := service.NewOrderService(db, publisher, log)
	feedSvc := service.NewFeedService(db, hub)

	health, err := newHealth(cfg, db, nc)
	if err != nil {
		return err
	}

	tokens := middleware.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	h := handlers.New(handlers.Deps{
		Auth:     authSvc,
		Profiles: profileSvc,
		Orders:   orderSvc,
		Feed:     feedSvc,
		Tokens:   tokens,
		Health:   health,
		Log:      log,
	})

	var (
		rateLimit gin.HandlerFunc
		pruner    jobs.LimiterPruner
	)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, log)
		rateLimit = limiter.Handler()
		pruner = limiter
	}

	r, err := routes.NewRouter(routes.Options{
		Handler:     h,
		Auth:        middleware.AuthRequired(tokens, authSvc, log),
		RateLimit:   rateLimit,
		Logger:      log,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	})
	if err != nil {
		return err
	}

	scheduler, err := jobs.NewScheduler(cfg.Jobs.CleanupSchedule, authSvc, pruner, cfg.RateLimit.IdleTTL, log)
	if err != nil {
		return err
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", zap.String("addr", "http://localhost:"+cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// live feeds end first so Shutdown does not wait on them
	hub.Close()
	scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newHealth(cfg *config.Config, db *gorm.DB, nc *nats.Conn) (*healthgo.Health, error) {
	opts := []healthgo.Option{
		healthgo.WithComponent(healthgo.Component{
			Name:    cfg.App.Name,
			Version: cfg.App.Version,
		}),
		healthgo.WithChecks(healthgo.Config{
			Name:    "database",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		}),
	}
	if nc != nil {
		opts = append(opts, healthgo.WithChecks(healthgo.Config{
			Name: "nats",
			Check: func(ctx context.Context) error {
				if !nc.IsConnected() {
					return errors.New("NATS connection is not active")
				}
				return nil
			},
		}))
	}
	return healthgo.New(opts...)
}
