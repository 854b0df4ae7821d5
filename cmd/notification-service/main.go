// cmd/notification-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notification-service/internal/common/config"
	"notification-service/internal/common/database"
	"notification-service/internal/common/logger"
	"notification-service/internal/notify/channel"
	"notification-service/internal/notify/deliverylog"
	"notification-service/internal/notify/dispatch"
	"notification-service/internal/notify/reminder"
	"notification-service/internal/notify/template"
	"notification-service/internal/notify/webhook"
	"notification-service/internal/ratelimit"
	"notification-service/internal/server"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)

	log.Info("starting notification service", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres is required; retry so a restarting database does not kill
	// the service during rolling deploys.
	var pg *database.PostgresClient
	err = retryWithBackoff(ctx, 5, 2*time.Second, func() error {
		var connErr error
		pg, connErr = database.NewPostgres(cfg.Database.Postgres)
		if connErr != nil {
			return connErr
		}
		return pg.Ping(ctx)
	})
	if err != nil {
		log.Error("failed to connect to postgres", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer pg.Close()

	// Redis is optional: without it the template cache is skipped and rate
	// limiting falls back to the in-memory counter.
	var rdb *database.RedisClient
	if cfg.Database.Redis.Address != "" {
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			log.Warn("redis unavailable, continuing without cache", map[string]interface{}{
				"error": err.Error(),
			})
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	senders, err := buildSenders(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize channel senders", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	templates := template.NewStore(pg.DB, redisClient(rdb),
		time.Duration(cfg.Notifications.TemplateCacheTTL)*time.Second, log)
	logs := deliverylog.NewStore(pg.DB, log)
	dispatcher := dispatch.New(templates, logs, senders, log)
	reconciler := webhook.NewReconciler(logs, cfg.Webhook.SharedSecret, cfg.Webhook.SignatureHeader, log)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		window := time.Duration(cfg.RateLimit.Window) * time.Second
		if rdb != nil {
			limiter = ratelimit.NewRedisLimiter(rdb.Client, cfg.RateLimit.Limit, window, log)
		} else {
			limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Limit, window)
		}
	}

	readyCheck := func(ctx context.Context) error {
		return pg.Ping(ctx)
	}
	handlers := server.NewHandlers(dispatcher, logs, reconciler, readyCheck, log)
	router := server.NewRouter(handlers, limiter, log)

	if cfg.Reminders.Enabled {
		checker := reminder.NewChecker(
			reminder.NewPostgresSource(pg.DB),
			logs,
			dispatcher,
			time.Duration(cfg.Reminders.Interval)*time.Minute,
			time.Duration(cfg.Reminders.DedupWindow)*time.Hour,
			log,
		)
		go checker.Run(ctx)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Millisecond,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received", nil)
	case err := <-errCh:
		log.Error("http server failed", map[string]interface{}{"error": err.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	log.Info("notification service stopped", nil)
}

// buildSenders initializes one sender per enabled channel.
func buildSenders(ctx context.Context, cfg *config.Config, log logger.Logger) ([]channel.Sender, error) {
	timeout := time.Duration(cfg.Notifications.SendTimeout) * time.Millisecond
	senders := []channel.Sender{}

	if cfg.Notifications.Email.Enabled {
		email, err := channel.NewEmailSender(ctx, cfg.Notifications.AWS.Region,
			cfg.Notifications.Email.FromEmail, timeout, log)
		if err != nil {
			return nil, fmt.Errorf("email sender: %w", err)
		}
		senders = append(senders, email)
	}

	if cfg.Notifications.SMS.Enabled {
		sms, err := channel.NewSMSSender(ctx, cfg.Notifications.AWS.Region,
			cfg.Notifications.SMS.SenderID, timeout, log)
		if err != nil {
			return nil, fmt.Errorf("sms sender: %w", err)
		}
		senders = append(senders, sms)
	}

	return senders, nil
}

func redisClient(rdb *database.RedisClient) *redis.Client {
	if rdb == nil {
		return nil
	}
	return rdb.Client
}

// retryWithBackoff runs fn up to attempts times, doubling the delay after
// each failure.
func retryWithBackoff(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
	delay := initial
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
