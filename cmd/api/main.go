package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cropadviser/internal/app"
	"cropadviser/internal/config"
	"cropadviser/internal/ratelimit"
	"cropadviser/internal/server"
	"cropadviser/internal/util"
	"cropadviser/pkg/notify"
	"cropadviser/pkg/queue"
	"cropadviser/pkg/session"
	"cropadviser/pkg/storage"
	"cropadviser/pkg/store"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	util.InitLogger(cfg.LogLevel)

	sessionTTL, err := config.ParseTTL(cfg.SessionTTL, "sessionTTL")
	if err != nil {
		return err
	}
	refreshTTL, err := config.ParseTTL(cfg.RefreshTTL, "refreshTTL")
	if err != nil {
		return err
	}

	db, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	revoker := session.NewRedisRevoker(cfg.RedisAddr, cfg.RedisPassword)
	tokens, err := session.NewAccessTokens(cfg.JWTPrivateKeyPath, revoker, session.Options{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      sessionTTL,
	})
	if err != nil {
		return err
	}
	refresh := session.NewRedisRefreshStore(cfg.RedisAddr, cfg.RedisPassword)

	objects, err := storage.NewMinioStore(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.UseSSL)
	if err != nil {
		return err
	}

	var events notify.Publisher = notify.NopPublisher{}
	var amqpPublisher *notify.AMQPPublisher
	if cfg.AMQPURL != "" {
		amqpPublisher, err = notify.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			return err
		}
		events = amqpPublisher
		defer amqpPublisher.Close()
	}

	jobs, err := queue.NewPredictionQueue(queue.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.PredictionStream,
	})
	if err != nil {
		return err
	}

	application, err := app.New(app.Config{
		Store:      db,
		Objects:    objects,
		Tokens:     tokens,
		Refresh:    refresh,
		Events:     events,
		Jobs:       jobs,
		RefreshTTL: refreshTTL,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	jobs.Start(ctx, cfg.PredictionWorkers, application.ProcessPrediction)

	srv, err := server.New(server.Config{
		App:               application,
		CORSAllowOrigin:   cfg.CORSAllowOrigin,
		LoginLimiter:      newLimiter(cfg, "login", cfg.LoginRateLimitPerMinute),
		SignupLimiter:     newLimiter(cfg, "signup", cfg.SignupRateLimitPerMinute),
		PasswordLimiter:   newLimiter(cfg, "password", cfg.PasswordRateLimitPerMinute),
		MaxUploadBytes:    cfg.MaxUploadBytes,
		AllowedExtensions: cfg.AllowedExtensions,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newLimiter builds a per-minute limiter; a zero or negative limit disables
// the gate.
func newLimiter(cfg config.FileConfig, name string, perMinute int) server.Limiter {
	if perMinute <= 0 {
		return nil
	}
	limiter, err := ratelimit.NewFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, name, perMinute, time.Minute)
	if err != nil {
		slog.Warn("rate limiter disabled", "name", name, "err", err)
		return nil
	}
	return limiter
}
