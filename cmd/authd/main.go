// Command authd serves the user-service authentication API over HTTP.
//
// Engine settings come from AUTH_* variables (see userauth.LoadConfigFromEnv);
// process settings come from AUTHD_* variables:
//
//	AUTHD_ADDR           listen address (default :8080)
//	AUTHD_REDIS_ADDR     Redis address (default localhost:6379)
//	AUTHD_DATABASE_URL   PostgreSQL DSN for the users table
//	AUTHD_MIGRATE        apply schema migrations on start (default true)
//	AUTHD_MAIL_FROM      sender address; when empty mail is logged instead of sent
//	AUTHD_AWS_REGION     SES region
//	AUTHD_LOG_LEVEL      debug, info, warn or error
//	AUTHD_OTLP_ENDPOINT  OTLP/gRPC collector for metrics; empty disables push
//	AUTHD_OTLP_INSECURE  disable TLS to the collector
//	AUTHD_METRIC_INTERVAL push interval (default 15s)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	userauth "github.com/VilnaCRM-Org/user-service-sub004"
	"github.com/VilnaCRM-Org/user-service-sub004/mail"
	"github.com/VilnaCRM-Org/user-service-sub004/mail/ses"
	"github.com/VilnaCRM-Org/user-service-sub004/userstore"
	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

type serverConfig struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	Migrate     bool   `env:"MIGRATE" envDefault:"true"`
	MailFrom    string `env:"MAIL_FROM"`
	AWSRegion   string `env:"AWS_REGION" envDefault:"eu-central-1"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	OTLPEndpoint   string        `env:"OTLP_ENDPOINT"`
	OTLPInsecure   bool          `env:"OTLP_INSECURE"`
	MetricInterval time.Duration `env:"METRIC_INTERVAL" envDefault:"15s"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		os.Exit(1)
	}
}

func run() error {
	var srv serverConfig
	if err := env.ParseWithOptions(&srv, env.Options{Prefix: "AUTHD_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(srv.LogLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := userauth.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	if srv.Migrate {
		if err := userstore.Migrate(srv.DatabaseURL); err != nil {
			return err
		}
	}
	pool, err := userstore.Open(ctx, srv.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: srv.RedisAddr})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	var mailer mail.Sender = mail.NewLogSender(logger)
	if srv.MailFrom != "" {
		sender, err := ses.NewSenderFromEnv(ctx, srv.AWSRegion, srv.MailFrom)
		if err != nil {
			return err
		}
		mailer = sender
	}

	engine, err := userauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(userstore.New(pool)).
		WithLogger(logger).
		WithMailer(mailer).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	stopMetrics, err := startMetricsExport(ctx, srv.OTLPEndpoint, srv.OTLPInsecure, srv.MetricInterval, engine)
	if err != nil {
		return err
	}
	defer func() { _ = stopMetrics(context.Background()) }()

	httpServer := &http.Server{
		Addr:              srv.Addr,
		Handler:           newServer(engine, logger).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authd listening", "addr", srv.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("authd shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
