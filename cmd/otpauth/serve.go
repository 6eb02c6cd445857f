package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/directory"
	"github.com/MrEthical07/otpauth/httpapi"
	"github.com/MrEthical07/otpauth/internal/appconfig"
	"github.com/MrEthical07/otpauth/metrics/export/prometheus"
	"github.com/MrEthical07/otpauth/notify"
	"github.com/MrEthical07/otpauth/validation"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	embeddedRedis bool
	migrate       bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.embeddedRedis, "embedded-redis", false, "run an in-process Redis for challenges and rate limits (development only)")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply database migrations before serving")

	return cmd
}

func serve(ctx context.Context, cfg appconfig.Config, opts *serveOptions) error {
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// -------- REDIS --------
	var rdb redis.UniversalClient
	switch {
	case opts.embeddedRedis:
		if cfg.Production() {
			return errors.New("--embedded-redis is not allowed in production")
		}
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start embedded redis: %w", err)
		}
		closers = append(closers, mr.Close)
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		logger.Warn("using embedded redis", "addr", mr.Addr())
	case cfg.RedisURL != "":
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(redisOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	if rdb != nil {
		closers = append(closers, func() { _ = rdb.Close() })
	}

	// -------- ACCOUNTS --------
	var accounts otpauth.AccountDirectory
	if cfg.DatabaseURL != "" {
		pool, err := openPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		closers = append(closers, pool.Close)

		if opts.migrate {
			if err := directory.Migrate(ctx, pool); err != nil {
				return err
			}
		}
		accounts = directory.NewPostgres(pool)
	} else {
		if cfg.Production() {
			return errors.New("DATABASE_URL is required in production")
		}
		logger.Warn("accounts are kept in memory and lost on restart; set DATABASE_URL to persist them")
		accounts = directory.NewMemory(nil)
	}

	// -------- NOTIFIER --------
	var notifier otpauth.Notifier
	if cfg.AMQPURL != "" {
		n, err := notify.DialAMQP(cfg.AMQPURL, cfg.NotifyExchange, logger)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = n.Close() })
		notifier = n
	} else {
		logger.Warn("AMQP_URL not set; codes are written to the log only")
		notifier = notify.NewLogNotifier(logger, cfg.NotifyLogCodes)
	}

	// -------- ENGINE --------
	builder := otpauth.New().
		WithConfig(cfg.Engine()).
		WithAccountDirectory(accounts).
		WithNotifier(notifier).
		WithLogger(logger)
	if rdb != nil {
		builder = builder.WithRedis(rdb)
	}
	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(otpauth.NewSlogSink(logger))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	closers = append(closers, engine.Close)

	var metrics http.Handler
	if cfg.MetricsEnabled {
		metrics = prometheus.NewExporter(engine).Handler()
	}

	router := httpapi.NewRouter(httpapi.Options{
		Service:           engine,
		Validator:         validation.New(cfg.OTPLength),
		Logger:            logger,
		CORSOrigins:       cfg.CORSOrigins,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RequestTimeout:    cfg.RequestTimeout,
		Metrics:           metrics,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
