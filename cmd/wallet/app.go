package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lalita/wallet/internal/db"
	"github.com/lalita/wallet/internal/handlers"
	"github.com/lalita/wallet/internal/logger"
	"github.com/lalita/wallet/internal/metrics"
	"github.com/lalita/wallet/internal/repository/postgres"
	"github.com/lalita/wallet/internal/service/auth"
	"github.com/lalita/wallet/internal/service/deposit"
	"github.com/lalita/wallet/internal/service/fee"
	"github.com/lalita/wallet/internal/service/monnify"
	"github.com/lalita/wallet/internal/service/outbox"
	"github.com/lalita/wallet/internal/service/ratelimit"
	"github.com/lalita/wallet/internal/service/sweeper"
	"github.com/lalita/wallet/internal/service/wallet"
	"github.com/lalita/wallet/internal/service/webhook"
)

const shutdownTimeout = 5 * time.Second

// Background job; the returned channel is closed when the job stopped
type worker func(ctx context.Context) <-chan struct{}

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	workers []worker
	closers []func() error
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.close()
		}
	}()

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, func() error { pool.Close(); return nil })

	storage := postgres.NewStorage(pool)
	m := metrics.New()

	fees := fee.DefaultSchedule()
	if c.FeeScheduleFile != "" {
		fees, err = fee.LoadSchedule(c.FeeScheduleFile)
		if err != nil {
			return nil, err
		}
	}

	counter, err := app.rateLimitCounter(ctx, c)
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.NewLimiter(counter, "deposit", ratelimit.DefaultLimit, ratelimit.DefaultWindow, logger)
	if err != nil {
		return nil, err
	}

	gateway, err := monnify.NewClient(monnify.Config{
		BaseURL:      c.MonnifyBaseURL,
		APIKey:       c.MonnifyAPIKey,
		SecretKey:    c.MonnifySecretKey,
		ContractCode: c.MonnifyContractCode,
		RedirectURL:  strings.TrimRight(c.AppURL, "/") + "/payment/callback",
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("error while creating gateway client. Err: %w", err)
	}

	minAmount, maxAmount, err := c.DepositLimits()
	if err != nil {
		return nil, err
	}
	depositService, err := deposit.NewService(
		deposit.Config{MinAmount: minAmount, MaxAmount: maxAmount},
		storage, gateway, fees, limiter, logger, m,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating deposit service. Err: %w", err)
	}

	verifier, err := auth.New(auth.Config{SecretKey: c.JWTSecret})
	if err != nil {
		return nil, fmt.Errorf("error while creating token verifier. Err: %w", err)
	}

	app.Handler = handlers.NewRouter(
		handlers.Config{WebhookSecret: c.MonnifySecretKey},
		handlers.Services{
			Auth:       verifier,
			Deposit:    depositService,
			Wallet:     wallet.NewService(storage, logger),
			Reconciler: webhook.NewReconciler(storage, logger, m),
			DB:         pool,
		},
		m,
		logger,
	)

	app.workers = append(app.workers, sweeper.New(sweeper.Config{}, storage, logger, m).Run)

	if brokers := c.Brokers(); len(brokers) > 0 {
		writer := outbox.NewKafkaWriter(brokers, c.KafkaTopic)
		app.closers = append(app.closers, writer.Close)
		app.workers = append(app.workers, outbox.NewRelay(outbox.RelayConfig{}, storage, writer, logger, m).Run)
	} else {
		logger.Warn("Kafka brokers are not set, outbox events stay unpublished")
	}

	ok = true
	return app, nil
}

func (s *ServerApp) rateLimitCounter(ctx context.Context, c *Config) (ratelimit.Counter, error) {
	if c.RedisURL == "" {
		s.logger.Warn("Redis url is not set, deposit rate limit is per instance")
		return ratelimit.NewMemoryCounter(), nil
	}

	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	s.closers = append(s.closers, rdb.Close)

	if err := rdb.Ping(ctx).Err(); err != nil {
		// Limiter fails open, the service is usable without redis
		s.logger.Warn("Redis is not reachable", "error", err)
	}

	return ratelimit.NewRedisCounter(rdb), nil
}

// Close resources in reverse order of creation
func (s *ServerApp) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("Failed to close resource", "error", err)
		}
	}
	s.closers = nil
}

// Run starts http server with background workers and stops gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	var workersStopped sync.WaitGroup
	for _, w := range s.workers {
		stopped := w(srvCtx)
		workersStopped.Add(1)
		go func() {
			defer workersStopped.Done()
			<-stopped
		}()
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	workersStopped.Wait()

	return err
}
