// Package sweeper fails deposits abandoned before the provider settled them.
package sweeper

import (
	"context"
	"time"

	"github.com/lalita/wallet/internal/logger"
	"github.com/lalita/wallet/internal/metrics"
	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/repository"
	"github.com/lalita/wallet/internal/service/outbox"
)

const (
	defaultInterval = time.Minute

	// Provider was never reached or never answered
	defaultInitiatedTTL = time.Hour
	// Checkout link was issued but the user never paid
	defaultPendingTTL = 24 * time.Hour
)

type Config struct {
	Interval     time.Duration
	InitiatedTTL time.Duration
	PendingTTL   time.Duration
}

type rule struct {
	status string
	ttl    time.Duration
	reason string
}

type Sweeper struct {
	interval time.Duration
	rules    []rule

	storage repository.Storage
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(cfg Config, storage repository.Storage, l logger.Logger, m *metrics.Metrics) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.InitiatedTTL <= 0 {
		cfg.InitiatedTTL = defaultInitiatedTTL
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaultPendingTTL
	}

	return &Sweeper{
		interval: cfg.Interval,
		rules: []rule{
			{status: models.TransactionStatusInitiated, ttl: cfg.InitiatedTTL, reason: "expired"},
			{status: models.TransactionStatusPending, ttl: cfg.PendingTTL, reason: "checkout expired"},
		},
		storage: storage,
		logger:  l.With("component", "sweeper"),
		metrics: m,
		now:     time.Now,
	}
}

// Run sweeps every interval till ctx is done.
// Returned channel is closed when sweeper stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()

	return idleStopped
}

// Sweep fails stale deposits and returns how many were expired
func (s *Sweeper) Sweep(ctx context.Context) int {
	var total int
	now := s.now()

	for _, r := range s.rules {
		var expired []models.Transaction

		err := s.storage.InTx(ctx, func(storage repository.Storage) error {
			var err error
			expired, err = storage.Transaction().ExpireStale(ctx, r.status, now.Add(-r.ttl), r.reason)
			if err != nil {
				return err
			}

			for _, t := range expired {
				event, err := outbox.NewTransactionEvent(models.EventDepositFailed, t, now)
				if err != nil {
					return err
				}
				if err := storage.Outbox().AddEvent(ctx, event); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.logger.Error("Failed to expire stale deposits", "status", r.status, "error", err)
			continue
		}

		if len(expired) > 0 {
			s.metrics.StaleExpiredTotal.WithLabelValues(r.status).Add(float64(len(expired)))
			s.logger.Info("Stale deposits expired", "status", r.status, "count", len(expired))
		}
		total += len(expired)
	}

	return total
}
