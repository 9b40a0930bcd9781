// Package deposit drives a user deposit from request to provider checkout url.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/lalita/wallet/internal/apperrors"
	"github.com/lalita/wallet/internal/logger"
	"github.com/lalita/wallet/internal/metrics"
	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/repository"
	"github.com/lalita/wallet/internal/service/fee"
	"github.com/lalita/wallet/internal/service/monnify"
	"github.com/lalita/wallet/internal/service/ratelimit"
	"github.com/lalita/wallet/internal/service/reference"
)

const (
	defaultCheckoutExpiry = 30 * time.Minute

	// failed_reason column is diagnostic only
	maxFailedReasonLen = 500
)

var (
	defaultMinAmount = decimal.NewFromInt(100)
	defaultMaxAmount = decimal.NewFromInt(5000)
)

type gateway interface {
	InitializeTransaction(ctx context.Context, r monnify.InitRequest) (monnify.InitResult, error)
}

type feePolicy interface {
	Compute(amount decimal.Decimal) (fee.Fees, error)
}

type limiter interface {
	Allow(ctx context.Context, key string) ratelimit.Decision
}

// RateLimitError is returned when user made too many attempts in the window
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", apperrors.ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return apperrors.ErrRateLimited
}

type Config struct {
	// Per deposit limits. Zero means default
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal

	// Expiry hint returned to the user
	CheckoutExpiry time.Duration
}

type Result struct {
	CheckoutURL      string
	PaymentReference string
	ExpiresIn        time.Duration
	Transaction      models.Transaction
}

type Service struct {
	storage repository.Storage
	gateway gateway
	fees    feePolicy
	limiter limiter
	logger  logger.Logger
	metrics *metrics.Metrics

	minAmount decimal.Decimal
	maxAmount decimal.Decimal
	expiry    time.Duration

	now func() time.Time
}

func NewService(
	cfg Config,
	storage repository.Storage,
	gateway gateway,
	fees feePolicy,
	limiter limiter,
	l logger.Logger,
	m *metrics.Metrics,
) (*Service, error) {
	if cfg.MinAmount.IsZero() {
		cfg.MinAmount = defaultMinAmount
	}
	if cfg.MaxAmount.IsZero() {
		cfg.MaxAmount = defaultMaxAmount
	}
	if cfg.CheckoutExpiry == 0 {
		cfg.CheckoutExpiry = defaultCheckoutExpiry
	}
	if cfg.MinAmount.IsNegative() || cfg.MaxAmount.LessThan(cfg.MinAmount) {
		return nil, fmt.Errorf("invalid deposit limits: min %s, max %s", cfg.MinAmount, cfg.MaxAmount)
	}

	return &Service{
		storage:   storage,
		gateway:   gateway,
		fees:      fees,
		limiter:   limiter,
		logger:    l.With("component", "deposit"),
		metrics:   m,
		minAmount: cfg.MinAmount,
		maxAmount: cfg.MaxAmount,
		expiry:    cfg.CheckoutExpiry,
		now:       time.Now,
	}, nil
}

// InitiateDeposit creates deposit transaction and initializes it at the provider.
// Every exit after the record is created leaves it pending or failed (or logs why it could not)
func (s *Service) InitiateDeposit(ctx context.Context, user models.User, amount decimal.Decimal) (Result, error) {
	var result Result

	if err := s.validateAmount(amount); err != nil {
		s.metrics.DepositsTotal.WithLabelValues(metrics.DepositRejected).Inc()
		return result, err
	}

	if d := s.limiter.Allow(ctx, user.ID.String()); !d.Allowed {
		s.metrics.DepositsTotal.WithLabelValues(metrics.DepositRateLimited).Inc()
		s.logger.Info("Deposit rate limited", "user_id", user.ID, "retry_after", d.RetryAfter)
		return result, &RateLimitError{RetryAfter: d.RetryAfter}
	}

	ref, err := reference.New(reference.PrefixDeposit, user.ID, s.now())
	if err != nil {
		return result, err
	}

	fees, err := s.fees.Compute(amount)
	if err != nil {
		s.metrics.DepositsTotal.WithLabelValues(metrics.DepositRejected).Inc()
		return result, err
	}

	tx, err := s.storage.Transaction().CreateTransaction(ctx, models.Transaction{
		UserID:           user.ID,
		Type:             models.TransactionTypeDeposit,
		Amount:           amount,
		PlatformFee:      fees.PlatformFee,
		NetAmount:        fees.NetAmount,
		Status:           models.TransactionStatusInitiated,
		PaymentReference: ref,
		CreatedAt:        s.now(),
	})
	if err != nil {
		s.metrics.DepositsTotal.WithLabelValues(metrics.DepositFailed).Inc()
		return result, fmt.Errorf("error while creating deposit: %w", err)
	}

	l := s.logger.With("reference", ref, "user_id", user.ID)
	l.Info("Deposit initiated", "amount", amount, "platform_fee", fees.PlatformFee, "net_amount", fees.NetAmount)

	// Once issued, the provider call and the bookkeeping after it outlive the client.
	// The gateway client bounds the call with its own timeout
	bgCtx := context.WithoutCancel(ctx)

	start := time.Now()
	checkout, err := s.gateway.InitializeTransaction(bgCtx, monnify.InitRequest{
		Amount:             amount,
		CustomerName:       user.Name,
		CustomerEmail:      user.Email,
		PaymentReference:   ref,
		PaymentDescription: "Deposit - Ref: " + ref,
	})
	s.metrics.GatewayDuration.WithLabelValues(gatewayResult(err)).Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.DepositsTotal.WithLabelValues(metrics.DepositFailed).Inc()
		l.Error("Payment initialization failed", "error", err)

		if _, markErr := s.storage.Transaction().MarkFailed(bgCtx, ref, failedReason(err)); markErr != nil {
			l.Error("Failed to mark deposit failed, sweeper will expire it", "error", markErr)
		}

		return result, fmt.Errorf("%w: %w", apperrors.ErrPaymentInit, err)
	}

	result = Result{
		CheckoutURL:      checkout.CheckoutURL,
		PaymentReference: ref,
		ExpiresIn:        s.expiry,
		Transaction:      tx,
	}

	pending, err := s.storage.Transaction().MarkPending(bgCtx, ref, checkout.CheckoutURL, checkout.TransactionReference)
	switch {
	case err == nil:
		result.Transaction = pending
	case errors.Is(err, apperrors.ErrStatusConflict):
		// Webhook may outrun us and settle the transaction first
		l.Warn("Deposit left initiated state before it was marked pending")
	default:
		l.Warn("Failed to mark deposit pending, provider transaction is live", "error", err)
	}

	s.metrics.DepositsTotal.WithLabelValues(metrics.DepositInitiated).Inc()
	return result, nil
}

func (s *Service) validateAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return apperrors.ErrInvalidAmount
	case amount.LessThan(s.minAmount):
		return fmt.Errorf("%w: minimum is %s", apperrors.ErrAmountBelowMinimum, s.minAmount)
	case amount.GreaterThan(s.maxAmount):
		return fmt.Errorf("%w: maximum is %s", apperrors.ErrAmountAboveMaximum, s.maxAmount)
	default:
		return nil
	}
}

func gatewayResult(err error) string {
	var mErr *monnify.Error
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &mErr):
		return mErr.Code
	default:
		return monnify.CodeUnknown
	}
}

// failedReason cuts error text to maxFailedReasonLen bytes on a rune boundary
func failedReason(err error) string {
	reason := err.Error()
	if len(reason) <= maxFailedReasonLen {
		return reason
	}

	cut := maxFailedReasonLen
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
