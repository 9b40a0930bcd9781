package handlers

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/lalita/wallet/internal/handlers/middleware"
	"github.com/lalita/wallet/internal/logger"
	"github.com/lalita/wallet/internal/metrics"
	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/repository"
	"github.com/lalita/wallet/internal/service/deposit"
	"github.com/lalita/wallet/internal/service/webhook"
)

const (
	defaultWebhookRPS   = 20
	defaultWebhookBurst = 40
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Config struct {
	// Provider secret to verify webhook signatures. Empty disables the check
	WebhookSecret string

	// Per ip token bucket for the webhook endpoint. Zero means default
	WebhookRPS   float64
	WebhookBurst int
}

type Services struct {
	Auth       authService
	Deposit    depositService
	Wallet     walletService
	Reconciler reconciler
	DB         pinger
}

func NewRouter(cfg Config, s Services, m *metrics.Metrics, logger logger.Logger) http.Handler {
	if cfg.WebhookRPS <= 0 {
		cfg.WebhookRPS = defaultWebhookRPS
	}
	if cfg.WebhookBurst <= 0 {
		cfg.WebhookBurst = defaultWebhookBurst
	}

	withAuth := middleware.AuthMiddleware(s.Auth)
	throttle := middleware.NewThrottle(cfg.WebhookRPS, cfg.WebhookBurst)

	mux := http.NewServeMux()

	mux.Handle("POST /api/deposits", withAuth(handleCreateDeposit(s.Deposit, logger)))
	mux.Handle("GET /api/payments/{reference}", withAuth(handleVerifyPayment(s.Wallet, logger)))
	mux.Handle("GET /api/wallet/balance", withAuth(handleBalance(s.Wallet, logger)))
	mux.Handle("POST /api/wallet/withdraw", withAuth(handleWithdraw(s.Wallet, logger)))
	mux.Handle("GET /api/transactions", withAuth(handleListTransactions(s.Wallet, logger)))

	mux.Handle("POST /api/webhooks/monnify", throttle.Middleware(handleMonnifyWebhook(s.Reconciler, cfg.WebhookSecret, logger)))

	mux.Handle("GET /healthz", handleHealth(s.DB, logger))
	mux.Handle("GET /metrics", m.Handler())

	handler := chain(mux,
		chimw.RequestID,
		chimw.RealIP,
		middleware.LoggerMiddleware(logger),
		chimw.Recoverer,
		middleware.MetricsMiddleware(m.HTTPRequestDuration),
	)

	return handler
}

type authService interface {
	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type depositService interface {
	// Amount errors are apperrors.ErrInvalidAmount, ErrAmountBelowMinimum, ErrAmountAboveMaximum
	// Throttled user gets *deposit.RateLimitError
	InitiateDeposit(ctx context.Context, user models.User, amount decimal.Decimal) (deposit.Result, error)
}

type walletService interface {
	GetBalance(ctx context.Context, user models.User) (models.Wallet, error)

	// Has to return apperrors.ErrBalanceInsufficient if balance is less than amount
	Withdraw(ctx context.Context, user models.User, amount decimal.Decimal) (models.Transaction, error)

	ListTransactions(ctx context.Context, user models.User, opts repository.ListTransactionsOpts) ([]models.Transaction, error)

	// Has to return apperrors.ErrTransactionNotFound if reference is unknown or belongs to other user
	VerifyPayment(ctx context.Context, user models.User, reference string) (models.Transaction, error)
}

type reconciler interface {
	HandleCallback(ctx context.Context, e webhook.Event) (webhook.Outcome, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}
