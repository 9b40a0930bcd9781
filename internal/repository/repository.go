package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lalita/wallet/internal/models"
)

type Storage interface {
	Transaction() TransactionRepo
	Wallet() WalletRepo
	Outbox() OutboxRepo

	// Run fn in a single db transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

type ListTransactionsOpts struct {
	// Empty means any type
	Types []string

	Limit  int
	Offset int
}

// Transaction repository interface
// Status updates are conditional: they apply only when the current status allows the transition.
// If it does not (or the reference is unknown) they return apperrors.ErrStatusConflict
type TransactionRepo interface {
	// Create transaction record
	// If payment reference is used already has to return apperrors.ErrReferenceTaken
	CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)

	// Get transaction by payment reference
	// If not found must return apperrors.ErrTransactionNotFound
	GetByReference(ctx context.Context, reference string) (models.Transaction, error)

	// Same as GetByReference but the transaction must belong to the user
	GetUserTransaction(ctx context.Context, userID uuid.UUID, reference string) (models.Transaction, error)

	// initiated -> pending
	MarkPending(ctx context.Context, reference string, checkoutURL string, providerReference string) (models.Transaction, error)

	// initiated|pending -> failed
	MarkFailed(ctx context.Context, reference string, reason string) (models.Transaction, error)

	// initiated|pending -> success
	// The row stays locked till the end of db transaction so the caller may credit the wallet safely
	MarkSucceeded(ctx context.Context, reference string, completedAt time.Time) (models.Transaction, error)

	// List user transactions, newest first
	ListTransactions(ctx context.Context, userID uuid.UUID, opts ListTransactionsOpts) ([]models.Transaction, error)

	// Fail deposits that stay in status longer than allowed
	ExpireStale(ctx context.Context, status string, createdBefore time.Time, reason string) ([]models.Transaction, error)
}

// Wallet repository interface
type WalletRepo interface {
	// If wallet not exists must return apperrors.ErrWalletNotFound
	GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error)

	// Increment balance. Creates wallet with zero balance first if it not exists
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Wallet, error)

	// Decrement balance if it is enough
	// Otherwise has to return apperrors.ErrBalanceInsufficient
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Wallet, error)
}

// Outbox repository interface
type OutboxRepo interface {
	AddEvent(ctx context.Context, e models.OutboxEvent) error

	// Return oldest unpublished events and lock them till the end of db transaction.
	// Rows locked by another relay are skipped
	ListUnpublished(ctx context.Context, limit int) ([]models.OutboxEvent, error)

	MarkPublished(ctx context.Context, ids []string, publishedAt time.Time) error
}
