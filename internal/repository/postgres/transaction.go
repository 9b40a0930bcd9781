package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lalita/wallet/internal/apperrors"
	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type TransactionRepo struct {
	DB DBTX
}

const transactionColumns = `
	id, user_id, type, amount, platform_fee, net_amount, status, payment_reference,
	checkout_url, provider_reference, failed_reason, created_at, updated_at, completed_at`

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.Type, &t.Amount, &t.PlatformFee, &t.NetAmount, &t.Status, &t.PaymentReference,
		&t.CheckoutURL, &t.ProviderReference, &t.FailedReason, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	return t, err
}

// Collect exactly one transaction; no rows is translated to notFoundErr
func collectTransaction(rows pgx.Rows, notFoundErr error) (models.Transaction, error) {
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, notFoundErr
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

func (r *TransactionRepo) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	const createTransaction = `
	INSERT INTO transactions (
		id, user_id, type, amount, platform_fee, net_amount, status, payment_reference,
		checkout_url, provider_reference, failed_reason, created_at, updated_at, completed_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12, $13)
	RETURNING` + transactionColumns

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		t.ID, t.UserID, t.Type, t.Amount, t.PlatformFee, t.NetAmount, t.Status, t.PaymentReference,
		t.CheckoutURL, t.ProviderReference, t.FailedReason, t.CreatedAt, t.CompletedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, apperrors.ErrReferenceTaken
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (models.Transaction, error) {
	const getByReference = `SELECT` + transactionColumns + ` FROM transactions WHERE payment_reference = $1`

	rows, _ := r.DB.Query(ctx, getByReference, reference)
	return collectTransaction(rows, apperrors.ErrTransactionNotFound)
}

func (r *TransactionRepo) GetUserTransaction(ctx context.Context, userID uuid.UUID, reference string) (models.Transaction, error) {
	const getUserTransaction = `SELECT` + transactionColumns + `
	FROM transactions
	WHERE payment_reference = $1 AND user_id = $2`

	rows, _ := r.DB.Query(ctx, getUserTransaction, reference, userID)
	return collectTransaction(rows, apperrors.ErrTransactionNotFound)
}

func (r *TransactionRepo) MarkPending(ctx context.Context, reference string, checkoutURL string, providerReference string) (models.Transaction, error) {
	const markPending = `
	UPDATE transactions
	SET status = 'pending', checkout_url = $2, provider_reference = $3, updated_at = now()
	WHERE payment_reference = $1 AND status = 'initiated'
	RETURNING` + transactionColumns

	rows, _ := r.DB.Query(ctx, markPending, reference, checkoutURL, providerReference)
	return collectTransaction(rows, apperrors.ErrStatusConflict)
}

func (r *TransactionRepo) MarkFailed(ctx context.Context, reference string, reason string) (models.Transaction, error) {
	const markFailed = `
	UPDATE transactions
	SET status = 'failed', failed_reason = $2, updated_at = now()
	WHERE payment_reference = $1 AND status IN ('initiated', 'pending')
	RETURNING` + transactionColumns

	rows, _ := r.DB.Query(ctx, markFailed, reference, reason)
	return collectTransaction(rows, apperrors.ErrStatusConflict)
}

func (r *TransactionRepo) MarkSucceeded(ctx context.Context, reference string, completedAt time.Time) (models.Transaction, error) {
	const markSucceeded = `
	UPDATE transactions
	SET status = 'success', completed_at = $2, updated_at = now()
	WHERE payment_reference = $1 AND status IN ('initiated', 'pending')
	RETURNING` + transactionColumns

	rows, _ := r.DB.Query(ctx, markSucceeded, reference, completedAt)
	return collectTransaction(rows, apperrors.ErrStatusConflict)
}

func (r *TransactionRepo) ListTransactions(ctx context.Context, userID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	const listTransactions = `SELECT` + transactionColumns + `
	FROM transactions
	WHERE user_id = $1 AND (cardinality($2::text[]) = 0 OR type = ANY($2::text[]))
	ORDER BY created_at DESC, id
	LIMIT $3 OFFSET $4`

	limit := opts.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	types := opts.Types
	if types == nil {
		types = []string{}
	}

	rows, _ := r.DB.Query(ctx, listTransactions, userID, types, limit, max(opts.Offset, 0))
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func (r *TransactionRepo) ExpireStale(ctx context.Context, status string, createdBefore time.Time, reason string) ([]models.Transaction, error) {
	const expireStale = `
	UPDATE transactions
	SET status = 'failed', failed_reason = $3, updated_at = now()
	WHERE type = 'deposit' AND status = $1 AND created_at < $2
	RETURNING` + transactionColumns

	if models.IsTerminalStatus(status) {
		return nil, fmt.Errorf("can't expire transactions in terminal status %q", status)
	}

	rows, _ := r.DB.Query(ctx, expireStale, status, createdBefore, reason)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}
