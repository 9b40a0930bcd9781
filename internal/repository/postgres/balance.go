package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/lalita/wallet/internal/apperrors"
	"github.com/lalita/wallet/internal/models"
)

type WalletRepo struct {
	DB DBTX
}

func rowToWallet(row pgx.CollectableRow) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.UserID, &w.Balance, &w.UpdatedAt)
	return w, err
}

func (r *WalletRepo) GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	const getWallet = `SELECT user_id, balance, updated_at FROM wallets WHERE user_id = $1`

	rows, _ := r.DB.Query(ctx, getWallet, userID)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletNotFound
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

// Credit is a single parameterized upsert, so concurrent credits never lose an update
func (r *WalletRepo) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Wallet, error) {
	const credit = `
	INSERT INTO wallets (user_id, balance, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (user_id) DO UPDATE
	SET balance = wallets.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	RETURNING user_id, balance, updated_at
	`

	if !amount.IsPositive() {
		return models.Wallet{}, apperrors.ErrInvalidAmount
	}

	rows, _ := r.DB.Query(ctx, credit, userID, amount)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)
	if err != nil {
		return wallet, fmt.Errorf("db error: %w", err)
	}

	return wallet, nil
}

func (r *WalletRepo) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Wallet, error) {
	const debit = `
	UPDATE wallets
	SET balance = balance - $2, updated_at = now()
	WHERE user_id = $1 AND balance >= $2
	RETURNING user_id, balance, updated_at
	`

	if !amount.IsPositive() {
		return models.Wallet{}, apperrors.ErrInvalidAmount
	}

	rows, _ := r.DB.Query(ctx, debit, userID, amount)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrBalanceInsufficient
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}
