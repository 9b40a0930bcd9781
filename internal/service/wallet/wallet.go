package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lalita/wallet/internal/apperrors"
	"github.com/lalita/wallet/internal/logger"
	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/repository"
	"github.com/lalita/wallet/internal/service/outbox"
	"github.com/lalita/wallet/internal/service/reference"
)

type WalletService struct {
	storage repository.Storage
	logger  logger.Logger
	now     func() time.Time
}

func NewService(storage repository.Storage, l logger.Logger) *WalletService {
	return &WalletService{
		storage: storage,
		logger:  l.With("component", "wallet"),
		now:     time.Now,
	}
}

// GetBalance returns user wallet. User without wallet yet has zero balance
func (s *WalletService) GetBalance(ctx context.Context, user models.User) (models.Wallet, error) {
	w, err := s.storage.Wallet().GetWallet(ctx, user.ID)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, apperrors.ErrWalletNotFound):
		return models.Wallet{UserID: user.ID, Balance: decimal.Zero}, nil
	default:
		return w, fmt.Errorf("error while getting wallet: %w", err)
	}
}

// Withdraw debits the wallet and records settled withdrawal in one db transaction
func (s *WalletService) Withdraw(ctx context.Context, user models.User, amount decimal.Decimal) (models.Transaction, error) {
	var withdrawal models.Transaction

	if !amount.IsPositive() {
		return withdrawal, apperrors.ErrInvalidAmount
	}

	now := s.now()
	ref, err := reference.New(reference.PrefixWithdrawal, user.ID, now)
	if err != nil {
		return withdrawal, err
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		if _, err := storage.Wallet().Debit(ctx, user.ID, amount); err != nil {
			return err
		}

		withdrawal, err = storage.Transaction().CreateTransaction(ctx, models.Transaction{
			UserID:           user.ID,
			Type:             models.TransactionTypeWithdrawal,
			Amount:           amount,
			PlatformFee:      decimal.Zero,
			NetAmount:        amount,
			Status:           models.TransactionStatusSuccess,
			PaymentReference: ref,
			CreatedAt:        now,
			CompletedAt:      &now,
		})
		if err != nil {
			return err
		}

		event, err := outbox.NewTransactionEvent(models.EventWithdrawalSucceeded, withdrawal, now)
		if err != nil {
			return err
		}
		return storage.Outbox().AddEvent(ctx, event)
	})
	if err != nil {
		return withdrawal, err
	}

	s.logger.Info("Withdrawal completed", "user_id", user.ID, "reference", ref, "amount", amount)
	return withdrawal, nil
}

func (s *WalletService) ListTransactions(ctx context.Context, user models.User, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	return s.storage.Transaction().ListTransactions(ctx, user.ID, opts)
}

// VerifyPayment returns the transaction only if it belongs to the user.
// Foreign reference looks exactly like the missing one
func (s *WalletService) VerifyPayment(ctx context.Context, user models.User, ref string) (models.Transaction, error) {
	return s.storage.Transaction().GetUserTransaction(ctx, user.ID, ref)
}
