package postgres

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalita/wallet/internal/apperrors"
	"github.com/lalita/wallet/internal/repository"
	"github.com/lalita/wallet/internal/testutil"
)

func TestWalletRepo(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("GetWallet not exists", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			_, err := storage.Wallet().GetWallet(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
		})
	})

	t.Run("Credit", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			userID := uuid.New()

			wallet, err := storage.Wallet().Credit(t.Context(), userID, decimal.RequireFromString("1960"))
			require.NoError(t, err, "first credit has to create wallet")
			require.True(t, wallet.Balance.Equal(decimal.RequireFromString("1960")))

			wallet, err = storage.Wallet().Credit(t.Context(), userID, decimal.RequireFromString("0.50"))
			require.NoError(t, err)
			require.True(t, wallet.Balance.Equal(decimal.RequireFromString("1960.50")), "balance has to be incremented")

			stored, err := storage.Wallet().GetWallet(t.Context(), userID)
			require.NoError(t, err)
			require.True(t, stored.Balance.Equal(wallet.Balance))

			_, err = storage.Wallet().Credit(t.Context(), userID, decimal.Zero)
			require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
		})
	})

	t.Run("Debit", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			userID := uuid.New()
			_, err := storage.Wallet().Credit(t.Context(), userID, decimal.NewFromInt(100))
			require.NoError(t, err)

			t.Run("enough balance", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					wallet, err := storage.Wallet().Debit(t.Context(), userID, decimal.NewFromInt(70))

					require.NoError(t, err)
					require.True(t, wallet.Balance.Equal(decimal.NewFromInt(30)))
				})
			})

			t.Run("whole balance", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					wallet, err := storage.Wallet().Debit(t.Context(), userID, decimal.NewFromInt(100))

					require.NoError(t, err)
					require.True(t, wallet.Balance.IsZero())
				})
			})

			t.Run("insufficient", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().Debit(t.Context(), userID, decimal.NewFromInt(101))

					require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)
				})
			})

			t.Run("no wallet", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					_, err := storage.Wallet().Debit(t.Context(), uuid.New(), decimal.NewFromInt(1))

					require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)
				})
			})
		})
	})

	t.Run("concurrent credits", func(t *testing.T) {
		testutil.Truncate(t, pg.Pool)
		t.Cleanup(func() { testutil.Truncate(t, pg.Pool) })

		storage := NewStorage(pg.Pool)
		userID := uuid.New()

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := storage.Wallet().Credit(t.Context(), userID, decimal.NewFromInt(10))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		wallet, err := storage.Wallet().GetWallet(t.Context(), userID)
		require.NoError(t, err)
		require.True(t, wallet.Balance.Equal(decimal.NewFromInt(200)), "no credit may be lost, got %s", wallet.Balance)
	})
}
