// Package testutil starts throwaway Postgres for tests and builds wallet fixtures.
package testutil

import (
	"context"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/lalita/wallet/internal/db"
	"github.com/lalita/wallet/internal/models"
)

const postgresImage = "postgres:17-alpine"

// Return random free port on 127.0.0.1 address
func RandomPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return 0, err
	}
	defer ln.Close() // nolint:errcheck

	return ln.Addr().(*net.TCPAddr).Port, nil
}

type PostgresContainer struct {
	DSN       string
	Pool      *pgxpool.Pool
	Terminate func()
}

// StartPostgresContainer runs migrated postgres. Test is skipped when docker is not reachable.
// Call Terminate when tests are done
func StartPostgresContainer(t *testing.T) PostgresContainer {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)

	container, err := postgres.Run(t.Context(),
		postgresImage,
		postgres.WithDatabase("wallet-test"),
		postgres.WithUsername("wallet"),
		postgres.WithPassword("pwd"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(t.Context(), "sslmode=disable")
	require.NoError(t, err, "failed to get postgres connection string")
	t.Logf("Container with pg started, DSN=%v", dsn)

	pool, err := db.ConnectAndMigrate(t.Context(), dsn)
	require.NoError(t, err, "failed to connect and migrate schema")

	return PostgresContainer{
		DSN:  dsn,
		Pool: pool,
		Terminate: func() {
			pool.Close()
			testcontainers.CleanupContainer(t, container)
		},
	}
}

type beginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// InTx runs testFunc in db transaction rolled back at the end, so tests never see each other's rows
func InTx(db beginner, t *testing.T, testFunc func(tx pgx.Tx)) {
	t.Helper()

	tx, err := db.Begin(t.Context())
	require.NoError(t, err)

	defer func() {
		require.NoError(t, tx.Rollback(context.WithoutCancel(t.Context())))
	}()

	testFunc(tx)
}

// Truncate wallet tables. For tests that have to commit (concurrency tests)
func Truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.WithoutCancel(t.Context()), `TRUNCATE transactions, wallets, outbox_events`)
	require.NoError(t, err, "failed to truncate tables")
}

// Deposit is an initiated deposit of 2000 charged 2% fee
func Deposit(userID uuid.UUID, reference string) models.Transaction {
	return DepositOf(userID, reference, "2000", "40")
}

// DepositOf is an initiated deposit with given gross amount and fee; net amount is the rest
func DepositOf(userID uuid.UUID, reference string, amount string, fee string) models.Transaction {
	gross := decimal.RequireFromString(amount)
	platformFee := decimal.RequireFromString(fee)

	return models.Transaction{
		UserID:           userID,
		Type:             models.TransactionTypeDeposit,
		Amount:           gross,
		PlatformFee:      platformFee,
		NetAmount:        gross.Sub(platformFee),
		Status:           models.TransactionStatusInitiated,
		PaymentReference: reference,
	}
}
