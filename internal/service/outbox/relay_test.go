package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lalita/wallet/internal/logger"
	"github.com/lalita/wallet/internal/metrics"
	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/repository"
	"github.com/lalita/wallet/internal/repository/postgres"
	"github.com/lalita/wallet/internal/testutil"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func addEvents(t *testing.T, storage repository.Storage, userID uuid.UUID, count int) {
	t.Helper()

	now := time.Now()
	for i := range count {
		e, err := NewTransactionEvent(models.EventDepositSucceeded, models.Transaction{
			UserID:           userID,
			Type:             models.TransactionTypeDeposit,
			Status:           models.TransactionStatusSuccess,
			Amount:           decimal.NewFromInt(2000),
			PlatformFee:      decimal.NewFromInt(40),
			NetAmount:        decimal.NewFromInt(1960),
			PaymentReference: "DEP_" + uuid.NewString(),
		}, now.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
		require.NoError(t, storage.Outbox().AddEvent(t.Context(), e))
	}
}

func TestNewTransactionEvent(t *testing.T) {
	userID := uuid.New()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	e, err := NewTransactionEvent(models.EventDepositFailed, models.Transaction{
		UserID:           userID,
		Type:             models.TransactionTypeDeposit,
		Status:           models.TransactionStatusFailed,
		Amount:           decimal.NewFromInt(500),
		PlatformFee:      decimal.Zero,
		NetAmount:        decimal.NewFromInt(500),
		PaymentReference: "DEP_1",
		FailedReason:     "checkout expired",
	}, now)

	require.NoError(t, err)
	require.Len(t, e.ID, 26, "ulid")
	require.Equal(t, userID.String(), e.AggregateID)
	require.Equal(t, models.EventDepositFailed, e.EventType)
	require.JSONEq(t, `{
		"paymentReference": "DEP_1",
		"userId": "`+userID.String()+`",
		"type": "deposit",
		"status": "failed",
		"amount": "500.00",
		"platformFee": "0.00",
		"netAmount": "500.00",
		"failedReason": "checkout expired",
		"occurredAt": "2025-05-01T12:00:00Z"
	}`, string(e.Payload))
}

func TestRelay(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, w *fakeWriter, fn func(r *Relay, storage repository.Storage, m *metrics.Metrics)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			m := metrics.New()
			fn(NewRelay(RelayConfig{BatchSize: 2}, storage, w, logger.NewNoOpLogger(), m), storage, m)
		})
	}

	t.Run("publish batch", func(t *testing.T) {
		w := &fakeWriter{}
		inTx(t, w, func(r *Relay, storage repository.Storage, m *metrics.Metrics) {
			userID := uuid.New()
			addEvents(t, storage, userID, 3)

			n, err := r.publishBatch(t.Context())
			require.NoError(t, err)
			require.Equal(t, 2, n, "limited by batch size")

			n, err = r.publishBatch(t.Context())
			require.NoError(t, err)
			require.Equal(t, 1, n)

			n, err = r.publishBatch(t.Context())
			require.NoError(t, err)
			require.Zero(t, n, "nothing left")

			msgs := w.written()
			require.Len(t, msgs, 3)
			for _, msg := range msgs {
				require.Equal(t, userID.String(), string(msg.Key))
				require.Equal(t, HeaderEventType, msg.Headers[0].Key)
				require.Equal(t, models.EventDepositSucceeded, string(msg.Headers[0].Value))

				var payload TransactionPayload
				require.NoError(t, json.Unmarshal(msg.Value, &payload))
				require.Equal(t, models.TransactionStatusSuccess, payload.Status)
			}
			require.InDelta(t, 3, promtest.ToFloat64(m.OutboxPublishedTotal), 0)
		})
	})

	t.Run("writer error keeps events unpublished", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("broker down")}
		inTx(t, w, func(r *Relay, storage repository.Storage, _ *metrics.Metrics) {
			addEvents(t, storage, uuid.New(), 1)

			_, err := r.publishBatch(t.Context())
			require.ErrorContains(t, err, "broker down")

			events, err := storage.Outbox().ListUnpublished(t.Context(), 10)
			require.NoError(t, err)
			require.Len(t, events, 1, "event must be retried")
		})
	})

	t.Run("run publishes and stops", func(t *testing.T) {
		testutil.Truncate(t, pg.Pool)
		t.Cleanup(func() { testutil.Truncate(t, pg.Pool) })

		storage := postgres.NewStorage(pg.Pool)
		addEvents(t, storage, uuid.New(), 5)

		w := &fakeWriter{}
		r := NewRelay(RelayConfig{Interval: 10 * time.Millisecond, BatchSize: 2}, storage, w, logger.NewNoOpLogger(), metrics.New())

		ctx, cancel := context.WithCancel(t.Context())
		stopped := r.Run(ctx)

		require.Eventually(t, func() bool {
			return len(w.written()) == 5
		}, 5*time.Second, 10*time.Millisecond)

		cancel()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("relay did not stop")
		}

		events, err := storage.Outbox().ListUnpublished(t.Context(), 10)
		require.NoError(t, err)
		require.Empty(t, events)
	})
}
