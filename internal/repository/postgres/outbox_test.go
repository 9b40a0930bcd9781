package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/repository"
	"github.com/lalita/wallet/internal/testutil"
)

func TestOutboxRepo(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
		for _, id := range []string{"01A", "01B", "01C"} {
			err := storage.Outbox().AddEvent(t.Context(), models.OutboxEvent{
				ID:          id,
				AggregateID: "DEP_" + id,
				EventType:   models.EventDepositSucceeded,
				Payload:     json.RawMessage(`{"reference":"DEP_` + id + `"}`),
			})
			require.NoError(t, err)
		}

		events, err := storage.Outbox().ListUnpublished(t.Context(), 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		require.Equal(t, "01A", events[0].ID, "oldest first")
		require.Equal(t, "01B", events[1].ID)
		require.JSONEq(t, `{"reference":"DEP_01A"}`, string(events[0].Payload))
		require.Nil(t, events[0].PublishedAt)

		err = storage.Outbox().MarkPublished(t.Context(), []string{"01A", "01B"}, time.Now())
		require.NoError(t, err)

		events, err = storage.Outbox().ListUnpublished(t.Context(), 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, "01C", events[0].ID)

		err = storage.Outbox().MarkPublished(t.Context(), nil, time.Now())
		require.NoError(t, err, "empty batch is a no-op")
	})
}
