package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lalita/wallet/internal/models"
)

type OutboxRepo struct {
	DB DBTX
}

func (r *OutboxRepo) AddEvent(ctx context.Context, e models.OutboxEvent) error {
	const addEvent = `
	INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at)
	VALUES ($1, $2, $3, $4, $5)
	`

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.DB.Exec(ctx, addEvent, e.ID, e.AggregateID, e.EventType, e.Payload, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *OutboxRepo) ListUnpublished(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	const listUnpublished = `
	SELECT id, aggregate_id, event_type, payload, created_at, published_at
	FROM outbox_events
	WHERE published_at IS NULL
	ORDER BY id
	LIMIT $1
	FOR UPDATE SKIP LOCKED
	`

	rows, _ := r.DB.Query(ctx, listUnpublished, limit)
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OutboxEvent, error) {
		var e models.OutboxEvent
		err := row.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.PublishedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return events, nil
}

func (r *OutboxRepo) MarkPublished(ctx context.Context, ids []string, publishedAt time.Time) error {
	const markPublished = `
	UPDATE outbox_events
	SET published_at = $2
	WHERE id = ANY($1::text[]) AND published_at IS NULL
	`

	if len(ids) == 0 {
		return nil
	}

	_, err := r.DB.Exec(ctx, markPublished, ids, publishedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
