package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

type outboxRow struct {
	model.OutboxEvent
	Body string `db:"payload_text"`
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (id, event_type, payload, status, retry_count, created_at)
		VALUES ($1, $2, $3::jsonb, $4, 0, $5)
	`
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Status = model.OutboxStatusPending

	_, err := r.q.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		string(event.Payload),
		event.Status,
		event.CreatedAt,
	)
	return mapError(err, "create outbox event")
}

// ListPending skips rows locked by another relay so several workers can
// poll the same table.
func (r *outboxRepository) ListPending(ctx context.Context, limit int, now time.Time) ([]*model.OutboxEvent, error) {
	query := `
		SELECT id, event_type, payload::text AS payload_text, status, error_message,
			retry_count, retry_at, created_at, processed_at
		FROM outbox_events
		WHERE status = 'pending'
		AND (retry_at IS NULL OR retry_at <= $2)
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	var rows []outboxRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, limit, now); err != nil {
		return nil, mapError(err, "list pending outbox events")
	}

	events := make([]*model.OutboxEvent, 0, len(rows))
	for i := range rows {
		evt := rows[i].OutboxEvent
		evt.Payload = json.RawMessage(rows[i].Body)
		events = append(events, &evt)
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE outbox_events
		SET status = 'processed', processed_at = $2, error_message = NULL
		WHERE id = $1
	`
	res, err := r.q.ExecContext(ctx, query, id, at)
	if err != nil {
		return mapError(err, "mark outbox event processed")
	}
	if expectOne(res, "mark outbox event processed") != nil {
		return repository.ErrNotFound
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryAt *time.Time) error {
	query := `
		UPDATE outbox_events
		SET retry_count = retry_count + 1,
			error_message = $2,
			retry_at = $3,
			status = CASE WHEN $3::timestamptz IS NULL THEN 'failed' ELSE status END
		WHERE id = $1
	`
	res, err := r.q.ExecContext(ctx, query, id, reason, retryAt)
	if err != nil {
		return mapError(err, "mark outbox event failed")
	}
	if expectOne(res, "mark outbox event failed") != nil {
		return repository.ErrNotFound
	}
	return nil
}
