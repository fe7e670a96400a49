package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/events"
)

// EventLogRepository persists the immutable per-request event log. The log
// doubles as the request's audit history.
type EventLogRepository interface {
	Append(ctx context.Context, event events.LifecycleEvent) error
	ListByRequest(ctx context.Context, requestID int64, limit, offset int) ([]events.LifecycleEvent, error)
}

type eventLogRepository struct {
	pool *pgxpool.Pool
}

// NewEventLogRepository instantiates the repository.
func NewEventLogRepository(pool *pgxpool.Pool) EventLogRepository {
	return &eventLogRepository{pool: pool}
}

func (r *eventLogRepository) Append(ctx context.Context, event events.LifecycleEvent) error {
	const query = `
        INSERT INTO request_events (id, event_type, request_id, new_status, actor_id, actor_role, note, sequence, created_at)
        VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9)`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Type,
		event.RequestID,
		string(event.NewStatus),
		event.ActorID,
		event.ActorRole,
		event.Note,
		event.Sequence,
		event.Timestamp,
	)
	return err
}

func (r *eventLogRepository) ListByRequest(ctx context.Context, requestID int64, limit, offset int) ([]events.LifecycleEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, event_type, request_id, COALESCE(new_status, ''), actor_id, actor_role, note, sequence, created_at
        FROM request_events WHERE request_id=$1 ORDER BY sequence ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, requestID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []events.LifecycleEvent
	for rows.Next() {
		var event events.LifecycleEvent
		var status string
		if err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.RequestID,
			&status,
			&event.ActorID,
			&event.ActorRole,
			&event.Note,
			&event.Sequence,
			&event.Timestamp,
		); err != nil {
			return nil, err
		}
		event.NewStatus = domain.RequestStatus(status)
		result = append(result, event)
	}
	return result, rows.Err()
}
