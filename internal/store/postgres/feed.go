package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/KamogeloT/MediFlow/internal/store"

	"github.com/jackc/pgx/v5"
)

// ListFeedEvents pages the change feed after the given offset. The (time, id)
// pair disambiguates events sharing a timestamp, so nothing is skipped and
// redelivery on overlap stays possible.
func (s *Store) ListFeedEvents(ctx context.Context, offset store.FeedOffset, limit int) ([]store.FeedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, kind, payload_json, created_at
		FROM queue_events
		WHERE (created_at, event_id) > ($1, $2)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, offset.LastEventTime, offset.LastEventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.FeedEvent
	for rows.Next() {
		var event store.FeedEvent
		if err := rows.Scan(&event.EventID, &event.Kind, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetFeedOffset(ctx context.Context) (store.FeedOffset, error) {
	var offset store.FeedOffset
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time, last_event_id FROM feed_offsets WHERE id = 1
	`)
	if err := row.Scan(&offset.LastEventTime, &offset.LastEventID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.FeedOffset{LastEventTime: time.Unix(0, 0).UTC()}, nil
		}
		return store.FeedOffset{}, err
	}
	return offset, nil
}

func (s *Store) UpdateFeedOffset(ctx context.Context, offset store.FeedOffset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_offsets (id, last_event_time, last_event_id)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE
		SET last_event_time = EXCLUDED.last_event_time, last_event_id = EXCLUDED.last_event_id
	`, offset.LastEventTime, offset.LastEventID)
	return err
}
