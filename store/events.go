package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orchehq/orchepy/model"
)

// EventStore persists submitted events.
type EventStore struct {
	db *sqlx.DB
}

// NewEventStore builds an event store over the shared pool.
func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

type eventRow struct {
	ID         uuid.UUID `db:"id"`
	EventType  string    `db:"event_type"`
	Data       []byte    `db:"data"`
	Metadata   []byte    `db:"metadata"`
	ReceivedAt time.Time `db:"received_at"`
}

func (r *eventRow) toModel() (*model.Event, error) {
	e := &model.Event{
		ID:         r.ID,
		EventType:  r.EventType,
		ReceivedAt: r.ReceivedAt,
	}
	if err := json.Unmarshal(r.Data, &e.Data); err != nil {
		return nil, fmt.Errorf("decoding data for event %s: %w", r.ID, err)
	}
	if len(r.Metadata) > 0 && string(r.Metadata) != "null" {
		if err := json.Unmarshal(r.Metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for event %s: %w", r.ID, err)
		}
	}
	return e, nil
}

// Create inserts an event.
func (s *EventStore) Create(ctx context.Context, e *model.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}
	metadata, err := marshalOrNull(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding event metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orchepy_events (id, event_type, data, metadata, received_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.EventType, data, metadata, e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetByID fetches one event, ErrNotFound when missing.
func (s *EventStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	var row eventRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, event_type, data, metadata, received_at FROM orchepy_events WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching event %s: %w", id, err)
	}
	return row.toModel()
}

// List returns recent events, optionally narrowed to one event type.
func (s *EventStore) List(ctx context.Context, eventType string, limit int64) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, event_type, data, metadata, received_at FROM orchepy_events`
	var args []any
	if eventType != "" {
		query += ` WHERE event_type = $1 ORDER BY received_at DESC LIMIT $2`
		args = append(args, eventType, limit)
	} else {
		query += ` ORDER BY received_at DESC LIMIT $1`
		args = append(args, limit)
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	events := make([]*model.Event, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
