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

// FlowStore persists flow definitions.
type FlowStore struct {
	db *sqlx.DB
}

// NewFlowStore builds a flow store over the shared pool.
func NewFlowStore(db *sqlx.DB) *FlowStore {
	return &FlowStore{db: db}
}

type flowRow struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	Trigger   []byte    `db:"trigger"`
	Steps     []byte    `db:"steps"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *flowRow) toModel() (*model.Flow, error) {
	f := &model.Flow{
		ID:        r.ID,
		Name:      r.Name,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Trigger, &f.Trigger); err != nil {
		return nil, fmt.Errorf("decoding trigger for flow %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.Steps, &f.Steps); err != nil {
		return nil, fmt.Errorf("decoding steps for flow %s: %w", r.ID, err)
	}
	return f, nil
}

const flowColumns = "id, name, trigger, steps, active, created_at, updated_at"

// Create inserts a flow.
func (s *FlowStore) Create(ctx context.Context, f *model.Flow) error {
	trigger, err := json.Marshal(f.Trigger)
	if err != nil {
		return fmt.Errorf("encoding flow trigger: %w", err)
	}
	steps, err := json.Marshal(f.Steps)
	if err != nil {
		return fmt.Errorf("encoding flow steps: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orchepy_flows (`+flowColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.Name, trigger, steps, f.Active, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting flow: %w", err)
	}
	return nil
}

// GetByID fetches one flow, ErrNotFound when missing.
func (s *FlowStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Flow, error) {
	var row flowRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+flowColumns+` FROM orchepy_flows WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching flow %s: %w", id, err)
	}
	return row.toModel()
}

// List returns flows newest first, optionally only active ones.
func (s *FlowStore) List(ctx context.Context, activeOnly bool) ([]*model.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM orchepy_flows ORDER BY created_at DESC`
	if activeOnly {
		query = `SELECT ` + flowColumns + ` FROM orchepy_flows WHERE active = true ORDER BY created_at DESC`
	}

	var rows []flowRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("listing flows: %w", err)
	}

	flows := make([]*model.Flow, 0, len(rows))
	for i := range rows {
		f, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, nil
}

// ListActive returns every active flow, the matcher's working set.
func (s *FlowStore) ListActive(ctx context.Context) ([]model.Flow, error) {
	flows, err := s.List(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]model.Flow, 0, len(flows))
	for _, f := range flows {
		out = append(out, *f)
	}
	return out, nil
}

// Update replaces the mutable columns of a flow.
func (s *FlowStore) Update(ctx context.Context, f *model.Flow) error {
	trigger, err := json.Marshal(f.Trigger)
	if err != nil {
		return fmt.Errorf("encoding flow trigger: %w", err)
	}
	steps, err := json.Marshal(f.Steps)
	if err != nil {
		return fmt.Errorf("encoding flow steps: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE orchepy_flows SET name = $1, trigger = $2, steps = $3, active = $4, updated_at = $5 WHERE id = $6`,
		f.Name, trigger, steps, f.Active, f.UpdatedAt, f.ID)
	if err != nil {
		return fmt.Errorf("updating flow %s: %w", f.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a flow.
func (s *FlowStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orchepy_flows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting flow %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
