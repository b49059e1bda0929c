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

// ExecutionStore persists flow execution records.
type ExecutionStore struct {
	db *sqlx.DB
}

// NewExecutionStore builds an execution store over the shared pool.
func NewExecutionStore(db *sqlx.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

type executionRow struct {
	ID          uuid.UUID      `db:"id"`
	FlowID      uuid.UUID      `db:"flow_id"`
	EventID     uuid.UUID      `db:"event_id"`
	Status      string         `db:"status"`
	CurrentStep sql.NullString `db:"current_step"`
	StepsStatus []byte         `db:"steps_status"`
	StartedAt   time.Time      `db:"started_at"`
	CompletedAt *time.Time     `db:"completed_at"`
	Error       sql.NullString `db:"error"`
}

func (r *executionRow) toModel() (*model.Execution, error) {
	e := &model.Execution{
		ID:          r.ID,
		FlowID:      r.FlowID,
		EventID:     r.EventID,
		Status:      model.ExecutionStatus(r.Status),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
	if r.CurrentStep.Valid {
		step := r.CurrentStep.String
		e.CurrentStep = &step
	}
	if r.Error.Valid {
		msg := r.Error.String
		e.Error = &msg
	}
	if err := json.Unmarshal(r.StepsStatus, &e.StepsStatus); err != nil {
		return nil, fmt.Errorf("decoding steps_status for execution %s: %w", r.ID, err)
	}
	return e, nil
}

const executionColumns = "id, flow_id, event_id, status, current_step, steps_status, started_at, completed_at, error"

// Create inserts a finished execution record.
func (s *ExecutionStore) Create(ctx context.Context, e *model.Execution) error {
	stepsStatus, err := json.Marshal(e.StepsStatus)
	if err != nil {
		return fmt.Errorf("encoding steps_status: %w", err)
	}

	var currentStep, errMsg sql.NullString
	if e.CurrentStep != nil {
		currentStep = sql.NullString{String: *e.CurrentStep, Valid: true}
	}
	if e.Error != nil {
		errMsg = sql.NullString{String: *e.Error, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orchepy_executions (`+executionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.FlowID, e.EventID, string(e.Status), currentStep, stepsStatus,
		e.StartedAt, e.CompletedAt, errMsg)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// GetByID fetches one execution, ErrNotFound when missing.
func (s *ExecutionStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Execution, error) {
	var row executionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+executionColumns+` FROM orchepy_executions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching execution %s: %w", id, err)
	}
	return row.toModel()
}

// List returns executions newest first, narrowed by the filter. All filter
// values are bound parameters. Limit defaults to 100.
func (s *ExecutionStore) List(ctx context.Context, filter model.ExecutionFilter) ([]*model.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM orchepy_executions WHERE 1=1`
	var args []any

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.FlowID != nil {
		args = append(args, *filter.FlowID)
		query += fmt.Sprintf(" AND flow_id = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))

	var rows []executionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}

	executions := make([]*model.Execution, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, nil
}
