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

// WorkflowStore persists workflow definitions.
type WorkflowStore struct {
	db *sqlx.DB
}

// NewWorkflowStore builds a workflow store over the shared pool.
func NewWorkflowStore(db *sqlx.DB) *WorkflowStore {
	return &WorkflowStore{db: db}
}

type workflowRow struct {
	ID           uuid.UUID      `db:"id"`
	Name         string         `db:"name"`
	Phases       []byte         `db:"phases"`
	InitialPhase string         `db:"initial_phase"`
	WebhookURL   sql.NullString `db:"webhook_url"`
	Description  sql.NullString `db:"description"`
	Automations  []byte         `db:"automations"`
	SLAConfig    []byte         `db:"sla_config"`
	Active       bool           `db:"active"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *workflowRow) toModel() (*model.Workflow, error) {
	w := &model.Workflow{
		ID:           r.ID,
		Name:         r.Name,
		InitialPhase: r.InitialPhase,
		WebhookURL:   r.WebhookURL.String,
		Description:  r.Description.String,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Phases, &w.Phases); err != nil {
		return nil, fmt.Errorf("decoding phases for workflow %s: %w", r.ID, err)
	}
	if len(r.Automations) > 0 && string(r.Automations) != "null" {
		w.Automations = &model.WorkflowAutomations{}
		if err := json.Unmarshal(r.Automations, w.Automations); err != nil {
			return nil, fmt.Errorf("decoding automations for workflow %s: %w", r.ID, err)
		}
	}
	if len(r.SLAConfig) > 0 && string(r.SLAConfig) != "null" {
		if err := json.Unmarshal(r.SLAConfig, &w.SLAConfig); err != nil {
			return nil, fmt.Errorf("decoding sla_config for workflow %s: %w", r.ID, err)
		}
	}
	return w, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalOrNull(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

const workflowColumns = "id, name, phases, initial_phase, webhook_url, description, automations, sla_config, active, created_at, updated_at"

// Create inserts a workflow.
func (s *WorkflowStore) Create(ctx context.Context, w *model.Workflow) error {
	phases, err := json.Marshal(w.Phases)
	if err != nil {
		return fmt.Errorf("encoding phases: %w", err)
	}
	var automations, slaConfig []byte
	if w.Automations != nil {
		if automations, err = json.Marshal(w.Automations); err != nil {
			return fmt.Errorf("encoding automations: %w", err)
		}
	}
	if w.SLAConfig != nil {
		if slaConfig, err = json.Marshal(w.SLAConfig); err != nil {
			return fmt.Errorf("encoding sla_config: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orchepy_workflows (`+workflowColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.ID, w.Name, phases, w.InitialPhase,
		nullString(w.WebhookURL), nullString(w.Description),
		automations, slaConfig, w.Active, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting workflow: %w", err)
	}
	return nil
}

// GetByID fetches one workflow, ErrNotFound when missing.
func (s *WorkflowStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Workflow, error) {
	var row workflowRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+workflowColumns+` FROM orchepy_workflows WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching workflow %s: %w", id, err)
	}
	return row.toModel()
}

// GetActiveByID fetches one workflow only if it is active.
func (s *WorkflowStore) GetActiveByID(ctx context.Context, id uuid.UUID) (*model.Workflow, error) {
	var row workflowRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+workflowColumns+` FROM orchepy_workflows WHERE id = $1 AND active = true`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching active workflow %s: %w", id, err)
	}
	return row.toModel()
}

// List returns workflows newest first, optionally only active ones.
func (s *WorkflowStore) List(ctx context.Context, activeOnly bool) ([]*model.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM orchepy_workflows ORDER BY created_at DESC`
	if activeOnly {
		query = `SELECT ` + workflowColumns + ` FROM orchepy_workflows WHERE active = true ORDER BY created_at DESC`
	}

	var rows []workflowRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}

	workflows := make([]*model.Workflow, 0, len(rows))
	for i := range rows {
		w, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return workflows, nil
}

// Update replaces the mutable columns of a workflow.
func (s *WorkflowStore) Update(ctx context.Context, w *model.Workflow) error {
	phases, err := json.Marshal(w.Phases)
	if err != nil {
		return fmt.Errorf("encoding phases: %w", err)
	}
	automations, err := marshalOrNull(w.Automations)
	if err != nil {
		return fmt.Errorf("encoding automations: %w", err)
	}
	var slaConfig []byte
	if w.SLAConfig != nil {
		if slaConfig, err = json.Marshal(w.SLAConfig); err != nil {
			return fmt.Errorf("encoding sla_config: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE orchepy_workflows
		 SET name = $1, phases = $2, initial_phase = $3, webhook_url = $4,
		     description = $5, automations = $6, sla_config = $7, active = $8, updated_at = $9
		 WHERE id = $10`,
		w.Name, phases, w.InitialPhase, nullString(w.WebhookURL), nullString(w.Description),
		automations, slaConfig, w.Active, w.UpdatedAt, w.ID)
	if err != nil {
		return fmt.Errorf("updating workflow %s: %w", w.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a workflow. Cases are never cascaded; while any still
// reference the workflow the delete fails on the foreign key.
func (s *WorkflowStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orchepy_workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting workflow %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips a workflow's active flag.
func (s *WorkflowStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orchepy_workflows SET active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("setting workflow %s active=%t: %w", id, active, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
