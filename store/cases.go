package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orchehq/orchepy/model"
)

// CaseStore persists cases and their transition history.
type CaseStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewCaseStore builds a case store over the shared pool.
func NewCaseStore(db *sqlx.DB, logger *slog.Logger) *CaseStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaseStore{db: db, logger: logger}
}

type caseRow struct {
	ID             uuid.UUID      `db:"id"`
	WorkflowID     uuid.UUID      `db:"workflow_id"`
	CurrentPhase   string         `db:"current_phase"`
	PreviousPhase  sql.NullString `db:"previous_phase"`
	Data           []byte         `db:"data"`
	Status         string         `db:"status"`
	Metadata       []byte         `db:"metadata"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	CompletedAt    *time.Time     `db:"completed_at"`
	PhaseEnteredAt time.Time      `db:"phase_entered_at"`
}

func (r *caseRow) toModel() (*model.Case, error) {
	c := &model.Case{
		ID:             r.ID,
		WorkflowID:     r.WorkflowID,
		CurrentPhase:   r.CurrentPhase,
		Status:         model.CaseStatus(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		CompletedAt:    r.CompletedAt,
		PhaseEnteredAt: r.PhaseEnteredAt,
	}
	if r.PreviousPhase.Valid {
		prev := r.PreviousPhase.String
		c.PreviousPhase = &prev
	}
	if err := json.Unmarshal(r.Data, &c.Data); err != nil {
		return nil, fmt.Errorf("decoding data for case %s: %w", r.ID, err)
	}
	if len(r.Metadata) > 0 && string(r.Metadata) != "null" {
		if err := json.Unmarshal(r.Metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for case %s: %w", r.ID, err)
		}
	}
	return c, nil
}

const caseColumns = "id, workflow_id, current_phase, previous_phase, data, status, metadata, created_at, updated_at, completed_at, phase_entered_at"

// Create inserts a case.
func (s *CaseStore) Create(ctx context.Context, c *model.Case) error {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("encoding case data: %w", err)
	}
	metadata, err := marshalOrNull(c.Metadata)
	if err != nil {
		return fmt.Errorf("encoding case metadata: %w", err)
	}

	var prev sql.NullString
	if c.PreviousPhase != nil {
		prev = sql.NullString{String: *c.PreviousPhase, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orchepy_cases (`+caseColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.WorkflowID, c.CurrentPhase, prev, data, string(c.Status),
		metadata, c.CreatedAt, c.UpdatedAt, c.CompletedAt, c.PhaseEnteredAt)
	if err != nil {
		return fmt.Errorf("inserting case: %w", err)
	}
	return nil
}

// GetByID fetches one case, ErrNotFound when missing.
func (s *CaseStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Case, error) {
	var row caseRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+caseColumns+` FROM orchepy_cases WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching case %s: %w", id, err)
	}
	return row.toModel()
}

// List returns cases newest first, narrowed by the filter. Limit defaults to
// 50 and is capped at 100.
func (s *CaseStore) List(ctx context.Context, filter model.CaseFilter) ([]*model.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM orchepy_cases WHERE 1=1`
	var args []any

	if filter.WorkflowID != nil {
		args = append(args, *filter.WorkflowID)
		query += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}
	if filter.CurrentPhase != nil {
		args = append(args, *filter.CurrentPhase)
		query += fmt.Sprintf(" AND current_phase = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var rows []caseRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}

	cases := make([]*model.Case, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// UpdatePhase records a phase transition on the case row.
func (s *CaseStore) UpdatePhase(ctx context.Context, id uuid.UUID, currentPhase string, previousPhase *string) error {
	var prev sql.NullString
	if previousPhase != nil {
		prev = sql.NullString{String: *previousPhase, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE orchepy_cases
		 SET current_phase = $1, previous_phase = $2, phase_entered_at = NOW(), updated_at = NOW()
		 WHERE id = $3`,
		currentPhase, prev, id)
	if err != nil {
		return fmt.Errorf("updating case %s phase: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateData replaces the case data document.
func (s *CaseStore) UpdateData(ctx context.Context, id uuid.UUID, data map[string]any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding case data: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE orchepy_cases SET data = $1, updated_at = NOW() WHERE id = $2`, encoded, id)
	if err != nil {
		return fmt.Errorf("updating case %s data: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus changes the lifecycle status of a case.
func (s *CaseStore) UpdateStatus(ctx context.Context, id uuid.UUID, status model.CaseStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orchepy_cases SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("updating case %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateHistory appends one transition record.
func (s *CaseStore) CreateHistory(ctx context.Context, h *model.CaseHistory) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orchepy_case_history (id, case_id, from_phase, to_phase, reason, triggered_by, transitioned_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, h.CaseID, h.FromPhase, h.ToPhase, h.Reason, h.TriggeredBy, h.TransitionedAt)
	if err != nil {
		return fmt.Errorf("inserting case history: %w", err)
	}
	return nil
}

// ListHistory returns a case's transitions, most recent first.
func (s *CaseStore) ListHistory(ctx context.Context, caseID uuid.UUID) ([]*model.CaseHistory, error) {
	var rows []*model.CaseHistory
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, case_id, from_phase, to_phase, reason, triggered_by, transitioned_at
		 FROM orchepy_case_history WHERE case_id = $1 ORDER BY transitioned_at DESC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("listing history for case %s: %w", caseID, err)
	}
	return rows, nil
}

// CountByWorkflow counts the cases belonging to a workflow.
func (s *CaseStore) CountByWorkflow(ctx context.Context, workflowID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM orchepy_cases WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return 0, fmt.Errorf("counting cases for workflow %s: %w", workflowID, err)
	}
	return count, nil
}

// ApplyModifications applies a batch of deferred automation modifications in
// one transaction. The case row is locked for the duration, phase moves chain
// off the locally tracked phase, and moves to phases the workflow does not
// define are skipped. Each applied move also writes a history row attributed
// to the automation.
func (s *CaseStore) ApplyModifications(ctx context.Context, caseID uuid.UUID, workflow *model.Workflow, mods []model.CaseModification, label string) error {
	if len(mods) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var currentPhase string
	err = tx.GetContext(ctx, &currentPhase,
		`SELECT current_phase FROM orchepy_cases WHERE id = $1 FOR UPDATE`, caseID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking case %s: %w", caseID, err)
	}

	for _, mod := range mods {
		switch mod.Type {
		case model.ModMoveToPhase:
			if !workflow.HasPhase(mod.Phase) {
				s.logger.Error("Automation tried to move case to unknown phase",
					"label", label, "case_id", caseID, "phase", mod.Phase)
				continue
			}
			fromPhase := currentPhase

			_, err := tx.ExecContext(ctx,
				`UPDATE orchepy_cases
				 SET current_phase = $1, previous_phase = $2, phase_entered_at = NOW(), updated_at = NOW()
				 WHERE id = $3`,
				mod.Phase, fromPhase, caseID)
			if err != nil {
				return fmt.Errorf("applying move_to_phase for case %s: %w", caseID, err)
			}

			s.logger.Info("Automation moved case",
				"label", label, "case_id", caseID, "from", fromPhase, "to", mod.Phase)

			reason := label + " automation"
			triggeredBy := "system"
			h := model.NewCaseHistory(caseID, &fromPhase, mod.Phase, &reason, &triggeredBy)
			_, err = tx.ExecContext(ctx,
				`INSERT INTO orchepy_case_history (id, case_id, from_phase, to_phase, reason, triggered_by, transitioned_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				h.ID, h.CaseID, h.FromPhase, h.ToPhase, h.Reason, h.TriggeredBy, h.TransitionedAt)
			if err != nil {
				return fmt.Errorf("recording automation history for case %s: %w", caseID, err)
			}

			currentPhase = mod.Phase

		case model.ModSetField:
			parts := strings.Split(mod.Field, ".")
			if parts[0] != "data" || len(parts) < 2 {
				s.logger.Error("Unsupported field path for automation",
					"label", label, "case_id", caseID, "field", mod.Field)
				continue
			}
			path := "{" + strings.Join(parts[1:], ",") + "}"

			value, err := json.Marshal(mod.Value)
			if err != nil {
				return fmt.Errorf("encoding set_field value: %w", err)
			}

			_, err = tx.ExecContext(ctx,
				`UPDATE orchepy_cases SET data = jsonb_set(data, $1, $2, true), updated_at = NOW() WHERE id = $3`,
				path, value, caseID)
			if err != nil {
				return fmt.Errorf("applying set_field for case %s: %w", caseID, err)
			}

			s.logger.Info("Automation set field",
				"label", label, "case_id", caseID, "field", mod.Field)

		default:
			s.logger.Error("Unknown modification type", "type", mod.Type)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing automation modifications: %w", err)
	}
	return nil
}
