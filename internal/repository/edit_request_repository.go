package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gracetrack-api/internal/models"
)

var (
	// ErrRequestResolved is returned when a decision targets a request that is no longer pending.
	ErrRequestResolved = errors.New("edit request already resolved")
	// ErrDecisionExists is returned when the approver already has an entry in approvals.
	ErrDecisionExists = errors.New("approver already decided on edit request")
)

const editRequestColumns = `id, church_id, entity, entity_name, record_id, action, payload, status,
       requested_by, requested_by_name, approvals, created_at, resolved_at`

type editRequestRow struct {
	ID              string                   `db:"id"`
	ChurchID        string                   `db:"church_id"`
	Entity          models.EntityKind        `db:"entity"`
	EntityName      string                   `db:"entity_name"`
	RecordID        string                   `db:"record_id"`
	Action          models.EditAction        `db:"action"`
	Payload         []byte                   `db:"payload"`
	Status          models.EditRequestStatus `db:"status"`
	RequestedBy     string                   `db:"requested_by"`
	RequestedByName string                   `db:"requested_by_name"`
	Approvals       []byte                   `db:"approvals"`
	CreatedAt       time.Time                `db:"created_at"`
	ResolvedAt      *time.Time               `db:"resolved_at"`
}

func (r editRequestRow) toModel() (*models.EditRequest, error) {
	req := &models.EditRequest{
		ID:              r.ID,
		ChurchID:        r.ChurchID,
		Entity:          r.Entity,
		EntityName:      r.EntityName,
		RecordID:        r.RecordID,
		Action:          r.Action,
		Status:          r.Status,
		RequestedBy:     r.RequestedBy,
		RequestedByName: r.RequestedByName,
		Approvals:       []models.Approval{},
		CreatedAt:       r.CreatedAt,
		ResolvedAt:      r.ResolvedAt,
	}
	if len(r.Payload) > 0 {
		patch, err := models.DecodeRecordPatch(r.Entity, r.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode edit request %s payload: %w", r.ID, err)
		}
		req.Payload = patch
	}
	if len(r.Approvals) > 0 {
		if err := json.Unmarshal(r.Approvals, &req.Approvals); err != nil {
			return nil, fmt.Errorf("decode edit request %s approvals: %w", r.ID, err)
		}
	}
	return req, nil
}

// EditRequestRepository persists edit requests and their approval ledger.
type EditRequestRepository struct {
	db *sqlx.DB
}

// NewEditRequestRepository constructs the repository.
func NewEditRequestRepository(db *sqlx.DB) *EditRequestRepository {
	return &EditRequestRepository{db: db}
}

// Create inserts a pending edit request.
func (r *EditRequestRepository) Create(ctx context.Context, req *models.EditRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.EditRequestPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Approvals == nil {
		req.Approvals = []models.Approval{}
	}

	var payload *string
	if req.Payload != nil {
		raw, err := json.Marshal(req.Payload)
		if err != nil {
			return fmt.Errorf("encode edit request payload: %w", err)
		}
		s := string(raw)
		payload = &s
	}
	approvals, err := json.Marshal(req.Approvals)
	if err != nil {
		return fmt.Errorf("encode edit request approvals: %w", err)
	}

	const query = `INSERT INTO edit_requests
	(id, church_id, entity, entity_name, record_id, action, payload, status, requested_by, requested_by_name, approvals, created_at, resolved_at)
	VALUES (:id, :church_id, :entity, :entity_name, :record_id, :action, :payload, :status, :requested_by, :requested_by_name, :approvals, :created_at, :resolved_at)`
	if _, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                req.ID,
		"church_id":         req.ChurchID,
		"entity":            req.Entity,
		"entity_name":       req.EntityName,
		"record_id":         req.RecordID,
		"action":            req.Action,
		"payload":           payload,
		"status":            req.Status,
		"requested_by":      req.RequestedBy,
		"requested_by_name": req.RequestedByName,
		"approvals":         string(approvals),
		"created_at":        req.CreatedAt,
		"resolved_at":       req.ResolvedAt,
	}); err != nil {
		return fmt.Errorf("create edit request: %w", err)
	}
	return nil
}

// GetByID fetches a request within a church.
func (r *EditRequestRepository) GetByID(ctx context.Context, churchID, id string) (*models.EditRequest, error) {
	return getEditRequest(ctx, r.db, churchID, id)
}

func getEditRequest(ctx context.Context, exec sqlx.QueryerContext, churchID, id string) (*models.EditRequest, error) {
	query := `SELECT ` + editRequestColumns + ` FROM edit_requests WHERE church_id = $1 AND id = $2`
	var row editRequestRow
	if err := sqlx.GetContext(ctx, exec, &row, query, churchID, id); err != nil {
		return nil, err
	}
	return row.toModel()
}

// List returns requests matching the filter, newest first.
func (r *EditRequestRepository) List(ctx context.Context, churchID string, filter models.EditRequestFilter) ([]models.EditRequest, error) {
	builder := strings.Builder{}
	args := []interface{}{churchID}
	builder.WriteString(`SELECT ` + editRequestColumns + ` FROM edit_requests WHERE church_id = $1`)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		builder.WriteString(fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Entity != "" {
		args = append(args, filter.Entity)
		builder.WriteString(fmt.Sprintf(" AND entity = $%d", len(args)))
	}
	if filter.RecordID != "" {
		args = append(args, filter.RecordID)
		builder.WriteString(fmt.Sprintf(" AND record_id = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var rows []editRequestRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list edit requests: %w", err)
	}
	out := make([]models.EditRequest, 0, len(rows))
	for _, row := range rows {
		req, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, nil
}

// CountPending returns the number of requests awaiting decisions.
func (r *EditRequestRepository) CountPending(ctx context.Context, churchID string) (int, error) {
	const query = `SELECT COUNT(*) FROM edit_requests WHERE church_id = $1 AND status = 'pending'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, churchID); err != nil {
		return 0, fmt.Errorf("count pending edit requests: %w", err)
	}
	return count, nil
}

// RecordDecisionParams describes one approver decision and the optional resolution it causes.
type RecordDecisionParams struct {
	ChurchID   string
	ID         string
	Approval   models.Approval
	Resolve    *models.EditRequestStatus
	ResolvedAt *time.Time
}

// RecordDecision appends the approval only when the request is still pending and the approver has
// no entry yet, resolving it in the same statement when Resolve is set.
func (r *EditRequestRepository) RecordDecision(ctx context.Context, params RecordDecisionParams) (*models.EditRequest, error) {
	return recordDecision(ctx, r.db, params)
}

// ApplyAndResolve records the resolving approval and runs apply against the records table inside
// one transaction. Nothing is committed unless both succeed, and apply never runs once the request
// has left pending.
func (r *EditRequestRepository) ApplyAndResolve(ctx context.Context, params RecordDecisionParams, apply ApplyFunc) (updated *models.EditRequest, rec *models.Record, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin edit request resolution: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// the guarded update holds the row lock until commit, so a racing resolution re-checks status
	if updated, err = recordDecision(ctx, tx, params); err != nil {
		return nil, nil, err
	}
	records := &RecordRepository{db: tx}
	if rec, err = apply(ctx, records); err != nil {
		return nil, nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit edit request resolution: %w", err)
	}
	return updated, rec, nil
}

func recordDecision(ctx context.Context, exec sqlx.QueryerContext, params RecordDecisionParams) (*models.EditRequest, error) {
	params.Approval.Identity = models.NormalizeIdentity(params.Approval.Identity)
	entry, err := json.Marshal([]models.Approval{params.Approval})
	if err != nil {
		return nil, fmt.Errorf("encode approval: %w", err)
	}
	var status *string
	if params.Resolve != nil {
		s := string(*params.Resolve)
		status = &s
	}

	query := `UPDATE edit_requests
	SET approvals = approvals || $1::jsonb,
	    status = COALESCE($2, status),
	    resolved_at = COALESCE($3, resolved_at)
	WHERE church_id = $4 AND id = $5 AND status = 'pending'
	  AND NOT EXISTS (SELECT 1 FROM jsonb_array_elements(approvals) AS a WHERE lower(a->>'identity') = $6)
	RETURNING ` + editRequestColumns

	var row editRequestRow
	err = sqlx.GetContext(ctx, exec, &row, query, string(entry), status, params.ResolvedAt, params.ChurchID, params.ID, params.Approval.Identity)
	if err == nil {
		return row.toModel()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record edit request decision: %w", err)
	}

	current, getErr := getEditRequest(ctx, exec, params.ChurchID, params.ID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status.Terminal() {
		return nil, ErrRequestResolved
	}
	if current.HasDecisionFrom(params.Approval.Identity) {
		return nil, ErrDecisionExists
	}
	return nil, fmt.Errorf("record edit request decision: request %s was not updated", params.ID)
}
