package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gracetrack-api/internal/models"
)

const recordColumns = `id, church_id, entity, data, lock_status, created_by, created_at, updated_by, updated_at`

var numericOrderFields = map[string]bool{"age": true, "amountGHS": true, "members": true}

type recordRow struct {
	ID         string            `db:"id"`
	ChurchID   string            `db:"church_id"`
	Entity     models.EntityKind `db:"entity"`
	Data       []byte            `db:"data"`
	LockStatus models.LockStatus `db:"lock_status"`
	CreatedBy  string            `db:"created_by"`
	CreatedAt  time.Time         `db:"created_at"`
	UpdatedBy  *string           `db:"updated_by"`
	UpdatedAt  *time.Time        `db:"updated_at"`
}

func (r recordRow) toModel() models.Record {
	return models.Record{
		ID:         r.ID,
		ChurchID:   r.ChurchID,
		Entity:     r.Entity,
		Data:       append([]byte(nil), r.Data...),
		LockStatus: r.LockStatus,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
		UpdatedBy:  r.UpdatedBy,
		UpdatedAt:  r.UpdatedAt,
	}
}

func newRecordRow(rec *models.Record) recordRow {
	return recordRow{
		ID:         rec.ID,
		ChurchID:   rec.ChurchID,
		Entity:     rec.Entity,
		Data:       []byte(rec.Data),
		LockStatus: rec.LockStatus,
		CreatedBy:  rec.CreatedBy,
		CreatedAt:  rec.CreatedAt,
		UpdatedBy:  rec.UpdatedBy,
		UpdatedAt:  rec.UpdatedAt,
	}
}

// RecordRepository stores entity documents in the records table (JSONB data column).
type RecordRepository struct {
	db sqlx.ExtContext
}

// NewRecordRepository constructs the repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Get fetches a single record.
func (r *RecordRepository) Get(ctx context.Context, churchID string, entity models.EntityKind, id string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE church_id = $1 AND entity = $2 AND id = $3`
	var row recordRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, churchID, entity, id); err != nil {
		return nil, err
	}
	rec := row.toModel()
	return &rec, nil
}

// Create inserts a record.
func (r *RecordRepository) Create(ctx context.Context, rec *models.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.LockStatus == "" {
		rec.LockStatus = models.LockStatusLocked
	}
	const query = `INSERT INTO records (` + recordColumns + `)
	VALUES (:id, :church_id, :entity, :data, :lock_status, :created_by, :created_at, :updated_by, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, newRecordRow(rec)); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// Update replaces data and lock status of an existing record.
func (r *RecordRepository) Update(ctx context.Context, rec *models.Record) error {
	const query = `UPDATE records SET data = :data, lock_status = :lock_status, updated_by = :updated_by, updated_at = :updated_at
	WHERE church_id = :church_id AND entity = :entity AND id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, newRecordRow(rec))
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return expectAffected(result, "update record")
}

// SetLockStatus flips the advisory lock flag of a record.
func (r *RecordRepository) SetLockStatus(ctx context.Context, churchID string, entity models.EntityKind, id string, status models.LockStatus) error {
	const query = `UPDATE records SET lock_status = $4 WHERE church_id = $1 AND entity = $2 AND id = $3`
	result, err := r.db.ExecContext(ctx, query, churchID, entity, id, status)
	if err != nil {
		return fmt.Errorf("set record lock: %w", err)
	}
	return expectAffected(result, "set record lock")
}

// Delete removes a record.
func (r *RecordRepository) Delete(ctx context.Context, churchID string, entity models.EntityKind, id string) error {
	const query = `DELETE FROM records WHERE church_id = $1 AND entity = $2 AND id = $3`
	result, err := r.db.ExecContext(ctx, query, churchID, entity, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return expectAffected(result, "delete record")
}

// List returns the records of an entity ordered by a whitelisted document field.
func (r *RecordRepository) List(ctx context.Context, churchID string, filter models.RecordFilter) ([]models.Record, error) {
	order, ok := models.ResolveOrder(models.EntityCollection(filter.Entity), filter.OrderBy, string(filter.Direction))
	if !ok {
		return nil, fmt.Errorf("list records: unknown entity %q", filter.Entity)
	}

	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + recordColumns + ` FROM records WHERE church_id = $1 AND entity = $2`)
	expr := fmt.Sprintf("data->>'%s'", order.Field)
	if numericOrderFields[order.Field] {
		expr = fmt.Sprintf("(%s)::numeric", expr)
	}
	builder.WriteString(fmt.Sprintf(" ORDER BY %s %s NULLS LAST, created_at %s", expr, strings.ToUpper(string(order.Direction)), strings.ToUpper(string(order.Direction))))
	if filter.Limit > 0 {
		builder.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}

	var rows []recordRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, builder.String(), churchID, filter.Entity); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toModel())
	}
	return records, nil
}

func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
