package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gracetrack-api/internal/models"
)

type churchRow struct {
	ID          string    `db:"id"`
	ChurchName  string    `db:"church_name"`
	OwnerName   string    `db:"owner_name"`
	Email       string    `db:"email"`
	Preferences []byte    `db:"preferences"`
	Roles       []byte    `db:"roles"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r churchRow) toModel() (*models.Church, error) {
	church := &models.Church{
		ID:         r.ID,
		ChurchName: r.ChurchName,
		OwnerName:  r.OwnerName,
		Email:      r.Email,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if len(r.Preferences) > 0 {
		if err := json.Unmarshal(r.Preferences, &church.Preferences); err != nil {
			return nil, fmt.Errorf("decode church %s preferences: %w", r.ID, err)
		}
	}
	if len(r.Roles) > 0 {
		if err := json.Unmarshal(r.Roles, &church.Roles); err != nil {
			return nil, fmt.Errorf("decode church %s roles: %w", r.ID, err)
		}
	}
	return church, nil
}

// ChurchRepository stores the per-tenant church document.
type ChurchRepository struct {
	db *sqlx.DB
}

// NewChurchRepository constructs the repository.
func NewChurchRepository(db *sqlx.DB) *ChurchRepository {
	return &ChurchRepository{db: db}
}

// Get fetches a church by its owner uid.
func (r *ChurchRepository) Get(ctx context.Context, id string) (*models.Church, error) {
	const query = `SELECT id, church_name, owner_name, email, preferences, roles, created_at, updated_at FROM churches WHERE id = $1`
	var row churchRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return row.toModel()
}

// Create inserts the church document unless it already exists.
func (r *ChurchRepository) Create(ctx context.Context, church *models.Church) error {
	prefs, err := json.Marshal(church.Preferences)
	if err != nil {
		return fmt.Errorf("encode church preferences: %w", err)
	}
	roles, err := json.Marshal(church.Roles)
	if err != nil {
		return fmt.Errorf("encode church roles: %w", err)
	}
	const query = `INSERT INTO churches (id, church_name, owner_name, email, preferences, roles, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8) ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, church.ID, church.ChurchName, church.OwnerName, church.Email,
		string(prefs), string(roles), church.CreatedAt, church.UpdatedAt); err != nil {
		return fmt.Errorf("create church: %w", err)
	}
	return nil
}

// UpdateRoles replaces the approver roles.
func (r *ChurchRepository) UpdateRoles(ctx context.Context, id string, roles models.ChurchRoles, updatedAt time.Time) error {
	raw, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("encode church roles: %w", err)
	}
	const query = `UPDATE churches SET roles = $2::jsonb, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, string(raw), updatedAt)
	if err != nil {
		return fmt.Errorf("update church roles: %w", err)
	}
	return expectAffected(result, "update church roles")
}

// UpdatePreferences replaces the display preferences.
func (r *ChurchRepository) UpdatePreferences(ctx context.Context, id string, prefs models.ChurchPreferences, updatedAt time.Time) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode church preferences: %w", err)
	}
	const query = `UPDATE churches SET preferences = $2::jsonb, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, string(raw), updatedAt)
	if err != nil {
		return fmt.Errorf("update church preferences: %w", err)
	}
	return expectAffected(result, "update church preferences")
}
