package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gracetrack-api/internal/models"
)

// RecordStore persists entity documents.
type RecordStore interface {
	Get(ctx context.Context, churchID string, entity models.EntityKind, id string) (*models.Record, error)
	Create(ctx context.Context, rec *models.Record) error
	Update(ctx context.Context, rec *models.Record) error
	SetLockStatus(ctx context.Context, churchID string, entity models.EntityKind, id string, status models.LockStatus) error
	Delete(ctx context.Context, churchID string, entity models.EntityKind, id string) error
	List(ctx context.Context, churchID string, filter models.RecordFilter) ([]models.Record, error)
}

// ApplyFunc writes an approved change through records bound to the resolving unit of work.
type ApplyFunc func(ctx context.Context, records RecordStore) (*models.Record, error)

// EditRequestStore persists edit requests and their approvals.
type EditRequestStore interface {
	Create(ctx context.Context, req *models.EditRequest) error
	GetByID(ctx context.Context, churchID, id string) (*models.EditRequest, error)
	List(ctx context.Context, churchID string, filter models.EditRequestFilter) ([]models.EditRequest, error)
	CountPending(ctx context.Context, churchID string) (int, error)
	RecordDecision(ctx context.Context, params RecordDecisionParams) (*models.EditRequest, error)
	ApplyAndResolve(ctx context.Context, params RecordDecisionParams, apply ApplyFunc) (*models.EditRequest, *models.Record, error)
}

// NotificationStore persists workflow notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, churchID string, limit int) ([]models.Notification, error)
}

// ChurchStore persists church documents.
type ChurchStore interface {
	Get(ctx context.Context, id string) (*models.Church, error)
	Create(ctx context.Context, church *models.Church) error
	UpdateRoles(ctx context.Context, id string, roles models.ChurchRoles, updatedAt time.Time) error
	UpdatePreferences(ctx context.Context, id string, prefs models.ChurchPreferences, updatedAt time.Time) error
}

// AuditStore appends audit entries.
type AuditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Stores groups every collection of one backend.
type Stores struct {
	Records       RecordStore
	EditRequests  EditRequestStore
	Notifications NotificationStore
	Churches      ChurchStore
	Audit         AuditStore
	// Ping reports backend reachability. Nil for in-process stores.
	Ping func(ctx context.Context) error
}

// NewPostgresStores builds the Postgres-backed collections.
func NewPostgresStores(db *sqlx.DB) Stores {
	return Stores{
		Records:       NewRecordRepository(db),
		EditRequests:  NewEditRequestRepository(db),
		Notifications: NewNotificationRepository(db),
		Churches:      NewChurchRepository(db),
		Audit:         NewAuditRepository(db),
		Ping:          db.PingContext,
	}
}

// Stores exposes the in-memory collections through the shared bundle.
func (s *MemoryStore) Stores() Stores {
	return Stores{
		Records:       s.Records(),
		EditRequests:  s.EditRequests(),
		Notifications: s.Notifications(),
		Churches:      s.Churches(),
		Audit:         s.Audit(),
	}
}
