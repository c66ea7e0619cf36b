package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gracetrack-api/internal/models"
	"github.com/noah-isme/gracetrack-api/internal/repository"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
)

type recordStore interface {
	Get(ctx context.Context, churchID string, entity models.EntityKind, id string) (*models.Record, error)
	Create(ctx context.Context, rec *models.Record) error
	Update(ctx context.Context, rec *models.Record) error
	SetLockStatus(ctx context.Context, churchID string, entity models.EntityKind, id string, status models.LockStatus) error
	Delete(ctx context.Context, churchID string, entity models.EntityKind, id string) error
	List(ctx context.Context, churchID string, filter models.RecordFilter) ([]models.Record, error)
}

// ChangeApplier applies an approved edit request through records, which are bound to the unit of
// work that resolves the request. It returns the updated record, or nil when the record was deleted.
type ChangeApplier interface {
	Apply(ctx context.Context, records repository.RecordStore, req *models.EditRequest, actor string, at time.Time) (*models.Record, error)
}

// ChangeApplierFunc allows using plain functions.
type ChangeApplierFunc func(ctx context.Context, records repository.RecordStore, req *models.EditRequest, actor string, at time.Time) (*models.Record, error)

// Apply implements ChangeApplier.
func (f ChangeApplierFunc) Apply(ctx context.Context, records repository.RecordStore, req *models.EditRequest, actor string, at time.Time) (*models.Record, error) {
	return f(ctx, records, req, actor, at)
}

// RecordChangeApplier merges typed patches into, or deletes, records of one entity kind.
// Applying the same request twice converges to the same record state.
type RecordChangeApplier struct {
	entity    models.EntityKind
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRecordChangeApplier constructs an applier for entity.
func NewRecordChangeApplier(entity models.EntityKind, validate *validator.Validate, logger *zap.Logger) *RecordChangeApplier {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordChangeApplier{entity: entity, validator: validate, logger: logger}
}

// DefaultChangeAppliers registers one applier per entity kind.
func DefaultChangeAppliers(validate *validator.Validate, logger *zap.Logger) map[models.EntityKind]ChangeApplier {
	appliers := make(map[models.EntityKind]ChangeApplier, len(models.EntityKinds))
	for _, kind := range models.EntityKinds {
		appliers[kind] = NewRecordChangeApplier(kind, validate, logger)
	}
	return appliers
}

// Apply implements ChangeApplier.
func (a *RecordChangeApplier) Apply(ctx context.Context, records repository.RecordStore, req *models.EditRequest, actor string, at time.Time) (*models.Record, error) {
	if req.Entity != a.entity {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("applier for %s cannot apply %s request", a.entity, req.Entity))
	}
	switch req.Action {
	case models.EditActionDelete:
		return nil, a.delete(ctx, records, req)
	case models.EditActionUpdate:
		return a.update(ctx, records, req, actor, at)
	}
	return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("unsupported action %q", req.Action))
}

func (a *RecordChangeApplier) delete(ctx context.Context, records repository.RecordStore, req *models.EditRequest) error {
	err := records.Delete(ctx, req.ChurchID, a.entity, req.RecordID)
	if errors.Is(err, sql.ErrNoRows) {
		a.logger.Info("record already removed", zap.String("entity", string(a.entity)), zap.String("record_id", req.RecordID))
		return nil
	}
	return storeError(err, "record not found", "failed to delete record")
}

func (a *RecordChangeApplier) update(ctx context.Context, records repository.RecordStore, req *models.EditRequest, actor string, at time.Time) (*models.Record, error) {
	if req.Payload == nil || req.Payload.Entity != a.entity {
		return nil, appErrors.Clone(appErrors.ErrValidation, "update request carries no patch for "+string(a.entity))
	}
	rec, err := records.Get(ctx, req.ChurchID, a.entity, req.RecordID)
	if err != nil {
		return nil, storeError(err, fmt.Sprintf("%s record %s not found", a.entity, req.RecordID), "failed to load record")
	}
	merged, err := req.Payload.Merge(rec.Data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to merge record")
	}
	doc, err := models.DecodeEntityDocument(a.entity, merged)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode merged record")
	}
	if err := a.validator.Struct(doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "merged record is invalid")
	}

	updatedBy := actor
	updatedAt := at
	rec.Data = merged
	rec.LockStatus = models.LockStatusLocked
	rec.UpdatedBy = &updatedBy
	rec.UpdatedAt = &updatedAt
	if err := records.Update(ctx, rec); err != nil {
		return nil, storeError(err, fmt.Sprintf("%s record %s not found", a.entity, req.RecordID), "failed to update record")
	}
	return rec, nil
}
