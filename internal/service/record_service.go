package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gracetrack-api/internal/dto"
	"github.com/noah-isme/gracetrack-api/internal/models"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
)

// RecordService handles direct record creation and reads. Existing records only change through edit requests.
type RecordService struct {
	records   recordStore
	audit     auditLogger
	changes   ChangePublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRecordService constructs the service.
func NewRecordService(records recordStore, audit auditLogger, changes ChangePublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RecordService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if changes == nil {
		changes = noopPublisher
	}
	return &RecordService{
		records:   records,
		audit:     audit,
		changes:   changes,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a brand-new record, born locked.
func (s *RecordService) Create(ctx context.Context, churchID, entityRaw string, data json.RawMessage, actor *models.JWTClaims) (*models.Record, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	entity, err := models.ParseEntityKind(entityRaw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, err.Error())
	}
	doc, err := models.DecodeEntityDocument(entity, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid "+string(entity)+" document")
	}
	if err := s.validator.Struct(doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid "+string(entity)+" document")
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode record")
	}

	rec := &models.Record{
		ChurchID:   churchID,
		Entity:     entity,
		Data:       normalized,
		LockStatus: models.LockStatusLocked,
		CreatedBy:  strings.TrimSpace(actor.Email),
		CreatedAt:  s.now(),
	}
	start := time.Now()
	err = s.records.Create(ctx, rec)
	s.metrics.ObserveDBQuery("record_create", time.Since(start))
	if err != nil {
		return nil, storeError(err, "record not found", "failed to create record")
	}

	if s.audit != nil {
		userID := actor.UserID
		resourceID := rec.ID
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			ChurchID:   churchID,
			UserID:     &userID,
			Action:     models.AuditActionRecordCreate,
			Resource:   string(entity),
			ResourceID: &resourceID,
			NewValues:  normalized,
			IPAddress:  "system",
			UserAgent:  "record-service",
		}); err != nil {
			s.logger.Warn("failed to persist audit log", zap.Error(err))
		}
	}

	s.changes.Publish(ctx, models.ChangeEvent{
		ChurchID:   churchID,
		Collection: models.EntityCollection(entity),
		DocumentID: rec.ID,
		Op:         models.ChangeCreated,
		At:         rec.CreatedAt,
	})
	return rec, nil
}

// Get returns a single record.
func (s *RecordService) Get(ctx context.Context, churchID, entityRaw, id string) (*models.Record, error) {
	entity, err := models.ParseEntityKind(entityRaw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, err.Error())
	}
	rec, err := s.records.Get(ctx, churchID, entity, id)
	if err != nil {
		return nil, storeError(err, string(entity)+" record not found", "failed to load record")
	}
	return rec, nil
}

// List returns the records of an entity ordered by a whitelisted field.
func (s *RecordService) List(ctx context.Context, churchID, entityRaw string, query dto.RecordQuery) ([]models.Record, error) {
	entity, err := models.ParseEntityKind(entityRaw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, err.Error())
	}
	start := time.Now()
	items, err := s.records.List(ctx, churchID, models.RecordFilter{
		Entity:    entity,
		OrderBy:   query.OrderBy,
		Direction: models.SortDirection(strings.ToLower(query.Direction)),
		Limit:     query.Limit,
	})
	s.metrics.ObserveDBQuery("record_list", time.Since(start))
	if err != nil {
		return nil, storeError(err, "records not found", "failed to list records")
	}
	return items, nil
}
