package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gracetrack-api/internal/dto"
	"github.com/noah-isme/gracetrack-api/internal/models"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
)

type churchStore interface {
	Get(ctx context.Context, id string) (*models.Church, error)
	Create(ctx context.Context, church *models.Church) error
	UpdateRoles(ctx context.Context, id string, roles models.ChurchRoles, updatedAt time.Time) error
	UpdatePreferences(ctx context.Context, id string, prefs models.ChurchPreferences, updatedAt time.Time) error
}

// ChurchService owns the church document: approver roles and display preferences.
type ChurchService struct {
	repo      churchStore
	cache     *CacheService
	audit     auditLogger
	changes   ChangePublisher
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewChurchService constructs the service. cache may be nil.
func NewChurchService(repo churchStore, cache *CacheService, audit auditLogger, changes ChangePublisher, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *ChurchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if changes == nil {
		changes = noopPublisher
	}
	return &ChurchService{
		repo:      repo,
		cache:     cache,
		audit:     audit,
		changes:   changes,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var errChurchMissing = errors.New("church document missing")

func rolesCacheKey(churchID string) string {
	return "church:roles:" + churchID
}

// Get returns the actor's church, creating the default document on the owner's first visit.
func (s *ChurchService) Get(ctx context.Context, actor *models.JWTClaims) (*models.Church, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	churchID := actor.Church()
	church, err := s.repo.Get(ctx, churchID)
	if err == nil {
		return church, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError(err, "church not found", "failed to load church")
	}
	if churchID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "church not found")
	}

	church = models.NewChurch(churchID, "", actor.Name(), strings.TrimSpace(actor.Email), s.now())
	if err := s.repo.Create(ctx, church); err != nil {
		return nil, storeError(err, "church not found", "failed to create church")
	}
	s.logger.Info("church document created", zap.String("church_id", churchID))
	// a concurrent first visit may have won the insert
	stored, err := s.repo.Get(ctx, churchID)
	if err != nil {
		return nil, storeError(err, "church not found", "failed to load church")
	}
	return stored, nil
}

// Roles returns the approver roles of a church. A church without a document has no approvers.
func (s *ChurchService) Roles(ctx context.Context, churchID string) (models.ChurchRoles, error) {
	roles, _, err := Remember(ctx, s.cache, rolesCacheKey(churchID), s.cacheTTL, func(ctx context.Context) (models.ChurchRoles, error) {
		church, err := s.repo.Get(ctx, churchID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ChurchRoles{}, errChurchMissing
			}
			return models.ChurchRoles{}, storeError(err, "church not found", "failed to load approver roles")
		}
		return church.Roles, nil
	})
	// not cached so the lazily created document is picked up
	if errors.Is(err, errChurchMissing) {
		return models.ChurchRoles{}, nil
	}
	return roles, err
}

// UpdateRoles assigns the manager and sub-manager approvers.
func (s *ChurchService) UpdateRoles(ctx context.Context, actor *models.JWTClaims, req dto.UpdateRolesRequest) (*models.Church, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "manager and sub-manager emails are required")
	}
	church, err := s.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	now := s.now()
	roles := models.ChurchRoles{
		ManagerEmail:    strings.TrimSpace(req.ManagerEmail),
		SubManagerEmail: strings.TrimSpace(req.SubManagerEmail),
		LastUpdated:     &now,
	}
	if err := s.repo.UpdateRoles(ctx, church.ID, roles, now); err != nil {
		return nil, storeError(err, "church not found", "failed to update roles")
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, rolesCacheKey(church.ID))
	}

	oldValues, _ := json.Marshal(church.Roles)
	newValues, _ := json.Marshal(roles)
	s.emitAudit(ctx, actor, models.AuditActionRolesUpdate, church.ID, oldValues, newValues)

	church.Roles = roles
	church.UpdatedAt = now
	s.publish(ctx, church.ID, now)
	return church, nil
}

// UpdatePreferences stores currency and theme preferences.
func (s *ChurchService) UpdatePreferences(ctx context.Context, actor *models.JWTClaims, req dto.UpdatePreferencesRequest) (*models.Church, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preferences payload")
	}
	church, err := s.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	prefs := models.ChurchPreferences{
		Currency:    req.Currency,
		Theme:       req.Theme,
		Conversions: church.Preferences.Conversions,
	}
	if len(req.Conversions) > 0 {
		prefs.Conversions = req.Conversions
	}
	if prefs.Conversions == nil {
		prefs.Conversions = models.DefaultConversions()
	}
	now := s.now()
	if err := s.repo.UpdatePreferences(ctx, church.ID, prefs, now); err != nil {
		return nil, storeError(err, "church not found", "failed to update preferences")
	}
	church.Preferences = prefs
	church.UpdatedAt = now
	s.publish(ctx, church.ID, now)
	return church, nil
}

func (s *ChurchService) publish(ctx context.Context, churchID string, at time.Time) {
	s.changes.Publish(ctx, models.ChangeEvent{
		ChurchID:   churchID,
		Collection: models.CollectionChurch,
		DocumentID: churchID,
		Op:         models.ChangeUpdated,
		At:         at,
	})
}

func (s *ChurchService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, churchID string, oldValues, newValues []byte) {
	if s.audit == nil {
		return
	}
	userID := actor.UserID
	resourceID := churchID
	log := &models.AuditLog{
		ChurchID:   churchID,
		UserID:     &userID,
		Action:     action,
		Resource:   "church",
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "church-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(fmt.Errorf("church %s: %w", churchID, err)))
	}
}
