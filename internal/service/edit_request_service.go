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
	"github.com/noah-isme/gracetrack-api/internal/repository"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
)

type editRequestStore interface {
	Create(ctx context.Context, req *models.EditRequest) error
	GetByID(ctx context.Context, churchID, id string) (*models.EditRequest, error)
	List(ctx context.Context, churchID string, filter models.EditRequestFilter) ([]models.EditRequest, error)
	CountPending(ctx context.Context, churchID string) (int, error)
	RecordDecision(ctx context.Context, params repository.RecordDecisionParams) (*models.EditRequest, error)
	ApplyAndResolve(ctx context.Context, params repository.RecordDecisionParams, apply repository.ApplyFunc) (*models.EditRequest, *models.Record, error)
}

type approverPolicy interface {
	Roles(ctx context.Context, churchID string) (models.ChurchRoles, error)
}

type requestNotifier interface {
	Emit(ctx context.Context, kind models.NotificationKind, req *models.EditRequest, actorEmail string) (*models.Notification, error)
}

// RequestLocker serialises decisions on one request across instances.
type RequestLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (repository.Unlock, error)
}

// EditRequestConfig tunes concurrency guards of the workflow.
type EditRequestConfig struct {
	// StrictLock rejects a new request while the target record is already pending.
	StrictLock     bool
	LockTTL        time.Duration
	LockRetries    int
	LockRetryDelay time.Duration
}

// EditRequestService runs the dual-approval lifecycle of record updates and deletions.
type EditRequestService struct {
	requests  editRequestStore
	records   recordStore
	policy    approverPolicy
	notifier  requestNotifier
	audit     auditLogger
	changes   ChangePublisher
	locker    RequestLocker
	appliers  map[models.EntityKind]ChangeApplier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	cfg       EditRequestConfig
}

// EditRequestServiceOption configures the service.
type EditRequestServiceOption func(*EditRequestService)

// WithEditRequestAppliers overrides appliers keyed by entity.
func WithEditRequestAppliers(appliers map[models.EntityKind]ChangeApplier) EditRequestServiceOption {
	return func(s *EditRequestService) {
		for k, v := range appliers {
			s.appliers[k] = v
		}
	}
}

// WithEditRequestNotifier sets the notification emitter.
func WithEditRequestNotifier(notifier requestNotifier) EditRequestServiceOption {
	return func(s *EditRequestService) { s.notifier = notifier }
}

// WithEditRequestAudit sets the audit trail writer.
func WithEditRequestAudit(audit auditLogger) EditRequestServiceOption {
	return func(s *EditRequestService) { s.audit = audit }
}

// WithEditRequestChanges sets the change feed publisher.
func WithEditRequestChanges(changes ChangePublisher) EditRequestServiceOption {
	return func(s *EditRequestService) {
		if changes != nil {
			s.changes = changes
		}
	}
}

// WithEditRequestLocker replaces the in-process request lock.
func WithEditRequestLocker(locker RequestLocker) EditRequestServiceOption {
	return func(s *EditRequestService) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithEditRequestMetrics enables workflow counters.
func WithEditRequestMetrics(metrics *MetricsService) EditRequestServiceOption {
	return func(s *EditRequestService) { s.metrics = metrics }
}

// WithEditRequestClock overrides the time source.
func WithEditRequestClock(now func() time.Time) EditRequestServiceOption {
	return func(s *EditRequestService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEditRequestConfig sets lock behaviour.
func WithEditRequestConfig(cfg EditRequestConfig) EditRequestServiceOption {
	return func(s *EditRequestService) {
		if cfg.LockTTL <= 0 {
			cfg.LockTTL = s.cfg.LockTTL
		}
		if cfg.LockRetries <= 0 {
			cfg.LockRetries = s.cfg.LockRetries
		}
		if cfg.LockRetryDelay < 0 {
			cfg.LockRetryDelay = 0
		}
		s.cfg = cfg
	}
}

// NewEditRequestService constructs the service with in-process defaults.
func NewEditRequestService(requests editRequestStore, records recordStore, policy approverPolicy, validate *validator.Validate, logger *zap.Logger, opts ...EditRequestServiceOption) *EditRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &EditRequestService{
		requests:  requests,
		records:   records,
		policy:    policy,
		changes:   noopPublisher,
		locker:    repository.NewMemoryLocker(),
		appliers:  DefaultChangeAppliers(validate, logger),
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		cfg: EditRequestConfig{
			LockTTL:        10 * time.Second,
			LockRetries:    3,
			LockRetryDelay: 100 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateRequest queues an update or deletion of an existing record for dual approval.
func (s *EditRequestService) CreateRequest(ctx context.Context, churchID string, req dto.CreateEditRequest, actor *models.JWTClaims) (*models.EditRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "entity, action and recordId are required")
	}
	entity, err := models.ParseEntityKind(req.Entity)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	action := models.EditAction(req.Action)
	recordID := strings.TrimSpace(req.RecordID)

	patch, err := s.decodePayload(entity, action, req.Payload)
	if err != nil {
		return nil, err
	}

	if s.cfg.StrictLock {
		if err := s.ensureNotPending(ctx, churchID, entity, recordID); err != nil {
			return nil, err
		}
	}

	request := &models.EditRequest{
		ChurchID:        churchID,
		Entity:          entity,
		EntityName:      patch.EntityName(recordID),
		RecordID:        recordID,
		Action:          action,
		Payload:         patch,
		Status:          models.EditRequestPending,
		RequestedBy:     strings.TrimSpace(actor.Email),
		RequestedByName: actor.Name(),
		Approvals:       []models.Approval{},
		CreatedAt:       s.now(),
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, storeError(err, "edit request not found", "failed to create edit request")
	}

	s.notify(ctx, models.NotificationRequestCreated, request, request.RequestedBy)

	if err := s.records.SetLockStatus(ctx, churchID, entity, recordID, models.LockStatusPending); err != nil {
		s.logger.Warn("unable to flag record as pending",
			zap.String("request_id", request.ID),
			zap.String("entity", string(entity)),
			zap.String("record_id", recordID),
			zap.Error(err))
	} else {
		s.publish(ctx, churchID, models.EntityCollection(entity), recordID, models.ChangeUpdated)
	}

	s.emitAudit(ctx, actor, models.AuditActionEditRequestCreate, request, nil, mustJSON(request))
	s.metrics.RecordEditRequestCreated(string(entity), string(action))
	s.publish(ctx, churchID, models.CollectionEditRequests, request.ID, models.ChangeCreated)

	s.logger.Info("edit request created",
		zap.String("request_id", request.ID),
		zap.String("church_id", churchID),
		zap.String("entity", string(entity)),
		zap.String("action", string(action)))
	return request, nil
}

// Get returns a single request.
func (s *EditRequestService) Get(ctx context.Context, churchID, id string) (*models.EditRequest, error) {
	req, err := s.requests.GetByID(ctx, churchID, id)
	if err != nil {
		return nil, storeError(err, "edit request not found", "failed to load edit request")
	}
	return req, nil
}

// List returns requests matching the query, newest first.
func (s *EditRequestService) List(ctx context.Context, churchID string, query dto.EditRequestQuery) ([]models.EditRequest, error) {
	filter := models.EditRequestFilter{
		Status:   query.Status,
		RecordID: strings.TrimSpace(query.RecordID),
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
	if query.Entity != "" {
		entity, err := models.ParseEntityKind(query.Entity)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		filter.Entity = entity
	}
	for _, status := range filter.Status {
		switch status {
		case models.EditRequestPending, models.EditRequestApproved, models.EditRequestRejected:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}
	items, err := s.requests.List(ctx, churchID, filter)
	if err != nil {
		return nil, storeError(err, "edit requests not found", "failed to list edit requests")
	}
	return items, nil
}

// SubmitDecision records an approver's verdict. A rejection resolves the request at once; an
// approval resolves it only when every required approver has approved, after the change is applied.
func (s *EditRequestService) SubmitDecision(ctx context.Context, churchID, requestID string, decision models.Decision, actor *models.JWTClaims) (*dto.DecisionResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if decision != models.DecisionApproved && decision != models.DecisionRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approve or reject")
	}

	roles, err := s.policy.Roles(ctx, churchID)
	if err != nil {
		return nil, err
	}
	identity := actor.Identity()
	if !roles.IsApprover(identity) {
		s.metrics.RecordDecision("unauthorized")
		return nil, s.unauthorized(ctx, churchID, requestID)
	}

	unlock, err := s.acquire(ctx, churchID, requestID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			s.logger.Warn("failed to release edit request lock", zap.String("request_id", requestID), zap.Error(err))
		}
	}()

	req, err := s.requests.GetByID(ctx, churchID, requestID)
	if err != nil {
		return nil, storeError(err, "edit request not found", "failed to load edit request")
	}
	if req.Status.Terminal() {
		s.metrics.RecordDecision(string(dto.DecisionNoop))
		return &dto.DecisionResult{Request: req, Outcome: dto.DecisionNoop}, nil
	}
	if req.HasDecisionFrom(identity) {
		return nil, s.duplicate(req, identity)
	}

	approval := models.Approval{Identity: identity, Decision: decision, Timestamp: s.now()}
	if decision == models.DecisionRejected {
		return s.reject(ctx, req, approval, actor)
	}
	return s.approve(ctx, req, approval, roles, actor)
}

func (s *EditRequestService) reject(ctx context.Context, req *models.EditRequest, approval models.Approval, actor *models.JWTClaims) (*dto.DecisionResult, error) {
	status := models.EditRequestRejected
	resolvedAt := approval.Timestamp
	updated, err := s.requests.RecordDecision(ctx, repository.RecordDecisionParams{
		ChurchID:   req.ChurchID,
		ID:         req.ID,
		Approval:   approval,
		Resolve:    &status,
		ResolvedAt: &resolvedAt,
	})
	if err != nil {
		return s.decisionConflict(ctx, req, approval.Identity, err)
	}

	if err := s.records.SetLockStatus(ctx, req.ChurchID, req.Entity, req.RecordID, models.LockStatusLocked); err != nil {
		s.logger.Warn("unable to relock record after rejection",
			zap.String("request_id", req.ID),
			zap.String("record_id", req.RecordID),
			zap.Error(err))
	} else {
		s.publish(ctx, req.ChurchID, models.EntityCollection(req.Entity), req.RecordID, models.ChangeUpdated)
	}

	s.notify(ctx, models.NotificationRequestRejected, updated, strings.TrimSpace(actor.Email))
	s.emitAudit(ctx, actor, models.AuditActionEditRequestDecision, updated, nil, mustJSON(approval))
	s.metrics.RecordDecision(string(dto.DecisionRejected))
	s.publish(ctx, req.ChurchID, models.CollectionEditRequests, req.ID, models.ChangeUpdated)
	return &dto.DecisionResult{Request: updated, Outcome: dto.DecisionRejected}, nil
}

func (s *EditRequestService) approve(ctx context.Context, req *models.EditRequest, approval models.Approval, roles models.ChurchRoles, actor *models.JWTClaims) (*dto.DecisionResult, error) {
	approvals := req.WithDecision(approval)
	if !roles.Unanimous(approvals) {
		updated, err := s.requests.RecordDecision(ctx, repository.RecordDecisionParams{
			ChurchID: req.ChurchID,
			ID:       req.ID,
			Approval: approval,
		})
		if err != nil {
			return s.decisionConflict(ctx, req, approval.Identity, err)
		}
		s.emitAudit(ctx, actor, models.AuditActionEditRequestDecision, updated, nil, mustJSON(approval))
		s.metrics.RecordDecision(string(dto.DecisionRecorded))
		s.publish(ctx, req.ChurchID, models.CollectionEditRequests, req.ID, models.ChangeUpdated)
		return &dto.DecisionResult{Request: updated, Outcome: dto.DecisionRecorded, Awaiting: roles.Awaiting(updated.Approvals)}, nil
	}

	applier := s.appliers[req.Entity]
	if applier == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("unsupported entity: %s", req.Entity))
	}

	// the change and the resolving approval commit together or not at all
	status := models.EditRequestApproved
	resolvedAt := approval.Timestamp
	actorEmail := strings.TrimSpace(actor.Email)
	updated, record, err := s.requests.ApplyAndResolve(ctx, repository.RecordDecisionParams{
		ChurchID:   req.ChurchID,
		ID:         req.ID,
		Approval:   approval,
		Resolve:    &status,
		ResolvedAt: &resolvedAt,
	}, func(ctx context.Context, records repository.RecordStore) (*models.Record, error) {
		return applier.Apply(ctx, records, req, actorEmail, approval.Timestamp)
	})
	if err != nil {
		var appErr *appErrors.Error
		if !errors.As(err, &appErr) {
			return s.decisionConflict(ctx, req, approval.Identity, err)
		}
		s.logger.Warn("failed to apply approved change",
			zap.String("request_id", req.ID),
			zap.String("entity", string(req.Entity)),
			zap.String("record_id", req.RecordID),
			zap.Error(err))
		return nil, withRequestDetails(err, req)
	}

	newValues := []byte("null")
	if record != nil {
		newValues = record.Data
	}
	s.emitAudit(ctx, actor, models.AuditActionEditRequestApply, updated, nil, newValues)
	s.emitAudit(ctx, actor, models.AuditActionEditRequestDecision, updated, nil, mustJSON(approval))
	s.metrics.RecordApplied(string(req.Entity), string(req.Action))
	s.metrics.RecordDecision(string(dto.DecisionApproved))

	op := models.ChangeUpdated
	if req.Action == models.EditActionDelete {
		op = models.ChangeDeleted
	}
	s.publish(ctx, req.ChurchID, models.EntityCollection(req.Entity), req.RecordID, op)
	s.notify(ctx, models.NotificationRequestApproved, updated, strings.TrimSpace(actor.Email))
	s.publish(ctx, req.ChurchID, models.CollectionEditRequests, req.ID, models.ChangeUpdated)

	s.logger.Info("edit request approved",
		zap.String("request_id", req.ID),
		zap.String("entity", string(req.Entity)),
		zap.String("action", string(req.Action)))
	return &dto.DecisionResult{Request: updated, Outcome: dto.DecisionApproved}, nil
}

// decisionConflict maps a refused ledger append. A resolution that raced ahead turns into a no-op.
func (s *EditRequestService) decisionConflict(ctx context.Context, req *models.EditRequest, identity string, err error) (*dto.DecisionResult, error) {
	switch {
	case errors.Is(err, repository.ErrDecisionExists):
		return nil, s.duplicate(req, identity)
	case errors.Is(err, repository.ErrRequestResolved):
		current, getErr := s.requests.GetByID(ctx, req.ChurchID, req.ID)
		if getErr != nil {
			return nil, storeError(getErr, "edit request not found", "failed to load edit request")
		}
		s.metrics.RecordDecision(string(dto.DecisionNoop))
		return &dto.DecisionResult{Request: current, Outcome: dto.DecisionNoop}, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "edit request not found")
	}
	return nil, withRequestDetails(appErrors.Unavailable(err, "failed to record decision"), req)
}

// unauthorized attaches entity and action when the request can be read. The read never gates
// the refusal.
func (s *EditRequestService) unauthorized(ctx context.Context, churchID, requestID string) error {
	req, err := s.requests.GetByID(ctx, churchID, requestID)
	if err != nil {
		return appErrors.WithDetails(appErrors.ErrUnauthorizedApprover, map[string]interface{}{"requestId": requestID})
	}
	return withRequestDetails(appErrors.ErrUnauthorizedApprover, req)
}

func (s *EditRequestService) duplicate(req *models.EditRequest, identity string) error {
	s.logger.Warn("duplicate decision ignored", zap.String("request_id", req.ID), zap.String("approver", identity))
	s.metrics.RecordDecision("duplicate")
	return withRequestDetails(appErrors.ErrDuplicateDecision, req)
}

func (s *EditRequestService) acquire(ctx context.Context, churchID, requestID string) (repository.Unlock, error) {
	key := "edit-request:" + churchID + ":" + requestID
	for attempt := 0; attempt < s.cfg.LockRetries; attempt++ {
		unlock, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, repository.ErrLockHeld) {
			return nil, appErrors.Unavailable(err, "failed to lock edit request")
		}
		if attempt == s.cfg.LockRetries-1 {
			break
		}
		timer := time.NewTimer(s.cfg.LockRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, appErrors.Unavailable(ctx.Err(), "edit request lock wait cancelled")
		case <-timer.C:
		}
	}
	return nil, appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrConflict, "edit request is being decided by another approver, try again"),
		map[string]interface{}{"requestId": requestID},
	)
}

func (s *EditRequestService) decodePayload(entity models.EntityKind, action models.EditAction, raw json.RawMessage) (*models.RecordPatch, error) {
	patch, err := models.DecodeRecordPatch(entity, raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload for "+string(entity))
	}
	switch action {
	case models.EditActionDelete:
		if patch != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "delete requests must not carry a payload")
		}
		return nil, nil
	case models.EditActionUpdate:
		if patch.Empty() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "update requests require a non-empty payload")
		}
		if err := s.validator.Struct(patch.Fields()); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload for "+string(entity))
		}
		return patch, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "action must be update or delete")
}

func (s *EditRequestService) ensureNotPending(ctx context.Context, churchID string, entity models.EntityKind, recordID string) error {
	rec, err := s.records.Get(ctx, churchID, entity, recordID)
	if err != nil {
		return storeError(err, fmt.Sprintf("%s record %s not found", entity, recordID), "failed to load record")
	}
	if rec.LockStatus == models.LockStatusPending {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrConflict, "record already has a pending edit request"),
			map[string]interface{}{"entity": entity, "recordId": recordID},
		)
	}
	return nil
}

func (s *EditRequestService) notify(ctx context.Context, kind models.NotificationKind, req *models.EditRequest, actorEmail string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Emit(ctx, kind, req, actorEmail); err != nil {
		s.logger.Warn("failed to emit notification",
			zap.String("kind", string(kind)),
			zap.String("request_id", req.ID),
			zap.Error(err))
	}
}

func (s *EditRequestService) publish(ctx context.Context, churchID string, collection models.Collection, documentID string, op models.ChangeOp) {
	s.changes.Publish(ctx, models.ChangeEvent{
		ChurchID:   churchID,
		Collection: collection,
		DocumentID: documentID,
		Op:         op,
		At:         s.now(),
	})
}

func (s *EditRequestService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, req *models.EditRequest, oldValues, newValues []byte) {
	if s.audit == nil || req == nil {
		return
	}
	userID := actor.UserID
	resourceID := req.ID
	log := &models.AuditLog{
		ChurchID:   req.ChurchID,
		UserID:     &userID,
		Action:     action,
		Resource:   string(req.Entity),
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "edit-request-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func withRequestDetails(err error, req *models.EditRequest) error {
	appErr := appErrors.FromError(err)
	return appErrors.WithDetails(appErr, map[string]interface{}{
		"requestId": req.ID,
		"entity":    req.Entity,
		"action":    req.Action,
	})
}

func mustJSON(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
