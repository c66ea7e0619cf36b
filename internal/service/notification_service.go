package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gracetrack-api/internal/models"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, churchID string, limit int) ([]models.Notification, error)
}

// NotificationService turns lifecycle transitions into human-readable notifications.
type NotificationService struct {
	repo    notificationStore
	changes ChangePublisher
	logger  *zap.Logger
	now     func() time.Time
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationStore, changes ChangePublisher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if changes == nil {
		changes = noopPublisher
	}
	return &NotificationService{repo: repo, changes: changes, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Emit persists the notification for a request transition and announces it on the change feed.
func (s *NotificationService) Emit(ctx context.Context, kind models.NotificationKind, req *models.EditRequest, actorEmail string) (*models.Notification, error) {
	title, message := notificationText(kind, req, actorEmail)
	n := &models.Notification{
		ChurchID:  req.ChurchID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		RequestID: req.ID,
		Entity:    req.Entity,
		Action:    req.Action,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, storeError(err, "notification not found", "failed to store notification")
	}
	s.changes.Publish(ctx, models.ChangeEvent{
		ChurchID:   req.ChurchID,
		Collection: models.CollectionNotifications,
		DocumentID: n.ID,
		Op:         models.ChangeCreated,
		At:         n.CreatedAt,
	})
	return n, nil
}

// List returns the newest notifications of a church.
func (s *NotificationService) List(ctx context.Context, churchID string, limit int) ([]models.Notification, error) {
	items, err := s.repo.List(ctx, churchID, limit)
	if err != nil {
		return nil, storeError(err, "notifications not found", "failed to list notifications")
	}
	return items, nil
}

func notificationText(kind models.NotificationKind, req *models.EditRequest, actorEmail string) (string, string) {
	action := string(req.Action)
	switch kind {
	case models.NotificationRequestApproved:
		return "Request approved", fmt.Sprintf("%s %s request approved.", req.EntityName, action)
	case models.NotificationRequestRejected:
		return "Request rejected", fmt.Sprintf("%s rejected %s %s request.", actorEmail, req.EntityName, action)
	default:
		return fmt.Sprintf("%s request", capitalize(action)),
			fmt.Sprintf("%s submitted a %s request for %s.", actorEmail, action, req.EntityName)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
