package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/gracetrack-api/internal/models"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
)

// ChangePublisher propagates committed document changes to subscribers.
type ChangePublisher interface {
	Publish(ctx context.Context, event models.ChangeEvent)
}

// ChangePublisherFunc adapts a function to ChangePublisher.
type ChangePublisherFunc func(ctx context.Context, event models.ChangeEvent)

// Publish implements ChangePublisher.
func (f ChangePublisherFunc) Publish(ctx context.Context, event models.ChangeEvent) {
	f(ctx, event)
}

var noopPublisher = ChangePublisherFunc(func(context.Context, models.ChangeEvent) {})

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// storeError translates repository failures: missing rows become NotFound, typed errors pass
// through and anything else is a retryable store failure.
func storeError(err error, notFound string, unavailable string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Unavailable(err, unavailable)
}
