package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/gracetrack-api/internal/models"
)

type editRequestLister interface {
	List(ctx context.Context, churchID string, filter models.EditRequestFilter) ([]models.EditRequest, error)
}

type notificationLister interface {
	List(ctx context.Context, churchID string, limit int) ([]models.Notification, error)
}

type churchReader interface {
	Get(ctx context.Context, id string) (*models.Church, error)
}

// SnapshotQuery selects an ordered collection of a church.
type SnapshotQuery struct {
	ChurchID   string
	Collection models.Collection
	OrderBy    string
	Direction  string
}

// SnapshotService loads the full ordered contents of a collection for change feed subscribers.
type SnapshotService struct {
	records       recordStore
	requests      editRequestLister
	notifications notificationLister
	churches      churchReader
}

// NewSnapshotService constructs the service.
func NewSnapshotService(records recordStore, requests editRequestLister, notifications notificationLister, churches churchReader) *SnapshotService {
	return &SnapshotService{records: records, requests: requests, notifications: notifications, churches: churches}
}

// Load returns the documents of the queried collection.
func (s *SnapshotService) Load(ctx context.Context, q SnapshotQuery) (interface{}, error) {
	switch q.Collection {
	case models.CollectionMembers, models.CollectionAttendance, models.CollectionFinance, models.CollectionGroups:
		items, err := s.records.List(ctx, q.ChurchID, models.RecordFilter{
			Entity:    models.EntityKind(q.Collection),
			OrderBy:   q.OrderBy,
			Direction: models.SortDirection(q.Direction),
		})
		if err != nil {
			return nil, err
		}
		return items, nil
	case models.CollectionEditRequests:
		return s.requests.List(ctx, q.ChurchID, models.EditRequestFilter{Limit: 200})
	case models.CollectionNotifications:
		return s.notifications.List(ctx, q.ChurchID, 50)
	case models.CollectionChurch:
		church, err := s.churches.Get(ctx, q.ChurchID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return church, err
	}
	return nil, fmt.Errorf("unknown collection %q", q.Collection)
}
