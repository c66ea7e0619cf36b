package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/gracetrack-api/internal/models"
)

// MemoryStore is an in-process document store. Every collection is reached through its own entry
// point and all of them share one mutex, so a decision append and its resolution are atomic.
type MemoryStore struct {
	mu            sync.RWMutex
	records       map[string]models.Record
	requests      map[string]*models.EditRequest
	notifications []models.Notification
	churches      map[string]models.Church
	audit         []models.AuditLog
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]models.Record),
		requests: make(map[string]*models.EditRequest),
		churches: make(map[string]models.Church),
	}
}

// Records returns the record collection entry point.
func (s *MemoryStore) Records() *MemoryRecords { return &MemoryRecords{s: s} }

// EditRequests returns the edit request entry point.
func (s *MemoryStore) EditRequests() *MemoryEditRequests { return &MemoryEditRequests{s: s} }

// Notifications returns the notification entry point.
func (s *MemoryStore) Notifications() *MemoryNotifications { return &MemoryNotifications{s: s} }

// Churches returns the church document entry point.
func (s *MemoryStore) Churches() *MemoryChurches { return &MemoryChurches{s: s} }

// Audit returns the audit trail entry point.
func (s *MemoryStore) Audit() *MemoryAudit { return &MemoryAudit{s: s} }

func recordKey(churchID string, entity models.EntityKind, id string) string {
	return churchID + "/" + string(entity) + "/" + id
}

func copyRecord(rec models.Record) models.Record {
	rec.Data = append(json.RawMessage(nil), rec.Data...)
	if rec.UpdatedBy != nil {
		v := *rec.UpdatedBy
		rec.UpdatedBy = &v
	}
	if rec.UpdatedAt != nil {
		v := *rec.UpdatedAt
		rec.UpdatedAt = &v
	}
	return rec
}

// MemoryRecords stores entity documents.
type MemoryRecords struct{ s *MemoryStore }

// Get fetches a single record.
func (m *MemoryRecords) Get(_ context.Context, churchID string, entity models.EntityKind, id string) (*models.Record, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return m.s.getRecord(churchID, entity, id)
}

// Create inserts a record.
func (m *MemoryRecords) Create(_ context.Context, rec *models.Record) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.createRecord(rec)
}

// Update replaces data and lock status of an existing record.
func (m *MemoryRecords) Update(_ context.Context, rec *models.Record) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.updateRecord(rec)
}

// SetLockStatus flips the advisory lock flag of a record.
func (m *MemoryRecords) SetLockStatus(_ context.Context, churchID string, entity models.EntityKind, id string, status models.LockStatus) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.setRecordLock(churchID, entity, id, status)
}

// Delete removes a record.
func (m *MemoryRecords) Delete(_ context.Context, churchID string, entity models.EntityKind, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.deleteRecord(churchID, entity, id)
}

// List returns the records of an entity ordered by a whitelisted document field.
func (m *MemoryRecords) List(_ context.Context, churchID string, filter models.RecordFilter) ([]models.Record, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return m.s.listRecords(churchID, filter)
}

// The helpers below expect the caller to hold mu.

func (s *MemoryStore) getRecord(churchID string, entity models.EntityKind, id string) (*models.Record, error) {
	rec, ok := s.records[recordKey(churchID, entity, id)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := copyRecord(rec)
	return &cp, nil
}

func (s *MemoryStore) createRecord(rec *models.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.LockStatus == "" {
		rec.LockStatus = models.LockStatusLocked
	}
	key := recordKey(rec.ChurchID, rec.Entity, rec.ID)
	if _, exists := s.records[key]; exists {
		return fmt.Errorf("create record: duplicate id %s", rec.ID)
	}
	s.records[key] = copyRecord(*rec)
	return nil
}

func (s *MemoryStore) updateRecord(rec *models.Record) error {
	key := recordKey(rec.ChurchID, rec.Entity, rec.ID)
	current, ok := s.records[key]
	if !ok {
		return sql.ErrNoRows
	}
	next := copyRecord(*rec)
	next.CreatedAt = current.CreatedAt
	next.CreatedBy = current.CreatedBy
	s.records[key] = next
	return nil
}

func (s *MemoryStore) setRecordLock(churchID string, entity models.EntityKind, id string, status models.LockStatus) error {
	key := recordKey(churchID, entity, id)
	rec, ok := s.records[key]
	if !ok {
		return sql.ErrNoRows
	}
	rec.LockStatus = status
	s.records[key] = rec
	return nil
}

func (s *MemoryStore) deleteRecord(churchID string, entity models.EntityKind, id string) error {
	key := recordKey(churchID, entity, id)
	if _, ok := s.records[key]; !ok {
		return sql.ErrNoRows
	}
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) listRecords(churchID string, filter models.RecordFilter) ([]models.Record, error) {
	order, ok := models.ResolveOrder(models.EntityCollection(filter.Entity), filter.OrderBy, string(filter.Direction))
	if !ok {
		return nil, fmt.Errorf("list records: unknown entity %q", filter.Entity)
	}

	type keyed struct {
		rec models.Record
		key interface{}
	}
	items := make([]keyed, 0)
	for _, rec := range s.records {
		if rec.ChurchID != churchID || rec.Entity != filter.Entity {
			continue
		}
		items = append(items, keyed{rec: copyRecord(rec), key: documentField(rec.Data, order.Field)})
	}

	desc := order.Direction == models.SortDesc
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if c := compareField(a.key, b.key); c != 0 {
			// missing values sort last in both directions
			if a.key == nil || b.key == nil {
				return b.key == nil
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		if desc {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.rec.CreatedAt.Before(b.rec.CreatedAt)
	})

	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	out := make([]models.Record, len(items))
	for i, item := range items {
		out[i] = item.rec
	}
	return out, nil
}

// memoryRecordTx is the record view handed to ApplyFunc while mu is held. It keeps the first
// version of every record it touches so a failed apply can be rolled back.
type memoryRecordTx struct {
	s      *MemoryStore
	before map[string]*models.Record
}

func (t *memoryRecordTx) touch(churchID string, entity models.EntityKind, id string) {
	key := recordKey(churchID, entity, id)
	if _, seen := t.before[key]; seen {
		return
	}
	if rec, ok := t.s.records[key]; ok {
		cp := copyRecord(rec)
		t.before[key] = &cp
		return
	}
	t.before[key] = nil
}

func (t *memoryRecordTx) rollback() {
	for key, rec := range t.before {
		if rec == nil {
			delete(t.s.records, key)
			continue
		}
		t.s.records[key] = *rec
	}
}

func (t *memoryRecordTx) Get(_ context.Context, churchID string, entity models.EntityKind, id string) (*models.Record, error) {
	return t.s.getRecord(churchID, entity, id)
}

func (t *memoryRecordTx) Create(_ context.Context, rec *models.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	t.touch(rec.ChurchID, rec.Entity, rec.ID)
	return t.s.createRecord(rec)
}

func (t *memoryRecordTx) Update(_ context.Context, rec *models.Record) error {
	t.touch(rec.ChurchID, rec.Entity, rec.ID)
	return t.s.updateRecord(rec)
}

func (t *memoryRecordTx) SetLockStatus(_ context.Context, churchID string, entity models.EntityKind, id string, status models.LockStatus) error {
	t.touch(churchID, entity, id)
	return t.s.setRecordLock(churchID, entity, id, status)
}

func (t *memoryRecordTx) Delete(_ context.Context, churchID string, entity models.EntityKind, id string) error {
	t.touch(churchID, entity, id)
	return t.s.deleteRecord(churchID, entity, id)
}

func (t *memoryRecordTx) List(_ context.Context, churchID string, filter models.RecordFilter) ([]models.Record, error) {
	return t.s.listRecords(churchID, filter)
}

func documentField(data json.RawMessage, field string) interface{} {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	switch v := doc[field].(type) {
	case float64:
		return v
	case string:
		if v == "" {
			return nil
		}
		return strings.ToLower(v)
	}
	return nil
}

func compareField(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// MemoryEditRequests stores edit requests and their approval ledger.
type MemoryEditRequests struct{ s *MemoryStore }

// Create inserts a pending edit request.
func (m *MemoryEditRequests) Create(_ context.Context, req *models.EditRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.EditRequestPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Approvals == nil {
		req.Approvals = []models.Approval{}
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, exists := m.s.requests[req.ID]; exists {
		return fmt.Errorf("create edit request: duplicate id %s", req.ID)
	}
	m.s.requests[req.ID] = req.Clone()
	return nil
}

// GetByID fetches a request within a church.
func (m *MemoryEditRequests) GetByID(_ context.Context, churchID, id string) (*models.EditRequest, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	req, ok := m.s.requests[id]
	if !ok || req.ChurchID != churchID {
		return nil, sql.ErrNoRows
	}
	return req.Clone(), nil
}

// List returns requests matching the filter, newest first.
func (m *MemoryEditRequests) List(_ context.Context, churchID string, filter models.EditRequestFilter) ([]models.EditRequest, error) {
	m.s.mu.RLock()
	out := make([]models.EditRequest, 0)
	for _, req := range m.s.requests {
		if req.ChurchID != churchID {
			continue
		}
		if filter.Entity != "" && req.Entity != filter.Entity {
			continue
		}
		if filter.RecordID != "" && req.RecordID != filter.RecordID {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, req.Status) {
			continue
		}
		out = append(out, *req.Clone())
	}
	m.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []models.EditRequest{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

// CountPending returns the number of requests awaiting decisions.
func (m *MemoryEditRequests) CountPending(_ context.Context, churchID string) (int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	count := 0
	for _, req := range m.s.requests {
		if req.ChurchID == churchID && req.Status == models.EditRequestPending {
			count++
		}
	}
	return count, nil
}

// RecordDecision appends the approval only when the request is pending and the approver has no
// entry yet, applying the optional resolution under the same lock.
func (m *MemoryEditRequests) RecordDecision(_ context.Context, params RecordDecisionParams) (*models.EditRequest, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	req, approval, err := m.pendingFor(params)
	if err != nil {
		return nil, err
	}
	appendDecision(req, approval, params)
	return req.Clone(), nil
}

// ApplyAndResolve runs apply and the resolving append under mu. A failed apply restores every
// record it touched and leaves the request untouched. apply must not call back into the store.
func (m *MemoryEditRequests) ApplyAndResolve(ctx context.Context, params RecordDecisionParams, apply ApplyFunc) (*models.EditRequest, *models.Record, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	req, approval, err := m.pendingFor(params)
	if err != nil {
		return nil, nil, err
	}
	tx := &memoryRecordTx{s: m.s, before: make(map[string]*models.Record)}
	rec, err := apply(ctx, tx)
	if err != nil {
		tx.rollback()
		return nil, nil, err
	}
	appendDecision(req, approval, params)
	return req.Clone(), rec, nil
}

func (m *MemoryEditRequests) pendingFor(params RecordDecisionParams) (*models.EditRequest, models.Approval, error) {
	approval := params.Approval
	approval.Identity = models.NormalizeIdentity(approval.Identity)
	req, ok := m.s.requests[params.ID]
	if !ok || req.ChurchID != params.ChurchID {
		return nil, approval, sql.ErrNoRows
	}
	if req.Status.Terminal() {
		return nil, approval, ErrRequestResolved
	}
	if req.HasDecisionFrom(approval.Identity) {
		return nil, approval, ErrDecisionExists
	}
	return req, approval, nil
}

func appendDecision(req *models.EditRequest, approval models.Approval, params RecordDecisionParams) {
	req.Approvals = append(req.Approvals, approval)
	if params.Resolve == nil {
		return
	}
	req.Status = *params.Resolve
	if params.ResolvedAt != nil {
		at := *params.ResolvedAt
		req.ResolvedAt = &at
	}
}

func containsStatus(list []models.EditRequestStatus, status models.EditRequestStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

// MemoryNotifications stores lifecycle notifications.
type MemoryNotifications struct{ s *MemoryStore }

// Create inserts a notification.
func (m *MemoryNotifications) Create(_ context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.notifications = append(m.s.notifications, *n)
	return nil
}

// List returns the latest notifications of a church.
func (m *MemoryNotifications) List(_ context.Context, churchID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	m.s.mu.RLock()
	out := make([]models.Notification, 0)
	for _, n := range m.s.notifications {
		if n.ChurchID == churchID {
			out = append(out, n)
		}
	}
	m.s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryChurches stores church documents.
type MemoryChurches struct{ s *MemoryStore }

func copyChurch(c models.Church) models.Church {
	if c.Preferences.Conversions != nil {
		conv := make(map[string]float64, len(c.Preferences.Conversions))
		for k, v := range c.Preferences.Conversions {
			conv[k] = v
		}
		c.Preferences.Conversions = conv
	}
	if c.Roles.LastUpdated != nil {
		t := *c.Roles.LastUpdated
		c.Roles.LastUpdated = &t
	}
	return c
}

// Get fetches a church by its owner uid.
func (m *MemoryChurches) Get(_ context.Context, id string) (*models.Church, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	c, ok := m.s.churches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := copyChurch(c)
	return &cp, nil
}

// Create inserts the church document unless it already exists.
func (m *MemoryChurches) Create(_ context.Context, church *models.Church) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, exists := m.s.churches[church.ID]; exists {
		return nil
	}
	m.s.churches[church.ID] = copyChurch(*church)
	return nil
}

// UpdateRoles replaces the approver roles.
func (m *MemoryChurches) UpdateRoles(_ context.Context, id string, roles models.ChurchRoles, updatedAt time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.churches[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Roles = roles
	c.UpdatedAt = updatedAt
	m.s.churches[id] = copyChurch(c)
	return nil
}

// UpdatePreferences replaces the display preferences.
func (m *MemoryChurches) UpdatePreferences(_ context.Context, id string, prefs models.ChurchPreferences, updatedAt time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.churches[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Preferences = prefs
	c.UpdatedAt = updatedAt
	m.s.churches[id] = copyChurch(c)
	return nil
}

// MemoryAudit keeps the audit trail in memory.
type MemoryAudit struct{ s *MemoryStore }

// CreateAuditLog stores an audit log entry.
func (m *MemoryAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.audit = append(m.s.audit, *log)
	return nil
}

// Entries returns a copy of the audit trail.
func (m *MemoryAudit) Entries() []models.AuditLog {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return append([]models.AuditLog(nil), m.s.audit...)
}
