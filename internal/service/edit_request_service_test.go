package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gracetrack-api/internal/dto"
	"github.com/noah-isme/gracetrack-api/internal/models"
	"github.com/noah-isme/gracetrack-api/internal/repository"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
)

const testChurch = "church-1"

var (
	owner      = &models.JWTClaims{UserID: testChurch, Email: "owner@grace.org", DisplayName: "Pastor Ama"}
	manager    = &models.JWTClaims{UserID: "u-manager", Email: "manager@grace.org", ChurchID: testChurch}
	subManager = &models.JWTClaims{UserID: "u-sub", Email: "sub@grace.org", ChurchID: testChurch}
	outsider   = &models.JWTClaims{UserID: "u-usher", Email: "usher@grace.org", ChurchID: testChurch}
)

type workflowFixture struct {
	store   *repository.MemoryStore
	svc     *EditRequestService
	mu      sync.Mutex
	applied int
	events  []models.ChangeEvent
}

func (f *workflowFixture) appliedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied
}

func (f *workflowFixture) eventsFor(collection models.Collection) []models.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChangeEvent
	for _, e := range f.events {
		if e.Collection == collection {
			out = append(out, e)
		}
	}
	return out
}

func newWorkflow(t *testing.T, roles models.ChurchRoles, extra ...EditRequestServiceOption) *workflowFixture {
	t.Helper()
	ctx := context.Background()
	f := &workflowFixture{store: repository.NewMemoryStore()}

	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	church := models.NewChurch(testChurch, "Grace Chapel", "Pastor Ama", "owner@grace.org", now)
	church.Roles = roles
	require.NoError(t, f.store.Churches().Create(ctx, church))

	changes := ChangePublisherFunc(func(_ context.Context, e models.ChangeEvent) {
		f.mu.Lock()
		f.events = append(f.events, e)
		f.mu.Unlock()
	})
	records := f.store.Records()
	policy := NewChurchService(f.store.Churches(), nil, nil, nil, nil, nil, time.Minute)
	notifier := NewNotificationService(f.store.Notifications(), changes, nil)

	counting := make(map[models.EntityKind]ChangeApplier, len(models.EntityKinds))
	for kind, base := range DefaultChangeAppliers(nil, nil) {
		base := base
		counting[kind] = ChangeApplierFunc(func(ctx context.Context, records repository.RecordStore, req *models.EditRequest, actor string, at time.Time) (*models.Record, error) {
			f.mu.Lock()
			f.applied++
			f.mu.Unlock()
			return base.Apply(ctx, records, req, actor, at)
		})
	}

	opts := []EditRequestServiceOption{
		WithEditRequestAppliers(counting),
		WithEditRequestNotifier(notifier),
		WithEditRequestAudit(f.store.Audit()),
		WithEditRequestChanges(changes),
		WithEditRequestClock(func() time.Time { return now }),
		WithEditRequestConfig(EditRequestConfig{LockRetries: 20, LockRetryDelay: time.Millisecond}),
	}
	opts = append(opts, extra...)
	f.svc = NewEditRequestService(f.store.EditRequests(), records, policy, nil, nil, opts...)
	return f
}

func dualRoles() models.ChurchRoles {
	return models.ChurchRoles{ManagerEmail: "manager@grace.org", SubManagerEmail: "Sub@Grace.org"}
}

func seedRecord(t *testing.T, f *workflowFixture, entity models.EntityKind, id, data string) {
	t.Helper()
	require.NoError(t, f.store.Records().Create(context.Background(), &models.Record{
		ID:         id,
		ChurchID:   testChurch,
		Entity:     entity,
		Data:       json.RawMessage(data),
		LockStatus: models.LockStatusLocked,
		CreatedBy:  "owner@grace.org",
	}))
}

func financeAmount(t *testing.T, f *workflowFixture, id string) (float64, models.LockStatus) {
	t.Helper()
	rec, err := f.store.Records().Get(context.Background(), testChurch, models.EntityFinance, id)
	require.NoError(t, err)
	var entry models.FinanceEntry
	require.NoError(t, json.Unmarshal(rec.Data, &entry))
	return entry.AmountGHS, rec.LockStatus
}

func createFinanceUpdate(t *testing.T, f *workflowFixture) *models.EditRequest {
	t.Helper()
	seedRecord(t, f, models.EntityFinance, "f1", `{"date":"2024-03-03","category":"Tithe","amountGHS":120}`)
	req, err := f.svc.CreateRequest(context.Background(), testChurch, dto.CreateEditRequest{
		Entity:   "finance",
		Action:   "update",
		RecordID: "f1",
		Payload:  json.RawMessage(`{"amountGHS":500}`),
	}, owner)
	require.NoError(t, err)
	return req
}

func TestEditRequestCreateFlagsRecordAndNotifies(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	req := createFinanceUpdate(t, f)

	assert.Equal(t, models.EditRequestPending, req.Status)
	assert.Equal(t, "f1", req.EntityName)
	assert.Empty(t, req.Approvals)
	assert.Equal(t, "Pastor Ama", req.RequestedByName)

	_, lock := financeAmount(t, f, "f1")
	assert.Equal(t, models.LockStatusPending, lock)

	notes, err := f.store.Notifications().List(context.Background(), testChurch, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationRequestCreated, notes[0].Kind)
	assert.Equal(t, "Update request", notes[0].Title)
	assert.Equal(t, "owner@grace.org submitted a update request for f1.", notes[0].Message)
	assert.Len(t, f.eventsFor(models.CollectionEditRequests), 1)

	entries := f.store.Audit().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionEditRequestCreate, entries[0].Action)
	assert.Contains(t, string(entries[0].NewValues), req.ID)
}

func TestEditRequestCreateLabelsFromPatch(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	seedRecord(t, f, models.EntityFinance, "f1", `{"date":"2024-03-03","category":"Tithe","amountGHS":120}`)

	req, err := f.svc.CreateRequest(context.Background(), testChurch, dto.CreateEditRequest{
		Entity: "finance", Action: "update", RecordID: "f1", Payload: json.RawMessage(`{"category":"Thanksgiving"}`),
	}, owner)
	require.NoError(t, err)
	assert.Equal(t, "Thanksgiving", req.EntityName)
}

func TestEditRequestCreateSoftFailsWhenRecordMissing(t *testing.T) {
	f := newWorkflow(t, dualRoles())

	req, err := f.svc.CreateRequest(context.Background(), testChurch, dto.CreateEditRequest{
		Entity: "members", Action: "delete", RecordID: "ghost",
	}, owner)
	require.NoError(t, err)
	assert.Nil(t, req.Payload)
	assert.Equal(t, models.EditRequestPending, req.Status)
}

func TestEditRequestCreateValidation(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	cases := map[string]dto.CreateEditRequest{
		"unknown entity":       {Entity: "offerings", Action: "update", RecordID: "x", Payload: json.RawMessage(`{"amountGHS":1}`)},
		"unknown action":       {Entity: "finance", Action: "archive", RecordID: "x"},
		"missing record":       {Entity: "finance", Action: "update", Payload: json.RawMessage(`{"amountGHS":1}`)},
		"empty patch":          {Entity: "finance", Action: "update", RecordID: "x", Payload: json.RawMessage(`{}`)},
		"null patch":           {Entity: "finance", Action: "update", RecordID: "x", Payload: json.RawMessage(`null`)},
		"unknown field":        {Entity: "finance", Action: "update", RecordID: "x", Payload: json.RawMessage(`{"fullName":"Ama"}`)},
		"bad date":             {Entity: "finance", Action: "update", RecordID: "x", Payload: json.RawMessage(`{"date":"03/03/2024"}`)},
		"negative age":         {Entity: "members", Action: "update", RecordID: "x", Payload: json.RawMessage(`{"age":-4}`)},
		"delete with payload":  {Entity: "groups", Action: "delete", RecordID: "x", Payload: json.RawMessage(`{"name":"Choir"}`)},
		"wrong type for field": {Entity: "attendance", Action: "update", RecordID: "x", Payload: json.RawMessage(`{"present":"many"}`)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateRequest(context.Background(), testChurch, req, owner)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation), err.Error())
		})
	}

	items, err := f.svc.List(context.Background(), testChurch, dto.EditRequestQuery{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestEditRequestDualApprovalAppliesUpdate(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	req := createFinanceUpdate(t, f)
	ctx := context.Background()

	first, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, manager)
	require.NoError(t, err)
	assert.Equal(t, dto.DecisionRecorded, first.Outcome)
	assert.Equal(t, []string{"sub@grace.org"}, first.Awaiting)
	assert.Equal(t, models.EditRequestPending, first.Request.Status)
	assert.Zero(t, f.appliedCount())

	amount, _ := financeAmount(t, f, "f1")
	assert.Equal(t, 120.0, amount)

	second, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, subManager)
	require.NoError(t, err)
	assert.Equal(t, dto.DecisionApproved, second.Outcome)
	assert.Equal(t, models.EditRequestApproved, second.Request.Status)
	require.NotNil(t, second.Request.ResolvedAt)
	require.Len(t, second.Request.Approvals, 2)
	assert.Equal(t, 1, f.appliedCount())

	amount, lock := financeAmount(t, f, "f1")
	assert.Equal(t, 500.0, amount)
	assert.Equal(t, models.LockStatusLocked, lock)

	rec, err := f.store.Records().Get(ctx, testChurch, models.EntityFinance, "f1")
	require.NoError(t, err)
	require.NotNil(t, rec.UpdatedBy)
	assert.Equal(t, "sub@grace.org", *rec.UpdatedBy)
	assert.Contains(t, string(rec.Data), `"category":"Tithe"`)

	notes, err := f.store.Notifications().List(ctx, testChurch, 0)
	require.NoError(t, err)
	kinds := make([]models.NotificationKind, 0, len(notes))
	for _, n := range notes {
		kinds = append(kinds, n.Kind)
	}
	assert.ElementsMatch(t, []models.NotificationKind{models.NotificationRequestCreated, models.NotificationRequestApproved}, kinds)

	var applyAudits int
	for _, entry := range f.store.Audit().Entries() {
		if entry.Action == models.AuditActionEditRequestApply {
			applyAudits++
		}
	}
	assert.Equal(t, 1, applyAudits)
}

func TestEditRequestRejectionShortCircuits(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	req := createFinanceUpdate(t, f)
	ctx := context.Background()

	_, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, manager)
	require.NoError(t, err)

	res, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionRejected, subManager)
	require.NoError(t, err)
	assert.Equal(t, dto.DecisionRejected, res.Outcome)
	assert.Equal(t, models.EditRequestRejected, res.Request.Status)
	assert.Zero(t, f.appliedCount())

	amount, lock := financeAmount(t, f, "f1")
	assert.Equal(t, 120.0, amount)
	assert.Equal(t, models.LockStatusLocked, lock)

	notes, err := f.store.Notifications().List(ctx, testChurch, 0)
	require.NoError(t, err)
	var rejected *models.Notification
	for i := range notes {
		if notes[i].Kind == models.NotificationRequestRejected {
			rejected = &notes[i]
		}
	}
	require.NotNil(t, rejected)
	assert.Equal(t, "Request rejected", rejected.Title)
	assert.Equal(t, "sub@grace.org rejected f1 update request.", rejected.Message)

	// terminal requests ignore further decisions
	again, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, manager)
	require.NoError(t, err)
	assert.Equal(t, dto.DecisionNoop, again.Outcome)
	assert.Equal(t, models.EditRequestRejected, again.Request.Status)
	assert.Len(t, again.Request.Approvals, 2)
	assert.Zero(t, f.appliedCount())
}

func TestEditRequestSingleRejectionResolves(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	req := createFinanceUpdate(t, f)

	res, err := f.svc.SubmitDecision(context.Background(), testChurch, req.ID, models.DecisionRejected, manager)
	require.NoError(t, err)
	assert.Equal(t, models.EditRequestRejected, res.Request.Status)
	require.Len(t, res.Request.Approvals, 1)
	assert.Equal(t, models.DecisionRejected, res.Request.Approvals[0].Decision)
}

func TestEditRequestDeleteAndSilentReapproval(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	ctx := context.Background()
	seedRecord(t, f, models.EntityMembers, "m9", `{"fullName":"Kojo Mensah"}`)

	req, err := f.svc.CreateRequest(ctx, testChurch, dto.CreateEditRequest{Entity: "members", Action: "delete", RecordID: "m9"}, owner)
	require.NoError(t, err)

	_, err = f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, subManager)
	require.NoError(t, err)
	res, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, manager)
	require.NoError(t, err)
	assert.Equal(t, dto.DecisionApproved, res.Outcome)

	_, err = f.store.Records().Get(ctx, testChurch, models.EntityMembers, "m9")
	assert.Error(t, err)

	deletes := f.eventsFor(models.CollectionMembers)
	require.NotEmpty(t, deletes)
	assert.Equal(t, models.ChangeDeleted, deletes[len(deletes)-1].Op)

	again, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, manager)
	require.NoError(t, err)
	assert.Equal(t, dto.DecisionNoop, again.Outcome)
	assert.Equal(t, 1, f.appliedCount())
	assert.Len(t, again.Request.Approvals, 2)
}

func TestEditRequestSameIdentityInBothRoles(t *testing.T) {
	f := newWorkflow(t, models.ChurchRoles{ManagerEmail: "owner@grace.org", SubManagerEmail: "OWNER@grace.org"})
	req := createFinanceUpdate(t, f)

	res, err := f.svc.SubmitDecision(context.Background(), testChurch, req.ID, models.DecisionApproved, owner)
	require.NoError(t, err)
	assert.Equal(t, dto.DecisionApproved, res.Outcome)
	assert.Len(t, res.Request.Approvals, 1)
	assert.Equal(t, 1, f.appliedCount())

	amount, _ := financeAmount(t, f, "f1")
	assert.Equal(t, 500.0, amount)
}

func TestEditRequestUnauthorizedApprover(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	req := createFinanceUpdate(t, f)

	_, err := f.svc.SubmitDecision(context.Background(), testChurch, req.ID, models.DecisionApproved, outsider)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorizedApprover))
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, req.ID, appErr.Details["requestId"])
	assert.Equal(t, models.EntityFinance, appErr.Details["entity"])
	assert.Equal(t, models.EditActionUpdate, appErr.Details["action"])

	stored, err := f.svc.Get(context.Background(), testChurch, req.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Approvals)
}

func TestEditRequestNoRolesAuthorizesNobody(t *testing.T) {
	f := newWorkflow(t, models.ChurchRoles{})
	req := createFinanceUpdate(t, f)

	_, err := f.svc.SubmitDecision(context.Background(), testChurch, req.ID, models.DecisionApproved, owner)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorizedApprover))
}

func TestEditRequestDuplicateDecisionWhilePending(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	req := createFinanceUpdate(t, f)
	ctx := context.Background()

	_, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, manager)
	require.NoError(t, err)

	shouting := &models.JWTClaims{UserID: manager.UserID, Email: "MANAGER@grace.org", ChurchID: testChurch}
	_, err = f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionRejected, shouting)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateDecision))

	stored, err := f.svc.Get(ctx, testChurch, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EditRequestPending, stored.Status)
	assert.Len(t, stored.Approvals, 1)
}

func TestEditRequestUnknownRequest(t *testing.T) {
	f := newWorkflow(t, dualRoles())

	_, err := f.svc.SubmitDecision(context.Background(), testChurch, "missing", models.DecisionApproved, manager)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestEditRequestConcurrentApprovalsApplyOnce(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	req := createFinanceUpdate(t, f)

	var wg sync.WaitGroup
	outcomes := make(chan dto.DecisionOutcome, 2)
	for _, actor := range []*models.JWTClaims{manager, subManager} {
		wg.Add(1)
		go func(actor *models.JWTClaims) {
			defer wg.Done()
			res, err := f.svc.SubmitDecision(context.Background(), testChurch, req.ID, models.DecisionApproved, actor)
			if assert.NoError(t, err) {
				outcomes <- res.Outcome
			}
		}(actor)
	}
	wg.Wait()
	close(outcomes)

	var got []dto.DecisionOutcome
	for o := range outcomes {
		got = append(got, o)
	}
	assert.ElementsMatch(t, []dto.DecisionOutcome{dto.DecisionRecorded, dto.DecisionApproved}, got)
	assert.Equal(t, 1, f.appliedCount())

	stored, err := f.svc.Get(context.Background(), testChurch, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EditRequestApproved, stored.Status)
	assert.Len(t, stored.Approvals, 2)
}

func TestEditRequestConcurrentDuplicatesRecordOnce(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	req := createFinanceUpdate(t, f)

	var wg sync.WaitGroup
	var mu sync.Mutex
	recorded, duplicates := 0, 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SubmitDecision(context.Background(), testChurch, req.ID, models.DecisionApproved, manager)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				recorded++
			} else if errors.Is(err, appErrors.ErrDuplicateDecision) {
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, recorded)
	assert.Equal(t, 4, duplicates)
	stored, err := f.svc.Get(context.Background(), testChurch, req.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Approvals, 1)
}

func TestEditRequestStrictLockRejectsSecondRequest(t *testing.T) {
	f := newWorkflow(t, dualRoles(), WithEditRequestConfig(EditRequestConfig{StrictLock: true, LockRetries: 3}))
	createFinanceUpdate(t, f)

	_, err := f.svc.CreateRequest(context.Background(), testChurch, dto.CreateEditRequest{
		Entity: "finance", Action: "delete", RecordID: "f1",
	}, owner)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestEditRequestLenientLockAllowsStacking(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	createFinanceUpdate(t, f)

	_, err := f.svc.CreateRequest(context.Background(), testChurch, dto.CreateEditRequest{
		Entity: "finance", Action: "delete", RecordID: "f1",
	}, owner)
	require.NoError(t, err)

	pending, err := f.svc.List(context.Background(), testChurch, dto.EditRequestQuery{
		Status: []models.EditRequestStatus{models.EditRequestPending},
		Entity: "finance",
	})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

type heldLocker struct{ attempts int }

func (l *heldLocker) TryLock(context.Context, string, time.Duration) (repository.Unlock, error) {
	l.attempts++
	return nil, repository.ErrLockHeld
}

func TestEditRequestLockContentionEndsInConflict(t *testing.T) {
	locker := &heldLocker{}
	f := newWorkflow(t, dualRoles(),
		WithEditRequestLocker(locker),
		WithEditRequestConfig(EditRequestConfig{LockRetries: 2}),
	)
	req := createFinanceUpdate(t, f)

	_, err := f.svc.SubmitDecision(context.Background(), testChurch, req.ID, models.DecisionApproved, manager)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, 2, locker.attempts)
}

type flakyRequests struct {
	*repository.MemoryEditRequests
}

func (flakyRequests) RecordDecision(context.Context, repository.RecordDecisionParams) (*models.EditRequest, error) {
	return nil, errors.New("connection reset by peer")
}

func TestEditRequestStoreFailureCommitsNothing(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	req := createFinanceUpdate(t, f)
	flaky := NewEditRequestService(flakyRequests{f.store.EditRequests()}, f.store.Records(),
		NewChurchService(f.store.Churches(), nil, nil, nil, nil, nil, time.Minute), nil, nil)

	_, err := flaky.SubmitDecision(context.Background(), testChurch, req.ID, models.DecisionApproved, manager)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.Retryable())
	assert.Equal(t, req.ID, appErr.Details["requestId"])

	stored, err := f.svc.Get(context.Background(), testChurch, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EditRequestPending, stored.Status)
	assert.Empty(t, stored.Approvals)
}

func TestEditRequestApplyFailureLeavesRequestPending(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	seedRecord(t, f, models.EntityMembers, "m1", `{"fullName":"Esi Owusu"}`)
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, testChurch, dto.CreateEditRequest{
		Entity: "members", Action: "update", RecordID: "m1", Payload: json.RawMessage(`{"ministry":"Choir"}`),
	}, owner)
	require.NoError(t, err)
	require.NoError(t, f.store.Records().Delete(ctx, testChurch, models.EntityMembers, "m1"))

	_, err = f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, manager)
	require.NoError(t, err)
	_, err = f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, subManager)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	stored, err := f.svc.Get(ctx, testChurch, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EditRequestPending, stored.Status)
	assert.Len(t, stored.Approvals, 1)
}

func TestEditRequestListFilters(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	req := createFinanceUpdate(t, f)
	ctx := context.Background()
	_, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionRejected, manager)
	require.NoError(t, err)

	rejected, err := f.svc.List(ctx, testChurch, dto.EditRequestQuery{Status: []models.EditRequestStatus{models.EditRequestRejected}})
	require.NoError(t, err)
	require.Len(t, rejected, 1)

	_, err = f.svc.List(ctx, testChurch, dto.EditRequestQuery{Status: []models.EditRequestStatus{"archived"}})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	other, err := f.svc.List(ctx, "church-2", dto.EditRequestQuery{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

// failingCommitRequests runs the approved change and then fails the resolving write, as a dropped
// connection at commit time would.
type failingCommitRequests struct {
	*repository.MemoryEditRequests
}

func (r failingCommitRequests) ApplyAndResolve(ctx context.Context, params repository.RecordDecisionParams, apply repository.ApplyFunc) (*models.EditRequest, *models.Record, error) {
	return r.MemoryEditRequests.ApplyAndResolve(ctx, params, func(ctx context.Context, records repository.RecordStore) (*models.Record, error) {
		if _, err := apply(ctx, records); err != nil {
			return nil, err
		}
		return nil, errors.New("connection reset by peer")
	})
}

func TestEditRequestResolveFailureRollsBackChange(t *testing.T) {
	f := newWorkflow(t, dualRoles())
	req := createFinanceUpdate(t, f)
	ctx := context.Background()

	_, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, manager)
	require.NoError(t, err)

	failing := NewEditRequestService(failingCommitRequests{f.store.EditRequests()}, f.store.Records(),
		NewChurchService(f.store.Churches(), nil, nil, nil, nil, nil, time.Minute), nil, nil)
	_, err = failing.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, subManager)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.Retryable())

	amount, lock := financeAmount(t, f, "f1")
	assert.Equal(t, 120.0, amount)
	assert.Equal(t, models.LockStatusPending, lock)
	stored, err := f.svc.Get(ctx, testChurch, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EditRequestPending, stored.Status)
	assert.Len(t, stored.Approvals, 1)

	res, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionRejected, subManager)
	require.NoError(t, err)
	assert.Equal(t, dto.DecisionRejected, res.Outcome)
	amount, lock = financeAmount(t, f, "f1")
	assert.Equal(t, 120.0, amount)
	assert.Equal(t, models.LockStatusLocked, lock)
}

type openLocker struct{}

func (openLocker) TryLock(context.Context, string, time.Duration) (repository.Unlock, error) {
	return func(context.Context) error { return nil }, nil
}

func TestEditRequestCompletionAppliesOnceWithoutLock(t *testing.T) {
	f := newWorkflow(t, dualRoles(), WithEditRequestLocker(openLocker{}))
	req := createFinanceUpdate(t, f)
	ctx := context.Background()

	_, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, manager)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := map[dto.DecisionOutcome]int{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.SubmitDecision(ctx, testChurch, req.ID, models.DecisionApproved, subManager)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.appliedCount())
	assert.Equal(t, 1, outcomes[dto.DecisionApproved])
	assert.Equal(t, 7, outcomes[dto.DecisionNoop])

	stored, err := f.svc.Get(ctx, testChurch, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EditRequestApproved, stored.Status)
	assert.Len(t, stored.Approvals, 2)
	amount, _ := financeAmount(t, f, "f1")
	assert.Equal(t, 500.0, amount)
}
