package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gracetrack-api/internal/dto"
	"github.com/noah-isme/gracetrack-api/internal/models"
	"github.com/noah-isme/gracetrack-api/internal/repository"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
)

func TestChurchGetCreatesDefaultsForOwner(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewChurchService(store.Churches(), nil, store.Audit(), nil, nil, nil, time.Minute)

	church, err := svc.Get(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, testChurch, church.ID)
	assert.Equal(t, "owner@grace.org", church.Roles.ManagerEmail)
	assert.Equal(t, "owner@grace.org", church.Roles.SubManagerEmail)
	assert.Equal(t, "GHS", church.Preferences.Currency)
	assert.Equal(t, "light", church.Preferences.Theme)

	again, err := svc.Get(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, church.CreatedAt, again.CreatedAt)
}

func TestChurchGetForMemberWithoutDocument(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewChurchService(store.Churches(), nil, nil, nil, nil, nil, time.Minute)

	_, err := svc.Get(context.Background(), manager)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	roles, err := svc.Roles(context.Background(), testChurch)
	require.NoError(t, err)
	assert.Empty(t, roles.RequiredApprovers())
}

func TestChurchUpdateRolesInvalidatesCache(t *testing.T) {
	store := repository.NewMemoryStore()
	var published []models.ChangeEvent
	changes := ChangePublisherFunc(func(_ context.Context, e models.ChangeEvent) { published = append(published, e) })
	svc := NewChurchService(store.Churches(), newRedisCache(t), store.Audit(), changes, nil, nil, time.Minute)
	ctx := context.Background()

	_, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	roles, err := svc.Roles(ctx, testChurch)
	require.NoError(t, err)
	assert.True(t, roles.IsApprover("owner@grace.org"))

	updated, err := svc.UpdateRoles(ctx, owner, dto.UpdateRolesRequest{ManagerEmail: "manager@grace.org", SubManagerEmail: "sub@grace.org"})
	require.NoError(t, err)
	assert.Equal(t, "manager@grace.org", updated.Roles.ManagerEmail)

	roles, err = svc.Roles(ctx, testChurch)
	require.NoError(t, err)
	assert.False(t, roles.IsApprover("owner@grace.org"))
	assert.True(t, roles.IsApprover("SUB@grace.org"))

	require.Len(t, published, 1)
	assert.Equal(t, models.CollectionChurch, published[0].Collection)

	entries := store.Audit().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionRolesUpdate, entries[0].Action)
}

func TestChurchUpdateRolesValidation(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewChurchService(store.Churches(), nil, nil, nil, nil, nil, time.Minute)

	_, err := svc.UpdateRoles(context.Background(), owner, dto.UpdateRolesRequest{ManagerEmail: "not-an-email", SubManagerEmail: "sub@grace.org"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.UpdateRoles(context.Background(), owner, dto.UpdateRolesRequest{ManagerEmail: "manager@grace.org"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestChurchUpdatePreferencesKeepsConversions(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewChurchService(store.Churches(), nil, nil, nil, nil, nil, time.Minute)
	ctx := context.Background()

	church, err := svc.UpdatePreferences(ctx, owner, dto.UpdatePreferencesRequest{Currency: "USD", Theme: "dark"})
	require.NoError(t, err)
	assert.Equal(t, "USD", church.Preferences.Currency)
	assert.Equal(t, models.DefaultConversions(), church.Preferences.Conversions)

	church, err = svc.UpdatePreferences(ctx, owner, dto.UpdatePreferencesRequest{Currency: "GHS", Theme: "light", Conversions: map[string]float64{"USD": 0.09}})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"USD": 0.09}, church.Preferences.Conversions)

	_, err = svc.UpdatePreferences(ctx, owner, dto.UpdatePreferencesRequest{Currency: "NGN", Theme: "light"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
