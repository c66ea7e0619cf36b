package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gracetrack-api/internal/models"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
)

func TestCacheRepositoryRoundTrip(t *testing.T) {
	_, client := newMiniRedis(t)
	repo := NewCacheRepository(client, zap.NewNop())
	ctx := context.Background()

	roles := models.ChurchRoles{ManagerEmail: "m@grace.org", SubManagerEmail: "s@grace.org"}
	require.NoError(t, repo.Set(ctx, "church:policy:uid-1", roles, time.Minute))

	var cached models.ChurchRoles
	require.NoError(t, repo.Get(ctx, "church:policy:uid-1", &cached))
	assert.Equal(t, roles, cached)

	require.NoError(t, repo.Set(ctx, "dashboard:summary:uid-1", models.DashboardSummary{MembersCount: 3}, time.Minute))
	require.NoError(t, repo.DeleteByPattern(ctx, "dashboard:summary:*"))
	require.NoError(t, repo.Delete(ctx, "church:policy:uid-1"))

	err := repo.Get(ctx, "church:policy:uid-1", &cached)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	err = repo.Get(ctx, "dashboard:summary:uid-1", &models.DashboardSummary{})
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, zap.NewNop())
	var dest models.DashboardSummary
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", dest, time.Minute))
}

func TestCacheRepositoryDeleteByPatternSpansPages(t *testing.T) {
	_, client := newMiniRedis(t)
	repo := NewCacheRepository(client, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3*scanBatch; i++ {
		require.NoError(t, repo.Set(ctx, fmt.Sprintf("dashboard:summary:c%d", i), i, time.Minute))
	}
	require.NoError(t, repo.Set(ctx, "church:roles:c1", models.ChurchRoles{}, time.Minute))

	require.NoError(t, repo.DeleteByPattern(ctx, "dashboard:summary:*"))

	keys, err := client.Keys(ctx, "*").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"church:roles:c1"}, keys)
}
