package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gracetrack-api/internal/models"
	"github.com/noah-isme/gracetrack-api/internal/repository"
)

func TestSnapshotLoadCollections(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	svc := NewSnapshotService(store.Records(), store.EditRequests(), store.Notifications(), store.Churches())

	for _, name := range []string{"Youth", "Choir"} {
		require.NoError(t, store.Records().Create(ctx, &models.Record{
			ChurchID: testChurch, Entity: models.EntityGroups, Data: json.RawMessage(`{"name":"` + name + `"}`),
		}))
	}

	groups, err := svc.Load(ctx, SnapshotQuery{ChurchID: testChurch, Collection: models.CollectionGroups})
	require.NoError(t, err)
	records, ok := groups.([]models.Record)
	require.True(t, ok)
	require.Len(t, records, 2)
	assert.Contains(t, string(records[0].Data), "Choir")

	church, err := svc.Load(ctx, SnapshotQuery{ChurchID: testChurch, Collection: models.CollectionChurch})
	require.NoError(t, err)
	assert.Nil(t, church)

	require.NoError(t, store.Churches().Create(ctx, models.NewChurch(testChurch, "Grace Chapel", "Ama", "owner@grace.org", time.Now())))
	church, err = svc.Load(ctx, SnapshotQuery{ChurchID: testChurch, Collection: models.CollectionChurch})
	require.NoError(t, err)
	assert.IsType(t, &models.Church{}, church)

	_, err = svc.Load(ctx, SnapshotQuery{ChurchID: testChurch, Collection: "prayers"})
	assert.Error(t, err)
}
