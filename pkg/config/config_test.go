package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.False(t, cfg.EditRequests.StrictLock)
	assert.Equal(t, 3, cfg.EditRequests.LockRetries)
	assert.Equal(t, 10*time.Second, cfg.EditRequests.LockTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.EditRequests.LockRetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.Church.CacheTTL)
	assert.True(t, cfg.Dashboard.Enabled)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORE_DRIVER", " Memory ")
	v.Set("EDIT_REQUESTS_STRICT_LOCK", true)
	v.Set("EDIT_REQUESTS_LOCK_RETRIES", 0)
	v.Set("EDIT_REQUESTS_LOCK_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.EditRequests.StrictLock)
	assert.Equal(t, 3, cfg.EditRequests.LockRetries)
	assert.Equal(t, 10*time.Second, cfg.EditRequests.LockTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestUnknownStoreDriverFallsBackToPostgres(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORE_DRIVER", "firestore")

	assert.Equal(t, StoreDriverPostgres, fromViper(v).Store.Driver)
}
