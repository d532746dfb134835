package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, LockBackendLocal, cfg.Lock.Backend)
	assert.Equal(t, 730*24*time.Hour, cfg.Timetable.OccurrenceHorizon)
	assert.Equal(t, 365*24*time.Hour, cfg.Timetable.ComparisonWindow)
	assert.Equal(t, 10*time.Minute, cfg.Conflicts.CacheTTL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("TIMETABLE_COMPARISON_WINDOW_DAYS", "90")
	t.Setenv("CONFLICT_CACHE_TTL", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, LockBackendRedis, cfg.Lock.Backend)
	assert.Equal(t, 90*24*time.Hour, cfg.Timetable.ComparisonWindow)
	assert.Equal(t, 10*time.Minute, cfg.Conflicts.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
