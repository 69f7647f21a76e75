package config

import (
	"testing"
	"time"

	"github.com/akeren/go-waitlist/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	assert.Equal(t, DBDriverPostgres, DBDriver())

	t.Setenv("DB_DRIVER", " SQLite3 ")
	assert.Equal(t, DBDriverSQLite, DBDriver())

	t.Setenv("DB_DRIVER", `"sqlite"`)
	assert.Equal(t, DBDriverSQLite, DBDriver())
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "waitlist.db?_foreign_keys=on&_busy_timeout=10000", SQLiteDSN("waitlist.db"))
	assert.Equal(t, "file::memory:?cache=shared&_foreign_keys=on&_busy_timeout=10000", SQLiteDSN("file::memory:?cache=shared"))
}

func TestBuildDSNFromEnv(t *testing.T) {
	logger := log.NewDiscardLogger()

	dsn, err := buildDSNFromEnv("postgres://u:p@db:5432/waitlist", logger, &DBConfig{})
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/waitlist", dsn)

	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "5432")
	t.Setenv("POSTGRES_USER", "waitlist")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB_NAME", "waitlist")
	t.Setenv("POSTGRES_SSLMODE", "")

	dsn, err = buildDSNFromEnv("", logger, &DBConfig{SSLMode: "disable"})
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=waitlist password=secret dbname=waitlist sslmode=disable", dsn)

	t.Setenv("POSTGRES_HOST", "")
	_, err = buildDSNFromEnv("", logger, &DBConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_HOST")
}

func TestNewDatabase_SQLite(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "file::memory:")

	db, err := NewDatabase(log.NewDiscardLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { CloseDatabase(db, log.NewDiscardLogger()) })

	assert.Equal(t, DBDriverSQLite, db.Dialector.Name())
	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestNewAppConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_REQUESTS", "")
	t.Setenv("RATE_LIMIT_WINDOW", "")
	t.Setenv("REQUEST_TIMEOUT", "")

	cfg, err := NewAppConfig()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.RateLimitRequests)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)

	t.Setenv("RATE_LIMIT_REQUESTS", "7")
	t.Setenv("RATE_LIMIT_WINDOW", "10s")
	cfg, err = NewAppConfig()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RateLimitRequests)
	assert.Equal(t, 10*time.Second, cfg.RateLimitWindow)

	t.Setenv("RATE_LIMIT_REQUESTS", "lots")
	_, err = NewAppConfig()
	assert.Error(t, err)
}

func TestLoadDBConfig(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "4")
	t.Setenv("DB_MAX_IDLE_CONNS", "20")
	t.Setenv("DB_CONN_MAX_LIFETIME", "90s")

	cfg, err := LoadDBConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxOpenConns)
	assert.Equal(t, 4, cfg.MaxIdleConns)
	assert.Equal(t, 90*time.Second, cfg.ConnMaxLifetime)
	assert.Equal(t, "require", cfg.SSLMode)

	t.Setenv("DB_MAX_OPEN_CONNS", "0")
	_, err = LoadDBConfig()
	require.Error(t, err)
}
