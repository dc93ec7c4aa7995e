package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	require.NotNil(t, cfg)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "nearbyhappenings", cfg.Database.DBName)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 10*time.Second, cfg.Providers.Card.Timeout)
	assert.Equal(t, time.Minute, cfg.Worker.PollInterval)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("DB_HOST", "db.example.com")
	os.Setenv("REDIS_DB", "3")
	os.Setenv("MPESA_SHORTCODE", "174379")
	os.Setenv("WORKER_RECONCILE_AFTER", "5m")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("DB_HOST")
		os.Unsetenv("REDIS_DB")
		os.Unsetenv("MPESA_SHORTCODE")
		os.Unsetenv("WORKER_RECONCILE_AFTER")
	}()

	cfg := Load()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "174379", cfg.Providers.MobileMoney.ShortCode)
	assert.Equal(t, 5*time.Minute, cfg.Worker.ReconcileAfter)
}

func TestLoad_InvalidIntEnv(t *testing.T) {
	os.Setenv("REDIS_DB", "not-a-number")
	defer os.Unsetenv("REDIS_DB")

	cfg := Load()

	// 無効な値の場合はデフォルト値が使われる
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: "5432", User: "postgres",
		Password: "secret", DBName: "nearbyhappenings", SSLMode: "disable",
	}

	dsn := cfg.DSN()

	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=nearbyhappenings")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestRedisAddr(t *testing.T) {
	cfg := RedisConfig{Host: "localhost", Port: "6379"}
	assert.Equal(t, "localhost:6379", cfg.Addr())
}
