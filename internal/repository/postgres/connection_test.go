package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/felixhub/workshop/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:            "db",
		Port:            5432,
		User:            "felix",
		Password:        "secret",
		Database:        "felixhub",
		SSLMode:         "disable",
		MaxConnections:  12,
		MinConnections:  3,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		ApplicationName: "felixhub-worker",
	}

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(12), poolCfg.MaxConns)
	assert.Equal(t, int32(3), poolCfg.MinConns)
	assert.Equal(t, time.Hour, poolCfg.MaxConnLifetime)
	assert.Equal(t, 10*time.Minute, poolCfg.MaxConnIdleTime)
	assert.Equal(t, healthCheckPeriod, poolCfg.HealthCheckPeriod)
	assert.Equal(t, "felixhub-worker", poolCfg.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "db", poolCfg.ConnConfig.Host)
	assert.Equal(t, "felixhub", poolCfg.ConnConfig.Database)
}

func TestPoolConfig_ZeroValuesKeepDriverDefaults(t *testing.T) {
	cfg := &config.DatabaseConfig{Host: "db", Port: 5432, User: "felix", Database: "felixhub", SSLMode: "disable"}

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)

	assert.Positive(t, poolCfg.MaxConns)
	assert.Positive(t, poolCfg.MaxConnLifetime)
	assert.NotContains(t, poolCfg.ConnConfig.RuntimeParams, "application_name")
}

func TestPoolConfig_MinAboveMaxIsIgnored(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host: "db", Port: 5432, User: "felix", Database: "felixhub", SSLMode: "disable",
		MaxConnections: 2,
		MinConnections: 5,
	}

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(2), poolCfg.MaxConns)
	assert.Zero(t, poolCfg.MinConns)
}

func TestNewPool_GivesUpWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &config.DatabaseConfig{
		Host: "127.0.0.1", Port: 1, User: "felix", Database: "felixhub", SSLMode: "disable",
		ConnectRetries:    3,
		ConnectRetryDelay: time.Millisecond,
	}

	pool, err := NewPool(ctx, cfg)
	assert.Error(t, err)
	assert.Nil(t, pool)
}
