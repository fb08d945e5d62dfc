/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func loadTestConfig(t *testing.T, content string) {
	t.Helper()
	viper.Reset()
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(content), 0o600)
	assert.NoError(t, err)
	assert.NoError(t, LoadConfig(path))
}

func TestLoadConfig(t *testing.T) {
	loadTestConfig(t, `
server:
  port: 8080
db:
  host: pg.internal
  port: 5432
  dbname: avs
  user: avs
  ssl_mode: disable
redis:
  addr: redis.internal:6379
  db: 3
workers:
  upsertion_batch_size: 25
`)

	assert.Equal(t, 8080, GetServerPort())
	assert.Equal(t, "pg.internal", GetDBHost())
	assert.Equal(t, 5432, GetDBPort())
	assert.Equal(t, "avs", GetDBName())
	assert.Equal(t, "disable", GetDBSslMode())
	assert.Equal(t, "redis.internal:6379", GetRedisAddr())
	assert.Equal(t, 3, GetRedisDB())
	assert.Equal(t, 25, GetUpsertionBatchSize())
}

func TestConfigDefaults(t *testing.T) {
	loadTestConfig(t, `
server:
  port: 8080
`)

	assert.Equal(t, "require", GetDBSslMode())
	assert.Equal(t, "127.0.0.1:6379", GetRedisAddr())
	assert.Equal(t, 0, GetRedisDB())
	assert.Equal(t, 100, GetDBMaxOpenConns())
	assert.Equal(t, 60*time.Second, GetInferenceTimeout())
	assert.Equal(t, 600*time.Second, GetDeployTimeout())
	assert.Equal(t, 2, GetMaxConcurrentDeploys())
	assert.Equal(t, "us-east-1", GetS3Region())
	assert.Equal(t, 100, GetUpsertionBatchSize())
	assert.Equal(t, 500, GetReindexBatchSize())
	assert.Equal(t, 20, GetAdjusterSteps())
	assert.InDelta(t, 0.05, GetAdjusterStepSize(), 1e-9)
	assert.False(t, IsS3Enable())
	assert.True(t, IsHealthCheckEnabled())
}

func TestSecretPathFallback(t *testing.T) {
	secretDir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(secretDir, "password"), []byte("s3cr3t\n"), 0o600))
	assert.NoError(t, os.WriteFile(filepath.Join(secretDir, "port"), []byte("5433"), 0o600))

	loadTestConfig(t, `
db:
  secret_path: `+secretDir+`
`)

	assert.Equal(t, "s3cr3t", GetDBPassword())
	assert.Equal(t, 5433, GetDBPort())
}

func TestSetValueOverride(t *testing.T) {
	loadTestConfig(t, `
server:
  port: 8080
`)
	SetValue(serverPort, "9090")
	assert.Equal(t, 9090, GetServerPort())
}
