package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestRiskWeightsMustSumToOne(t *testing.T) {
	cfg := Default()
	cfg.Scoring.Risk.PaymentDelayWeight = 0.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weight")
}

func TestHealthThresholdsMustIncrease(t *testing.T) {
	cfg := Default()
	cfg.Scoring.Health.Thresholds.AtRisk = 10 // below Critical
	require.Error(t, cfg.Validate())
}

func TestRiskThresholdsMustIncrease(t *testing.T) {
	cfg := Default()
	cfg.Scoring.Risk.Thresholds.Critical = 1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.API.Port = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyDatabaseURL(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresBrokersWhenEventsEnabled(t *testing.T) {
	cfg := Default()
	cfg.Events.Enabled = true
	cfg.Events.Brokers = nil
	require.Error(t, cfg.Validate())

	cfg.Events.Brokers = []string{"localhost:9092"}
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  port: 9999
database:
  query_timeout: 3s
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.API.Port)
	assert.Equal(t, 3*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep their defaults.
	assert.InDelta(t, 0.30, cfg.Scoring.Risk.PaymentDelayWeight, 1e-9)
	assert.Equal(t, 45.0, cfg.Scoring.Health.Thresholds.AtRisk)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
