package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "./newspulse.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Minute, cfg.Schedule.ParseEntityInterval())
	assert.Equal(t, 2*time.Hour, cfg.Schedule.ParseSweepInterval())
	assert.Equal(t, time.Hour, cfg.Schedule.ParseAlertInterval())
	assert.Equal(t, 48*time.Hour, cfg.Ingest.ParseMaxSweepAge())
	assert.Equal(t, 10, cfg.Ingest.JobsPerMinute)
	assert.Equal(t, 3, cfg.Ingest.RetryAttempts)
	assert.Equal(t, 5*time.Second, cfg.Ingest.ParseRetryBackoff())
	assert.Equal(t, 5, cfg.Monitor.GeoTopN)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /data/pulse.db
schedule:
  entity_interval: 15m
ingest:
  jobs_per_minute: 20
  sweep_sources:
    - name: Local Wire
      url: https://example.org/rss
server:
  port: 9000
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/pulse.db", cfg.Database.Path)
	assert.Equal(t, 15*time.Minute, cfg.Schedule.ParseEntityInterval())
	assert.Equal(t, 20, cfg.Ingest.JobsPerMinute)
	require.Len(t, cfg.Ingest.SweepSources, 1)
	assert.Equal(t, "Local Wire", cfg.Ingest.SweepSources[0].Name)
	assert.Equal(t, 9000, cfg.Server.Port)

	// Untouched sections keep defaults.
	assert.Equal(t, 2*time.Hour, cfg.Schedule.ParseSweepInterval())
	assert.Equal(t, "http://localhost:9090/analyze", cfg.Sentiment.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NEWSPULSE_DB_PATH", "/tmp/override.db")
	t.Setenv("SENTIMENT_API_URL", "http://scores.internal/analyze")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "http://scores.internal/analyze", cfg.Sentiment.URL)
}

func TestParseDurationFallback(t *testing.T) {
	cfg := Default()
	cfg.Schedule.EntityInterval = "not-a-duration"
	assert.Equal(t, 30*time.Minute, cfg.Schedule.ParseEntityInterval())
}
