package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "auto", cfg.Elevation.Source)
	assert.Equal(t, 100, cfg.Elevation.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Elevation.BatchDelay)
	assert.Equal(t, 10.0, cfg.Simplify.ToleranceMeters)
	assert.Equal(t, 10.0, cfg.Audit.MinDiffMeters)
	assert.Equal(t, 5.0, cfg.Audit.MinDiffPercent)
	assert.False(t, cfg.Audit.UpdateStorage)
	assert.Equal(t, []string{"*"}, cfg.Monitoring.CORSOrigins)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_DSN", "user:pass@tcp(localhost:3306)/trails")
	t.Setenv("ELEVATION_SOURCE", "api")
	t.Setenv("ELEVATION_BATCH_DELAY", "250ms")
	t.Setenv("AUDIT_MIN_DIFF_PERCENT", "7.5")
	t.Setenv("AUDIT_UPDATE_STORAGE", "true")
	t.Setenv("AUDIT_MAX_TRACKS", "not-a-number")
	t.Setenv("METRICS_CORS_ORIGINS", "https://map.example.org, ,https://admin.example.org")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "api", cfg.Elevation.Source)
	assert.Equal(t, 250*time.Millisecond, cfg.Elevation.BatchDelay)
	assert.Equal(t, 7.5, cfg.Audit.MinDiffPercent)
	assert.True(t, cfg.Audit.UpdateStorage)
	// Некорректное значение заменяется значением по умолчанию
	assert.Equal(t, 0, cfg.Audit.MaxTracks)
	assert.Equal(t, []string{"https://map.example.org", "https://admin.example.org"}, cfg.Monitoring.CORSOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{
			name:   "unknown driver",
			env:    map[string]string{"DB_DRIVER": "postgres"},
			errMsg: "DB_DRIVER",
		},
		{
			name:   "unknown elevation source",
			env:    map[string]string{"ELEVATION_SOURCE": "srtm"},
			errMsg: "ELEVATION_SOURCE",
		},
		{
			name:   "terrainrgb without url",
			env:    map[string]string{"ELEVATION_SOURCE": "terrainrgb"},
			errMsg: "ELEVATION_TERRAINRGB_URL",
		},
		{
			name:   "batch size over provider limit",
			env:    map[string]string{"ELEVATION_BATCH_SIZE": "250"},
			errMsg: "ELEVATION_BATCH_SIZE",
		},
		{
			name:   "negative max tracks",
			env:    map[string]string{"AUDIT_MAX_TRACKS": "-1"},
			errMsg: "AUDIT_MAX_TRACKS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
