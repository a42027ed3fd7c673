package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "sensor/schiene_1", cfg.TopicTrack1Finish)
	assert.Equal(t, "sensor/schiene_2", cfg.TopicTrack2Finish)
	assert.Equal(t, "carrera/race/start", cfg.TopicRaceStart)
	assert.Equal(t, "web/templates/dashboard.html", cfg.DashboardTemplate)
	assert.Equal(t, 50, cfg.MaxViewers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_URL", "redis://bus:6379/1")
	t.Setenv("TOPIC_TRACK1_FINISH", "sensor/lane_a")
	t.Setenv("MAX_VIEWERS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "redis://bus:6379/1", cfg.RedisURL)
	assert.Equal(t, "sensor/lane_a", cfg.TopicTrack1Finish)
	assert.Equal(t, 5, cfg.MaxViewers)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"empty redis url", "REDIS_URL", "", "REDIS_URL is required"},
		{"empty track 1 topic", "TOPIC_TRACK1_FINISH", "", "TOPIC_TRACK1_FINISH is required"},
		{"empty track 2 topic", "TOPIC_TRACK2_FINISH", "", "TOPIC_TRACK2_FINISH is required"},
		{"empty start topic", "TOPIC_RACE_START", "", "TOPIC_RACE_START is required"},
		{"track topics collide", "TOPIC_TRACK2_FINISH", "sensor/schiene_1", "must differ"},
		{"zero viewers", "MAX_VIEWERS", "0", "MAX_VIEWERS must be at least 1"},
		{"negative viewers", "MAX_VIEWERS", "-3", "MAX_VIEWERS must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
