package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so each test starts from defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GDELT_MASTER_URL", "GDELT_BLOCKS", "GDELT_MAX_EVENTS", "GDELT_TIMEOUT",
		"H3_RESOLUTION", "INSIGHT_COUNT", "EXPORT_DIR", "S3_BUCKET", "S3_PREFIX",
		"KAFKA_BROKERS", "KAFKA_SINK_TOPIC", "RUN_INTERVAL", "HTTP_ADDR",
		"LOG_LEVEL", "LOG_FORMAT", "SHUTDOWN_TIMEOUT", "THEME_WEIGHTS_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultMasterURL, cfg.MasterURL)
	assert.Equal(t, 16, cfg.Blocks)
	assert.Equal(t, 0, cfg.MaxEvents)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 4, cfg.Resolution)
	assert.Equal(t, 5, cfg.InsightCount)
	assert.Equal(t, "data", cfg.ExportDir)
	assert.Empty(t, cfg.S3Bucket)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.KafkaSinkTopic)
	assert.Equal(t, time.Duration(0), cfg.RunInterval)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultProgressWeights(), cfg.ProgressWeights)
	assert.Equal(t, DefaultNoiseWeights(), cfg.NoiseWeights)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GDELT_MASTER_URL", "http://localhost:9999/master.txt")
	t.Setenv("GDELT_BLOCKS", "4")
	t.Setenv("GDELT_MAX_EVENTS", "1000")
	t.Setenv("GDELT_TIMEOUT", "15s")
	t.Setenv("H3_RESOLUTION", "6")
	t.Setenv("INSIGHT_COUNT", "10")
	t.Setenv("EXPORT_DIR", "/tmp/out")
	t.Setenv("S3_BUCKET", "vibes")
	t.Setenv("S3_PREFIX", "exports/v1")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("KAFKA_SINK_TOPIC", "vibe.results")
	t.Setenv("RUN_INTERVAL", "15m")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999/master.txt", cfg.MasterURL)
	assert.Equal(t, 4, cfg.Blocks)
	assert.Equal(t, 1000, cfg.MaxEvents)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 6, cfg.Resolution)
	assert.Equal(t, 10, cfg.InsightCount)
	assert.Equal(t, "/tmp/out", cfg.ExportDir)
	assert.Equal(t, "vibes", cfg.S3Bucket)
	assert.Equal(t, "exports/v1", cfg.S3Prefix)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "vibe.results", cfg.KafkaSinkTopic)
	assert.Equal(t, 15*time.Minute, cfg.RunInterval)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non-numeric blocks", "GDELT_BLOCKS", "lots"},
		{"zero blocks", "GDELT_BLOCKS", "0"},
		{"negative max events", "GDELT_MAX_EVENTS", "-5"},
		{"malformed timeout", "GDELT_TIMEOUT", "sixty"},
		{"negative interval", "RUN_INTERVAL", "-1m"},
		{"resolution too high", "H3_RESOLUTION", "16"},
		{"negative resolution", "H3_RESOLUTION", "-1"},
		{"zero insight count", "INSIGHT_COUNT", "0"},
		{"topic without brokers", "KAFKA_SINK_TOPIC", "vibe.results"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadThemeWeightsFile(t *testing.T) {
	t.Run("valid override replaces both tables", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "weights.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"progress": {"ENV_GREEN": 3.0},
			"noise": {"KILL": 1.0}
		}`), 0o644))
		t.Setenv("THEME_WEIGHTS_FILE", path)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 3.0, cfg.ProgressWeights["ENV_GREEN"])
		assert.Len(t, cfg.ProgressWeights, 1)
		assert.Equal(t, 1.0, cfg.NoiseWeights["KILL"])
	})

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("THEME_WEIGHTS_FILE", filepath.Join(t.TempDir(), "nope.json"))

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "weights.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		t.Setenv("THEME_WEIGHTS_FILE", path)

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("one table missing", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "weights.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"progress": {"ENV_GREEN": 3.0}}`), 0o644))
		t.Setenv("THEME_WEIGHTS_FILE", path)

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDefaultWeightVocabularies(t *testing.T) {
	progress := DefaultProgressWeights()
	noise := DefaultNoiseWeights()

	assert.Equal(t, 2.0, progress["WB_AID_AND_DEVELOPMENT"])
	assert.Equal(t, 1.2, progress["ENV_GREEN"])
	assert.Equal(t, 2.0, noise["KILL"])
	assert.Equal(t, 2.5, noise["TERROR"])

	// No theme may appear in both vocabularies.
	for theme := range progress {
		_, dup := noise[theme]
		assert.False(t, dup, "theme %s in both tables", theme)
	}
}
