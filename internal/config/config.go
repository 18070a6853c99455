package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalatlas/vibe-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Source settings.
	MasterURL      string
	Blocks         int
	MaxEvents      int // 0 = unlimited
	RequestTimeout time.Duration

	// Aggregation settings.
	Resolution   int
	InsightCount int

	// Export settings.
	ExportDir string
	S3Bucket  string // empty disables the S3 publish
	S3Prefix  string

	// Optional downstream feed.
	KafkaBrokers   []string
	KafkaSinkTopic string // empty disables the Kafka publish

	// Run settings.
	RunInterval     time.Duration // 0 = single run
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Theme vocabularies injected into the classifier.
	ProgressWeights domain.ThemeWeights
	NoiseWeights    domain.ThemeWeights
}

// DefaultMasterURL is the GDELT v2 master file list.
const DefaultMasterURL = "http://data.gdeltproject.org/gdeltv2/masterfilelist.txt"

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	blocks, err := envInt("GDELT_BLOCKS", 16)
	if err != nil {
		return nil, err
	}
	maxEvents, err := envInt("GDELT_MAX_EVENTS", 0)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := envDuration("GDELT_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	resolution, err := envInt("H3_RESOLUTION", 4)
	if err != nil {
		return nil, err
	}
	insightCount, err := envInt("INSIGHT_COUNT", 5)
	if err != nil {
		return nil, err
	}
	runInterval, err := envDuration("RUN_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	progress, noise, err := loadThemeWeights(os.Getenv("THEME_WEIGHTS_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MasterURL:      envOrDefault("GDELT_MASTER_URL", DefaultMasterURL),
		Blocks:         blocks,
		MaxEvents:      maxEvents,
		RequestTimeout: requestTimeout,

		Resolution:   resolution,
		InsightCount: insightCount,

		ExportDir: envOrDefault("EXPORT_DIR", "data"),
		S3Bucket:  os.Getenv("S3_BUCKET"),
		S3Prefix:  os.Getenv("S3_PREFIX"),

		KafkaBrokers:   splitBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaSinkTopic: os.Getenv("KAFKA_SINK_TOPIC"),

		RunInterval:     runInterval,
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ProgressWeights: progress,
		NoiseWeights:    noise,
	}

	if cfg.Blocks <= 0 {
		return nil, errors.New("GDELT_BLOCKS must be positive")
	}
	if cfg.MaxEvents < 0 {
		return nil, errors.New("GDELT_MAX_EVENTS must not be negative")
	}
	if cfg.Resolution < 0 || cfg.Resolution > 15 {
		return nil, errors.New("H3_RESOLUTION must be between 0 and 15")
	}
	if cfg.InsightCount <= 0 {
		return nil, errors.New("INSIGHT_COUNT must be positive")
	}
	if cfg.MasterURL == "" {
		return nil, errors.New("GDELT_MASTER_URL is required")
	}
	if cfg.KafkaSinkTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_SINK_TOPIC is set but KAFKA_BROKERS is not")
	}

	return cfg, nil
}

// themeWeightsFile is the JSON shape accepted by THEME_WEIGHTS_FILE.
type themeWeightsFile struct {
	Progress domain.ThemeWeights `json:"progress"`
	Noise    domain.ThemeWeights `json:"noise"`
}

// loadThemeWeights returns the shipped vocabularies, or the contents of an
// override file when one is configured. An override replaces both tables.
func loadThemeWeights(path string) (domain.ThemeWeights, domain.ThemeWeights, error) {
	if path == "" {
		return DefaultProgressWeights(), DefaultNoiseWeights(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read THEME_WEIGHTS_FILE: %w", err)
	}
	var file themeWeightsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("parse THEME_WEIGHTS_FILE: %w", err)
	}
	if len(file.Progress) == 0 || len(file.Noise) == 0 {
		return nil, nil, errors.New("THEME_WEIGHTS_FILE must define both progress and noise tables")
	}
	return file.Progress, file.Noise, nil
}

// DefaultProgressWeights is the shipped vocabulary of high-impact
// positive-development themes.
func DefaultProgressWeights() domain.ThemeWeights {
	return domain.ThemeWeights{
		"WB_AID_AND_DEVELOPMENT":             2.0,
		"WB_HEALTH_NUTRITION_AND_POPULATION": 2.0,
		"SOC_POINTSOF_LIGHT":                 1.5,
		"ECON_DEVELOPMENT":                   1.5,
		"PEACEKEEPING":                       1.5,
		"ENV_GREEN":                          1.2,
	}
}

// DefaultNoiseWeights is the shipped vocabulary of high-impact
// conflict/harm themes.
func DefaultNoiseWeights() domain.ThemeWeights {
	return domain.ThemeWeights{
		"TAX_FNCACT_PROTEST": 1.5,
		"KILL":               2.0,
		"REBEL":              1.5,
		"TORTURE":            2.5,
		"TERROR":             2.5,
		"ARMEDCONFL":         2.0,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func splitBrokers(raw string) []string {
	if raw == "" {
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
