// Package config builds the process-lifetime Config record from the
// environment, optionally seeded by a KEY=VALUE env-file, and threads
// it explicitly through the queue, intake validator and worker rather
// than reading ad-hoc globals at import time.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ripqueue/internal/pathrules"
	"ripqueue/internal/xerrors"
)

// AudioPolicy is the configured default for how audio streams are
// handled, unless overridden per-job by the source type.
type AudioPolicy string

const (
	AudioAuto   AudioPolicy = "auto"
	AudioEncode AudioPolicy = "encode"
	AudioCopy   AudioPolicy = "copy"
)

// QueueBackend selects the durable queue implementation.
type QueueBackend string

const (
	QueueVolatile QueueBackend = "volatile"
	QueueSQLite   QueueBackend = "sqlite"
)

// Config is the full process configuration, built once in main and
// passed by value or pointer to every component that needs it.
type Config struct {
	MQTTHost     string
	MQTTPort     int
	MQTTUsername string
	MQTTPassword string
	MQTTTLS      bool

	TopicJobs  string
	TopicStart string
	TopicDone  string
	TopicError string

	Roots             pathrules.Roots
	DefaultSourceType string

	AudioLanguages    []string
	SubtitleLanguages []string
	AudioPolicy       AudioPolicy
	EnableDownmix     bool
	EnableSWFallback  bool
	MaxHWRetries      int

	QueueBackend QueueBackend
	QueueDBPath  string
	PollInterval time.Duration
	ClaimTTL     time.Duration

	GPULockPath string
	FFmpegBin   string
	FFprobeBin  string

	ReconcileBatchSize            int
	ReconcileIncludeProbeFailures bool

	LogLevel string
}

// Default returns a Config populated with the documented defaults,
// before any environment overrides are applied.
func Default() *Config {
	return &Config{
		MQTTPort:   1883,
		TopicJobs:  "ripqueue/jobs",
		TopicStart: "ripqueue/status/start",
		TopicDone:  "ripqueue/status/done",
		TopicError: "ripqueue/status/error",

		Roots: pathrules.Roots{
			SeriesSubpath: "Serien",
			MovieSubpath:  "Filme",
		},
		DefaultSourceType: "dvd",

		AudioPolicy:      AudioAuto,
		EnableSWFallback: true,
		MaxHWRetries:     2,

		QueueBackend: QueueSQLite,
		QueueDBPath:  "/var/lib/ripqueue/queue.db",
		PollInterval: 2 * time.Second,
		ClaimTTL:     6 * time.Hour,

		GPULockPath: "/var/lock/ripqueue-gpu.lock",
		FFmpegBin:   "ffmpeg",
		FFprobeBin:  "ffprobe",

		ReconcileBatchSize:            5,
		ReconcileIncludeProbeFailures: false,

		LogLevel: "info",
	}
}

// Load builds a Config from the process environment. If envFile is
// non-empty, its KEY=VALUE lines seed any variable not already present
// in the environment before reading begins — real environment
// variables always win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil {
			return nil, err
		}
	}

	cfg := Default()

	cfg.MQTTHost = getenv("MQTT_HOST", cfg.MQTTHost)
	if v, ok := os.LookupEnv("MQTT_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: MQTT_PORT: %v", xerrors.ErrConfig, err)
		}
		cfg.MQTTPort = port
	}
	cfg.MQTTUsername = getenv("MQTT_USERNAME", cfg.MQTTUsername)
	cfg.MQTTPassword = getenv("MQTT_PASSWORD", cfg.MQTTPassword)
	cfg.MQTTTLS = getbool("MQTT_TLS", cfg.MQTTTLS)

	cfg.TopicJobs = getenv("MQTT_TOPIC_JOBS", cfg.TopicJobs)
	cfg.TopicStart = getenv("MQTT_TOPIC_START", cfg.TopicStart)
	cfg.TopicDone = getenv("MQTT_TOPIC_DONE", cfg.TopicDone)
	cfg.TopicError = getenv("MQTT_TOPIC_ERROR", cfg.TopicError)

	cfg.Roots.SourceBase = getenv("SRC_BASE", cfg.Roots.SourceBase)
	cfg.Roots.SeriesSubpath = getenv("SERIES_SUBPATH", cfg.Roots.SeriesSubpath)
	cfg.Roots.MovieSubpath = getenv("MOVIE_SUBPATH", cfg.Roots.MovieSubpath)
	cfg.Roots.SeriesDestBase = getenv("SERIES_DST_BASE", cfg.Roots.SeriesDestBase)
	cfg.Roots.MovieDestBase = getenv("MOVIE_DST_BASE", cfg.Roots.MovieDestBase)
	cfg.DefaultSourceType = strings.ToLower(getenv("DEFAULT_SOURCE_TYPE", cfg.DefaultSourceType))

	if v, ok := os.LookupEnv("AUDIO_LANGUAGES"); ok {
		cfg.AudioLanguages = splitCSV(v)
	}
	if v, ok := os.LookupEnv("SUBTITLE_LANGUAGES"); ok {
		cfg.SubtitleLanguages = splitCSV(v)
	}
	if v, ok := os.LookupEnv("AUDIO_POLICY"); ok {
		switch AudioPolicy(strings.ToLower(v)) {
		case AudioAuto, AudioEncode, AudioCopy:
			cfg.AudioPolicy = AudioPolicy(strings.ToLower(v))
		default:
			return nil, fmt.Errorf("%w: AUDIO_POLICY %q must be auto, encode or copy", xerrors.ErrConfig, v)
		}
	}
	cfg.EnableDownmix = getbool("ENABLE_AUDIO_DOWNMIX", cfg.EnableDownmix)
	cfg.EnableSWFallback = getbool("ENABLE_SW_FALLBACK", cfg.EnableSWFallback)
	if v, ok := os.LookupEnv("MAX_HW_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: MAX_HW_RETRIES must be a non-negative integer", xerrors.ErrConfig)
		}
		cfg.MaxHWRetries = n
	}

	if v, ok := os.LookupEnv("QUEUE_BACKEND"); ok {
		switch QueueBackend(strings.ToLower(v)) {
		case QueueVolatile, QueueSQLite:
			cfg.QueueBackend = QueueBackend(strings.ToLower(v))
		default:
			return nil, fmt.Errorf("%w: QUEUE_BACKEND %q must be volatile or sqlite", xerrors.ErrConfig, v)
		}
	}
	cfg.QueueDBPath = getenv("QUEUE_DB_PATH", cfg.QueueDBPath)
	if v, ok := os.LookupEnv("QUEUE_POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: QUEUE_POLL_INTERVAL: %v", xerrors.ErrConfig, err)
		}
		cfg.PollInterval = d
	}
	if v, ok := os.LookupEnv("QUEUE_CLAIM_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: QUEUE_CLAIM_TTL: %v", xerrors.ErrConfig, err)
		}
		cfg.ClaimTTL = d
	}

	cfg.GPULockPath = getenv("GPU_LOCK_PATH", cfg.GPULockPath)
	cfg.FFmpegBin = resolveBinary("FFMPEG_BIN", "/usr/lib/jellyfin-ffmpeg/ffmpeg", "ffmpeg")
	cfg.FFprobeBin = resolveBinary("FFPROBE_BIN", "/usr/lib/jellyfin-ffmpeg/ffprobe", "ffprobe")

	if v, ok := os.LookupEnv("RECONCILE_BATCH_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: RECONCILE_BATCH_SIZE must be a positive integer", xerrors.ErrConfig)
		}
		cfg.ReconcileBatchSize = n
	}
	cfg.ReconcileIncludeProbeFailures = getbool("RECONCILE_INCLUDE_PROBE_FAILURES", cfg.ReconcileIncludeProbeFailures)

	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL", cfg.LogLevel))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.QueueBackend == QueueSQLite && c.QueueDBPath == "" {
		return fmt.Errorf("%w: QUEUE_DB_PATH is required for sqlite queue backend", xerrors.ErrConfig)
	}
	if c.DefaultSourceType != "dvd" && c.DefaultSourceType != "bluray" {
		return fmt.Errorf("%w: DEFAULT_SOURCE_TYPE must be dvd or bluray", xerrors.ErrConfig)
	}
	return nil
}

func resolveBinary(envKey, fallbackPath, bareName string) string {
	if v, ok := os.LookupEnv(envKey); ok && v != "" {
		return v
	}
	if st, err := os.Stat(fallbackPath); err == nil && !st.IsDir() {
		return fallbackPath
	}
	return bareName
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

// loadEnvFile parses KEY=VALUE lines from path and sets any variable
// not already present in the process environment, skipping blank lines
// and comments. Malformed lines are skipped silently rather than
// failing the whole load.
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading env file %s: %v", xerrors.ErrConfig, path, err)
	}
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" {
			continue
		}
		if _, already := os.LookupEnv(key); already {
			continue
		}
		value := strings.TrimSpace(line[idx+1:])
		os.Setenv(key, value)
	}
	return nil
}
