package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type Config struct {
	Port string

	StorageBackend  string
	DatabasePath    string
	ProjectID       string
	MaxStoredTweets int
	TweetsPerPage   int

	GeminiAPIKey string
	GeminiModel  string
	LLMTimeout   time.Duration
	BatchSize    int

	TwitterAuthToken string
	TwitterCSRFToken string
	SessionPath      string
	RequestTimeout   time.Duration
	MaxRetries       int
	RateLimitDelay   time.Duration

	ThreadMaxDepth    int
	ThreadMaxChildren int
	ThreadMaxPages    int

	Monitor MonitorConfig

	ChatWebhookURL string
	MessageFormat  string
	Language       string

	RedisAddr   string
	PromptsPath string
	LogLevel    slog.Level
}

// MonitorConfig holds the auto-monitor tuning knobs.
type MonitorConfig struct {
	Interval          time.Duration
	StartupDelay      time.Duration
	MaxTweetsPerCheck int
	MinRelevance      float64
	SkipRetweets      bool
	SkipReplies       bool
	RelevantOnly      bool
	AutoStart         bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	cfg := &Config{
		Port:             envOr("PORT", "8080"),
		StorageBackend:   strings.ToLower(envOr("STORAGE_BACKEND", BackendSQLite)),
		DatabasePath:     envOr("DATABASE_PATH", "data/xparser.db"),
		ProjectID:        os.Getenv("GOOGLE_CLOUD_PROJECT"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		TwitterAuthToken: os.Getenv("TWITTER_AUTH_TOKEN"),
		TwitterCSRFToken: os.Getenv("TWITTER_CSRF_TOKEN"),
		SessionPath:      envOr("SESSION_PATH", "data/session.json"),
		ChatWebhookURL:   os.Getenv("CHAT_WEBHOOK_URL"),
		MessageFormat:    strings.ToLower(envOr("BOT_MESSAGE_FORMAT", "detailed")),
		Language:         strings.ToLower(envOr("BOT_LANGUAGE", "ru")),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		PromptsPath:      os.Getenv("PROMPTS_PATH"),
	}

	switch cfg.StorageBackend {
	case BackendSQLite:
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required for the firestore backend")
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q: want sqlite or firestore", cfg.StorageBackend)
	}

	if cfg.MessageFormat != "brief" && cfg.MessageFormat != "detailed" {
		return nil, fmt.Errorf("invalid BOT_MESSAGE_FORMAT %q: want brief or detailed", cfg.MessageFormat)
	}
	if cfg.Language != "ru" && cfg.Language != "en" {
		return nil, fmt.Errorf("invalid BOT_LANGUAGE %q: want ru or en", cfg.Language)
	}

	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY not set, AI analysis will be skipped")
	}
	if cfg.ChatWebhookURL == "" {
		slog.Warn("CHAT_WEBHOOK_URL not set, chat notifications will be skipped")
	}

	var err error
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"LLM_TIMEOUT", "60s", &cfg.LLMTimeout},
		{"REQUEST_TIMEOUT", "30s", &cfg.RequestTimeout},
		{"RATE_LIMIT_DELAY", "2s", &cfg.RateLimitDelay},
		{"MONITOR_INTERVAL", "30m", &cfg.Monitor.Interval},
		{"MONITOR_STARTUP_DELAY", "5s", &cfg.Monitor.StartupDelay},
	}
	for _, d := range durations {
		if *d.dst, err = envDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key string
		def int
		low int
		dst *int
	}{
		{"MAX_STORED_TWEETS", 5000, 1, &cfg.MaxStoredTweets},
		{"TWEETS_PER_PAGE", 20, 1, &cfg.TweetsPerPage},
		{"ANALYSIS_BATCH_SIZE", 10, 1, &cfg.BatchSize},
		{"MAX_RETRIES", 3, 0, &cfg.MaxRetries},
		{"THREAD_MAX_DEPTH", 3, 1, &cfg.ThreadMaxDepth},
		{"THREAD_MAX_CHILDREN", 50, 1, &cfg.ThreadMaxChildren},
		{"THREAD_MAX_PAGES", 5, 1, &cfg.ThreadMaxPages},
		{"MONITOR_MAX_TWEETS", 50, 1, &cfg.Monitor.MaxTweetsPerCheck},
	}
	for _, i := range ints {
		if *i.dst, err = envInt(i.key, i.def, i.low); err != nil {
			return nil, err
		}
	}

	bools := []struct {
		key string
		def bool
		dst *bool
	}{
		{"MONITOR_SKIP_RETWEETS", true, &cfg.Monitor.SkipRetweets},
		{"MONITOR_SKIP_REPLIES", false, &cfg.Monitor.SkipReplies},
		{"MONITOR_RELEVANT_ONLY", true, &cfg.Monitor.RelevantOnly},
		{"MONITOR_AUTOSTART", false, &cfg.Monitor.AutoStart},
	}
	for _, b := range bools {
		if *b.dst, err = envBool(b.key, b.def); err != nil {
			return nil, err
		}
	}

	cfg.Monitor.MinRelevance = 0.5
	if v := os.Getenv("MONITOR_MIN_SCORE"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MONITOR_MIN_SCORE %q: %w", v, err)
		}
		if parsed < 0 || parsed > 1 {
			return nil, fmt.Errorf("invalid MONITOR_MIN_SCORE %q: must be between 0 and 1", v)
		}
		cfg.Monitor.MinRelevance = parsed
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", v, err)
		}
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key, def string) (time.Duration, error) {
	raw := envOr(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}

func envInt(key string, def, low int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if parsed < low {
		return 0, fmt.Errorf("invalid %s %q: must be >= %d", key, v, low)
	}
	return parsed, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}
