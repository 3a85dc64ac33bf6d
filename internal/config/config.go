package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/kelseyhightower/envconfig"
)

// Config centralizes runtime settings for the API and the dispatcher.
type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`

	Dispatch Dispatch
	Storage  Storage
	AI       AI

	DatabaseURL string `envconfig:"DATABASE_URL"`

	APIKey             string   `envconfig:"API_KEY"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       float64  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst     int      `envconfig:"RATE_LIMIT_BURST" default:"40"`
}

type Dispatch struct {
	PollInterval time.Duration `envconfig:"DISPATCH_POLL_INTERVAL" default:"2s"`
	Synchronous  bool          `envconfig:"DISPATCH_SYNCHRONOUS" default:"false"`
	ReloadQueue  bool          `envconfig:"DISPATCH_RELOAD_QUEUE" default:"true"`
	PersistQueue bool          `envconfig:"DISPATCH_PERSIST_QUEUE" default:"true"`
	StreamInput  bool          `envconfig:"DISPATCH_STREAM_INPUT" default:"false"`
	Similarity   string        `envconfig:"SIMILARITY" default:"difflib"`
	ResultTTL    time.Duration `envconfig:"DISPATCH_RESULT_TTL" default:"24h"`
	ResultLimit  int           `envconfig:"DISPATCH_RESULT_LIMIT" default:"10000"`

	Snapshot      string `envconfig:"QUEUE_SNAPSHOT" default:"file"`
	QueueFile     string `envconfig:"QUEUE_FILE" default:".queue"`
	RedisURL      string `envconfig:"REDIS_URL"`
	RedisQueueKey string `envconfig:"REDIS_QUEUE_KEY" default:"assessment_dispatch:queue"`
}

type Storage struct {
	Backend   string `envconfig:"STORAGE_BACKEND" default:"local"`
	Endpoint  string `envconfig:"STORAGE_ENDPOINT"`
	AccessKey string `envconfig:"STORAGE_ACCESS_KEY"`
	SecretKey string `envconfig:"STORAGE_SECRET_KEY"`
	Bucket    string `envconfig:"STORAGE_BUCKET" default:"assessments"`
	UseSSL    bool   `envconfig:"STORAGE_USE_SSL" default:"true"`
	LocalDir  string `envconfig:"STORAGE_LOCAL_DIR" default:"data"`
}

type AI struct {
	Provider          string        `envconfig:"AI_PROVIDER" default:"openai"`
	OpenAIAPIKey      string        `envconfig:"OPENAI_API_KEY"`
	OpenAIOrg         string        `envconfig:"OPENAI_ORG_KEY"`
	OpenAIProject     string        `envconfig:"OPENAI_PROJ_KEY"`
	OpenAIBaseURL     string        `envconfig:"OPENAI_BASE_URL"`
	OpenRouterAPIKey  string        `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string        `envconfig:"OPENROUTER_BASE_URL"`
	VivaModel         string        `envconfig:"AI_MODEL_VIVA"`
	RubricModel       string        `envconfig:"AI_MODEL_RUBRIC"`
	Timeout           time.Duration `envconfig:"AI_TIMEOUT" default:"90s"`
	MaxRetries        int           `envconfig:"AI_MAX_RETRIES" default:"2"`
	RequestsPerMinute int           `envconfig:"AI_REQUESTS_PER_MINUTE" default:"30"`
	PromptsDir        string        `envconfig:"PROMPTS_DIR"`
}

// Load reads the process environment after merging the given .env files into it.
func Load(dotEnvFiles ...string) (Config, error) {
	if _, err := LoadDotEnv(dotEnvFiles...); err != nil {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, domain.InvalidInput("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Dispatch.PollInterval < 0 {
		return domain.InvalidInput("DISPATCH_POLL_INTERVAL must not be negative")
	}
	if c.Dispatch.ResultTTL <= 0 || c.Dispatch.ResultLimit <= 0 {
		return domain.InvalidInput("DISPATCH_RESULT_TTL and DISPATCH_RESULT_LIMIT must be positive")
	}
	if !oneOf(c.Dispatch.Snapshot, "file", "redis") {
		return domain.InvalidInput("QUEUE_SNAPSHOT must be file or redis, got %q", c.Dispatch.Snapshot)
	}
	if c.Dispatch.Snapshot == "redis" && strings.TrimSpace(c.Dispatch.RedisURL) == "" {
		return domain.InvalidInput("REDIS_URL is required when QUEUE_SNAPSHOT is redis")
	}
	if !oneOf(c.Storage.Backend, "s3", "local") {
		return domain.InvalidInput("STORAGE_BACKEND must be s3 or local, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && strings.TrimSpace(c.Storage.Endpoint) == "" {
		return domain.InvalidInput("STORAGE_ENDPOINT is required when STORAGE_BACKEND is s3")
	}
	if !oneOf(c.AI.Provider, "openai", "openrouter") {
		return domain.InvalidInput("AI_PROVIDER must be openai or openrouter, got %q", c.AI.Provider)
	}
	if !oneOf(c.Dispatch.Similarity, "difflib", "levenshtein") {
		return domain.InvalidInput("SIMILARITY must be difflib or levenshtein, got %q", c.Dispatch.Similarity)
	}
	if c.AI.RequestsPerMinute < 0 || c.AI.MaxRetries < 0 {
		return domain.InvalidInput("AI_REQUESTS_PER_MINUTE and AI_MAX_RETRIES must not be negative")
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
