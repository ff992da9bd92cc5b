package personaquiz

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Quiz defaults
const (
	ConcurrentLimit  = 3
	CallTimeout      = 50 * time.Second
	MaxAttempts      = 5
	RetryBackoff     = 2000 * time.Millisecond
	RefillDebounce   = 50 * time.Millisecond
	DefaultModel     = "gpt-3.5-turbo"
	DefaultAge       = 25
	StorageKey       = "mbti_quiz_state"
	DefaultIdleLimit = 15 * time.Minute
)

var validate = validator.New()

// ClientConfig is everything the API gateway needs. It is also the key of the
// shared client handle.
type ClientConfig struct {
	APIKey  string `validate:"required"`
	BaseURL string `validate:"omitempty,url"`
	Model   string `validate:"required"`
}

// Validate checks the client config eagerly
func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" || c.APIKey == "your_openai_api_key_here" {
		return &ConfigurationError{Field: "APIKey", Reason: "no API key configured"}
	}
	if err := validate.Struct(c); err != nil {
		return &ConfigurationError{Field: "ClientConfig", Reason: err.Error()}
	}
	return nil
}

// Config holds all settings of the quiz, read from the environment
type Config struct {
	APIKey  string `envconfig:"OPENAI_API_KEY"`
	BaseURL string `envconfig:"OPENAI_BASE_URL"`
	Model   string `envconfig:"OPENAI_MODEL" default:"gpt-3.5-turbo"`

	CallTimeout     time.Duration `envconfig:"PERSONAQUIZ_CALL_TIMEOUT" default:"50s" validate:"gt=0"`
	MaxAttempts     int           `envconfig:"PERSONAQUIZ_MAX_ATTEMPTS" default:"5" validate:"min=1"`
	RetryBackoff    time.Duration `envconfig:"PERSONAQUIZ_RETRY_BACKOFF" default:"2s" validate:"gte=0"`
	ConcurrentLimit int           `envconfig:"PERSONAQUIZ_CONCURRENT_LIMIT" default:"3" validate:"min=1"`
	RefillDebounce  time.Duration `envconfig:"PERSONAQUIZ_REFILL_DEBOUNCE" default:"50ms" validate:"gte=0"`
	IdleTimeout     time.Duration `envconfig:"PERSONAQUIZ_IDLE_TIMEOUT" default:"15m" validate:"gte=0"`

	// Store selects the session backend: file, sqlite or redis
	Store      string `envconfig:"PERSONAQUIZ_STORE" default:"file" validate:"oneof=file sqlite redis"`
	StateDir   string `envconfig:"PERSONAQUIZ_STATE_DIR"`
	RedisAddr  string `envconfig:"PERSONAQUIZ_REDIS_ADDR" default:"localhost:6379"`
	RedisDB    int    `envconfig:"PERSONAQUIZ_REDIS_DB" default:"0"`
	RedisPass  string `envconfig:"PERSONAQUIZ_REDIS_PASSWORD"`
	Transcript bool   `envconfig:"PERSONAQUIZ_TRANSCRIPT" default:"false"`

	LogLevel    string `envconfig:"PERSONAQUIZ_LOG_LEVEL" default:"warn"`
	LogEncoding string `envconfig:"PERSONAQUIZ_LOG_ENCODING" default:"console"`
	LogPath     string `envconfig:"PERSONAQUIZ_LOG_PATH"`

	PushgatewayURL string `envconfig:"PERSONAQUIZ_PUSHGATEWAY_URL" validate:"omitempty,url"`
}

// LoadConfig reads the configuration from environment variables
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.StateDir == "" {
		cfg.StateDir = defaultStateDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations. A missing API key is not an error
// here: the quiz still runs on template content.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &ConfigurationError{Field: "Config", Reason: err.Error()}
	}
	return nil
}

// Client returns the gateway part of the configuration
func (c *Config) Client() ClientConfig {
	return ClientConfig{APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model}
}

// ExecutorOptions returns the retry policy of the configuration
func (c *Config) ExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		Timeout:     c.CallTimeout,
		MaxAttempts: c.MaxAttempts,
		Backoff:     c.RetryBackoff,
	}
}

// LogConfig returns the logger settings of the configuration
func (c *Config) LogConfig() LogConfig {
	return LogConfig{Level: c.LogLevel, Encoding: c.LogEncoding, OutputPath: c.LogPath}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".personaquiz"
	}
	return filepath.Join(home, ".personaquiz")
}

// SchedulerOptions returns the generation limits of the configuration
func (c *Config) SchedulerOptions() SchedulerOptions {
	return SchedulerOptions{Limit: c.ConcurrentLimit, Debounce: c.RefillDebounce}
}
