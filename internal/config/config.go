// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Database drivers understood by the store package.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL"`

	// Profile selects the assistant flavour served by this process.
	Profile           string `env:"ASSISTANT_PROFILE" envDefault:"design"`
	SystemPromptPath  string `env:"SYSTEM_PROMPT_PATH"`
	SummaryPromptPath string `env:"SUMMARY_PROMPT_PATH"`

	OpenAI          OpenAIConfig          `envPrefix:"OPENAI_"`
	OpenRouter      OpenRouterConfig      `envPrefix:"OPENROUTER_"`
	DB              DBConfig              `envPrefix:"DB_"`
	Session         SessionConfig         `envPrefix:"SESSION_"`
	ConversationLog ConversationLogConfig `envPrefix:"CONVERSATION_LOG_"`

	ChatRatePerMinute    int    `env:"CHAT_RATE_PER_MINUTE" envDefault:"10"`
	MaxUploadBytes       int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	DocumentContextLimit int    `env:"DOCUMENT_CONTEXT_LIMIT" envDefault:"1500"`
	HealthGRPCAddr       string `env:"HEALTH_GRPC_ADDR"`
}

// OpenAIConfig configures the chat-completion client.
type OpenAIConfig struct {
	APIKey  string        `env:"API_KEY"`
	BaseURL string        `env:"BASE_URL"`
	Model   string        `env:"MODEL" envDefault:"gpt-4o"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"90s"`
}

// OpenRouterConfig holds the optional attribution headers OpenRouter expects.
type OpenRouterConfig struct {
	Referrer string `env:"REFERRER"`
	Title    string `env:"TITLE"`
}

// DBConfig selects and addresses the transcript database.
type DBConfig struct {
	Driver   string `env:"DRIVER" envDefault:"sqlite"`
	Path     string `env:"PATH" envDefault:"./data/inquiry.db"`
	DSN      string `env:"DSN"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Database string `env:"DATABASE"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// SessionConfig controls in-memory wizard sessions.
type SessionConfig struct {
	TTL           time.Duration `env:"TTL" envDefault:"2h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	CookieName    string        `env:"COOKIE" envDefault:"inquiry_session"`
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool   `env:"ENABLED" envDefault:"true"`
	Dir           string `env:"DIR" envDefault:"./data/logs/conversations"`
	GlobalEnabled bool   `env:"GLOBAL_ENABLED" envDefault:"false"`
	GlobalPath    string `env:"GLOBAL_PATH" envDefault:"./data/logs/conversations/all.ndjson"`
	QueueSize     int    `env:"QUEUE_SIZE" envDefault:"1000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Profile == "" {
		return fmt.Errorf("ASSISTANT_PROFILE cannot be empty")
	}
	if c.OpenAI.Model == "" {
		return fmt.Errorf("OPENAI_MODEL cannot be empty")
	}
	if c.OpenAI.Timeout <= 0 {
		return fmt.Errorf("OPENAI_TIMEOUT must be > 0")
	}
	if err := c.DB.Validate(); err != nil {
		return err
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("SESSION_COOKIE cannot be empty")
	}
	if c.ChatRatePerMinute <= 0 {
		return fmt.Errorf("CHAT_RATE_PER_MINUTE must be > 0")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.DocumentContextLimit <= 0 {
		return fmt.Errorf("DOCUMENT_CONTEXT_LIMIT must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// Validate checks the database section.
func (d DBConfig) Validate() error {
	switch d.Driver {
	case DriverSQLite:
		if d.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DriverPostgres:
		if d.DSN == "" && (d.Host == "" || d.Database == "") {
			return fmt.Errorf("DB_DSN or DB_HOST and DB_DATABASE must be set for postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", d.Driver)
	}
	return nil
}

// DataSource returns the driver-specific connection string.
func (d DBConfig) DataSource() string {
	switch d.Driver {
	case DriverPostgres:
		if d.DSN != "" {
			return d.DSN
		}
		parts := []string{
			"host=" + d.Host,
			fmt.Sprintf("port=%d", d.Port),
			"dbname=" + d.Database,
			"sslmode=" + d.SSLMode,
		}
		if d.User != "" {
			parts = append(parts, "user="+d.User)
		}
		if d.Password != "" {
			parts = append(parts, "password="+d.Password)
		}
		return strings.Join(parts, " ")
	default:
		if d.DSN != "" {
			return d.DSN
		}
		return d.Path
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}
