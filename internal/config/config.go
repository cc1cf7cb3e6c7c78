// Package config provides Viper-based hierarchical configuration management
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	// Timezones must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/dvloznov/finance-agent/internal/agent"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FINAGENT"

// Storage backends.
const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server struct {
		Port            string        `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		// APIToken enables bearer authentication when set.
		APIToken       string `mapstructure:"api_token"`
		AllowedOrigins string `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Gemini struct {
		APIKey  string        `mapstructure:"api_key"`
		Model   string        `mapstructure:"model"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"gemini"`

	Agent struct {
		Timezone            string        `mapstructure:"timezone"`
		PersistenceTimeout  time.Duration `mapstructure:"persistence_timeout"`
		NotificationTimeout time.Duration `mapstructure:"notification_timeout"`
	} `mapstructure:"agent"`

	Storage struct {
		Backend   string `mapstructure:"backend"`
		ProjectID string `mapstructure:"project_id"`
	} `mapstructure:"storage"`

	// Audit is disabled when ProjectID is empty.
	Audit struct {
		ProjectID string `mapstructure:"project_id"`
		Dataset   string `mapstructure:"dataset"`
	} `mapstructure:"audit"`

	// Archive is disabled when Bucket is empty.
	Archive struct {
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"archive"`

	// Notion mirroring is disabled unless both fields are set.
	Notion struct {
		Token      string `mapstructure:"token"`
		DatabaseID string `mapstructure:"database_id"`
	} `mapstructure:"notion"`

	Telegram struct {
		BotToken      string `mapstructure:"bot_token"`
		DefaultChatID string `mapstructure:"default_chat_id"`
		WebhookSecret string `mapstructure:"webhook_secret"`
		// Users maps chat IDs to user IDs.
		Users map[string]string `mapstructure:"-"`
	} `mapstructure:"telegram"`

	Delivery struct {
		QueueSize  int `mapstructure:"queue_size"`
		Workers    int `mapstructure:"workers"`
		MaxRetries int `mapstructure:"max_retries"`
	} `mapstructure:"delivery"`
}

// Load reads configuration from defaults, an optional YAML file, a .env file
// and the environment, in increasing order of precedence. An empty path
// searches the working directory and $HOME/.finagent for config.yaml.
func Load(path string) (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.finagent")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Load: reading config file: %w", err)
		}
	}

	// Secrets conventionally live in unprefixed variables.
	for key, env := range map[string]string{
		"gemini.api_key":     "GEMINI_API_KEY",
		"telegram.bot_token": "TELEGRAM_BOT_TOKEN",
		"notion.token":       "NOTION_TOKEN",
	} {
		if os.Getenv(EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))) != "" {
			continue
		}
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("Load: binding %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Load: unmarshal config: %w", err)
	}

	users, err := chatUsers(v)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	cfg.Telegram.Users = users

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.api_token", "")
	v.SetDefault("server.allowed_origins", "*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", agent.DefaultModelName)
	v.SetDefault("gemini.timeout", agent.DefaultGenerationTimeout.String())

	v.SetDefault("agent.timezone", agent.DefaultTimezone)
	v.SetDefault("agent.persistence_timeout", agent.DefaultPersistenceTimeout.String())
	v.SetDefault("agent.notification_timeout", agent.DefaultNotificationTimeout.String())

	v.SetDefault("storage.backend", BackendFirestore)
	v.SetDefault("storage.project_id", "")

	v.SetDefault("audit.project_id", "")
	v.SetDefault("audit.dataset", "finance")

	v.SetDefault("archive.bucket", "")

	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.default_chat_id", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.users", "")

	v.SetDefault("delivery.queue_size", 100)
	v.SetDefault("delivery.workers", 2)
	v.SetDefault("delivery.max_retries", 3)
}

// chatUsers reads telegram.users either as a YAML map or as an environment
// string of the form "chat=user,chat=user".
func chatUsers(v *viper.Viper) (map[string]string, error) {
	if s, ok := v.Get("telegram.users").(string); ok {
		return ParseChatUsers(s)
	}
	return v.GetStringMapString("telegram.users"), nil
}

// ParseChatUsers parses "chat=user" pairs separated by commas.
func ParseChatUsers(s string) (map[string]string, error) {
	users := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		chat, user, ok := strings.Cut(pair, "=")
		chat, user = strings.TrimSpace(chat), strings.TrimSpace(user)
		if !ok || chat == "" || user == "" {
			return nil, fmt.Errorf("invalid telegram user mapping %q (want chat=user)", pair)
		}
		users[chat] = user
	}
	return users, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Log.Format)
	}

	switch c.Storage.Backend {
	case BackendFirestore:
		if c.Storage.ProjectID == "" {
			return fmt.Errorf("storage.project_id is required for the firestore backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid storage backend: %s (must be 'firestore' or 'memory')", c.Storage.Backend)
	}

	if _, err := time.LoadLocation(c.Agent.Timezone); err != nil {
		return fmt.Errorf("invalid agent.timezone %q: %w", c.Agent.Timezone, err)
	}
	if c.Gemini.Timeout <= 0 {
		return fmt.Errorf("gemini.timeout must be positive, got: %s", c.Gemini.Timeout)
	}
	if c.Delivery.Workers < 1 {
		return fmt.Errorf("delivery.workers must be at least 1, got: %d", c.Delivery.Workers)
	}
	if c.Delivery.QueueSize < 1 {
		return fmt.Errorf("delivery.queue_size must be at least 1, got: %d", c.Delivery.QueueSize)
	}
	return nil
}

// Location returns the configured agent timezone.
func (c *Config) Location() (*time.Location, error) {
	// An empty name would load UTC.
	if c.Agent.Timezone == "" {
		return agent.DefaultLocation(), nil
	}
	return time.LoadLocation(c.Agent.Timezone)
}

// RequireGemini reports whether a Gemini API key is configured.
func (c *Config) RequireGemini() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	return nil
}

// AgentConfig builds the agent.Config for this configuration.
func (c *Config) AgentConfig() (agent.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return agent.Config{}, err
	}
	return agent.Config{
		Location:            loc,
		DefaultChatID:       c.Telegram.DefaultChatID,
		GenerationTimeout:   c.Gemini.Timeout,
		PersistenceTimeout:  c.Agent.PersistenceTimeout,
		NotificationTimeout: c.Agent.NotificationTimeout,
	}, nil
}
