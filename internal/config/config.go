package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Chat    ChatConfig    `mapstructure:"chat"`
	Server  ServerConfig  `mapstructure:"server"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

// ChatConfig holds the chat widget client configuration
type ChatConfig struct {
	BackendURL           string        `mapstructure:"backend_url"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	RESTTimeout          time.Duration `mapstructure:"rest_timeout"`
	RESTFallback         bool          `mapstructure:"rest_fallback"`
	LogWarnThreshold     int           `mapstructure:"log_warn_threshold"`
}

// ServerConfig holds the reference backend configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// Addr joins host and port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// Enabled reports whether enough is configured to call a model.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// StorageConfig holds paths of the SQLite databases
type StorageConfig struct {
	HistoryPath   string `mapstructure:"history_path"`
	SavedJobsPath string `mapstructure:"saved_jobs_path"`
}

// LogConfig holds logging options
type LogConfig struct {
	Level string `mapstructure:"level"`
}

var defaults = map[string]any{
	"chat.backend_url":            "http://127.0.0.1:8000",
	"chat.reconnect_delay":        3 * time.Second,
	"chat.max_reconnect_attempts": 0,
	"chat.handshake_timeout":      10 * time.Second,
	"chat.ping_interval":          0,
	"chat.rest_timeout":           30 * time.Second,
	"chat.rest_fallback":          false,
	"chat.log_warn_threshold":     1000,
	"server.host":                 "127.0.0.1",
	"server.port":                 "8000",
	"llm.base_url":                "https://models.inference.ai.azure.com",
	"llm.api_key":                 "",
	"llm.model":                   "gpt-4o-mini",
	"llm.system_prompt":           "",
	"storage.history_path":        "history.db",
	"storage.saved_jobs_path":     "saved_jobs.db",
	"log.level":                   "info",
}

// Load loads the configuration. The file is taken from CONFIG_PATH when set,
// otherwise config.yaml is searched in the working directory and is optional.
// JOBCHAT_* environment variables override file values.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("JOBCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Chat.BackendURL) == "" {
		return errors.New("chat.backend_url is required")
	}
	if c.Chat.ReconnectDelay <= 0 {
		return fmt.Errorf("chat.reconnect_delay must be positive, got %s", c.Chat.ReconnectDelay)
	}
	if c.Chat.MaxReconnectAttempts < 0 {
		return fmt.Errorf("chat.max_reconnect_attempts must not be negative, got %d", c.Chat.MaxReconnectAttempts)
	}
	if c.Chat.RESTTimeout <= 0 {
		return fmt.Errorf("chat.rest_timeout must be positive, got %s", c.Chat.RESTTimeout)
	}
	return nil
}
