package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig
	Gateway  GatewayConfig
	Provider ProviderConfig
	Store    StoreConfig
	Persist  PersistConfig
	Log      LogConfig
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// GatewayConfig holds the remote inference gateway endpoint used by the
// widget backend.
type GatewayConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProviderConfig holds the LLM provider configuration used by the relay.
// BaseURL accepts any OpenAI-compatible endpoint. Referer and Title are the
// attribution headers OpenRouter expects on every call.
type ProviderConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
	Referer      string `mapstructure:"referer"`
	Title        string `mapstructure:"title"`
}

// StoreConfig holds the conversation store configuration
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// PersistConfig holds the local persistence configuration
type PersistConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads config.yaml from the working directory. Environment variables
// with the INGE_ prefix override file values; a missing file is fine since
// defaults cover everything except the provider API key.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("gateway.url", "http://localhost:8081/chatbot")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("provider.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("provider.model", "mistralai/mistral-7b-instruct:free")
	// AutomaticEnv only feeds Unmarshal for keys viper already knows, so
	// every key needs at least an empty default.
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.system_prompt", "")
	v.SetDefault("provider.referer", "")
	v.SetDefault("provider.title", "")
	v.SetDefault("store.path", "conversations.db")
	v.SetDefault("persist.dir", ".inge")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("INGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
