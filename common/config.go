package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"chatrelay/chat"
)

// Provider names recognized by the relay.
const (
	ProviderGPT    = "gpt"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// KnownProviders lists the providers the relay can route to, in display order.
var KnownProviders = []string{ProviderGPT, ProviderClaude, ProviderGemini}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// ProviderConfig describes one provider's allow-listed models and runtime
// parameters. A requested model must match Default or Fallback.
type ProviderConfig struct {
	Default     string  `koanf:"default"`
	Fallback    string  `koanf:"fallback"`
	Temperature float32 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// AllowedModels returns the models a request may name for this provider.
func (p ProviderConfig) AllowedModels() []string {
	models := []string{p.Default}
	if p.Fallback != "" {
		models = append(models, p.Fallback)
	}
	return models
}

type LimitsConfig struct {
	MaxMessageLength int `koanf:"max_message_length"`
	MaxMessages      int `koanf:"max_messages"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
}

type TimeoutsConfig struct {
	// Connect bounds how long a client attempt may wait for the transport
	// "open" signal before counting as a failure.
	Connect time.Duration `koanf:"connect"`
	// StreamPull bounds each individual pull of the next provider fragment.
	StreamPull time.Duration `koanf:"stream_pull"`
}

type RateLimitConfig struct {
	Window      time.Duration `koanf:"window"`
	MaxRequests int           `koanf:"max_requests"`
	PerProvider int           `koanf:"per_provider"`
}

// Config is the full relay configuration, loaded from defaults, then an
// optional YAML file, then environment overrides.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Providers map[string]ProviderConfig `koanf:"providers"`
	Limits    LimitsConfig              `koanf:"limits"`
	Retry     RetryConfig               `koanf:"retry"`
	Timeouts  TimeoutsConfig            `koanf:"timeouts"`
	RateLimit RateLimitConfig           `koanf:"rate_limit"`
}

// ChatLimits adapts the configured bounds to the validator's type.
func (c Config) ChatLimits() chat.Limits {
	return chat.Limits{
		MaxMessageLength: c.Limits.MaxMessageLength,
		MaxMessages:      c.Limits.MaxMessages,
	}
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 3050},
		Providers: map[string]ProviderConfig{
			ProviderGPT: {
				Default:     "gpt-4o",
				Fallback:    "gpt-4o-mini",
				Temperature: 0.3,
				MaxTokens:   8192,
			},
			ProviderClaude: {
				Default:     "claude-3-5-sonnet-latest",
				Fallback:    "claude-3-5-haiku-latest",
				Temperature: 0.3,
				MaxTokens:   8192,
			},
			ProviderGemini: {
				Default:     "gemini-2.0-flash",
				Fallback:    "gemini-1.5-pro",
				Temperature: 0.3,
				MaxTokens:   8192,
			},
		},
		Limits: LimitsConfig{
			MaxMessageLength: 24000,
			MaxMessages:      50,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Timeouts: TimeoutsConfig{
			Connect:    10 * time.Second,
			StreamPull: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Window:      time.Hour,
			MaxRequests: 500,
			PerProvider: 200,
		},
	}
}

// LoadConfig loads the chatrelay configuration from the given file path,
// layered on top of the built-in defaults. A missing file is not an error.
// The config file is expected to be in YAML format.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		k := koanf.New(".")
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("error loading config: %w", err)
		}
		if err := k.Unmarshal("", &config); err != nil {
			return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
		}
	}

	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if host := os.Getenv("CHATRELAY_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if portStr := os.Getenv("CHATRELAY_SERVER_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			config.Server.Port = port
		}
	}
}

// Validate ensures the Config is internally consistent.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	for name, p := range c.Providers {
		if p.Default == "" {
			return fmt.Errorf("provider %s: default model is required", name)
		}
		if p.MaxTokens <= 0 {
			return fmt.Errorf("provider %s: max_tokens must be positive", name)
		}
	}
	if c.Limits.MaxMessageLength <= 0 {
		return fmt.Errorf("max_message_length must be positive")
	}
	if c.Limits.MaxMessages <= 0 {
		return fmt.Errorf("max_messages must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max_attempts must be positive")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays must satisfy 0 < base_delay <= max_delay")
	}
	if c.Timeouts.Connect <= 0 || c.Timeouts.StreamPull <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0 || c.RateLimit.PerProvider <= 0 {
		return fmt.Errorf("rate limit window and budgets must be positive")
	}
	return nil
}
