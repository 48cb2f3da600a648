// Package config loads application configuration from an optional YAML file
// and PILOT_* environment variables, with sane defaults for every knob.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Browser BrowserConfig `mapstructure:"browser"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

type LLMConfig struct {
	// Provider selects the model backend: "ollama" or "openai".
	Provider string `mapstructure:"provider"`
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
	// APIKey is the one persisted credential. Sent as a bearer token by the
	// ollama provider and as the API key by the openai provider.
	APIKey string `mapstructure:"api_key"`
	// RequestTimeout bounds a single model call. Zero disables the bound,
	// leaving cancellation to the caller's context.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Stream         bool          `mapstructure:"stream"`
}

type AgentConfig struct {
	MaxSteps int `mapstructure:"max_steps"`
	// MaxExtractionFailures caps consecutive unparseable model replies
	// before the run is terminated instead of re-planned.
	MaxExtractionFailures int `mapstructure:"max_extraction_failures"`
	// MaxHistoryTurns caps the conversation history; zero keeps the history
	// unbounded for the life of the run.
	MaxHistoryTurns int  `mapstructure:"max_history_turns"`
	HaltOnError     bool `mapstructure:"halt_on_error"`
	// StepDelay is the pause between loop iterations, giving the page time
	// to settle after an action.
	StepDelay time.Duration `mapstructure:"step_delay"`
}

type RelayConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

type BrowserConfig struct {
	Headless   bool          `mapstructure:"headless"`
	NavTimeout time.Duration `mapstructure:"nav_timeout"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	LogFile    string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.endpoint", "http://localhost:11434")
	v.SetDefault("llm.model", "llama3.1")
	v.SetDefault("llm.request_timeout", 120*time.Second)
	v.SetDefault("llm.stream", false)

	v.SetDefault("agent.max_steps", 30)
	v.SetDefault("agent.max_extraction_failures", 3)
	v.SetDefault("agent.max_history_turns", 0)
	v.SetDefault("agent.halt_on_error", true)
	v.SetDefault("agent.step_delay", 500*time.Millisecond)

	v.SetDefault("relay.max_attempts", 3)
	v.SetDefault("relay.retry_delay", 500*time.Millisecond)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout", 30*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
}

// Load reads configuration from path (optional, may be empty) and the
// environment. Environment variables use the PILOT_ prefix with underscores,
// e.g. PILOT_LLM_ENDPOINT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.Relay.MaxAttempts <= 0 {
		return fmt.Errorf("relay.max_attempts must be positive, got %d", c.Relay.MaxAttempts)
	}
	return nil
}
