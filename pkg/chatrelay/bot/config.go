// Package bot wires the relay together: configuration, the LINE channel,
// the dispatch engine, capability providers, and periodic maintenance.
package bot

import (
	"time"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels/line"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/engine"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/providers"
)

// Config holds all relay configuration.
type Config struct {
	// Name is the bot name used in logs and the help text.
	Name string `yaml:"name"`

	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Line holds the LINE channel credentials.
	Line line.Config `yaml:"line"`

	// LLM configures the chat completion provider (the fallback handler).
	LLM providers.LLMConfig `yaml:"llm"`

	// Providers configures the remaining capability adapters.
	Providers ProvidersConfig `yaml:"providers"`

	// Engine configures session bounds, TTLs, and cooldowns.
	Engine EngineConfig `yaml:"engine"`

	// KeepAlive configures the periodic self-ping (free-tier hosts idle
	// out without it).
	KeepAlive KeepAliveConfig `yaml:"keep_alive"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address (e.g. ":5000").
	Addr string `yaml:"addr"`
}

// ProvidersConfig groups the capability adapter configs.
type ProvidersConfig struct {
	Weather   providers.WeatherConfig   `yaml:"weather"`
	Translate providers.TranslateConfig `yaml:"translate"`
	Flight    providers.FlightConfig    `yaml:"flight"`
	Image     providers.ImageConfig     `yaml:"image"`
}

// EngineConfig configures the dispatch engine.
type EngineConfig struct {
	// MaxHistory bounds the per-session turn history.
	MaxHistory int `yaml:"max_history"`

	// SessionTTLSeconds is the inactivity TTL before eviction.
	SessionTTLSeconds int `yaml:"session_ttl_seconds"`

	// SweepIntervalSeconds is how often the expiry sweep runs.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`

	// CooldownSeconds maps capability names to their per-user cooldown.
	// Zero disables the cooldown for that capability.
	CooldownSeconds map[string]int `yaml:"cooldown_seconds"`
}

// defaultCooldowns is applied for capabilities absent from the config.
var defaultCooldowns = map[string]int{
	"weather":   60,
	"translate": 30,
	"flight":    60,
	"image":     120,
	"chat":      0,
}

// SessionTTL returns the configured TTL as a duration.
func (e EngineConfig) SessionTTL() time.Duration {
	if e.SessionTTLSeconds <= 0 {
		return engine.DefaultSessionTTL
	}
	return time.Duration(e.SessionTTLSeconds) * time.Second
}

// SweepInterval returns the configured sweep interval as a duration.
func (e EngineConfig) SweepInterval() time.Duration {
	if e.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(e.SweepIntervalSeconds) * time.Second
}

// Cooldown returns the cooldown for a capability, falling back to the
// package defaults when the config does not name it.
func (e EngineConfig) Cooldown(capability string) time.Duration {
	if secs, ok := e.CooldownSeconds[capability]; ok {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(defaultCooldowns[capability]) * time.Second
}

// KeepAliveConfig configures the periodic self-ping.
type KeepAliveConfig struct {
	// Enabled turns the pinger on.
	Enabled bool `yaml:"enabled"`

	// URL is the public URL of this service.
	URL string `yaml:"url"`

	// IntervalSeconds is the ping period.
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Interval returns the ping period as a duration.
func (k KeepAliveConfig) Interval() time.Duration {
	if k.IntervalSeconds <= 0 {
		return 40 * time.Second
	}
	return time.Duration(k.IntervalSeconds) * time.Second
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Name: "chatrelay",
		Server: ServerConfig{
			Addr: ":5000",
		},
		LLM: providers.LLMConfig{
			Model:        "gpt-4o-mini",
			SystemPrompt: "請使用繁體中文回答以下問題。",
			MaxTokens:    500,
			Temperature:  0.5,
		},
		Engine: EngineConfig{
			MaxHistory:           engine.DefaultMaxHistory,
			SessionTTLSeconds:    3600,
			SweepIntervalSeconds: 60,
		},
		KeepAlive: KeepAliveConfig{
			IntervalSeconds: 40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
