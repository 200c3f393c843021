package bot

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} references in the
// config file.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// LoadConfigFromFile loads configuration from a YAML file layered over
// the defaults. A .env file next to the process is loaded first when
// present, and ${VAR} references in the YAML are expanded from the
// environment. An empty path yields the defaults plus environment
// secrets.
func LoadConfigFromFile(path string) (*Config, error) {
	// Best effort; the environment may already be populated.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := expandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvSecrets(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile looks for a config file in the working directory.
// Returns "" when none exists.
func FindConfigFile() string {
	for _, name := range []string{"config.yaml", "config.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// expandEnv substitutes ${VAR} and ${VAR:-default} references.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(groups[1]); ok {
			return value
		}
		if groups[2] != "" {
			return groups[3]
		}
		return ""
	})
}

// applyEnvSecrets fills credentials from the environment when the file
// left them empty. Hosted deploys configure everything this way.
func applyEnvSecrets(cfg *Config) {
	setIfEmpty(&cfg.Line.ChannelSecret, "LINE_CHANNEL_SECRET", "CHANNEL_SECRET")
	setIfEmpty(&cfg.Line.ChannelAccessToken, "LINE_CHANNEL_ACCESS_TOKEN", "CHANNEL_ACCESS_TOKEN")
	setIfEmpty(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setIfEmpty(&cfg.Providers.Translate.APIKey, "LIBRETRANSLATE_API_KEY")
	setIfEmpty(&cfg.Providers.Flight.APIKey, "AVIATIONSTACK_API_KEY")
	setIfEmpty(&cfg.Providers.Image.APIKey, "OPENAI_API_KEY")

	// Render-style hosts hand out the listen port at runtime.
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
}

func setIfEmpty(dst *string, envNames ...string) {
	if *dst != "" {
		return
	}
	for _, name := range envNames {
		if value := os.Getenv(name); value != "" {
			*dst = value
			return
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if !strings.Contains(cfg.Server.Addr, ":") {
		return fmt.Errorf("server.addr %q must include a port", cfg.Server.Addr)
	}
	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	for capability, secs := range cfg.Engine.CooldownSeconds {
		if secs < 0 {
			return fmt.Errorf("engine.cooldown_seconds[%s] must not be negative", capability)
		}
	}
	return nil
}
