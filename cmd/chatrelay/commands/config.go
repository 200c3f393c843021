package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newConfigCmd creates the `chatrelay config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigCheckCmd(), newConfigInitCmd())
	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			fmt.Printf("Configuration OK\n")
			fmt.Printf("  name:        %s\n", cfg.Name)
			fmt.Printf("  listen:      %s\n", cfg.Server.Addr)
			fmt.Printf("  model:       %s\n", cfg.LLM.Model)
			fmt.Printf("  max history: %d turns\n", cfg.Engine.MaxHistory)
			fmt.Printf("  session ttl: %s\n", cfg.Engine.SessionTTL())
			fmt.Printf("  line creds:  %s\n", presence(cfg.Line.ChannelSecret != "" && cfg.Line.ChannelAccessToken != ""))
			fmt.Printf("  llm api key: %s\n", presence(cfg.LLM.APIKey != ""))
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config.yaml in the working directory",
		RunE: func(_ *cobra.Command, _ []string) error {
			const path = "config.yaml"
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Printf("Wrote %s. Fill in the credentials (or set them via environment) and run `chatrelay serve`.\n", path)
			return nil
		},
	}
}

func presence(ok bool) string {
	if ok {
		return "set"
	}
	return "missing"
}

const starterConfig = `name: chatrelay

server:
  addr: ":5000"

line:
  channel_secret: ${LINE_CHANNEL_SECRET}
  channel_access_token: ${LINE_CHANNEL_ACCESS_TOKEN}

llm:
  api_key: ${OPENAI_API_KEY}
  model: gpt-4o-mini
  system_prompt: 請使用繁體中文回答以下問題。
  max_tokens: 500
  temperature: 0.5

providers:
  translate:
    api_key: ${LIBRETRANSLATE_API_KEY:-}
  flight:
    api_key: ${AVIATIONSTACK_API_KEY:-}

engine:
  max_history: 10
  session_ttl_seconds: 3600
  sweep_interval_seconds: 60
  cooldown_seconds:
    weather: 60
    translate: 30
    flight: 60
    image: 120
    chat: 0

keep_alive:
  enabled: false
  url: ""
  interval_seconds: 40

logging:
  level: info
  format: text
`
