package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/velvetfox/velvetfox/internal/config"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Show chat channel configuration",
	RunE:  runChannels,
}

func runChannels(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	type row struct{ name, enabled, detail string }
	rows := []row{
		{"Telegram", yesNo(cfg.Channels.Telegram.Enabled), tokenHint(cfg.Channels.Telegram.Token)},
		{"Slack", yesNo(cfg.Channels.Slack.Enabled), tokenHint(cfg.Channels.Slack.BotToken)},
		{"Bridge", yesNo(cfg.Channels.Bridge.Enabled), cfg.Channels.Bridge.URL},
	}

	fmt.Printf("%-10s %-8s %s\n", "CHANNEL", "ENABLED", "DETAIL")
	for _, r := range rows {
		fmt.Printf("%-10s %-8s %s\n", r.name, r.enabled, r.detail)
	}
	fmt.Printf("\nEdit %s to enable or disable channels.\n", config.ConfigPath())
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// tokenHint shows only the tail of a secret so the output is safe to paste.
func tokenHint(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 6 {
		return "…"
	}
	return "…" + token[len(token)-4:]
}
