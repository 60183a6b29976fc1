// Package config defines the velvetfox configuration schema and its
// JSON loader.
package config

import (
	"os"
	"path/filepath"
)

// ProviderConfig holds the completion endpoint settings. The default points
// at a local LM Studio server, which accepts any API key.
type ProviderConfig struct {
	APIBase     string  `json:"apiBase"`
	APIKey      string  `json:"apiKey"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

func defaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		APIBase:     "http://localhost:1234/v1",
		APIKey:      "lm-studio",
		Model:       "local-model",
		MaxTokens:   1024,
		Temperature: 0.8,
	}
}

// QueueConfig bounds the request queue and its retry policy.
type QueueConfig struct {
	Capacity       int `json:"capacity"`       // max queued requests across all chats
	Workers        int `json:"workers"`        // worker pool size; chats are sharded across workers
	MaxRetries     int `json:"maxRetries"`     // attempts per request before GenerationFailed
	RequestTimeout int `json:"requestTimeout"` // per-attempt timeout, seconds
}

func defaultQueueConfig() QueueConfig {
	return QueueConfig{
		Capacity:       32,
		Workers:        2,
		MaxRetries:     3,
		RequestTimeout: 120,
	}
}

// MemoryConfig tunes history windows and consolidation.
type MemoryConfig struct {
	HistoryWindow          int    `json:"historyWindow"`          // raw turns included in prompts
	ConsolidationThreshold int    `json:"consolidationThreshold"` // accepted turns between consolidations
	SweepSchedule          string `json:"sweepSchedule"`          // cron expression for the maintenance sweep
}

func defaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		HistoryWindow:          20,
		ConsolidationThreshold: 15,
		SweepSchedule:          "@every 10m",
	}
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
}

// SlackConfig configures the Slack channel (Socket Mode).
type SlackConfig struct {
	Enabled   bool     `json:"enabled"`
	BotToken  string   `json:"botToken"`
	AppToken  string   `json:"appToken"`
	AllowFrom []string `json:"allowFrom"`
}

// BridgeConfig configures the WebSocket bridge channel for external UIs.
type BridgeConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token"`
}

// ChannelsConfig groups all transport configs.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
	Bridge   BridgeConfig   `json:"bridge"`
}

func defaultChannelsConfig() ChannelsConfig {
	return ChannelsConfig{
		Telegram: TelegramConfig{AllowFrom: []string{}},
		Slack:    SlackConfig{AllowFrom: []string{}},
		Bridge:   BridgeConfig{URL: "ws://localhost:3917"},
	}
}

// Config is the root configuration object.
type Config struct {
	DataDir  string         `json:"dataDir,omitempty"`
	Provider ProviderConfig `json:"provider"`
	Queue    QueueConfig    `json:"queue"`
	Memory   MemoryConfig   `json:"memory"`
	Channels ChannelsConfig `json:"channels"`
}

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() Config {
	return Config{
		Provider: defaultProviderConfig(),
		Queue:    defaultQueueConfig(),
		Memory:   defaultMemoryConfig(),
		Channels: defaultChannelsConfig(),
	}
}

// DataPath returns the resolved data directory, defaulting to ~/.velvetfox.
func (c *Config) DataPath() string {
	if c.DataDir != "" {
		return expandHome(c.DataDir)
	}
	return DataDir()
}

// DatabasePath returns the SQLite database file path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataPath(), "velvetfox.db")
}

func expandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
