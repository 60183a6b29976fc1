package channels

import (
	"context"
	"log/slog"

	"github.com/velvetfox/velvetfox/internal/bus"
	"github.com/velvetfox/velvetfox/internal/config"
)

// Manager owns all enabled channels and routes outbound messages to them.
type Manager struct {
	channels map[string]Channel
	b        bus.Bus
}

// NewManager creates a Manager with all configured channels. When withCLI
// is set the terminal REPL is registered too (used by the chat command).
func NewManager(cfg *config.Config, b bus.Bus, withCLI bool) *Manager {
	m := &Manager{
		channels: make(map[string]Channel),
		b:        b,
	}

	if withCLI {
		cli := NewCLIChannel(b)
		m.channels[cli.Name()] = cli
	}
	if cfg.Channels.Telegram.Enabled {
		ch := NewTelegramChannel(&cfg.Channels.Telegram, b)
		m.channels[ch.Name()] = ch
	}
	if cfg.Channels.Slack.Enabled {
		ch := NewSlackChannel(&cfg.Channels.Slack, b)
		m.channels[ch.Name()] = ch
	}
	if cfg.Channels.Bridge.Enabled {
		ch := NewBridgeChannel(&cfg.Channels.Bridge, b)
		m.channels[ch.Name()] = ch
	}

	for name := range m.channels {
		slog.Info("channel enabled", "name", name)
	}
	return m
}

// EnabledChannels returns the names of all enabled channels.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for n := range m.channels {
		names = append(names, n)
	}
	return names
}

// StartAll starts all channels and the outbound dispatcher, blocking until
// ctx is cancelled.
func (m *Manager) StartAll(ctx context.Context) error {
	go m.dispatchOutbound(ctx)

	for name, ch := range m.channels {
		go func(n string, c Channel) {
			slog.Info("starting channel", "name", n)
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("channel exited with error", "name", n, "err", err)
			}
		}(name, ch)
	}

	<-ctx.Done()
	return ctx.Err()
}

// dispatchOutbound routes each outbound message to its channel's Send.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-m.b.OutboundChan():
			ch, ok := m.channels[msg.Channel()]
			if !ok {
				slog.Debug("no channel for outbound message", "channel", msg.Channel())
				continue
			}
			if err := ch.Send(ctx, msg); err != nil {
				slog.Error("send error", "channel", msg.Channel(), "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
