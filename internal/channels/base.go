// Package channels provides the chat transports. A channel turns platform
// events into bus.InboundMessage and renders bus.OutboundMessage back,
// including choice menus. All semantics live in the controller; a channel
// is glue only.
package channels

import (
	"context"
	"log/slog"
	"strings"

	"github.com/velvetfox/velvetfox/internal/bus"
)

// Channel is one chat transport.
type Channel interface {
	Name() string
	// Start runs the transport until ctx is cancelled.
	Start(ctx context.Context) error
	// Send delivers one outbound message, rendering choices if present.
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Base holds common state and helpers shared by all channels.
type Base struct {
	channelName bus.ChannelType
	b           bus.Bus
	allowFrom   []string // empty = allow all
}

func NewBase(name bus.ChannelType, b bus.Bus, allowFrom []string) Base {
	return Base{channelName: name, b: b, allowFrom: allowFrom}
}

// IsAllowed checks whether senderID is on the allowlist.
// senderID may be "id|username" (Telegram) or a plain string.
func (b *Base) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, part := range strings.Split(senderID, "|") {
		if part == "" {
			continue
		}
		for _, allowed := range b.allowFrom {
			if allowed == part {
				return true
			}
		}
	}
	return false
}

// HandleText verifies the sender, then publishes a free-text message.
func (b *Base) HandleText(senderId, chatId, content string, metadata map[string]any) {
	if !b.IsAllowed(senderId) {
		slog.Warn("access denied", "channel", b.channelName, "sender", senderId)
		return
	}
	msg := bus.NewInboundMessage(b.channelName, senderId, chatId, content)
	msg.SetMetadata(metadata)
	b.b.PublishInbound(msg)
}

// HandleSelection verifies the sender, then publishes a choice selection.
func (b *Base) HandleSelection(senderId, chatId, data string, metadata map[string]any) {
	if !b.IsAllowed(senderId) {
		slog.Warn("access denied", "channel", b.channelName, "sender", senderId)
		return
	}
	msg := bus.NewSelection(b.channelName, senderId, chatId, data)
	msg.SetMetadata(metadata)
	b.b.PublishInbound(msg)
}

// splitMessage splits content into chunks that fit within maxLen,
// preferring newline breaks, then space breaks, then hard cut.
func splitMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}
	var chunks []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}
		cut := content[:maxLen]
		pos := strings.LastIndex(cut, "\n")
		if pos <= 0 {
			pos = strings.LastIndex(cut, " ")
		}
		if pos <= 0 {
			pos = maxLen
		}
		chunks = append(chunks, content[:pos])
		content = strings.TrimLeft(content[pos:], " \t")
	}
	return chunks
}
