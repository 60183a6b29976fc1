package bus

import "time"

// InboundMessage is one user action received from a chat channel: either
// free text or a selection of a previously offered choice.
type InboundMessage struct {
	channel   string         // "telegram", "slack", "bridge", "cli"
	senderId  string         // user identifier within the channel
	chatId    string         // chat / DM identifier
	content   string         // message text, or the selected choice's data
	selection bool           // true when content is a choice selection
	timestamp time.Time      // when the message was received
	metadata  map[string]any // channel-specific extra data (message_id, username, …)
}

// NewInboundMessage creates a free-text InboundMessage with Timestamp set to now.
func NewInboundMessage(channel ChannelType, senderId, chatId, content string) InboundMessage {
	return InboundMessage{
		channel:   string(channel),
		senderId:  senderId,
		chatId:    chatId,
		content:   content,
		timestamp: time.Now(),
	}
}

// NewSelection creates an InboundMessage carrying a choice selection.
func NewSelection(channel ChannelType, senderId, chatId, data string) InboundMessage {
	m := NewInboundMessage(channel, senderId, chatId, data)
	m.selection = true
	return m
}

func (m InboundMessage) Channel() string                { return m.channel }
func (m InboundMessage) SenderId() string               { return m.senderId }
func (m InboundMessage) ChatId() string                 { return m.chatId }
func (m InboundMessage) Content() string                { return m.content }
func (m InboundMessage) IsSelection() bool              { return m.selection }
func (m InboundMessage) Timestamp() time.Time           { return m.timestamp }
func (m InboundMessage) Metadata() map[string]any       { return m.metadata }
func (m *InboundMessage) SetMetadata(md map[string]any) { m.metadata = md }

// SessionKey returns the unique key used to look up the chat session.
// Format: "channel:chat_id".
func (m InboundMessage) SessionKey() string {
	return m.channel + ":" + m.chatId
}

// Preview returns a short snippet of the message content for logging.
func (m InboundMessage) Preview() string {
	preview := m.content
	if len(preview) > 80 {
		preview = preview[:80] + "..."
	}
	return preview
}
