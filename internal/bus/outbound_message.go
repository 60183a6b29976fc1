package bus

// Choice is one option in a choice menu. Data is opaque to the transport:
// it comes back verbatim as a selection InboundMessage.
type Choice struct {
	Label string
	Data  string
}

// ChoiceRow groups choices rendered on one line (Telegram keyboard row;
// other transports may ignore the grouping).
type ChoiceRow []Choice

// OutboundMessage is a response to be sent back through a channel: text plus
// an optional choice menu. Rendering is owned by the transport.
type OutboundMessage struct {
	channel  string         // destination channel name
	chatId   string         // destination chat / DM identifier
	content  string         // text to send
	choices  []ChoiceRow    // optional choice menu
	metadata map[string]any // channel-specific hints (message_id, thread_ts, …)
}

func NewOutboundMessage(channel, chatId, content string) OutboundMessage {
	return OutboundMessage{
		channel: channel,
		chatId:  chatId,
		content: content,
	}
}

func (m OutboundMessage) Channel() string                { return m.channel }
func (m OutboundMessage) ChatId() string                 { return m.chatId }
func (m OutboundMessage) Content() string                { return m.content }
func (m OutboundMessage) Choices() []ChoiceRow           { return m.choices }
func (m OutboundMessage) Metadata() map[string]any       { return m.metadata }
func (m *OutboundMessage) SetChoices(rows []ChoiceRow)   { m.choices = rows }
func (m *OutboundMessage) SetMetadata(md map[string]any) { m.metadata = md }
