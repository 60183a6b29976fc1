// Package bus defines the message types that flow between chat channels and
// the controller, and the in-process bus that carries them.
package bus

// ChannelType names a chat transport.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelSlack    ChannelType = "slack"
	ChannelBridge   ChannelType = "bridge"
	ChannelCLI      ChannelType = "cli"
)

// Bus is the contract between chat channels and the controller.
// Implementations may use buffered channels, pub/sub systems, or any other transport.
type Bus interface {
	// PublishInbound delivers a message from a channel to the controller.
	PublishInbound(msg InboundMessage)
	// PublishOutbound delivers a response from the controller to a channel.
	PublishOutbound(msg OutboundMessage)
	// InboundChan returns a receive-only channel for the controller to consume.
	InboundChan() <-chan InboundMessage
	// OutboundChan returns a receive-only channel for the channel manager to consume.
	OutboundChan() <-chan OutboundMessage
}

// MessageBus is the default in-process Bus implementation backed by buffered
// Go channels. Both directions are buffered so senders never block on a slow
// consumer.
type MessageBus struct {
	inbound  chan InboundMessage  // channels -> controller
	outbound chan OutboundMessage // controller -> channels
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, bufSize),
		outbound: make(chan OutboundMessage, bufSize),
	}
}

// PublishInbound sends an InboundMessage to the controller.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// PublishOutbound sends an OutboundMessage to the channel manager.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// InboundChan returns a receive-only view of the inbound channel.
func (b *MessageBus) InboundChan() <-chan InboundMessage {
	return b.inbound
}

// OutboundChan returns a receive-only view of the outbound channel.
func (b *MessageBus) OutboundChan() <-chan OutboundMessage {
	return b.outbound
}
