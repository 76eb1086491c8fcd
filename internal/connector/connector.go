package connector

import "context"

// Sender delivers outbound text to a user on some messaging platform.
type Sender interface {
	// Send delivers an outbound message.
	Send(ctx context.Context, msg OutboundMessage) error
	// Typing shows a composing indicator. Best effort: platforms without
	// one return nil.
	Typing(ctx context.Context, chatID string) error
}

// InstantSender marks senders that hand replies straight back to the
// caller (e.g. in an HTTP response body). Simulated-typing pacing would
// only stall such a caller, so the processor skips it.
type InstantSender interface {
	Sender
	Instant()
}

// Connector is the interface for external messaging platforms
// (Telegram, Slack, webhook, etc.).
type Connector interface {
	Sender
	// Name returns the connector type (e.g., "telegram", "slack").
	Name() string
	// Start begins listening for inbound messages. Blocks until context
	// is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
}

// OutboundMessage is a reply sent to an external platform.
type OutboundMessage struct {
	ChatID string // Platform-specific chat identifier
	Text   string // Plain message text
}

// InboundMessage is a message received from an external platform.
type InboundMessage struct {
	Channel  string // Connector name (e.g., "telegram")
	SenderID string // Platform-specific sender identifier
	ChatID   string // Platform-specific chat identifier
	Text     string // Message text
	IsDirect bool   // True for one-on-one chats; group traffic is ignored
}

// InboundHandler processes messages received from external platforms.
type InboundHandler func(ctx context.Context, msg InboundMessage) error
