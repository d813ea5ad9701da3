package bus

import "time"

// InboundMessage is one message event observed on a transport, including
// messages sent from the bot's own account (FromMe).
type InboundMessage struct {
	Channel   string            `json:"channel"`
	ChatID    string            `json:"chat_id"`
	SenderID  string            `json:"sender_id"`
	MessageID string            `json:"message_id"`
	Content   string            `json:"content"`
	FromMe    bool              `json:"from_me"`
	IsGroup   bool              `json:"is_group"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

type EventType string

const (
	EventMessageReceived EventType = "message_received"
	EventMessageSent     EventType = "message_sent"
	EventHumanTakeover   EventType = "human_takeover"
	EventBotResumed      EventType = "bot_resumed"
	EventSessionCleared  EventType = "conversation_cleared"
)

// Event is a dashboard notification about conversation activity.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	ChatID string    `json:"chat_id,omitempty"`
	Text   string    `json:"text,omitempty"`
	Source string    `json:"source,omitempty"`
	At     time.Time `json:"at"`
}
