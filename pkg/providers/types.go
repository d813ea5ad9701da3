package providers

import (
	"context"
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one model turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrEmptyCompletion is returned when a provider answers without text.
var ErrEmptyCompletion = errors.New("providers: empty completion")

// ErrNoProvider is reported when no language model is configured.
var ErrNoProvider = errors.New("providers: no provider configured")

// GenerationConfig carries the per-request knobs shared by every provider.
type GenerationConfig struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	HistoryTurns int
	Timeout      time.Duration
}

// Provider creates model conversations. A provider is shared by all
// chats; a Conversation belongs to exactly one chat.
type Provider interface {
	Name() string
	Model() string
	NewConversation(ctx context.Context, systemPrompt string) (Conversation, error)
}

// Conversation sends one user turn. Stateless backends rebuild the
// request from history; stateful ones may ignore it.
type Conversation interface {
	Send(ctx context.Context, history []Message, text string) (string, error)
}

// lastTurns returns at most n trailing messages. n <= 0 returns all.
func lastTurns(history []Message, n int) []Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
