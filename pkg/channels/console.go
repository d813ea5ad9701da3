package channels

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sushiaki/sorabot/pkg/bus"
)

const (
	ConsoleChannelName = "console"
	ConsoleChatID      = "local@console"
)

// ConsoleChannel is a loop-back transport for local conversations: lines
// typed by the operator arrive as one-to-one inbound messages and replies
// are written to out.
type ConsoleChannel struct {
	*BaseChannel
	out        io.Writer
	showTyping bool
	mu         sync.Mutex
}

func NewConsoleChannel(messageBus *bus.MessageBus, out io.Writer, showTyping bool) *ConsoleChannel {
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel(ConsoleChannelName, messageBus, nil),
		out:         out,
		showTyping:  showTyping,
	}
}

func (c *ConsoleChannel) Start(context.Context) error {
	c.setRunning(true)
	return nil
}

func (c *ConsoleChannel) Stop(context.Context) error {
	c.setRunning(false)
	return nil
}

// Inbound builds the message a typed line produces.
func (c *ConsoleChannel) Inbound(text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   ConsoleChannelName,
		ChatID:    ConsoleChatID,
		SenderID:  "local",
		MessageID: uuid.NewString(),
		Content:   text,
		Timestamp: time.Now(),
	}
}

// Submit publishes a typed line to the bus.
func (c *ConsoleChannel) Submit(text string) bool {
	return c.HandleMessage(c.Inbound(text))
}

func (c *ConsoleChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return ErrNotConnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "\n🍣 %s\n\n", strings.TrimSpace(msg.Content))
	return err
}

func (c *ConsoleChannel) SetPresence(_ context.Context, _ string, p Presence) error {
	if !c.showTyping || p != PresenceComposing {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, "(digitando...)")
	return err
}
