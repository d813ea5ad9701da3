package channels

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/sushiaki/sorabot/pkg/bus"
)

// ErrNotConnected is returned by Send while the transport is offline.
var ErrNotConnected = errors.New("channels: transport not connected")

type Presence string

const (
	PresenceComposing Presence = "composing"
	PresencePaused    Presence = "paused"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	SetPresence(ctx context.Context, chatID string, p Presence) error
	IsRunning() bool
}

// Splitter is implemented by channels that deliver long text as several
// messages.
type Splitter interface {
	SplitMessage(text string) []string
}

type BaseChannel struct {
	bus       *bus.MessageBus
	running   atomic.Bool
	name      string
	allowList []string
}

func NewBaseChannel(name string, bus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		bus:       bus,
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

// IsAllowed checks senderID against the allow list. An empty list allows
// everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		candidate := strings.TrimSpace(strings.TrimPrefix(allowed, "@"))
		if candidate != "" && candidate == senderID {
			return true
		}
	}
	return false
}

// HandleMessage stamps the channel name and publishes msg. Messages from
// senders outside the allow list are dropped, except the account's own.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) bool {
	if !msg.FromMe && !c.IsAllowed(msg.SenderID) {
		return false
	}
	msg.Channel = c.name
	return c.bus.PublishInbound(msg)
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}
