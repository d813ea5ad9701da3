package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/logger"
	"github.com/sushiaki/sorabot/pkg/session"
)

var (
	ErrUnknownConversation = errors.New("agent: unknown conversation")
	ErrEmptyText           = errors.New("agent: empty text")
	ErrNoChannel           = errors.New("agent: no channel for conversation")
)

// TakeOver puts a conversation under operator control from the dashboard.
func (d *Dispatcher) TakeOver(chatID string) error {
	s, ok := d.deps.Sessions.Get(chatID)
	if !ok {
		return ErrUnknownConversation
	}
	s.Lock()
	d.deps.Handoff.TakeOver(s, d.opts.Now())
	s.Unlock()

	logger.InfoCF("agent", "Operator took over conversation", map[string]interface{}{"chat_id": chatID})
	d.emit(bus.Event{Type: bus.EventHumanTakeover, ChatID: chatID, Source: "operator"})
	return nil
}

// Release hands a conversation back to the bot before the window expires.
func (d *Dispatcher) Release(chatID string) error {
	s, ok := d.deps.Sessions.Get(chatID)
	if !ok {
		return ErrUnknownConversation
	}
	s.Lock()
	d.deps.Handoff.Release(s)
	s.Unlock()

	logger.InfoCF("agent", "Operator released conversation", map[string]interface{}{"chat_id": chatID})
	d.emit(bus.Event{Type: bus.EventBotResumed, ChatID: chatID, Source: "operator"})
	return nil
}

// SendManual delivers an operator-written message. Once the transport
// accepts it the conversation is marked as human controlled, as if the
// operator had typed on the phone. A failed send changes nothing.
func (d *Dispatcher) SendManual(ctx context.Context, chatID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	channel := d.channelFor(chatID)
	if channel == "" {
		return ErrNoChannel
	}

	s := d.deps.Sessions.GetOrCreate(chatID)
	s.Lock()
	defer s.Unlock()

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.SendTimeout)
	defer cancel()
	if err := d.deps.Sender.Send(sendCtx, channel, chatID, text); err != nil {
		return fmt.Errorf("send manual message: %w", err)
	}

	now := d.opts.Now()
	wasHuman := s.HumanActive
	d.deps.Handoff.TakeOver(s, now)
	for _, part := range d.parts(channel, text) {
		s.ExpectEcho(part)
	}

	s.Record(session.EntryHuman, text, now)
	d.emit(bus.Event{Type: bus.EventMessageSent, ChatID: chatID, Text: text, Source: "human"})
	if !wasHuman {
		d.emit(bus.Event{Type: bus.EventHumanTakeover, ChatID: chatID, Source: "operator"})
	}
	return nil
}

// Clear forgets a conversation. The next inbound message starts over
// with the greeting.
func (d *Dispatcher) Clear(chatID string) bool {
	if !d.deps.Sessions.Delete(chatID) {
		return false
	}
	d.emit(bus.Event{Type: bus.EventSessionCleared, ChatID: chatID, Source: "operator"})
	return true
}

func (d *Dispatcher) ClearAll() int {
	n := d.deps.Sessions.Reset()
	d.emit(bus.Event{Type: bus.EventSessionCleared, Source: "operator"})
	return n
}

// SweepHandoffs releases every handoff whose window has elapsed, using
// the same rule as the lazy check on inbound messages. Sessions busy with
// a reply run are skipped until the next sweep.
func (d *Dispatcher) SweepHandoffs(now time.Time) []string {
	var released []string
	for _, id := range d.deps.Sessions.IDs() {
		s, ok := d.deps.Sessions.Get(id)
		if !ok || !s.TryLock() {
			continue
		}
		if d.deps.Handoff.Expired(s, now) && d.deps.Handoff.Allow(s, now) {
			released = append(released, id)
		}
		s.Unlock()
	}
	for _, id := range released {
		d.emit(bus.Event{Type: bus.EventBotResumed, ChatID: id, Source: "timeout"})
	}
	if len(released) > 0 {
		logger.InfoCF("agent", "Expired handoffs released", map[string]interface{}{"count": len(released)})
	}
	return released
}
