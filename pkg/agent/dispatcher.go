// Sorabot - WhatsApp attendant with human handoff
// License: MIT
//
// Copyright (c) 2026 Sorabot contributors

package agent

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/channels"
	"github.com/sushiaki/sorabot/pkg/dedup"
	"github.com/sushiaki/sorabot/pkg/handoff"
	"github.com/sushiaki/sorabot/pkg/humanize"
	"github.com/sushiaki/sorabot/pkg/logger"
	"github.com/sushiaki/sorabot/pkg/persona"
	"github.com/sushiaki/sorabot/pkg/providers"
	"github.com/sushiaki/sorabot/pkg/session"
	"github.com/sushiaki/sorabot/pkg/utils"
)

// Sender delivers replies and presence signals. channels.Manager
// implements it.
type Sender interface {
	Send(ctx context.Context, channel, chatID, text string) error
	SetPresence(ctx context.Context, channel, chatID string, p channels.Presence) error
}

// Deps are the collaborators owned by the composition root.
type Deps struct {
	Bus      *bus.MessageBus
	Sessions *session.Store
	Dedup    *dedup.Guard
	Handoff  *handoff.Policy
	Persona  persona.Persona
	// Provider may be nil, in which case every delegated turn falls back
	// to the fixed technical-difficulty text.
	Provider providers.Provider
	Sender   Sender
}

type Options struct {
	AutoReply    bool
	ModelTimeout time.Duration
	SendTimeout  time.Duration
	// QueueSize bounds the pending messages per conversation. Overflow is
	// dropped for that conversation alone.
	QueueSize int
	// IdleTimeout is how long a conversation worker waits before exiting.
	IdleTimeout time.Duration
	// DefaultChannel is used by operator sends to chats never seen inbound.
	DefaultChannel string
	Now            func() time.Time
	Sleep          humanize.Sleeper
}

const (
	defaultModelTimeout = 30 * time.Second
	defaultSendTimeout  = 10 * time.Second
	defaultQueueSize    = 16
	defaultIdleTimeout  = 2 * time.Minute
)

type Outcome string

const (
	OutcomeIgnored     Outcome = "ignored"
	OutcomeEmpty       Outcome = "empty"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeObserved    Outcome = "observed"
	OutcomeSilenced    Outcome = "silenced"
	OutcomeRecorded    Outcome = "recorded"
	OutcomeGreeting    Outcome = "greeting"
	OutcomeReassurance Outcome = "reassurance"
	OutcomeModel       Outcome = "model"
	OutcomeFallback    Outcome = "fallback"
)

// Result describes what one Handle call did.
type Result struct {
	Outcome Outcome
	Reply   string
	Pattern humanize.Pattern
	Delay   time.Duration
	SendErr error
}

// Replied reports whether a reply was produced (sent or attempted).
func (r Result) Replied() bool {
	switch r.Outcome {
	case OutcomeGreeting, OutcomeReassurance, OutcomeModel, OutcomeFallback:
		return true
	}
	return false
}

type Dispatcher struct {
	deps      Deps
	opts      Options
	autoReply atomic.Bool

	mu       sync.Mutex
	workers  map[string]*worker
	chatChan map[string]string
	wg       sync.WaitGroup

	handled  atomic.Uint64
	replies  atomic.Uint64
	failures atomic.Uint64
	dropped  atomic.Uint64
}

func NewDispatcher(deps Deps, opts Options) *Dispatcher {
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = defaultModelTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = humanize.SleepContext
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewStoreWithClock(opts.Now)
	}
	if deps.Dedup == nil {
		deps.Dedup = dedup.New(dedup.DefaultCapacity)
	}
	if deps.Handoff == nil {
		deps.Handoff = handoff.NewPolicy(handoff.DefaultWindow, deps.Persona.Markers(), deps.Persona.FixedTexts()...)
	}
	d := &Dispatcher{
		deps:     deps,
		opts:     opts,
		workers:  make(map[string]*worker),
		chatChan: make(map[string]string),
	}
	d.autoReply.Store(opts.AutoReply)
	return d
}

func (d *Dispatcher) Sessions() *session.Store { return d.deps.Sessions }

func (d *Dispatcher) AutoReply() bool { return d.autoReply.Load() }

func (d *Dispatcher) SetAutoReply(on bool) {
	d.autoReply.Store(on)
	logger.InfoCF("agent", "Auto reply toggled", map[string]interface{}{"auto_reply": on})
}

// Handle processes one transport event to completion. It never returns a
// provider error; failures are mapped to the fallback text.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.InboundMessage) Result {
	if isIgnoredChat(msg) {
		return Result{Outcome: OutcomeIgnored}
	}
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return Result{Outcome: OutcomeEmpty}
	}
	if key := dedupKey(msg); key != "" && d.deps.Dedup.Seen(key) {
		logger.DebugCF("agent", "Duplicate message skipped", map[string]interface{}{
			"chat_id":    msg.ChatID,
			"message_id": msg.MessageID,
		})
		return Result{Outcome: OutcomeDuplicate}
	}
	d.handled.Add(1)
	d.rememberChannel(msg.ChatID, msg.Channel)

	s := d.deps.Sessions.GetOrCreate(msg.ChatID)
	s.Lock()
	defer s.Unlock()

	now := d.opts.Now()
	if msg.FromMe {
		return d.observeOutbound(s, text, now)
	}

	s.Record(session.EntryInbound, text, now)
	d.emit(bus.Event{Type: bus.EventMessageReceived, ChatID: msg.ChatID, Text: text, Source: "customer"})
	logger.DebugCF("agent", "Customer message", map[string]interface{}{
		"customer": utils.ChatUser(msg.ChatID),
		"preview":  utils.Truncate(text, 100),
	})

	wasHuman := s.HumanActive
	if !d.deps.Handoff.Allow(s, now) {
		logger.InfoCF("agent", "Human operator active, staying silent", map[string]interface{}{
			"chat_id":       msg.ChatID,
			"last_human_at": s.LastHumanAt.Format(time.RFC3339),
		})
		return Result{Outcome: OutcomeSilenced}
	}
	if wasHuman {
		logger.InfoCF("agent", "Handoff window elapsed, bot resumed", map[string]interface{}{"chat_id": msg.ChatID})
		d.emit(bus.Event{Type: bus.EventBotResumed, ChatID: msg.ChatID, Source: "timeout"})
	}

	if !d.autoReply.Load() {
		return Result{Outcome: OutcomeRecorded}
	}

	pattern := humanize.ClassifyText(humanize.InterArrival(s.LastInboundAt, now), text)
	s.LastInboundAt = now

	res := Result{Pattern: pattern, Delay: humanize.Delay(pattern)}
	res.Outcome, res.Reply = d.compose(ctx, s, text)

	res.SendErr = d.deliver(ctx, msg.Channel, msg.ChatID, res.Reply, res.Delay)
	if res.SendErr == nil {
		s.Record(session.EntryBot, res.Reply, d.opts.Now())
		d.replies.Add(1)
		d.emit(bus.Event{Type: bus.EventMessageSent, ChatID: msg.ChatID, Text: res.Reply, Source: "bot"})
	}

	logger.InfoCF("agent", "Reply run finished", map[string]interface{}{
		"chat_id": msg.ChatID,
		"outcome": string(res.Outcome),
		"pattern": string(pattern),
		"delay":   res.Delay.String(),
		"preview": utils.Truncate(res.Reply, 60),
	})
	return res
}

func (d *Dispatcher) observeOutbound(s *session.Session, text string, now time.Time) Result {
	wasHuman := s.HumanActive
	if !d.deps.Handoff.ObserveOutbound(s, text, now) {
		return Result{Outcome: OutcomeObserved}
	}
	if s.ConsumeEcho(text) {
		// Already recorded when the operator sent it from the dashboard.
		return Result{Outcome: OutcomeObserved}
	}
	s.Record(session.EntryHuman, text, now)
	d.emit(bus.Event{Type: bus.EventMessageSent, ChatID: s.ID, Text: text, Source: "human"})
	if !wasHuman {
		logger.InfoCF("agent", "Operator message observed, handing off", map[string]interface{}{"chat_id": s.ID})
		d.emit(bus.Event{Type: bus.EventHumanTakeover, ChatID: s.ID, Source: "observed"})
	}
	return Result{Outcome: OutcomeObserved}
}

// compose picks the reply text. The session lock is held.
func (d *Dispatcher) compose(ctx context.Context, s *session.Session, text string) (Outcome, string) {
	p := d.deps.Persona
	if !s.GreetingSent {
		s.GreetingSent = true
		return OutcomeGreeting, p.Greeting()
	}
	if persona.HasDistrust(text) && s.MarkObjectionHandled(session.ObjectionTrust) {
		return OutcomeReassurance, p.Reassurance()
	}

	reply, err := d.askModel(ctx, s, text)
	if err != nil {
		d.failures.Add(1)
		logger.ErrorCF("agent", "Model call failed, using fallback", map[string]interface{}{
			"chat_id": s.ID,
			"error":   err.Error(),
		})
		return OutcomeFallback, p.Fallback()
	}
	s.AppendTurn(providers.RoleUser, text)
	s.AppendTurn(providers.RoleAssistant, reply)
	return OutcomeModel, reply
}

func (d *Dispatcher) askModel(ctx context.Context, s *session.Session, text string) (string, error) {
	if d.deps.Provider == nil {
		return "", providers.ErrNoProvider
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.ModelTimeout)
	defer cancel()

	conv := s.Model()
	if conv == nil {
		c, err := d.deps.Provider.NewConversation(callCtx, d.deps.Persona.SystemPrompt())
		if err != nil {
			return "", err
		}
		s.SetModel(c)
		conv = c
	}
	reply, err := conv.Send(callCtx, s.Turns(), text)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", providers.ErrEmptyCompletion
	}
	return reply, nil
}

// deliver brackets the humanization delay with presence signals and sends.
// An in-flight run is not cancelled by shutdown.
func (d *Dispatcher) deliver(ctx context.Context, channel, chatID, text string, delay time.Duration) error {
	runCtx := context.WithoutCancel(ctx)

	d.presence(runCtx, channel, chatID, channels.PresenceComposing)
	_ = d.opts.Sleep(runCtx, delay)
	d.presence(runCtx, channel, chatID, channels.PresencePaused)

	for _, part := range d.parts(channel, text) {
		d.deps.Handoff.RememberSent(part)
	}
	sendCtx, cancel := context.WithTimeout(runCtx, d.opts.SendTimeout)
	defer cancel()
	if err := d.deps.Sender.Send(sendCtx, channel, chatID, text); err != nil {
		logger.ErrorCF("agent", "Failed to send reply", map[string]interface{}{
			"channel": channel,
			"chat_id": chatID,
			"error":   err.Error(),
		})
		return err
	}
	return nil
}

// partSplitter is implemented by senders whose transports deliver long
// text as several messages, each echoed back on its own.
type partSplitter interface {
	Parts(channel, text string) []string
}

// parts returns text and, when the transport splits it, every piece.
func (d *Dispatcher) parts(channel, text string) []string {
	out := []string{text}
	if ps, ok := d.deps.Sender.(partSplitter); ok {
		for _, p := range ps.Parts(channel, text) {
			if p != text {
				out = append(out, p)
			}
		}
	}
	return out
}

func (d *Dispatcher) presence(ctx context.Context, channel, chatID string, p channels.Presence) {
	pctx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()
	if err := d.deps.Sender.SetPresence(pctx, channel, chatID, p); err != nil {
		logger.DebugCF("agent", "Presence update ignored", map[string]interface{}{
			"chat_id":  chatID,
			"presence": string(p),
			"error":    err.Error(),
		})
	}
}

func (d *Dispatcher) emit(ev bus.Event) {
	if d.deps.Bus != nil {
		d.deps.Bus.Emit(ev)
	}
}

func (d *Dispatcher) rememberChannel(chatID, channel string) {
	if channel == "" {
		return
	}
	d.mu.Lock()
	d.chatChan[chatID] = channel
	d.mu.Unlock()
}

func (d *Dispatcher) channelFor(chatID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.chatChan[chatID]; ok {
		return ch
	}
	return d.opts.DefaultChannel
}

// Stats is a point-in-time view for the status surfaces.
type Stats struct {
	Sessions      int    `json:"sessions"`
	Workers       int    `json:"workers"`
	Handled       uint64 `json:"handled"`
	Replies       uint64 `json:"replies"`
	ModelFailures uint64 `json:"model_failures"`
	Dropped       uint64 `json:"dropped"`
	DedupEntries  int    `json:"dedup_entries"`
	AutoReply     bool   `json:"auto_reply"`
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	workers := len(d.workers)
	d.mu.Unlock()
	return Stats{
		Sessions:      d.deps.Sessions.Len(),
		Workers:       workers,
		Handled:       d.handled.Load(),
		Replies:       d.replies.Load(),
		ModelFailures: d.failures.Load(),
		Dropped:       d.dropped.Load(),
		DedupEntries:  d.deps.Dedup.Len(),
		AutoReply:     d.autoReply.Load(),
	}
}
