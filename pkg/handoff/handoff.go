// Package handoff decides whether the bot may answer a conversation.
//
// A conversation is BotActive until an outbound message that the bot did
// not author is observed on it; that marks a human operator as in control.
// Control returns to the bot once the window has elapsed since the last
// observed human activity, evaluated lazily.
package handoff

import (
	"strings"
	"time"

	"github.com/sushiaki/sorabot/pkg/dedup"
	"github.com/sushiaki/sorabot/pkg/session"
)

const DefaultWindow = 60 * time.Minute

type Policy struct {
	window  time.Duration
	markers []string
	fixed   map[string]struct{}
	sent    *dedup.Guard
}

// NewPolicy builds a policy. window <= 0 means DefaultWindow. markers are
// substrings that identify bot-authored text.
func NewPolicy(window time.Duration, markers []string, fixedTexts ...string) *Policy {
	if window <= 0 {
		window = DefaultWindow
	}
	p := &Policy{
		window: window,
		fixed:  make(map[string]struct{}, len(fixedTexts)),
		sent:   dedup.New(dedup.DefaultCapacity),
	}
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			p.markers = append(p.markers, m)
		}
	}
	for _, t := range fixedTexts {
		p.fixed[normalize(t)] = struct{}{}
	}
	return p
}

func (p *Policy) Window() time.Duration { return p.window }

// RememberSent records text the bot itself sent so that its echo is never
// mistaken for an operator message.
func (p *Policy) RememberSent(text string) {
	if t := normalize(text); t != "" {
		p.sent.Seen(t)
	}
}

// IsBotContent reports whether an outbound text was authored by the bot.
func (p *Policy) IsBotContent(text string) bool {
	t := normalize(text)
	if t == "" {
		return false
	}
	if _, ok := p.fixed[t]; ok {
		return true
	}
	if p.sent.Contains(t) {
		return true
	}
	for _, m := range p.markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// ObserveOutbound inspects a message sent on the bot's own account. A
// non-empty text that is not bot content puts the session in HumanActive
// and refreshes LastHumanAt. It reports whether that happened.
// The caller must hold the session lock.
func (p *Policy) ObserveOutbound(s *session.Session, text string, now time.Time) bool {
	if strings.TrimSpace(text) == "" || p.IsBotContent(text) {
		return false
	}
	s.HumanActive = true
	s.LastHumanAt = now
	return true
}

// Allow reports whether the bot may respond, releasing an expired
// handoff as a side effect. The caller must hold the session lock.
func (p *Policy) Allow(s *session.Session, now time.Time) bool {
	if !s.HumanActive {
		return true
	}
	if p.Expired(s, now) {
		s.HumanActive = false
		return true
	}
	return false
}

// Expired reports whether an active handoff has outlived the window.
func (p *Policy) Expired(s *session.Session, now time.Time) bool {
	return s.HumanActive && now.Sub(s.LastHumanAt) > p.window
}

// TakeOver forces HumanActive, as when an operator claims the chat.
func (p *Policy) TakeOver(s *session.Session, now time.Time) {
	s.HumanActive = true
	s.LastHumanAt = now
}

// Release hands the chat back to the bot immediately.
func (p *Policy) Release(s *session.Session) {
	s.HumanActive = false
}

func normalize(text string) string {
	return strings.TrimSpace(text)
}
