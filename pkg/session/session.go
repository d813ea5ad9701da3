// Package session holds the per-conversation state of the attendant.
//
// A Session is created lazily on first reference and lives for the whole
// process. The engine never deletes sessions; only the operator API may
// clear them explicitly.
package session

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sushiaki/sorabot/pkg/providers"
	"github.com/sushiaki/sorabot/pkg/utils"
)

// Turn is one exchange with the language model.
type Turn = providers.Message

type ObjectionKind string

const ObjectionTrust ObjectionKind = "trust"

// TranscriptLimit bounds the operator-view transcript per session.
const TranscriptLimit = 200

// echoLimit bounds the operator sends awaiting their transport echo.
const echoLimit = 16

type EntryKind string

const (
	EntryInbound EntryKind = "inbound"
	EntryBot     EntryKind = "bot"
	EntryHuman   EntryKind = "human"
)

// Entry is one line of the operator-view transcript.
type Entry struct {
	Kind EntryKind `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session fields are guarded by the session's lock. Callers hold it via
// Lock/Unlock or Store.With for the whole duration of a reply run,
// including the model call and the reply delay.
type Session struct {
	ID            string
	CreatedAt     time.Time
	History       []Turn
	HumanActive   bool
	LastHumanAt   time.Time
	GreetingSent  bool
	LastInboundAt time.Time
	Transcript    []Entry

	handledObjections map[ObjectionKind]struct{}
	model             providers.Conversation
	echoes            []string
	mu                sync.Mutex
	// last is the summary published on every Unlock, readable without
	// the lock while a reply run holds it.
	last atomic.Pointer[Snapshot]
}

func newSession(id string, now time.Time) *Session {
	s := &Session{
		ID:                id,
		CreatedAt:         now,
		handledObjections: make(map[ObjectionKind]struct{}),
	}
	summary := s.summary()
	s.last.Store(&summary)
	return s
}

func (s *Session) Lock() { s.mu.Lock() }

func (s *Session) Unlock() {
	summary := s.summary()
	s.last.Store(&summary)
	s.mu.Unlock()
}

// TryLock reserves the session only if no reply run holds it.
func (s *Session) TryLock() bool { return s.mu.TryLock() }

// AppendTurn appends to History. Existing turns are never modified.
func (s *Session) AppendTurn(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
}

// Turns returns a copy of History.
func (s *Session) Turns() []Turn {
	out := make([]Turn, len(s.History))
	copy(out, s.History)
	return out
}

// MarkObjectionHandled records kind and reports whether it was new.
func (s *Session) MarkObjectionHandled(kind ObjectionKind) bool {
	if _, ok := s.handledObjections[kind]; ok {
		return false
	}
	s.handledObjections[kind] = struct{}{}
	return true
}

func (s *Session) ObjectionHandled(kind ObjectionKind) bool {
	_, ok := s.handledObjections[kind]
	return ok
}

// Model returns the lazily created model conversation, or nil.
func (s *Session) Model() providers.Conversation {
	return s.model
}

func (s *Session) SetModel(c providers.Conversation) {
	s.model = c
}

// Record appends to the transcript, dropping the oldest entry past
// TranscriptLimit.
func (s *Session) Record(kind EntryKind, text string, at time.Time) {
	s.Transcript = append(s.Transcript, Entry{Kind: kind, Text: text, At: at})
	if over := len(s.Transcript) - TranscriptLimit; over > 0 {
		s.Transcript = append(s.Transcript[:0:0], s.Transcript[over:]...)
	}
}

// ExpectEcho remembers text the operator sent through the API, so the
// copy the transport reports back is not taken as a second message.
func (s *Session) ExpectEcho(text string) {
	if text = strings.TrimSpace(text); text == "" {
		return
	}
	s.echoes = append(s.echoes, text)
	if over := len(s.echoes) - echoLimit; over > 0 {
		s.echoes = append(s.echoes[:0:0], s.echoes[over:]...)
	}
}

// ConsumeEcho reports whether text is an expected echo and forgets it.
func (s *Session) ConsumeEcho(text string) bool {
	text = strings.TrimSpace(text)
	for i, e := range s.echoes {
		if e == text {
			s.echoes = append(s.echoes[:i], s.echoes[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot is a read-only projection of a session.
type Snapshot struct {
	ID                string          `json:"id"`
	Customer          string          `json:"customer"`
	CreatedAt         time.Time       `json:"created_at"`
	HumanActive       bool            `json:"human_active"`
	LastHumanAt       *time.Time      `json:"last_human_at,omitempty"`
	LastInboundAt     *time.Time      `json:"last_inbound_at,omitempty"`
	GreetingSent      bool            `json:"greeting_sent"`
	HandledObjections []ObjectionKind `json:"handled_objections"`
	HistoryTurns      int             `json:"history_turns"`
	Transcript        []Entry         `json:"transcript,omitempty"`
	// Busy marks a listing entry taken from the last published summary
	// because a reply run holds the session.
	Busy bool `json:"busy,omitempty"`
}

// Snapshot must be called with the session lock held.
func (s *Session) Snapshot() Snapshot {
	snap := s.summary()
	snap.Transcript = append([]Entry(nil), s.Transcript...)
	return snap
}

// LastSummary returns the summary published by the most recent Unlock.
// It needs no lock.
func (s *Session) LastSummary() Snapshot {
	return *s.last.Load()
}

func (s *Session) summary() Snapshot {
	snap := Snapshot{
		ID:                s.ID,
		Customer:          utils.ChatUser(s.ID),
		CreatedAt:         s.CreatedAt,
		HumanActive:       s.HumanActive,
		GreetingSent:      s.GreetingSent,
		HandledObjections: make([]ObjectionKind, 0, len(s.handledObjections)),
		HistoryTurns:      len(s.History),
	}
	if !s.LastHumanAt.IsZero() {
		t := s.LastHumanAt
		snap.LastHumanAt = &t
	}
	if !s.LastInboundAt.IsZero() {
		t := s.LastInboundAt
		snap.LastInboundAt = &t
	}
	for k := range s.handledObjections {
		snap.HandledObjections = append(snap.HandledObjections, k)
	}
	sort.Slice(snap.HandledObjections, func(i, j int) bool {
		return snap.HandledObjections[i] < snap.HandledObjections[j]
	})
	return snap
}
