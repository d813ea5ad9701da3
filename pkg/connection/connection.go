// Package connection tracks the transport's pairing lifecycle and decides
// how to react to a disconnection.
package connection

import (
	"sync"
	"time"
)

type State string

const (
	AwaitingCredential State = "awaiting_credential"
	CredentialIssued   State = "credential_issued"
	Connected          State = "connected"
	Disconnected       State = "disconnected"
)

type Reason string

const (
	ReasonNone       Reason = ""
	ReasonLoggedOut  Reason = "logged_out"
	ReasonBadSession Reason = "bad_session"
	ReasonTransient  Reason = "transient"
)

const (
	textAwaiting    = "Aguardando configuração..."
	textScanQR      = "Escaneie o QR Code"
	textConnected   = "Conectado!"
	textReconnect   = "Reconectando..."
	textBadSession  = "Sessão inválida - Reconectando..."
	textLoggedOut   = "Desconectado - Escaneie novamente"
	subscriberQueue = 8
)

// Status is an immutable view of the connection state.
type Status struct {
	State      State     `json:"state"`
	QRPayload  string    `json:"-"`
	Reason     Reason    `json:"reason,omitempty"`
	StatusText string    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s Status) HasQR() bool { return s.State == CredentialIssued && s.QRPayload != "" }

// Tracker has a single writer (the transport adapter) and many readers.
type Tracker struct {
	status Status
	subs   map[int]chan Status
	nextID int
	now    func() time.Time
	mu     sync.RWMutex
}

func NewTracker() *Tracker {
	return NewTrackerWithClock(time.Now)
}

func NewTrackerWithClock(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		status: Status{State: AwaitingCredential, StatusText: textAwaiting, UpdatedAt: now()},
		subs:   make(map[int]chan Status),
		now:    now,
	}
}

func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// CredentialIssued records a fresh pairing code.
func (t *Tracker) CredentialIssued(payload string) {
	t.set(Status{State: CredentialIssued, QRPayload: payload, StatusText: textScanQR})
}

func (t *Tracker) Connected() {
	t.set(Status{State: Connected, StatusText: textConnected})
}

func (t *Tracker) Disconnected(reason Reason) {
	if reason == ReasonNone {
		reason = ReasonTransient
	}
	text := textReconnect
	switch reason {
	case ReasonLoggedOut:
		text = textLoggedOut
	case ReasonBadSession:
		text = textBadSession
	}
	t.set(Status{State: Disconnected, Reason: reason, StatusText: text})
}

// Subscribe streams status changes. A slow reader loses the oldest
// pending update, never the newest.
func (t *Tracker) Subscribe() (<-chan Status, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	ch := make(chan Status, subscriberQueue)
	t.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
		})
	}
}

func (t *Tracker) set(s Status) {
	s.UpdatedAt = t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	for _, ch := range t.subs {
		for {
			select {
			case ch <- s:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
