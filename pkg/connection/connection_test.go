package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker()
	s := tr.Snapshot()
	assert.Equal(t, AwaitingCredential, s.State)
	assert.Equal(t, "Aguardando configuração...", s.StatusText)
	assert.False(t, s.HasQR())

	tr.CredentialIssued("2@abc,def")
	s = tr.Snapshot()
	assert.Equal(t, CredentialIssued, s.State)
	assert.Equal(t, "2@abc,def", s.QRPayload)
	assert.True(t, s.HasQR())
	assert.Equal(t, "Escaneie o QR Code", s.StatusText)

	tr.Connected()
	s = tr.Snapshot()
	assert.Equal(t, Connected, s.State)
	assert.Empty(t, s.QRPayload)
	assert.Equal(t, "Conectado!", s.StatusText)

	tr.Disconnected(ReasonNone)
	s = tr.Snapshot()
	assert.Equal(t, Disconnected, s.State)
	assert.Equal(t, ReasonTransient, s.Reason)
	assert.Equal(t, "Reconectando...", s.StatusText)
}

func TestTracker_DisconnectTexts(t *testing.T) {
	tr := NewTracker()
	tr.Disconnected(ReasonLoggedOut)
	assert.Equal(t, "Desconectado - Escaneie novamente", tr.Snapshot().StatusText)
	tr.Disconnected(ReasonBadSession)
	assert.Equal(t, "Sessão inválida - Reconectando...", tr.Snapshot().StatusText)
}

func TestTracker_SubscribeKeepsNewest(t *testing.T) {
	tr := NewTracker()
	ch, cancel := tr.Subscribe()
	defer cancel()

	for i := 0; i < subscriberQueue+5; i++ {
		tr.CredentialIssued("qr")
	}
	tr.Connected()

	var last Status
	for {
		select {
		case s := <-ch:
			last = s
			continue
		case <-time.After(20 * time.Millisecond):
		}
		break
	}
	assert.Equal(t, Connected, last.State)
}

func TestTracker_UnsubscribeClosesChannel(t *testing.T) {
	tr := NewTracker()
	ch, cancel := tr.Subscribe()
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	tr.Connected()
}

func TestTracker_ClockStamps(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := NewTrackerWithClock(func() time.Time { return now })
	tr.Connected()
	assert.Equal(t, now, tr.Snapshot().UpdatedAt)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		reason Reason
		want   Plan
	}{
		{ReasonLoggedOut, Plan{}},
		{ReasonBadSession, Plan{Reconnect: true, ClearCredentials: true, After: 3 * time.Second}},
		{ReasonTransient, Plan{Reconnect: true, After: 5 * time.Second}},
		{ReasonNone, Plan{Reconnect: true, After: 5 * time.Second}},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			require.Equal(t, tt.want, Decide(tt.reason))
		})
	}
}

func TestReasonFromStatusCode(t *testing.T) {
	assert.Equal(t, ReasonBadSession, ReasonFromStatusCode(401))
	assert.Equal(t, ReasonTransient, ReasonFromStatusCode(503))
}
