package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiaki/sorabot/pkg/providers"
)

func TestStore_GetOrCreateReturnsSameSession(t *testing.T) {
	st := NewStore()
	a := st.GetOrCreate("5541999990000@s.whatsapp.net")
	b := st.GetOrCreate("5541999990000@s.whatsapp.net")
	assert.Same(t, a, b)
	assert.Equal(t, 1, st.Len())

	c := st.GetOrCreate("5541888880000@s.whatsapp.net")
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, st.Len())
}

func TestStore_Defaults(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	st := NewStoreWithClock(func() time.Time { return now })
	s := st.GetOrCreate("x")

	assert.Equal(t, "x", s.ID)
	assert.Equal(t, now, s.CreatedAt)
	assert.Empty(t, s.History)
	assert.False(t, s.HumanActive)
	assert.True(t, s.LastHumanAt.IsZero())
	assert.False(t, s.GreetingSent)
	assert.True(t, s.LastInboundAt.IsZero())
	assert.False(t, s.ObjectionHandled(ObjectionTrust))
	assert.Nil(t, s.Model())
}

func TestStore_ConcurrentGetOrCreateSingleInstance(t *testing.T) {
	st := NewStore()
	var wg sync.WaitGroup
	got := make([]*Session, 64)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = st.GetOrCreate("same")
		}(i)
	}
	wg.Wait()
	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, st.Len())
}

func TestStore_WithSerializesPerSession(t *testing.T) {
	st := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.With("chat", func(s *Session) {
				s.AppendTurn(providers.RoleUser, fmt.Sprintf("m%d", i))
			})
		}(i)
	}
	wg.Wait()
	st.With("chat", func(s *Session) {
		assert.Len(t, s.History, 100)
	})
}

func TestSession_MarkObjectionHandledIsIdempotent(t *testing.T) {
	s := NewStore().GetOrCreate("x")
	assert.True(t, s.MarkObjectionHandled(ObjectionTrust))
	assert.False(t, s.MarkObjectionHandled(ObjectionTrust))
	assert.True(t, s.ObjectionHandled(ObjectionTrust))
	assert.Equal(t, []ObjectionKind{ObjectionTrust}, s.Snapshot().HandledObjections)
}

func TestSession_TurnsIsACopy(t *testing.T) {
	s := NewStore().GetOrCreate("x")
	s.AppendTurn(providers.RoleUser, "oi")
	s.AppendTurn(providers.RoleAssistant, "Olá!")

	turns := s.Turns()
	turns[0].Content = "mutated"
	assert.Equal(t, "oi", s.History[0].Content)
	assert.Equal(t, providers.RoleAssistant, s.History[1].Role)
}

type stubConversation struct{}

func (stubConversation) Send(context.Context, []providers.Message, string) (string, error) {
	return "", nil
}

func TestSession_ModelHandle(t *testing.T) {
	s := NewStore().GetOrCreate("x")
	s.SetModel(stubConversation{})
	assert.NotNil(t, s.Model())
}

func TestSession_TranscriptIsCapped(t *testing.T) {
	s := NewStore().GetOrCreate("x")
	at := time.Unix(0, 0)
	for i := 0; i < TranscriptLimit+25; i++ {
		s.Record(EntryInbound, fmt.Sprintf("t%d", i), at)
	}
	require.Len(t, s.Transcript, TranscriptLimit)
	assert.Equal(t, "t25", s.Transcript[0].Text)
	assert.Equal(t, fmt.Sprintf("t%d", TranscriptLimit+24), s.Transcript[TranscriptLimit-1].Text)
}

func TestSession_SnapshotOptionalTimes(t *testing.T) {
	s := NewStore().GetOrCreate("x")
	snap := s.Snapshot()
	assert.Nil(t, snap.LastHumanAt)
	assert.Nil(t, snap.LastInboundAt)

	now := time.Now()
	s.LastHumanAt = now
	s.LastInboundAt = now
	snap = s.Snapshot()
	require.NotNil(t, snap.LastHumanAt)
	assert.True(t, snap.LastHumanAt.Equal(now))
	require.NotNil(t, snap.LastInboundAt)
}

func TestStore_ListSortedWithoutTranscripts(t *testing.T) {
	st := NewStore()
	st.GetOrCreate("b").Record(EntryInbound, "oi", time.Now())
	st.GetOrCreate("a")

	list := st.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Nil(t, list[1].Transcript)
}

func TestStore_DeleteAndReset(t *testing.T) {
	st := NewStore()
	st.GetOrCreate("a")
	st.GetOrCreate("b")

	assert.True(t, st.Delete("a"))
	assert.False(t, st.Delete("a"))
	_, ok := st.Get("a")
	assert.False(t, ok)

	assert.Equal(t, 1, st.Reset())
	assert.Equal(t, 0, st.Len())
}

func TestSession_SnapshotCustomer(t *testing.T) {
	st := NewStore()
	assert.Equal(t, "5541999990001", st.GetOrCreate("5541999990001@s.whatsapp.net").Snapshot().Customer)
	assert.Equal(t, "local", st.GetOrCreate("local").Snapshot().Customer)
}

func TestStore_ListDoesNotWaitOnBusySession(t *testing.T) {
	st := NewStore()
	s := st.GetOrCreate("a")
	s.Lock()
	s.HumanActive = true
	s.Unlock()

	s.Lock()
	s.GreetingSent = true

	done := make(chan []Snapshot, 1)
	go func() { done <- st.List() }()

	var list []Snapshot
	select {
	case list = <-done:
	case <-time.After(time.Second):
		s.Unlock()
		t.Fatal("List blocked on a locked session")
	}
	require.Len(t, list, 1)
	assert.True(t, list[0].Busy)
	assert.True(t, list[0].HumanActive, "busy sessions report their last published state")
	assert.False(t, list[0].GreetingSent)

	s.Unlock()
	list = st.List()
	require.Len(t, list, 1)
	assert.False(t, list[0].Busy)
	assert.True(t, list[0].GreetingSent)
}

func TestSession_ConsumeEchoOnce(t *testing.T) {
	s := NewStore().GetOrCreate("a")
	s.ExpectEcho(" Seu pedido saiu ")
	s.ExpectEcho("")

	assert.False(t, s.ConsumeEcho("outra coisa"))
	assert.True(t, s.ConsumeEcho("Seu pedido saiu"))
	assert.False(t, s.ConsumeEcho("Seu pedido saiu"), "an echo is matched once")

	for i := 0; i < echoLimit+4; i++ {
		s.ExpectEcho(fmt.Sprintf("msg %d", i))
	}
	assert.False(t, s.ConsumeEcho("msg 0"), "oldest expected echoes are forgotten")
	assert.True(t, s.ConsumeEcho(fmt.Sprintf("msg %d", echoLimit+3)))
}
