package channels

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/config"
	"github.com/sushiaki/sorabot/pkg/connection"
	"github.com/sushiaki/sorabot/pkg/logger"
)

func TestBaseChannel_IsAllowed(t *testing.T) {
	open := NewBaseChannel("t", bus.NewMessageBus(), nil)
	assert.True(t, open.IsAllowed("anyone"))

	restricted := NewBaseChannel("t", bus.NewMessageBus(), []string{"@123", " 456 "})
	assert.True(t, restricted.IsAllowed("123"))
	assert.True(t, restricted.IsAllowed("456"))
	assert.False(t, restricted.IsAllowed("789"))
}

func TestBaseChannel_HandleMessageStampsChannel(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	c := NewBaseChannel("whatsapp", mb, []string{"allowed"})

	assert.False(t, c.HandleMessage(bus.InboundMessage{SenderID: "stranger", Content: "oi"}))
	assert.True(t, c.HandleMessage(bus.InboundMessage{SenderID: "stranger", FromMe: true, Content: "oi"}))

	msg, ok := mb.ConsumeInbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, "whatsapp", msg.Channel)
	assert.True(t, msg.FromMe)
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("oi")}, "oi"},
		{"extended", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("link")}}, "link"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("foto")}}, "foto"},
		{"video caption", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: proto.String("vídeo")}}, "vídeo"},
		{"sticker only", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractText(tt.msg))
		})
	}
}

func TestInboundFromEvent(t *testing.T) {
	chat := types.NewJID("5541999990000", types.DefaultUserServer)
	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: chat, IsFromMe: true},
			ID:            "3EB0ABC",
			Timestamp:     time.Unix(1700000000, 0),
		},
		Message: &waE2E.Message{Conversation: proto.String("já te atendo")},
	}
	msg, ok := inboundFromEvent(evt)
	require.True(t, ok)
	assert.Equal(t, "5541999990000@s.whatsapp.net", msg.ChatID)
	assert.Equal(t, "3EB0ABC", msg.MessageID)
	assert.Equal(t, "já te atendo", msg.Content)
	assert.True(t, msg.FromMe)
	assert.False(t, msg.IsGroup)

	group := types.NewJID("120363000000", types.GroupServer)
	evt.Info.Chat = group
	msg, ok = inboundFromEvent(evt)
	require.True(t, ok)
	assert.True(t, msg.IsGroup)

	_, ok = inboundFromEvent(&events.Message{Message: &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{}}})
	assert.False(t, ok)
}

func TestDisconnectReason(t *testing.T) {
	tests := []struct {
		name string
		evt  interface{}
		want connection.Reason
		ok   bool
	}{
		{"logged out", &events.LoggedOut{}, connection.ReasonLoggedOut, true},
		{"connect failure logged out", &events.ConnectFailure{Reason: events.ConnectFailureLoggedOut}, connection.ReasonLoggedOut, true},
		{"pair error", &events.PairError{}, connection.ReasonBadSession, true},
		{"disconnected", &events.Disconnected{}, connection.ReasonTransient, true},
		{"stream replaced", &events.StreamReplaced{}, connection.ReasonTransient, true},
		{"unrelated", &events.Connected{}, connection.ReasonNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := disconnectReason(tt.evt)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInboundFromDiscord(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "dm-1",
		Content:   "oi",
		Author:    &discordgo.User{ID: "u1", Username: "cliente"},
	}}
	msg := inboundFromDiscord(m, false)
	assert.Equal(t, "dm-1", msg.ChatID)
	assert.False(t, msg.IsGroup)
	assert.False(t, msg.Timestamp.IsZero())

	m.GuildID = "g1"
	assert.True(t, inboundFromDiscord(m, false).IsGroup)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"curta"}, splitMessage("curta", 10))

	chunks := splitMessage("linha um\nlinha dois e mais", 12)
	require.Len(t, chunks, 3)
	assert.Equal(t, "linha um", chunks[0])
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 12)
	}

	long := strings.Repeat("á", 25)
	chunks = splitMessage(long, 10)
	assert.Equal(t, []string{strings.Repeat("á", 10), strings.Repeat("á", 10), strings.Repeat("á", 5)}, chunks)
	assert.Empty(t, splitMessage("   ", 10))
}

func TestConsoleChannel(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	var out bytes.Buffer
	c := NewConsoleChannel(mb, &out, true)

	assert.ErrorIs(t, c.Send(context.Background(), bus.OutboundMessage{Content: "x"}), ErrNotConnected)
	require.NoError(t, c.Start(context.Background()))

	require.True(t, c.Submit("oi"))
	msg, ok := mb.ConsumeInbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, ConsoleChannelName, msg.Channel)
	assert.Equal(t, ConsoleChatID, msg.ChatID)
	assert.NotEmpty(t, msg.MessageID)

	require.NoError(t, c.SetPresence(context.Background(), ConsoleChatID, PresenceComposing))
	require.NoError(t, c.Send(context.Background(), bus.OutboundMessage{Content: "Olá!"}))
	assert.Contains(t, out.String(), "(digitando...)")
	assert.Contains(t, out.String(), "🍣 Olá!")
}

func TestManager_RoutesToRegisteredChannel(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	var out bytes.Buffer
	m := NewEmptyManager(mb)
	console := NewConsoleChannel(mb, &out, false)
	m.RegisterChannel(ConsoleChannelName, console)

	require.NoError(t, m.StartAll(context.Background()))
	require.NoError(t, m.Send(context.Background(), ConsoleChannelName, ConsoleChatID, "pedido pelo site"))
	assert.Contains(t, out.String(), "pedido pelo site")
	assert.NoError(t, m.SetPresence(context.Background(), ConsoleChannelName, ConsoleChatID, PresencePaused))

	assert.Error(t, m.Send(context.Background(), "whatsapp", "x", "y"))
	status := m.GetStatus()
	assert.Contains(t, status, ConsoleChannelName)

	require.NoError(t, m.StopAll(context.Background()))
	assert.False(t, console.IsRunning())
}

func TestManager_PartsFollowChannelSplitting(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	m := NewEmptyManager(mb)
	m.RegisterChannel(ConsoleChannelName, NewConsoleChannel(mb, &bytes.Buffer{}, false))
	dc, err := NewDiscordChannel(config.DiscordConfig{Token: "test-token"}, mb, nil)
	require.NoError(t, err)
	m.RegisterChannel("discord", dc)

	long := strings.Repeat("sushi fresquinho ", 200)
	assert.Equal(t, []string{long}, m.Parts(ConsoleChannelName, long))
	assert.Equal(t, []string{"x"}, m.Parts("unknown", "x"))

	parts := m.Parts("discord", long)
	require.Greater(t, len(parts), 1)
	assert.Equal(t, splitMessage(long, discordMessageLimit), parts)
}

func TestWALogger_Levels(t *testing.T) {
	l := NewWALogger("whatsmeow", "")
	wl, ok := l.(*waLogger)
	require.True(t, ok)
	assert.Equal(t, logger.WARN, wl.min)
	assert.Equal(t, "whatsmeow/Client", l.Sub("Client").(*waLogger).component)
	assert.Equal(t, logger.DEBUG, NewWALogger("x", "debug").(*waLogger).min)
}
