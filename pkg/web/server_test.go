package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiaki/sorabot/pkg/agent"
	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/channels"
	"github.com/sushiaki/sorabot/pkg/connection"
	"github.com/sushiaki/sorabot/pkg/persona"
	"github.com/sushiaki/sorabot/pkg/providers"
)

const chatID = "5541999990001@s.whatsapp.net"

var msgSeq atomic.Int64

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) Send(_ context.Context, _, _, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func (r *recordingSender) SetPresence(context.Context, string, string, channels.Presence) error {
	return nil
}

type okProvider struct{}

func (okProvider) Name() string  { return "fake" }
func (okProvider) Model() string { return "fake-model" }
func (okProvider) NewConversation(context.Context, string) (providers.Conversation, error) {
	return okConversation{}, nil
}

type okConversation struct{}

func (okConversation) Send(context.Context, []providers.Message, string) (string, error) {
	return "OK", nil
}

type fixture struct {
	srv        *httptest.Server
	tracker    *connection.Tracker
	bus        *bus.MessageBus
	dispatcher *agent.Dispatcher
	sender     *recordingSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tracker: connection.NewTracker(),
		bus:     bus.NewMessageBus(),
		sender:  &recordingSender{},
	}
	f.dispatcher = agent.NewDispatcher(agent.Deps{
		Bus:      f.bus,
		Persona:  persona.New("", ""),
		Provider: okProvider{},
		Sender:   f.sender,
	}, agent.Options{
		AutoReply: true,
		Sleep:     func(context.Context, time.Duration) error { return nil },
	})
	s := NewServer(Options{
		Tracker:  f.tracker,
		Bus:      f.bus,
		Operator: f.dispatcher,
		Provider: okProvider{},
		Info: Info{
			BusinessName:   "Sushi Aki",
			Transport:      "whatsapp",
			ProviderName:   "fake",
			Model:          "fake-model",
			AIConfigured:   true,
			HandoffMinutes: 60,
		},
	})
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		f.srv.Close()
		f.bus.Close()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (f *fixture) greet(t *testing.T) {
	t.Helper()
	f.dispatcher.Handle(context.Background(), bus.InboundMessage{
		Channel:   "whatsapp",
		ChatID:    chatID,
		MessageID: fmt.Sprintf("3EB0%04d", msgSeq.Add(1)),
		Content:   "oi",
	})
}

func TestStatus_FollowsTracker(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st pairingStatus
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, pairingStatus{Status: "Aguardando configuração...", State: "awaiting_credential"}, st)

	f.tracker.CredentialIssued("2@abc,def,ghi")
	_, body = f.do(t, http.MethodGet, "/status", "")
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.HasQR)
	assert.True(t, st.HasCredential)
	assert.Equal(t, "Escaneie o QR Code", st.Status)
}

func TestQR(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/qr", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.tracker.CredentialIssued("2@Lq1c3FbQ,f4Xk9Z7v,Tq0BvC12,E9rX")
	resp, body := f.do(t, http.MethodGet, "/qr", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 280, img.Bounds().Dx())
	assert.Equal(t, 280, img.Bounds().Dy())

	// The quiet zone makes the corner white.
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r&g&b)

	f.tracker.Connected()
	resp, _ = f.do(t, http.MethodGet, "/qr", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRenderQR_EmptyPayload(t *testing.T) {
	_, err := renderQR("", qrSize, qrMargin)
	assert.Error(t, err)
}

func TestIndex(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := string(body)
	assert.Contains(t, page, `<meta http-equiv="refresh" content="3">`)
	assert.Contains(t, page, "Aguardando geração do QR Code")
	assert.Contains(t, page, "Sushi Aki Bot")

	f.tracker.CredentialIssued("2@payload")
	_, body = f.do(t, http.MethodGet, "/", "")
	assert.Contains(t, string(body), `src="/qr?t=`)

	f.tracker.Connected()
	_, body = f.do(t, http.MethodGet, "/", "")
	assert.Contains(t, string(body), "WhatsApp conectado com sucesso!")
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	f.tracker.Connected()
	resp, _ = f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIStatus(t *testing.T) {
	f := newFixture(t)
	f.greet(t)

	_, body := f.do(t, http.MethodGet, "/api/status", "")
	var st map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, float64(1), st["active_conversations"])
	assert.Equal(t, true, st["ai_configured"])
	assert.Equal(t, "fake", st["provider"])
	bot := st["bot_config"].(map[string]interface{})
	assert.Equal(t, true, bot["auto_reply"])
	assert.Equal(t, float64(60), bot["human_takeover_minutes"])
}

func TestConversationsAPI(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/conversations/"+chatID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/api/takeover/"+chatID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.greet(t)

	_, body := f.do(t, http.MethodGet, "/api/conversations", "")
	var list struct {
		Conversations []map[string]interface{} `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, chatID, list.Conversations[0]["id"])

	resp, body = f.do(t, http.MethodGet, "/api/conversations/"+chatID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var one map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &one))
	assert.Equal(t, true, one["greeting_sent"])
	assert.Len(t, one["transcript"], 2)

	resp, _ = f.do(t, http.MethodPost, "/api/takeover/"+chatID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s, _ := f.dispatcher.Sessions().Get(chatID)
	s.Lock()
	assert.True(t, s.HumanActive)
	s.Unlock()

	resp, _ = f.do(t, http.MethodPost, "/api/release/"+chatID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s.Lock()
	assert.False(t, s.HumanActive)
	s.Unlock()

	resp, _ = f.do(t, http.MethodDelete, "/api/conversations/"+chatID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodDelete, "/api/conversations/"+chatID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.greet(t)
	_, body = f.do(t, http.MethodDelete, "/api/conversations", "")
	assert.JSONEq(t, `{"success":true,"cleared":1}`, string(body))
}

func TestSendMessageAPI(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/send-message", `{"chat_id":"`+chatID+`","message":"olá"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "unknown chats have no channel")

	f.greet(t)
	resp, _ = f.do(t, http.MethodPost, "/api/send-message", `{"chat_id":"`+chatID+`","message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/api/send-message", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/send-message", `{"chat_id":"`+chatID+`","message":"Aqui é a Ana, vou ajudar"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f.sender.mu.Lock()
	last := f.sender.sent[len(f.sender.sent)-1]
	f.sender.mu.Unlock()
	assert.Equal(t, "Aqui é a Ana, vou ajudar", last)
}

func TestAutoReplyAPI(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/auto-reply", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/auto-reply", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"auto_reply":false,"human_takeover_minutes":60}`, string(body))
	assert.False(t, f.dispatcher.AutoReply())
}

func TestTestAIAPI(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/api/test-ai", "")
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "OK", out["response"])
	assert.Equal(t, "fake-model", out["model"])
}

func TestOperatorUnavailable(t *testing.T) {
	srv := httptest.NewServer(NewServer(Options{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/takeover/x", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func readType(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketFeed(t *testing.T) {
	f := newFixture(t)
	f.greet(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readType(t, conn)
	assert.Equal(t, "init", hello["type"])
	assert.Len(t, hello["conversations"], 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readType(t, conn)["type"])

	// Subscriptions are registered before the reader loop, so the ping
	// round trip guarantees they are live.
	f.tracker.Connected()
	st := readType(t, conn)
	assert.Equal(t, "status_update", st["type"])
	assert.Equal(t, "Conectado!", st["status"].(map[string]interface{})["status"])

	require.NoError(t, f.dispatcher.TakeOver(chatID))
	ev := readType(t, conn)
	assert.Equal(t, string(bus.EventHumanTakeover), ev["type"])
}
