package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/connection"
	"github.com/sushiaki/sorabot/pkg/logger"
	"github.com/sushiaki/sorabot/pkg/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsSendQueue  = 32
)

type wsInbound struct {
	Type string `json:"type"`
}

type wsInit struct {
	Type          string             `json:"type"`
	Status        connection.Status  `json:"status"`
	Config        botConfigView      `json:"config"`
	Conversations []session.Snapshot `json:"conversations"`
}

type wsStatus struct {
	Type   string            `json:"type"`
	Status connection.Status `json:"status"`
}

type wsEvent struct {
	Type  string    `json:"type"`
	Event bus.Event `json:"event"`
}

// handleWebSocket streams dashboard updates. A single writer goroutine
// owns the connection's write side.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("web", "WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	writerDone := make(chan struct{})
	defer func() {
		cancel()
		<-writerDone
	}()

	out := make(chan interface{}, wsSendQueue)
	push := func(v interface{}) {
		select {
		case out <- v:
		default:
			logger.DebugC("web", "WebSocket client too slow, update dropped")
		}
	}

	hello := wsInit{Type: "init", Status: s.opts.Tracker.Snapshot(), Config: s.botConfig(), Conversations: []session.Snapshot{}}
	if s.opts.Operator != nil {
		hello.Conversations = s.opts.Operator.Sessions().List()
	}
	out <- hello

	statuses, stopStatus := s.opts.Tracker.Subscribe()
	defer stopStatus()
	var events <-chan bus.Event
	if s.opts.Bus != nil {
		ch, stopEvents := s.opts.Bus.Subscribe()
		defer stopEvents()
		events = ch
	}

	go func() {
		defer close(writerDone)
		s.wsWriter(ctx, cancel, conn, out)
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-statuses:
				if !ok {
					return
				}
				push(wsStatus{Type: "status_update", Status: st})
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				push(wsEvent{Type: string(ev.Type), Event: ev})
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.DebugCF("web", "WebSocket read error", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg wsInbound
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.Type == "ping" {
			push(map[string]string{"type": "pong"})
		}
	}
}

func (s *Server) wsWriter(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan interface{}) {
	defer cancel()
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case v := <-out:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(v); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
