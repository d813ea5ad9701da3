// Sorabot - WhatsApp attendant with human handoff
// License: MIT
//
// Copyright (c) 2026 Sorabot contributors

// Package web serves the pairing page and the operator dashboard API.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/sushiaki/sorabot/pkg/agent"
	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/connection"
	"github.com/sushiaki/sorabot/pkg/logger"
	"github.com/sushiaki/sorabot/pkg/providers"
	"github.com/sushiaki/sorabot/pkg/session"
)

// Operator is the dispatcher surface exposed to the dashboard.
type Operator interface {
	Sessions() *session.Store
	TakeOver(chatID string) error
	Release(chatID string) error
	SendManual(ctx context.Context, chatID, text string) error
	Clear(chatID string) bool
	ClearAll() int
	AutoReply() bool
	SetAutoReply(on bool)
	Stats() agent.Stats
}

// Info is static process information shown on the status endpoints.
type Info struct {
	BusinessName   string
	Transport      string
	ProviderName   string
	Model          string
	AIConfigured   bool
	HandoffMinutes int
}

type Options struct {
	Addr     string
	Tracker  *connection.Tracker
	Bus      *bus.MessageBus
	Operator Operator
	// Provider is used by the AI self-test endpoint; nil disables it.
	Provider providers.Provider
	Info     Info
}

type Server struct {
	opts     Options
	router   chi.Router
	upgrader websocket.Upgrader

	mu     sync.Mutex
	server *http.Server
}

func NewServer(opts Options) *Server {
	if opts.Tracker == nil {
		opts.Tracker = connection.NewTracker()
	}
	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/qr", s.handleQR)
	r.Get("/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.handleHealth)
		api.Get("/status", s.handleAPIStatus)
		api.Post("/auto-reply", s.handleAutoReply)
		api.Post("/test-ai", s.handleTestAI)

		api.Get("/conversations", s.handleListConversations)
		api.Delete("/conversations", s.handleClearConversations)
		api.Get("/conversations/{id}", s.handleGetConversation)
		api.Delete("/conversations/{id}", s.handleDeleteConversation)
		api.Post("/takeover/{id}", s.handleTakeOver)
		api.Post("/release/{id}", s.handleRelease)
		api.Post("/send-message", s.handleSendMessage)

		api.Get("/ws", s.handleWebSocket)
	})
	return r
}

// Start listens on Addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	logger.InfoCF("web", "Pairing view listening", map[string]interface{}{"addr": ln.Addr().String()})
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("web", "Server stopped unexpectedly", map[string]interface{}{"error": err.Error()})
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.DebugCF("web", "Request served", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}
