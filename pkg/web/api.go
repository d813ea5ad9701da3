package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sushiaki/sorabot/pkg/agent"
	"github.com/sushiaki/sorabot/pkg/connection"
	"github.com/sushiaki/sorabot/pkg/providers"
)

const testAITimeout = 30 * time.Second

type botConfigView struct {
	AutoReply            bool `json:"auto_reply"`
	HumanTakeoverMinutes int  `json:"human_takeover_minutes"`
}

type apiStatus struct {
	Connection     connection.Status `json:"connection"`
	Bot            botConfigView     `json:"bot_config"`
	Conversations  int               `json:"active_conversations"`
	AIConfigured   bool              `json:"ai_configured"`
	Provider       string            `json:"provider"`
	Model          string            `json:"model"`
	Transport      string            `json:"transport"`
	DispatchStats  agent.Stats       `json:"dispatcher"`
	DroppedInbound uint64            `json:"dropped_inbound"`
}

func (s *Server) botConfig() botConfigView {
	v := botConfigView{HumanTakeoverMinutes: s.opts.Info.HandoffMinutes}
	if s.opts.Operator != nil {
		v.AutoReply = s.opts.Operator.AutoReply()
	}
	return v
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	out := apiStatus{
		Connection:   s.opts.Tracker.Snapshot(),
		Bot:          s.botConfig(),
		AIConfigured: s.opts.Info.AIConfigured,
		Provider:     s.opts.Info.ProviderName,
		Model:        s.opts.Info.Model,
		Transport:    s.opts.Info.Transport,
	}
	if s.opts.Operator != nil {
		out.DispatchStats = s.opts.Operator.Stats()
		out.Conversations = out.DispatchStats.Sessions
	}
	if s.opts.Bus != nil {
		out.DroppedInbound = s.opts.Bus.DroppedInbound()
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) requireOperator(w http.ResponseWriter) bool {
	if s.opts.Operator == nil {
		respondError(w, http.StatusServiceUnavailable, "dispatcher unavailable")
		return false
	}
	return true
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if !s.requireOperator(w) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": s.opts.Operator.Sessions().List(),
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if !s.requireOperator(w) {
		return
	}
	id := chi.URLParam(r, "id")
	sess, ok := s.opts.Operator.Sessions().Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	sess.Lock()
	snap := sess.Snapshot()
	sess.Unlock()
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if !s.requireOperator(w) {
		return
	}
	if !s.opts.Operator.Clear(chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleClearConversations(w http.ResponseWriter, r *http.Request) {
	if !s.requireOperator(w) {
		return
	}
	n := s.opts.Operator.ClearAll()
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "cleared": n})
}

func (s *Server) handleTakeOver(w http.ResponseWriter, r *http.Request) {
	s.handoffAction(w, r, func(id string) error { return s.opts.Operator.TakeOver(id) }, true)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.handoffAction(w, r, func(id string) error { return s.opts.Operator.Release(id) }, false)
}

func (s *Server) handoffAction(w http.ResponseWriter, r *http.Request, action func(string) error, human bool) {
	if !s.requireOperator(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := action(id); err != nil {
		if errors.Is(err, agent.ErrUnknownConversation) {
			respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "chat_id": id, "human_active": human})
}

type sendMessageRequest struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if !s.requireOperator(w) {
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.ChatID == "" {
		respondError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	err := s.opts.Operator.SendManual(r.Context(), req.ChatID, req.Message)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, agent.ErrEmptyText):
		respondError(w, http.StatusBadRequest, "message is required")
	case errors.Is(err, agent.ErrNoChannel):
		respondError(w, http.StatusNotFound, "conversation not found")
	default:
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

type autoReplyRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleAutoReply(w http.ResponseWriter, r *http.Request) {
	if !s.requireOperator(w) {
		return
	}
	var req autoReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	s.opts.Operator.SetAutoReply(*req.Enabled)
	respondJSON(w, http.StatusOK, s.botConfig())
}

func (s *Server) handleTestAI(w http.ResponseWriter, r *http.Request) {
	if s.opts.Provider == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": "provider not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), testAITimeout)
	defer cancel()
	res, err := providers.Probe(ctx, s.opts.Provider)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  false,
			"error":    err.Error(),
			"provider": s.opts.Provider.Name(),
			"model":    s.opts.Provider.Model(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"response":   res.Reply,
		"provider":   res.Provider,
		"model":      res.Model,
		"latency_ms": res.Latency.Milliseconds(),
	})
}
