package web

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/sushiaki/sorabot/pkg/connection"
	"github.com/sushiaki/sorabot/pkg/logger"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Name}} Bot - QR Code</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="refresh" content="3">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%); min-height: 100vh; display: flex; justify-content: center; align-items: center; color: white; }
        .container { text-align: center; padding: 40px; background: rgba(255,255,255,0.1); border-radius: 20px; box-shadow: 0 8px 32px rgba(0,0,0,0.3); max-width: 500px; }
        h1 { font-size: 2em; margin-bottom: 10px; color: #ff6b6b; }
        .status { font-size: 1.2em; margin: 20px 0; padding: 10px 20px; border-radius: 10px; background: {{.Color}}; }
        .qr-container { background: white; padding: 20px; border-radius: 15px; margin: 20px auto; display: inline-block; }
        .qr-container img { max-width: 280px; height: auto; }
        .instructions { margin-top: 20px; font-size: 0.9em; color: #bbb; }
        .instructions ol { text-align: left; display: inline-block; }
        .instructions li { margin: 5px 0; }
        .refresh { margin-top: 15px; font-size: 0.8em; color: #888; }
        .connected { font-size: 4em; color: #27ae60; }
    </style>
</head>
<body>
    <div class="container">
        <h1>🍣 {{.Name}} Bot</h1>
        <div class="status">{{.Status}}</div>
        {{if .Connected}}
            <div class="connected">✓</div>
            <p style="margin-top: 20px; font-size: 1.2em;">WhatsApp conectado com sucesso!</p>
            <p style="margin-top: 10px; color: #27ae60;">O bot está ativo e respondendo mensagens.</p>
            <p style="margin-top: 20px; font-size: 0.9em; color: #888;">Você pode fechar esta página.</p>
        {{else if .HasQR}}
            <div class="qr-container">
                <img src="/qr?t={{.Stamp}}" alt="QR Code">
            </div>
            <div class="instructions">
                <p><strong>Para conectar:</strong></p>
                <ol>
                    <li>Abra o WhatsApp no celular</li>
                    <li>Vá em Configurações &gt; Aparelhos conectados</li>
                    <li>Toque em "Conectar um aparelho"</li>
                    <li>Escaneie este QR Code</li>
                </ol>
            </div>
        {{else}}
            <p>Aguardando geração do QR Code...</p>
            <p style="margin-top: 10px; font-size: 0.9em; color: #888;">Isso pode levar alguns segundos.</p>
        {{end}}
        <div class="refresh">Página atualiza automaticamente a cada 3 segundos</div>
    </div>
</body>
</html>
`))

type indexView struct {
	Name      string
	Status    string
	Color     template.CSS
	Connected bool
	HasQR     bool
	Stamp     int64
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := s.opts.Tracker.Snapshot()
	view := indexView{
		Name:      s.businessName(),
		Status:    st.StatusText,
		Color:     statusColor(st),
		Connected: st.State == connection.Connected,
		HasQR:     st.HasQR(),
		Stamp:     st.UpdatedAt.UnixMilli(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := indexTemplate.Execute(w, view); err != nil {
		logger.WarnCF("web", "Failed to render index", map[string]interface{}{"error": err.Error()})
	}
}

func statusColor(st connection.Status) template.CSS {
	switch {
	case st.State == connection.Connected:
		return "#27ae60"
	case st.State == connection.CredentialIssued:
		return "#f39c12"
	default:
		return "#3498db"
	}
}

func (s *Server) businessName() string {
	if name := strings.TrimSpace(s.opts.Info.BusinessName); name != "" {
		return name
	}
	return "Sorabot"
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	st := s.opts.Tracker.Snapshot()
	if !st.HasQR() {
		http.Error(w, "QR não disponível", http.StatusNotFound)
		return
	}
	img, err := renderQR(st.QRPayload, qrSize, qrMargin)
	if err != nil {
		logger.ErrorCF("web", "Failed to render QR", map[string]interface{}{"error": err.Error()})
		http.Error(w, "Erro ao gerar QR", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}

type pairingStatus struct {
	Status        string `json:"status"`
	HasQR         bool   `json:"hasQR"`
	HasCredential bool   `json:"hasCredential"`
	State         string `json:"state"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.opts.Tracker.Snapshot()
	respondJSON(w, http.StatusOK, pairingStatus{
		Status:        st.StatusText,
		HasQR:         st.HasQR(),
		HasCredential: st.HasQR(),
		State:         string(st.State),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleReady reports 200 only once the transport is connected.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	st := s.opts.Tracker.Snapshot()
	if st.State != connection.Connected {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"state":  string(st.State),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
