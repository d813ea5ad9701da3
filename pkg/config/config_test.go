package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestDefaultConfig_Bot(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Bot.BusinessName == "" {
		t.Error("BusinessName should not be empty")
	}
	if !cfg.Bot.AutoReply {
		t.Error("AutoReply should be enabled by default")
	}
	if cfg.Bot.HumanTakeoverMinutes != 60 {
		t.Errorf("HumanTakeoverMinutes = %d, want 60", cfg.Bot.HumanTakeoverMinutes)
	}
	if cfg.Bot.DedupCapacity != 1000 {
		t.Errorf("DedupCapacity = %d, want 1000", cfg.Bot.DedupCapacity)
	}
}

// TestDefaultConfig_ModelSettings verifies the generation constants passed to providers.
func TestDefaultConfig_ModelSettings(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Providers.MaxTokens != 300 {
		t.Errorf("MaxTokens = %d, want 300", cfg.Providers.MaxTokens)
	}
	if cfg.Providers.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", cfg.Providers.Temperature)
	}
	if cfg.Providers.HistoryTurns != 10 {
		t.Errorf("HistoryTurns = %d, want 10", cfg.Providers.HistoryTurns)
	}
	if cfg.Providers.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini", cfg.Providers.Provider)
	}
}

func TestDefaultConfig_Gateway(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Error("Gateway host should have default value")
	}
	if cfg.Gateway.Port != 3000 {
		t.Errorf("Gateway port = %d, want 3000", cfg.Gateway.Port)
	}
	if got := cfg.GatewayAddr(); got != "0.0.0.0:3000" {
		t.Errorf("GatewayAddr = %q", got)
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.HandoffWindow(); got != time.Hour {
		t.Errorf("HandoffWindow = %v, want 1h", got)
	}
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", got)
	}
	if got := cfg.SendTimeout(); got != 10*time.Second {
		t.Errorf("SendTimeout = %v, want 10s", got)
	}

	cfg.Bot.HumanTakeoverMinutes = 0
	cfg.Providers.RequestTimeoutSeconds = -1
	if got := cfg.HandoffWindow(); got != time.Hour {
		t.Errorf("HandoffWindow with zero minutes = %v, want 1h", got)
	}
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Errorf("RequestTimeout with negative seconds = %v, want 30s", got)
	}
}

func TestConfig_TransportName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels.Transport = "  Discord "
	if got := cfg.TransportName(); got != TransportDiscord {
		t.Errorf("TransportName = %q, want discord", got)
	}
	cfg.Channels.Transport = ""
	if got := cfg.TransportName(); got != TransportWhatsApp {
		t.Errorf("TransportName = %q, want whatsapp", got)
	}
}

func TestConfig_WhatsAppStorePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace = "/srv/sorabot"
	if got := cfg.WhatsAppStorePath(); got != filepath.Join("/srv/sorabot", "auth", "whatsapp.db") {
		t.Errorf("WhatsAppStorePath = %q", got)
	}
	cfg.Channels.WhatsApp.StorePath = "/data/wa.db"
	if got := cfg.WhatsAppStorePath(); got != "/data/wa.db" {
		t.Errorf("WhatsAppStorePath = %q, want explicit path", got)
	}
}

func TestSaveConfig_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permission bits are not enforced on Windows")
	}

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("config file has permission %04o, want 0600", perm)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"bot":{"business_name":"Casa Temaki","auto_reply":false},"providers":{"provider":"openai","model":"file/model"}}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SORABOT_PROVIDERS_MODEL", "env/model")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Bot.BusinessName; got != "Casa Temaki" {
		t.Fatalf("expected business name from file, got %q", got)
	}
	if cfg.Bot.AutoReply {
		t.Fatal("expected auto_reply=false from file")
	}
	if got := cfg.Providers.Model; got != "env/model" {
		t.Fatalf("expected env override model, got %q", got)
	}
	// Unset keys keep defaults.
	if cfg.Gateway.Port != 3000 {
		t.Fatalf("expected default port, got %d", cfg.Gateway.Port)
	}
}

func TestLoadConfig_EnvOverridesWithoutFile(t *testing.T) {
	t.Setenv("SORABOT_PROVIDERS_OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("SORABOT_BOT_HUMAN_TAKEOVER_MINUTES", "15")
	path := filepath.Join(t.TempDir(), "missing-config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Providers.OpenRouter.APIKey; got != "sk-or-test" {
		t.Fatalf("expected openrouter api key from env, got %q", got)
	}
	if got := cfg.HandoffWindow(); got != 15*time.Minute {
		t.Fatalf("expected 15m handoff window, got %v", got)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFlexibleStringSlice_AcceptsNumbers(t *testing.T) {
	var cfg DiscordConfig
	if err := json.Unmarshal([]byte(`{"allow_from":["abc",123456789012]}`), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(cfg.AllowFrom) != 2 || cfg.AllowFrom[0] != "abc" || cfg.AllowFrom[1] != "123456789012" {
		t.Fatalf("unexpected allow_from: %#v", cfg.AllowFrom)
	}
}
