package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sushiaki/sorabot/pkg/config"
	"github.com/sushiaki/sorabot/pkg/providers"
)

const probeTimeout = 30 * time.Second

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func statusCmd(w io.Writer, configPath string, probe bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Fprintf(w, "%s Status\n", appName)
	fmt.Fprintf(w, "Version: %s\n", formatVersion())
	build, _ := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "Build: %s\n", build)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Config:", configPath, mark(fileExists(configPath)))
	workspace := cfg.WorkspacePath()
	fmt.Fprintln(w, "Workspace:", workspace, mark(fileExists(workspace)))
	fmt.Fprintln(w, "Business:", cfg.Bot.BusinessName)

	transport := cfg.TransportName()
	fmt.Fprintln(w, "Transport:", transport)
	switch transport {
	case config.TransportWhatsApp:
		store := cfg.WhatsAppStorePath()
		if fileExists(store) {
			fmt.Fprintln(w, "WhatsApp store:", store, "✓")
		} else {
			fmt.Fprintln(w, "WhatsApp store:", store, "not paired")
		}
	case config.TransportDiscord:
		fmt.Fprintln(w, "Discord token:", mark(strings.TrimSpace(cfg.Channels.Discord.Token) != ""))
	}

	name, configured, mode, credErr := providers.ProviderCredentialStatus(cfg)
	if credErr != nil {
		fmt.Fprintln(w, "AI provider:", providers.ActiveProviderName(cfg), "✗", credErr.Error())
	} else {
		line := fmt.Sprintf("%s %s", name, mark(configured))
		if mode != "" {
			line += " (" + mode + ")"
		}
		fmt.Fprintln(w, "AI provider:", line)
	}
	fmt.Fprintln(w, "Auto-reply:", mark(cfg.Bot.AutoReply))
	fmt.Fprintln(w, "Human takeover window:", cfg.HandoffWindow())
	fmt.Fprintln(w, "Gateway:", cfg.GatewayAddr())
	fmt.Fprintln(w, "Gateway ready:", mark(validateRuntimeConfig(cfg) == nil))

	if !probe {
		return nil
	}

	fmt.Fprintln(w)
	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		fmt.Fprintln(w, "AI probe: ✗", err.Error())
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	res, err := providers.Probe(ctx, provider)
	if err != nil {
		fmt.Fprintln(w, "AI probe: ✗", err.Error())
		return nil
	}
	fmt.Fprintf(w, "AI probe: ✓ %s/%s replied %q in %s\n", res.Provider, res.Model, res.Reply, res.Latency.Round(time.Millisecond))
	return nil
}
