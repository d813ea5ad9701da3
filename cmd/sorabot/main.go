// Sorabot - WhatsApp attendant with human handoff
// License: MIT
//
// Copyright (c) 2026 Sorabot contributors

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sushiaki/sorabot/pkg/config"
	"github.com/sushiaki/sorabot/pkg/logger"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "sorabot"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// formatBuildInfo returns build time and go version info
func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Fprintf(w, "  Go: %s\n", goVer)
	}
}

func main() {
	// A .env next to the binary is optional; real environment wins.
	_ = godotenv.Load()

	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("SORABOT_CONFIG")); p != "" {
		return config.ExpandHome(p)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sorabot", "config.json")
}

func resolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return config.ExpandHome(p)
	}
	return getConfigPath()
}

func loadConfig(path string) (*config.Config, error) {
	return config.LoadConfig(path)
}

func configureLogging(cfg *config.Config, debug bool) {
	logger.Configure(os.Stderr, cfg.Logging.Format)
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}
}

// validateRuntimeConfig rejects configurations the gateway cannot run with.
// A missing AI credential is not fatal: replies fall back to fixed text.
func validateRuntimeConfig(cfg *config.Config) error {
	switch cfg.TransportName() {
	case config.TransportWhatsApp:
		return nil
	case config.TransportDiscord:
		if strings.TrimSpace(cfg.Channels.Discord.Token) == "" {
			return fmt.Errorf("channels.discord.token is required when transport is %q", config.TransportDiscord)
		}
		return nil
	default:
		return fmt.Errorf("unsupported transport %q (use %s or %s)", cfg.TransportName(), config.TransportWhatsApp, config.TransportDiscord)
	}
}
