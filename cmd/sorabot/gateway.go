package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sushiaki/sorabot/pkg/agent"
	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/channels"
	"github.com/sushiaki/sorabot/pkg/config"
	"github.com/sushiaki/sorabot/pkg/connection"
	"github.com/sushiaki/sorabot/pkg/cron"
	"github.com/sushiaki/sorabot/pkg/dedup"
	"github.com/sushiaki/sorabot/pkg/handoff"
	"github.com/sushiaki/sorabot/pkg/logger"
	"github.com/sushiaki/sorabot/pkg/persona"
	"github.com/sushiaki/sorabot/pkg/providers"
	"github.com/sushiaki/sorabot/pkg/web"
)

const shutdownTimeout = 15 * time.Second

// buildProvider returns nil when the configured provider cannot be built;
// the dispatcher then answers delegated turns with the fallback text.
func buildProvider(cfg *config.Config) providers.Provider {
	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		logger.WarnCF("gateway", "AI provider unavailable, using fallback replies", map[string]interface{}{
			"provider": providers.ActiveProviderName(cfg),
			"error":    err.Error(),
		})
		return nil
	}
	logger.InfoCF("gateway", "AI provider ready", map[string]interface{}{
		"provider": provider.Name(),
		"model":    provider.Model(),
	})
	return provider
}

func buildDispatcher(cfg *config.Config, msgBus *bus.MessageBus, provider providers.Provider, sender agent.Sender, opts agent.Options) *agent.Dispatcher {
	p := persona.New(cfg.Bot.BusinessName, cfg.Bot.SiteURL)
	opts.ModelTimeout = cfg.RequestTimeout()
	opts.SendTimeout = cfg.SendTimeout()
	return agent.NewDispatcher(agent.Deps{
		Bus:      msgBus,
		Dedup:    dedup.New(cfg.Bot.DedupCapacity),
		Handoff:  handoff.NewPolicy(cfg.HandoffWindow(), p.Markers(), p.FixedTexts()...),
		Persona:  p,
		Provider: provider,
		Sender:   sender,
	}, opts)
}

func webInfo(cfg *config.Config, provider providers.Provider) web.Info {
	info := web.Info{
		BusinessName:   cfg.Bot.BusinessName,
		Transport:      cfg.TransportName(),
		ProviderName:   providers.ActiveProviderName(cfg),
		HandoffMinutes: int(cfg.HandoffWindow() / time.Minute),
	}
	if provider != nil {
		info.AIConfigured = true
		info.Model = provider.Model()
	}
	return info
}

func gatewayCmd(configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogging(cfg, debug)
	if err := validateRuntimeConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	msgBus := bus.NewMessageBus()
	tracker := connection.NewTracker()

	channelManager, err := channels.NewManager(cfg, msgBus, tracker)
	if err != nil {
		return fmt.Errorf("create channel manager: %w", err)
	}

	provider := buildProvider(cfg)
	dispatcher := buildDispatcher(cfg, msgBus, provider, channelManager, agent.Options{
		AutoReply:      cfg.Bot.AutoReply,
		DefaultChannel: cfg.TransportName(),
	})

	scheduler := cron.NewScheduler()
	if err := cron.RegisterMaintenance(scheduler, cfg.Cron, dispatcher, tracker); err != nil {
		return fmt.Errorf("register maintenance jobs: %w", err)
	}

	server := web.NewServer(web.Options{
		Addr:     cfg.GatewayAddr(),
		Tracker:  tracker,
		Bus:      msgBus,
		Operator: dispatcher,
		Provider: provider,
		Info:     webInfo(cfg, provider),
	})

	fmt.Printf("✓ Transport: %s\n", cfg.TransportName())
	if provider != nil {
		fmt.Printf("✓ AI: %s (%s)\n", provider.Name(), provider.Model())
	} else {
		fmt.Println("✗ AI: not configured, fallback replies only")
	}
	fmt.Printf("✓ Human takeover window: %s\n", cfg.HandoffWindow())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(); err != nil {
		return fmt.Errorf("start web server: %w", err)
	}
	fmt.Printf("✓ Pairing page at http://%s/\n", cfg.GatewayAddr())

	if err := scheduler.Start(ctx); err != nil {
		fmt.Printf("Error starting scheduler: %v\n", err)
	} else {
		fmt.Println("✓ Maintenance scheduler started")
	}

	if err := channelManager.StartAll(ctx); err != nil {
		cancel()
		scheduler.Stop()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = server.Stop(stopCtx)
		stopCancel()
		return fmt.Errorf("start channels: %w", err)
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		if err := dispatcher.Run(ctx); err != nil {
			logger.ErrorCF("gateway", "Dispatcher exited", map[string]interface{}{"error": err.Error()})
		}
	}()

	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	signal.Stop(sigChan)

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	cancel()
	scheduler.Stop()
	_ = channelManager.StopAll(shutdownCtx)
	select {
	case <-dispatched:
	case <-shutdownCtx.Done():
		logger.WarnC("gateway", "Timed out waiting for in-flight replies")
	}
	if err := server.Stop(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Web server shutdown error", map[string]interface{}{"error": err.Error()})
	}
	msgBus.Close()
	fmt.Println("✓ Gateway stopped")
	return nil
}
