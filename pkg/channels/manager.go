// Sorabot - WhatsApp attendant with human handoff
// License: MIT
//
// Copyright (c) 2026 Sorabot contributors

package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/config"
	"github.com/sushiaki/sorabot/pkg/connection"
	"github.com/sushiaki/sorabot/pkg/logger"
)

// Manager owns the configured transport and routes sends to it.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	config   *config.Config
	tracker  *connection.Tracker
	mu       sync.RWMutex
}

func NewManager(cfg *config.Config, messageBus *bus.MessageBus, tracker *connection.Tracker) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      messageBus,
		config:   cfg,
		tracker:  tracker,
	}

	if err := m.initChannels(); err != nil {
		return nil, err
	}

	return m, nil
}

// NewEmptyManager is a manager with no transport; channels are added
// with RegisterChannel.
func NewEmptyManager(messageBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      messageBus,
	}
}

func (m *Manager) initChannels() error {
	logger.InfoC("channels", "Initializing channel manager")

	transport := m.config.TransportName()
	switch transport {
	case config.TransportWhatsApp:
		wa, err := NewWhatsAppChannel(m.config.Channels.WhatsApp, m.config.WhatsAppStorePath(), m.config.SendTimeout(), m.bus, m.tracker)
		if err != nil {
			return fmt.Errorf("initialize WhatsApp channel: %w", err)
		}
		m.channels[wa.Name()] = wa
	case config.TransportDiscord:
		dc, err := NewDiscordChannel(m.config.Channels.Discord, m.bus, m.tracker)
		if err != nil {
			return fmt.Errorf("initialize Discord channel: %w", err)
		}
		m.channels[dc.Name()] = dc
	default:
		return fmt.Errorf("unsupported transport %q (use %s or %s)", transport, config.TransportWhatsApp, config.TransportDiscord)
	}

	logger.InfoCF("channels", "Channel initialization completed", map[string]interface{}{
		"transport": transport,
	})
	return nil
}

func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	channelsCopy := make(map[string]Channel, len(m.channels))
	for name, channel := range m.channels {
		channelsCopy[name] = channel
	}
	m.mu.RUnlock()

	if len(channelsCopy) == 0 {
		logger.WarnC("channels", "No channels enabled")
		return nil
	}

	var started []string
	for name, channel := range channelsCopy {
		logger.InfoCF("channels", "Starting channel", map[string]interface{}{"channel": name})
		if err := channel.Start(ctx); err != nil {
			for _, s := range started {
				if stopErr := channelsCopy[s].Stop(ctx); stopErr != nil {
					logger.WarnCF("channels", "Failed to stop partially-started channel", map[string]interface{}{
						"channel": s,
						"error":   stopErr.Error(),
					})
				}
			}
			return fmt.Errorf("start channel %s: %w", name, err)
		}
		started = append(started, name)
	}

	logger.InfoCF("channels", "All channels started", map[string]interface{}{
		"count": len(started),
	})
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, channel := range m.channels {
		if err := channel.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
	logger.InfoC("channels", "All channels stopped")
	return nil
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]interface{})
	for name, channel := range m.channels {
		status[name] = map[string]interface{}{
			"running": channel.IsRunning(),
		}
	}
	return status
}

func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

func (m *Manager) lookup(name string) (Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	if !ok {
		return nil, fmt.Errorf("channel %s not found", name)
	}
	return channel, nil
}

// Send delivers text on channelName.
func (m *Manager) Send(ctx context.Context, channelName, chatID, text string) error {
	channel, err := m.lookup(channelName)
	if err != nil {
		return err
	}
	return channel.Send(ctx, bus.OutboundMessage{Channel: channelName, ChatID: chatID, Content: text})
}

// Parts returns the messages channelName delivers for text.
func (m *Manager) Parts(channelName, text string) []string {
	if channel, err := m.lookup(channelName); err == nil {
		if sp, ok := channel.(Splitter); ok {
			return sp.SplitMessage(text)
		}
	}
	return []string{text}
}

// SetPresence is best effort; callers may ignore the error.
func (m *Manager) SetPresence(ctx context.Context, channelName, chatID string, p Presence) error {
	channel, err := m.lookup(channelName)
	if err != nil {
		return err
	}
	return channel.SetPresence(ctx, chatID, p)
}
