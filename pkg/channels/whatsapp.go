// Sorabot - WhatsApp attendant with human handoff
// License: MIT
//
// Copyright (c) 2026 Sorabot contributors

package channels

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/config"
	"github.com/sushiaki/sorabot/pkg/connection"
	"github.com/sushiaki/sorabot/pkg/logger"
	"github.com/sushiaki/sorabot/pkg/utils"
)

const whatsappChannelName = "whatsapp"

// WhatsAppChannel is a linked-device WhatsApp client. Pairing material is
// kept in a SQLite file; reconnection is driven by connection.Decide
// rather than the client's built-in auto-reconnect.
type WhatsAppChannel struct {
	*BaseChannel
	cfg         config.WhatsAppConfig
	storePath   string
	sendTimeout time.Duration
	tracker     *connection.Tracker
	log         waLog.Logger

	mu        sync.Mutex
	container *sqlstore.Container
	client    *whatsmeow.Client
	gen       uint64
	lost      chan lostSignal
	cancel    context.CancelFunc
	done      chan struct{}
}

type lostSignal struct {
	gen    uint64
	reason connection.Reason
}

func NewWhatsAppChannel(cfg config.WhatsAppConfig, storePath string, sendTimeout time.Duration, messageBus *bus.MessageBus, tracker *connection.Tracker) (*WhatsAppChannel, error) {
	if strings.TrimSpace(storePath) == "" {
		return nil, fmt.Errorf("whatsapp store path is required")
	}
	if tracker == nil {
		tracker = connection.NewTracker()
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &WhatsAppChannel{
		BaseChannel: NewBaseChannel(whatsappChannelName, messageBus, nil),
		cfg:         cfg,
		storePath:   storePath,
		sendTimeout: sendTimeout,
		tracker:     tracker,
		log:         NewWALogger("whatsmeow", cfg.LogLevel),
		lost:        make(chan lostSignal, 8),
	}, nil
}

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	logger.InfoCF("whatsapp", "Starting WhatsApp channel", map[string]interface{}{
		"store": c.storePath,
	})
	if name := strings.TrimSpace(c.cfg.DeviceName); name != "" {
		store.DeviceProps.Os = proto.String(name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.setRunning(true)
	go func() {
		defer close(done)
		c.supervise(runCtx)
	}()
	return nil
}

func (c *WhatsAppChannel) Stop(ctx context.Context) error {
	logger.InfoC("whatsapp", "Stopping WhatsApp channel")
	c.setRunning(false)

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// supervise connects, waits for loss, and applies the reconnect plan until
// ctx ends or the account is logged out.
func (c *WhatsAppChannel) supervise(ctx context.Context) {
	defer c.teardown(true)

	for {
		gen, err := c.connectOnce(ctx)
		reason := connection.ReasonTransient
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.ErrorCF("whatsapp", "Connection attempt failed", map[string]interface{}{
				"error": err.Error(),
			})
			c.tracker.Disconnected(reason)
		} else {
			reason = c.waitLost(ctx, gen)
			if ctx.Err() != nil {
				return
			}
		}

		plan := connection.Decide(reason)
		if !plan.Reconnect {
			logger.WarnC("whatsapp", "Logged out; re-pair the device from the QR page after restarting")
			c.teardown(false)
			return
		}
		c.teardown(false)
		if plan.ClearCredentials {
			logger.WarnC("whatsapp", "Clearing stored session")
			if err := c.clearCredentials(); err != nil {
				logger.ErrorCF("whatsapp", "Failed to clear stored session", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
		logger.InfoCF("whatsapp", "Reconnecting", map[string]interface{}{
			"reason": string(reason),
			"after":  plan.After.String(),
		})
		if err := utils.SleepContext(ctx, plan.After); err != nil {
			return
		}
	}
}

func (c *WhatsAppChannel) waitLost(ctx context.Context, gen uint64) connection.Reason {
	for {
		select {
		case <-ctx.Done():
			return connection.ReasonNone
		case sig := <-c.lost:
			if sig.gen == gen {
				return sig.reason
			}
		}
	}
}

func (c *WhatsAppChannel) connectOnce(ctx context.Context) (uint64, error) {
	if err := os.MkdirAll(filepath.Dir(c.storePath), 0700); err != nil {
		return 0, fmt.Errorf("create store dir: %w", err)
	}

	dsn := "file:" + c.storePath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	container, err := sqlstore.New(ctx, "sqlite", dsn, c.log.Sub("Database"))
	if err != nil {
		return 0, fmt.Errorf("open device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return 0, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, c.log.Sub("Client"))
	client.EnableAutoReconnect = false

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.container = container
	c.client = client
	c.mu.Unlock()

	client.AddEventHandler(func(evt interface{}) {
		c.handleEvent(ctx, gen, evt)
	})

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return gen, fmt.Errorf("get qr channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return gen, fmt.Errorf("connect: %w", err)
		}
		go c.consumeQR(gen, qrChan)
		return gen, nil
	}

	if err := client.Connect(); err != nil {
		return gen, fmt.Errorf("connect: %w", err)
	}
	return gen, nil
}

func (c *WhatsAppChannel) consumeQR(gen uint64, qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.tracker.CredentialIssued(item.Code)
			logger.InfoC("whatsapp", "New pairing QR code issued; open the web view to scan it")
		case whatsmeow.QRChannelSuccess.Event:
			logger.InfoC("whatsapp", "Pairing succeeded")
		case whatsmeow.QRChannelTimeout.Event:
			logger.WarnC("whatsapp", "Pairing QR codes expired")
			c.tracker.Disconnected(connection.ReasonTransient)
			c.signalLost(gen, connection.ReasonTransient)
		default:
			logger.WarnCF("whatsapp", "Pairing event", map[string]interface{}{
				"event": item.Event,
			})
			if item.Error != nil {
				c.tracker.Disconnected(connection.ReasonBadSession)
				c.signalLost(gen, connection.ReasonBadSession)
			}
		}
	}
}

func (c *WhatsAppChannel) handleEvent(ctx context.Context, gen uint64, evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		msg, ok := inboundFromEvent(v)
		if !ok {
			return
		}
		if !c.HandleMessage(msg) {
			logger.WarnCF("whatsapp", "Inbound queue full; message dropped", map[string]interface{}{
				"chat_id": msg.ChatID,
			})
		}
	case *events.Connected:
		c.tracker.Connected()
		logger.InfoC("whatsapp", "WhatsApp connected")
		c.mu.Lock()
		client := c.client
		c.mu.Unlock()
		if client != nil {
			if err := client.SendPresence(ctx, types.PresenceAvailable); err != nil {
				logger.DebugCF("whatsapp", "Failed to mark online", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	case *events.PairSuccess:
		logger.InfoCF("whatsapp", "Device paired", map[string]interface{}{
			"jid": v.ID.String(),
		})
	default:
		reason, ok := disconnectReason(evt)
		if !ok {
			return
		}
		logger.WarnCF("whatsapp", "WhatsApp connection lost", map[string]interface{}{
			"reason": string(reason),
		})
		c.tracker.Disconnected(reason)
		c.signalLost(gen, reason)
	}
}

func (c *WhatsAppChannel) signalLost(gen uint64, reason connection.Reason) {
	select {
	case c.lost <- lostSignal{gen: gen, reason: reason}:
	default:
	}
}

// disconnectReason classifies the client events that end a connection.
func disconnectReason(evt interface{}) (connection.Reason, bool) {
	switch v := evt.(type) {
	case *events.LoggedOut:
		return connection.ReasonLoggedOut, true
	case *events.ConnectFailure:
		if v.Reason.IsLoggedOut() {
			return connection.ReasonLoggedOut, true
		}
		return connection.ReasonFromStatusCode(int(v.Reason)), true
	case *events.PairError:
		return connection.ReasonBadSession, true
	case *events.Disconnected, *events.StreamReplaced, *events.TemporaryBan, *events.ClientOutdated:
		return connection.ReasonTransient, true
	default:
		return connection.ReasonNone, false
	}
}

// inboundFromEvent converts a message event. Events without usable text
// are still forwarded with empty content so the dispatcher can account
// for them; protocol-only messages are dropped here.
func inboundFromEvent(evt *events.Message) (bus.InboundMessage, bool) {
	if evt == nil || evt.Message == nil {
		return bus.InboundMessage{}, false
	}
	if evt.Message.GetProtocolMessage() != nil || evt.Message.GetReactionMessage() != nil {
		return bus.InboundMessage{}, false
	}
	info := evt.Info
	chat := info.Chat.String()
	return bus.InboundMessage{
		ChatID:    chat,
		SenderID:  info.Sender.ToNonAD().String(),
		MessageID: string(info.ID),
		Content:   extractText(evt.Message),
		FromMe:    info.IsFromMe,
		IsGroup:   info.IsGroup || info.Chat.Server == types.GroupServer || info.Chat.Server == types.BroadcastServer || info.Chat.Server == types.NewsletterServer,
		Timestamp: info.Timestamp,
		Metadata: map[string]string{
			"push_name": info.PushName,
		},
	}, true
}

// extractText returns the first of conversation, extended text, image
// caption and video caption that is non-empty.
func extractText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	for _, t := range []string{
		m.GetConversation(),
		m.GetExtendedTextMessage().GetText(),
		m.GetImageMessage().GetCaption(),
		m.GetVideoMessage().GetCaption(),
	} {
		if t != "" {
			return t
		}
	}
	return ""
}

func (c *WhatsAppChannel) connectedClient() (*whatsmeow.Client, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return nil, ErrNotConnected
	}
	return client, nil
}

func (c *WhatsAppChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	client, err := c.connectedClient()
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", msg.ChatID, err)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	resp, err := client.SendMessage(sendCtx, jid, &waE2E.Message{Conversation: proto.String(msg.Content)})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("send message timeout: %w", err)
		}
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	logger.DebugCF("whatsapp", "Message sent", map[string]interface{}{
		"chat_id":    msg.ChatID,
		"message_id": string(resp.ID),
		"preview":    utils.Truncate(msg.Content, 50),
	})
	return nil
}

func (c *WhatsAppChannel) SetPresence(ctx context.Context, chatID string, p Presence) error {
	client, err := c.connectedClient()
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", chatID, err)
	}
	state := types.ChatPresencePaused
	if p == PresenceComposing {
		state = types.ChatPresenceComposing
	}
	return client.SendChatPresence(ctx, jid, state, types.ChatPresenceMediaText)
}

// teardown disconnects the current client and closes its store. final
// also marks the channel as stopped.
func (c *WhatsAppChannel) teardown(final bool) {
	c.mu.Lock()
	client, container := c.client, c.container
	c.client, c.container = nil, nil
	c.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	if container != nil {
		if err := container.Close(); err != nil {
			logger.DebugCF("whatsapp", "Closing device store", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	if final {
		c.setRunning(false)
	}
}

// clearCredentials deletes the SQLite store and its journal files.
func (c *WhatsAppChannel) clearCredentials() error {
	var errs []error
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(c.storePath + suffix); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
