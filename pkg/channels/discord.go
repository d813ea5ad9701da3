package channels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sushiaki/sorabot/pkg/bus"
	"github.com/sushiaki/sorabot/pkg/config"
	"github.com/sushiaki/sorabot/pkg/connection"
	"github.com/sushiaki/sorabot/pkg/logger"
	"github.com/sushiaki/sorabot/pkg/utils"
)

const (
	sendTimeout         = 10 * time.Second
	discordMessageLimit = 1900
)

// DiscordChannel serves direct messages to a bot account. Guild channels
// are reported as group conversations and therefore never answered.
type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
	config  config.DiscordConfig
	tracker *connection.Tracker
}

func NewDiscordChannel(cfg config.DiscordConfig, bus *bus.MessageBus, tracker *connection.Tracker) (*DiscordChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("channels.discord.token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	if tracker == nil {
		tracker = connection.NewTracker()
	}

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", bus, cfg.AllowFrom),
		session:     session,
		config:      cfg,
		tracker:     tracker,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		c.tracker.Disconnected(connection.ReasonTransient)
	})
	c.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		c.tracker.Connected()
	})

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)
	c.tracker.Connected()

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	c.tracker.Disconnected(connection.ReasonLoggedOut)
	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return ErrNotConnected
	}

	channelID := msg.ChatID
	if channelID == "" {
		return fmt.Errorf("channel ID is empty")
	}

	for _, chunk := range splitMessage(msg.Content, discordMessageLimit) {
		if err := c.sendChunk(ctx, channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// SetPresence maps composing to Discord's typing indicator, which expires
// on its own; paused is a no-op.
func (c *DiscordChannel) SetPresence(ctx context.Context, chatID string, p Presence) error {
	if !c.IsRunning() {
		return ErrNotConnected
	}
	if p != PresenceComposing {
		return nil
	}
	return c.session.ChannelTyping(chatID, discordgo.WithContext(ctx))
}

func (c *DiscordChannel) SplitMessage(text string) []string {
	return splitMessage(text, discordMessageLimit)
}

// splitMessage cuts content into chunks of at most limit runes, preferring
// newline then space boundaries.
func splitMessage(content string, limit int) []string {
	var out []string
	runes := []rune(strings.TrimSpace(content))
	for len(runes) > 0 {
		if len(runes) <= limit {
			out = append(out, string(runes))
			break
		}
		cut := lastIndexRune(runes[:limit], '\n')
		if cut <= 0 {
			cut = lastIndexRune(runes[:limit], ' ')
		}
		if cut <= 0 {
			cut = limit
		}
		out = append(out, strings.TrimSpace(string(runes[:cut])))
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}
	return out
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

func (c *DiscordChannel) sendChunk(ctx context.Context, channelID, content string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}
	fromMe := s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID

	if !fromMe && !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]any{
			"user_id": m.Author.ID,
		})
		return
	}

	logger.DebugCF("discord", "Received message", map[string]any{
		"sender_id": m.Author.ID,
		"from_me":   fromMe,
		"preview":   utils.Truncate(m.Content, 50),
	})

	c.HandleMessage(inboundFromDiscord(m, fromMe))
}

func inboundFromDiscord(m *discordgo.MessageCreate, fromMe bool) bus.InboundMessage {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return bus.InboundMessage{
		ChatID:    m.ChannelID,
		SenderID:  m.Author.ID,
		MessageID: m.ID,
		Content:   m.Content,
		FromMe:    fromMe,
		IsGroup:   m.GuildID != "",
		Timestamp: ts,
		Metadata: map[string]string{
			"username": m.Author.Username,
			"guild_id": m.GuildID,
		},
	}
}
