package agent

import (
	"strings"

	"github.com/sushiaki/sorabot/pkg/bus"
)

// isIgnoredChat reports conversations the attendant never answers:
// groups, the status pseudo-chat, broadcast lists and channels.
func isIgnoredChat(msg bus.InboundMessage) bool {
	if msg.IsGroup {
		return true
	}
	id := strings.TrimSpace(msg.ChatID)
	if id == "" {
		return true
	}
	switch {
	case strings.HasSuffix(id, "@g.us"),
		strings.HasSuffix(id, "@broadcast"),
		strings.HasSuffix(id, "@newsletter"):
		return true
	}
	return false
}

func dedupKey(msg bus.InboundMessage) string {
	if msg.MessageID == "" {
		return ""
	}
	return msg.Channel + "/" + msg.MessageID
}

func workerKey(msg bus.InboundMessage) string {
	return msg.Channel + "|" + msg.ChatID
}
