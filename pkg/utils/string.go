package utils

import "strings"

// Truncate shortens s to at most maxLen runes, adding "..." when cut.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// ChatUser returns the local part of a conversation id ("5541...@s.whatsapp.net" -> "5541...").
func ChatUser(chatID string) string {
	if idx := strings.Index(chatID, "@"); idx > 0 {
		return chatID[:idx]
	}
	return chatID
}
