package utils

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"oi", 10, "oi"},
		{"quero um combinado", 8, "quero..."},
		{"confiável", 9, "confiável"},
		{"confiável demais", 6, "con..."},
		{"abc", 0, ""},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestChatUser(t *testing.T) {
	if got := ChatUser("554199990000@s.whatsapp.net"); got != "554199990000" {
		t.Errorf("ChatUser = %q", got)
	}
	if got := ChatUser("console"); got != "console" {
		t.Errorf("ChatUser = %q", got)
	}
}
