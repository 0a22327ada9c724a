package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/gosuda/codex-sync/codex/protocol"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"plain", "hello there", "hello there"},
		{"script", "<script>alert(1)</script>hi", "hi"},
		{"tags", "<b>bold</b> move", "bold move"},
		{"spaces", "   padded  ", "padded"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sanitize(tc.in); got != tc.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeNameLimit(t *testing.T) {
	long := strings.Repeat("가", MaxNameLength+10)
	got := SanitizeName(long)
	if n := len([]rune(got)); n != MaxNameLength {
		t.Fatalf("name has %d runes", n)
	}
	if got := SanitizeName("<i>ada</i>"); got != "ada" {
		t.Fatalf("name = %q", got)
	}
	for name, want := range map[string]bool{"ada": true, "": false, " ada": false, "<i>ada</i>": false, "a&amp;b": false} {
		if got := ValidName(name); got != want {
			t.Fatalf("ValidName(%q) = %v", name, got)
		}
	}
}

func TestPrepare(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	m, ok := Prepare("ada", protocol.ChatMessage{Sender: "mallory", Recipient: " bob ", Content: "<b>hi</b>"}, now)
	if !ok {
		t.Fatal("message dropped")
	}
	want := protocol.ChatMessage{Sender: "ada", Recipient: "bob", Content: "hi", Timestamp: now.UnixMilli()}
	if m != want {
		t.Fatalf("prepared = %+v", m)
	}
	if _, ok := Prepare("ada", protocol.ChatMessage{Content: "<script>x</script>"}, now); ok {
		t.Fatal("empty message accepted")
	}
}
