package adapter

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"airwatch/internal/transport"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()

	if got := splitTelegramText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text split: %q", got)
	}

	line := strings.Repeat("a", 6)
	text := strings.Join([]string{line, line, line, line}, "\n")
	got := splitTelegramText(text, 14, "")
	if len(got) < 2 {
		t.Fatalf("expected several chunks, got %q", got)
	}
	for _, c := range got {
		if len([]rune(c)) > 14 {
			t.Fatalf("chunk too long: %q", c)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk keeps newline edges: %q", c)
		}
	}
	if strings.Join(got, "\n") != text {
		t.Fatalf("chunks do not rebuild the text: %q", got)
	}
}

func TestSplitTelegramTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()

	text := "abcdefgh<b>bold</b>"
	got := splitTelegramText(text, 10, "HTML")
	if got[0] != "abcdefgh" {
		t.Fatalf("first chunk = %q, want cut before tag", got[0])
	}
	if strings.Join(got, "") != text {
		t.Fatalf("chunks lose content: %q", got)
	}
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()

	list, sum := menuCommands([]transport.BotCommand{
		{Command: "/start", Description: "Pick shows"},
		{Command: " "},
		{Command: "status"},
	})
	want := []tele.Command{
		{Text: "start", Description: "Pick shows"},
		{Text: "status", Description: "status"},
	}
	if len(list) != len(want) {
		t.Fatalf("got %d commands, want %d", len(list), len(want))
	}
	for i := range want {
		if list[i] != want[i] {
			t.Fatalf("command %d = %+v, want %+v", i, list[i], want[i])
		}
	}

	_, again := menuCommands([]transport.BotCommand{{Command: "start", Description: "Pick shows"}, {Command: "status"}})
	if again != sum {
		t.Fatal("hash should ignore slash prefix and blank entries")
	}
}
