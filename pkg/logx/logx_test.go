package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, c := range cases {
		if got := parseLevel(c.in, zerolog.InfoLevel); got != c.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestLoggerWithCarriesFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "timeline"))
	log.Info("armed", Int("delta", 42), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if m["comp"] != "timeline" {
		t.Fatalf("comp = %v, want timeline", m["comp"])
	}
	if m["delta"] != float64(42) {
		t.Fatalf("delta = %v, want 42", m["delta"])
	}
	if m["message"] != "armed" {
		t.Fatalf("message = %v, want armed", m["message"])
	}
}

func TestZeroLoggerIsSilent(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("nothing happens")
}

func TestFormatLine(t *testing.T) {
	t.Parallel()

	got := formatLine([]byte(`{"level":"warn","time":"x","message":"fetch failed","streak":3,"comp":"timeline"}`))
	want := "[WARN] fetch failed\n- comp=timeline\n- streak=3"
	if got != want {
		t.Fatalf("formatLine = %q, want %q", got, want)
	}
	if got := formatLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("formatLine(plain) = %q", got)
	}
	if got := truncate(strings.Repeat("a", 20), 12); got != "aaaaaaaaa..." {
		t.Fatalf("truncate = %q", got)
	}
}
