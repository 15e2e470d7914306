package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("%q: got %s %v", raw, got, ok)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("unknown level accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogNoColor, "true")

	s := defaultSettings(ProfileRuntime)
	applyEnvOverrides(&s)
	if s.Level != zerolog.ErrorLevel || !s.JSON || !s.NoColor {
		t.Fatalf("overrides not applied: %+v", s)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Settings{Level: zerolog.InfoLevel, JSON: true, Out: &buf})
	logger.Debug().Msg("hidden")
	logger.Info().Str("component", "reader").Msg("connected")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level")
	}
	if !strings.Contains(out, `"component":"reader"`) || !strings.Contains(out, `"message":"connected"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestApplyFormat(t *testing.T) {
	s := defaultSettings(ProfileRuntime)
	applyFormat(&s, "JSON")
	if !s.JSON {
		t.Fatalf("json format not applied")
	}
	applyFormat(&s, "bogus")
	if !s.JSON {
		t.Fatalf("unknown format changed settings")
	}
	applyFormat(&s, "console")
	if s.JSON {
		t.Fatalf("console format not applied")
	}
}

func TestTUIProfileDiscards(t *testing.T) {
	s := defaultSettings(ProfileTUI)
	if s.Out == nil || s.Level != zerolog.WarnLevel {
		t.Fatalf("unexpected tui settings: %+v", s)
	}
}
