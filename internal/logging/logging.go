package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "TMR_LOG_LEVEL"
	EnvLogFormat  = "TMR_LOG_FORMAT"
	EnvLogNoColor = "TMR_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTUI
	ProfileTest
)

// Settings is the resolved logger setup.
type Settings struct {
	Level   zerolog.Level
	JSON    bool
	NoColor bool
	Out     io.Writer
}

var configureOnce sync.Once

// Configure installs the global logger once. Later calls are no-ops.
// Environment variables win over level and format; a nil out keeps the
// profile's default destination.
func Configure(profile Profile, level, format string, out io.Writer) zerolog.Logger {
	configureOnce.Do(func() {
		s := defaultSettings(profile)
		if lvl, ok := parseLevel(level); ok {
			s.Level = lvl
		}
		applyFormat(&s, format)
		if out != nil {
			s.Out = out
		}
		applyEnvOverrides(&s)
		log.Logger = New(s)
		zerolog.SetGlobalLevel(s.Level)
	})
	return log.Logger
}

// New builds a logger from settings without touching globals.
func New(s Settings) zerolog.Logger {
	out := s.Out
	if out == nil {
		out = os.Stderr
	}
	if !s.JSON {
		out = zerolog.ConsoleWriter{Out: out, NoColor: s.NoColor, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(s.Level).With().Timestamp().Logger()
}

// Component returns a child of the global logger tagged with name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func defaultSettings(profile Profile) Settings {
	switch profile {
	case ProfileTest:
		return Settings{Level: zerolog.DebugLevel, NoColor: true}
	case ProfileTUI:
		// The terminal belongs to the TUI; logs go nowhere unless redirected.
		return Settings{Level: zerolog.WarnLevel, Out: io.Discard}
	default:
		return Settings{Level: zerolog.InfoLevel}
	}
}

func applyEnvOverrides(s *Settings) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		s.Level = lvl
	}
	applyFormat(s, os.Getenv(EnvLogFormat))
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		s.NoColor = v
	}
}

func applyFormat(s *Settings, format string) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		s.JSON = true
	case "console", "text":
		s.JSON = false
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "wire":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
