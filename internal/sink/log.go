package sink

import (
	"context"

	"github.com/rs/zerolog"
)

// Log writes every event to a zerolog logger. New tags log at info,
// repeats at debug.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Publish(_ context.Context, ev Event) error {
	e := l.logger.Debug()
	if ev.New {
		e = l.logger.Info()
	}
	if ev.Error != "" {
		e = l.logger.Warn().Str("op_error", ev.Error)
	}
	if ev.Antenna != nil {
		e = e.Int("antenna", *ev.Antenna)
	}
	if ev.RSSI != nil {
		e = e.Int("rssi", *ev.RSSI)
	}
	if ev.Data != "" {
		e = e.Str("data", ev.Data)
	}
	e.Str("epc", ev.EPC).Str("stream", ev.Stream).Msg("tag")
	return nil
}

func (l *Log) Close() error { return nil }
