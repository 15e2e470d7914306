package sdk

import (
	"context"
	"time"
)

// Transport moves raw bytes to and from a reader.
//
// Receive returns an error satisfying errors.Is(err, os.ErrDeadlineExceeded)
// when nothing arrives within timeout.
type Transport interface {
	Open(ctx context.Context, uri string) error
	Send(data []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	SetBaudRate(rate int) error
	IsSerial() bool
	Close() error
}

// TraceFunc observes every byte sequence sent (tx) or received.
type TraceFunc func(tx bool, data []byte)
