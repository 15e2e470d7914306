package sdk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rfid_session_go/internal/simulator"
)

type fakeClock struct {
	mu     sync.Mutex
	now    uint64
	sleeps []uint64
}

func (c *fakeClock) NowMillis() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ms uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
	c.sleeps = append(c.sleeps, ms)
}

func (c *fakeClock) Sleeps() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.sleeps...)
}

func connectSim(t *testing.T, cfg simulator.Config, opts ...Option) (*Session, *simulator.Device) {
	t.Helper()
	dev := simulator.New(cfg)
	opts = append([]Option{WithCommandTimeout(50 * time.Millisecond), WithClock(&fakeClock{now: 1_700_000_000_000})}, opts...)
	s := NewSession(dev, opts...)
	if err := s.Connect(context.Background(), "sim://test"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dev
}

func commitDefault(t *testing.T, s *Session) {
	t.Helper()
	if err := s.CommitReadPlan(context.Background(), ReadPlan{Protocol: ProtocolGen2}); err != nil {
		t.Fatalf("commit plan: %v", err)
	}
}

func epc(b ...byte) []byte {
	return append([]byte{0xE2, 0x00}, b...)
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
