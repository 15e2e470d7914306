package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rfid_session_go/internal/simulator"
)

func sequentialGenerator(perCycle int) func(n int) simulator.Cycle {
	return func(n int) simulator.Cycle {
		tags := make([]simulator.Tag, 0, perCycle)
		for i := 0; i < perCycle; i++ {
			tags = append(tags, simulator.Tag{EPC: []byte{byte(n >> 8), byte(n), byte(i)}})
		}
		return simulator.Cycle{Tags: tags}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestStartAsyncRequiresPlan(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{})
	if err := s.StartAsync(context.Background(), Listeners{}); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected InvalidPlan, got %v", err)
	}
	if s.IsReading() {
		t.Fatalf("stream started without plan")
	}
	commitDefault(t, s)
}

func TestAsyncPreservesOrderAndSerializesListeners(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{Generator: sequentialGenerator(3)},
		WithAsyncTiming(5*time.Millisecond, 0))
	commitDefault(t, s)

	var (
		mu      sync.Mutex
		seen    []TagRecord
		running atomic.Int32
		overlap atomic.Bool
	)
	enter := func() {
		if running.Add(1) > 1 {
			overlap.Store(true)
		}
	}
	leave := func() { running.Add(-1) }

	err := s.StartAsync(context.Background(), Listeners{
		OnTagRead: func(tag TagRecord) {
			enter()
			defer leave()
			time.Sleep(50 * time.Microsecond)
			mu.Lock()
			seen = append(seen, tag)
			mu.Unlock()
		},
		OnException: func(error) {
			enter()
			leave()
		},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "tags", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 60
	})
	if err := s.StopAsync(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if overlap.Load() {
		t.Fatalf("listeners ran concurrently")
	}
	prev := -1
	for i, tag := range seen {
		key := int(tag.EPC[0])<<16 | int(tag.EPC[1])<<8 | int(tag.EPC[2])
		if key <= prev {
			t.Fatalf("tag %d out of order: %X after %06X", i, tag.EPC, prev)
		}
		prev = key
	}
}

func TestStopAsyncIsIdempotent(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{Generator: sequentialGenerator(1)})
	commitDefault(t, s)

	if err := s.StopAsync(); err != nil {
		t.Fatalf("stop without stream: %v", err)
	}
	var reads atomic.Int32
	if err := s.StartAsync(context.Background(), Listeners{OnTagRead: func(TagRecord) { reads.Add(1) }}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first read", func() bool { return reads.Load() > 0 })
	if err := s.StopAsync(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	after := reads.Load()
	if err := s.StopAsync(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if reads.Load() != after {
		t.Fatalf("listener called after stop returned")
	}
	if s.IsReading() {
		t.Fatalf("still reading after stop")
	}
	if _, err := s.ReadSync(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("read after stop: %v", err)
	}
}

func TestAsyncHoldsSession(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{Generator: sequentialGenerator(1)})
	commitDefault(t, s)
	if err := s.StartAsync(context.Background(), Listeners{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.StopAsync()

	if _, err := s.ReadSync(context.Background(), 10*time.Millisecond); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected SessionBusy from read, got %v", err)
	}
	if err := s.CommitReadPlan(context.Background(), ReadPlan{Protocol: ProtocolGen2}); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected SessionBusy from commit, got %v", err)
	}
	if err := s.StartAsync(context.Background(), Listeners{}); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected SessionBusy from second start, got %v", err)
	}
}

func TestAsyncReportsBufferFullAndStats(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{
		Cycles:    []simulator.Cycle{{Tags: simTags(0, 2), BufferFull: true}},
		Generator: sequentialGenerator(1),
	})
	commitDefault(t, s)
	if err := s.Stats().Enable(context.Background(), StatsFrequency); err != nil {
		t.Fatalf("enable stats: %v", err)
	}

	var (
		full  atomic.Bool
		stats atomic.Int32
	)
	err := s.StartAsync(context.Background(), Listeners{
		OnException: func(err error) {
			if errors.Is(err, ErrTagBufferFull) {
				full.Store(true)
			}
		},
		OnStats: func(st ReaderStats) {
			if st.Valid.Has(StatsFrequency) {
				stats.Add(1)
			}
		},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "stats", func() bool { return full.Load() && stats.Load() > 1 })
	if err := s.StopAsync(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestAsyncStopsOnTransportLoss(t *testing.T) {
	s, dev := connectSim(t, simulator.Config{Generator: sequentialGenerator(1)})
	commitDefault(t, s)

	errs := make(chan error, 16)
	err := s.StartAsync(context.Background(), Listeners{OnException: func(err error) {
		select {
		case errs <- err:
		default:
		}
	}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = dev.Close()

	waitFor(t, "stream end", func() bool { return !s.IsReading() })
	select {
	case err := <-errs:
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("expected transport error, got %v", err)
		}
	default:
		t.Fatalf("no exception reported")
	}
}

func TestAsyncStopsOnContextCancel(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{Generator: sequentialGenerator(1)})
	commitDefault(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.StartAsync(ctx, Listeners{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	waitFor(t, "stream end", func() bool { return !s.IsReading() })
	if _, err := s.ReadSync(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("read after cancel: %v", err)
	}
}

func TestStuckListenerDoesNotBlockReadsOrClose(t *testing.T) {
	s, dev := connectSim(t, simulator.Config{Generator: sequentialGenerator(3)},
		WithAsyncTiming(2*time.Millisecond, 0), WithDispatchQueue(4))
	commitDefault(t, s)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	err := s.StartAsync(context.Background(), Listeners{OnTagRead: func(TagRecord) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("listener never called")
	}

	// Far more tags than the queue's initial capacity while the listener is stuck.
	waitFor(t, "sub-scans past a stuck listener", func() bool { return s.Thermal().Sum() > 30 })

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatalf("close blocked behind a stuck listener")
	}
	if s.State() != StateDisconnected {
		t.Fatalf("state after close: %s", s.State())
	}
	if err := dev.Send([]byte{0xFF}); err == nil {
		t.Fatalf("transport still open after close")
	}

	close(release)
	waitFor(t, "dispatcher exit", func() bool { return !s.IsReading() })
}

func TestEventQueueKeepsOrderAndDrains(t *testing.T) {
	q := newEventQueue(1)
	for i := 0; i < 5; i++ {
		q.push(asyncEvent{err: fmt.Errorf("e%d", i)})
	}
	q.close()
	q.push(asyncEvent{err: errors.New("late")})

	for i := 0; i < 5; i++ {
		ev, ok := q.pop()
		if !ok || ev.err.Error() != fmt.Sprintf("e%d", i) {
			t.Fatalf("pop %d: %v %v", i, ev.err, ok)
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatalf("pop after drain returned an event")
	}

	q = newEventQueue(0)
	q.push(asyncEvent{err: errors.New("dropped")})
	q.discard()
	q.close()
	if _, ok := q.pop(); ok {
		t.Fatalf("discarded event delivered")
	}
}

func TestAsyncSkipsStatsUntilEnabled(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{Generator: sequentialGenerator(1)},
		WithAsyncTiming(2*time.Millisecond, 0))
	commitDefault(t, s)

	var reads, stats atomic.Int32
	err := s.StartAsync(context.Background(), Listeners{
		OnTagRead: func(TagRecord) { reads.Add(1) },
		OnStats:   func(ReaderStats) { stats.Add(1) },
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "reads", func() bool { return reads.Load() > 3 })
	if err := s.StopAsync(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stats.Load() != 0 {
		t.Fatalf("stats delivered without Enable: %d", stats.Load())
	}
}
