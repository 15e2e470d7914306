package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Listeners receive events from a background read. All three run on one
// goroutine, one at a time, in the order events were produced. A nil
// listener drops its events.
type Listeners struct {
	OnTagRead   func(TagRecord)
	OnException func(error)
	OnStats     func(ReaderStats)
}

type asyncEvent struct {
	tag   *TagRecord
	err   error
	stats *ReaderStats
}

type asyncStream struct {
	id    string
	stop  atomic.Bool
	queue *eventQueue
	// loopDone closes when the read loop no longer touches the transport,
	// done when the last listener call has returned.
	loopDone chan struct{}
	done     chan struct{}
}

// eventQueue is an unbounded FIFO between the read loop and the
// dispatcher. push never blocks, so a slow listener cannot hold up the
// next sub-scan.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []asyncEvent
	closed bool
}

func newEventQueue(capacity int) *eventQueue {
	q := &eventQueue{items: make([]asyncEvent, 0, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends ev. Events pushed after close are dropped.
func (q *eventQueue) push(ev asyncEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, ev)
	q.cond.Signal()
}

// pop waits for the next event. It reports false once the queue is closed
// and empty.
func (q *eventQueue) pop() (asyncEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return asyncEvent{}, false
	}
	ev := q.items[0]
	q.items[0] = asyncEvent{}
	q.items = q.items[1:]
	return ev, true
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// discard drops every event not yet handed to a listener.
func (q *eventQueue) discard() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

func (q *eventQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// StartAsync starts continuous reading in sub-scans against the committed
// plan. The session stays busy until the stream ends.
func (s *Session) StartAsync(ctx context.Context, l Listeners) error {
	if err := s.acquireConnected("async read"); err != nil {
		return err
	}
	if plan, _, _ := s.committedPlan(); plan == nil {
		s.release()
		return &Error{Kind: KindInvalidPlan, Op: "async read", Err: fmt.Errorf("no read plan committed")}
	}

	stream := &asyncStream{
		id:       uuid.NewString(),
		queue:    newEventQueue(s.opts.queueSize),
		loopDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	go s.dispatch(stream, l)
	go s.asyncLoop(ctx, stream)

	s.log.Info().Str("stream", stream.id).Dur("on_time", s.opts.asyncOnTime).Msg("async read started")
	return nil
}

// StopAsync asks the stream to stop after the current sub-scan and waits
// until no further listener call will happen. It is safe to call when no
// stream runs, and more than once. It must not be called from a listener.
func (s *Session) StopAsync() error {
	s.mu.RLock()
	stream := s.stream
	s.mu.RUnlock()
	if stream == nil {
		return nil
	}
	stream.stop.Store(true)
	<-stream.done
	return nil
}

// IsReading reports whether a background read is running.
func (s *Session) IsReading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream != nil
}

func (s *Session) asyncLoop(ctx context.Context, stream *asyncStream) {
	log := s.log.With().Str("stream", stream.id).Logger()
	events := stream.queue
	cycles := 0
	defer func() {
		events.close()
		close(stream.loopDone)
		log.Info().Int("cycles", cycles).Int("pending", events.size()).Msg("async read stopped")
	}()

	for !stream.stop.Load() && ctx.Err() == nil {
		tags, full, err := s.readCycle(ctx, s.opts.asyncOnTime)
		cycles++
		for i := range tags {
			tag := tags[i]
			events.push(asyncEvent{tag: &tag})
		}
		if full {
			events.push(asyncEvent{err: &Error{Kind: KindTagBufferFull, Op: "async read"}})
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			events.push(asyncEvent{err: err})
			if fatalStreamError(err) {
				log.Warn().Err(err).Msg("async read aborted")
				return
			}
		}

		if s.stats.streaming() {
			stats, err := s.stats.fetch(ctx)
			if err != nil {
				events.push(asyncEvent{err: err})
				if fatalStreamError(err) {
					return
				}
			} else {
				events.push(asyncEvent{stats: &stats})
			}
		}

		s.thermal.Pace(len(tags))
		if s.opts.asyncOffTime > 0 {
			s.opts.clock.Sleep(millis(s.opts.asyncOffTime))
		}
	}
}

// fatalStreamError is true for failures that make further sub-scans
// pointless.
func fatalStreamError(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindTimeout, KindNotConnected, KindInvalidPlan:
		return true
	case 0:
		return true
	}
	return false
}

// dispatch hands queued events to the listeners. The session stays busy
// until it returns.
func (s *Session) dispatch(stream *asyncStream, l Listeners) {
	defer func() {
		s.mu.Lock()
		if s.stream == stream {
			s.stream = nil
			s.busy = ""
		}
		s.mu.Unlock()
		close(stream.done)
	}()
	for {
		ev, ok := stream.queue.pop()
		if !ok {
			return
		}
		switch {
		case ev.tag != nil:
			if l.OnTagRead != nil {
				l.OnTagRead(*ev.tag)
			}
		case ev.stats != nil:
			if l.OnStats != nil {
				l.OnStats(*ev.stats)
			}
		case ev.err != nil:
			if l.OnException != nil {
				l.OnException(ev.err)
			}
		}
	}
}
