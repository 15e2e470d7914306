package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Multi fans every event out to all publishers. A failing publisher does
// not stop delivery to the others.
type Multi struct {
	mu   sync.RWMutex
	pubs []namedPublisher
}

type namedPublisher struct {
	name string
	pub  Publisher
}

func NewMulti() *Multi {
	return &Multi{}
}

func (m *Multi) Add(name string, pub Publisher) {
	if pub == nil {
		return
	}
	m.mu.Lock()
	m.pubs = append(m.pubs, namedPublisher{name: name, pub: pub})
	m.mu.Unlock()
}

func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pubs)
}

func (m *Multi) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.pubs))
	for _, p := range m.pubs {
		names = append(names, p.name)
	}
	return names
}

func (m *Multi) Publish(ctx context.Context, ev Event) error {
	m.mu.RLock()
	pubs := append([]namedPublisher(nil), m.pubs...)
	m.mu.RUnlock()

	var errs []error
	for _, p := range pubs {
		if err := p.pub.Publish(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	m.mu.Lock()
	pubs := m.pubs
	m.pubs = nil
	m.mu.Unlock()

	var errs []error
	for _, p := range pubs {
		if err := p.pub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		}
	}
	return errors.Join(errs...)
}
