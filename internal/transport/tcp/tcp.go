package tcp

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const DefaultPort = 8081

// Endpoint describes a reachable reader address.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint accepts "tmr://host:port", "host:port" or a bare host.
func ParseEndpoint(uri string) (Endpoint, error) {
	raw := uri
	if strings.Contains(uri, "://") {
		u, err := url.Parse(uri)
		if err != nil {
			return Endpoint{}, fmt.Errorf("parse endpoint %q: %w", uri, err)
		}
		raw = u.Host
	}
	if raw == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q has no host", uri)
	}
	host, portText, err := net.SplitHostPort(raw)
	if err != nil {
		return Endpoint{Host: raw, Port: DefaultPort}, nil
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("endpoint %q: invalid port", uri)
	}
	return Endpoint{Host: host, Port: port}, nil
}

type session struct {
	endpoint Endpoint
	conn     net.Conn
	packets  chan []byte
	errs     chan error
	stop     chan struct{}
	done     chan struct{}
}

// Transport carries reader frames over a TCP connection. Bytes arrive on a
// read loop goroutine and are handed out by Receive.
type Transport struct {
	dialTimeout  time.Duration
	writeTimeout time.Duration

	mu      sync.RWMutex
	session *session
}

func New(dialTimeout time.Duration) *Transport {
	if dialTimeout <= 0 {
		dialTimeout = 3 * time.Second
	}
	return &Transport{dialTimeout: dialTimeout, writeTimeout: 2 * time.Second}
}

func (t *Transport) Open(ctx context.Context, uri string) error {
	endpoint, err := ParseEndpoint(uri)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.session != nil {
		t.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	t.mu.Unlock()

	dialer := net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint.Address())
	if err != nil {
		return err
	}

	s := &session{
		endpoint: endpoint,
		conn:     conn,
		packets:  make(chan []byte, 256),
		errs:     make(chan error, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	t.mu.Lock()
	if t.session != nil {
		t.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("already connected")
	}
	t.session = s
	t.mu.Unlock()

	go t.readLoop(s)
	return nil
}

func (t *Transport) readLoop(s *session) {
	defer close(s.done)

	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			select {
			case s.errs <- err:
			default:
			}
			return
		}
		if n <= 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case s.packets <- data:
		case <-s.stop:
			return
		}
	}
}

func (t *Transport) current() (*session, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.session == nil {
		return nil, fmt.Errorf("not connected")
	}
	return t.session, nil
}

func (t *Transport) Send(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	s, err := t.current()
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	_, err = s.conn.Write(data)
	return err
}

// Receive waits up to timeout for the next chunk. A quiet connection yields
// os.ErrDeadlineExceeded; a dropped one yields the read error.
func (t *Transport) Receive(timeout time.Duration) ([]byte, error) {
	s, err := t.current()
	if err != nil {
		return nil, err
	}
	select {
	case data := <-s.packets:
		return data, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data := <-s.packets:
		return data, nil
	case err := <-s.errs:
		return nil, fmt.Errorf("read %s: %w", s.endpoint.Address(), err)
	case <-s.done:
		return nil, fmt.Errorf("connection to %s closed", s.endpoint.Address())
	case <-timer.C:
		return nil, os.ErrDeadlineExceeded
	}
}

// SetBaudRate is a no-op on network links.
func (t *Transport) SetBaudRate(int) error {
	return nil
}

func (t *Transport) IsSerial() bool {
	return false
}

func (t *Transport) Close() error {
	t.mu.Lock()
	s := t.session
	t.session = nil
	t.mu.Unlock()
	if s == nil {
		return nil
	}

	close(s.stop)
	err := s.conn.Close()
	select {
	case <-s.done:
	case <-time.After(1200 * time.Millisecond):
	}
	return err
}

// Endpoint reports the connected address.
func (t *Transport) Endpoint() (Endpoint, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.session == nil {
		return Endpoint{}, false
	}
	return t.session.endpoint, true
}
