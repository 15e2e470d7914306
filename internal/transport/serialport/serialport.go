package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// pollInterval is the port read timeout; Receive loops on it until its own
// deadline.
const pollInterval = 100 * time.Millisecond

// Transport is a serial line to a reader module.
type Transport struct {
	mu   sync.Mutex
	port *serial.Port
	name string
	baud int
	buf  []byte
}

func New() *Transport {
	return &Transport{baud: 115200, buf: make([]byte, 512)}
}

// DevicePath extracts the port name from "tmr:///dev/ttyUSB0",
// "tmr:///COM3" or a bare path.
func DevicePath(uri string) (string, error) {
	if !strings.Contains(uri, "://") {
		if uri == "" {
			return "", fmt.Errorf("empty serial device")
		}
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse serial uri %q: %w", uri, err)
	}
	if u.Host != "" {
		return "", fmt.Errorf("serial uri %q has a host; use tmr:///device", uri)
	}
	path := u.Path
	if trimmed := strings.TrimPrefix(path, "/"); strings.HasPrefix(strings.ToUpper(trimmed), "COM") {
		path = trimmed
	}
	if path == "" || path == "/" {
		return "", fmt.Errorf("serial uri %q has no device", uri)
	}
	return path, nil
}

func (t *Transport) Open(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := DevicePath(uri)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return fmt.Errorf("serial %s already open", t.name)
	}
	t.name = name
	return t.openLocked()
}

func (t *Transport) openLocked() error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        t.name,
		Baud:        t.baud,
		ReadTimeout: pollInterval,
	})
	if err != nil {
		return fmt.Errorf("open serial %s: %w", t.name, err)
	}
	t.port = port
	return nil
}

// SetBaudRate changes the line rate, reopening the port when it is open.
func (t *Transport) SetBaudRate(rate int) error {
	if rate <= 0 {
		return fmt.Errorf("invalid baud rate %d", rate)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if rate == t.baud && t.port != nil {
		return nil
	}
	t.baud = rate
	if t.port == nil {
		return nil
	}
	_ = t.port.Close()
	t.port = nil
	return t.openLocked()
}

func (t *Transport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baud
}

func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return fmt.Errorf("serial port not open")
	}
	_, err := t.port.Write(data)
	return err
}

// Receive returns whatever bytes arrive before timeout.
func (t *Transport) Receive(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		t.mu.Lock()
		if t.port == nil {
			t.mu.Unlock()
			return nil, fmt.Errorf("serial port not open")
		}
		n, err := t.port.Read(t.buf)
		var data []byte
		if n > 0 {
			data = append([]byte(nil), t.buf[:n]...)
		}
		t.mu.Unlock()

		if len(data) > 0 {
			return data, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read serial: %w", err)
		}
		if !time.Now().Before(deadline) {
			return nil, os.ErrDeadlineExceeded
		}
	}
}

func (t *Transport) IsSerial() bool {
	return true
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}
