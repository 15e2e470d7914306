package transport

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"rfid_session_go/internal/simulator"
	"rfid_session_go/internal/transport/serialport"
	"rfid_session_go/internal/transport/tcp"
	"rfid_session_go/sdk"
)

// Kind names the link a reader URI selects.
type Kind string

const (
	KindSerial    Kind = "serial"
	KindTCP       Kind = "tcp"
	KindSimulator Kind = "sim"
)

// Classify maps a reader URI onto a link kind: "tmr:///dev/ttyUSB0" is
// serial, "tmr://host:port" is TCP and "sim://..." is the built-in
// simulator.
func Classify(uri string) (Kind, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse reader uri %q: %w", uri, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "sim":
		return KindSimulator, nil
	case "tmr", "eapi":
		if u.Host == "" {
			return KindSerial, nil
		}
		return KindTCP, nil
	case "tcp":
		return KindTCP, nil
	case "":
		return "", fmt.Errorf("reader uri %q has no scheme", uri)
	}
	return "", fmt.Errorf("unsupported reader uri scheme %q", u.Scheme)
}

// ForURI builds the transport for uri. Simulator URIs get the demo device.
func ForURI(uri string, dialTimeout time.Duration) (sdk.Transport, error) {
	kind, err := Classify(uri)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindSerial:
		return serialport.New(), nil
	case KindTCP:
		return tcp.New(dialTimeout), nil
	default:
		return simulator.New(simulator.Demo()), nil
	}
}
