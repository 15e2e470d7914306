package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rfid_session_go/internal/protocol/tmr"
)

// State is the connection lifecycle state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateProbing
	StateConnected
	StateRebooting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateProbing:
		return "probing"
	case StateConnected:
		return "connected"
	case StateRebooting:
		return "rebooting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is one connection to one reader. It owns the Transport.
type Session struct {
	transport Transport
	opts      options
	log       zerolog.Logger
	thermal   *ThermalGuard
	auth      *AuthBridge
	stats     *StatsCollector

	mu       sync.RWMutex
	state    State
	uri      string
	baudRate int
	caps     Capabilities
	region   Region
	protocol Protocol
	metadata MetadataFlag
	plan     *ReadPlan
	busy     string
	stream   *asyncStream

	// rx is only touched by the holder of busy.
	rx []byte
}

// NewSession wraps a transport. Nothing is sent until Connect.
func NewSession(transport Transport, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Session{
		transport: transport,
		opts:      o,
		log:       o.logger.With().Str("component", "session").Logger(),
		thermal:   NewThermalGuard(o.thermal, o.clock),
		state:     StateDisconnected,
		baudRate:  o.baudRate,
		metadata:  MetaAll,
	}
	s.auth = NewAuthBridge(o.resolver, s.log)
	s.stats = &StatsCollector{session: s, enabled: StatsMandatory}
	return s
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// BaudRate is the rate in use, including one discovered by probing.
func (s *Session) BaudRate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baudRate
}

func (s *Session) Capabilities() Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	caps := s.caps
	caps.Protocols = append([]Protocol(nil), s.caps.Protocols...)
	return caps
}

func (s *Session) Stats() *StatsCollector {
	return s.stats
}

func (s *Session) Thermal() *ThermalGuard {
	return s.thermal
}

// SetCredentialResolver replaces the resolver used for secure reads.
func (s *Session) SetCredentialResolver(fn CredentialFunc) error {
	if err := s.acquire("set credential resolver"); err != nil {
		return err
	}
	defer s.release()
	s.auth = NewAuthBridge(fn, s.log)
	return nil
}

// acquire claims exclusive use of the transport.
func (s *Session) acquire(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy != "" {
		return &Error{Kind: KindSessionBusy, Op: op, Err: fmt.Errorf("%s in progress", s.busy)}
	}
	s.busy = op
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = ""
	s.mu.Unlock()
}

// acquireConnected is acquire plus a Connected state check.
func (s *Session) acquireConnected(op string) error {
	if err := s.acquire(op); err != nil {
		return err
	}
	if s.State() != StateConnected {
		s.release()
		return &Error{Kind: KindNotConnected, Op: op}
	}
	return nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	if prev != state {
		s.log.Debug().Str("from", prev.String()).Str("to", state.String()).Msg("state change")
	}
}

// Connect opens the transport and identifies the device. A silent serial
// device triggers baud probing; the rate found is kept for later connects.
func (s *Session) Connect(ctx context.Context, uri string) error {
	s.mu.Lock()
	if s.state != StateDisconnected && s.state != StateRebooting {
		state := s.state
		s.mu.Unlock()
		return &Error{Kind: KindConnectFailed, Op: "connect", Err: fmt.Errorf("session is %s", state)}
	}
	if s.busy != "" {
		busy := s.busy
		s.mu.Unlock()
		return &Error{Kind: KindSessionBusy, Op: "connect", Err: fmt.Errorf("%s in progress", busy)}
	}
	s.busy = "connect"
	s.mu.Unlock()
	defer s.release()

	s.setState(StateConnecting)
	s.rx = nil
	if err := s.connect(ctx, uri); err != nil {
		_ = s.transport.Close()
		s.setState(StateDisconnected)
		s.log.Warn().Err(err).Str("uri", uri).Msg("connect failed")
		return err
	}

	s.mu.Lock()
	s.uri = uri
	caps := s.caps
	s.mu.Unlock()
	s.setState(StateConnected)
	s.log.Info().
		Str("uri", uri).
		Str("model", caps.Model).
		Str("version", caps.Version).
		Str("class", caps.Class.String()).
		Int("baud", s.BaudRate()).
		Msg("connected")
	return nil
}

func (s *Session) connect(ctx context.Context, uri string) error {
	serial := s.transport.IsSerial()
	if serial {
		if err := s.transport.SetBaudRate(s.BaudRate()); err != nil {
			return newError(KindConnectFailed, "connect", err)
		}
	}
	if err := s.transport.Open(ctx, uri); err != nil {
		return newError(KindConnectFailed, "connect", err)
	}

	model, version, err := s.identify(ctx)
	if err != nil {
		if !errors.Is(err, ErrTimeout) {
			return newError(KindConnectFailed, "connect", err)
		}
		if !serial {
			return err
		}
		s.setState(StateProbing)
		rate, err := s.probeBaud(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.baudRate = rate
		s.mu.Unlock()
		s.setState(StateConnecting)

		model, version, err = s.identify(ctx)
		if err != nil {
			return newError(KindConnectFailed, "connect", err)
		}
	}

	caps := resolveCapabilities(model, version, s.opts.aliases)
	if err := s.loadDeviceState(ctx, &caps); err != nil {
		return newError(KindConnectFailed, "connect", err)
	}
	return nil
}

// probeBaud cycles candidate rates until the device answers identify.
func (s *Session) probeBaud(ctx context.Context) (int, error) {
	tried := s.BaudRate()
	for _, rate := range s.opts.probeRates {
		if rate == tried {
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := s.transport.SetBaudRate(rate); err != nil {
			return 0, newError(KindConnectFailed, "probe baud", err)
		}
		s.rx = nil
		s.log.Debug().Int("baud", rate).Msg("probing baud rate")
		if _, _, err := s.identify(ctx); err == nil {
			s.log.Info().Int("baud", rate).Msg("baud rate discovered")
			return rate, nil
		} else if !errors.Is(err, ErrTimeout) {
			return 0, newError(KindConnectFailed, "probe baud", err)
		}
	}
	return 0, &Error{Kind: KindConnectFailed, Op: "probe baud", Err: fmt.Errorf("no response at any of %v", s.opts.probeRates)}
}

func (s *Session) identify(ctx context.Context) (string, string, error) {
	frame, err := s.call(ctx, "identify", tmr.OpVersion, nil, s.opts.commandTimeout)
	if err != nil {
		return "", "", err
	}
	c := tmr.NewCursor(frame.Data)
	model, err := c.String()
	if err != nil {
		return "", "", fmt.Errorf("identify model: %w", err)
	}
	version, err := c.String()
	if err != nil {
		return "", "", fmt.Errorf("identify version: %w", err)
	}
	return model, version, nil
}

func (s *Session) loadDeviceState(ctx context.Context, caps *Capabilities) error {
	caps.Protocols = nil
	ports, err := s.getParam(ctx, tmr.ParamAntennaPorts)
	if err != nil {
		return fmt.Errorf("antenna ports: %w", err)
	}
	if len(ports) > 0 {
		caps.AntennaPorts = int(ports[0])
	}

	protocols, err := s.getParam(ctx, tmr.ParamSupportedProtocols)
	switch {
	case err == nil:
		for _, p := range protocols {
			caps.Protocols = append(caps.Protocols, Protocol(p))
		}
	case errors.Is(err, ErrUnsupported):
	default:
		return fmt.Errorf("supported protocols: %w", err)
	}

	protocol := caps.DefaultProtocol
	if raw, err := s.getParam(ctx, tmr.ParamProtocol); err == nil && len(raw) > 0 {
		protocol = Protocol(raw[0])
	}

	region := RegionUnspecified
	if caps.regionConfigurable {
		raw, err := s.getParam(ctx, tmr.ParamRegion)
		if err != nil {
			return fmt.Errorf("region: %w", err)
		}
		if len(raw) > 0 {
			region = Region(raw[0])
		}
	}

	metadata := MetaAll
	if raw, err := s.getParam(ctx, tmr.ParamMetadata); err == nil && len(raw) >= 2 {
		metadata = MetadataFlag(uint16(raw[0])<<8 | uint16(raw[1]))
	}

	s.mu.Lock()
	s.caps = *caps
	s.protocol = protocol
	s.region = region
	s.metadata = metadata
	s.plan = nil
	s.mu.Unlock()
	return nil
}

// RebootHint tells the caller how long to wait before reconnecting.
type RebootHint struct {
	Settle time.Duration
}

// Reboot power-cycles the device and releases the transport. The caller
// waits Settle and then calls Connect again.
func (s *Session) Reboot(ctx context.Context) (RebootHint, error) {
	if err := s.acquireConnected("reboot"); err != nil {
		return RebootHint{}, err
	}
	defer s.release()

	caps := s.Capabilities()
	if _, err := s.call(ctx, "reboot", tmr.OpReboot, nil, s.opts.commandTimeout); err != nil {
		return RebootHint{}, err
	}
	_ = s.transport.Close()
	s.rx = nil
	s.setState(StateRebooting)

	hint := RebootHint{Settle: caps.rebootSettle}
	s.log.Info().Dur("settle", hint.Settle).Msg("device rebooting")
	return hint, nil
}

// Close stops any stream and releases the transport. The transport is
// released even when an operation is in flight; that operation then fails
// and Close reports SessionBusy.
func (s *Session) Close() error {
	s.mu.RLock()
	stream := s.stream
	s.mu.RUnlock()
	if stream != nil {
		// A listener still running keeps its call; queued events are dropped.
		stream.stop.Store(true)
		<-stream.loopDone
		stream.queue.discard()
	}

	s.mu.Lock()
	inflight := s.busy
	if stream != nil && s.stream == stream {
		inflight = ""
	}
	s.state = StateDisconnected
	s.plan = nil
	s.mu.Unlock()

	err := s.transport.Close()
	s.log.Info().Msg("session closed")
	if inflight != "" {
		return &Error{Kind: KindSessionBusy, Op: "close", Err: fmt.Errorf("closed during %s", inflight)}
	}
	if err != nil {
		return newError(KindTransport, "close", err)
	}
	return nil
}
