package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rfid_session_go/internal/regions"
	"rfid_session_go/internal/sink"
	"rfid_session_go/internal/tagcache"
	"rfid_session_go/internal/transport"
	"rfid_session_go/sdk"
)

// Opener builds a fresh transport for a reader URI.
type Opener func(uri string) (sdk.Transport, error)

type Options struct {
	URI         string
	Name        string
	DialTimeout time.Duration
	RetryDelay  time.Duration
	Region      sdk.Region
	Metadata    sdk.MetadataFlag
	Stats       sdk.StatsFlag
	ReadPower   int
	Plan        sdk.ReadPlan
	SeenTTL     time.Duration
	Session     []sdk.Option
}

type Status struct {
	Running      bool             `json:"running"`
	Connected    bool             `json:"connected"`
	URI          string           `json:"uri"`
	Model        string           `json:"model,omitempty"`
	Class        string           `json:"class,omitempty"`
	Region       string           `json:"region,omitempty"`
	RegionBand   string           `json:"region_band,omitempty"`
	BaudRate     int              `json:"baud_rate,omitempty"`
	Stream       string           `json:"stream,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
	UniqueSeen   uint64           `json:"unique_seen"`
	TotalReads   uint64           `json:"total_reads"`
	OpErrors     uint64           `json:"op_errors"`
	BufferFull   uint64           `json:"buffer_full"`
	Exceptions   uint64           `json:"exceptions"`
	LastTagAt    time.Time        `json:"last_tag_at"`
	LastTagEPC   string           `json:"last_tag_epc,omitempty"`
	LastStartAt  time.Time        `json:"last_start_at"`
	RestartCount uint64           `json:"restart_count"`
	Cooldowns    int              `json:"cooldowns"`
	Stats        *sdk.ReaderStats `json:"stats,omitempty"`
}

// Manager keeps one reader streaming into a publisher, reconnecting after
// transport failures.
type Manager struct {
	opts   Options
	open   Opener
	pub    sink.Publisher
	seen   *tagcache.Store
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	status  Status
}

func New(opts Options, pub sink.Publisher, logger zerolog.Logger) *Manager {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.Metadata == 0 {
		opts.Metadata = sdk.MetaAll
	}
	if pub == nil {
		pub = sink.NewMulti()
	}
	dial := opts.DialTimeout
	return &Manager{
		opts: opts,
		open: func(uri string) (sdk.Transport, error) {
			return transport.ForURI(uri, dial)
		},
		pub:    pub,
		seen:   tagcache.New(opts.SeenTTL),
		logger: logger,
		now:    time.Now,
		status: Status{URI: opts.URI},
	}
}

// SetOpener replaces how transports are built.
func (m *Manager) SetOpener(open Opener) {
	m.mu.Lock()
	m.open = open
	m.mu.Unlock()
}

func (m *Manager) Seen() *tagcache.Store {
	return m.seen
}

func (m *Manager) Start(parent context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.status.Running = true
	m.status.LastError = ""
	m.status.LastStartAt = m.now()
	done := m.done
	m.mu.Unlock()

	go m.scanLoop(ctx, done)
	return nil
}

func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Wait blocks until the scan loop has exited.
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status
	if st.Stats != nil {
		stats := *st.Stats
		st.Stats = &stats
	}
	return st
}

func (m *Manager) StatusText() string {
	st := m.Status()
	return fmt.Sprintf(
		"running=%v connected=%v uri=%s\nmodel=%s class=%s region=%s baud=%d stream=%s\nseen=%d reads=%d op_errors=%d buffer_full=%d last_tag=%s at=%s\nrestarts=%d cooldowns=%d last_error=%s",
		st.Running,
		st.Connected,
		fallback(st.URI, "-"),
		fallback(st.Model, "-"),
		fallback(st.Class, "-"),
		fallback(st.Region, "-"),
		st.BaudRate,
		fallback(st.Stream, "-"),
		st.UniqueSeen,
		st.TotalReads,
		st.OpErrors,
		st.BufferFull,
		fallback(trimEPC(st.LastTagEPC), "-"),
		formatTime(st.LastTagAt),
		st.RestartCount,
		st.Cooldowns,
		fallback(st.LastError, "-"),
	)
}

func (m *Manager) scanLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.finishStopped()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		session, err := m.connect(ctx)
		if err != nil {
			m.setError(err)
			m.logger.Warn().Err(err).Str("uri", m.opts.URI).Msg("reader start failed")
			if !sleepWithContext(ctx, m.opts.RetryDelay) {
				return
			}
			m.bumpRestart()
			continue
		}

		shouldReconnect := m.stream(ctx, session)
		_ = session.Close()

		m.mu.Lock()
		m.status.Connected = false
		m.status.Stream = ""
		m.status.Cooldowns += session.Thermal().Cooldowns()
		m.mu.Unlock()

		if !shouldReconnect {
			return
		}
		if !sleepWithContext(ctx, m.opts.RetryDelay) {
			return
		}
		m.bumpRestart()
	}
}

func (m *Manager) connect(ctx context.Context) (*sdk.Session, error) {
	m.mu.Lock()
	open := m.open
	m.mu.Unlock()

	tr, err := open(m.opts.URI)
	if err != nil {
		return nil, err
	}
	opts := append([]sdk.Option{sdk.WithLogger(m.logger)}, m.opts.Session...)
	session := sdk.NewSession(tr, opts...)
	if err := session.Connect(ctx, m.opts.URI); err != nil {
		return nil, err
	}
	if err := Configure(ctx, session, m.opts); err != nil {
		_ = session.Close()
		return nil, err
	}

	caps := session.Capabilities()
	m.mu.Lock()
	m.status.Connected = true
	m.status.LastError = ""
	m.status.Model = caps.Model
	m.status.Class = caps.Class.String()
	m.status.Region = session.Region().String()
	m.status.RegionBand = regions.Band(session.Region())
	m.status.BaudRate = session.BaudRate()
	m.mu.Unlock()

	m.logger.Info().
		Str("uri", m.opts.URI).
		Str("model", caps.Model).
		Str("class", caps.Class.String()).
		Str("region", session.Region().String()).
		Msg("reader connected")
	return session, nil
}

// Configure applies region, metadata, power, stats and the read plan to a
// connected session.
func Configure(ctx context.Context, session *sdk.Session, opts Options) error {
	if opts.Region == sdk.RegionUnspecified {
		if _, err := session.NegotiateRegion(ctx); err != nil && sdk.KindOf(err) != sdk.KindUnsupported {
			return fmt.Errorf("negotiate region: %w", err)
		}
	} else if err := session.SetRegion(ctx, opts.Region); err != nil {
		return fmt.Errorf("set region: %w", err)
	}

	if err := session.SetMetadata(ctx, opts.Metadata); err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	if opts.ReadPower > 0 {
		if err := session.SetReadPower(ctx, opts.ReadPower); err != nil {
			return fmt.Errorf("set read power: %w", err)
		}
	}
	if opts.Stats != sdk.StatsNone {
		if err := session.Stats().Enable(ctx, opts.Stats); err != nil {
			return fmt.Errorf("enable stats: %w", err)
		}
	}
	if err := session.CommitReadPlan(ctx, opts.Plan); err != nil {
		return fmt.Errorf("commit read plan: %w", err)
	}
	return nil
}

func (m *Manager) stream(ctx context.Context, session *sdk.Session) bool {
	fatal := make(chan error, 1)
	streamID := m.streamID()
	listeners := sdk.Listeners{
		OnTagRead: func(tag sdk.TagRecord) {
			m.handleTag(ctx, tag, streamID)
		},
		OnException: func(err error) {
			m.handleException(err, fatal)
		},
		OnStats: func(stats sdk.ReaderStats) {
			m.mu.Lock()
			m.status.Stats = &stats
			m.mu.Unlock()
		},
	}
	m.mu.Lock()
	m.status.Stream = streamID
	m.mu.Unlock()

	if err := session.StartAsync(ctx, listeners); err != nil {
		m.setError(err)
		return true
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case err := <-fatal:
			m.setError(err)
			m.logger.Warn().Err(err).Msg("reader stream failed, reconnecting")
			return true
		case <-ticker.C:
			if !session.IsReading() {
				return ctx.Err() == nil
			}
		}
	}
}

func (m *Manager) handleTag(ctx context.Context, tag sdk.TagRecord, streamID string) {
	epc := tag.EPCHex()
	if epc == "" {
		return
	}
	isNew := m.seen.Observe(epc)
	now := m.now()

	m.mu.Lock()
	m.status.TotalReads++
	if isNew {
		m.status.UniqueSeen++
	}
	if tag.OpErr != nil {
		m.status.OpErrors++
	}
	m.status.LastTagAt = now
	m.status.LastTagEPC = epc
	m.mu.Unlock()

	ev := sink.FromTag(tag, streamID, m.opts.Name, isNew, now)
	if err := m.pub.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn().Err(err).Str("epc", epc).Msg("publish failed")
	}
}

func (m *Manager) handleException(err error, fatal chan<- error) {
	m.mu.Lock()
	m.status.Exceptions++
	if sdk.KindOf(err) == sdk.KindTagBufferFull {
		m.status.BufferFull++
	}
	m.mu.Unlock()

	switch sdk.KindOf(err) {
	case sdk.KindTagBufferFull:
		m.logger.Debug().Msg("tag buffer full, cycle delivered in parts")
		return
	case sdk.KindTransport, sdk.KindTimeout, sdk.KindNotConnected:
		select {
		case fatal <- err:
		default:
		}
		return
	}
	m.setError(err)
	m.logger.Warn().Err(err).Msg("reader exception")
}

// ReadOnce connects, runs one synchronous read of d and publishes every
// tag. The session is closed before returning.
func (m *Manager) ReadOnce(ctx context.Context, d time.Duration) (sdk.ReadResult, error) {
	session, err := m.connect(ctx)
	if err != nil {
		m.setError(err)
		return sdk.ReadResult{}, err
	}
	defer func() {
		_ = session.Close()
		m.mu.Lock()
		m.status.Connected = false
		m.mu.Unlock()
	}()

	res, err := session.ReadSync(ctx, d)
	if err != nil {
		m.setError(err)
		return res, err
	}
	if res.BufferFull {
		m.mu.Lock()
		m.status.BufferFull++
		m.mu.Unlock()
	}
	streamID := m.streamID()
	for _, tag := range res.Tags {
		m.handleTag(ctx, tag, streamID)
	}
	return res, nil
}

func (m *Manager) streamID() string {
	return fmt.Sprintf("%s@%d", fallback(m.opts.Name, "reader"), m.now().UnixMilli())
}

func (m *Manager) setError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.status.LastError = err.Error()
	m.mu.Unlock()
}

func (m *Manager) bumpRestart() {
	m.mu.Lock()
	m.status.RestartCount++
	m.mu.Unlock()
}

func (m *Manager) finishStopped() {
	m.mu.Lock()
	m.running = false
	m.cancel = nil
	m.done = nil
	m.status.Running = false
	m.status.Connected = false
	m.mu.Unlock()
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func trimEPC(epc string) string {
	if len(epc) <= 24 {
		return epc
	}
	return epc[:24] + "..."
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
