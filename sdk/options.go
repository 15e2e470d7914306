package sdk

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaudRate       = 115200
	DefaultCommandTimeout = 2 * time.Second
	DefaultAsyncOnTime    = 100 * time.Millisecond
)

// DefaultProbeBaudRates is the order tried when a serial device is silent.
func DefaultProbeBaudRates() []int {
	return []int{9600, 115200, 921600, 19200, 38400, 57600, 230400, 460800}
}

type options struct {
	clock          Clock
	logger         zerolog.Logger
	trace          TraceFunc
	baudRate       int
	probeRates     []int
	commandTimeout time.Duration
	asyncOnTime    time.Duration
	asyncOffTime   time.Duration
	aliases        map[string]DeviceClass
	thermal        ThermalConfig
	resolver       CredentialFunc
	queueSize      int
}

func defaultOptions() options {
	return options{
		clock:          SystemClock{},
		logger:         zerolog.Nop(),
		baudRate:       DefaultBaudRate,
		probeRates:     DefaultProbeBaudRates(),
		commandTimeout: DefaultCommandTimeout,
		asyncOnTime:    DefaultAsyncOnTime,
		thermal:        DefaultThermalConfig(),
		queueSize:      1024,
	}
}

// Option configures a Session.
type Option func(*options)

func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTrace installs a hook that sees raw transport traffic.
func WithTrace(fn TraceFunc) Option {
	return func(o *options) {
		o.trace = fn
	}
}

func WithBaudRate(rate int) Option {
	return func(o *options) {
		if rate > 0 {
			o.baudRate = rate
		}
	}
}

// WithProbeBaudRates sets the candidates tried when a serial device is silent.
func WithProbeBaudRates(rates []int) Option {
	return func(o *options) {
		if len(rates) > 0 {
			o.probeRates = append([]int(nil), rates...)
		}
	}
}

func WithCommandTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.commandTimeout = d
		}
	}
}

// WithAsyncTiming sets the length of each background sub-scan and the idle
// gap between them.
func WithAsyncTiming(onTime, offTime time.Duration) Option {
	return func(o *options) {
		if onTime > 0 {
			o.asyncOnTime = onTime
		}
		if offTime >= 0 {
			o.asyncOffTime = offTime
		}
	}
}

// WithModelAliases maps extra model strings onto device classes.
func WithModelAliases(aliases map[string]DeviceClass) Option {
	return func(o *options) {
		if len(aliases) == 0 {
			return
		}
		o.aliases = make(map[string]DeviceClass, len(aliases))
		for model, class := range aliases {
			o.aliases[model] = class
		}
	}
}

func WithThermal(cfg ThermalConfig) Option {
	return func(o *options) {
		o.thermal = cfg
	}
}

// WithCredentialResolver installs the resolver used for secure reads.
func WithCredentialResolver(fn CredentialFunc) Option {
	return func(o *options) {
		o.resolver = fn
	}
}

// WithDispatchQueue sets the initial capacity of the event queue feeding
// the listeners. The queue grows past it rather than block a read.
func WithDispatchQueue(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.queueSize = size
		}
	}
}
