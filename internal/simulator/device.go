package simulator

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"rfid_session_go/internal/protocol/tmr"
)

// Tag is one simulated tag in the field.
type Tag struct {
	EPC      []byte
	Antenna  byte
	RSSI     int8
	Protocol byte
	// Data is the content of the bank targeted by embedded reads.
	Data []byte
	// OpError makes every embedded operation on this tag fail with the code.
	OpError uint16
	// Password makes secure reads ask the host for a credential.
	Password uint32
}

// Cycle scripts the outcome of one read command.
type Cycle struct {
	Tags       []Tag
	BufferFull bool
	Status     uint16
}

// Config describes the simulated device.
type Config struct {
	Model            string
	Version          string
	Serial           bool
	BaudRate         int
	Region           byte
	SupportedRegions []byte
	Protocols        []byte
	Antennas         int
	DataInBytes      bool
	GPIO             []tmr.GPIOPin
	TemperatureC     int8
	FrequencyKHz     uint32
	Unsupported      []byte

	// Cycles are played in order. Once exhausted, Generator is asked for
	// more; without a Generator every further cycle finds nothing.
	Cycles    []Cycle
	Generator func(n int) Cycle
	// RealTime makes read commands take their requested duration.
	RealTime bool
}

type queued struct {
	fields   tmr.TagFields
	tag      Tag
	needAuth bool
}

// Device is an in-memory reader that speaks the tmr protocol. It satisfies
// the session transport contract.
type Device struct {
	mu  sync.Mutex
	cfg Config

	open     bool
	baud     int
	rx       []byte
	out      [][]byte
	plan     tmr.PlanFields
	metadata uint16
	stats    uint16
	region   byte
	power    int16
	ports    map[byte]int16
	target   byte
	saved    *snapshot
	cycle    int
	buffer   []queued
	awaiting *queued

	identifies  int
	baudHistory []int
	commands    map[byte]int
	reboots     int
}

type snapshot struct {
	region   byte
	power    int16
	metadata uint16
}

func New(cfg Config) *Device {
	if cfg.Model == "" {
		cfg.Model = "M6e"
	}
	if cfg.Version == "" {
		cfg.Version = "1.21.1.2"
	}
	if cfg.Antennas == 0 {
		cfg.Antennas = 4
	}
	if cfg.TemperatureC == 0 {
		cfg.TemperatureC = 34
	}
	if cfg.FrequencyKHz == 0 {
		cfg.FrequencyKHz = 915250
	}
	protocol := byte(1)
	if len(cfg.Protocols) > 0 {
		protocol = cfg.Protocols[0]
	}
	return &Device{
		cfg:      cfg,
		region:   cfg.Region,
		metadata: tmr.FlagAll,
		stats:    tmr.StatsTemperature | tmr.StatsAntennaPorts,
		power:    3000,
		ports:    make(map[byte]int16),
		commands: make(map[byte]int),
		plan:     tmr.PlanFields{Protocol: protocol},
	}
}

func (d *Device) Open(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	d.rx = nil
	d.out = nil
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.out = nil
	d.rx = nil
	return nil
}

func (d *Device) IsSerial() bool {
	return d.cfg.Serial
}

func (d *Device) SetBaudRate(rate int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baud = rate
	d.baudHistory = append(d.baudHistory, rate)
	return nil
}

// Send feeds host bytes to the device. At the wrong baud rate the device
// sees noise and never answers.
func (d *Device) Send(data []byte) error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return io.ErrClosedPipe
	}
	garbled := d.cfg.Serial && d.cfg.BaudRate != 0 && d.baud != d.cfg.BaudRate

	d.rx = append(d.rx, data...)
	frames, remaining := tmr.ParseFrames(d.rx)
	d.rx = remaining

	var sleep time.Duration
	for _, frame := range frames {
		d.commands[frame.Opcode]++
		if frame.Opcode == tmr.OpVersion {
			d.identifies++
		}
		if garbled {
			continue
		}
		status, payload, delay := d.handle(frame)
		sleep += delay
		packet, err := tmr.Build(frame.Opcode, status, payload)
		if err != nil {
			d.mu.Unlock()
			return err
		}
		d.out = append(d.out, packet)
	}
	d.mu.Unlock()

	if sleep > 0 {
		time.Sleep(sleep)
	}
	return nil
}

// Receive returns queued responses. An empty queue times out immediately.
func (d *Device) Receive(timeout time.Duration) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, io.ErrClosedPipe
	}
	if len(d.out) == 0 {
		return nil, os.ErrDeadlineExceeded
	}
	packet := d.out[0]
	d.out = d.out[1:]
	return packet, nil
}

// Identifies counts identify commands seen, answered or not.
func (d *Device) Identifies() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.identifies
}

func (d *Device) BaudHistory() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.baudHistory...)
}

func (d *Device) Commands(opcode byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commands[opcode]
}

func (d *Device) Reboots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reboots
}

func (d *Device) Region() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.region
}

func (d *Device) Plan() tmr.PlanFields {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plan
}

func (d *Device) unsupported(key byte) bool {
	for _, k := range d.cfg.Unsupported {
		if k == key {
			return true
		}
	}
	return false
}
