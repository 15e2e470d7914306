package sdk

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"rfid_session_go/internal/protocol/tmr"
)

// StatsFlag selects reader health statistics.
type StatsFlag uint16

const (
	StatsRFOnTime          = StatsFlag(tmr.StatsRFOnTime)
	StatsNoiseFloor        = StatsFlag(tmr.StatsNoiseFloor)
	StatsFrequency         = StatsFlag(tmr.StatsFrequency)
	StatsTemperature       = StatsFlag(tmr.StatsTemperature)
	StatsAntennaPorts      = StatsFlag(tmr.StatsAntennaPorts)
	StatsProtocol          = StatsFlag(tmr.StatsProtocol)
	StatsConnectedAntennas = StatsFlag(tmr.StatsConnectedAntennas)
	StatsDCVoltage         = StatsFlag(tmr.StatsDCVoltage)

	StatsNone      StatsFlag = 0
	StatsMandatory           = StatsTemperature | StatsAntennaPorts
	StatsAll                 = StatsRFOnTime | StatsNoiseFloor | StatsFrequency | StatsTemperature |
		StatsAntennaPorts | StatsProtocol | StatsConnectedAntennas | StatsDCVoltage
)

var statsNames = []struct {
	flag StatsFlag
	name string
}{
	{StatsRFOnTime, "RF_ON_TIME"}, {StatsNoiseFloor, "NOISE_FLOOR"},
	{StatsFrequency, "FREQUENCY"}, {StatsTemperature, "TEMPERATURE"},
	{StatsAntennaPorts, "ANTENNA_PORTS"}, {StatsProtocol, "PROTOCOL"},
	{StatsConnectedAntennas, "CONNECTED_ANTENNAS"}, {StatsDCVoltage, "DC_VOLTAGE"},
}

func (f StatsFlag) Has(flag StatsFlag) bool {
	return f&flag == flag
}

func (f StatsFlag) String() string {
	if f == StatsNone {
		return "NONE"
	}
	parts := make([]string, 0, 4)
	for _, entry := range statsNames {
		if f.Has(entry.flag) {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "|")
}

func ParseStatsFlags(names []string) (StatsFlag, error) {
	var mask StatsFlag
	for _, raw := range names {
		name := strings.ToUpper(strings.TrimSpace(raw))
		switch name {
		case "", "NONE":
			continue
		case "ALL":
			mask |= StatsAll
			continue
		}
		found := false
		for _, entry := range statsNames {
			if entry.name == name {
				mask |= entry.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown stats flag %q", raw)
		}
	}
	return mask, nil
}

// AntennaConnection reports whether a port has an antenna attached.
type AntennaConnection struct {
	Port      int
	Connected bool
}

// AntennaValue is one per-port measurement.
type AntennaValue struct {
	Port  int
	Value int
}

// ReaderStats is a health snapshot. Only fields flagged in Valid are
// meaningful.
type ReaderStats struct {
	Valid             StatsFlag
	ConnectedAntennas []AntennaConnection
	NoiseFloor        []AntennaValue
	RFOnTimeMs        []AntennaValue
	FrequencyKHz      uint32
	TemperatureC      int
	Protocol          Protocol
	Antenna           int
	DCVoltageMV       int
}

// StatsCollector enables and fetches reader statistics.
type StatsCollector struct {
	session *Session

	mu        sync.Mutex
	enabled   StatsFlag
	requested bool
	last      ReaderStats
}

// Enable selects statistics. Temperature and antenna port are always on.
func (c *StatsCollector) Enable(ctx context.Context, mask StatsFlag) error {
	s := c.session
	if err := s.acquireConnected("enable stats"); err != nil {
		return err
	}
	defer s.release()

	mask |= StatsMandatory
	if err := s.setParam(ctx, tmr.ParamStatsEnable, tmr.AppendU16(nil, uint16(mask))); err != nil {
		return err
	}
	c.mu.Lock()
	c.enabled = mask
	c.requested = true
	c.mu.Unlock()
	return nil
}

func (c *StatsCollector) Enabled() StatsFlag {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Snapshot fetches the current statistics from the device.
func (c *StatsCollector) Snapshot(ctx context.Context) (ReaderStats, error) {
	s := c.session
	if err := s.acquireConnected("stats snapshot"); err != nil {
		return ReaderStats{}, err
	}
	defer s.release()
	return c.fetch(ctx)
}

// Last is the most recent snapshot, reset at the start of every search.
func (c *StatsCollector) Last() ReaderStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// streaming reports whether Enable was called, which makes background
// reads deliver statistics after every sub-scan.
func (c *StatsCollector) streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}

func (c *StatsCollector) beginCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requested {
		c.last = ReaderStats{}
	}
}

func (c *StatsCollector) fetch(ctx context.Context) (ReaderStats, error) {
	s := c.session
	enabled := c.Enabled()
	frame, err := s.call(ctx, "stats", tmr.OpGetStats, tmr.AppendU16(nil, uint16(enabled)), s.opts.commandTimeout)
	if err != nil {
		return ReaderStats{}, err
	}
	stats, err := decodeStats(frame.Data, enabled)
	if err != nil {
		return ReaderStats{}, newError(KindDevice, "stats", err)
	}
	c.mu.Lock()
	c.last = stats
	c.mu.Unlock()
	return stats, nil
}

func decodeStats(data []byte, requested StatsFlag) (ReaderStats, error) {
	var st ReaderStats
	c := tmr.NewCursor(data)
	for c.Len() > 0 {
		bit, err := c.U8()
		if err != nil {
			return st, err
		}
		n, err := c.U8()
		if err != nil {
			return st, err
		}
		value, err := c.Bytes(int(n))
		if err != nil {
			return st, fmt.Errorf("stats bit %d: %w", bit, err)
		}
		if bit > 15 {
			continue
		}
		flag := StatsFlag(1) << bit
		if !requested.Has(flag) {
			continue
		}
		if err := st.apply(flag, value); err != nil {
			return st, fmt.Errorf("stats %s: %w", flag, err)
		}
		st.Valid |= flag
	}
	return st, nil
}

func (st *ReaderStats) apply(flag StatsFlag, value []byte) error {
	c := tmr.NewCursor(value)
	switch flag {
	case StatsRFOnTime:
		for c.Len() > 0 {
			port, err := c.U8()
			if err != nil {
				return err
			}
			ms, err := c.U32()
			if err != nil {
				return err
			}
			st.RFOnTimeMs = append(st.RFOnTimeMs, AntennaValue{Port: int(port), Value: int(ms)})
		}
	case StatsNoiseFloor:
		if len(value)%2 != 0 {
			return tmr.ErrShort
		}
		for i := 0; i < len(value); i += 2 {
			st.NoiseFloor = append(st.NoiseFloor, AntennaValue{Port: int(value[i]), Value: int(int8(value[i+1]))})
		}
	case StatsConnectedAntennas:
		if len(value)%2 != 0 {
			return tmr.ErrShort
		}
		for i := 0; i < len(value); i += 2 {
			st.ConnectedAntennas = append(st.ConnectedAntennas, AntennaConnection{Port: int(value[i]), Connected: value[i+1] != 0})
		}
	case StatsFrequency:
		v, err := c.U32()
		if err != nil {
			return err
		}
		st.FrequencyKHz = v
	case StatsTemperature:
		v, err := c.U8()
		if err != nil {
			return err
		}
		st.TemperatureC = int(int8(v))
	case StatsAntennaPorts:
		v, err := c.U8()
		if err != nil {
			return err
		}
		st.Antenna = int(v)
	case StatsProtocol:
		v, err := c.U8()
		if err != nil {
			return err
		}
		st.Protocol = Protocol(v)
	case StatsDCVoltage:
		v, err := c.U16()
		if err != nil {
			return err
		}
		st.DCVoltageMV = int(v)
	}
	return nil
}
