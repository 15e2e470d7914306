package simulator

import (
	"bytes"
	"time"

	"rfid_session_go/internal/protocol/tmr"
)

const maxBatchBytes = 240

// handle runs one command with d.mu held.
func (d *Device) handle(frame tmr.Frame) (uint16, []byte, time.Duration) {
	switch frame.Opcode {
	case tmr.OpVersion:
		out := tmr.AppendString(nil, d.cfg.Model)
		return tmr.StatusOK, tmr.AppendString(out, d.cfg.Version), 0
	case tmr.OpGetParam:
		status, out := d.getParam(frame.Data)
		return status, out, 0
	case tmr.OpSetParam:
		return d.setParam(frame.Data), nil, 0
	case tmr.OpSetReadPlan:
		return d.setPlan(frame.Data), nil, 0
	case tmr.OpReadTags:
		return d.read(frame.Data)
	case tmr.OpFetchTags:
		status, out := d.fetch()
		return status, out, 0
	case tmr.OpAuthResponse:
		status, out := d.authResponse(frame.Data)
		return status, out, 0
	case tmr.OpGetStats:
		status, out := d.statsResponse(frame.Data)
		return status, out, 0
	case tmr.OpUserConfig:
		return d.userConfig(frame.Data), nil, 0
	case tmr.OpReboot:
		d.reboots++
		d.buffer = nil
		d.awaiting = nil
		return tmr.StatusOK, nil, 0
	default:
		return tmr.StatusInvalidOpcode, nil, 0
	}
}

func (d *Device) getParam(data []byte) (uint16, []byte) {
	if len(data) < 1 {
		return tmr.StatusInvalidParam, nil
	}
	key := data[0]
	if d.unsupported(key) {
		return tmr.StatusUnsupported, nil
	}
	switch key {
	case tmr.ParamRegion:
		return tmr.StatusOK, []byte{d.region}
	case tmr.ParamSupportedRegions:
		out := []byte{byte(len(d.cfg.SupportedRegions))}
		return tmr.StatusOK, append(out, d.cfg.SupportedRegions...)
	case tmr.ParamProtocol:
		return tmr.StatusOK, []byte{d.plan.Protocol}
	case tmr.ParamSupportedProtocols:
		if len(d.cfg.Protocols) == 0 {
			return tmr.StatusUnsupported, nil
		}
		return tmr.StatusOK, append([]byte(nil), d.cfg.Protocols...)
	case tmr.ParamAntennaPorts:
		return tmr.StatusOK, []byte{byte(d.cfg.Antennas)}
	case tmr.ParamReadPower:
		return tmr.StatusOK, tmr.AppendU16(nil, uint16(d.power))
	case tmr.ParamPortReadPower:
		out := []byte{0}
		for port := 1; port <= d.cfg.Antennas; port++ {
			power, ok := d.ports[byte(port)]
			if !ok {
				continue
			}
			out[0]++
			out = append(out, byte(port))
			out = tmr.AppendU16(out, uint16(power))
		}
		return tmr.StatusOK, out
	case tmr.ParamMetadata:
		return tmr.StatusOK, tmr.AppendU16(nil, d.metadata)
	case tmr.ParamStatsEnable:
		return tmr.StatusOK, tmr.AppendU16(nil, d.stats)
	case tmr.ParamGen2Target:
		return tmr.StatusOK, []byte{d.target}
	case tmr.ParamReturnLoss:
		out := []byte{byte(d.cfg.Antennas)}
		for port := 1; port <= d.cfg.Antennas; port++ {
			out = append(out, byte(port), byte(18+port))
		}
		return tmr.StatusOK, out
	}
	return tmr.StatusUnsupported, nil
}

func (d *Device) setParam(data []byte) uint16 {
	if len(data) < 1 {
		return tmr.StatusInvalidParam
	}
	key, value := data[0], data[1:]
	if d.unsupported(key) {
		return tmr.StatusUnsupported
	}
	c := tmr.NewCursor(value)
	switch key {
	case tmr.ParamRegion:
		region, err := c.U8()
		if err != nil {
			return tmr.StatusInvalidParam
		}
		if len(d.cfg.SupportedRegions) > 0 && bytes.IndexByte(d.cfg.SupportedRegions, region) < 0 {
			return tmr.StatusInvalidParam
		}
		d.region = region
	case tmr.ParamReadPower:
		v, err := c.U16()
		if err != nil {
			return tmr.StatusInvalidParam
		}
		d.power = int16(v)
	case tmr.ParamPortReadPower:
		n, err := c.U8()
		if err != nil {
			return tmr.StatusInvalidParam
		}
		for i := 0; i < int(n); i++ {
			port, err := c.U8()
			if err != nil {
				return tmr.StatusInvalidParam
			}
			v, err := c.U16()
			if err != nil {
				return tmr.StatusInvalidParam
			}
			d.ports[port] = int16(v)
		}
	case tmr.ParamMetadata:
		v, err := c.U16()
		if err != nil {
			return tmr.StatusInvalidParam
		}
		d.metadata = v & tmr.FlagAll
	case tmr.ParamStatsEnable:
		v, err := c.U16()
		if err != nil {
			return tmr.StatusInvalidParam
		}
		d.stats = v | tmr.StatsTemperature | tmr.StatsAntennaPorts
	case tmr.ParamGen2Target:
		v, err := c.U8()
		if err != nil || v > 3 {
			return tmr.StatusInvalidParam
		}
		d.target = v
	default:
		return tmr.StatusUnsupported
	}
	return tmr.StatusOK
}

func (d *Device) setPlan(data []byte) uint16 {
	plan, err := tmr.DecodePlan(data)
	if err != nil {
		return tmr.StatusInvalidParam
	}
	for _, ant := range plan.Antennas {
		if ant < 1 || int(ant) > d.cfg.Antennas {
			return tmr.StatusInvalidParam
		}
	}
	d.plan = plan
	return tmr.StatusOK
}

func (d *Device) nextCycle() Cycle {
	n := d.cycle
	d.cycle++
	if n < len(d.cfg.Cycles) {
		return d.cfg.Cycles[n]
	}
	if d.cfg.Generator != nil {
		return d.cfg.Generator(n)
	}
	return Cycle{}
}

func (d *Device) read(data []byte) (uint16, []byte, time.Duration) {
	var delay time.Duration
	if d.cfg.RealTime {
		if ms, err := tmr.NewCursor(data).U32(); err == nil {
			delay = time.Duration(ms) * time.Millisecond
		}
	}

	cycle := d.nextCycle()
	d.buffer = d.buffer[:0]
	d.awaiting = nil
	for i, tag := range cycle.Tags {
		if !d.selected(tag) {
			continue
		}
		d.buffer = append(d.buffer, queued{
			fields:   d.record(tag, uint32(i)),
			tag:      tag,
			needAuth: d.plan.OpKind == tmr.OpKindSecureRead && tag.Password != 0,
		})
	}

	count := tmr.AppendU32(nil, uint32(len(d.buffer)))
	switch {
	case cycle.Status != tmr.StatusOK:
		d.buffer = nil
		return cycle.Status, nil, delay
	case cycle.BufferFull:
		return tmr.StatusTagBufferFull, count, delay
	case len(d.buffer) == 0:
		return tmr.StatusNoTagsFound, count, delay
	}
	return tmr.StatusOK, count, delay
}

func (d *Device) selected(tag Tag) bool {
	if len(d.plan.Antennas) > 0 && bytes.IndexByte(d.plan.Antennas, d.antennaOf(tag)) < 0 {
		return false
	}
	return bytes.HasPrefix(tag.EPC, d.plan.EPCPrefix)
}

func (d *Device) antennaOf(tag Tag) byte {
	if tag.Antenna != 0 {
		return tag.Antenna
	}
	return 1
}

// record builds the wire record of tag as seen in this cycle.
func (d *Device) record(tag Tag, offsetMs uint32) tmr.TagFields {
	protocol := tag.Protocol
	if protocol == 0 {
		protocol = d.plan.Protocol
	}
	fields := tmr.TagFields{
		Flags:        d.metadata &^ tmr.FlagData,
		ReadCount:    1,
		RSSI:         tag.RSSI,
		Antenna:      d.antennaOf(tag),
		FrequencyKHz: d.cfg.FrequencyKHz,
		TimestampMs:  offsetMs,
		Phase:        90,
		Protocol:     protocol,
		DataInBits:   !d.cfg.DataInBytes,
		GPIO:         d.cfg.GPIO,
		Gen2Q:        4,
		Gen2LF:       tmr.LinkFreq250,
		Gen2Target:   0,
		TagType:      0x1,
		EPC:          tag.EPC,
	}
	if d.plan.OpKind == tmr.OpKindNone || d.metadata&tmr.FlagData == 0 {
		return fields
	}
	fields.Flags |= tmr.FlagData
	switch {
	case tag.OpError != 0:
		fields.OpFailed = true
		fields.OpCode = tag.OpError
	case d.plan.OpKind == tmr.OpKindWrite:
		fields.Data = nil
	default:
		fields.Data = d.window(tag.Data)
	}
	return fields
}

// window cuts the read range of the plan out of bank data.
func (d *Device) window(data []byte) []byte {
	start := int(d.plan.WordOffset) * 2
	if start >= len(data) {
		return nil
	}
	end := len(data)
	if d.plan.WordLength > 0 && start+int(d.plan.WordLength)*2 < end {
		end = start + int(d.plan.WordLength)*2
	}
	return append([]byte(nil), data[start:end]...)
}

func (d *Device) fetch() (uint16, []byte) {
	if len(d.buffer) == 0 {
		return tmr.StatusOK, []byte{0}
	}
	if d.buffer[0].needAuth {
		head := d.buffer[0]
		d.buffer = d.buffer[1:]
		d.awaiting = &head
		out := []byte{head.fields.Protocol, head.fields.Antenna}
		return tmr.StatusAuthRequired, tmr.AppendString(out, string(head.tag.EPC))
	}

	out := []byte{0}
	for len(d.buffer) > 0 && !d.buffer[0].needAuth && out[0] < 255 {
		next := tmr.AppendTag(out, d.buffer[0].fields)
		if len(next) > maxBatchBytes && out[0] > 0 {
			break
		}
		out = next
		out[0]++
		d.buffer = d.buffer[1:]
	}
	return tmr.StatusOK, out
}

func (d *Device) authResponse(data []byte) (uint16, []byte) {
	if d.awaiting == nil {
		return tmr.StatusInvalidParam, nil
	}
	head := *d.awaiting
	d.awaiting = nil

	c := tmr.NewCursor(data)
	granted, err := c.U8()
	if err != nil {
		return tmr.StatusInvalidParam, nil
	}
	password, err := c.U32()
	if err != nil {
		return tmr.StatusInvalidParam, nil
	}

	fields := head.fields
	switch {
	case granted == 0:
		fields.Flags &^= tmr.FlagData
	case password != head.tag.Password:
		fields.OpFailed = true
		fields.OpCode = tmr.Gen2ErrAccessDenied
	}
	return tmr.StatusOK, tmr.AppendTag([]byte{1}, fields)
}

func (d *Device) statsResponse(data []byte) (uint16, []byte) {
	requested, err := tmr.NewCursor(data).U16()
	if err != nil {
		return tmr.StatusInvalidParam, nil
	}
	want := requested & d.stats
	var out []byte
	if want&tmr.StatsRFOnTime != 0 {
		var v []byte
		for port := 1; port <= d.cfg.Antennas; port++ {
			v = append(v, byte(port))
			v = tmr.AppendU32(v, uint32(100*port))
		}
		out = tmr.AppendStatsEntry(out, tmr.StatsRFOnTime, v)
	}
	if want&tmr.StatsNoiseFloor != 0 {
		var v []byte
		noise := int8(-70)
		for port := 1; port <= d.cfg.Antennas; port++ {
			v = append(v, byte(port), byte(noise))
		}
		out = tmr.AppendStatsEntry(out, tmr.StatsNoiseFloor, v)
	}
	if want&tmr.StatsFrequency != 0 {
		out = tmr.AppendStatsEntry(out, tmr.StatsFrequency, tmr.AppendU32(nil, d.cfg.FrequencyKHz))
	}
	if want&tmr.StatsTemperature != 0 {
		out = tmr.AppendStatsEntry(out, tmr.StatsTemperature, []byte{byte(d.cfg.TemperatureC)})
	}
	if want&tmr.StatsAntennaPorts != 0 {
		ant := byte(1)
		if len(d.plan.Antennas) > 0 {
			ant = d.plan.Antennas[0]
		}
		out = tmr.AppendStatsEntry(out, tmr.StatsAntennaPorts, []byte{ant})
	}
	if want&tmr.StatsProtocol != 0 {
		out = tmr.AppendStatsEntry(out, tmr.StatsProtocol, []byte{d.plan.Protocol})
	}
	if want&tmr.StatsConnectedAntennas != 0 {
		var v []byte
		for port := 1; port <= d.cfg.Antennas; port++ {
			connected := byte(0)
			if port == 1 {
				connected = 1
			}
			v = append(v, byte(port), connected)
		}
		out = tmr.AppendStatsEntry(out, tmr.StatsConnectedAntennas, v)
	}
	if want&tmr.StatsDCVoltage != 0 {
		out = tmr.AppendStatsEntry(out, tmr.StatsDCVoltage, tmr.AppendU16(nil, 5000))
	}
	return tmr.StatusOK, out
}

func (d *Device) userConfig(data []byte) uint16 {
	if len(data) < 1 {
		return tmr.StatusInvalidParam
	}
	switch data[0] {
	case tmr.UserConfigSave:
		d.saved = &snapshot{region: d.region, power: d.power, metadata: d.metadata}
	case tmr.UserConfigRestore:
		if d.saved == nil {
			return tmr.StatusInvalidParam
		}
		d.region = d.saved.region
		d.power = d.saved.power
		d.metadata = d.saved.metadata
	case tmr.UserConfigVerify:
		if d.saved == nil {
			return tmr.StatusInvalidParam
		}
	case tmr.UserConfigClear:
		d.saved = nil
	default:
		return tmr.StatusInvalidParam
	}
	return tmr.StatusOK
}
