package tmr

import (
	"fmt"
)

// Tag record metadata flags. Fields appear in a record in flag order.
const (
	FlagReadCount  uint16 = 0x0001
	FlagRSSI       uint16 = 0x0002
	FlagAntennaID  uint16 = 0x0004
	FlagFrequency  uint16 = 0x0008
	FlagTimestamp  uint16 = 0x0010
	FlagPhase      uint16 = 0x0020
	FlagProtocol   uint16 = 0x0040
	FlagData       uint16 = 0x0080
	FlagGPIOStatus uint16 = 0x0100
	FlagGen2Q      uint16 = 0x0200
	FlagGen2LF     uint16 = 0x0400
	FlagGen2Target uint16 = 0x0800
	FlagBrandID    uint16 = 0x1000
	FlagTagType    uint16 = 0x2000

	FlagAll uint16 = 0x3FFF
)

// Gen2 link frequency codes.
const (
	LinkFreq250 byte = 0
	LinkFreq320 byte = 2
	LinkFreq640 byte = 4
)

// GPIOPin is one pin state inside a record.
type GPIOPin struct {
	ID   byte
	High bool
}

// TagFields is the wire view of one tag record.
type TagFields struct {
	Flags        uint16
	ReadCount    byte
	RSSI         int8
	Antenna      byte
	FrequencyKHz uint32
	TimestampMs  uint32
	Phase        uint16
	Protocol     byte
	Data         []byte
	DataInBits   bool
	OpFailed     bool
	OpCode       uint16
	GPIO         []GPIOPin
	Gen2Q        byte
	Gen2LF       byte
	Gen2Target   byte
	BrandID      uint16
	TagType      uint32
	EPC          []byte
}

// AppendTag encodes one tag record.
func AppendTag(dst []byte, t TagFields) []byte {
	dst = AppendU16(dst, t.Flags)
	if t.Flags&FlagReadCount != 0 {
		dst = append(dst, t.ReadCount)
	}
	if t.Flags&FlagRSSI != 0 {
		dst = append(dst, byte(t.RSSI))
	}
	if t.Flags&FlagAntennaID != 0 {
		dst = append(dst, t.Antenna)
	}
	if t.Flags&FlagFrequency != 0 {
		dst = AppendU24(dst, t.FrequencyKHz)
	}
	if t.Flags&FlagTimestamp != 0 {
		dst = AppendU32(dst, t.TimestampMs)
	}
	if t.Flags&FlagPhase != 0 {
		dst = AppendU16(dst, t.Phase)
	}
	if t.Flags&FlagProtocol != 0 {
		dst = append(dst, t.Protocol)
	}
	if t.Flags&FlagData != 0 {
		switch {
		case t.OpFailed:
			dst = AppendU16(dst, DataLengthFailed)
			dst = AppendU16(dst, t.OpCode)
		case t.DataInBits:
			dst = AppendU16(dst, uint16(len(t.Data)*8))
			dst = append(dst, t.Data...)
		default:
			dst = AppendU16(dst, uint16(len(t.Data)))
			dst = append(dst, t.Data...)
		}
	}
	if t.Flags&FlagGPIOStatus != 0 {
		dst = append(dst, byte(len(t.GPIO)))
		for _, pin := range t.GPIO {
			b := pin.ID & 0x7F
			if pin.High {
				b |= 0x80
			}
			dst = append(dst, b)
		}
	}
	if t.Flags&FlagGen2Q != 0 {
		dst = append(dst, t.Gen2Q)
	}
	if t.Flags&FlagGen2LF != 0 {
		dst = append(dst, t.Gen2LF)
	}
	if t.Flags&FlagGen2Target != 0 {
		dst = append(dst, t.Gen2Target)
	}
	if t.Flags&FlagBrandID != 0 {
		dst = AppendU16(dst, t.BrandID)
	}
	if t.Flags&FlagTagType != 0 {
		dst = AppendU32(dst, t.TagType)
	}
	dst = append(dst, byte(len(t.EPC)))
	return append(dst, t.EPC...)
}

// Reader statistics flags. Stats travel as (bit, len, value) entries.
const (
	StatsRFOnTime          uint16 = 0x0001
	StatsNoiseFloor        uint16 = 0x0040
	StatsFrequency         uint16 = 0x0080
	StatsTemperature       uint16 = 0x0100
	StatsAntennaPorts      uint16 = 0x0200
	StatsProtocol          uint16 = 0x0400
	StatsConnectedAntennas uint16 = 0x0800
	StatsDCVoltage         uint16 = 0x4000
)

// AppendStatsEntry appends one (bit index, length, value) stats entry.
func AppendStatsEntry(dst []byte, flag uint16, value []byte) []byte {
	bit := byte(0)
	for flag > 1 {
		flag >>= 1
		bit++
	}
	dst = append(dst, bit, byte(len(value)))
	return append(dst, value...)
}

// Embedded op kinds inside a read plan.
const (
	OpKindNone       byte = 0
	OpKindRead       byte = 1
	OpKindSecureRead byte = 2
	OpKindWrite      byte = 3
)

// PlanFields is the wire view of a committed read plan.
type PlanFields struct {
	Protocol   byte
	Antennas   []byte
	EPCPrefix  []byte
	OpKind     byte
	Bank       byte
	WordOffset uint32
	WordLength byte
	Password   uint32
	WriteData  []byte
}

// EncodePlan encodes a read plan for OpSetReadPlan.
func EncodePlan(p PlanFields) []byte {
	out := []byte{p.Protocol, byte(len(p.Antennas))}
	out = append(out, p.Antennas...)
	out = append(out, byte(len(p.EPCPrefix)))
	out = append(out, p.EPCPrefix...)
	out = append(out, p.OpKind)
	if p.OpKind == OpKindNone {
		return out
	}
	out = append(out, p.Bank)
	out = AppendU32(out, p.WordOffset)
	out = append(out, p.WordLength)
	out = AppendU32(out, p.Password)
	out = append(out, byte(len(p.WriteData)))
	return append(out, p.WriteData...)
}

// DecodePlan is the inverse of EncodePlan.
func DecodePlan(data []byte) (PlanFields, error) {
	var p PlanFields
	c := NewCursor(data)
	var err error
	if p.Protocol, err = c.U8(); err != nil {
		return p, fmt.Errorf("plan protocol: %w", err)
	}
	n, err := c.U8()
	if err != nil {
		return p, fmt.Errorf("plan antenna count: %w", err)
	}
	if p.Antennas, err = c.Bytes(int(n)); err != nil {
		return p, fmt.Errorf("plan antennas: %w", err)
	}
	if n, err = c.U8(); err != nil {
		return p, fmt.Errorf("plan filter length: %w", err)
	}
	if p.EPCPrefix, err = c.Bytes(int(n)); err != nil {
		return p, fmt.Errorf("plan filter: %w", err)
	}
	if p.OpKind, err = c.U8(); err != nil {
		return p, fmt.Errorf("plan op kind: %w", err)
	}
	if p.OpKind == OpKindNone {
		return p, nil
	}
	if p.Bank, err = c.U8(); err != nil {
		return p, fmt.Errorf("plan bank: %w", err)
	}
	if p.WordOffset, err = c.U32(); err != nil {
		return p, fmt.Errorf("plan word offset: %w", err)
	}
	if p.WordLength, err = c.U8(); err != nil {
		return p, fmt.Errorf("plan word length: %w", err)
	}
	if p.Password, err = c.U32(); err != nil {
		return p, fmt.Errorf("plan password: %w", err)
	}
	if n, err = c.U8(); err != nil {
		return p, fmt.Errorf("plan write length: %w", err)
	}
	if p.WriteData, err = c.Bytes(int(n)); err != nil {
		return p, fmt.Errorf("plan write data: %w", err)
	}
	return p, nil
}
