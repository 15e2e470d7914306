package tmr

import (
	"fmt"
)

// SOH marks the start of every frame on the wire.
const SOH byte = 0xFF

// Opcodes understood by the reader firmware.
const (
	OpVersion      byte = 0x03
	OpReadTags     byte = 0x22
	OpFetchTags    byte = 0x29
	OpAuthResponse byte = 0x2D
	OpSetReadPlan  byte = 0x2F
	OpGetParam     byte = 0x6B
	OpGetStats     byte = 0x6C
	OpSetParam     byte = 0x9A
	OpUserConfig   byte = 0x9D
	OpReboot       byte = 0x0C
)

// Status codes carried in every response frame.
const (
	StatusOK            uint16 = 0x0000
	StatusInvalidOpcode uint16 = 0x0101
	StatusInvalidParam  uint16 = 0x0105
	StatusUnsupported   uint16 = 0x0109
	StatusNoTagsFound   uint16 = 0x0400
	StatusAuthRequired  uint16 = 0x0470
	StatusTempTooHigh   uint16 = 0x0504
	StatusTagBufferFull uint16 = 0x0601
)

// Embedded operation error codes reported inside a tag record.
const (
	Gen2ErrOther        uint16 = 0x0420
	Gen2ErrMemoryLocked uint16 = 0x0423
	Gen2ErrAccessDenied uint16 = 0x0425
)

// DataLengthFailed replaces the data length of a tag record when the
// embedded operation failed; a 16-bit error code follows.
const DataLengthFailed uint16 = 0x8000

// Parameter keys for OpGetParam/OpSetParam.
const (
	ParamRegion             byte = 0x01
	ParamSupportedRegions   byte = 0x02
	ParamProtocol           byte = 0x03
	ParamSupportedProtocols byte = 0x04
	ParamAntennaPorts       byte = 0x05
	ParamReadPower          byte = 0x06
	ParamPortReadPower      byte = 0x07
	ParamMetadata           byte = 0x08
	ParamStatsEnable        byte = 0x09
	ParamGen2Target         byte = 0x0A
	ParamReturnLoss         byte = 0x0B
)

// User configuration operations for OpUserConfig.
const (
	UserConfigSave    byte = 0x01
	UserConfigRestore byte = 0x02
	UserConfigVerify  byte = 0x03
	UserConfigClear   byte = 0x04
)

// MaxData is the largest payload one frame can carry.
const MaxData = 255

const frameOverhead = 7

// Frame is one decoded frame.
type Frame struct {
	Opcode byte
	Status uint16
	Data   []byte
	Raw    []byte
}

// Build builds one wire frame.
// Layout: SOH(1) + Len(1) + Op(1) + Status(2) + Data(n) + CRC_L(1) + CRC_H(1)
func Build(opcode byte, status uint16, data []byte) ([]byte, error) {
	if len(data) > MaxData {
		return nil, fmt.Errorf("tmr: payload too large (%d bytes)", len(data))
	}
	packet := make([]byte, 0, len(data)+frameOverhead)
	packet = append(packet, SOH, byte(len(data)), opcode, byte(status>>8), byte(status))
	packet = append(packet, data...)

	crc := crc16MCRF4XX(packet[1:])
	packet = append(packet, byte(crc&0xFF), byte(crc>>8))
	return packet, nil
}

// Command builds a request frame; requests always carry status 0.
func Command(opcode byte, data []byte) ([]byte, error) {
	return Build(opcode, StatusOK, data)
}

// Verify checks framing and CRC for one complete packet.
func Verify(packet []byte) bool {
	if len(packet) < frameOverhead || packet[0] != SOH {
		return false
	}
	if int(packet[1])+frameOverhead != len(packet) {
		return false
	}
	crc := crc16MCRF4XX(packet[1 : len(packet)-2])
	return byte(crc&0xFF) == packet[len(packet)-2] && byte(crc>>8) == packet[len(packet)-1]
}

// ParseFrames decodes as many valid frames as possible from stream data.
// Garbage and frames with a bad CRC are skipped one byte at a time.
// It returns parsed frames and the bytes still waiting for a full frame.
func ParseFrames(stream []byte) (frames []Frame, remaining []byte) {
	if len(stream) == 0 {
		return nil, nil
	}

	buf := stream
	for len(buf) > 0 {
		if buf[0] != SOH {
			buf = buf[1:]
			continue
		}
		if len(buf) < 2 {
			break
		}
		total := int(buf[1]) + frameOverhead
		if total > len(buf) {
			break
		}

		raw := buf[:total]
		if !Verify(raw) {
			buf = buf[1:]
			continue
		}

		data := make([]byte, total-frameOverhead)
		copy(data, raw[5:total-2])
		frameRaw := make([]byte, total)
		copy(frameRaw, raw)

		frames = append(frames, Frame{
			Opcode: raw[2],
			Status: uint16(raw[3])<<8 | uint16(raw[4]),
			Data:   data,
			Raw:    frameRaw,
		})
		buf = buf[total:]
	}

	remaining = make([]byte, len(buf))
	copy(remaining, buf)
	return frames, remaining
}

// StatusText gives a short name for known status codes.
func StatusText(status uint16) string {
	switch status {
	case StatusOK:
		return "ok"
	case StatusInvalidOpcode:
		return "invalid opcode"
	case StatusInvalidParam:
		return "invalid parameter"
	case StatusUnsupported:
		return "unsupported"
	case StatusNoTagsFound:
		return "no tags found"
	case StatusAuthRequired:
		return "authentication required"
	case StatusTempTooHigh:
		return "temperature too high"
	case StatusTagBufferFull:
		return "tag buffer full"
	default:
		return fmt.Sprintf("status 0x%04X", status)
	}
}

// crc-16-mcrf4xx (poly 0x8408, init 0xFFFF, refin/refout true).
func crc16MCRF4XX(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
