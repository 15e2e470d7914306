package sdk

import (
	"fmt"
	"time"

	"rfid_session_go/internal/protocol/tmr"
)

// DecodeOptions carries what the decoder needs besides the raw bytes.
type DecodeOptions struct {
	Requested  MetadataFlag
	Caps       Capabilities
	BaseMillis uint64
	Op         *TagOp
}

// DecodeTagRecord decodes one raw tag record. Only fields requested and
// present on the wire are populated; everything else stays nil.
func DecodeTagRecord(raw []byte, opts DecodeOptions) (TagRecord, error) {
	c := tmr.NewCursor(raw)
	rec, err := decodeTag(c, opts)
	if err != nil {
		return TagRecord{}, err
	}
	if c.Len() != 0 {
		return TagRecord{}, fmt.Errorf("decode tag: %d trailing bytes", c.Len())
	}
	return rec, nil
}

func decodeTag(c *tmr.Cursor, opts DecodeOptions) (TagRecord, error) {
	var rec TagRecord

	wire, err := c.U16()
	if err != nil {
		return rec, fmt.Errorf("decode tag flags: %w", err)
	}
	present := MetadataFlag(wire)
	want := func(flag MetadataFlag) bool {
		return opts.Requested.Has(flag)
	}
	fail := func(field string, err error) (TagRecord, error) {
		return TagRecord{}, fmt.Errorf("decode tag %s: %w", field, err)
	}

	if present.Has(MetaReadCount) {
		v, err := c.U8()
		if err != nil {
			return fail("read count", err)
		}
		if want(MetaReadCount) {
			n := int(v)
			rec.ReadCount = &n
		}
	}
	if present.Has(MetaRSSI) {
		v, err := c.U8()
		if err != nil {
			return fail("rssi", err)
		}
		if want(MetaRSSI) {
			n := int(int8(v))
			rec.RSSI = &n
		}
	}
	if present.Has(MetaAntennaID) {
		v, err := c.U8()
		if err != nil {
			return fail("antenna", err)
		}
		if want(MetaAntennaID) {
			n := int(v)
			rec.Antenna = &n
		}
	}
	if present.Has(MetaFrequency) {
		v, err := c.U24()
		if err != nil {
			return fail("frequency", err)
		}
		if want(MetaFrequency) {
			rec.FrequencyKHz = &v
		}
	}
	if present.Has(MetaTimestamp) {
		v, err := c.U32()
		if err != nil {
			return fail("timestamp", err)
		}
		if want(MetaTimestamp) {
			ts := time.UnixMilli(int64(opts.BaseMillis + uint64(v)))
			rec.Timestamp = &ts
		}
	}
	if present.Has(MetaPhase) {
		v, err := c.U16()
		if err != nil {
			return fail("phase", err)
		}
		if want(MetaPhase) {
			n := int(v)
			rec.Phase = &n
		}
	}
	if present.Has(MetaProtocol) {
		v, err := c.U8()
		if err != nil {
			return fail("protocol", err)
		}
		if want(MetaProtocol) {
			p := Protocol(v)
			rec.Protocol = &p
		}
	}
	if present.Has(MetaData) {
		data, opErr, err := decodeData(c, opts.Caps.dataLengthBits)
		if err != nil {
			return fail("data", err)
		}
		if want(MetaData) {
			rec.Data = data
			rec.OpErr = opErr
			if opErr == nil && opts.Op != nil && opts.Op.Kind != OpWrite {
				rec.Banks = map[Bank][]byte{opts.Op.Bank: data}
			}
		}
	}
	if present.Has(MetaGPIOStatus) {
		n, err := c.U8()
		if err != nil {
			return fail("gpio count", err)
		}
		raw, err := c.Bytes(int(n))
		if err != nil {
			return fail("gpio", err)
		}
		if want(MetaGPIOStatus) {
			rec.GPIO = splitGPIO(raw, opts.Caps.gpioSplit)
		}
	}
	if present.Has(MetaGen2Q) {
		v, err := c.U8()
		if err != nil {
			return fail("q", err)
		}
		if want(MetaGen2Q) {
			n := int(v)
			rec.Gen2Q = &n
		}
	}
	if present.Has(MetaGen2LF) {
		v, err := c.U8()
		if err != nil {
			return fail("link frequency", err)
		}
		if want(MetaGen2LF) {
			lf, err := linkFrequency(v)
			if err != nil {
				return fail("link frequency", err)
			}
			rec.LinkFrequency = &lf
		}
	}
	if present.Has(MetaGen2Target) {
		v, err := c.U8()
		if err != nil {
			return fail("target", err)
		}
		if want(MetaGen2Target) {
			target := TargetA
			if v != 0 {
				target = TargetB
			}
			rec.Target = &target
		}
	}
	if present.Has(MetaBrandID) {
		v, err := c.U16()
		if err != nil {
			return fail("brand id", err)
		}
		if want(MetaBrandID) {
			rec.BrandID = &v
		}
	}
	if present.Has(MetaTagType) {
		v, err := c.U32()
		if err != nil {
			return fail("tag type", err)
		}
		if want(MetaTagType) {
			rec.TagType = &v
		}
	}

	n, err := c.U8()
	if err != nil {
		return fail("epc length", err)
	}
	if rec.EPC, err = c.Bytes(int(n)); err != nil {
		return fail("epc", err)
	}
	rec.Metadata = present & opts.Requested
	return rec, nil
}

func decodeData(c *tmr.Cursor, lengthInBits bool) ([]byte, error, error) {
	length, err := c.U16()
	if err != nil {
		return nil, nil, err
	}
	if length == tmr.DataLengthFailed {
		code, err := c.U16()
		if err != nil {
			return nil, nil, err
		}
		return nil, &Error{Kind: KindEmbeddedOpFailed, Op: "embedded op", Code: code}, nil
	}
	n := int(length)
	if lengthInBits {
		n = (n + 7) / 8
	}
	data, err := c.Bytes(n)
	if err != nil {
		return nil, nil, err
	}
	return data, nil, nil
}

// splitGPIO: module class reports inputs only; fixed readers report inputs
// followed by outputs.
func splitGPIO(raw []byte, split bool) *GPIOStatus {
	pins := make([]GPIOPin, 0, len(raw))
	for _, b := range raw {
		pins = append(pins, GPIOPin{ID: int(b & 0x7F), High: b&0x80 != 0})
	}
	if !split {
		return &GPIOStatus{Inputs: pins}
	}
	half := len(pins) / 2
	return &GPIOStatus{Inputs: pins[:half], Outputs: pins[half:]}
}

func linkFrequency(code byte) (LinkFrequency, error) {
	switch code {
	case tmr.LinkFreq250:
		return LinkFrequency250, nil
	case tmr.LinkFreq320:
		return LinkFrequency320, nil
	case tmr.LinkFreq640:
		return LinkFrequency640, nil
	}
	return 0, fmt.Errorf("unknown code %d", code)
}
