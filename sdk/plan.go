package sdk

import (
	"fmt"

	"rfid_session_go/internal/protocol/tmr"
)

// OpKind is the embedded tag operation run on every singulated tag.
type OpKind uint8

const (
	OpRead       = OpKind(tmr.OpKindRead)
	OpSecureRead = OpKind(tmr.OpKindSecureRead)
	OpWrite      = OpKind(tmr.OpKindWrite)
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpSecureRead:
		return "secure-read"
	case OpWrite:
		return "write"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// TagOp describes one embedded operation. WordLength 0 reads the whole bank
// on devices that support it. Auth is the access password sent with the
// op; nil sends none. Secure reads get per-tag credentials from the
// session's resolver instead.
type TagOp struct {
	Kind       OpKind
	Bank       Bank
	WordOffset uint32
	WordLength int
	Auth       *Credential
	Data       []byte
}

// TagFilter restricts which tags answer an inventory.
type TagFilter struct {
	EPCPrefix []byte
}

// ReadPlan is a declarative inventory configuration. An empty antenna list
// means every physical port.
type ReadPlan struct {
	Antennas []int
	Protocol Protocol
	Filter   *TagFilter
	Op       *TagOp
}

const (
	maxFilterBytes = 62
	maxAntennaPort = 0xFF
)

// Validate checks the plan against the device capabilities.
func (p ReadPlan) Validate(caps Capabilities) error {
	limit := caps.antennaLimit()
	if len(p.Antennas) > 0 && limit == 0 {
		return fmt.Errorf("antenna list given but the port count of %s is unknown", fallbackModel(caps.Model))
	}
	seen := make(map[int]struct{}, len(p.Antennas))
	for _, ant := range p.Antennas {
		if ant < 1 || ant > maxAntennaPort || ant > limit {
			return fmt.Errorf("antenna %d outside 1..%d", ant, limit)
		}
		if _, dup := seen[ant]; dup {
			return fmt.Errorf("antenna %d listed twice", ant)
		}
		seen[ant] = struct{}{}
	}
	if !caps.SupportsProtocol(p.Protocol) {
		return fmt.Errorf("protocol %s not supported by %s", p.Protocol, caps.Model)
	}
	if p.Filter != nil {
		if len(p.Filter.EPCPrefix) == 0 {
			return fmt.Errorf("empty EPC filter")
		}
		if len(p.Filter.EPCPrefix) > maxFilterBytes {
			return fmt.Errorf("EPC filter longer than %d bytes", maxFilterBytes)
		}
	}
	if p.Op != nil {
		if err := p.Op.validate(); err != nil {
			return err
		}
	}
	return nil
}

func fallbackModel(model string) string {
	if model == "" {
		return "this device"
	}
	return model
}

func (op TagOp) validate() error {
	switch op.Kind {
	case OpRead, OpSecureRead:
		if len(op.Data) > 0 {
			return fmt.Errorf("%s op carries write data", op.Kind)
		}
	case OpWrite:
		if len(op.Data) == 0 || len(op.Data)%2 != 0 {
			return fmt.Errorf("write data must be a non-empty whole number of words")
		}
	default:
		return fmt.Errorf("unknown op kind %d", uint8(op.Kind))
	}
	if op.Bank > BankUser {
		return fmt.Errorf("unknown bank %d", uint8(op.Bank))
	}
	if op.WordLength < 0 || op.WordLength > 0xFF {
		return fmt.Errorf("word length %d out of range", op.WordLength)
	}
	return nil
}

func clonePlan(p ReadPlan) ReadPlan {
	out := p
	out.Antennas = append([]int(nil), p.Antennas...)
	if p.Filter != nil {
		f := TagFilter{EPCPrefix: append([]byte(nil), p.Filter.EPCPrefix...)}
		out.Filter = &f
	}
	if p.Op != nil {
		op := *p.Op
		op.Data = append([]byte(nil), p.Op.Data...)
		if p.Op.Auth != nil {
			auth := *p.Op.Auth
			op.Auth = &auth
		}
		out.Op = &op
	}
	return out
}

// normalizePlan fills in what the device needs but the caller may omit.
func normalizePlan(p ReadPlan, caps Capabilities) ReadPlan {
	p = clonePlan(p)
	if p.Op != nil && p.Op.WordLength == 0 && p.Op.Kind != OpWrite && !caps.fullBankRead {
		p.Op.WordLength = caps.defaultReadWords
	}
	return p
}

func planFields(p ReadPlan) tmr.PlanFields {
	fields := tmr.PlanFields{Protocol: byte(p.Protocol)}
	for _, ant := range p.Antennas {
		fields.Antennas = append(fields.Antennas, byte(ant))
	}
	if p.Filter != nil {
		fields.EPCPrefix = append([]byte(nil), p.Filter.EPCPrefix...)
	}
	if p.Op != nil {
		fields.OpKind = byte(p.Op.Kind)
		fields.Bank = byte(p.Op.Bank)
		fields.WordOffset = p.Op.WordOffset
		fields.WordLength = byte(p.Op.WordLength)
		if p.Op.Auth != nil {
			fields.Password = p.Op.Auth.Password
		}
		fields.WriteData = append([]byte(nil), p.Op.Data...)
	}
	return fields
}
