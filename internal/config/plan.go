package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"rfid_session_go/sdk"
)

// PlanFile is the YAML form of a read plan:
//
//	antennas: [1, 2]
//	protocol: GEN2
//	filter:
//	  epc_prefix: "E200"
//	op:
//	  kind: secure-read
//	  bank: user
//	  word_offset: 0
//	  word_length: 4
//	  password: 0x12345678   # optional access password
type PlanFile struct {
	Antennas []int       `yaml:"antennas"`
	Protocol string      `yaml:"protocol"`
	Filter   *FilterFile `yaml:"filter"`
	Op       *OpFile     `yaml:"op"`
}

type FilterFile struct {
	EPCPrefix string `yaml:"epc_prefix"`
}

type OpFile struct {
	Kind       string  `yaml:"kind"`
	Bank       string  `yaml:"bank"`
	WordOffset uint32  `yaml:"word_offset"`
	WordLength int     `yaml:"word_length"`
	Password   *uint32 `yaml:"password"`
	Data       string  `yaml:"data"`
}

// DefaultPlan reads Gen2 on every antenna.
func DefaultPlan() sdk.ReadPlan {
	return sdk.ReadPlan{Protocol: sdk.ProtocolGen2}
}

// LoadPlan decodes a plan file. Unknown keys are rejected so typos do not
// silently widen an inventory. An empty path yields DefaultPlan.
func LoadPlan(path string) (sdk.ReadPlan, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPlan(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return sdk.ReadPlan{}, fmt.Errorf("read plan file: %w", err)
	}
	return ParsePlan(data)
}

func ParsePlan(data []byte) (sdk.ReadPlan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var raw PlanFile
	if err := dec.Decode(&raw); err != nil {
		return sdk.ReadPlan{}, fmt.Errorf("decode plan file: %w", err)
	}
	return raw.Plan()
}

func (f PlanFile) Plan() (sdk.ReadPlan, error) {
	plan := DefaultPlan()
	plan.Antennas = append([]int(nil), f.Antennas...)
	if f.Protocol != "" {
		p, err := sdk.ParseProtocol(f.Protocol)
		if err != nil {
			return sdk.ReadPlan{}, err
		}
		plan.Protocol = p
	}
	if f.Filter != nil {
		prefix, err := hex.DecodeString(strings.TrimSpace(f.Filter.EPCPrefix))
		if err != nil {
			return sdk.ReadPlan{}, fmt.Errorf("filter epc_prefix: %w", err)
		}
		plan.Filter = &sdk.TagFilter{EPCPrefix: prefix}
	}
	if f.Op != nil {
		op, err := f.Op.tagOp()
		if err != nil {
			return sdk.ReadPlan{}, err
		}
		plan.Op = &op
	}
	return plan, nil
}

func (o OpFile) tagOp() (sdk.TagOp, error) {
	op := sdk.TagOp{
		WordOffset: o.WordOffset,
		WordLength: o.WordLength,
	}
	if o.Password != nil {
		op.Auth = &sdk.Credential{Password: *o.Password}
	}
	switch strings.ToLower(strings.TrimSpace(o.Kind)) {
	case "read":
		op.Kind = sdk.OpRead
	case "secure-read", "secure_read":
		op.Kind = sdk.OpSecureRead
	case "write":
		op.Kind = sdk.OpWrite
	default:
		return sdk.TagOp{}, fmt.Errorf("op kind %q: want read, secure-read or write", o.Kind)
	}
	bank, err := sdk.ParseBank(o.Bank)
	if err != nil {
		return sdk.TagOp{}, fmt.Errorf("op bank: %w", err)
	}
	op.Bank = bank
	if o.Data != "" {
		data, err := hex.DecodeString(strings.TrimSpace(o.Data))
		if err != nil {
			return sdk.TagOp{}, fmt.Errorf("op data: %w", err)
		}
		op.Data = data
	}
	return op, nil
}
