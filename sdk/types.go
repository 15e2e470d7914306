package sdk

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"rfid_session_go/internal/protocol/tmr"
)

// Region is a regulatory frequency plan.
type Region uint8

const (
	RegionUnspecified  Region = 0
	RegionNA           Region = 1
	RegionEU           Region = 2
	RegionKR           Region = 3
	RegionIN           Region = 4
	RegionJP           Region = 5
	RegionPRC          Region = 6
	RegionEU2          Region = 7
	RegionEU3          Region = 8
	RegionKR2          Region = 9
	RegionPRC2         Region = 10
	RegionAU           Region = 11
	RegionNZ           Region = 12
	RegionNA2          Region = 13
	RegionNA3          Region = 14
	RegionIS           Region = 15
	RegionMY           Region = 16
	RegionID           Region = 17
	RegionPH           Region = 18
	RegionTW           Region = 19
	RegionMO           Region = 20
	RegionRU           Region = 21
	RegionSG           Region = 22
	RegionJP2          Region = 23
	RegionJP3          Region = 24
	RegionVN           Region = 25
	RegionTH           Region = 26
	RegionAR           Region = 27
	RegionHK           Region = 28
	RegionBD           Region = 29
	RegionEU4          Region = 30
	RegionUniversal    Region = 31
	RegionIS2          Region = 32
	RegionNA4          Region = 33
	RegionOpenExtended Region = 254
	RegionOpen         Region = 255
)

// MaxSupportedRegions caps the supported-region list read from a device.
const MaxSupportedRegions = 32

var regionNames = map[Region]string{
	RegionUnspecified: "UNSPEC", RegionNA: "NA", RegionEU: "EU", RegionKR: "KR",
	RegionIN: "IN", RegionJP: "JP", RegionPRC: "PRC", RegionEU2: "EU2",
	RegionEU3: "EU3", RegionKR2: "KR2", RegionPRC2: "PRC2", RegionAU: "AU",
	RegionNZ: "NZ", RegionNA2: "NA2", RegionNA3: "NA3", RegionIS: "IS",
	RegionMY: "MY", RegionID: "ID", RegionPH: "PH", RegionTW: "TW",
	RegionMO: "MO", RegionRU: "RU", RegionSG: "SG", RegionJP2: "JP2",
	RegionJP3: "JP3", RegionVN: "VN", RegionTH: "TH", RegionAR: "AR",
	RegionHK: "HK", RegionBD: "BD", RegionEU4: "EU4", RegionUniversal: "UNIVERSAL",
	RegionIS2: "IS2", RegionNA4: "NA4", RegionOpenExtended: "OPEN_EXTENDED",
	RegionOpen: "OPEN",
}

func (r Region) String() string {
	if name, ok := regionNames[r]; ok {
		return name
	}
	return fmt.Sprintf("REGION(%d)", uint8(r))
}

// ParseRegion accepts a region name such as "NA" or "eu2".
func ParseRegion(s string) (Region, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for r, name := range regionNames {
		if name == s {
			return r, nil
		}
	}
	return RegionUnspecified, fmt.Errorf("unknown region %q", s)
}

// Protocol is an air protocol.
type Protocol uint8

const (
	ProtocolNone Protocol = iota
	ProtocolGen2
	ProtocolISO180006B
	ProtocolISO180006BUcode
	ProtocolIPX64
	ProtocolIPX256
	ProtocolATA
	ProtocolISO14443A
	ProtocolISO14443B
	ProtocolISO15693
	ProtocolISO18092
	ProtocolFeliCa
	ProtocolISO180003M3
	ProtocolLF125kHz
	ProtocolLF134kHz
)

var protocolNames = []string{
	"NONE", "GEN2", "ISO180006B", "ISO180006B_UCODE", "IPX64", "IPX256", "ATA",
	"ISO14443A", "ISO14443B", "ISO15693", "ISO18092", "FELICA", "ISO18000_3M3",
	"LF125KHZ", "LF134KHZ",
}

func (p Protocol) String() string {
	if int(p) < len(protocolNames) {
		return protocolNames[p]
	}
	return fmt.Sprintf("PROTOCOL(%d)", uint8(p))
}

func ParseProtocol(s string) (Protocol, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range protocolNames {
		if name == s {
			return Protocol(i), nil
		}
	}
	return ProtocolNone, fmt.Errorf("unknown protocol %q", s)
}

// Bank is a tag memory bank.
type Bank uint8

const (
	BankReserved Bank = 0
	BankEPC      Bank = 1
	BankTID      Bank = 2
	BankUser     Bank = 3
)

func (b Bank) String() string {
	switch b {
	case BankReserved:
		return "RESERVED"
	case BankEPC:
		return "EPC"
	case BankTID:
		return "TID"
	case BankUser:
		return "USER"
	default:
		return fmt.Sprintf("BANK(%d)", uint8(b))
	}
}

func ParseBank(s string) (Bank, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RESERVED":
		return BankReserved, nil
	case "EPC":
		return BankEPC, nil
	case "TID":
		return BankTID, nil
	case "USER":
		return BankUser, nil
	}
	return 0, fmt.Errorf("unknown bank %q", s)
}

// MetadataFlag selects per-record fields reported by the device.
type MetadataFlag uint16

const (
	MetaReadCount  = MetadataFlag(tmr.FlagReadCount)
	MetaRSSI       = MetadataFlag(tmr.FlagRSSI)
	MetaAntennaID  = MetadataFlag(tmr.FlagAntennaID)
	MetaFrequency  = MetadataFlag(tmr.FlagFrequency)
	MetaTimestamp  = MetadataFlag(tmr.FlagTimestamp)
	MetaPhase      = MetadataFlag(tmr.FlagPhase)
	MetaProtocol   = MetadataFlag(tmr.FlagProtocol)
	MetaData       = MetadataFlag(tmr.FlagData)
	MetaGPIOStatus = MetadataFlag(tmr.FlagGPIOStatus)
	MetaGen2Q      = MetadataFlag(tmr.FlagGen2Q)
	MetaGen2LF     = MetadataFlag(tmr.FlagGen2LF)
	MetaGen2Target = MetadataFlag(tmr.FlagGen2Target)
	MetaBrandID    = MetadataFlag(tmr.FlagBrandID)
	MetaTagType    = MetadataFlag(tmr.FlagTagType)

	MetaNone MetadataFlag = 0
	MetaAll               = MetadataFlag(tmr.FlagAll)
)

var metadataNames = []struct {
	flag MetadataFlag
	name string
}{
	{MetaReadCount, "READCOUNT"}, {MetaRSSI, "RSSI"}, {MetaAntennaID, "ANTENNAID"},
	{MetaFrequency, "FREQUENCY"}, {MetaTimestamp, "TIMESTAMP"}, {MetaPhase, "PHASE"},
	{MetaProtocol, "PROTOCOL"}, {MetaData, "DATA"}, {MetaGPIOStatus, "GPIO_STATUS"},
	{MetaGen2Q, "GEN2_Q"}, {MetaGen2LF, "GEN2_LF"}, {MetaGen2Target, "GEN2_TARGET"},
	{MetaBrandID, "BRAND_IDENTIFIER"}, {MetaTagType, "TAGTYPE"},
}

func (m MetadataFlag) Has(flag MetadataFlag) bool {
	return m&flag == flag
}

func (m MetadataFlag) String() string {
	if m == MetaNone {
		return "NONE"
	}
	parts := make([]string, 0, 4)
	for _, entry := range metadataNames {
		if m.Has(entry.flag) {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseMetadata parses names like "RSSI", "ALL" or "NONE" into a mask.
func ParseMetadata(names []string) (MetadataFlag, error) {
	var mask MetadataFlag
	for _, raw := range names {
		name := strings.ToUpper(strings.TrimSpace(raw))
		switch name {
		case "", "NONE":
			continue
		case "ALL":
			mask |= MetaAll
			continue
		}
		found := false
		for _, entry := range metadataNames {
			if entry.name == name {
				mask |= entry.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown metadata flag %q", raw)
		}
	}
	return mask, nil
}

// Gen2Target is the inventoried-flag search target.
type Gen2Target uint8

const (
	TargetA Gen2Target = iota
	TargetB
	TargetAB
	TargetBA
)

func (t Gen2Target) String() string {
	switch t {
	case TargetA:
		return "A"
	case TargetB:
		return "B"
	case TargetAB:
		return "AB"
	case TargetBA:
		return "BA"
	default:
		return fmt.Sprintf("TARGET(%d)", uint8(t))
	}
}

// LinkFrequency is a Gen2 backscatter link frequency in kHz.
type LinkFrequency uint16

const (
	LinkFrequency250 LinkFrequency = 250
	LinkFrequency320 LinkFrequency = 320
	LinkFrequency640 LinkFrequency = 640
)

// GPIOPin is one pin state.
type GPIOPin struct {
	ID   int
	High bool
}

// GPIOStatus splits pin states by direction.
type GPIOStatus struct {
	Inputs  []GPIOPin
	Outputs []GPIOPin
}

// TagRecord is one decoded tag observation.
//
// Pointer fields are nil unless their flag is set in Metadata. OpErr is nil
// when the embedded operation succeeded or none was configured; otherwise it
// is an *Error of kind KindEmbeddedOpFailed or KindAuthDenied.
type TagRecord struct {
	EPC      []byte
	Metadata MetadataFlag

	ReadCount     *int
	RSSI          *int
	Antenna       *int
	FrequencyKHz  *uint32
	Timestamp     *time.Time
	Phase         *int
	Protocol      *Protocol
	Data          []byte
	GPIO          *GPIOStatus
	Gen2Q         *int
	LinkFrequency *LinkFrequency
	Target        *Gen2Target
	BrandID       *uint16
	TagType       *uint32

	Banks map[Bank][]byte
	OpErr error
}

func (r TagRecord) EPCHex() string {
	return strings.ToUpper(hex.EncodeToString(r.EPC))
}

// TagIdentity identifies the tag a credential is requested for.
type TagIdentity struct {
	EPC      []byte
	Protocol Protocol
	Antenna  int
}

// Credential is a Gen2 access password.
type Credential struct {
	Password uint32
}
