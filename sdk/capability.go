package sdk

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DeviceClass groups device models that behave the same way.
type DeviceClass int

const (
	ClassUnknown DeviceClass = iota
	ClassModule
	ClassModuleFullRead
	ClassMicro
	ClassMicroUSB
	ClassHFLF
	ClassFixedReader
	ClassFixedReaderGated
)

var classNames = map[DeviceClass]string{
	ClassUnknown:          "unknown",
	ClassModule:           "module",
	ClassModuleFullRead:   "module-full-read",
	ClassMicro:            "micro",
	ClassMicroUSB:         "micro-usb",
	ClassHFLF:             "hf-lf",
	ClassFixedReader:      "fixed-reader",
	ClassFixedReaderGated: "fixed-reader-gated",
}

func (c DeviceClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", int(c))
}

func ParseDeviceClass(s string) (DeviceClass, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for class, name := range classNames {
		if name == s {
			return class, nil
		}
	}
	return ClassUnknown, fmt.Errorf("unknown device class %q", s)
}

type detectMode int

const (
	detectUnknown detectMode = iota
	detectYes
	detectNo
	detectSinceVersion
)

// descriptor is the static behavior of one device class.
type descriptor struct {
	detect             detectMode
	detectSince        [2]int
	fullBankRead       bool
	defaultReadWords   int
	dataLengthBits     bool
	regionConfigurable bool
	gpioSplit          bool
	rebootSettle       time.Duration
	defaultProtocol    Protocol
	// antennaPorts is used when the device does not report its port count.
	antennaPorts       int
}

var descriptors = map[DeviceClass]descriptor{
	ClassUnknown: {
		detect: detectUnknown, defaultReadWords: 2, dataLengthBits: true,
		regionConfigurable: true, rebootSettle: 250 * time.Millisecond, defaultProtocol: ProtocolGen2,
	},
	ClassModule: {
		detect: detectNo, defaultReadWords: 2, dataLengthBits: true,
		regionConfigurable: true, rebootSettle: 250 * time.Millisecond, defaultProtocol: ProtocolGen2,
		antennaPorts: 4,
	},
	ClassModuleFullRead: {
		detect: detectYes, fullBankRead: true, defaultReadWords: 2, dataLengthBits: true,
		regionConfigurable: true, rebootSettle: 250 * time.Millisecond, defaultProtocol: ProtocolGen2,
		antennaPorts: 4,
	},
	ClassMicro: {
		detect: detectYes, fullBankRead: true, defaultReadWords: 2, dataLengthBits: true,
		regionConfigurable: true, rebootSettle: 250 * time.Millisecond, defaultProtocol: ProtocolGen2,
		antennaPorts: 2,
	},
	ClassMicroUSB: {
		detect: detectNo, defaultReadWords: 2, dataLengthBits: true,
		regionConfigurable: true, rebootSettle: 250 * time.Millisecond, defaultProtocol: ProtocolGen2,
		antennaPorts: 1,
	},
	ClassHFLF: {
		detect: detectUnknown, defaultReadWords: 2, dataLengthBits: true,
		regionConfigurable: false, rebootSettle: 250 * time.Millisecond, defaultProtocol: ProtocolISO14443A,
		antennaPorts: 1,
	},
	ClassFixedReader: {
		detect: detectYes, fullBankRead: true, defaultReadWords: 2,
		regionConfigurable: true, gpioSplit: true, rebootSettle: 90 * time.Second, defaultProtocol: ProtocolGen2,
		antennaPorts: 4,
	},
	ClassFixedReaderGated: {
		detect: detectSinceVersion, detectSince: [2]int{5, 3}, fullBankRead: true, defaultReadWords: 2,
		regionConfigurable: true, gpioSplit: true, rebootSettle: 90 * time.Second, defaultProtocol: ProtocolGen2,
		antennaPorts: 4,
	},
}

var modelClasses = map[string]DeviceClass{
	"m6e":              ClassModuleFullRead,
	"m6e prc":          ClassModuleFullRead,
	"m6e jic":          ClassModuleFullRead,
	"m6e nano":         ClassModule,
	"m7e pico":         ClassModule,
	"m7e deka":         ClassModule,
	"m7e tera":         ClassModule,
	"m6e micro":        ClassMicro,
	"m6e micro usb":    ClassMicroUSB,
	"m6e micro usbpro": ClassMicroUSB,
	"m3e":              ClassHFLF,
	"mercury6":         ClassFixedReader,
	"astra-ex":         ClassFixedReader,
	"izar":             ClassFixedReader,
	"sargas":           ClassFixedReaderGated,
}

// Capabilities is resolved once per connect from the identify response.
type Capabilities struct {
	Model           string
	Version         string
	Class           DeviceClass
	AntennaPorts    int
	Protocols       []Protocol
	DefaultProtocol Protocol

	antennaDetect      bool
	antennaDetectKnown bool
	fullBankRead       bool
	defaultReadWords   int
	dataLengthBits     bool
	regionConfigurable bool
	gpioSplit          bool
	rebootSettle       time.Duration
	fallbackPorts      int
}

// ClassifyModel maps a model string onto a device class. Aliases win over the
// built-in table.
func ClassifyModel(model string, aliases map[string]DeviceClass) DeviceClass {
	key := strings.ToLower(strings.TrimSpace(model))
	for alias, class := range aliases {
		if strings.ToLower(strings.TrimSpace(alias)) == key {
			return class
		}
	}
	if class, ok := modelClasses[key]; ok {
		return class
	}
	return ClassUnknown
}

func resolveCapabilities(model, version string, aliases map[string]DeviceClass) Capabilities {
	class := ClassifyModel(model, aliases)
	d := descriptors[class]
	caps := Capabilities{
		Model:              model,
		Version:            version,
		Class:              class,
		DefaultProtocol:    d.defaultProtocol,
		fullBankRead:       d.fullBankRead,
		defaultReadWords:   d.defaultReadWords,
		dataLengthBits:     d.dataLengthBits,
		regionConfigurable: d.regionConfigurable,
		gpioSplit:          d.gpioSplit,
		rebootSettle:       d.rebootSettle,
		fallbackPorts:      d.antennaPorts,
	}
	switch d.detect {
	case detectYes:
		caps.antennaDetect, caps.antennaDetectKnown = true, true
	case detectNo:
		caps.antennaDetect, caps.antennaDetectKnown = false, true
	case detectSinceVersion:
		major, minor, ok := parseVersion(version)
		if ok {
			caps.antennaDetectKnown = true
			caps.antennaDetect = major > d.detectSince[0] ||
				(major == d.detectSince[0] && minor >= d.detectSince[1])
		}
	}
	return caps
}

// antennaLimit is the highest usable port: the reported count, else the
// class default. Zero means unknown.
func (c Capabilities) antennaLimit() int {
	if c.AntennaPorts > 0 {
		return c.AntennaPorts
	}
	return c.fallbackPorts
}

func (c Capabilities) SupportsProtocol(p Protocol) bool {
	if len(c.Protocols) == 0 {
		return p == c.DefaultProtocol
	}
	for _, candidate := range c.Protocols {
		if candidate == p {
			return true
		}
	}
	return false
}

func (c Capabilities) RegionConfigurable() bool {
	return c.regionConfigurable
}

func (c Capabilities) RebootSettle() time.Duration {
	return c.rebootSettle
}

// parseVersion reads major.minor from strings like "5.3.2.97".
func parseVersion(v string) (int, int, bool) {
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
