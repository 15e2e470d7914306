package sdk

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"rfid_session_go/internal/protocol/tmr"
)

func TestClassifyModel(t *testing.T) {
	cases := map[string]DeviceClass{
		"M6e":           ClassModuleFullRead,
		" m6e nano ":    ClassModule,
		"M7e Tera":      ClassModule,
		"M6e Micro":     ClassMicro,
		"M6e Micro USB": ClassMicroUSB,
		"M3e":           ClassHFLF,
		"Astra-EX":      ClassFixedReader,
		"Sargas":        ClassFixedReaderGated,
		"Vega":          ClassUnknown,
	}
	for model, want := range cases {
		if got := ClassifyModel(model, nil); got != want {
			t.Fatalf("%q: got %s want %s", model, got, want)
		}
	}
}

func TestResolveCapabilitiesDescriptor(t *testing.T) {
	hf := resolveCapabilities("M3e", "1.0", nil)
	if hf.RegionConfigurable() || hf.DefaultProtocol != ProtocolISO14443A {
		t.Fatalf("hf descriptor mismatch: %+v", hf)
	}
	fixed := resolveCapabilities("Mercury6", "4.1", nil)
	if fixed.dataLengthBits || !fixed.gpioSplit || fixed.RebootSettle() != 90*time.Second {
		t.Fatalf("fixed reader descriptor mismatch: %+v", fixed)
	}
	gated := resolveCapabilities("Sargas", "garbage", nil)
	if gated.antennaDetectKnown {
		t.Fatalf("unparseable version resolved antenna detection")
	}
}

func TestParseDeviceClass(t *testing.T) {
	for class, name := range classNames {
		got, err := ParseDeviceClass(name)
		if err != nil || got != class {
			t.Fatalf("%s: got %s %v", name, got, err)
		}
	}
	if _, err := ParseDeviceClass("toaster"); err == nil {
		t.Fatalf("unknown class accepted")
	}
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", statusError("read", tmr.StatusTagBufferFull))
	if !errors.Is(err, ErrTagBufferFull) {
		t.Fatalf("kind not matched through wrap")
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("matched wrong kind")
	}
	if !errors.Is(err, &Error{Kind: KindTagBufferFull, Code: tmr.StatusTagBufferFull}) {
		t.Fatalf("code not matched")
	}
	if errors.Is(err, &Error{Kind: KindTagBufferFull, Code: 1}) {
		t.Fatalf("matched wrong code")
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Fatalf("foreign error has a kind")
	}
	if KindOf(statusError("x", tmr.StatusInvalidOpcode)) != KindUnsupported {
		t.Fatalf("invalid opcode should map to unsupported")
	}
}

func TestPasswordTable(t *testing.T) {
	fn := PasswordTable(10, 20, 30)
	cred, ok := fn(TagIdentity{EPC: []byte{0xE2, 0x04}})
	if !ok || cred.Password != 20 {
		t.Fatalf("got %v %v", cred, ok)
	}
	if _, ok := PasswordTable()(TagIdentity{EPC: []byte{1}}); ok {
		t.Fatalf("empty table granted")
	}
	if _, ok := NewAuthBridge(nil, nopLogger()).Resolve(TagIdentity{}); ok {
		t.Fatalf("nil resolver granted")
	}
}
