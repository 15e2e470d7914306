package simulator

import (
	"context"
	"errors"
	"os"
	"testing"

	"rfid_session_go/internal/protocol/tmr"
)

func command(t *testing.T, d *Device, opcode byte, data []byte) tmr.Frame {
	t.Helper()
	packet, err := tmr.Command(opcode, data)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := d.Send(packet); err != nil {
		t.Fatalf("send: %v", err)
	}
	raw, err := d.Receive(0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	frames, _ := tmr.ParseFrames(raw)
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(frames))
	}
	return frames[0]
}

func TestIdentify(t *testing.T) {
	d := New(Config{Model: "Izar", Version: "4.1.0"})
	if err := d.Open(context.Background(), "sim://"); err != nil {
		t.Fatalf("open: %v", err)
	}
	frame := command(t, d, tmr.OpVersion, nil)
	c := tmr.NewCursor(frame.Data)
	model, _ := c.String()
	version, _ := c.String()
	if model != "Izar" || version != "4.1.0" {
		t.Fatalf("identify: %q %q", model, version)
	}
	if d.Identifies() != 1 {
		t.Fatalf("identifies: %d", d.Identifies())
	}
}

func TestWrongBaudIsSilent(t *testing.T) {
	d := New(Config{Serial: true, BaudRate: 9600})
	_ = d.SetBaudRate(115200)
	_ = d.Open(context.Background(), "sim://")
	packet, _ := tmr.Command(tmr.OpVersion, nil)
	if err := d.Send(packet); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := d.Receive(0); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("expected silence, got %v", err)
	}
	if d.Identifies() != 1 {
		t.Fatalf("garbled identify not counted")
	}
	_ = d.SetBaudRate(9600)
	if frame := command(t, d, tmr.OpVersion, nil); frame.Status != tmr.StatusOK {
		t.Fatalf("status at right baud: %04X", frame.Status)
	}
}

func TestReadAndFetchBatches(t *testing.T) {
	tags := make([]Tag, 30)
	for i := range tags {
		tags[i] = Tag{EPC: []byte{0xE2, byte(i)}}
	}
	d := New(Config{Cycles: []Cycle{{Tags: tags}}})
	_ = d.Open(context.Background(), "sim://")

	frame := command(t, d, tmr.OpReadTags, tmr.AppendU32(nil, 10))
	if frame.Status != tmr.StatusOK {
		t.Fatalf("read status %04X", frame.Status)
	}
	if n, _ := tmr.NewCursor(frame.Data).U32(); n != 30 {
		t.Fatalf("count %d", n)
	}

	total, batches := 0, 0
	for {
		frame := command(t, d, tmr.OpFetchTags, nil)
		if frame.Data[0] == 0 {
			break
		}
		total += int(frame.Data[0])
		batches++
	}
	if total != 30 || batches < 2 {
		t.Fatalf("fetched %d tags in %d batches", total, batches)
	}
}

func TestUnsupportedParam(t *testing.T) {
	d := New(Config{Unsupported: []byte{tmr.ParamReturnLoss}})
	_ = d.Open(context.Background(), "sim://")
	if frame := command(t, d, tmr.OpGetParam, []byte{tmr.ParamReturnLoss}); frame.Status != tmr.StatusUnsupported {
		t.Fatalf("status %04X", frame.Status)
	}
	if frame := command(t, d, 0x77, nil); frame.Status != tmr.StatusInvalidOpcode {
		t.Fatalf("unknown opcode status %04X", frame.Status)
	}
}

func TestClosedDevice(t *testing.T) {
	d := New(Config{})
	if err := d.Send([]byte{0xFF}); err == nil {
		t.Fatalf("send before open succeeded")
	}
	if _, err := d.Receive(0); err == nil {
		t.Fatalf("receive before open succeeded")
	}
}

func TestDemoGenerator(t *testing.T) {
	cfg := Demo()
	if cfg.Generator == nil || !cfg.RealTime {
		t.Fatalf("demo config incomplete")
	}
	if cycle := cfg.Generator(1); len(cycle.Tags) == 0 {
		t.Fatalf("demo cycle empty")
	}
}
