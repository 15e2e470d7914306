package sdk

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"rfid_session_go/internal/protocol/tmr"
	"rfid_session_go/internal/simulator"
)

func simTags(first, n int) []simulator.Tag {
	tags := make([]simulator.Tag, 0, n)
	for i := first; i < first+n; i++ {
		tags = append(tags, simulator.Tag{EPC: epc(0x10, byte(i)), RSSI: -50, Data: []byte{0xCA, 0xFE, byte(i), 0}})
	}
	return tags
}

func TestReadSyncRequiresPlan(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{})
	if _, err := s.ReadSync(context.Background(), 10*time.Millisecond); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected InvalidPlan, got %v", err)
	}
}

func TestReadSyncBeforeConnect(t *testing.T) {
	s := NewSession(simulator.New(simulator.Config{}))
	if _, err := s.ReadSync(context.Background(), 10*time.Millisecond); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected NotConnected, got %v", err)
	}
}

func TestReadSyncBufferFullDrainsEverything(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{Cycles: []simulator.Cycle{
		{Tags: simTags(0, 10), BufferFull: true},
		{Tags: simTags(10, 5)},
	}})
	commitDefault(t, s)

	first, err := s.ReadSync(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if !first.BufferFull || len(first.Tags) != 10 {
		t.Fatalf("first read: full=%v tags=%d", first.BufferFull, len(first.Tags))
	}
	second, err := s.ReadSync(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if second.BufferFull || len(second.Tags) != 5 {
		t.Fatalf("second read: full=%v tags=%d", second.BufferFull, len(second.Tags))
	}

	seen := make(map[string]struct{})
	for _, tag := range append(first.Tags, second.Tags...) {
		seen[tag.EPCHex()] = struct{}{}
	}
	if len(seen) != 15 {
		t.Fatalf("expected 15 distinct tags, got %d", len(seen))
	}
}

func TestReadSyncNoTags(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{})
	commitDefault(t, s)
	res, err := s.ReadSync(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Tags) != 0 || res.BufferFull {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestReadSyncDeviceStatusError(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{Cycles: []simulator.Cycle{{Status: tmr.StatusTempTooHigh}}})
	commitDefault(t, s)
	_, err := s.ReadSync(context.Background(), 10*time.Millisecond)
	var sessErr *Error
	if !errors.As(err, &sessErr) || sessErr.Kind != KindDevice || sessErr.Code != tmr.StatusTempTooHigh {
		t.Fatalf("expected device error with status, got %v", err)
	}
	if _, err := s.ReadSync(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("session unusable after device error: %v", err)
	}
}

func TestReadSyncTimestampsFromClock(t *testing.T) {
	clock := &fakeClock{now: 1_700_000_000_000}
	s, _ := connectSim(t, simulator.Config{Cycles: []simulator.Cycle{{Tags: simTags(0, 3)}}}, WithClock(clock))
	commitDefault(t, s)
	res, err := s.ReadSync(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i, tag := range res.Tags {
		want := time.UnixMilli(int64(1_700_000_000_000 + i))
		if tag.Timestamp == nil || !tag.Timestamp.Equal(want) {
			t.Fatalf("tag %d timestamp %v want %v", i, tag.Timestamp, want)
		}
	}
}

func TestEmbeddedReadFailureIsPerTag(t *testing.T) {
	tags := simTags(0, 3)
	tags[1].OpError = tmr.Gen2ErrMemoryLocked
	s, _ := connectSim(t, simulator.Config{Cycles: []simulator.Cycle{{Tags: tags}}})
	if err := s.CommitReadPlan(context.Background(), ReadPlan{
		Protocol: ProtocolGen2,
		Op:       &TagOp{Kind: OpRead, Bank: BankUser},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	res, err := s.ReadSync(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Tags) != 3 {
		t.Fatalf("expected 3 tags, got %d", len(res.Tags))
	}
	for i, tag := range res.Tags {
		if i == 1 {
			if !errors.Is(tag.OpErr, ErrEmbeddedOpFailed) || tag.Banks != nil {
				t.Fatalf("failed tag: err=%v banks=%v", tag.OpErr, tag.Banks)
			}
			continue
		}
		if tag.OpErr != nil {
			t.Fatalf("tag %d: unexpected error %v", i, tag.OpErr)
		}
		if !bytes.Equal(tag.Banks[BankUser], tags[i].Data) {
			t.Fatalf("tag %d: bank %X want %X", i, tag.Banks[BankUser], tags[i].Data)
		}
	}
}

func TestEmbeddedReadWindowOnPartialReadDevice(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{Model: "M6e Nano", Cycles: []simulator.Cycle{{Tags: simTags(0, 1)}}})
	if err := s.CommitReadPlan(context.Background(), ReadPlan{
		Protocol: ProtocolGen2,
		Op:       &TagOp{Kind: OpRead, Bank: BankUser, WordOffset: 1},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	res, err := s.ReadSync(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Tags) != 1 || !bytes.Equal(res.Tags[0].Banks[BankUser], []byte{0, 0}) {
		t.Fatalf("window mismatch: %+v", res.Tags)
	}
}

func secureTags() []simulator.Tag {
	return []simulator.Tag{
		{EPC: epc(0x20, 0x01), Data: []byte{0x11, 0x11}, Password: 0x1111},
		{EPC: epc(0x20, 0x02), Data: []byte{0x22, 0x22}, Password: 0xDEAD},
		{EPC: epc(0x20, 0x03), Data: []byte{0x33, 0x33}},
	}
}

func commitSecure(t *testing.T, s *Session) {
	t.Helper()
	if err := s.CommitReadPlan(context.Background(), ReadPlan{
		Protocol: ProtocolGen2,
		Op:       &TagOp{Kind: OpSecureRead, Bank: BankUser},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestSecureReadWithResolver(t *testing.T) {
	var asked []TagIdentity
	table := PasswordTable(0, 0x1111, 0x2222)
	resolver := func(id TagIdentity) (Credential, bool) {
		asked = append(asked, id)
		return table(id)
	}
	s, _ := connectSim(t, simulator.Config{Cycles: []simulator.Cycle{{Tags: secureTags()}}},
		WithCredentialResolver(resolver))
	commitSecure(t, s)

	res, err := s.ReadSync(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Tags) != 3 {
		t.Fatalf("expected 3 tags, got %d", len(res.Tags))
	}
	if len(asked) != 2 || !bytes.Equal(asked[0].EPC, epc(0x20, 0x01)) {
		t.Fatalf("resolver calls mismatch: %+v", asked)
	}

	byEPC := make(map[string]TagRecord)
	for _, tag := range res.Tags {
		byEPC[tag.EPCHex()] = tag
	}
	granted := byEPC["E2002001"]
	if granted.OpErr != nil || !bytes.Equal(granted.Banks[BankUser], []byte{0x11, 0x11}) {
		t.Fatalf("granted tag: err=%v banks=%v", granted.OpErr, granted.Banks)
	}
	wrong := byEPC["E2002002"]
	var opErr *Error
	if !errors.As(wrong.OpErr, &opErr) || opErr.Kind != KindEmbeddedOpFailed || opErr.Code != tmr.Gen2ErrAccessDenied {
		t.Fatalf("wrong password tag: %v", wrong.OpErr)
	}
	open := byEPC["E2002003"]
	if open.OpErr != nil || !bytes.Equal(open.Banks[BankUser], []byte{0x33, 0x33}) {
		t.Fatalf("unprotected tag: err=%v banks=%v", open.OpErr, open.Banks)
	}
}

func TestSecureReadWithoutResolverDenies(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{Cycles: []simulator.Cycle{{Tags: secureTags()}}})
	commitSecure(t, s)

	res, err := s.ReadSync(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	denied := 0
	for _, tag := range res.Tags {
		if errors.Is(tag.OpErr, ErrAuthDenied) {
			denied++
			if tag.Banks != nil {
				t.Fatalf("denied tag carries bank data")
			}
		}
	}
	if denied != 2 || len(res.Tags) != 3 {
		t.Fatalf("denied=%d tags=%d", denied, len(res.Tags))
	}
}

func TestSetCredentialResolverBetweenReads(t *testing.T) {
	s, _ := connectSim(t, simulator.Config{Generator: func(n int) simulator.Cycle {
		return simulator.Cycle{Tags: secureTags()[:1]}
	}})
	commitSecure(t, s)

	res, err := s.ReadSync(context.Background(), 10*time.Millisecond)
	if err != nil || !errors.Is(res.Tags[0].OpErr, ErrAuthDenied) {
		t.Fatalf("expected denial before resolver: %v %v", err, res.Tags)
	}
	if err := s.SetCredentialResolver(PasswordTable(0, 0x1111)); err != nil {
		t.Fatalf("set resolver: %v", err)
	}
	res, err = s.ReadSync(context.Background(), 10*time.Millisecond)
	if err != nil || res.Tags[0].OpErr != nil {
		t.Fatalf("expected grant after resolver: %v %v", err, res.Tags)
	}
}

func TestFilterLimitsTags(t *testing.T) {
	tags := append(simTags(0, 2), simulator.Tag{EPC: []byte{0x30, 0x00, 0x01}})
	s, _ := connectSim(t, simulator.Config{Cycles: []simulator.Cycle{{Tags: tags}}})
	if err := s.CommitReadPlan(context.Background(), ReadPlan{
		Protocol: ProtocolGen2,
		Filter:   &TagFilter{EPCPrefix: []byte{0xE2}},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	res, err := s.ReadSync(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Tags) != 2 {
		t.Fatalf("filter not applied: %d tags", len(res.Tags))
	}
}

func TestReadSyncPacesThermalGuard(t *testing.T) {
	clock := &fakeClock{}
	s, _ := connectSim(t, simulator.Config{Cycles: []simulator.Cycle{{Tags: simTags(0, 6)}}},
		WithClock(clock),
		WithThermal(ThermalConfig{Window: 4, Threshold: 5, Cooldown: 30 * time.Millisecond}),
	)
	commitDefault(t, s)
	if _, err := s.ReadSync(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("read: %v", err)
	}
	if s.Thermal().Cooldowns() != 1 {
		t.Fatalf("expected one cooldown, got %d", s.Thermal().Cooldowns())
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 30 {
		t.Fatalf("cooldown sleeps: %v", sleeps)
	}
}

func TestEmbeddedOpForcesDataMetadata(t *testing.T) {
	tags := simTags(0, 2)
	tags[0].OpError = tmr.Gen2ErrMemoryLocked
	s, _ := connectSim(t, simulator.Config{Cycles: []simulator.Cycle{{Tags: tags}}})
	if err := s.SetMetadata(context.Background(), MetaRSSI); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	if s.Metadata().Has(MetaData) {
		t.Fatalf("data requested without an op")
	}
	if err := s.CommitReadPlan(context.Background(), ReadPlan{
		Protocol: ProtocolGen2,
		Op:       &TagOp{Kind: OpRead, Bank: BankUser},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !s.Metadata().Has(MetaData) {
		t.Fatalf("commit with op left data metadata off")
	}
	if err := s.SetMetadata(context.Background(), MetaRSSI); err != nil {
		t.Fatalf("set metadata again: %v", err)
	}
	if !s.Metadata().Has(MetaData) {
		t.Fatalf("set metadata dropped data while an op is committed")
	}

	res, err := s.ReadSync(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Tags) != 2 || !errors.Is(res.Tags[0].OpErr, ErrEmbeddedOpFailed) {
		t.Fatalf("op failure not reported: %+v", res.Tags)
	}
	if res.Tags[1].OpErr != nil {
		t.Fatalf("healthy tag reported %v", res.Tags[1].OpErr)
	}
}
