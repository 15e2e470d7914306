package sdk

import (
	"context"
	"fmt"

	"rfid_session_go/internal/protocol/tmr"
)

func (s *Session) Region() Region {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.region
}

func (s *Session) Protocol() Protocol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocol
}

func (s *Session) Metadata() MetadataFlag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

// ReadPlan returns the committed plan, if any.
func (s *Session) ReadPlan() (ReadPlan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.plan == nil {
		return ReadPlan{}, false
	}
	return clonePlan(*s.plan), true
}

// NegotiateRegion keeps a configured region. An unset region is replaced by
// the first region the device supports.
func (s *Session) NegotiateRegion(ctx context.Context) (Region, error) {
	if err := s.acquireConnected("negotiate region"); err != nil {
		return RegionUnspecified, err
	}
	defer s.release()

	if !s.Capabilities().regionConfigurable {
		return RegionUnspecified, &Error{Kind: KindUnsupported, Op: "negotiate region", Err: fmt.Errorf("device has no configurable region")}
	}

	raw, err := s.getParam(ctx, tmr.ParamRegion)
	if err != nil {
		return RegionUnspecified, err
	}
	current := RegionUnspecified
	if len(raw) > 0 {
		current = Region(raw[0])
	}
	if current != RegionUnspecified {
		s.mu.Lock()
		s.region = current
		s.mu.Unlock()
		return current, nil
	}

	supported, err := s.supportedRegions(ctx)
	if err != nil {
		return RegionUnspecified, err
	}
	if len(supported) == 0 {
		return RegionUnspecified, &Error{Kind: KindNoSupportedRegion, Op: "negotiate region"}
	}
	chosen := supported[0]
	if err := s.setParam(ctx, tmr.ParamRegion, []byte{byte(chosen)}); err != nil {
		return RegionUnspecified, err
	}
	s.mu.Lock()
	s.region = chosen
	s.mu.Unlock()
	s.log.Info().Str("region", chosen.String()).Msg("region committed")
	return chosen, nil
}

// SupportedRegions lists at most MaxSupportedRegions regions.
func (s *Session) SupportedRegions(ctx context.Context) ([]Region, error) {
	if err := s.acquireConnected("supported regions"); err != nil {
		return nil, err
	}
	defer s.release()
	return s.supportedRegions(ctx)
}

func (s *Session) supportedRegions(ctx context.Context) ([]Region, error) {
	raw, err := s.getParam(ctx, tmr.ParamSupportedRegions)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	count := int(raw[0])
	list := raw[1:]
	if count > len(list) {
		count = len(list)
	}
	if count > MaxSupportedRegions {
		count = MaxSupportedRegions
	}
	regions := make([]Region, 0, count)
	for _, code := range list[:count] {
		regions = append(regions, Region(code))
	}
	return regions, nil
}

func (s *Session) SetRegion(ctx context.Context, region Region) error {
	if err := s.acquireConnected("set region"); err != nil {
		return err
	}
	defer s.release()
	if region == RegionUnspecified {
		return &Error{Kind: KindUnsupported, Op: "set region", Err: fmt.Errorf("cannot set %s", region)}
	}
	if err := s.setParam(ctx, tmr.ParamRegion, []byte{byte(region)}); err != nil {
		return err
	}
	s.mu.Lock()
	s.region = region
	s.mu.Unlock()
	return nil
}

// AntennaDetection reports whether the device can detect connected antennas.
func (s *Session) AntennaDetection() (bool, error) {
	if s.State() != StateConnected {
		return false, &Error{Kind: KindNotConnected, Op: "antenna detection"}
	}
	caps := s.Capabilities()
	if !caps.antennaDetectKnown {
		return false, &Error{Kind: KindUnsupported, Op: "antenna detection", Err: fmt.Errorf("model %q version %q", caps.Model, caps.Version)}
	}
	return caps.antennaDetect, nil
}

// CommitReadPlan validates the plan and makes it the active one. A rejected
// plan leaves the session untouched.
func (s *Session) CommitReadPlan(ctx context.Context, plan ReadPlan) error {
	if err := s.acquireConnected("commit read plan"); err != nil {
		return err
	}
	defer s.release()

	caps := s.Capabilities()
	if err := plan.Validate(caps); err != nil {
		return newError(KindInvalidPlan, "commit read plan", err)
	}
	plan = normalizePlan(plan, caps)

	// Embedded op results ride in the data field.
	if metadata := s.Metadata(); plan.Op != nil && !metadata.Has(MetaData) {
		if err := s.writeMetadata(ctx, metadata|MetaData); err != nil {
			return err
		}
	}
	if _, err := s.call(ctx, "commit read plan", tmr.OpSetReadPlan, tmr.EncodePlan(planFields(plan)), s.opts.commandTimeout); err != nil {
		return err
	}
	s.mu.Lock()
	s.plan = &plan
	s.protocol = plan.Protocol
	s.mu.Unlock()
	s.log.Info().
		Ints("antennas", plan.Antennas).
		Str("protocol", plan.Protocol.String()).
		Bool("op", plan.Op != nil).
		Msg("read plan committed")
	return nil
}

// SetMetadata selects which per-record fields the device reports. Protocol
// is always reported, and so is data while the plan carries an embedded op.
func (s *Session) SetMetadata(ctx context.Context, mask MetadataFlag) error {
	if err := s.acquireConnected("set metadata"); err != nil {
		return err
	}
	defer s.release()
	mask |= MetaProtocol
	if plan, _, _ := s.committedPlan(); plan != nil && plan.Op != nil {
		mask |= MetaData
	}
	return s.writeMetadata(ctx, mask)
}

func (s *Session) writeMetadata(ctx context.Context, mask MetadataFlag) error {
	if err := s.setParam(ctx, tmr.ParamMetadata, tmr.AppendU16(nil, uint16(mask))); err != nil {
		return err
	}
	s.mu.Lock()
	s.metadata = mask
	s.mu.Unlock()
	return nil
}

// ReadPower returns the global read power in centi-dBm.
func (s *Session) ReadPower(ctx context.Context) (int, error) {
	if err := s.acquireConnected("read power"); err != nil {
		return 0, err
	}
	defer s.release()
	raw, err := s.getParam(ctx, tmr.ParamReadPower)
	if err != nil {
		return 0, err
	}
	if len(raw) < 2 {
		return 0, &Error{Kind: KindDevice, Op: "read power", Err: tmr.ErrShort}
	}
	return int(int16(uint16(raw[0])<<8 | uint16(raw[1]))), nil
}

func (s *Session) SetReadPower(ctx context.Context, centiDBm int) error {
	if err := s.acquireConnected("set read power"); err != nil {
		return err
	}
	defer s.release()
	return s.setParam(ctx, tmr.ParamReadPower, tmr.AppendU16(nil, uint16(int16(centiDBm))))
}

// PortPower is the read power of one antenna port in centi-dBm.
type PortPower struct {
	Port     int
	CentiDBm int
}

func (s *Session) PortReadPowers(ctx context.Context) ([]PortPower, error) {
	if err := s.acquireConnected("port read power"); err != nil {
		return nil, err
	}
	defer s.release()
	raw, err := s.getParam(ctx, tmr.ParamPortReadPower)
	if err != nil {
		return nil, err
	}
	c := tmr.NewCursor(raw)
	n, err := c.U8()
	if err != nil {
		return nil, nil
	}
	out := make([]PortPower, 0, n)
	for i := 0; i < int(n); i++ {
		port, err := c.U8()
		if err != nil {
			return nil, &Error{Kind: KindDevice, Op: "port read power", Err: err}
		}
		power, err := c.U16()
		if err != nil {
			return nil, &Error{Kind: KindDevice, Op: "port read power", Err: err}
		}
		out = append(out, PortPower{Port: int(port), CentiDBm: int(int16(power))})
	}
	return out, nil
}

func (s *Session) SetPortReadPowers(ctx context.Context, powers []PortPower) error {
	if err := s.acquireConnected("set port read power"); err != nil {
		return err
	}
	defer s.release()
	ports := s.Capabilities().AntennaPorts
	value := []byte{byte(len(powers))}
	for _, p := range powers {
		if p.Port < 1 || (ports > 0 && p.Port > ports) {
			return &Error{Kind: KindInvalidPlan, Op: "set port read power", Err: fmt.Errorf("antenna %d outside 1..%d", p.Port, ports)}
		}
		value = append(value, byte(p.Port))
		value = tmr.AppendU16(value, uint16(int16(p.CentiDBm)))
	}
	return s.setParam(ctx, tmr.ParamPortReadPower, value)
}

func (s *Session) SetGen2Target(ctx context.Context, target Gen2Target) error {
	if err := s.acquireConnected("set gen2 target"); err != nil {
		return err
	}
	defer s.release()
	if target > TargetBA {
		return &Error{Kind: KindUnsupported, Op: "set gen2 target", Err: fmt.Errorf("target %s", target)}
	}
	return s.setParam(ctx, tmr.ParamGen2Target, []byte{byte(target)})
}

// ReturnLoss is the measured return loss of one antenna port in dB.
type ReturnLoss struct {
	Port int
	DB   int
}

func (s *Session) AntennaReturnLoss(ctx context.Context) ([]ReturnLoss, error) {
	if err := s.acquireConnected("antenna return loss"); err != nil {
		return nil, err
	}
	defer s.release()
	raw, err := s.getParam(ctx, tmr.ParamReturnLoss)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	count := int(raw[0])
	pairs := raw[1:]
	if len(pairs) < count*2 {
		return nil, &Error{Kind: KindDevice, Op: "antenna return loss", Err: tmr.ErrShort}
	}
	out := make([]ReturnLoss, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, ReturnLoss{Port: int(pairs[i*2]), DB: int(pairs[i*2+1])})
	}
	return out, nil
}

// UserConfigOp is a one-shot persistence action on device settings.
type UserConfigOp byte

const (
	UserConfigSave    = UserConfigOp(tmr.UserConfigSave)
	UserConfigRestore = UserConfigOp(tmr.UserConfigRestore)
	UserConfigVerify  = UserConfigOp(tmr.UserConfigVerify)
	UserConfigClear   = UserConfigOp(tmr.UserConfigClear)
)

func (op UserConfigOp) String() string {
	switch op {
	case UserConfigSave:
		return "save"
	case UserConfigRestore:
		return "restore"
	case UserConfigVerify:
		return "verify"
	case UserConfigClear:
		return "clear"
	default:
		return fmt.Sprintf("userconfig(%d)", byte(op))
	}
}

// UserConfig saves, restores, verifies or clears device settings. Restore
// reloads region and metadata since they may have changed.
func (s *Session) UserConfig(ctx context.Context, op UserConfigOp) error {
	if err := s.acquireConnected("user config"); err != nil {
		return err
	}
	defer s.release()
	if op < UserConfigSave || op > UserConfigClear {
		return &Error{Kind: KindUnsupported, Op: "user config", Err: fmt.Errorf("operation %s", op)}
	}
	if _, err := s.call(ctx, "user config "+op.String(), tmr.OpUserConfig, []byte{byte(op)}, s.opts.commandTimeout); err != nil {
		return err
	}
	if op == UserConfigRestore {
		caps := s.Capabilities()
		if err := s.loadDeviceState(ctx, &caps); err != nil {
			return newError(KindDevice, "user config restore", err)
		}
	}
	s.log.Info().Str("op", op.String()).Msg("user config applied")
	return nil
}
