package sdk

import (
	"context"
	"fmt"
	"time"

	"rfid_session_go/internal/protocol/tmr"
)

// ReadResult is the outcome of one synchronous read. BufferFull means the
// device ran out of buffer space during the cycle; every buffered record was
// still drained and returned, and the caller may simply read again.
type ReadResult struct {
	Tags       []TagRecord
	BufferFull bool
}

// ReadSync runs inventory for d against the committed plan and drains the
// device buffer.
func (s *Session) ReadSync(ctx context.Context, d time.Duration) (ReadResult, error) {
	if err := s.acquireConnected("read"); err != nil {
		return ReadResult{}, err
	}
	defer s.release()

	tags, full, err := s.readCycle(ctx, d)
	if err != nil {
		return ReadResult{Tags: tags}, err
	}
	s.thermal.Pace(len(tags))
	return ReadResult{Tags: tags, BufferFull: full}, nil
}

func (s *Session) committedPlan() (*ReadPlan, Capabilities, MetadataFlag) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan, s.caps, s.metadata
}

// readCycle runs one search and drains its results. Callers hold busy.
func (s *Session) readCycle(ctx context.Context, d time.Duration) ([]TagRecord, bool, error) {
	plan, caps, metadata := s.committedPlan()
	if plan == nil {
		return nil, false, &Error{Kind: KindInvalidPlan, Op: "read", Err: fmt.Errorf("no read plan committed")}
	}
	s.stats.beginCycle()

	base := s.opts.clock.NowMillis()
	frame, err := s.exchange(ctx, "read", tmr.OpReadTags, tmr.AppendU32(nil, uint32(millis(d))), d+s.opts.commandTimeout)
	if err != nil {
		return nil, false, err
	}

	full := false
	switch frame.Status {
	case tmr.StatusOK, tmr.StatusNoTagsFound:
	case tmr.StatusTagBufferFull:
		full = true
		s.log.Debug().Msg("tag buffer full, draining")
	default:
		return nil, false, statusError("read", frame.Status)
	}

	opts := DecodeOptions{Requested: metadata, Caps: caps, BaseMillis: base, Op: plan.Op}
	tags, err := s.drain(ctx, opts)
	s.log.Debug().Int("tags", len(tags)).Bool("buffer_full", full).Msg("read cycle")
	return tags, full, err
}

// drain fetches buffered records until the device reports none left.
func (s *Session) drain(ctx context.Context, opts DecodeOptions) ([]TagRecord, error) {
	var tags []TagRecord
	for {
		frame, err := s.exchange(ctx, "fetch tags", tmr.OpFetchTags, nil, s.opts.commandTimeout)
		if err != nil {
			return tags, err
		}
		switch frame.Status {
		case tmr.StatusOK:
			batch, err := decodeBatch(frame.Data, opts)
			if err != nil {
				return tags, newError(KindDevice, "fetch tags", err)
			}
			if len(batch) == 0 {
				return tags, nil
			}
			tags = append(tags, batch...)
		case tmr.StatusNoTagsFound:
			return tags, nil
		case tmr.StatusAuthRequired:
			tag, err := s.authenticate(ctx, frame.Data, opts)
			if err != nil {
				return tags, err
			}
			tags = append(tags, tag)
		default:
			return tags, statusError("fetch tags", frame.Status)
		}
	}
}

// decodeBatch decodes a count-prefixed run of tag records.
func decodeBatch(data []byte, opts DecodeOptions) ([]TagRecord, error) {
	c := tmr.NewCursor(data)
	n, err := c.U8()
	if err != nil {
		return nil, nil
	}
	out := make([]TagRecord, 0, n)
	for i := 0; i < int(n); i++ {
		tag, err := decodeTag(c, opts)
		if err != nil {
			return out, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, tag)
	}
	return out, nil
}

// authenticate answers a mid-cycle credential request for one tag and
// returns that tag's finished record.
func (s *Session) authenticate(ctx context.Context, data []byte, opts DecodeOptions) (TagRecord, error) {
	c := tmr.NewCursor(data)
	proto, err := c.U8()
	if err != nil {
		return TagRecord{}, newError(KindDevice, "auth request", err)
	}
	ant, err := c.U8()
	if err != nil {
		return TagRecord{}, newError(KindDevice, "auth request", err)
	}
	epc, err := c.String()
	if err != nil {
		return TagRecord{}, newError(KindDevice, "auth request", err)
	}
	id := TagIdentity{EPC: []byte(epc), Protocol: Protocol(proto), Antenna: int(ant)}

	cred, granted := s.auth.Resolve(id)
	reply := []byte{0}
	if granted {
		reply[0] = 1
	}
	reply = tmr.AppendU32(reply, cred.Password)

	frame, err := s.call(ctx, "auth response", tmr.OpAuthResponse, reply, s.opts.commandTimeout)
	if err != nil {
		return TagRecord{}, err
	}
	batch, err := decodeBatch(frame.Data, opts)
	if err != nil {
		return TagRecord{}, newError(KindDevice, "auth response", err)
	}
	tag := TagRecord{EPC: id.EPC}
	if len(batch) > 0 {
		tag = batch[0]
	}
	if !granted {
		tag.OpErr = &Error{Kind: KindAuthDenied, Op: "secure read", Err: fmt.Errorf("no credential for %s", tag.EPCHex())}
		tag.Banks = nil
	}
	return tag, nil
}
