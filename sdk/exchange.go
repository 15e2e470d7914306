package sdk

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"rfid_session_go/internal/protocol/tmr"
)

const maxRxBuffer = 8192

// exchange sends one command and waits for the response with the same opcode.
// Callers must hold busy.
func (s *Session) exchange(ctx context.Context, op string, opcode byte, data []byte, timeout time.Duration) (tmr.Frame, error) {
	packet, err := tmr.Command(opcode, data)
	if err != nil {
		return tmr.Frame{}, newError(KindInvalidPlan, op, err)
	}
	s.traceIO(true, packet)
	if err := s.transport.Send(packet); err != nil {
		return tmr.Frame{}, newError(KindTransport, op, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return tmr.Frame{}, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return tmr.Frame{}, &Error{Kind: KindTimeout, Op: op}
		}

		chunk, err := s.transport.Receive(remaining)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return tmr.Frame{}, &Error{Kind: KindTimeout, Op: op}
			}
			return tmr.Frame{}, newError(KindTransport, op, err)
		}
		if len(chunk) == 0 {
			continue
		}
		s.traceIO(false, chunk)

		s.rx = append(s.rx, chunk...)
		if len(s.rx) > maxRxBuffer {
			s.rx = append([]byte{}, s.rx[len(s.rx)-maxRxBuffer/2:]...)
		}
		frames, remainder := tmr.ParseFrames(s.rx)
		s.rx = remainder
		for _, frame := range frames {
			if frame.Opcode == opcode {
				return frame, nil
			}
			s.log.Debug().Uint8("opcode", frame.Opcode).Msg("dropping stale frame")
		}
	}
}

// call is exchange plus status checking.
func (s *Session) call(ctx context.Context, op string, opcode byte, data []byte, timeout time.Duration) (tmr.Frame, error) {
	frame, err := s.exchange(ctx, op, opcode, data, timeout)
	if err != nil {
		return frame, err
	}
	if frame.Status != tmr.StatusOK {
		return frame, statusError(op, frame.Status)
	}
	return frame, nil
}

func (s *Session) getParam(ctx context.Context, key byte) ([]byte, error) {
	frame, err := s.call(ctx, fmt.Sprintf("get param 0x%02X", key), tmr.OpGetParam, []byte{key}, s.opts.commandTimeout)
	if err != nil {
		return nil, err
	}
	return frame.Data, nil
}

func (s *Session) setParam(ctx context.Context, key byte, value []byte) error {
	data := append([]byte{key}, value...)
	_, err := s.call(ctx, fmt.Sprintf("set param 0x%02X", key), tmr.OpSetParam, data, s.opts.commandTimeout)
	return err
}

func (s *Session) traceIO(tx bool, data []byte) {
	if s.opts.trace != nil {
		s.opts.trace(tx, append([]byte(nil), data...))
	}
	if e := s.log.Trace(); e.Enabled() {
		dir := "rx"
		if tx {
			dir = "tx"
		}
		e.Str("dir", dir).Str("bytes", hex.EncodeToString(data)).Msg("wire")
	}
}
