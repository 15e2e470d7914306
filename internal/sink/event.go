package sink

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"rfid_session_go/sdk"
)

// Event is the JSON shape published for every tag observation.
type Event struct {
	ID        string            `json:"id"`
	Stream    string            `json:"stream,omitempty"`
	Reader    string            `json:"reader,omitempty"`
	EPC       string            `json:"epc"`
	New       bool              `json:"new"`
	Antenna   *int              `json:"antenna,omitempty"`
	RSSI      *int              `json:"rssi,omitempty"`
	ReadCount *int              `json:"read_count,omitempty"`
	Frequency *uint32           `json:"frequency_khz,omitempty"`
	Phase     *int              `json:"phase,omitempty"`
	Protocol  string            `json:"protocol,omitempty"`
	SeenAt    time.Time         `json:"seen_at"`
	Data      string            `json:"data,omitempty"`
	Banks     map[string]string `json:"banks,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorCode uint16            `json:"error_code,omitempty"`
}

// FromTag converts a decoded record. SeenAt falls back to now when the
// record carries no timestamp.
func FromTag(tag sdk.TagRecord, stream, reader string, isNew bool, now time.Time) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Stream:    stream,
		Reader:    reader,
		EPC:       tag.EPCHex(),
		New:       isNew,
		Antenna:   tag.Antenna,
		RSSI:      tag.RSSI,
		ReadCount: tag.ReadCount,
		Frequency: tag.FrequencyKHz,
		Phase:     tag.Phase,
		SeenAt:    now.UTC(),
	}
	if tag.Timestamp != nil {
		ev.SeenAt = tag.Timestamp.UTC()
	}
	if tag.Protocol != nil {
		ev.Protocol = tag.Protocol.String()
	}
	if len(tag.Data) > 0 {
		ev.Data = strings.ToUpper(hex.EncodeToString(tag.Data))
	}
	if len(tag.Banks) > 0 {
		ev.Banks = make(map[string]string, len(tag.Banks))
		for bank, data := range tag.Banks {
			ev.Banks[bank.String()] = strings.ToUpper(hex.EncodeToString(data))
		}
	}
	if tag.OpErr != nil {
		ev.Error = tag.OpErr.Error()
		var se *sdk.Error
		if errors.As(tag.OpErr, &se) {
			ev.ErrorCode = se.Code
		}
	}
	return ev
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Func adapts a function to Publisher.
type Func func(ctx context.Context, ev Event) error

func (f Func) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

func (f Func) Close() error { return nil }
