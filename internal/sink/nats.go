package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes events as JSON on subject.<reader>.
type NATS struct {
	conn    natsConn
	subject string
}

// DialNATS connects with reconnects enabled.
func DialNATS(url, subject, name string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	log.Info().Str("url", url).Str("subject", subject).Msg("NATS publisher connected")
	return newNATS(nc, subject), nil
}

func newNATS(conn natsConn, subject string) *NATS {
	return &NATS{conn: conn, subject: subject}
}

func (n *NATS) Subject(ev Event) string {
	if ev.Reader == "" {
		return n.subject
	}
	return n.subject + "." + ev.Reader
}

func (n *NATS) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.conn.Publish(n.Subject(ev), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (n *NATS) Close() error {
	return n.conn.Drain()
}
