package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/DJune12138/Collection3/internal/ports"
)

// Publisher is the part of *nats.Conn the NATS alerter needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes alerts as JSON to a subject.
type NATS struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
}

var _ ports.Alerter = (*NATS)(nil)

// NewNATS publishes through pub, typically a *nats.Conn.
func NewNATS(pub Publisher, subject string) *NATS {
	return &NATS{pub: pub, subject: subject}
}

// DialNATS connects to url and returns an alerter owning the connection.
func DialNATS(url, subject string, timeout time.Duration) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("collection3-alerts"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	n := NewNATS(conn, subject)
	n.conn = conn
	return n, nil
}

type natsAlert struct {
	Business string    `json:"business"`
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
	Text     string    `json:"text"`
}

func (n *NATS) Send(ctx context.Context, a ports.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(natsAlert{
		Business: a.Business,
		Kind:     a.Kind.String(),
		Message:  a.Message,
		At:       a.At,
		Text:     Format(a),
	})
	if err != nil {
		return err
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", n.subject, err)
	}
	return nil
}

// Close drains the connection opened by DialNATS.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
