package filerelay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes transfer events as JSON on "<subject>.<state>".
type NATSNotifier struct {
	conn    natsPublisher
	subject string
}

// ConnectNATS dials the server described by cfg.
func ConnectNATS(cfg NATSConfig) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name(cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("nats notifier: connect: %w", err)
	}
	return conn, nil
}

func NewNATSNotifier(conn *nats.Conn, subject string) *NATSNotifier {
	if subject == "" {
		subject = "filerelay.transfers"
	}
	return &NATSNotifier{conn: conn, subject: subject}
}

func (n *NATSNotifier) Subject(state TransferState) string {
	return n.subject + "." + string(state)
}

func (n *NATSNotifier) Notify(ctx context.Context, event TransferEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats notifier: encode event: %w", err)
	}

	if err := n.conn.Publish(n.Subject(event.State), data); err != nil {
		return fmt.Errorf("nats notifier: publish: %w", err)
	}

	return nil
}
