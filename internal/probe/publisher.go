package probe

import (
	"log/slog"

	"PcapLedger/internal/config"
	"PcapLedger/internal/core/model"

	"github.com/nats-io/nats.go"
)

// Publisher publishes records to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to the configured NATS server.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("pcapledger-probe"))
	if err != nil {
		return nil, err
	}
	slog.Info("connected to NATS server", "url", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish encodes r and publishes it to the configured subject.
func (p *Publisher) Publish(r model.Record) error {
	data, err := EncodeRecord(r)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			slog.Warn("failed to drain NATS connection", "error", err)
		}
		slog.Info("NATS connection drained and closed")
	}
}
