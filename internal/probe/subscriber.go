package probe

import (
	"log/slog"

	"PcapLedger/internal/config"
	"PcapLedger/internal/core/model"

	"github.com/nats-io/nats.go"
)

// RecordHandler processes a received record.
type RecordHandler func(r model.Record)

// Subscriber receives records from a NATS subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to the configured NATS server.
func NewSubscriber(cfg config.ProbeConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("pcapledger-ingest"))
	if err != nil {
		return nil, err
	}
	slog.Info("connected to NATS server", "url", cfg.NATSURL)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes and hands every decodable record to handler.
func (s *Subscriber) Start(handler RecordHandler) error {
	sub, err := s.nc.Subscribe(s.subject, messageHandler(handler))
	if err != nil {
		return err
	}
	s.sub = sub
	slog.Info("subscribed, waiting for records", "subject", s.subject)
	return nil
}

// messageHandler decodes a message and drops it when it is not a record.
func messageHandler(handler RecordHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		r, err := DecodeRecord(msg.Data)
		if err != nil {
			slog.Warn("dropping undecodable message", "subject", msg.Subject, "error", err)
			return
		}
		handler(r)
	}
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		slog.Info("NATS connection closed")
	}
}
