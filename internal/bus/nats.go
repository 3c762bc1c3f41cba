package bus

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Event subjects, relative to the configured prefix.
const (
	SubjectCaseScored     = "case.scored"
	SubjectCaseTrained    = "case.trained"
	SubjectModelRetrained = "model.retrained"
)

// Publisher emits JSON events about finished runs.
type Publisher interface {
	Publish(subject string, payload any) error
	Close()
}

// NATSPublisher publishes events to a NATS server under a subject prefix.
type NATSPublisher struct {
	Conn   *nats.Conn
	Prefix string
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("leak-triage"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{Conn: conn, Prefix: strings.TrimSuffix(prefix, ".")}, nil
}

// Subject joins the prefix and subject.
func (p *NATSPublisher) Subject(subject string) string {
	if p.Prefix == "" {
		return subject
	}
	return p.Prefix + "." + subject
}

func (p *NATSPublisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Conn.Publish(p.Subject(subject), data)
}

func (p *NATSPublisher) Close() {
	if p.Conn != nil {
		_ = p.Conn.Drain()
		p.Conn.Close()
	}
}

// Noop discards events; used when the bus is disabled.
type Noop struct{}

func (Noop) Publish(string, any) error { return nil }

func (Noop) Close() {}
