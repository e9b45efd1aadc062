package telemetry

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
	nats "github.com/nats-io/nats.go"
)

const natsConnectTimeout = 2 * time.Second

// natsConn is the subset of *nats.Conn the sink uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

var natsConnectFn = func(url string, opts ...nats.Option) (natsConn, error) {
	return nats.Connect(url, opts...)
}

type natsSink struct {
	subject string
	conn    natsConn
}

func openNATS(url, subject string, log logr.Logger) (*natsSink, error) {
	conn, err := natsConnectFn(url,
		nats.Name("thermal-governor"),
		nats.Timeout(natsConnectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Info("telemetry nats disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("telemetry nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &natsSink{subject: subject, conn: conn}, nil
}

func (s *natsSink) Name() string { return "nats" }

// Publish queues the event in the client's buffer; delivery happens on the
// client's own goroutine.
func (s *natsSink) Publish(payload []byte) error {
	if err := s.conn.Publish(s.subject, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", s.subject, err)
	}
	return nil
}

func (s *natsSink) Close() error {
	err := s.conn.FlushTimeout(time.Second)
	s.conn.Close()
	if err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}
