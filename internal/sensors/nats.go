package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	nats "github.com/nats-io/nats.go"
	"k8s.io/utils/clock"

	"thermal-governor/internal/logging"
)

var natsConnectFn = func(url string, opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(url, opts...)
}

// natsReader serves the latest temperature published on a subject by a
// remote sensor. Values older than maxAge count as absent.
type natsReader struct {
	url     string
	subject string
	maxAge  time.Duration
	clock   clock.PassiveClock
	log     logr.Logger

	conn *nats.Conn
	sub  *nats.Subscription

	mu     sync.Mutex
	latest float64
	at     time.Time
	have   bool
}

func newNATSReader(url, subject string, maxAge time.Duration, log logr.Logger) *natsReader {
	return &natsReader{
		url:     url,
		subject: subject,
		maxAge:  maxAge,
		clock:   clock.RealClock{},
		log:     log,
	}
}

func (r *natsReader) connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name("thermal-governor"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				r.log.Info("nats disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			r.log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	}
	if dl, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(dl)))
	}
	nc, err := natsConnectFn(r.url, opts...)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", r.url, err)
	}
	sub, err := nc.Subscribe(r.subject, func(m *nats.Msg) { r.handle(m.Data) })
	if err != nil {
		nc.Close()
		return fmt.Errorf("nats subscribe %s: %w", r.subject, err)
	}
	r.conn, r.sub = nc, sub
	return nil
}

func (r *natsReader) handle(data []byte) {
	v, err := parsePayload(data)
	if err != nil {
		r.log.V(logging.DEBUG).Info("ignoring nats message", "subject", r.subject, "error", err.Error())
		return
	}
	r.mu.Lock()
	r.latest, r.at, r.have = v, r.clock.Now(), true
	r.mu.Unlock()
}

func (r *natsReader) read(ctx context.Context) (float64, error) {
	if r.conn == nil {
		if err := r.connect(ctx); err != nil {
			return 0, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.have {
		return 0, fmt.Errorf("no message on %s yet", r.subject)
	}
	if age := r.clock.Since(r.at); age > r.maxAge {
		return 0, fmt.Errorf("last value on %s is %s old", r.subject, age.Truncate(time.Millisecond))
	}
	return r.latest, nil
}

func (r *natsReader) close() error {
	if r.conn == nil {
		return nil
	}
	var err error
	if r.sub != nil {
		err = r.sub.Unsubscribe()
	}
	r.conn.Close()
	r.conn, r.sub = nil, nil
	return err
}

type tempPayload struct {
	Value *float64 `json:"value"`
}

// parsePayload accepts {"value": 41.5} or a bare number.
func parsePayload(data []byte) (float64, error) {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, "{") {
		var p tempPayload
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return 0, fmt.Errorf("decode payload: %w", err)
		}
		if p.Value == nil {
			return 0, fmt.Errorf("payload has no value")
		}
		return *p.Value, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse payload %q: %w", s, err)
	}
	return v, nil
}
