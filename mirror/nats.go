package mirror

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Flusher   = (*NATSPublisher)(nil)
)

// NATSPublisher publishes events as core NATS messages.
type NATSPublisher struct {
	conn  *nats.Conn
	owned bool
}

// NewNATSPublisher publishes on an existing connection. The caller keeps
// ownership of conn.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// ConnectNATS dials url and returns a publisher that owns the connection.
// Reconnects and disconnects are reported to logger.
func ConnectNATS(url string, logger *slog.Logger, opts ...nats.Option) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]nats.Option{
		nats.Name("patron-mirror"),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("mirror: nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("mirror: nats disconnected", "error", err)
		}),
	}, opts...)

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("mirror: connect %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, owned: true}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.conn.Publish(subject, data)
}

// Flush implements Flusher. Without a context deadline the connection's
// default flush timeout applies.
func (p *NATSPublisher) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return p.conn.Flush()
	}
	return p.conn.FlushWithContext(ctx)
}

// Close drains the connection if the publisher opened it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.conn.Drain()
}
