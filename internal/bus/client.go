package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/papercast-labs/papercast-core/internal/config"
	"github.com/papercast-labs/papercast-core/internal/protocol"
)

// Client wraps the NATS connection used to broadcast synthesis progress.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("papercastd"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{conn: conn, log: log}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// PublishProgress broadcasts a synthesis progress event. Publishing is
// best-effort: a failure is logged and never interrupts the run.
func (c *Client) PublishProgress(evt protocol.ProgressEvent) {
	if c == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		c.log.Warn("failed to marshal progress event", slog.String("error", err.Error()))
		return
	}
	if err := c.conn.Publish(protocol.SubjectAudioProgress, data); err != nil {
		c.log.Warn("failed to publish progress event", slog.String("error", err.Error()))
	}
}
