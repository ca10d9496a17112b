// Package signal is the client side of the signaling transport.
package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/consult/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

var (
	ErrNotConnected       = errors.New("signaling not connected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// DefaultBackoff is the delay before each reconnect attempt.
var DefaultBackoff = []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second}

type Option func(*Client)

func WithBackoff(b []time.Duration) Option { return func(c *Client) { c.backoff = b } }

func WithDialer(d *websocket.Dialer) Option { return func(c *Client) { c.dialer = d } }

// Client keeps one websocket to the signaling server and re-dials it on
// loss. Every (re)connection is announced by the server's connected event.
type Client struct {
	url     string
	dialer  *websocket.Dialer
	backoff []time.Duration
	onEvent func(domain.ServerEvent)

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func New(url string, onEvent func(domain.ServerEvent), opts ...Option) *Client {
	c := &Client{
		url:     url,
		dialer:  websocket.DefaultDialer,
		backoff: DefaultBackoff,
		onEvent: onEvent,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run dials, serves and re-dials until ctx ends, Close is called, or the
// backoff schedule is exhausted. The first dial is not retried.
func (c *Client) Run(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.url, err)
	}
	for {
		c.serve(conn)
		if c.isClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Str("module", "client.signal").Msg("connection lost, reconnecting")
		conn, err = c.reconnect(ctx)
		if err != nil {
			return err
		}
	}
}

func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, error) {
	for attempt, delay := range c.backoff {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if c.isClosed() {
			return nil, context.Canceled
		}
		conn, err := c.dial(ctx)
		if err == nil {
			log.Info().Str("module", "client.signal").Int("attempt", attempt+1).Msg("reconnected")
			return conn, nil
		}
		log.Warn().Err(err).Str("module", "client.signal").Int("attempt", attempt+1).Msg("reconnect failed")
	}
	return nil, ErrReconnectExhausted
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return nil, context.Canceled
	}
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *Client) serve(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()
	for {
		var ev domain.ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !c.isClosed() {
				log.Warn().Err(err).Str("module", "client.signal").Msg("read")
			}
			return
		}
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

// Send writes msg on the current connection. Writes are serialized, so
// messages leave in call order.
func (c *Client) Send(msg domain.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
