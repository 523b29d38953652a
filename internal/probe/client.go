package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wsprobe/internal/frame"
)

const DefaultURL = "ws://127.0.0.1:5000"

var ErrConnect = errors.New("connection failed")

// Request is one scripted request frame.
type Request struct {
	Method  string
	ID      int
	Payload any
}

// DefaultRequests returns the two requests the probe sends on every run.
func DefaultRequests() []Request {
	return []Request{
		{Method: "do_something", ID: 0, Payload: map[string]string{"name": "Cas"}},
		{Method: "do_something_twice", ID: 1, Payload: map[string]string{"name": "Cas2"}},
	}
}

type Client struct {
	dialer  Dialer
	url     string
	header  http.Header
	printer *printer
	log     *zap.Logger
}

type Option func(*Client)

// WithToken sends "Authorization: Bearer <token>" on the handshake.
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithOutput redirects the report lines, stdout by default.
func WithOutput(w io.Writer) Option {
	return func(c *Client) {
		c.printer = newPrinter(w)
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

func NewClient(dialer Dialer, url string, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	c := &Client{
		dialer:  dialer,
		url:     url,
		header:  http.Header{},
		printer: newPrinter(os.Stdout),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects, sends requests in order and prints every inbound frame until
// the peer closes the connection (nil error) or ctx is cancelled (ctx.Err()).
// The connection is closed exactly once on every path.
func (c *Client) Run(ctx context.Context, requests []Request) error {
	c.log.Info("connecting", zap.String("url", c.url))
	conn, err := c.dialer.Dial(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnect, c.url, err)
	}

	var once sync.Once
	closeConn := func() {
		once.Do(func() {
			if err := conn.Close(); err != nil {
				c.log.Debug("close failed", zap.Error(err))
			}
		})
	}
	defer closeConn()

	for _, req := range requests {
		if ctx.Err() != nil {
			return c.cancel(ctx, closeConn)
		}
		if err := c.send(conn, req); err != nil {
			return err
		}
	}

	return c.receive(ctx, conn, closeConn)
}

func (c *Client) send(conn Conn, req Request) error {
	text, err := frame.Encode(frame.RequestHeaders{Method: req.Method, ID: req.ID}, req.Payload)
	if err != nil {
		return fmt.Errorf("request %s/%d: %w", req.Method, req.ID, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("send %s/%d: %w", req.Method, req.ID, err)
	}

	headers, payload, _ := strings.Cut(text, frame.Separator)
	c.printer.sent(headers, payload)
	c.log.Debug("request sent", zap.String("method", req.Method), zap.Int("id", req.ID))
	return nil
}

type inbound struct {
	data []byte
	err  error
}

func (c *Client) receive(ctx context.Context, conn Conn, closeConn func()) error {
	done := make(chan struct{})
	defer close(done)

	frames := make(chan inbound)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			select {
			case frames <- inbound{data: data, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for n := 0; ; n++ {
		if ctx.Err() != nil {
			return c.cancel(ctx, closeConn)
		}

		select {
		case <-ctx.Done():
			return c.cancel(ctx, closeConn)
		case in := <-frames:
			if in.err != nil {
				if websocket.IsCloseError(in.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Info("connection closed by peer")
					return nil
				}
				return fmt.Errorf("receive: %w", in.err)
			}

			headers, payload, err := frame.Lines(string(in.data))
			if err != nil {
				return fmt.Errorf("frame %d: %w", n, err)
			}
			c.printer.received(headers, payload)
		}
	}
}

func (c *Client) cancel(ctx context.Context, closeConn func()) error {
	c.printer.notice("\nClosing websocket...")
	closeConn()
	c.printer.notice("Websocket closed.")
	c.log.Info("run cancelled", zap.Error(ctx.Err()))
	return ctx.Err()
}
