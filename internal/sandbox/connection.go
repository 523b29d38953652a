package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wsprobe/internal/frame"
)

const (
	writeWait      = 10 * time.Second // max time to write one frame to the peer
	closeGrace     = time.Second      // how long a shutdown waits for the peer's close reply
	maxMessageSize = 1 << 20          // 1MB, larger frames end the connection
	outboundBuffer = 16
)

// error codes carried in the payload of error responses
const (
	CodeHandlerNotFound = "handler_not_found"
	CodeExtractorError  = "extractor_error"
	CodeErrorInHandler  = "error_in_handler"
	CodeRateLimited     = "rate_limited"
)

type ErrorPayload struct {
	Error string `json:"error"`
}

// connection owns one upgraded socket. Reads happen on the serving goroutine,
// writes only on the writePump goroutine; handlers hand frames over through
// outbound.
type connection struct {
	id       string
	subject  string
	ws       *websocket.Conn
	limiter  *rate.Limiter
	log      *zap.Logger
	outbound chan string
	done     chan struct{} // closed when reading stops
	stopped  chan struct{} // closed when writePump exits
	handlers sync.WaitGroup
}

func newConnection(ws *websocket.Conn, subject string, limiter *rate.Limiter, log *zap.Logger) *connection {
	id := uuid.NewString()
	return &connection{
		id:       id,
		subject:  subject,
		ws:       ws,
		limiter:  limiter,
		log:      log.With(zap.String("conn_id", id)),
		outbound: make(chan string, outboundBuffer),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (s *Server) serveConn(ctx context.Context, ws *websocket.Conn, subject string) {
	c := newConnection(ws, subject, rate.NewLimiter(s.limit, s.burst), s.log)
	s.track(c)
	defer s.untrack(c)

	c.log.Info("client connected",
		zap.String("remote_addr", ws.RemoteAddr().String()),
		zap.String("subject", subject),
	)

	ctx, cancel := context.WithCancel(ctx)
	go c.writePump()
	go func() {
		select {
		case <-s.shutdown:
			c.goingAway()
		case <-ctx.Done():
		}
	}()

	c.readPump(ctx, s)

	cancel()
	close(c.done)
	c.handlers.Wait()
	<-c.stopped
	if err := ws.Close(); err != nil {
		c.log.Debug("close failed", zap.Error(err))
	}
	c.log.Info("client disconnected")
}

func (c *connection) readPump(ctx context.Context, s *Server) {
	c.ws.SetReadLimit(maxMessageSize)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}

		if mt != websocket.TextMessage {
			c.log.Warn("ignoring non-text frame", zap.Int("message_type", mt))
			continue
		}

		if s.opts.Echo {
			if err := c.enqueue(string(data)); err != nil {
				return
			}
			continue
		}
		s.dispatch(ctx, c, string(data))
	}
}

func (c *connection) writePump() {
	defer close(c.stopped)
	for {
		select {
		case text := <-c.outbound:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

// enqueue queues text for the writer, blocking while the buffer is full.
func (c *connection) enqueue(text string) error {
	select {
	case <-c.done:
		return ErrOutputClosed
	case <-c.stopped:
		return ErrOutputClosed
	default:
	}

	select {
	case c.outbound <- text:
		return nil
	case <-c.done:
		return ErrOutputClosed
	case <-c.stopped:
		return ErrOutputClosed
	}
}

func (c *connection) replyError(id int, code string) {
	out := &Output{id: id, send: c.enqueue}
	if err := out.Send(ErrorPayload{Error: code}); err != nil && !errors.Is(err, ErrOutputClosed) {
		c.log.Warn("error reply failed", zap.Error(err))
	}
}

// goingAway starts the closing handshake. A peer that never replies has its
// socket dropped after closeGrace, which ends the blocked readPump.
func (c *connection) goingAway() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.log.Debug("close frame failed", zap.Error(err))
	}
	time.AfterFunc(closeGrace, func() {
		_ = c.ws.Close()
	})
}

func (s *Server) dispatch(ctx context.Context, c *connection, text string) {
	raw, err := frame.Decode(text)
	if err != nil {
		c.log.Warn("dropping undecodable frame", zap.Error(err))
		return
	}
	headers, err := raw.Request()
	if err != nil {
		c.log.Warn("dropping frame with bad headers", zap.Error(err))
		return
	}

	log := c.log.With(zap.String("method", headers.Method), zap.Int("id", headers.ID))

	if !c.limiter.Allow() {
		log.Warn("rate limited")
		c.replyError(headers.ID, CodeRateLimited)
		return
	}

	h, err := s.registry.Lookup(headers.Method)
	if err != nil {
		log.Warn("no handler", zap.Error(err))
		c.replyError(headers.ID, CodeHandlerNotFound)
		return
	}

	call := &Call{Headers: headers, Payload: raw.Payload, ConnID: c.id, Subject: c.subject}
	out := &Output{id: headers.ID, send: c.enqueue}

	log.Debug("dispatching")
	c.handlers.Add(1)
	go func() {
		defer c.handlers.Done()
		err := h(ctx, call, out)
		switch {
		case err == nil, errors.Is(err, ErrOutputClosed):
		case errors.Is(err, ErrExtractor):
			log.Warn("bad payload", zap.Error(err))
			c.replyError(headers.ID, CodeExtractorError)
		default:
			log.Error("handler failed", zap.Error(err))
			c.replyError(headers.ID, CodeErrorInHandler)
		}
	}()
}
