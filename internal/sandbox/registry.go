package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"wsprobe/internal/frame"
)

var (
	ErrHandlerNotFound = errors.New("handler not found")
	ErrExtractor       = errors.New("payload does not fit handler input")
	ErrOutputClosed    = errors.New("output stream was closed")
)

// Handler serves one request frame. It may send any number of responses on out.
type Handler func(ctx context.Context, call *Call, out *Output) error

// Call is a decoded request as seen by a handler.
type Call struct {
	Headers frame.RequestHeaders
	Payload json.RawMessage
	ConnID  string
	Subject string // JWT subject, empty when auth is off
}

// Bind decodes the payload block into v.
func (c *Call) Bind(v any) error {
	if err := json.Unmarshal(c.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrExtractor, err)
	}
	return nil
}

// Output sends response frames tagged with the request id.
type Output struct {
	id   int
	send func(text string) error
}

func (o *Output) Send(payload any) error {
	text, err := frame.Encode(frame.ResponseHeaders{ID: o.id}, payload)
	if err != nil {
		return err
	}
	return o.send(text)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds method to h, replacing any earlier handler for it.
func (r *Registry) Register(method string, h Handler) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
	return r
}

func (r *Registry) Lookup(method string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, method)
	}
	return h, nil
}

// Methods lists registered method names, order unspecified.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		methods = append(methods, m)
	}
	return methods
}
