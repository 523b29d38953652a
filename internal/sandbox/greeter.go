package sandbox

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

type HelloMessage struct {
	Name string `json:"name"`
}

type HelloResponse struct {
	Msg   string `json:"msg"`
	Count uint64 `json:"count"`
}

// Greeter holds the call counter shared by every connection.
type Greeter struct {
	mu      sync.Mutex
	counter uint64
}

func (g *Greeter) next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return g.counter
}

// DoSomething answers once.
func (g *Greeter) DoSomething(_ context.Context, call *Call, out *Output) error {
	var msg HelloMessage
	if err := call.Bind(&msg); err != nil {
		return err
	}
	return out.Send(HelloResponse{Msg: fmt.Sprintf("Hello %s!", msg.Name), Count: g.next()})
}

// DoSomethingTwice answers twice with the same count, both sends in flight at once.
func (g *Greeter) DoSomethingTwice(_ context.Context, call *Call, out *Output) error {
	var msg HelloMessage
	if err := call.Bind(&msg); err != nil {
		return err
	}
	resp := HelloResponse{Msg: fmt.Sprintf("Hello %s!", msg.Name), Count: g.next()}

	var eg errgroup.Group
	for i := 0; i < 2; i++ {
		eg.Go(func() error { return out.Send(resp) })
	}
	return eg.Wait()
}

// NewGreeterRegistry registers do_something and do_something_twice.
func NewGreeterRegistry() *Registry {
	g := &Greeter{}
	return NewRegistry().
		Register("do_something", g.DoSomething).
		Register("do_something_twice", g.DoSomethingTwice)
}
