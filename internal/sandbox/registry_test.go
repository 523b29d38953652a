package sandbox

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsprobe/internal/frame"
)

func TestRegistry(t *testing.T) {
	r := NewGreeterRegistry()

	_, err := r.Lookup("do_something")
	assert.NoError(t, err)

	_, err = r.Lookup("missing")
	assert.ErrorIs(t, err, ErrHandlerNotFound)

	methods := r.Methods()
	sort.Strings(methods)
	assert.Equal(t, []string{"do_something", "do_something_twice"}, methods)
}

func TestCallBind(t *testing.T) {
	call := &Call{Payload: json.RawMessage(`{"name":"Cas"}`)}
	var msg HelloMessage
	require.NoError(t, call.Bind(&msg))
	assert.Equal(t, "Cas", msg.Name)

	call.Payload = json.RawMessage(`"just a string"`)
	assert.ErrorIs(t, call.Bind(&msg), ErrExtractor)
}

func TestGreeter_DoSomethingTwice(t *testing.T) {
	var sent []string
	sendCh := make(chan string, 2)
	out := &Output{id: 1, send: func(text string) error {
		sendCh <- text
		return nil
	}}

	g := &Greeter{}
	call := &Call{Headers: frame.RequestHeaders{Method: "do_something_twice", ID: 1}, Payload: json.RawMessage(`{"name":"Cas2"}`)}
	require.NoError(t, g.DoSomethingTwice(context.Background(), call, out))
	close(sendCh)
	for s := range sendCh {
		sent = append(sent, s)
	}

	want := `{"id":1}` + "\n\n" + `{"msg":"Hello Cas2!","count":1}`
	assert.Equal(t, []string{want, want}, sent)
}

func TestOutput_SendPropagatesClosed(t *testing.T) {
	out := &Output{id: 0, send: func(string) error { return ErrOutputClosed }}
	err := (&Greeter{}).DoSomething(context.Background(), &Call{Payload: json.RawMessage(`{"name":"x"}`)}, out)
	assert.ErrorIs(t, err, ErrOutputClosed)
}

func TestGreeter_DoSomethingTwiceAttemptsBothSends(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	out := &Output{id: 1, send: func(string) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return ErrOutputClosed
	}}

	err := (&Greeter{}).DoSomethingTwice(context.Background(), &Call{Payload: json.RawMessage(`{"name":"Cas2"}`)}, out)
	assert.ErrorIs(t, err, ErrOutputClosed)
	assert.Equal(t, 2, attempts)
}
