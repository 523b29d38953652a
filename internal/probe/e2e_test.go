package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wsprobe/internal/sandbox"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echoPeer echoes the first n frames back, then closes normally.
func echoPeer(t *testing.T, n int, received chan<- string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		for i := 0; i < n; i++ {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		// wait for the client's close reply
		_, _, _ = ws.ReadMessage()
	}))
}

func TestRun_EndToEndEcho(t *testing.T) {
	received := make(chan string, 2)
	srv := echoPeer(t, 2, received)
	defer srv.Close()

	out := &syncBuffer{}
	client := NewClient(NewDialer(time.Second), wsURL(srv), WithOutput(out), WithLogger(zap.NewNop()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Run(ctx, DefaultRequests()))

	require.Len(t, received, 2)
	assert.Equal(t, firstFrame, <-received)
	assert.Equal(t, secondFrame, <-received)

	assert.Equal(t,
		`Sent with headers: {"method":"do_something","id":0} payload: {"name":"Cas"}`+"\n"+
			`Sent with headers: {"method":"do_something_twice","id":1} payload: {"name":"Cas2"}`+"\n"+
			`Received headers: {"method":"do_something","id":0} payload: {"name":"Cas"}`+"\n"+
			`Received headers: {"method":"do_something_twice","id":1} payload: {"name":"Cas2"}`+"\n",
		out.String())
}

func TestRun_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewClient(NewDialer(time.Second), wsURL(srv), WithOutput(&syncBuffer{})).Run(context.Background(), DefaultRequests())
	assert.ErrorIs(t, err, ErrConnect)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Contains(t, err.Error(), "401")
}

func TestRun_AgainstSandbox(t *testing.T) {
	srv := sandbox.NewServer(sandbox.Options{RateLimit: 100, RateBurst: 10}, sandbox.NewGreeterRegistry(), zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- NewClient(NewDialer(time.Second), wsURL(ts), WithOutput(out)).Run(ctx, DefaultRequests())
	}()

	// one reply for do_something, two for do_something_twice
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "Received headers:") == 3
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	report := out.String()
	assert.Contains(t, report, `Received headers: {"id":0} payload: {"msg":"Hello Cas!","count":`)
	assert.Equal(t, 2, strings.Count(report, `Received headers: {"id":1} payload: {"msg":"Hello Cas2!","count":`))
	assert.Contains(t, report, "Websocket closed.")
}

// closeWatcher sends the given frames, then reads until the client goes away
// and reports the read error.
func closeWatcher(t *testing.T, frames []string, readErr chan<- error) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		for _, f := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				readErr <- err
				return
			}
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}))
}

func TestRun_CancellationSendsNormalClose(t *testing.T) {
	readErr := make(chan error, 1)
	srv := closeWatcher(t, nil, readErr)
	defer srv.Close()

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- NewClient(NewDialer(time.Second), wsURL(srv), WithOutput(out)).Run(ctx, DefaultRequests())
	}()

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "Sent with headers:") == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	require.ErrorIs(t, <-errCh, context.Canceled)
	select {
	case err := <-readErr:
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "server saw %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection end")
	}
}

func TestRun_MalformedFrameSendsNormalClose(t *testing.T) {
	readErr := make(chan error, 1)
	srv := closeWatcher(t, []string{"only one line"}, readErr)
	defer srv.Close()

	err := NewClient(NewDialer(time.Second), wsURL(srv), WithOutput(&syncBuffer{})).Run(context.Background(), nil)
	require.Error(t, err)

	select {
	case err := <-readErr:
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "server saw %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection end")
	}
}
