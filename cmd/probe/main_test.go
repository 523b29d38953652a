package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

// closingPeer reads both requests, then closes the connection normally.
func closingPeer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		for i := 0; i < 2; i++ {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = ws.ReadMessage()
	}))
}

func TestRun_InterruptExitsZero(t *testing.T) {
	srv := closingPeer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"run", "--url", "ws" + strings.TrimPrefix(srv.URL, "http"), "--log-level", "error"}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.True(t, strings.HasSuffix(stdout.String(), "\nExiting...\n"), "stdout: %q", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestRun_ConnectErrorExitsOne(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"run", "--url", "ws://" + addr, "--log-level", "error"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "connection failed")
	assert.NotContains(t, stdout.String(), "Exiting...")
}

func TestRun_PeerCloseExitsZero(t *testing.T) {
	srv := closingPeer(t)
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"run", "--url", "ws" + strings.TrimPrefix(srv.URL, "http"), "--log-level", "error"}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Equal(t, 2, strings.Count(stdout.String(), "Sent with headers:"))
	assert.NotContains(t, stdout.String(), "Exiting...")
	assert.Empty(t, stderr.String())
}
