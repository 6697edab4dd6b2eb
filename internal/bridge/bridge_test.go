// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

// busWriter collects everything the session writes to the serial side
type busWriter struct {
	mu     sync.Mutex
	frames [][]byte
}

func (w *busWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, append([]byte(nil), p...))
	return len(p), nil
}

func (w *busWriter) snapshot() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.frames...)
}

func newTestBridge(t *testing.T, opts Options) (*Server, *session.Session, *busWriter, string) {
	t.Helper()

	sess := session.New(session.Options{HandshakeTimeout: time.Second, Logger: zerolog.Nop()})
	bus := &busWriter{}
	sess.Connect(bus)

	opts.Logger = zerolog.Nop()
	srv := New(sess, opts)
	sess.Observe(srv.Observer())

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		sess.Close()
	})

	return srv, sess, bus, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBridge_ClientSendReachesBus(t *testing.T) {
	srv, _, bus, url := newTestBridge(t, Options{})
	conn := dial(t, url, nil)
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)

	raw := rnet.EncodePacket(rnet.NewSetPower(1, 3, true))
	// Split across two messages to exercise the per-client decoder
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, raw[:4]))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, raw[4:]))

	require.Eventually(t, func() bool { return len(bus.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, raw, bus.snapshot()[0])
}

func TestBridge_DropsUnrecognisedFrames(t *testing.T) {
	srv, _, bus, url := newTestBridge(t, Options{})
	conn := dial(t, url, nil)
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)

	unknown := rnet.EncodeFrame(rnet.Header{MessageType: 0x03}, nil)
	valid := rnet.EncodePacket(rnet.NewSetPower(1, 0, false))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, append(unknown, valid...)))

	require.Eventually(t, func() bool { return len(bus.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, valid, bus.snapshot()[0])
}

func TestBridge_BroadcastsBusTraffic(t *testing.T) {
	srv, sess, _, url := newTestBridge(t, Options{})
	first := dial(t, url, nil)
	second := dial(t, url, nil)
	require.Eventually(t, func() bool { return srv.Clients() == 2 }, time.Second, 5*time.Millisecond)

	raw := rnet.EncodePacket(&rnet.KeypadEventPacket{ControllerID: 1, ZoneID: 2, Key: rnet.KeyNext})
	for _, b := range raw {
		sess.DecodeStream(b)
	}

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		messageType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, messageType)
		assert.Equal(t, raw, data)
	}
}

func TestBridge_BasicAuth(t *testing.T) {
	_, _, _, url := newTestBridge(t, Options{Username: "admin", Password: "secret"})

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, "http://example", nil)
	req.SetBasicAuth("admin", "secret")
	dial(t, url, req.Header)
}

func TestBridge_ClientDisconnect(t *testing.T) {
	srv, _, _, url := newTestBridge(t, Options{})
	conn := dial(t, url, nil)
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return srv.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBridge_CloseRefusesClients(t *testing.T) {
	srv, _, _, url := newTestBridge(t, Options{})
	conn := dial(t, url, nil)
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)

	assert.NoError(t, srv.Close())

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}
