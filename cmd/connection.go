// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/internal/store"
)

// Connection provides a common interface for reading/writing bytes from serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection is an RNet serial port (8N1)
type SerialConnection struct {
	serial.Port
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection carries the bus through a WebSocket bridge. Each binary
// message holds one or more raw frames; Read streams them byte for byte.
type WebSocketConnection struct {
	conn   *websocket.Conn
	msg    io.Reader
	closed bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	for {
		if w.msg != nil {
			n, err := w.msg.Read(p)
			if n > 0 || !errors.Is(err, io.EOF) {
				return n, err
			}
			w.msg = nil
		}

		messageType, r, err := w.conn.NextReader()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if messageType == websocket.BinaryMessage {
			w.msg = r
		}
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", portName)
	}
	return &SerialConnection{Port: port}, nil
}

// OpenWebSocketConnection dials an rnetstat bridge (or any bridge speaking raw
// binary frames), with HTTP Basic auth when username and password are set
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "bridge connection failed (HTTP %d)", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "bridge connection failed")
	}
	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword returns the bridge password from RNET_PASSWORD, or prompts for
// it without echo
func GetPassword() (string, error) {
	if pw := os.Getenv("RNET_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	if term.IsTerminal(int(syscall.Stdin)) {
		pw, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", errors.Wrap(err, "read password")
		}
		return string(pw), nil
	}

	// Piped stdin
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "read password")
	}
	return strings.TrimSpace(line), nil
}

// OpenConnection opens the WebSocket bridge when a URL is configured, the
// serial port otherwise. The second result describes the connection.
func OpenConnection() (Connection, string, error) {
	switch {
	case cfg.WebSocket.URL != "":
		var password string
		if cfg.WebSocket.Username != "" {
			pw, err := GetPassword()
			if err != nil {
				return nil, "", err
			}
			password = pw
		}
		conn, err := OpenWebSocketConnection(cfg.WebSocket.URL, cfg.WebSocket.Username, password, cfg.WebSocket.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, "WebSocket: " + cfg.WebSocket.URL, nil

	case cfg.Serial.Port != "":
		conn, err := OpenSerialConnection(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud), nil
	}

	return nil, "", errors.New("either --port or --url must be specified")
}

// newSession creates a session attached to conn
func newSession(conn Connection) *session.Session {
	sess := session.New(session.Options{
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
		Logger:           logger,
	})
	sess.Connect(conn)
	return sess
}

// openStore opens the zone database when it is enabled and records every
// inbound zone reply seen by sess. It returns nil when the store is disabled.
func openStore(sess *session.Session) (*store.DB, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}

	db, err := store.Open(store.Config{Path: cfg.Store.Path}, &logger)
	if err != nil {
		return nil, err
	}

	repo := store.NewZoneRepository(db.GetDB())
	for _, z := range cfg.Zones {
		if z.Name == "" {
			continue
		}
		if err := repo.SetName(z.Controller, z.Zone, z.Name); err != nil {
			db.Close()
			return nil, err
		}
	}

	if sess != nil {
		sess.Observe(repo.Observer(logger))
	}
	return db, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// isConnectionClosed reports whether a session read error means the transport
// is gone for good
func isConnectionClosed(err error) bool {
	if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
		return true
	}
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}
