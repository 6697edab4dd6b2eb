// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge shares one serial RNet session with WebSocket clients.
//
// Every frame the session sees, in either direction, is broadcast to all
// clients as a binary message. Frames a client sends are decoded, classified
// and queued through the session's sequencer, so bridged clients never
// collide with the handshake flow of the serial link.
package bridge

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 64
)

// Options configure a bridge server
type Options struct {
	Username string // Basic auth is enforced when both are set
	Password string
	Logger   zerolog.Logger
}

// Server is an http.Handler that upgrades requests to bridge clients
type Server struct {
	sess     *session.Session
	log      zerolog.Logger
	username string
	password string
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uuid.UUID]*client
	closed  bool
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// New creates a bridge for sess
func New(sess *session.Session, opts Options) *Server {
	return &Server{
		sess:     sess,
		log:      opts.Logger.With().Str("component", "bridge").Logger(),
		username: opts.Username,
		password: opts.Password,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[uuid.UUID]*client),
	}
}

// Observer returns the session observer that feeds frames to clients
func (s *Server) Observer() session.Observer {
	return func(e session.Event) {
		if e.Frame != nil {
			s.broadcast(e.Frame.Raw())
		}
	}
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="rnetstat"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	if !s.register(c) {
		conn.Close()
		return
	}

	log := s.log.With().Str("client", c.id.String()).Str("remote", r.RemoteAddr).Logger()
	log.Info().Msg("client connected")

	go s.writeLoop(c, log)
	s.readLoop(c, log)

	s.unregister(c)
	conn.Close()
	<-c.done
	log.Info().Msg("client disconnected")
}

func (s *Server) authorized(r *http.Request) bool {
	if s.username == "" || s.password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) == 1
	return userOK && passOK
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c.id] = c
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.send)
	}
}

// broadcast never blocks: a client whose buffer is full misses the frame
func (s *Server) broadcast(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		select {
		case c.send <- raw:
		default:
			s.log.Warn().Str("client", c.id.String()).Msg("client too slow, dropping frame")
		}
	}
}

func (s *Server) writeLoop(c *client, log zerolog.Logger) {
	defer close(c.done)
	for raw := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
			log.Debug().Err(err).Msg("write failed")
			c.conn.Close()
			// Drain so unregister can close the channel
			for range c.send {
			}
			return
		}
	}
}

// readLoop decodes client bytes into packets and queues them on the session
func (s *Server) readLoop(c *client, log zerolog.Logger) {
	decoder := rnet.NewDecoder()
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		for _, b := range data {
			f, err := decoder.DecodeByte(b)
			if err != nil {
				log.Warn().Err(err).Msg("bad frame from client")
				continue
			}
			if f == nil {
				continue
			}
			p := rnet.Classify(rnet.DecodeMessage(f))
			if p == nil {
				log.Warn().Uint8("type", f.MessageType).Msg("dropping unrecognised frame from client")
				continue
			}
			if err := s.sess.Send(p); err != nil {
				log.Error().Err(err).Str("packet", rnet.FormatPacketName(p)).Msg("send failed")
			}
		}
	}
}

// Close disconnects every client. The server refuses new clients afterwards.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	var result error
	deadline := time.Now().Add(time.Second)
	for _, c := range clients {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing")
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close client %s", c.id))
		}
	}
	return result
}
