// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

var controlControllers int

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling RNet zones",
	Long: `Control RNet zones via an interactive terminal UI.

This command provides a TUI for monitoring and controlling the zones of one or
more controllers connected via WebSocket (through a bridge) or UART (direct
connection).

Features:
  - Zone discovery (zone info requests)
  - Live zone state (power, source, volume, tone)
  - Power, volume and source control
  - Statistics tracking
  - Event logging (including keypad presses)
  - Automatic reconnection on connection loss

Zones named in the config file are requested directly; otherwise every zone of
the first --controllers controllers is scanned. Tab switches between the zone
list and the control panel. Arrow keys navigate the zone list.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().IntVar(&controlControllers, "controllers", 1, "Number of controllers to scan when no zones are configured")
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	sess     *session.Session
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	ctx      context.Context
	tracker  *syncTracker

	batchChan chan controlDataMsg
	syncChan  chan controlSyncMsg
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// send queues p on the session. It fails while the connection is down.
func (cm *connectionManager) send(p rnet.Packet) error {
	if err := cm.sess.Send(p); err != nil {
		return errors.Wrap(err, "send")
	}
	return nil
}

// requestZones asks every known zone for its state
func (cm *connectionManager) requestZones() {
	for _, addr := range scanTargets() {
		if err := cm.send(rnet.NewRequestZoneInfo(addr.controller, addr.zone)); err != nil {
			logger.Warn().Err(err).Msg("zone request failed")
			return
		}
	}
}

// scanTargets lists the configured zones, or every zone of the first
// --controllers controllers when none are configured
func scanTargets() []zoneAddr {
	var targets []zoneAddr
	if len(cfg.Zones) > 0 {
		for _, z := range cfg.Zones {
			targets = append(targets, zoneAddr{z.Controller, z.Zone})
		}
		return targets
	}
	for c := 0; c < controlControllers; c++ {
		for z := 0; z < rnet.MaxZones; z++ {
			targets = append(targets, zoneAddr{byte(c), byte(z)})
		}
	}
	return targets
}

func runControl(cmd *cobra.Command, args []string) error {
	if controlControllers < 1 || controlControllers > int(rnet.AllControllers) {
		return errors.Errorf("--controllers must be between 1 and %d", rnet.AllControllers)
	}

	// Open initial connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	sess := newSession(conn)

	db, err := openStore(sess)
	if err != nil {
		conn.Close()
		return err
	}
	if db != nil {
		defer db.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cm := &connectionManager{
		sess:      sess,
		conn:      conn,
		connInfo:  connInfo,
		ctx:       ctx,
		tracker:   &syncTracker{},
		batchChan: make(chan controlDataMsg, 100),
		syncChan:  make(chan controlSyncMsg, 1),
	}

	// Create TUI model with connection manager
	m := initialControlModel(cm, connInfo)

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	sess.Observe(cm.observe)
	sess.OnError(cm.onError)

	go cm.batchLoop()
	go cm.readerLoop()

	cm.requestZones()

	_, err = p.Run()
	cancel()
	if closeErr := sess.Close(); closeErr != nil {
		logger.Debug().Err(closeErr).Msg("session close")
	}
	if err != nil {
		return errors.Wrap(err, "TUI error")
	}
	return nil
}

// observe queues session events for the TUI without blocking the reader
func (cm *connectionManager) observe(e session.Event) {
	if e.Direction == session.Inbound {
		if first, skipped := cm.tracker.frame(); first {
			select {
			case cm.syncChan <- controlSyncMsg{skippedErrors: skipped}:
			default:
			}
		}
	}

	select {
	case cm.batchChan <- controlDataMsg{event: &e}:
	default:
	}
}

func (cm *connectionManager) onError(err error) {
	if !cm.tracker.error() {
		return
	}
	select {
	case cm.batchChan <- controlDataMsg{err: err}:
	default:
	}
}

// batchLoop sends batched updates to the TUI at a fixed rate
func (cm *connectionManager) batchLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-cm.ctx.Done():
			return
		case <-ticker.C:
			var batch controlBatchMsg

			// Check for sync message
			select {
			case sync := <-cm.syncChan:
				batch.syncMsg = &sync
			default:
			}

			// Drain all available messages from batch channel
		drainLoop:
			for {
				select {
				case msg := <-cm.batchChan:
					batch.messages = append(batch.messages, msg)
				default:
					break drainLoop
				}
			}

			// Send batch if we have anything
			if batch.syncMsg != nil || len(batch.messages) > 0 {
				cm.p.Send(batch)
			}
		}
	}
}

// readerLoop runs the session on the current connection and reconnects when
// it is lost
func (cm *connectionManager) readerLoop() {
	for {
		err := cm.sess.Run(cm.ctx, cm.getConn())
		if cm.ctx.Err() != nil {
			return
		}

		logger.Warn().Err(err).Msg("connection lost")
		cm.p.Send(connectionLostMsg{})

		// Attempt to reconnect
		if !cm.reconnect() {
			return // Shutdown requested during reconnect
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	cm.sess.Disconnect()
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.sess.Connect(conn)
			cm.tracker.reset()

			// Notify TUI about reconnection
			cm.p.Send(reconnectedMsg{connInfo: connInfo})

			cm.requestZones()
			return true
		}
		logger.Debug().Err(err).Dur("backoff", backoff).Msg("reconnect failed")

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
