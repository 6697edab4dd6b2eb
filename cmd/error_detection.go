// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track framing errors, malformed packets and anomalous values with statistics.

This command validates each frame and detects:
  - Framing errors (missing markers, oversized or truncated frames)
  - Checksum mismatches (reported, but the frame is still decoded)
  - Anomalous zone values (volume > 100, invalid source, parameter out of range)
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid packets too.

Framing errors seen before the first complete frame are counted but not shown,
since the reader usually starts mid-frame.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return errors.New("--stats-interval must be positive")
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := newSession(conn)

	db, err := openStore(sess)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	if useTUI {
		return runTUIMode(sess, conn, connInfo)
	}
	return runTextMode(sess, conn, connInfo)
}

// syncTracker hides framing errors until the first complete frame arrives
type syncTracker struct {
	mu           sync.Mutex
	synchronized bool
	skipped      int
}

// frame marks the stream synchronized. It reports true, with the number of
// errors skipped, only for the first frame.
func (t *syncTracker) frame() (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.synchronized {
		return false, 0
	}
	t.synchronized = true
	return true, t.skipped
}

// error reports whether err should be shown
func (t *syncTracker) error() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.synchronized {
		t.skipped++
		return false
	}
	return true
}

// reset forgets synchronization, as after a reconnect
func (t *syncTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.synchronized = false
	t.skipped = 0
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> FRAME DISCARDED <<<\n\n")
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(e session.Event) {
	timestamp := e.Time.Format("15:04:05.000")
	name := rnet.FormatMessageType(e.Frame.MessageType)
	if e.Packet != nil {
		name = rnet.FormatPacketName(e.Packet)
	}

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s from %d.%d\n",
		timestamp, name, e.Frame.SourceControllerID, e.Frame.SourceZoneID)
	if e.Frame.ChecksumValid() {
		fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")
	} else {
		fmt.Printf("  Checksum: \033[1;31mMISMATCH\033[0m\n")
	}

	for i, a := range e.Anomalies {
		switch a.Type {
		case rnet.AnomalyLengthMismatch, rnet.AnomalyTruncated:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, a.Message)
			if length, ok := a.Details["length"].(int); ok {
				fmt.Printf("    Length: %d bytes\n", length)
			}

		case rnet.AnomalyInvalidVolume:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)

		case rnet.AnomalyInvalidSource:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)
			if source, ok := a.Details["source"].(byte); ok {
				fmt.Printf("    Source=%d (valid: 0-%d)\n", source, rnet.MaxSources-1)
			}

		case rnet.AnomalyInvalidParameter:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)
			if id, ok := a.Details["parameter"].(uint8); ok {
				fmt.Printf("    Parameter: %s\n", rnet.ParameterID(id))
			}

		case rnet.AnomalyChecksumError:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, a.Message)
		}
	}

	fmt.Print(rnet.FormatHex(e.Frame.Raw()))
	fmt.Printf("  >>> PACKET FLAGGED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(sess *session.Session, conn Connection, connInfo string) error {
	tracker := &syncTracker{}

	m := initialModel(sess, connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	sess.Observe(func(e session.Event) {
		if e.Direction == session.Inbound {
			if first, skipped := tracker.frame(); first {
				p.Send(syncMsg{skippedErrors: skipped})
			}
		}
		p.Send(busEventMsg{event: e})
	})
	sess.OnError(func(err error) {
		if tracker.error() {
			p.Send(busErrorMsg{err: err})
		}
	})

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		err := sess.Run(ctx, conn)
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("connection lost")
			p.Send(busErrorMsg{err: err})
		}
	}()

	if _, err := p.Run(); err != nil {
		return errors.Wrap(err, "TUI error")
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(sess *session.Session, conn Connection, connInfo string) error {
	fmt.Printf("rnetstat - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	tracker := &syncTracker{}

	sess.Observe(func(e session.Event) {
		if e.Direction == session.Outbound {
			if showAll {
				fmt.Printf("%s %s", e.Direction, rnet.FormatPacket(e.Time, e.Packet))
			}
			return
		}

		if first, skipped := tracker.frame(); first {
			if skipped > 0 {
				fmt.Printf("[SYNC] Synchronized after %d framing errors\n\n", skipped)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}
		}

		switch {
		case len(e.Anomalies) > 0:
			printValidationErrors(e)
		case !showAll:
		case e.Packet == nil:
			fmt.Printf("%s %s\n", e.Direction, rnet.FormatFrame(e.Frame))
		default:
			fmt.Printf("%s %s", e.Direction, rnet.FormatPacket(e.Time, e.Packet))
		}
	})
	sess.OnError(func(err error) {
		if tracker.error() {
			printDecodeError(err)
		}
	})

	ctx, cancel := signalContext()
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(ctx, conn)
	}()

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-statsTicker.C:
			stats := sess.Stats()
			stats.CalculateRates()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case <-ctx.Done():
			conn.Close()
			<-done
			stats := sess.Stats()
			stats.CalculateRates()
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case err := <-done:
			if isConnectionClosed(err) {
				logger.Info().Msg("connection closed")
				return nil
			}
			return err
		}
	}
}
