// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rnetstat/internal/capture"
	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

var (
	rawLogRecord  string
	rawLogFrames  bool
	rawLogNoReply bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display RNet packets as they arrive.

Each frame is shown with timestamp, direction, packet type and decoded fields.
Frames that do not classify are shown as a header and hex dump.

rnetstat acknowledges controller replies with a handshake, as a keypad would.
Use --no-reply to listen without ever writing to the bus.

With --record, every frame (in both directions) is also appended to a capture
file that the replay command can decode later.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecord, "record", "", "Record frames to a capture file")
	rawLogCmd.Flags().BoolVar(&rawLogFrames, "frames", false, "Show a hex dump of every classified frame")
	rawLogCmd.Flags().BoolVar(&rawLogNoReply, "no-reply", false, "Never transmit (no handshake replies)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := newSession(conn)
	if rawLogNoReply {
		sess.Disconnect()
	}

	db, err := openStore(sess)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	fmt.Printf("rnetstat - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)

	if rawLogRecord != "" {
		f, err := os.Create(rawLogRecord)
		if err != nil {
			return errors.Wrap(err, "create capture file")
		}
		defer f.Close()

		w := capture.NewWriter(f)
		defer func() {
			if err := w.Flush(); err != nil {
				logger.Error().Err(err).Msg("failed to flush capture")
			}
			fmt.Printf("Recorded %d frames to %s\n", w.Count(), rawLogRecord)
		}()
		sess.Observe(w.Observer())
		fmt.Printf("Recording: %s\n", rawLogRecord)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sess.Observe(func(e session.Event) {
		printEvent(e, rawLogFrames)
	})
	sess.OnError(func(err error) {
		fmt.Printf("[ERROR] %v\n", err)
	})

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	err = sess.Run(ctx, conn)
	if ctx.Err() != nil || isConnectionClosed(err) {
		logger.Info().Msg("connection closed")
		return nil
	}
	return err
}

// printEvent prints one session event in raw_log format. With frames set,
// classified packets are followed by a hex dump of the wire bytes.
func printEvent(e session.Event, frames bool) {
	if e.Packet == nil {
		fmt.Printf("%s %s\n", e.Direction, rnet.FormatFrame(e.Frame))
		return
	}

	fmt.Printf("%s %s", e.Direction, rnet.FormatPacket(e.Time, e.Packet))
	if frames {
		fmt.Print(rnet.FormatHex(e.Frame.Raw()))
	}
	for _, a := range e.Anomalies {
		fmt.Printf("  \033[1;33m! %s\033[0m\n", a.Message)
	}
}
