// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

var (
	packetTestTimeout int
	packetTestRequest bool
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid RNet frame",
	Long: `Wait for a valid RNet frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any complete
RNet frame. It ignores bytes outside a frame and frames that fail to parse.

An idle RNet bus is silent. Use --request to send a zone info request to
controller 0, zone 0 so the controller answers.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing connectivity to a controller or a WebSocket bridge.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	packetTestCmd.Flags().BoolVar(&packetTestRequest, "request", false, "Request zone 0 info to provoke a reply")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("rnetstat - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)

	if packetTestRequest {
		if _, err := conn.Write(rnet.EncodePacket(rnet.NewRequestZoneInfo(0, 0))); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("Sent zone info request to 0.0\n")
	}
	fmt.Printf("Waiting for valid RNet frame...\n\n")

	decoder := rnet.NewDecoder()
	buf := make([]byte, 128)

	frameChan := make(chan *rnet.Frame, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		discarded := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				frame, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					discarded++
					continue
				}
				if frame != nil {
					if discarded > 0 {
						fmt.Printf("(discarded %d framing errors before sync)\n", discarded)
					}
					frameChan <- frame
					return
				}
			}
		}
	}()

	select {
	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", rnet.FormatMessageType(frame.MessageType), frame.MessageType)
		fmt.Printf("  Source: %d.%d.%d\n", frame.SourceControllerID, frame.SourceZoneID, frame.SourceKeypadID)
		fmt.Printf("  Target: %d.%d.%d\n", frame.TargetControllerID, frame.TargetZoneID, frame.TargetKeypadID)
		fmt.Printf("  Length: %d bytes\n", len(frame.Raw()))
		if frame.ChecksumValid() {
			fmt.Printf("  Checksum: 0x%02X\n", frame.Checksum)
		} else {
			fmt.Printf("  Checksum: 0x%02X (mismatch)\n", frame.Checksum)
		}
		if p := rnet.Classify(rnet.DecodeMessage(frame)); p != nil {
			fmt.Printf("  Packet: %s\n", rnet.FormatPacketName(p))
		}
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
