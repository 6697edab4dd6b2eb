// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

var (
	scanTimeout     int
	scanControllers int
	scanZones       int
)

var zoneScanCmd = &cobra.Command{
	Use:   "zone_scan",
	Short: "Discover zones by requesting zone info from every controller",
	Long: `Send a zone info request to every zone of every controller and report
which zones answer.

Requests are sequenced: each one waits for the controller's handshake (or the
handshake timeout) before the next goes out, so a full scan of one controller
takes a few seconds.

Examples:
  # Scan the first controller
  rnetstat zone_scan --port /dev/ttyUSB0

  # Scan two chained controllers through a bridge
  rnetstat zone_scan --url ws://pi.local/ws --controllers 2

Exit codes:
  0 - Scan successful (at least one zone answered)
  1 - No zone answered before the timeout
  2 - Connection error`,
	RunE: runZoneScan,
}

func init() {
	rootCmd.AddCommand(zoneScanCmd)
	zoneScanCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Timeout in seconds for the whole scan")
	zoneScanCmd.Flags().IntVar(&scanControllers, "controllers", 1, "Number of controllers to scan")
	zoneScanCmd.Flags().IntVar(&scanZones, "zones", rnet.MaxZones, "Zones per controller")
}

// zoneCollector gathers zone info replies from the session reader
type zoneCollector struct {
	mu    sync.Mutex
	zones zoneTable
	want  int
	done  chan struct{}
}

func newZoneCollector(want int) *zoneCollector {
	return &zoneCollector{
		zones: make(zoneTable),
		want:  want,
		done:  make(chan struct{}),
	}
}

func (c *zoneCollector) observe(e session.Event) {
	info, ok := e.Packet.(*rnet.ZoneInfoPacket)
	if !ok || e.Direction != session.Inbound {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, seen := c.zones[zoneAddr{info.ControllerID, info.ZoneID}]
	c.zones.apply(info)
	if !seen {
		fmt.Print(rnet.FormatPacketFields(info))
		if len(c.zones) == c.want {
			close(c.done)
		}
	}
}

func (c *zoneCollector) result() []zoneView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zones.sorted()
}

func runZoneScan(cmd *cobra.Command, args []string) error {
	if scanControllers < 1 || scanControllers > int(rnet.AllControllers) {
		return errors.Errorf("--controllers must be between 1 and %d", rnet.AllControllers)
	}
	if scanZones < 1 || scanZones > rnet.MaxZones {
		return errors.Errorf("--zones must be between 1 and %d", rnet.MaxZones)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
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

	fmt.Printf("rnetstat - Zone Scan\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Controllers: %d, zones: %d\n", scanControllers, scanZones)
	fmt.Printf("Timeout: %d seconds\n\n", scanTimeout)

	collector := newZoneCollector(scanControllers * scanZones)
	sess.Observe(collector.observe)

	ctx, cancel := signalContext()
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- sess.Run(ctx, conn)
	}()

	fmt.Printf("Requesting zone info...\n")
	for c := 0; c < scanControllers; c++ {
		for z := 0; z < scanZones; z++ {
			if err := sess.Send(rnet.NewRequestZoneInfo(byte(c), byte(z))); err != nil {
				fmt.Printf("SEND FAILED: %v\n", err)
				os.Exit(2)
			}
		}
	}

	select {
	case <-collector.done:
		fmt.Printf("\nAll zones answered\n")
	case <-ctx.Done():
		fmt.Printf("\nInterrupted\n")
	case err := <-errChan:
		if err != nil && !isConnectionClosed(err) {
			fmt.Printf("READ FAILED: %v\n", err)
			os.Exit(2)
		}
	case <-time.After(time.Duration(scanTimeout) * time.Second):
		fmt.Printf("\nScan timeout reached\n")
	}

	zones := collector.result()

	// Summary
	fmt.Printf("\n--- Zone scan summary ---\n")
	fmt.Printf("Zones found: %d of %d\n", len(zones), scanControllers*scanZones)
	for _, z := range zones {
		fmt.Printf("  %-16s %-3s source %d, volume %d\n", z.label(), onOff(z.power), z.source, z.volume)
	}

	if len(zones) == 0 {
		fmt.Printf("No zones answered. Check the connection and controller power.\n")
		os.Exit(1)
	}

	return nil
}
