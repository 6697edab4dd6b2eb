// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rnetstat/internal/capture"
	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/internal/store"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

var (
	replayFrames  bool
	replayStats   bool
	replayRxOnly  bool
	replayToStore bool
	replayQuiet   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Decode a capture recorded with raw_log --record",
	Long: `Decode every frame of a capture file offline and print it in raw_log format.

Frames are parsed, classified and validated exactly as they are on a live
connection, with their original capture timestamps. No connection is opened.

With --store, inbound zone replies are applied to the zone database as if they
had just been received (store.path in the config file, default rnetstat.db).`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayFrames, "frames", false, "Show a hex dump of every classified frame")
	replayCmd.Flags().BoolVar(&replayStats, "stats", false, "Print statistics at the end")
	replayCmd.Flags().BoolVar(&replayRxOnly, "rx-only", false, "Skip frames rnetstat sent")
	replayCmd.Flags().BoolVar(&replayToStore, "store", false, "Apply zone replies to the zone database")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Do not print frames")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "open capture")
	}
	defer f.Close()

	var repo *store.ZoneRepository
	if replayToStore {
		db, err := store.Open(store.Config{Path: cfg.Store.Path}, &logger)
		if err != nil {
			return err
		}
		defer db.Close()
		repo = store.NewZoneRepository(db.GetDB())
	}

	stats := rnet.NewStatistics()
	r := capture.NewReader(f)

	for n := 1; ; n++ {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "record %d", n)
		}

		e, err := replayEvent(rec)
		if err != nil {
			stats.UpdateError(err)
			if !replayQuiet {
				fmt.Printf("[ERROR] %v\n", err)
			}
			continue
		}

		if e.Direction == session.Outbound && replayRxOnly {
			continue
		}
		if e.Direction == session.Inbound {
			stats.Update(e.Packet, e.Anomalies)
		}

		if !replayQuiet {
			printEvent(e, replayFrames)
		}

		if repo != nil && e.Direction == session.Inbound && e.Packet != nil {
			if _, err := repo.Apply(e.Packet); err != nil {
				return err
			}
		}
	}

	if replayStats {
		fmt.Println()
		fmt.Print(stats.String())
	}
	return nil
}

// replayEvent rebuilds the session event of one capture record
func replayEvent(rec capture.Record) (session.Event, error) {
	f, err := rnet.ParseFrameAt(rec.Raw, rec.Time())
	if err != nil {
		return session.Event{}, err
	}

	m := rnet.DecodeMessage(f)
	p := rnet.Classify(m)

	e := session.Event{
		Direction: session.Direction(rec.Direction),
		Time:      rec.Time(),
		Frame:     f,
		Packet:    p,
	}
	if e.Direction == session.Inbound {
		e.Anomalies = rnet.ValidateFrame(f, m)
		if p != nil {
			e.Anomalies = append(e.Anomalies, rnet.ValidatePacket(p, m)...)
		}
	}
	return e, nil
}
