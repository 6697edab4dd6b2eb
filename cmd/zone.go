// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

var (
	zoneTimeout   int
	zoneNoConfirm bool
	zoneFlashTime int
)

var zoneCmd = &cobra.Command{
	Use:   "zone",
	Short: "Query and control a single zone",
	Long: `Send one command to a zone and confirm the result.

Zones are addressed by controller and zone number, both starting at 0.
After a set command, rnetstat requests the zone info and prints the zone's
new state. Use --no-confirm to skip the confirmation request.

Examples:
  rnetstat zone info 0 2
  rnetstat zone power 0 2 on
  rnetstat zone volume 0 2 40
  rnetstat zone source 0 2 3
  rnetstat zone param 0 2 bass -4
  rnetstat zone param 0 2 loudness on
  rnetstat zone all off
  rnetstat zone display 0 2 "Dinner is ready"

Exit codes:
  0 - Command sent (and confirmed)
  1 - No confirmation before the timeout
  2 - Connection error`,
}

func init() {
	rootCmd.AddCommand(zoneCmd)
	zoneCmd.PersistentFlags().IntVar(&zoneTimeout, "timeout", 5, "Timeout in seconds to wait for confirmation")
	zoneCmd.PersistentFlags().BoolVar(&zoneNoConfirm, "no-confirm", false, "Do not request zone info after the command")

	zoneCmd.AddCommand(&cobra.Command{
		Use:   "info <controller> <zone>",
		Short: "Print the zone's current state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, z, err := parseZoneArgs(args)
			if err != nil {
				return err
			}
			return runZoneCommand(c, z, nil, true)
		},
	})

	zoneCmd.AddCommand(&cobra.Command{
		Use:   "power <controller> <zone> on|off",
		Short: "Turn a zone on or off",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, z, err := parseZoneArgs(args)
			if err != nil {
				return err
			}
			on, err := parseOnOff(args[2])
			if err != nil {
				return err
			}
			return runZoneCommand(c, z, rnet.NewSetPower(c, z, on), !zoneNoConfirm)
		},
	})

	zoneCmd.AddCommand(&cobra.Command{
		Use:   "volume <controller> <zone> <0-100>",
		Short: "Set a zone's volume",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, z, err := parseZoneArgs(args)
			if err != nil {
				return err
			}
			volume, err := strconv.Atoi(args[2])
			if err != nil {
				return errors.Wrap(err, "parse volume")
			}
			p, err := rnet.NewSetVolume(c, z, volume)
			if err != nil {
				return err
			}
			return runZoneCommand(c, z, p, !zoneNoConfirm)
		},
	})

	zoneCmd.AddCommand(&cobra.Command{
		Use:   "source <controller> <zone> <source>",
		Short: "Select a zone's source",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, z, err := parseZoneArgs(args)
			if err != nil {
				return err
			}
			source, err := strconv.ParseUint(args[2], 10, 8)
			if err != nil {
				return errors.Wrap(err, "parse source")
			}
			p, err := rnet.NewSetSource(c, z, byte(source))
			if err != nil {
				return err
			}
			return runZoneCommand(c, z, p, !zoneNoConfirm)
		},
	})

	zoneCmd.AddCommand(&cobra.Command{
		Use:   "param <controller> <zone> <name> <value>",
		Short: "Set a zone parameter (bass, treble, loudness, balance, ...)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, z, err := parseZoneArgs(args)
			if err != nil {
				return err
			}
			id, err := parseParameterID(args[2])
			if err != nil {
				return err
			}
			value, err := parseParameterValue(id, args[3])
			if err != nil {
				return err
			}
			p, err := rnet.NewSetParameter(c, z, id, value)
			if err != nil {
				return err
			}
			return runZoneCommand(c, z, p, !zoneNoConfirm)
		},
	})

	zoneCmd.AddCommand(&cobra.Command{
		Use:   "all on|off",
		Short: "Turn every zone on every controller on or off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			return runZoneCommand(0, 0, rnet.NewSetAllPower(on), false)
		},
	})

	displayCmd := &cobra.Command{
		Use:   "display <controller> <zone> <text>",
		Short: "Show a message on the zone's keypads",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, z, err := parseZoneArgs(args)
			if err != nil {
				return err
			}
			if zoneFlashTime < 0 || zoneFlashTime > 0xFFFF {
				return errors.Errorf("--flash must be between 0 and %d", 0xFFFF)
			}
			return runZoneCommand(c, z, rnet.NewDisplayMessage(c, z, args[2], uint16(zoneFlashTime)), false)
		},
	}
	displayCmd.Flags().IntVar(&zoneFlashTime, "flash", 0, "Flash time in milliseconds (0 for steady)")
	zoneCmd.AddCommand(displayCmd)
}

// parseZoneArgs parses the leading <controller> <zone> arguments
func parseZoneArgs(args []string) (byte, byte, error) {
	c, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil || c >= uint64(rnet.AllControllers) {
		return 0, 0, errors.Errorf("invalid controller %q", args[0])
	}
	z, err := strconv.ParseUint(args[1], 10, 8)
	if err != nil || z >= rnet.MaxZones {
		return 0, 0, errors.Errorf("invalid zone %q (valid: 0-%d)", args[1], rnet.MaxZones-1)
	}
	return byte(c), byte(z), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, errors.Errorf("expected on or off, got %q", s)
}

// parseParameterID accepts a parameter name (case and separator insensitive)
// or its numeric ID
func parseParameterID(s string) (rnet.ParameterID, error) {
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		id := rnet.ParameterID(n)
		if _, err := id.Kind(); err != nil {
			return 0, err
		}
		return id, nil
	}

	name := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	for id := rnet.ParamBass; id <= rnet.ParamFrontAVEnable; id++ {
		if id.String() == name {
			return id, nil
		}
	}
	return 0, errors.Errorf("unknown parameter %q", s)
}

func parseParameterValue(id rnet.ParameterID, s string) (rnet.ParameterValue, error) {
	kind, err := id.Kind()
	if err != nil {
		return rnet.ParameterValue{}, err
	}

	if kind == rnet.KindBoolean {
		on, err := parseOnOff(s)
		if err != nil {
			return rnet.ParameterValue{}, err
		}
		return rnet.BoolValue(on), nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return rnet.ParameterValue{}, errors.Wrapf(err, "parse %s value", id)
	}
	if kind == rnet.KindSigned {
		return rnet.SignedValue(n), nil
	}
	return rnet.UnsignedValue(n), nil
}

// runZoneCommand sends p (when not nil) and, with confirm set, requests the
// zone info of c.z and waits for the reply
func runZoneCommand(c, z byte, p rnet.Packet, confirm bool) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	sess := newSession(conn)
	defer sess.Close()

	db, err := openStore(sess)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	logger.Debug().Str("connection", connInfo).Msg("connected")

	reply := make(chan *rnet.ZoneInfoPacket, 1)
	sess.Observe(func(e session.Event) {
		info, ok := e.Packet.(*rnet.ZoneInfoPacket)
		if !ok || info.ControllerID != c || info.ZoneID != z {
			return
		}
		select {
		case reply <- info:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(zoneTimeout)*time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- sess.Run(ctx, conn)
	}()

	if p != nil {
		if err := sess.Send(p); err != nil {
			fmt.Fprintf(os.Stderr, "SEND FAILED: %v\n", err)
			os.Exit(2)
		}
		fmt.Print(rnet.FormatPacketName(p) + "\n" + rnet.FormatPacketFields(p))
	}

	if !confirm {
		// Give the sequencer a chance to transmit before the connection closes
		waitIdle(ctx, sess)
		return nil
	}

	if err := sess.Send(rnet.NewRequestZoneInfo(c, z)); err != nil {
		fmt.Fprintf(os.Stderr, "SEND FAILED: %v\n", err)
		os.Exit(2)
	}

	select {
	case info := <-reply:
		name := cfg.ZoneName(c, z)
		if name == "" {
			name = fmt.Sprintf("Zone %d.%d", c, z)
		}
		fmt.Printf("%s:\n%s", name, rnet.FormatPacketFields(info))
		return nil
	case err := <-errChan:
		if err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "READ FAILED: %v\n", err)
			os.Exit(2)
		}
	case <-ctx.Done():
	}

	fmt.Fprintf(os.Stderr, "TIMEOUT: zone %d.%d did not answer in %ds\n", c, z, zoneTimeout)
	os.Exit(1)
	return nil
}

// waitIdle waits until the sequencer has nothing queued or in flight
func waitIdle(ctx context.Context, sess *session.Session) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		seq := sess.Sequencer()
		if seq.Pending() == 0 && seq.State() == session.StateIdle {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
