// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rnetstat/internal/store"
)

var zonesClear bool

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Show the zone state recorded in the zone database",
	Long: `Print every zone and source text stored in the zone database.

The database is filled by any command run with store.enabled set in the config
file, and by replay --store. No connection is opened.

Use --clear to empty the database.`,
	Args: cobra.NoArgs,
	RunE: runZones,
}

func init() {
	rootCmd.AddCommand(zonesCmd)
	zonesCmd.Flags().BoolVar(&zonesClear, "clear", false, "Delete every stored zone and source text")
}

func runZones(cmd *cobra.Command, args []string) error {
	db, err := store.Open(store.Config{Path: cfg.Store.Path}, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := store.NewZoneRepository(db.GetDB())

	if zonesClear {
		if err := repo.DeleteAll(); err != nil {
			return err
		}
		fmt.Printf("Cleared %s\n", cfg.Store.Path)
		return nil
	}

	zones, err := repo.List()
	if err != nil {
		return err
	}
	texts, err := repo.SourceTexts()
	if err != nil {
		return err
	}

	if len(zones) == 0 && len(texts) == 0 {
		fmt.Printf("No zones recorded in %s\n", cfg.Store.Path)
		return nil
	}

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	styleFunc := func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	}

	if len(zones) > 0 {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
			StyleFunc(styleFunc).
			Headers("Zone", "Addr", "Power", "Src", "Vol", "Bass", "Treble", "Bal", "Loud", "DND", "Party", "Updated")

		for _, z := range zones {
			t.Row(
				z.Label(),
				fmt.Sprintf("%d.%d", z.ControllerID, z.ZoneID),
				onOff(z.Power),
				strconv.Itoa(int(z.SourceID)),
				strconv.Itoa(z.Volume),
				fmt.Sprintf("%+d", z.Bass),
				fmt.Sprintf("%+d", z.Treble),
				fmt.Sprintf("%+d", z.Balance),
				onOff(z.Loudness),
				onOff(z.DoNotDisturb),
				strconv.Itoa(z.PartyMode),
				z.UpdatedAt.Local().Format("01/02 15:04:05"),
			)
		}
		fmt.Println(t.Render())
	}

	if len(texts) > 0 {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
			StyleFunc(styleFunc).
			Headers("Source", "Text", "Updated")

		for _, st := range texts {
			t.Row(
				fmt.Sprintf("%d.%d", st.ControllerID, st.SourceID),
				st.Text,
				st.UpdatedAt.Local().Format("01/02 15:04:05"),
			)
		}
		fmt.Println(t.Render())
	}

	return nil
}
