// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"fmt"
	"time"
)

// ZoneState is the last reported state of one zone
type ZoneState struct {
	ID              uint   `gorm:"primarykey"`
	ControllerID    uint8  `gorm:"uniqueIndex:idx_zone_states_zone;not null"`
	ZoneID          uint8  `gorm:"uniqueIndex:idx_zone_states_zone;not null"`
	Name            string `gorm:"size:64"`
	Power           bool
	SourceID        uint8
	Volume          int
	Bass            int
	Treble          int
	Loudness        bool
	Balance         int
	TurnOnVolume    int
	BackgroundColor int
	DoNotDisturb    bool
	PartyMode       int
	FrontAVEnable   bool
	UpdatedAt       time.Time
}

// TableName specifies the table name for GORM
func (ZoneState) TableName() string {
	return "zone_states"
}

// Label returns the zone name, or its address when unnamed
func (z ZoneState) Label() string {
	if z.Name != "" {
		return z.Name
	}
	return fmt.Sprintf("Zone %d.%d", z.ControllerID, z.ZoneID)
}

func (z ZoneState) String() string {
	power := "off"
	if z.Power {
		power = "on"
	}
	return fmt.Sprintf("%s: %s, source %d, volume %d", z.Label(), power, z.SourceID, z.Volume)
}

// SourceText is the last descriptive text published by a source
type SourceText struct {
	ID           uint   `gorm:"primarykey"`
	ControllerID uint8  `gorm:"uniqueIndex:idx_source_texts_source;not null"`
	SourceID     uint8  `gorm:"uniqueIndex:idx_source_texts_source;not null"`
	Text         string `gorm:"size:256"`
	UpdatedAt    time.Time
}

// TableName specifies the table name for GORM
func (SourceText) TableName() string {
	return "source_texts"
}
