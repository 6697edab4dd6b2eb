// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

// ZoneRepository records zone replies and serves the stored zone table
type ZoneRepository struct {
	db *gorm.DB
}

// NewZoneRepository creates a new repository instance
func NewZoneRepository(db *gorm.DB) *ZoneRepository {
	return &ZoneRepository{db: db}
}

// Apply folds a zone reply into the stored state. It reports whether p was a
// packet the store tracks; commands and keypad traffic are ignored.
func (r *ZoneRepository) Apply(p rnet.Packet) (bool, error) {
	switch p := p.(type) {
	case *rnet.ZoneInfoPacket:
		return true, r.update(p.ControllerID, p.ZoneID, func(z *ZoneState) {
			z.Power = p.Power
			z.SourceID = p.SourceID
			z.Volume = p.Volume
			z.Bass = p.Bass
			z.Treble = p.Treble
			z.Loudness = p.Loudness
			z.Balance = p.Balance
			z.PartyMode = int(p.PartyMode)
			z.DoNotDisturb = p.DoNotDisturb != 0
		})
	case *rnet.ZonePowerPacket:
		return true, r.update(p.ControllerID, p.ZoneID, func(z *ZoneState) {
			z.Power = p.Power
		})
	case *rnet.ZoneVolumePacket:
		return true, r.update(p.ControllerID, p.ZoneID, func(z *ZoneState) {
			z.Volume = p.Volume
		})
	case *rnet.ZoneSourcePacket:
		return true, r.update(p.ControllerID, p.ZoneID, func(z *ZoneState) {
			z.SourceID = p.SourceID
		})
	case *rnet.ZoneParameterPacket:
		return true, r.update(p.ControllerID, p.ZoneID, func(z *ZoneState) {
			applyParameter(z, p.Parameter, p.Value)
		})
	case *rnet.SourceDescriptiveTextPacket:
		return true, r.saveSourceText(p)
	}
	return false, nil
}

func applyParameter(z *ZoneState, id rnet.ParameterID, v rnet.ParameterValue) {
	switch id {
	case rnet.ParamBass:
		z.Bass = v.Int
	case rnet.ParamTreble:
		z.Treble = v.Int
	case rnet.ParamLoudness:
		z.Loudness = v.Bool
	case rnet.ParamBalance:
		z.Balance = v.Int
	case rnet.ParamTurnOnVolume:
		z.TurnOnVolume = v.Int
	case rnet.ParamBackgroundColor:
		z.BackgroundColor = v.Int
	case rnet.ParamDoNotDisturb:
		z.DoNotDisturb = v.Bool
	case rnet.ParamPartyMode:
		z.PartyMode = v.Int
	case rnet.ParamFrontAVEnable:
		z.FrontAVEnable = v.Bool
	}
}

// update loads (or initialises) one zone row, applies fn and saves it
func (r *ZoneRepository) update(controllerID, zoneID byte, fn func(*ZoneState)) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var zone ZoneState
		err := tx.Where("controller_id = ? AND zone_id = ?", controllerID, zoneID).First(&zone).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "load zone")
		}
		zone.ControllerID = controllerID
		zone.ZoneID = zoneID
		fn(&zone)
		zone.UpdatedAt = time.Now()

		if err := tx.Save(&zone).Error; err != nil {
			return errors.Wrap(err, "save zone")
		}
		return nil
	})
}

func (r *ZoneRepository) saveSourceText(p *rnet.SourceDescriptiveTextPacket) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var text SourceText
		err := tx.Where("controller_id = ? AND source_id = ?", p.ControllerID, p.SourceID).First(&text).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "load source text")
		}
		text.ControllerID = p.ControllerID
		text.SourceID = p.SourceID
		text.Text = p.Text
		text.UpdatedAt = time.Now()

		if err := tx.Save(&text).Error; err != nil {
			return errors.Wrap(err, "save source text")
		}
		return nil
	})
}

// SetName names a zone, creating its row if needed
func (r *ZoneRepository) SetName(controllerID, zoneID byte, name string) error {
	return r.update(controllerID, zoneID, func(z *ZoneState) {
		z.Name = name
	})
}

// Get finds one zone
func (r *ZoneRepository) Get(controllerID, zoneID byte) (*ZoneState, error) {
	var zone ZoneState
	err := r.db.Where("controller_id = ? AND zone_id = ?", controllerID, zoneID).First(&zone).Error
	if err != nil {
		return nil, err
	}
	return &zone, nil
}

// List returns every known zone ordered by address
func (r *ZoneRepository) List() ([]ZoneState, error) {
	var zones []ZoneState
	err := r.db.Order("controller_id").Order("zone_id").Find(&zones).Error
	return zones, err
}

// SourceTexts returns the stored source texts ordered by address
func (r *ZoneRepository) SourceTexts() ([]SourceText, error) {
	var texts []SourceText
	err := r.db.Order("controller_id").Order("source_id").Find(&texts).Error
	return texts, err
}

// Count returns the number of known zones
func (r *ZoneRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&ZoneState{}).Count(&count).Error
	return count, err
}

// DeleteAll removes every stored zone and source text
func (r *ZoneRepository) DeleteAll() error {
	if err := r.db.Where("1 = 1").Delete(&ZoneState{}).Error; err != nil {
		return err
	}
	return r.db.Where("1 = 1").Delete(&SourceText{}).Error
}

// Observer returns a session observer that records inbound zone replies
func (r *ZoneRepository) Observer(log zerolog.Logger) session.Observer {
	log = log.With().Str("component", "store").Logger()
	return func(e session.Event) {
		if e.Direction != session.Inbound || e.Packet == nil {
			return
		}
		if _, err := r.Apply(e.Packet); err != nil {
			log.Error().Err(err).Msg("failed to record zone state")
		}
	}
}
