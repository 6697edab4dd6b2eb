// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

import "fmt"

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidVolume
	AnomalyInvalidSource
	AnomalyInvalidParameter
	AnomalyInvalidValue
	AnomalyChecksumError
	AnomalyTruncated
)

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame reports frame-level anomalies: checksum mismatch and
// truncated message bodies.
func ValidateFrame(f *Frame, m Message) []ValidationError {
	errors := []ValidationError{}

	if !f.ChecksumValid() {
		errors = append(errors, ValidationError{
			Type:    AnomalyChecksumError,
			Message: fmt.Sprintf("Checksum mismatch (received 0x%02X)", f.Checksum),
			Details: map[string]interface{}{"checksum": f.Checksum},
		})
	}

	if err := DecodeError(m); err != nil {
		errors = append(errors, ValidationError{
			Type:    AnomalyTruncated,
			Message: err.Error(),
			Details: map[string]interface{}{"length": len(f.Body)},
		})
	}

	return errors
}

// ValidatePacket detects out-of-range values in a classified packet.
// The wire-level message is passed so payload lengths can be checked.
// Returns a slice of validation errors (empty if packet is valid)
func ValidatePacket(p Packet, m Message) []ValidationError {
	errors := []ValidationError{}

	switch v := p.(type) {
	case *ZoneInfoPacket:
		if dm, ok := m.(*DataMessage); ok && len(dm.Data) < ZoneInfoSize {
			errors = append(errors, ValidationError{
				Type:    AnomalyLengthMismatch,
				Message: fmt.Sprintf("ZONE_INFO payload too short (%d bytes, expected %d)", len(dm.Data), ZoneInfoSize),
				Details: map[string]interface{}{"length": len(dm.Data), "expected": ZoneInfoSize},
			})
		}
		errors = append(errors, validateVolume(v.Volume)...)
		errors = append(errors, validateSource(v.SourceID)...)
		errors = append(errors, validateSigned("bass", v.Bass)...)
		errors = append(errors, validateSigned("treble", v.Treble)...)
		errors = append(errors, validateSigned("balance", v.Balance)...)
		if v.PartyMode > 2 {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Invalid party mode=%d (max 2)", v.PartyMode),
				Details: map[string]interface{}{"party_mode": v.PartyMode, "max": 2},
			})
		}

	case *ZoneVolumePacket:
		errors = append(errors, validateVolume(v.Volume)...)
	case *SetVolumePacket:
		errors = append(errors, validateVolume(v.Volume)...)
	case *ZoneSourcePacket:
		errors = append(errors, validateSource(v.SourceID)...)
	case *SetSourcePacket:
		errors = append(errors, validateSource(v.SourceID)...)

	case *ZoneParameterPacket:
		errors = append(errors, validateParameter(v.Parameter, v.Value)...)
	case *SetParameterPacket:
		errors = append(errors, validateParameter(v.Parameter, v.Value)...)
	}

	return errors
}

func validateVolume(volume int) []ValidationError {
	if volume < 0 || volume > MaxVolume {
		return []ValidationError{{
			Type:    AnomalyInvalidVolume,
			Message: fmt.Sprintf("Volume out of range (%d, valid: 0-%d)", volume, MaxVolume),
			Details: map[string]interface{}{"volume": volume, "max": MaxVolume},
		}}
	}
	return nil
}

func validateSource(source byte) []ValidationError {
	if source >= MaxSources {
		return []ValidationError{{
			Type:    AnomalyInvalidSource,
			Message: fmt.Sprintf("Invalid source=%d (max %d)", source, MaxSources-1),
			Details: map[string]interface{}{"source": source, "max": MaxSources - 1},
		}}
	}
	return nil
}

func validateSigned(name string, value int) []ValidationError {
	if value < -10 || value > 10 {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("%s out of range (%d, valid: -10 to +10)", name, value),
			Details: map[string]interface{}{name: value, "min": -10, "max": 10},
		}}
	}
	return nil
}

func validateParameter(id ParameterID, value ParameterValue) []ValidationError {
	if err := ValidateParameter(id, value); err != nil {
		return []ValidationError{{
			Type:    AnomalyInvalidParameter,
			Message: err.Error(),
			Details: map[string]interface{}{"parameter": uint8(id), "value": value.Int},
		}}
	}
	return nil
}
