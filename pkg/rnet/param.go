// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

import "fmt"

// ParameterID identifies a zone parameter.
type ParameterID uint8

// Zone parameter IDs
const (
	ParamBass            ParameterID = 0
	ParamTreble          ParameterID = 1
	ParamLoudness        ParameterID = 2
	ParamBalance         ParameterID = 3
	ParamTurnOnVolume    ParameterID = 4
	ParamBackgroundColor ParameterID = 5
	ParamDoNotDisturb    ParameterID = 6
	ParamPartyMode       ParameterID = 7
	ParamFrontAVEnable   ParameterID = 8
)

// signedOffset is added to signed parameter values on the wire.
const signedOffset = 10

var parameterNames = [...]string{
	"BASS", "TREBLE", "LOUDNESS", "BALANCE", "TURN_ON_VOLUME",
	"BACKGROUND_COLOR", "DO_NOT_DISTURB", "PARTY_MODE", "FRONT_AV_ENABLE",
}

func (id ParameterID) String() string {
	if int(id) < len(parameterNames) {
		return parameterNames[id]
	}
	return fmt.Sprintf("PARAM_%d", uint8(id))
}

// ValueKind tags a ParameterValue.
type ValueKind uint8

const (
	KindUnsigned ValueKind = iota
	KindSigned
	KindBoolean
)

// ParameterValue is a parameter value tagged by kind. Int holds the value for
// signed and unsigned kinds; Bool holds it for the boolean kind.
type ParameterValue struct {
	Kind ValueKind
	Int  int
	Bool bool
}

// SignedValue returns a signed parameter value
func SignedValue(v int) ParameterValue {
	return ParameterValue{Kind: KindSigned, Int: v}
}

// UnsignedValue returns an unsigned parameter value
func UnsignedValue(v int) ParameterValue {
	return ParameterValue{Kind: KindUnsigned, Int: v}
}

// BoolValue returns a boolean parameter value
func BoolValue(v bool) ParameterValue {
	return ParameterValue{Kind: KindBoolean, Bool: v}
}

func (v ParameterValue) String() string {
	switch v.Kind {
	case KindBoolean:
		if v.Bool {
			return "on"
		}
		return "off"
	case KindSigned:
		return fmt.Sprintf("%+d", v.Int)
	}
	return fmt.Sprintf("%d", v.Int)
}

// IsSigned reports whether a parameter is signed (-10..+10).
func IsSigned(id ParameterID) (bool, error) {
	switch id {
	case ParamBass, ParamTreble, ParamBalance:
		return true, nil
	case ParamLoudness, ParamTurnOnVolume, ParamBackgroundColor,
		ParamDoNotDisturb, ParamPartyMode, ParamFrontAVEnable:
		return false, nil
	}
	return false, &InvalidParameterError{ID: id}
}

// IsBoolean reports whether a parameter is an on/off flag.
func IsBoolean(id ParameterID) (bool, error) {
	switch id {
	case ParamLoudness, ParamDoNotDisturb, ParamFrontAVEnable:
		return true, nil
	case ParamBass, ParamTreble, ParamBalance, ParamTurnOnVolume,
		ParamBackgroundColor, ParamPartyMode:
		return false, nil
	}
	return false, &InvalidParameterError{ID: id}
}

// Kind returns the value kind of a parameter.
func (id ParameterID) Kind() (ValueKind, error) {
	if signed, err := IsSigned(id); err != nil {
		return 0, err
	} else if signed {
		return KindSigned, nil
	}
	if boolean, _ := IsBoolean(id); boolean {
		return KindBoolean, nil
	}
	return KindUnsigned, nil
}

// Range returns the inclusive domain range of a non-boolean parameter.
// Boolean parameters report 0..1.
func Range(id ParameterID) (lo, hi int, err error) {
	switch id {
	case ParamBass, ParamTreble, ParamBalance:
		return -10, 10, nil
	case ParamTurnOnVolume:
		return 0, 100, nil
	case ParamBackgroundColor, ParamPartyMode:
		return 0, 2, nil
	case ParamLoudness, ParamDoNotDisturb, ParamFrontAVEnable:
		return 0, 1, nil
	}
	return 0, 0, &InvalidParameterError{ID: id}
}

// ValidateParameter checks a value against the parameter's kind and range.
func ValidateParameter(id ParameterID, v ParameterValue) error {
	kind, err := id.Kind()
	if err != nil {
		return err
	}
	if v.Kind != kind {
		return &InvalidParameterError{ID: id, Reason: "value kind does not match parameter"}
	}
	if kind == KindBoolean {
		return nil
	}
	lo, hi, _ := Range(id)
	if v.Int < lo || v.Int > hi {
		return &InvalidParameterError{ID: id, Reason: fmt.Sprintf("value %d outside %d..%d", v.Int, lo, hi)}
	}
	return nil
}

// EncodeParameter converts a parameter value to its wire byte. Signed values
// are offset by +10.
func EncodeParameter(id ParameterID, v ParameterValue) (byte, error) {
	if err := ValidateParameter(id, v); err != nil {
		return 0, err
	}
	return encodeParameterLenient(id, v), nil
}

// DecodeParameter converts a wire byte to a parameter value.
func DecodeParameter(id ParameterID, b byte) (ParameterValue, error) {
	kind, err := id.Kind()
	if err != nil {
		return ParameterValue{}, err
	}
	v := decodeByKind(kind, b)
	if err := ValidateParameter(id, v); err != nil {
		return ParameterValue{}, err
	}
	return v, nil
}

// decodeParameterLenient is used when decoding wire data: unknown parameter
// IDs fall back to an unsigned raw byte and out-of-range values are kept.
func decodeParameterLenient(id ParameterID, b byte) ParameterValue {
	kind, err := id.Kind()
	if err != nil {
		kind = KindUnsigned
	}
	return decodeByKind(kind, b)
}

func encodeParameterLenient(id ParameterID, v ParameterValue) byte {
	switch v.Kind {
	case KindBoolean:
		return boolByte(v.Bool)
	case KindSigned:
		return byte(v.Int + signedOffset)
	}
	return byte(v.Int)
}

func decodeByKind(kind ValueKind, b byte) ParameterValue {
	switch kind {
	case KindSigned:
		return SignedValue(int(b) - signedOffset)
	case KindBoolean:
		return BoolValue(b != 0)
	}
	return UnsignedValue(int(b))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
