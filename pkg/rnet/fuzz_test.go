// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomPacket builds a random outbound or inbound packet whose wire form
// never carries a literal framing byte
func randomPacket(rng *rand.Rand) Packet {
	ctrl := byte(rng.Intn(6))
	zone := byte(rng.Intn(MaxZones))

	switch rng.Intn(8) {
	case 0:
		return &SetPowerPacket{ControllerID: ctrl, ZoneID: zone, Power: rng.Intn(2) == 1}
	case 1:
		return &SetVolumePacket{ControllerID: ctrl, ZoneID: zone, Volume: rng.Intn(51) * 2}
	case 2:
		return &SetSourcePacket{ControllerID: ctrl, ZoneID: zone, SourceID: byte(rng.Intn(MaxSources))}
	case 3:
		return &RequestDataPacket{ControllerID: ctrl, ZoneID: zone, Leaf: LeafInfo}
	case 4:
		return &KeypadEventPacket{
			ControllerID: ctrl,
			ZoneID:       zone,
			Key:          KeypadKey(keypadKeyMin + rng.Intn(keypadKeyMax-keypadKeyMin+1)),
			Timestamp:    uint16(rng.Intn(0x7000)),
			Data:         uint16(rng.Intn(0x100)),
		}
	case 5:
		return &ZoneInfoPacket{
			ControllerID: ctrl,
			ZoneID:       zone,
			Power:        rng.Intn(2) == 1,
			SourceID:     byte(rng.Intn(MaxSources)),
			Volume:       rng.Intn(51) * 2,
			Bass:         rng.Intn(21) - 10,
			Treble:       rng.Intn(21) - 10,
			Balance:      rng.Intn(21) - 10,
		}
	case 6:
		return &SetParameterPacket{ControllerID: ctrl, ZoneID: zone, Parameter: ParamBalance, Value: SignedValue(rng.Intn(21) - 10)}
	default:
		return NewHandshake(ctrl)
	}
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't crash or panic
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		length := rng.Intn(256) + 1
		data := make([]byte, length)
		rng.Read(data)

		for _, b := range data {
			f, _ := d.DecodeByte(b)
			if f != nil {
				m := DecodeMessage(f)
				Classify(m)
				if len(f.Raw()) < MinFrameSize {
					t.Fatalf("Round %d: frame shorter than minimum: % X", i, f.Raw())
				}
			}
		}
	}
}

// TestFuzzDecoder_FramedRandomBodies wraps random bodies in frames and checks
// decode and classification never panic
func TestFuzzDecoder_FramedRandomBodies(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		h := Header{
			TargetControllerID: byte(rng.Intn(0x80)),
			SourceControllerID: byte(rng.Intn(0x80)),
			MessageType:        byte(rng.Intn(8)),
		}
		body := make([]byte, rng.Intn(64))
		for j := range body {
			body[j] = byte(rng.Intn(0xF0))
		}

		f, err := ParseFrame(EncodeFrame(h, body))
		if err != nil {
			t.Fatalf("Round %d: ParseFrame failed: %v", i, err)
		}
		if !f.ChecksumValid() {
			t.Fatalf("Round %d: checksum mismatch", i)
		}
		Classify(DecodeMessage(f))
		Classify(DecodeMessageBody(h, body, true))
	}
}

// TestFuzzDecoder_RecoversFromNoise interleaves valid frames with noise and
// verifies every valid frame is still delivered in order
func TestFuzzDecoder_RecoversFromNoise(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		var stream []byte
		var expected []Packet

		count := rng.Intn(5) + 1
		for j := 0; j < count; j++ {
			// Noise never contains a start or end marker
			noise := make([]byte, rng.Intn(8))
			for k := range noise {
				noise[k] = byte(rng.Intn(0xF0))
			}
			if rng.Intn(3) == 0 {
				// Stray start marker leaves a pending partial frame
				noise = append(noise, StartByte, 0x01, 0x02)
			}
			stream = append(stream, noise...)

			p := randomPacket(rng)
			stream = append(stream, EncodePacket(p)...)
			expected = append(expected, p)
		}

		var got []Packet
		for _, b := range stream {
			f, _ := d.DecodeByte(b)
			if f != nil {
				got = append(got, Classify(DecodeMessage(f)))
			}
		}

		if len(got) != len(expected) {
			t.Fatalf("Round %d: expected %d packets, got %d", i, len(expected), len(got))
		}
		for j := range expected {
			if !packetsEqual(expected[j], got[j]) {
				t.Fatalf("Round %d packet %d: expected %+v, got %+v", i, j, expected[j], got[j])
			}
		}
	}
}

// TestFuzzEncoder_RoundTrip encodes random packets and verifies they decode
// to the same packet
func TestFuzzEncoder_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		p := randomPacket(rng)
		raw := EncodePacket(p)

		f, err := ParseFrame(raw)
		if err != nil {
			t.Fatalf("Round %d: ParseFrame failed: %v", i, err)
		}
		if cs := raw[len(raw)-2]; cs > 0x7F {
			t.Fatalf("Round %d: checksum 0x%02X exceeds 7 bits", i, cs)
		}
		if got := Classify(DecodeMessage(f)); !packetsEqual(p, got) {
			t.Fatalf("Round %d: expected %+v, got %+v", i, p, got)
		}
	}
}

func packetsEqual(a, b Packet) bool {
	if a == nil || b == nil {
		return a == b
	}
	return FormatPacketName(a) == FormatPacketName(b) &&
		FormatPacketFields(a) == FormatPacketFields(b) &&
		string(EncodePacket(a)) == string(EncodePacket(b))
}
