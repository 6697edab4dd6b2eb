// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

// CalculateChecksum computes the RNet checksum over every frame byte from the
// start marker through the end of the body. The byte count is added to the
// sum and the result is masked to 7 bits.
func CalculateChecksum(data []byte) byte {
	sum := len(data)
	for _, b := range data {
		sum += int(b)
	}
	return byte(sum & 0x7F)
}
