// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// rnetstat - RNet Serial Bus Analyzer
//
// A CLI tool for monitoring, decoding and controlling RNet multi-zone audio
// controllers over a serial port or a WebSocket bridge.

package main

import (
	"os"

	"github.com/Thermoquad/rnetstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
