// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Stradus - Vortran Stradus Laser Controller CLI
//
// A CLI tool for controlling and monitoring Stradus diode lasers over a
// serial line or a WebSocket serial bridge.

package main

import (
	"os"

	"github.com/Thermoquad/stradus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
