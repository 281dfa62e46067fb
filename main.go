// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group
//
// gouwb - Host-side driver for DECAR UWB ranging modules
//
// A CLI for discovering, ranging with, and messaging between UWB
// modules attached over a serial link or a serial-over-WebSocket
// bridge.

package main

import (
	"os"

	"github.com/decargroup/gouwb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
