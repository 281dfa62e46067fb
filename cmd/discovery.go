// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/decargroup/gouwb/pkg/uwb"
)

var discoveryProbeTimeout time.Duration

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Find UWB modules attached to local serial ports",
	Long: `Probe every local serial port for a UWB module.

Each port is opened at the configured baud rate and sent a GET_ID
command. Ports that answer within the probe timeout are reported with
the module id; ports that stay silent are skipped.

Examples:
  # Scan all ports at the default baud rate
  gouwb discovery

  # Faster scan on a quiet bench
  gouwb discovery --probe-timeout 300ms

Exit codes:
  0 - At least one module found
  1 - No modules found
  2 - Port enumeration error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().DurationVar(&discoveryProbeTimeout, "probe-timeout", time.Second, "Per-port response timeout")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Port enumeration error: %v\n", err)
		os.Exit(2)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		os.Exit(1)
	}

	fmt.Printf("gouwb - Module Discovery\n")
	fmt.Printf("Probing %d serial port(s) at %d baud\n\n", len(ports), baudRate)

	found := 0
	for _, name := range ports {
		id, ok := probePort(name)
		if ok {
			fmt.Printf("  %-20s module id %d\n", name, id)
			found++
		} else {
			logger.Debug().Str("port", name).Msg("no response")
		}
	}

	if found == 0 {
		fmt.Println("No UWB modules found")
		os.Exit(1)
	}
	fmt.Printf("\n%d module(s) found\n", found)
	return nil
}

// probePort opens one port and asks for the module id. Any failure,
// open error or timeout alike, means "not a module".
func probePort(name string) (int64, bool) {
	conn, err := OpenSerialConnection(name, baudRate)
	if err != nil {
		logger.Debug().Err(err).Str("port", name).Msg("open failed")
		return 0, false
	}

	dev, err := uwb.Open(conn, uwb.Options{
		Timeout: discoveryProbeTimeout,
		Logger:  &logger,
	})
	if err != nil {
		conn.Close()
		return 0, false
	}
	defer dev.Close()

	id, ok, err := dev.GetID()
	if err != nil || !ok {
		return 0, false
	}
	return id, true
}
