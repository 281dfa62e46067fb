// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags (serial-over-network bridges)
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Engine flags
	cmdTimeout  time.Duration
	cooperative bool

	configPath string
	verbose    bool

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gouwb",
	Short: "Host-side driver for UWB ranging modules",
	Long: `gouwb - CLI for DECAR UWB ranging modules attached over a serial link.

Provides device discovery, two-way ranging, passive listening, and
inter-module messaging on top of the module's framed serial protocol.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 19200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the GOUWB_PASSWORD
environment variable, or prompted interactively if not set.

Flag defaults can be preset in a TOML config file (--config, default
~/.config/gouwb.toml).`,
	Version:           "1.2.0",
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 19200, "Baud rate (serial only)")

	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().DurationVar(&cmdTimeout, "timeout", time.Second, "Per-command response timeout")
	rootCmd.PersistentFlags().BoolVar(&cooperative, "cooperative", false, "Single-threaded engine (no background reader)")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file with flag defaults")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// setup runs before every command: config file overlay, then logging.
func setup(cmd *cobra.Command, args []string) error {
	if err := applyFileConfig(cmd); err != nil {
		return err
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Logger()
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
