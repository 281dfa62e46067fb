// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// fileConfig maps the TOML config file keys onto the persistent flags.
type fileConfig struct {
	Port        string `toml:"port"`
	Baud        int    `toml:"baud"`
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	TimeoutMs   int    `toml:"timeout_ms"`
	Cooperative bool   `toml:"cooperative"`
}

// applyFileConfig overlays config-file values onto flags the user did not
// set on the command line. A missing default config file is fine; a
// missing --config file is an error.
func applyFileConfig(cmd *cobra.Command) error {
	path := configPath
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".config", "gouwb.toml")
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load config %s: %w", path, err)
	}

	flags := cmd.Root().PersistentFlags()
	if meta.IsDefined("port") && !flags.Changed("port") {
		portName = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") && !flags.Changed("baud") {
		baudRate = raw.Baud
	}
	if meta.IsDefined("url") && !flags.Changed("url") {
		wsURL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("username") && !flags.Changed("username") {
		wsUsername = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("timeout_ms") && !flags.Changed("timeout") {
		if raw.TimeoutMs <= 0 {
			return fmt.Errorf("load config %s: timeout_ms must be positive", path)
		}
		cmdTimeout = time.Duration(raw.TimeoutMs) * time.Millisecond
	}
	if meta.IsDefined("cooperative") && !flags.Changed("cooperative") {
		cooperative = raw.Cooperative
	}
	return nil
}
