// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Query the connected module's id",
	Long: `Query the id of the connected UWB module.

Examples:
  gouwb id --port /dev/ttyACM0

Exit codes:
  0 - Module answered
  1 - No response within the timeout
  2 - Connection error`,
	RunE: runID,
}

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the module's firmware self-tests",
	Long: `Run the firmware self-tests on the connected module.

Prints PASS when all tests succeed, or the id of the first failing test.

Exit codes:
  0 - All tests passed
  1 - A test failed or no response
  2 - Connection error`,
	RunE: runSelfTest,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restart the module firmware",
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(idCmd)
	rootCmd.AddCommand(selftestCmd)
	rootCmd.AddCommand(resetCmd)
}

func runID(cmd *cobra.Command, args []string) error {
	dev, info, err := openDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dev.Close()

	logger.Info().Str("connection", info).Msg("connected")

	id, ok, err := dev.GetID()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("No response")
		os.Exit(1)
	}
	fmt.Printf("Module id: %d\n", id)
	return nil
}

func runSelfTest(cmd *cobra.Command, args []string) error {
	dev, info, err := openDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dev.Close()

	logger.Info().Str("connection", info).Msg("connected")

	code, ok, err := dev.SelfTest()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("No response")
		os.Exit(1)
	}
	if code < 0 {
		fmt.Println("PASS")
		return nil
	}
	fmt.Printf("FAIL: test %d\n", code)
	os.Exit(1)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	dev, _, err := openDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dev.Close()

	acked, err := dev.Reset()
	if err != nil {
		return err
	}
	if !acked {
		fmt.Println("No response")
		os.Exit(1)
	}
	fmt.Println("Module reset")
	return nil
}
