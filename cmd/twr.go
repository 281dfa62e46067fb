// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/decargroup/gouwb/pkg/uwb"
)

var (
	twrTarget       int64
	twrDS           bool
	twrMeasAtTarget bool
	twrCIR          bool
	twrCount        int
	twrInterval     time.Duration
)

var twrCmd = &cobra.Command{
	Use:   "twr",
	Short: "Run two-way ranging against a neighbour module",
	Long: `Repeatedly range against a neighbour module and print each
measurement.

Single-sided TWR is the default; --ds enables the double-sided scheme,
which trades an extra radio exchange for clock-skew immunity. With
--meas-at-target the range is also delivered at the neighbour as a
RANGE_EVENT.

Examples:
  # Ten single-sided transactions against module 3
  gouwb twr --port /dev/ttyACM0 --target 3 --count 10

  # Continuous double-sided ranging
  gouwb twr --port /dev/ttyACM0 --target 3 --ds --count 0

Exit codes:
  0 - At least one transaction completed
  1 - Every transaction timed out
  2 - Connection error`,
	RunE: runTWR,
}

func init() {
	rootCmd.AddCommand(twrCmd)
	twrCmd.Flags().Int64Var(&twrTarget, "target", 0, "Neighbour module id")
	twrCmd.Flags().BoolVar(&twrDS, "ds", false, "Double-sided TWR")
	twrCmd.Flags().BoolVar(&twrMeasAtTarget, "meas-at-target", false, "Also deliver the range at the neighbour")
	twrCmd.Flags().BoolVar(&twrCIR, "cir", false, "Record the channel impulse response per transaction")
	twrCmd.Flags().IntVar(&twrCount, "count", 10, "Number of transactions (0 = until interrupted)")
	twrCmd.Flags().DurationVar(&twrInterval, "interval", 100*time.Millisecond, "Delay between transactions")
	twrCmd.MarkFlagRequired("target")
}

func runTWR(cmd *cobra.Command, args []string) error {
	dev, info, err := openDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dev.Close()

	logger.Info().Str("connection", info).Int64("target", twrTarget).Msg("ranging")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	opts := uwb.TWROptions{
		TargetID:     twrTarget,
		DSTwr:        twrDS,
		MeasAtTarget: twrMeasAtTarget,
		GetCIR:       twrCIR,
	}
	if twrCIR {
		dev.RegisterCIRCallback(func(m uwb.CIRMeasurement) {
			fmt.Printf("      cir %s\n", m.Format())
		})
	}

	completed := 0
	misses := 0
	for i := 0; twrCount == 0 || i < twrCount; i++ {
		select {
		case <-sig:
			return finishTWR(completed, misses)
		default:
		}

		meas, ok, err := dev.DoTWR(opts)
		if err != nil {
			return err
		}
		if !ok {
			misses++
			fmt.Printf("[%3d] timeout\n", i)
		} else {
			completed++
			fmt.Printf("[%3d] %s\n", i, meas.Format())
		}

		if twrInterval > 0 {
			select {
			case <-sig:
				return finishTWR(completed, misses)
			case <-time.After(twrInterval):
			}
		}
	}
	return finishTWR(completed, misses)
}

func finishTWR(completed, misses int) error {
	fmt.Printf("\n%d completed, %d timed out\n", completed, misses)
	if completed == 0 {
		os.Exit(1)
	}
	return nil
}
