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

	"github.com/decargroup/gouwb/pkg/modem"
	"github.com/decargroup/gouwb/pkg/uwb"
)

var (
	listenPassive bool
	listenRaw     bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print spontaneous traffic from the module",
	Long: `Print every spontaneous message the module delivers until
interrupted.

By default this prints decoded range and passive measurements. With
--passive the module is first switched into passive listening so it
reports TWR transactions between other modules. With --raw every frame
is printed as a timestamped key/value line instead.

On exit, parser statistics for the session are printed.

Examples:
  gouwb listen --port /dev/ttyACM0 --passive
  gouwb listen --port /dev/ttyACM0 --raw -v`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().BoolVar(&listenPassive, "passive", false, "Enable passive listening first")
	listenCmd.Flags().BoolVar(&listenRaw, "raw", false, "Print raw frames instead of decoded measurements")
}

func runListen(cmd *cobra.Command, args []string) error {
	dev, info, err := openDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dev.Close()

	logger.Info().Str("connection", info).Msg("listening")

	if listenPassive {
		acked, err := dev.SetPassiveListening(true)
		if err != nil {
			return err
		}
		if !acked {
			fmt.Fprintln(os.Stderr, "Module did not acknowledge passive listening")
			os.Exit(1)
		}
		defer dev.SetPassiveListening(false)
	}

	if listenRaw {
		registerRawPrinters(dev.Modem())
	} else {
		dev.RegisterRangeCallback(func(m uwb.RangeMeasurement) {
			fmt.Printf("[%s] range   %s\n", time.Now().Format("15:04:05.000"), m.Format())
		})
		dev.RegisterListeningCallback(func(m uwb.PassiveMeasurement) {
			fmt.Printf("[%s] passive %s\n", time.Now().Format("15:04:05.000"), m.Format())
		})
		dev.RegisterCIRCallback(func(m uwb.CIRMeasurement) {
			fmt.Printf("[%s] cir     %s\n", time.Now().Format("15:04:05.000"), m.Format())
		})
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	if cooperative {
		// Drain on this goroutine until interrupted.
		for {
			select {
			case <-sig:
				printStats(dev)
				return nil
			default:
			}
			if err := dev.WaitForMessages(); err != nil {
				printStats(dev)
				return err
			}
		}
	}

	<-sig
	printStats(dev)
	return nil
}

// registerRawPrinters attaches one printer per spontaneous key. The key
// rides along as the callback argument so a single function serves all
// of them.
func registerRawPrinters(m *modem.Modem) {
	printer := func(values []modem.Value, arg any) {
		fmt.Println(uwb.FormatFrame(modem.Frame{Key: arg.(string), Values: values}))
	}
	for _, key := range []string{uwb.EvtRange, uwb.EvtPassive, uwb.EvtCIR, uwb.EvtFragment} {
		m.Register(key, printer, key)
	}
}

func printStats(dev *uwb.Device) {
	fmt.Printf("\n%s\n", dev.Modem().Stats().Snapshot().String())
}
