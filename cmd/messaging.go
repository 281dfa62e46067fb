// SPDX-License-Identifier: MIT
// Copyright (c) 2026 DECAR Group

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/decargroup/gouwb/pkg/uwb"
)

var sendRepeat int

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Broadcast a text message to nearby modules",
	Long: `Broadcast a text message over the radio.

The message is CBOR-encoded and split into fragments sized to the
module's frame length limit, which is negotiated automatically on the
first broadcast.

Examples:
  gouwb send --port /dev/ttyACM0 "hello from node A"
  gouwb send --port /dev/ttyACM0 --repeat 5 ping

Exit codes:
  0 - Message accepted by the module
  1 - Module did not acknowledge
  2 - Connection error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Print broadcasts from nearby modules",
	Long: `Print every broadcast received from nearby modules until
interrupted.

Reassembled payloads are decoded as CBOR text messages. Messages with
missing fragments are flagged as corrupt and printed raw.

Examples:
  gouwb receive --port /dev/ttyACM0`,
	RunE: runReceive,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(receiveCmd)
	sendCmd.Flags().IntVar(&sendRepeat, "repeat", 1, "Send the message this many times")
}

func runSend(cmd *cobra.Command, args []string) error {
	dev, info, err := openDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dev.Close()

	logger.Info().Str("connection", info).Msg("connected")

	message := strings.Join(args, " ")
	for i := 0; i < sendRepeat; i++ {
		acked, err := dev.BroadcastCBOR(message)
		if err != nil {
			return err
		}
		if !acked {
			fmt.Println("Module did not acknowledge broadcast")
			os.Exit(1)
		}
		fmt.Printf("Sent %d byte(s)\n", len(message))
	}
	return nil
}

func runReceive(cmd *cobra.Command, args []string) error {
	dev, info, err := openDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dev.Close()

	logger.Info().Str("connection", info).Msg("receiving")

	err = dev.RegisterMessageCallback(func(msg []byte, valid bool) {
		stamp := time.Now().Format("15:04:05.000")
		if !valid {
			fmt.Printf("[%s] corrupt broadcast, %d byte(s): %q\n", stamp, len(msg), msg)
			return
		}
		var text string
		if err := uwb.DecodeCBOR(msg, &text); err != nil {
			fmt.Printf("[%s] %d byte(s): %q\n", stamp, len(msg), msg)
			return
		}
		fmt.Printf("[%s] %s\n", stamp, text)
	})
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	if cooperative {
		for {
			select {
			case <-sig:
				return nil
			default:
			}
			if err := dev.WaitForMessages(); err != nil {
				return err
			}
		}
	}

	<-sig
	return nil
}
