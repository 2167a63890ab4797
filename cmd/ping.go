// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/stradus/pkg/stradus"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by reading the laser identification",
	Long: `Send ?LI repeatedly and report the reply and round-trip time.

This command tests bidirectional communication with the controller through
whichever channel is selected (serial, WebSocket bridge or simulator).

This is useful for verifying:
  - The serial settings or WebSocket credentials are correct
  - The controller answers with the expected two-frame replies
  - Round-trip latency through a bridge

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Stradus - Link Test\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Timeout: %v per frame\n", s.laser.Engine().Timeout())
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		ident, err := s.laser.Identification()
		rtt := time.Since(start)

		switch {
		case err == nil:
			fmt.Printf("REPLY %q, rtt=%v\n", ident, rtt.Round(time.Millisecond))
			successCount++
		case errors.Is(err, stradus.ErrProtocolTimeout):
			fmt.Printf("TIMEOUT (no reply in %v)\n", s.laser.Engine().Timeout())
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d replies received, %.0f%% loss\n",
		pingCount, successCount, lossPercent(failCount, pingCount))
	fmt.Print(s.stats.String())

	s.Close()
	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

func lossPercent(failed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total) * 100
}
