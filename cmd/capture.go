// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/stradus/pkg/stradus"
)

var captureErrorsOnly bool

var captureCmd = &cobra.Command{
	Use:   "capture <file>",
	Short: "Display a frame capture in human-readable format",
	Long: `Decode a CBOR capture written with --capture and print every event
with timestamp, kind, read phase and frame text.

Captures can be recorded with any command, for example:
  stradus monitor --port /dev/ttyUSB0 --capture session.cbor

No connection is opened; connection flags are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().BoolVar(&captureErrorsOnly, "errors-only", false, "Show only timeouts and I/O errors")
}

func runCapture(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	header, events, err := stradus.ReadCapture(f)
	if events == nil {
		return fmt.Errorf("capture %s: %w", args[0], err)
	}

	fmt.Printf("Stradus - Frame Capture\n")
	fmt.Printf("Session:    %s\n", header.Session)
	fmt.Printf("Connection: %s\n", header.Endpoint)
	fmt.Printf("Started:    %s\n\n", header.Started.Format("2006-01-02 15:04:05.000"))

	stats := stradus.NewStatistics()
	for _, ev := range events {
		stats.Record(ev)
		if captureErrorsOnly && ev.Kind != stradus.EventTimeout && ev.Kind != stradus.EventError {
			continue
		}
		fmt.Println(stradus.FormatEvent(ev))
	}

	fmt.Println()
	fmt.Printf("%d events\n", len(events))
	fmt.Print(stats.String())

	// Events decoded before a truncated record are still printed
	if err != nil {
		return fmt.Errorf("capture %s: %w", args[0], err)
	}
	return nil
}
