// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/stradus/pkg/stradus"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a one-shot status snapshot",
	Long: `Read the fault register, temperatures, power and drive mode once and
print them as a block.

The fault register is read a single time, so the state and fault list
always describe the same moment.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var faultsCmd = &cobra.Command{
	Use:   "faults",
	Short: "Decode the fault register",
	Long: `Read the fault register and print its state and every active fault.

The state follows the controller's classification: a code of exactly 0 is
EMISSION_ACTIVE, 1 is STANDBY, 2 is WARMUP and any other value is FAULT,
including combinations of the status bits such as 3.

Exit codes:
  0 - State is EMISSION_ACTIVE, STANDBY or WARMUP
  1 - State is FAULT
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runFaults,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(faultsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	status, err := s.laser.Status()
	if err != nil {
		return err
	}

	fmt.Printf("Connection: %s\n", s.info)
	fmt.Print(stradus.FormatStatus(status))

	if hours, err := s.laser.OperatingHours(); err == nil {
		fmt.Printf("  Operating Hours:   %s\n", stradus.FormatOperatingHours(hours))
	}
	return nil
}

func runFaults(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	code, err := s.laser.FaultCode()
	if err != nil {
		s.Close()
		return err
	}
	s.Close()

	state := stradus.Classify(code)
	fmt.Printf("Fault Code: %d (0x%04X)\n", code, uint16(code))
	fmt.Printf("State:      %s\n", state)
	fmt.Printf("Faults:     %s\n", stradus.FormatFaults(code))

	if code := faultsExitCode(state); code != 0 {
		os.Exit(code)
	}
	return nil
}

func faultsExitCode(state stradus.DeviceState) int {
	if state == stradus.StateFault {
		return 1
	}
	return 0
}
