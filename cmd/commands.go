// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/stradus/pkg/stradus"
)

var getCmd = &cobra.Command{
	Use:   "get <query>...",
	Short: "Read one or more query registers",
	Long: `Send each query and print its decoded value.

Queries may be given by name (LaserWavelength) or by token (?LW or LW).
Use 'stradus list' to see the full vocabulary.`,
	Example: `  stradus get LW --simulate
  stradus get ?FC ?BPT ?LPS --port /dev/ttyUSB0`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

var setCmd = &cobra.Command{
	Use:   "set <command> [value]",
	Short: "Send a command with an optional value",
	Long: `Validate the value for the command's domain and send it.

Boolean commands accept 1/0, on/off or true/false. Commands without a value,
such as CFC, take no argument. The controller reply is printed verbatim.`,
	Example: `  stradus set LP 25.5
  stradus set PUL on
  stradus set CFC`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSet,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn laser emission on",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLaser(func(l *stradus.Laser) error {
			if err := l.Enable(); err != nil {
				return err
			}
			fmt.Println("Emission: ON")
			return nil
		})
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn laser emission off",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLaser(func(l *stradus.Laser) error {
			if err := l.Disable(); err != nil {
				return err
			}
			fmt.Println("Emission: OFF")
			return nil
		})
	},
}

var clearFaultsCmd = &cobra.Command{
	Use:   "clear-faults",
	Short: "Clear latched faults and print the fault register afterwards",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLaser(func(l *stradus.Laser) error {
			if err := l.ClearFaults(); err != nil {
				return err
			}
			code, err := l.FaultCode()
			if err != nil {
				return err
			}
			fmt.Printf("State:  %s\n", stradus.Classify(code))
			fmt.Printf("Faults: %s\n", stradus.FormatFaults(code))
			return nil
		})
	},
}

var powerCmd = &cobra.Command{
	Use:   "power [mW]",
	Short: "Read or set the power setpoint",
	Long: `Without an argument, print the active setpoint. In digital modulation
mode this is the pulse power, otherwise the CW power setpoint.

With an argument, set the setpoint for the active mode. Pulse power is
rounded to a whole milliwatt and limited to 0-1000.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPower,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every command and query token",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(clearFaultsCmd)
	rootCmd.AddCommand(powerCmd)
	rootCmd.AddCommand(listCmd)
}

// withLaser opens a session, runs fn and closes the session
func withLaser(fn func(l *stradus.Laser) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s.laser)
}

func runGet(cmd *cobra.Command, args []string) error {
	queries := make([]stradus.Query, 0, len(args))
	for _, arg := range args {
		q, err := stradus.ParseQuery(arg)
		if err != nil {
			return err
		}
		queries = append(queries, q)
	}

	return withLaser(func(l *stradus.Laser) error {
		failed := 0
		for _, q := range queries {
			value, err := l.Get(q)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%-6s %v\n", q.Token(), err)
				failed++
				continue
			}
			if len(queries) == 1 {
				fmt.Println(value)
			} else {
				fmt.Printf("%-6s %s\n", q.Token(), value)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d queries failed", failed, len(queries))
		}
		return nil
	})
}

func runSet(cmd *cobra.Command, args []string) error {
	command, err := stradus.ParseCommand(args[0])
	if err != nil {
		return err
	}

	raw := ""
	if len(args) == 2 {
		raw = args[1]
	}
	value, err := stradus.ValidateValue(command, raw)
	if err != nil {
		return err
	}

	return withLaser(func(l *stradus.Laser) error {
		reply, err := l.Set(command, value)
		if err != nil {
			return err
		}
		if reply != "" {
			fmt.Println(reply)
		}
		return nil
	})
}

func runPower(cmd *cobra.Command, args []string) error {
	var setpoint float64
	if len(args) == 1 {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("%w: power %q is not a number", stradus.ErrInvalidValue, args[0])
		}
		setpoint = v
	}

	return withLaser(func(l *stradus.Laser) error {
		if len(args) == 1 {
			if err := l.SetPowerSetpoint(setpoint); err != nil {
				return err
			}
		}
		current, err := l.PowerSetpoint()
		if err != nil {
			return err
		}
		fmt.Printf("Power Setpoint: %.1f mW\n", current)
		return nil
	})
}

func runList(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "COMMAND\tTOKEN\tVALUE")
	for _, c := range stradus.Commands() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c, c.Token(), c.Domain())
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "QUERY\tTOKEN\tREPLY")
	for _, q := range stradus.Queries() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", q, q.Token(), q.Domain())
	}
	return w.Flush()
}
