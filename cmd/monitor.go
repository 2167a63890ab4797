// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/stradus/internal/metrics"
	"github.com/Thermoquad/stradus/pkg/stradus"
)

var (
	showAll         bool
	statsInterval   time.Duration
	useTUI          bool
	monitorInterval time.Duration
	metricsAddr     string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the laser status and track link errors",
	Long: `Poll the controller at a fixed interval and display its state.

Each poll reads a full status snapshot: fault register, temperatures, power
and drive mode. The monitor tracks:
  - State transitions (EMISSION_ACTIVE, STANDBY, WARMUP, FAULT)
  - Fault bits as they latch and clear
  - Reply timeouts, partial frames and I/O errors
  - Statistics (exchange rate, error rate, round-trip times)

By default, only changes are displayed in text mode. Use --show-all to print
every poll. With --metrics-addr, status gauges and wire counters are exported
in Prometheus format on /metrics.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show every poll and frame (not just changes and errors)")
	monitorCmd.Flags().DurationVar(&statsInterval, "stats-interval", 10*time.Second, "Statistics summary interval (text mode)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "Status polling interval")
	monitorCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9110)")
}

// statusMsg carries one poll result
type statusMsg struct {
	status stradus.Status
	err    error
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("interval") {
		cfg.Monitor.Interval = monitorInterval
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Monitor.MetricsAddr = metricsAddr
	}
	if cfg.Monitor.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", cfg.Monitor.Interval)
	}

	var sinks []stradus.EventSink

	var collector *metrics.Collector
	if cfg.Monitor.MetricsAddr != "" {
		collector = metrics.New()
		sinks = append(sinks, collector)
	}

	var batcher *eventBatcher
	if useTUI {
		// Log output would tear the alternate screen
		silenceLogs()
		batcher = newEventBatcher()
		sinks = append(sinks, batcher)
	}

	s, err := openSession(sinks...)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if collector != nil {
		go func() {
			if err := collector.Serve(ctx, cfg.Monitor.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if useTUI {
		return runTUIMode(ctx, s, batcher, collector)
	}
	return runTextMode(ctx, s, collector)
}

// pollStatus reads a snapshot every interval and hands it to send until ctx
// is cancelled. It is the only goroutine using the laser.
func pollStatus(ctx context.Context, l *stradus.Laser, interval time.Duration, collector *metrics.Collector, send func(statusMsg)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := l.Status()
		if collector != nil {
			if err != nil {
				collector.PollFailed()
			} else {
				collector.Observe(status)
			}
		}
		if ctx.Err() != nil {
			return
		}
		send(statusMsg{status: status, err: err})

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runTUIMode runs the monitor in TUI mode
func runTUIMode(ctx context.Context, s *session, batcher *eventBatcher, collector *metrics.Collector) error {
	hours, _ := s.laser.OperatingHours()

	m := initialModel(s.info, cfg.Monitor.Interval, showAll, s.stats)
	m.operatingHours = hours
	m.metricsAddr = cfg.Monitor.MetricsAddr

	p := tea.NewProgram(m, tea.WithContext(ctx))

	pollCtx, stopPoll := context.WithCancel(ctx)
	pollDone := make(chan struct{})

	go batcher.run(p, pollCtx.Done())
	go func() {
		defer close(pollDone)
		pollStatus(pollCtx, s.laser, cfg.Monitor.Interval, collector, func(msg statusMsg) {
			p.Send(msg)
		})
	}()

	_, err := p.Run()

	// The session is closed by the caller; wait for the last poll first
	stopPoll()
	<-pollDone

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runTextMode prints changes as they are polled and periodic statistics
func runTextMode(ctx context.Context, s *session, collector *metrics.Collector) error {
	fmt.Printf("Stradus - Status Monitor\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Polling interval: %v\n", cfg.Monitor.Interval)
	fmt.Printf("Statistics interval: %v\n", statsInterval)
	if cfg.Monitor.MetricsAddr != "" {
		fmt.Printf("Metrics: http://%s/metrics\n", cfg.Monitor.MetricsAddr)
	}
	if showAll {
		fmt.Printf("Mode: Every poll\n")
	} else {
		fmt.Printf("Mode: Changes only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if hours, err := s.laser.OperatingHours(); err == nil {
		fmt.Printf("Operating hours: %s\n\n", stradus.FormatOperatingHours(hours))
	}

	polls := make(chan statusMsg, 1)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		pollStatus(ctx, s.laser, cfg.Monitor.Interval, collector, func(msg statusMsg) {
			select {
			case polls <- msg:
			case <-ctx.Done():
			}
		})
	}()

	var ticks <-chan time.Time
	if statsInterval > 0 {
		statsTicker := time.NewTicker(statsInterval)
		defer statsTicker.Stop()
		ticks = statsTicker.C
	}

	var last *stradus.Status
	failing := false

	for {
		select {
		case <-ctx.Done():
			<-pollDone
			fmt.Println()
			fmt.Print(s.stats.String())
			return nil

		case msg := <-polls:
			if msg.err != nil {
				if !failing {
					printPollError(msg.err)
				}
				failing = true
				continue
			}
			if failing {
				fmt.Printf("[%s] \033[1;32mRECOVERED\033[0m\n\n", msg.status.Time.Format("15:04:05.000"))
				failing = false
			}

			if showAll || statusChanged(last, msg.status) {
				printStatus(last, msg.status)
			}
			status := msg.status
			last = &status

		case <-ticks:
			fmt.Println()
			fmt.Print(s.stats.String())
			fmt.Println()
		}
	}
}

// statusChanged reports whether the state or any fault bit differs
func statusChanged(prev *stradus.Status, cur stradus.Status) bool {
	if prev == nil {
		return true
	}
	return prev.State != cur.State ||
		prev.FaultCode != cur.FaultCode ||
		prev.Emitting != cur.Emitting ||
		prev.InterlockClosed != cur.InterlockClosed
}

// printStatus prints a snapshot with the state highlighted
func printStatus(prev *stradus.Status, cur stradus.Status) {
	color := "1;32"
	switch cur.State {
	case stradus.StateFault:
		color = "1;31"
	case stradus.StateWarmup:
		color = "1;33"
	}

	if prev != nil && prev.State != cur.State {
		fmt.Printf("[%s] \033[%smSTATE:\033[0m %s -> %s\n",
			cur.Time.Format("15:04:05.000"), color, prev.State, cur.State)
	}
	if prev != nil {
		for _, f := range newFaults(prev.FaultCode, cur.FaultCode) {
			fmt.Printf("  \033[1;31mFAULT SET:\033[0m %s\n", f)
		}
		for _, f := range newFaults(cur.FaultCode, prev.FaultCode) {
			fmt.Printf("  \033[1;32mFAULT CLEARED:\033[0m %s\n", f)
		}
	}
	fmt.Print(stradus.FormatStatus(cur))
	fmt.Println()
}

// newFaults lists the faults present in cur but not in prev
func newFaults(prev, cur stradus.FaultCode) []stradus.FaultField {
	was := stradus.DecodeFaults(prev)
	var added []stradus.FaultField
	for _, f := range stradus.DecodeFaults(cur) {
		if !slices.Contains(was, f) {
			added = append(added, f)
		}
	}
	return added
}

// printPollError prints a poll failure in highlighted format
func printPollError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mPOLL ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> STATUS UNAVAILABLE <<<\n\n")
}

// silenceLogs drops log output for the rest of the process
func silenceLogs() {
	logger = slog.New(slog.DiscardHandler)
	slog.SetDefault(logger)
}
