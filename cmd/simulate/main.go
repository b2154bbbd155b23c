// Command simulate posts synthetic business events to a running autodist
// server and prints how the work was distributed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/autodist/internal/simulate"
	"github.com/okian/autodist/pkg/logger"
)

// Default configuration constants.
const (
	defaultEvents     = 500
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultSettle     = 30 * time.Second
	defaultDuplicates = 0.05
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cfg := simulate.Config{}
	var (
		seedStaff bool
		asJSON    bool
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:          "simulate",
		Short:        "Drive an autodist server with synthetic business events",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.FormatText); err != nil {
				return err
			}
			level := "info"
			if verbose {
				level = "debug"
			}
			_ = logger.SetLevelString(level)
			if seedStaff {
				cfg.Staff = simulate.DefaultStaff()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultRunTimeout)
			defer cancel()
			report, err := simulate.Run(ctx, cfg, logger.Get())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printSummary(cmd, report)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.IntVar(&cfg.Events, "events", defaultEvents, "number of events to submit")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "number of concurrent submitters")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.Settle, "settle", defaultSettle, "how long to wait for processing to settle")
	f.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "generator seed")
	f.Float64Var(&cfg.Duplicates, "duplicates", defaultDuplicates, "share of events re-sent with the same id")
	f.StringSliceVar(&cfg.Absent, "absent", nil, "worker ids to mark absent today and reassign")
	f.StringVarP(&cfg.OutputFile, "output", "o", "", "write the generated events to this file")
	f.BoolVar(&seedStaff, "seed-staff", true, "register a default admin and five workers first")
	f.BoolVar(&asJSON, "json", false, "print the full report as JSON")
	f.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func printSummary(cmd *cobra.Command, r simulate.Report) {
	out := cmd.OutOrStdout()
	s := r.Stats
	_, _ = fmt.Fprintf(out, "events: %d submitted, %d accepted, %d duplicate, %d backpressure, %d failed in %s\n",
		s.Submitted, s.Accepted, s.Duplicate, s.Backpressure, s.Failed, s.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(out, "assignments: %d logged", len(r.Log))
	for method, n := range r.ByMethod {
		_, _ = fmt.Fprintf(out, ", %s=%d", method, n)
	}
	_, _ = fmt.Fprintf(out, "\npending approvals: %d\nreassigned: %d\n", len(r.PendingApprovals), r.Reassigned)
	for _, w := range r.Workloads {
		_, _ = fmt.Fprintf(out, "  %-10s tasks=%-4d minutes=%-5d utilization=%.2f\n",
			w.UserID, w.TaskCount, w.EstimatedMinutesRemaining, w.Utilization)
	}
}
