package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"twiller/internal/logger"
	"twiller/simulator"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	config := simulator.DefaultConfig()
	var debug bool

	cmd := &cobra.Command{
		Use:   "simulator",
		Short: "Generate follow and public space traffic against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.NumUsers < 1 {
				return fmt.Errorf("--users must be positive")
			}

			log := logger.New("twiller-simulator", debug)
			log.Info().
				Str("engineURL", config.EngineURL).
				Int("users", config.NumUsers).
				Int("maxFollowers", config.MaxFollowers).
				Dur("duration", config.SimulationTime).
				Float64("postFrequency", config.PostFrequency).
				Float64("zipfS", config.ZipfS).
				Msg("Starting simulation")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sim := simulator.NewEnhancedSimulator(config, log)
			if err := sim.Run(ctx); err != nil {
				return err
			}
			printMetrics(out, sim.GetMetrics())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&config.EngineURL, "url", "u", config.EngineURL, "Server base URL")
	flags.IntVarP(&config.NumUsers, "users", "n", config.NumUsers, "Number of simulated users")
	flags.IntVar(&config.MaxFollowers, "max-followers", config.MaxFollowers, "Most followers any user gets")
	flags.Float64Var(&config.ZipfS, "zipf", config.ZipfS, "Zipf exponent for follower counts (> 1)")
	flags.DurationVarP(&config.SimulationTime, "duration", "d", config.SimulationTime, "How long to generate traffic")
	flags.Float64Var(&config.PostFrequency, "post-frequency", config.PostFrequency, "Actions per user per minute")
	flags.Float64Var(&config.StatsFrequency, "stats-frequency", config.StatsFrequency, "Share of actions that read stats")
	flags.IntVarP(&config.Workers, "workers", "w", config.Workers, "Concurrent workers")
	flags.Int64Var(&config.Seed, "seed", config.Seed, "Random seed")
	flags.BoolVar(&debug, "debug", false, "Debug logging")

	return cmd
}

func printMetrics(out io.Writer, m simulator.SimulationMetrics) {
	fmt.Fprintf(out, "Simulation completed in %s\n", m.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "- Users: %d\n", m.TotalUsers)
	fmt.Fprintf(out, "- Follows: %d\n", m.TotalFollows)
	fmt.Fprintf(out, "- Post attempts: %d\n", m.Attempts)
	fmt.Fprintf(out, "- Accepted: %d\n", m.Accepted)
	for _, tier := range []string{"0", "1", "2-9", "10+"} {
		fmt.Fprintf(out, "    followers %-4s %d\n", tier, m.AcceptedByTier[tier])
	}
	for _, reason := range m.DeniedReasons() {
		fmt.Fprintf(out, "- Denied %s: %d\n", reason, m.Denied[reason])
	}
	fmt.Fprintf(out, "- Stats reads: %d\n", m.StatsReads)
	fmt.Fprintf(out, "- Errors: %d\n", m.ErrorCount)
	fmt.Fprintf(out, "- Average latency: %s\n", m.AverageLatency)
}
