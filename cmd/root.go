package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/binsim/binsim/sim/driver"
	"github.com/binsim/binsim/sim/trace"
)

var (
	// CLI flags for the driver
	seed            int64         // Master seed for fill events
	logLevel        string        // Log verbosity level
	connMode        string        // per-request or per-burst
	interactive     bool          // Ask before each collection
	cycles          int           // Cycles to run, 0 for until stopped
	computeWait     time.Duration // Pause before fetching circuits
	computeJitter   time.Duration // Seeded random extra pause
	exchangeTimeout time.Duration // Per-exchange deadline
	traceLevel      string        // Exchange trace level
	configPath      string        // Optional YAML run config

	// CLI flags for observers
	metricsAddr string // Prometheus listen address
	redisAddr   string // Redis address for the fleet shadow
	natsURL     string // NATS server for events
	eventCodec  string // json or cbor
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "binsim",
	Short: "Simulated waste-container fleet for a collection controller",
}

// runCmd drives the fleet against a controller using CLI flags and arguments
var runCmd = &cobra.Command{
	Use:   "run [containers [host port]]",
	Short: "Run the container simulation",
	Args:  runArgs,
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := resolveRunConfig(cmd.Flags().Changed, args)
		if err != nil {
			logrus.Fatalf("Invalid run configuration: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		observer, closeObservers, err := buildObservers(ctx, cfg.Observe)
		if err != nil {
			logrus.Fatalf("Failed to start observers: %v", err)
		}
		defer closeObservers()

		d, err := driver.New(cfg.Driver,
			driver.WithObserver(observer),
			driver.WithPrompter(driver.NewPrompter(os.Stdin, os.Stdout)),
		)
		if err != nil {
			logrus.Fatalf("Failed to create driver: %v", err)
		}

		startTime := time.Now()
		rt, err := d.Run(ctx)
		if err != nil {
			logrus.Warnf("Run ended early: %v", err)
		}
		trace.Summarize(rt).Print(os.Stdout)
		logrus.Infof("Simulation complete in %v.", time.Since(startTime).Round(time.Millisecond))
	},
}

// runArgs accepts no arguments, a container count, or a count, host and port.
func runArgs(_ *cobra.Command, args []string) error {
	switch len(args) {
	case 0, 1, 3:
		return nil
	default:
		return fmt.Errorf("expected [containers [host port]], got %d argument(s)", len(args))
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	defaults := driver.DefaultConfig()

	runCmd.Flags().Int64Var(&seed, "seed", defaults.Seed, "Seed for random fill events")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&connMode, "mode", string(defaults.Mode), "Connection mode for reports (per-request, per-burst)")
	runCmd.Flags().BoolVar(&interactive, "interactive", false, "Ask before collecting containers each cycle")
	runCmd.Flags().IntVar(&cycles, "cycles", defaults.Cycles, "Number of cycles to run (0 runs until stopped)")
	runCmd.Flags().DurationVar(&computeWait, "compute-wait", 0, "Pause between triggering computation and fetching circuits")
	runCmd.Flags().DurationVar(&computeJitter, "compute-jitter", 0, "Random extra pause in [0, jitter) added to --compute-wait, seeded by --seed")
	runCmd.Flags().DurationVar(&exchangeTimeout, "timeout", 0, "Per-exchange timeout (0 waits forever)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", string(defaults.TraceLevel), "Exchange trace level (none, exchanges)")
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML run config; explicit flags override it")

	// Observers
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	runCmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Mirror container state to this Redis server")
	runCmd.Flags().StringVar(&natsURL, "nats-url", "", "Publish exchange and cycle events to this NATS server")
	runCmd.Flags().StringVar(&eventCodec, "event-codec", "json", "Event encoding (json, cbor)")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
