package driver

import (
	"fmt"
	"time"

	"github.com/binsim/binsim/sim"
	"github.com/binsim/binsim/sim/trace"
	"github.com/binsim/binsim/sim/wire"
)

// Mode selects how connections are used during ReportAll.
type Mode string

const (
	// ModePerRequest opens a new connection for every exchange.
	ModePerRequest Mode = "per-request"
	// ModePerBurst reuses one connection for all reports of a cycle.
	ModePerBurst Mode = "per-burst"
)

// ParseMode validates a mode name. Empty means ModePerRequest.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePerRequest:
		return ModePerRequest, nil
	case ModePerBurst:
		return ModePerBurst, nil
	default:
		return "", fmt.Errorf("unknown connection mode %q (want %s or %s)", s, ModePerRequest, ModePerBurst)
	}
}

// DefaultContainers is the fleet size used when none is configured.
const DefaultContainers = 50

// Config controls a driver run.
type Config struct {
	Addr            string        // controller host:port
	Containers      int           // fleet size
	Seed            int64         // master seed for fill events
	Mode            Mode          // connection usage during ReportAll
	Cycles          int           // cycles to run; 0 runs until stopped
	Interactive     bool          // ask the operator before each collection
	ComputeWait     time.Duration // pause between TrigCompute and FetchAndClear when not interactive
	ComputeJitter   time.Duration // random extra pause in [0, ComputeJitter), seeded
	ExchangeTimeout time.Duration // per-exchange deadline; 0 waits forever
	TraceLevel      trace.TraceLevel
}

// DefaultConfig returns the configuration of a single non-interactive cycle.
func DefaultConfig() Config {
	return Config{
		Addr:       wire.DefaultAddr,
		Containers: DefaultContainers,
		Seed:       sim.DefaultSeed,
		Mode:       ModePerRequest,
		Cycles:     1,
		TraceLevel: trace.TraceLevelExchanges,
	}
}

// Validate checks that the configuration can drive a run.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("controller address is empty")
	}
	if c.Containers < 0 {
		return fmt.Errorf("container count must be >= 0, got %d", c.Containers)
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Cycles < 0 {
		return fmt.Errorf("cycles must be >= 0, got %d", c.Cycles)
	}
	if c.ComputeWait < 0 || c.ComputeJitter < 0 || c.ExchangeTimeout < 0 {
		return fmt.Errorf("durations must be >= 0")
	}
	if !trace.IsValidTraceLevel(string(c.TraceLevel)) {
		return fmt.Errorf("unknown trace level %q", c.TraceLevel)
	}
	return nil
}
