// sim/driver/driver.go
package driver

import (
	"context"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/binsim/binsim/sim"
	"github.com/binsim/binsim/sim/observe"
	"github.com/binsim/binsim/sim/protocol"
	"github.com/binsim/binsim/sim/trace"
	"github.com/binsim/binsim/sim/wire"
)

// Driver owns the fleet and runs cycles against the controller.
//
// Thread-safety: NOT thread-safe. Run must be called from a single goroutine.
type Driver struct {
	cfg      Config
	fleet    *sim.Fleet
	fill     *rand.Rand
	jitter   *rand.Rand
	dialer   wire.Dialer
	prompter Prompter
	observer observe.Observer
	trace    *trace.RunTrace
	phase    Phase
	cycle    int
}

// Option configures a Driver.
type Option func(*Driver)

// WithDialer replaces the TCP dialer.
func WithDialer(dialer wire.Dialer) Option {
	return func(d *Driver) {
		d.dialer = dialer
	}
}

// WithPrompter replaces the operator prompt used in interactive runs.
func WithPrompter(p Prompter) Option {
	return func(d *Driver) {
		d.prompter = p
	}
}

// WithObserver attaches an observer to every exchange and cycle.
func WithObserver(o observe.Observer) Option {
	return func(d *Driver) {
		d.observer = o
	}
}

// New creates a driver with an empty fleet of cfg.Containers containers.
func New(cfg Config, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePerRequest
	}

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	d := &Driver{
		cfg:      cfg,
		fleet:    sim.NewFleet(cfg.Containers),
		fill:     rng.ForSubsystem(sim.SubsystemFill),
		jitter:   rng.ForSubsystem(sim.SubsystemJitter),
		dialer:   &net.Dialer{},
		observer: observe.Nop{},
		trace:    trace.NewRunTrace(trace.TraceConfig{Level: cfg.TraceLevel}),
		phase:    PhaseIdle,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.prompter == nil {
		d.prompter = NewPrompter(os.Stdin, os.Stdout)
	}
	return d, nil
}

// Fleet returns the simulated containers.
func (d *Driver) Fleet() *sim.Fleet { return d.fleet }

// Trace returns the exchange trace recorded so far.
func (d *Driver) Trace() *trace.RunTrace { return d.trace }

// Phase returns the phase the driver is in.
func (d *Driver) Phase() Phase { return d.phase }

// Cycle returns the number of the current cycle, starting at 1.
func (d *Driver) Cycle() int { return d.cycle }

// Run drives cycles until the configured count is reached, the operator
// stops, or ctx is cancelled. Exchange failures never end the run; only
// cancellation is returned as an error.
func (d *Driver) Run(ctx context.Context) (*trace.RunTrace, error) {
	logrus.Infof("Starting simulation: %d containers, controller %s, mode %s", d.fleet.Len(), d.cfg.Addr, d.cfg.Mode)

	d.phase = PhaseFillAll
	for d.phase != PhaseTerminate {
		if err := ctx.Err(); err != nil {
			logrus.Infof("Simulation interrupted in cycle %d (%s)", d.cycle, d.phase)
			return d.trace, err
		}
		d.phase = d.step(ctx, d.phase)
	}
	if err := ctx.Err(); err != nil {
		logrus.Infof("Simulation interrupted in cycle %d", d.cycle)
		return d.trace, err
	}

	logrus.Infof("Simulation complete after %d cycle(s)", d.cycle)
	return d.trace, nil
}

// step executes one phase and returns the next one.
func (d *Driver) step(ctx context.Context, phase Phase) Phase {
	switch phase {
	case PhaseFillAll:
		d.cycle++
		d.FillAll()
		return PhaseReportAll
	case PhaseReportAll:
		d.ReportAll(ctx)
		return PhaseTrigCompute
	case PhaseTrigCompute:
		d.TrigCompute(ctx)
		return PhaseAwaitContinue
	case PhaseAwaitContinue:
		if d.awaitContinue(ctx) {
			return PhaseFetchAndClear
		}
		d.endCycle(ctx, nil)
		return PhaseTerminate
	case PhaseFetchAndClear:
		emptied := d.FetchAndClear(ctx)
		d.endCycle(ctx, emptied)
		if d.cfg.Cycles > 0 && d.cycle >= d.cfg.Cycles {
			return PhaseTerminate
		}
		return PhaseFillAll
	default:
		return PhaseTerminate
	}
}

// FillAll applies one random fill to every container.
func (d *Driver) FillAll() {
	d.fleet.FillAll(d.fill)
	logrus.Debugf("Cycle %d: filled %d containers", d.cycle, d.fleet.Len())
}

// ReportAll sends one CONTAINER_REPORT per container in id order.
// A failed report is logged and the next container is reported.
func (d *Driver) ReportAll(ctx context.Context) {
	if d.cfg.Mode == ModePerBurst {
		d.reportBurst(ctx)
		return
	}
	for i := 0; i < d.fleet.Len(); i++ {
		if ctx.Err() != nil {
			return
		}
		c := d.fleet.At(i)
		_, _ = d.exchangeOnce(ctx, PhaseReportAll, protocol.NewContainerReport(*c), c.ID(), nil)
	}
}

// reportBurst reuses one channel for the whole burst and redials only
// when the previous channel has closed.
func (d *Driver) reportBurst(ctx context.Context) {
	var ch *wire.Channel
	defer func() {
		if ch != nil {
			ch.Close()
		}
	}()

	for i := 0; i < d.fleet.Len(); i++ {
		if ctx.Err() != nil {
			return
		}
		c := d.fleet.At(i)
		req := protocol.NewContainerReport(*c)

		if ch == nil || ch.IsClosed() {
			start := time.Now()
			next, err := d.dial(ctx)
			if err != nil {
				d.record(ctx, PhaseReportAll, req, c.ID(), nil, err, time.Since(start))
				continue
			}
			ch = next
		}
		_, _ = d.send(ctx, ch, PhaseReportAll, req, c.ID(), nil)
	}
}

// TrigCompute asks the controller to compute circuits.
func (d *Driver) TrigCompute(ctx context.Context) {
	_, _ = d.exchangeOnce(ctx, PhaseTrigCompute, protocol.TrigCircuitComputation{}, trace.NoContainer, nil)
}

// FetchAndClear requests the circuits and empties every referenced container.
// It returns the ids emptied, in circuit order. A reply without a usable
// circuit structure is a dropped exchange and empties nothing.
func (d *Driver) FetchAndClear(ctx context.Context) []int {
	var circuits []protocol.Circuit
	parse := func(resp *protocol.Response) error {
		var err error
		circuits, err = protocol.ParseCircuits(resp)
		return err
	}
	if _, err := d.exchangeOnce(ctx, PhaseFetchAndClear, protocol.ReqCircuits{}, trace.NoContainer, parse); err != nil {
		return nil
	}

	record := trace.CollectionRecord{Cycle: d.cycle, Circuits: len(circuits)}
	for _, id := range protocol.ScheduledContainers(circuits) {
		if !d.fleet.Empty(id) {
			logrus.Warnf("Cycle %d: circuit references unknown container %d", d.cycle, id)
			record.Unknown = append(record.Unknown, id)
			continue
		}
		record.Emptied = append(record.Emptied, id)
	}
	d.trace.RecordCollection(record)

	logrus.Infof("Cycle %d: %d circuit(s), %d container(s) emptied", d.cycle, len(circuits), len(record.Emptied))
	return record.Emptied
}

// awaitContinue reports whether the cycle should go on to collection.
func (d *Driver) awaitContinue(ctx context.Context) bool {
	if !d.cfg.Interactive {
		delay := d.computeDelay()
		if delay <= 0 {
			return true
		}
		return sleepContext(ctx, delay) == nil
	}

	ok, err := d.prompter.Continue(ctx)
	if err != nil {
		logrus.Infof("Operator input closed: %v", err)
		return false
	}
	if !ok {
		logrus.Info("Operator requested stop")
	}
	return ok
}

// computeDelay returns ComputeWait plus a seeded jitter in [0, ComputeJitter).
func (d *Driver) computeDelay() time.Duration {
	delay := d.cfg.ComputeWait
	if d.cfg.ComputeJitter > 0 {
		delay += time.Duration(d.jitter.Int63n(int64(d.cfg.ComputeJitter)))
	}
	return delay
}

func (d *Driver) endCycle(ctx context.Context, emptied []int) {
	d.observer.Cycle(ctx, observe.CycleReport{
		Cycle:      d.cycle,
		Containers: d.fleet.Snapshot(),
		Emptied:    emptied,
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
