package driver

import (
	"context"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binsim/binsim/sim"
	"github.com/binsim/binsim/sim/observe"
	"github.com/binsim/binsim/sim/protocol"
	"github.com/binsim/binsim/sim/trace"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

// testConfig returns a single-cycle config for n containers against addr.
func testConfig(addr string, n int) Config {
	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.Containers = n
	return cfg
}

// newTestDriver builds a driver whose prompter never touches stdin.
func newTestDriver(t *testing.T, cfg Config, opts ...Option) *Driver {
	t.Helper()
	opts = append([]Option{WithPrompter(NewReaderPrompter(strings.NewReader(""), io.Discard))}, opts...)
	d, err := New(cfg, opts...)
	require.NoError(t, err)
	return d
}

// outcomes returns the outcome of every traced exchange of the given kind.
func outcomes(rt *trace.RunTrace, kind protocol.Kind) []trace.Outcome {
	var out []trace.Outcome
	for _, ex := range rt.Exchanges {
		if ex.Kind == string(kind) {
			out = append(out, ex.Outcome)
		}
	}
	return out
}

// closedAddr returns a loopback address nobody listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Containers = -1
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_StartsIdleWithEmptyFleet(t *testing.T) {
	d := newTestDriver(t, testConfig("127.0.0.1:1", 4))

	assert.Equal(t, PhaseIdle, d.Phase())
	assert.Equal(t, 0, d.Cycle())
	require.Equal(t, 4, d.Fleet().Len())
	for i := 0; i < 4; i++ {
		c := d.Fleet().At(i)
		assert.Equal(t, i, c.ID())
		assert.Zero(t, c.Weight())
		assert.Zero(t, c.Volume())
	}
}

func TestRun_PerRequest_ReportsInOrderThenTriggersAndFetches(t *testing.T) {
	// GIVEN a controller that answers every request
	fc := newFakeController(t, nil)
	d := newTestDriver(t, testConfig(fc.Addr(), 3))

	// WHEN one cycle runs
	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	// THEN the controller saw three reports in id order, then the trigger, then the fetch
	assert.Equal(t, []protocol.Kind{
		protocol.KindContainerReport,
		protocol.KindContainerReport,
		protocol.KindContainerReport,
		protocol.KindTrigCircuitComputation,
		protocol.KindReqCircuits,
	}, fc.Kinds())
	reports := fc.Reports()
	require.Len(t, reports, 3)
	for i, r := range reports {
		assert.Equal(t, i, r.ID)
		c := d.Fleet().At(i)
		assert.Equal(t, c.Weight(), r.Weight)
		assert.Equal(t, c.Volume(), r.Volume)
		assert.Equal(t, sim.MaxVolume, r.VolumeMax)
	}

	// AND every exchange used its own connection
	assert.Equal(t, 5, fc.Conns())
	assert.Equal(t, PhaseTerminate, d.Phase())
	assert.Len(t, rt.Exchanges, 5)
	for _, ex := range rt.Exchanges {
		assert.Equal(t, trace.OutcomeOK, ex.Outcome)
	}
}

func TestRun_PerBurst_ReusesOneConnectionForReports(t *testing.T) {
	fc := newFakeController(t, nil)
	cfg := testConfig(fc.Addr(), 3)
	cfg.Mode = ModePerBurst
	d := newTestDriver(t, cfg)

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, fc.Reports(), 3)
	assert.Equal(t, 3, fc.Conns(), "one burst connection plus trigger and fetch")
}

func TestRun_PerBurst_RedialsAfterHangUp(t *testing.T) {
	// GIVEN a controller that drops the connection after each report
	fc := newFakeController(t, func(req protocol.Request) reply {
		if req.Kind() == protocol.KindContainerReport {
			return reply{hangUp: true}
		}
		return echoKind(req)
	})
	cfg := testConfig(fc.Addr(), 3)
	cfg.Mode = ModePerBurst
	d := newTestDriver(t, cfg)

	// WHEN a cycle runs
	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	// THEN every report still reached the controller on a fresh connection
	assert.Len(t, fc.Reports(), 3)
	assert.Equal(t, 5, fc.Conns())
	assert.Equal(t, []trace.Outcome{trace.OutcomeNoResponse, trace.OutcomeNoResponse, trace.OutcomeNoResponse},
		outcomes(rt, protocol.KindContainerReport))
}

func TestRun_EmptiesScheduledContainersOnly(t *testing.T) {
	// GIVEN a controller that schedules containers 0, 2 and 1
	fc := newFakeController(t, withCircuits([][][]int{{{0, 2}}, {{1}}}))
	cfg := testConfig(fc.Addr(), 10)
	d := newTestDriver(t, cfg)

	// AND a reference fleet filled with the same seed
	ref := sim.NewFleet(10)
	ref.FillAll(sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)).ForSubsystem(sim.SubsystemFill))

	// WHEN one cycle runs
	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	// THEN the scheduled containers are empty
	for _, id := range []int{0, 1, 2} {
		c, ok := d.Fleet().Container(id)
		require.True(t, ok)
		assert.Zero(t, c.Weight(), "container %d", id)
		assert.Zero(t, c.Volume(), "container %d", id)
	}
	// AND every other container kept its fill
	for id := 3; id < 10; id++ {
		assert.Equal(t, ref.At(id).Weight(), d.Fleet().At(id).Weight(), "container %d", id)
		assert.Equal(t, ref.At(id).Volume(), d.Fleet().At(id).Volume(), "container %d", id)
	}
	require.Len(t, rt.Collections, 1)
	assert.Equal(t, []int{0, 2, 1}, rt.Collections[0].Emptied)
	assert.Equal(t, 2, rt.Collections[0].Circuits)
}

func TestRun_UnknownCircuitContainersAreSkipped(t *testing.T) {
	fc := newFakeController(t, withCircuits([][][]int{{{0, 42, -3}}}))
	d := newTestDriver(t, testConfig(fc.Addr(), 3))

	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rt.Collections, 1)
	assert.Equal(t, []int{0}, rt.Collections[0].Emptied)
	assert.Equal(t, []int{42, -3}, rt.Collections[0].Unknown)
	assert.Zero(t, d.Fleet().At(0).Weight())
	assert.NotZero(t, d.Fleet().At(1).Weight())
}

func TestRun_ControllerUnreachable_CompletesTheCycle(t *testing.T) {
	// GIVEN no controller listening
	d := newTestDriver(t, testConfig(closedAddr(t), 3))

	// WHEN a cycle runs
	rt, err := d.Run(context.Background())

	// THEN the run still completes with every exchange dropped
	require.NoError(t, err)
	assert.Equal(t, PhaseTerminate, d.Phase())
	require.Len(t, rt.Exchanges, 5)
	for _, ex := range rt.Exchanges {
		assert.Equal(t, trace.OutcomeConnectError, ex.Outcome)
		assert.NotEmpty(t, ex.Err)
	}
	assert.Empty(t, rt.Collections)
	// AND the fleet keeps its fill
	assert.NotZero(t, d.Fleet().At(0).Weight())
}

func TestRun_HangUpIsNoResponse(t *testing.T) {
	fc := newFakeController(t, func(protocol.Request) reply { return reply{hangUp: true} })
	d := newTestDriver(t, testConfig(fc.Addr(), 2))

	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, fc.Requests(), 4)
	for _, ex := range rt.Exchanges {
		assert.Equal(t, trace.OutcomeNoResponse, ex.Outcome)
	}
}

func TestRun_MalformedReplyIsProtocolError(t *testing.T) {
	fc := newFakeController(t, func(protocol.Request) reply { return reply{raw: "not xml at all\n\n"} })
	d := newTestDriver(t, testConfig(fc.Addr(), 1))

	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rt.Exchanges, 3)
	for _, ex := range rt.Exchanges {
		assert.Equal(t, trace.OutcomeProtocolError, ex.Outcome)
	}
}

func TestRun_WrongResponseKindIsUnexpected(t *testing.T) {
	// GIVEN a controller that answers the trigger as if it were a fetch
	fc := newFakeController(t, func(req protocol.Request) reply {
		if req.Kind() == protocol.KindTrigCircuitComputation {
			return reply{doc: protocol.NewCircuitsResponse(nil)}
		}
		return echoKind(req)
	})
	d := newTestDriver(t, testConfig(fc.Addr(), 1))

	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	got := outcomes(rt, protocol.KindTrigCircuitComputation)
	assert.Equal(t, []trace.Outcome{trace.OutcomeUnexpected}, got)
	for _, ex := range rt.Exchanges {
		if ex.Kind == string(protocol.KindTrigCircuitComputation) {
			assert.Equal(t, string(protocol.KindReqCircuits), ex.ResponseType)
		}
	}
}

func TestRun_CircuitsReplyWithoutStructureIsProtocolError(t *testing.T) {
	// GIVEN a controller whose REQ_CIRCUITS reply lacks <circuits>
	fc := newFakeController(t, func(req protocol.Request) reply {
		return reply{doc: protocol.NewResponse(req.Kind())}
	})
	obs := &recordingObserver{}
	d := newTestDriver(t, testConfig(fc.Addr(), 1), WithObserver(obs))

	// WHEN a cycle runs
	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	// THEN the fetch is a dropped exchange and nothing is collected
	assert.Equal(t, []trace.Outcome{trace.OutcomeProtocolError}, outcomes(rt, protocol.KindReqCircuits))
	assert.Empty(t, rt.Collections)
	summary := trace.Summarize(rt)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Dropped)
	require.Len(t, obs.exchanges, 3)
	assert.Equal(t, trace.OutcomeProtocolError, obs.exchanges[2].Outcome)
	assert.NotZero(t, d.Fleet().At(0).Weight())
}

func TestRun_ExchangeTimeoutAgainstSilentController(t *testing.T) {
	fc := newFakeController(t, func(protocol.Request) reply { return reply{silent: true} })
	cfg := testConfig(fc.Addr(), 1)
	cfg.ExchangeTimeout = 50 * time.Millisecond
	d := newTestDriver(t, cfg)

	start := time.Now()
	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, rt.Exchanges, 3)
	for _, ex := range rt.Exchanges {
		assert.Equal(t, trace.OutcomeTransportError, ex.Outcome)
	}
}

func TestRun_MultipleCycles(t *testing.T) {
	fc := newFakeController(t, nil)
	cfg := testConfig(fc.Addr(), 2)
	cfg.Cycles = 3
	d := newTestDriver(t, cfg)

	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, d.Cycle())
	assert.Len(t, fc.Reports(), 6)
	assert.Len(t, rt.Collections, 3)
	assert.Equal(t, 3, trace.Summarize(rt).Cycles)
}

func TestRun_InteractiveStopSkipsFetch(t *testing.T) {
	// GIVEN an operator who answers n
	fc := newFakeController(t, nil)
	cfg := testConfig(fc.Addr(), 2)
	cfg.Interactive = true
	cfg.Cycles = 0
	var prompts strings.Builder
	d := newTestDriver(t, cfg, WithPrompter(NewReaderPrompter(strings.NewReader("n\n"), &prompts)))

	// WHEN the driver runs
	_, err := d.Run(context.Background())
	require.NoError(t, err)

	// THEN the cycle ends after the trigger, with no fetch
	assert.Equal(t, []protocol.Kind{
		protocol.KindContainerReport,
		protocol.KindContainerReport,
		protocol.KindTrigCircuitComputation,
	}, fc.Kinds())
	assert.Equal(t, continuePrompt, prompts.String())
	assert.NotZero(t, d.Fleet().At(0).Weight())
}

func TestRun_InteractiveContinueThenStop(t *testing.T) {
	fc := newFakeController(t, withCircuits([][][]int{{{1}}}))
	cfg := testConfig(fc.Addr(), 2)
	cfg.Interactive = true
	cfg.Cycles = 0
	d := newTestDriver(t, cfg, WithPrompter(NewReaderPrompter(strings.NewReader("\nN\n"), io.Discard)))

	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, d.Cycle())
	assert.Len(t, fc.Reports(), 4)
	assert.Len(t, rt.Collections, 1)
	fetches := 0
	for _, k := range fc.Kinds() {
		if k == protocol.KindReqCircuits {
			fetches++
		}
	}
	assert.Equal(t, 1, fetches)
}

func TestRun_InteractiveEndOfInputStops(t *testing.T) {
	fc := newFakeController(t, nil)
	cfg := testConfig(fc.Addr(), 1)
	cfg.Interactive = true
	cfg.Cycles = 0
	d := newTestDriver(t, cfg)

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, d.Cycle())
	assert.NotContains(t, fc.Kinds(), protocol.KindReqCircuits)
}

func TestRun_CancelledContextStopsBeforeAnyExchange(t *testing.T) {
	fc := newFakeController(t, nil)
	d := newTestDriver(t, testConfig(fc.Addr(), 3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fc.Requests())
}

func TestRun_CancelDuringComputeWait(t *testing.T) {
	fc := newFakeController(t, nil)
	cfg := testConfig(fc.Addr(), 1)
	cfg.ComputeWait = time.Hour
	d := newTestDriver(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := d.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, fc.Kinds(), protocol.KindReqCircuits)
}

func TestRun_CancelWhileAwaitingOperator(t *testing.T) {
	// GIVEN an interactive run whose operator never answers
	fc := newFakeController(t, nil)
	cfg := testConfig(fc.Addr(), 1)
	cfg.Interactive = true
	pr, pw := io.Pipe()
	defer pw.Close()
	d := newTestDriver(t, cfg, WithPrompter(NewReaderPrompter(pr, io.Discard)))

	// WHEN the context ends while the prompt is waiting
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := d.Run(ctx)

	// THEN Run returns promptly with the context error and skips collection
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NotContains(t, fc.Kinds(), protocol.KindReqCircuits)
}

func TestComputeDelay_SeededJitterWithinBounds(t *testing.T) {
	cfg := testConfig("127.0.0.1:1", 1)
	cfg.ComputeWait = 100 * time.Millisecond
	cfg.ComputeJitter = 50 * time.Millisecond

	a := newTestDriver(t, cfg)
	b := newTestDriver(t, cfg)
	for i := 0; i < 20; i++ {
		got := a.computeDelay()
		assert.GreaterOrEqual(t, got, cfg.ComputeWait)
		assert.Less(t, got, cfg.ComputeWait+cfg.ComputeJitter)
		assert.Equal(t, got, b.computeDelay(), "draw %d", i)
	}
}

func TestComputeDelay_NoJitter(t *testing.T) {
	cfg := testConfig("127.0.0.1:1", 1)
	cfg.ComputeWait = time.Second
	assert.Equal(t, time.Second, newTestDriver(t, cfg).computeDelay())
}

func TestRun_SameSeedSameReports(t *testing.T) {
	run := func() []protocol.ContainerReport {
		fc := newFakeController(t, nil)
		cfg := testConfig(fc.Addr(), 5)
		cfg.Seed = 7
		_, err := newTestDriver(t, cfg).Run(context.Background())
		require.NoError(t, err)
		return fc.Reports()
	}
	assert.Equal(t, run(), run())
}

type recordingObserver struct {
	exchanges []trace.ExchangeRecord
	cycles    []observe.CycleReport
}

func (r *recordingObserver) Exchange(_ context.Context, record trace.ExchangeRecord) {
	r.exchanges = append(r.exchanges, record)
}

func (r *recordingObserver) Cycle(_ context.Context, report observe.CycleReport) {
	r.cycles = append(r.cycles, report)
}

func TestRun_ObserverSeesExchangesAndCycles(t *testing.T) {
	fc := newFakeController(t, withCircuits([][][]int{{{1}}}))
	obs := &recordingObserver{}
	cfg := testConfig(fc.Addr(), 2)
	cfg.TraceLevel = trace.TraceLevelNone
	d := newTestDriver(t, cfg, WithObserver(obs))

	rt, err := d.Run(context.Background())
	require.NoError(t, err)

	// tracing is off but observers still see everything
	assert.Empty(t, rt.Exchanges)
	assert.Len(t, obs.exchanges, 4)
	assert.Equal(t, trace.NoContainer, obs.exchanges[2].ContainerID)
	assert.Equal(t, 1, obs.exchanges[1].ContainerID)
	require.Len(t, obs.cycles, 1)
	assert.Equal(t, 1, obs.cycles[0].Cycle)
	assert.Equal(t, []int{1}, obs.cycles[0].Emptied)
	assert.Len(t, obs.cycles[0].Containers, 2)
}

func TestRun_NoContainers(t *testing.T) {
	fc := newFakeController(t, nil)
	d := newTestDriver(t, testConfig(fc.Addr(), 0))

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []protocol.Kind{protocol.KindTrigCircuitComputation, protocol.KindReqCircuits}, fc.Kinds())
}
