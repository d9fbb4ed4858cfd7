// Package observe publishes what the driver does to systems outside the simulator:
// Prometheus metrics, a Redis shadow of the fleet and NATS events.
//
// Observers are called synchronously from the driver goroutine. They must not
// block for long and never fail the run; errors are logged and dropped.
package observe

import (
	"context"

	"github.com/binsim/binsim/sim"
	"github.com/binsim/binsim/sim/trace"
)

// CycleReport describes the fleet at the end of one cycle.
type CycleReport struct {
	Cycle      int
	Containers []sim.Container // snapshot, safe to retain
	Emptied    []int
}

// Observer receives driver events.
type Observer interface {
	Exchange(ctx context.Context, record trace.ExchangeRecord)
	Cycle(ctx context.Context, report CycleReport)
}

// Multi fans every event out to each observer in order.
type Multi []Observer

// Exchange forwards record to every observer.
func (m Multi) Exchange(ctx context.Context, record trace.ExchangeRecord) {
	for _, o := range m {
		o.Exchange(ctx, record)
	}
}

// Cycle forwards report to every observer.
func (m Multi) Cycle(ctx context.Context, report CycleReport) {
	for _, o := range m {
		o.Cycle(ctx, report)
	}
}

// Nop ignores every event.
type Nop struct{}

// Exchange does nothing.
func (Nop) Exchange(context.Context, trace.ExchangeRecord) {}

// Cycle does nothing.
func (Nop) Cycle(context.Context, CycleReport) {}
