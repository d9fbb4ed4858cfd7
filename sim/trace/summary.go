package trace

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// TraceSummary aggregates statistics from a RunTrace.
type TraceSummary struct {
	TotalExchanges      int
	Succeeded           int
	Dropped             int
	Cycles              int
	ContainersEmptied   int
	UnknownContainers   int
	MeanLatency         time.Duration
	MaxLatency          time.Duration
	OutcomeDistribution map[Outcome]int
	KindDistribution    map[string]int // request kind → count of exchanges
}

// Summarize computes aggregate statistics from a RunTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(rt *RunTrace) *TraceSummary {
	summary := &TraceSummary{
		OutcomeDistribution: make(map[Outcome]int),
		KindDistribution:    make(map[string]int),
	}
	if rt == nil {
		return summary
	}

	summary.TotalExchanges = len(rt.Exchanges)
	var total time.Duration
	for _, e := range rt.Exchanges {
		summary.OutcomeDistribution[e.Outcome]++
		summary.KindDistribution[e.Kind]++
		if e.Outcome.Dropped() {
			summary.Dropped++
		} else {
			summary.Succeeded++
		}
		total += e.Duration
		if e.Duration > summary.MaxLatency {
			summary.MaxLatency = e.Duration
		}
		summary.Cycles = max(summary.Cycles, e.Cycle)
	}
	if summary.TotalExchanges > 0 {
		summary.MeanLatency = total / time.Duration(summary.TotalExchanges)
	}

	for _, c := range rt.Collections {
		summary.ContainersEmptied += len(c.Emptied)
		summary.UnknownContainers += len(c.Unknown)
		summary.Cycles = max(summary.Cycles, c.Cycle)
	}

	return summary
}

// Print writes a human-readable summary.
func (s *TraceSummary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "Cycles               : %d\n", s.Cycles)
	fmt.Fprintf(w, "Exchanges            : %d\n", s.TotalExchanges)
	fmt.Fprintf(w, "Succeeded            : %d\n", s.Succeeded)
	fmt.Fprintf(w, "Dropped              : %d\n", s.Dropped)
	fmt.Fprintf(w, "Containers Emptied   : %d\n", s.ContainersEmptied)
	if s.UnknownContainers > 0 {
		fmt.Fprintf(w, "Unknown Containers   : %d\n", s.UnknownContainers)
	}
	if s.TotalExchanges > 0 {
		fmt.Fprintf(w, "Mean Latency         : %s\n", s.MeanLatency)
		fmt.Fprintf(w, "Max Latency          : %s\n", s.MaxLatency)
	}

	outcomes := make([]string, 0, len(s.OutcomeDistribution))
	for o := range s.OutcomeDistribution {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(w, "  %-19s: %d\n", o, s.OutcomeDistribution[Outcome(o)])
	}
}
