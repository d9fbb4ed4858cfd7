package trace

// TraceLevel controls the verbosity of exchange tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelExchanges captures every exchange and collection.
	TraceLevelExchanges TraceLevel = "exchanges"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelExchanges: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Enabled reports whether records are kept.
func (c TraceConfig) Enabled() bool {
	return c.Level == TraceLevelExchanges
}

// RunTrace collects exchange and collection records during a simulation run.
type RunTrace struct {
	Config      TraceConfig
	Exchanges   []ExchangeRecord
	Collections []CollectionRecord
}

// NewRunTrace creates a RunTrace ready for recording.
func NewRunTrace(config TraceConfig) *RunTrace {
	return &RunTrace{
		Config:      config,
		Exchanges:   make([]ExchangeRecord, 0),
		Collections: make([]CollectionRecord, 0),
	}
}

// RecordExchange appends an exchange record. No-op when tracing is disabled.
func (rt *RunTrace) RecordExchange(record ExchangeRecord) {
	if !rt.Config.Enabled() {
		return
	}
	rt.Exchanges = append(rt.Exchanges, record)
}

// RecordCollection appends a collection record. No-op when tracing is disabled.
func (rt *RunTrace) RecordCollection(record CollectionRecord) {
	if !rt.Config.Enabled() {
		return
	}
	rt.Collections = append(rt.Collections, record)
}
