package driver

// Phase is a state of the driver's cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFillAll
	PhaseReportAll
	PhaseTrigCompute
	PhaseAwaitContinue
	PhaseFetchAndClear
	PhaseTerminate
)

var phaseNames = map[Phase]string{
	PhaseIdle:          "idle",
	PhaseFillAll:       "fill-all",
	PhaseReportAll:     "report-all",
	PhaseTrigCompute:   "trig-compute",
	PhaseAwaitContinue: "await-continue",
	PhaseFetchAndClear: "fetch-and-clear",
	PhaseTerminate:     "terminate",
}

// String returns the phase name used in logs and traces.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}
