// Package sim provides the container fleet model for the binsim simulator.
//
// # Reading Guide
//
// Start with these files:
//   - container.go: one container's fill state and the random fill rule
//   - fleet.go: the ordered fleet owned by the driver
//   - rng.go: seeded, per-subsystem random sources
//
// # Architecture
//
// The sim package holds pure state; I/O lives in sub-packages:
//   - sim/wire/: blank-line framed XML documents over a stream connection
//   - sim/protocol/: request and response schemas exchanged with the controller
//   - sim/driver/: the fill/report/compute/collect state machine
//   - sim/trace/: per-exchange records and run summary
//   - sim/observe/: metrics, Redis shadow and NATS event observers
package sim
