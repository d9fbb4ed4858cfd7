// Package driver runs the fill/report/compute/collect cycle against a controller.
//
// A cycle walks these phases in order:
//
//	FillAll → ReportAll → TrigCompute → AwaitContinue → FetchAndClear
//
// AwaitContinue asks the operator in interactive runs and otherwise waits a
// configurable delay. Every exchange is independent: a failure is logged,
// recorded in the trace and the driver moves on.
package driver
