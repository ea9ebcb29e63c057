// Package app runs the engagement engine: the tick scheduler and the engines
// it drives (chaos, triggers, achievements, role reconciliation), plus the
// runtime that wires storage, gateways and the admin surfaces together.
package app
