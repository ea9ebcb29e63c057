// Package domain holds the engagement model and the pure parts of the tick
// engine: the stat pipeline, chaos decisions, the achievement catalog, desired
// role selection and reconciliation planning.
//
// Nothing in this package performs I/O. Callers pass time, randomness and
// collaborator data in explicitly, which keeps every rule deterministic and
// directly testable.
package domain
