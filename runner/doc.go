// Package runner dispatches feature partitions to a fixed pool of workers and
// wires each worker's scenarios to its own browser context and to the outcome
// collector.
package runner
