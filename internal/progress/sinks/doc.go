// Package sinks implements concrete stage event consumers: structured
// logging, Prometheus collectors, and the failure audit table. Each sink
// satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
