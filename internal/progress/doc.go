// Package progress carries stage dispatch events from the scheduler to
// pluggable sinks. Events are batched on a background goroutine so handlers
// never wait on logging, metrics or the failure audit.
package progress
