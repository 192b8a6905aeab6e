// Package system provides the wall clock used by the pipeline.
package system

import "time"

// Clock implements spider.Clock using time.Now in the process' local zone.
// Publish times and image names are rendered in local time.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current local time.
func (Clock) Now() time.Time {
	return time.Now()
}
