// Package backoff provides retry delay helpers: a uniformly random wait between
// two bounds and a sleep that honors context cancellation.
package backoff
