// Package coordinator is the race-state coordinator: it owns the race data
// model, serializes viewer commands against asynchronous sensor events,
// drives the start-light countdown, and pushes every resulting event into
// the viewer broadcaster.
package coordinator
