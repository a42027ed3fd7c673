// Package broadcast implements the viewer fan-out using the actor pattern.
//
// A single goroutine owns the connection registry and consumes a command
// channel (no mutexes). Every viewer gets a dedicated write goroutine with a
// bounded buffer; a viewer that stops draining is evicted instead of stalling
// broadcasts to everyone else.
package broadcast
