// Package race holds the pure race data model: status transitions and
// per-track lap bookkeeping. It knows nothing about the bus, the viewers, or
// timers; the coordinator drives it and owns its synchronization.
package race
