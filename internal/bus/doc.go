// Package bus bridges the sensor pub/sub bus (Redis) to the coordinator: it
// translates finish-topic messages into per-track finish events and publishes
// the one-shot race-start control message. Reconnection policy is owned by
// the process layer, not here.
package bus
