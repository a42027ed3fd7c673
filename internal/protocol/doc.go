// Package protocol defines the wire messages exchanged with dashboard
// viewers: the inbound plain-text command tokens and the outbound JSON
// records with their "type" discriminator.
package protocol
