// Package protocol owns the wire contract shared by the mirror core and its transport.
//
// Ownership boundary:
// - inbound envelope shape ({id, result})
// - remote handles and object-description field names
// - attribute value coercion (bool/int/float/string)
// - error taxonomy (protocol, stale-reference, capability-mismatch)
package protocol
