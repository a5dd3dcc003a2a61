// Package session is the transport collaborator of the mirror core.
//
// Ownership boundary:
//   - dialing the server over tcp, tls or websocket, with retry backoff
//   - framing outbound JSON-RPC calls and inbound {id, result} envelopes
//   - delivering envelopes in arrival order on one channel
//
// The session never interprets envelopes; dispatch belongs to the core.
package session
