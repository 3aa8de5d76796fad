// Package inbound verifies and dispatches interaction deliveries.
//
// Commands are handled in one of three modes. ack_then_forward answers with a
// deferred response and forwards the raw payload only after that answer has
// been written. forward_and_wait relays the downstream answer. handshake_only
// never forwards.
package inbound
