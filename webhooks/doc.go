// Package webhooks verifies inbound interaction deliveries.
//
// Deliveries are signed with Ed25519 over the timestamp header concatenated
// with the raw body. A missing header is bad input; a signature that does not
// verify is unauthorized.
package webhooks
