// Package core contains the relay contracts, configuration, error envelopes
// and observability helpers. Adapters and surfaces depend on this package;
// core must not depend on transport or gateway implementations.
package core
