// Package httpapi exposes the relay over HTTP: the signed interactions
// endpoint, the signed image proxy and a health probe.
package httpapi
