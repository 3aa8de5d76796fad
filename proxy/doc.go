// Package proxy serves remote images behind expiring signed links.
package proxy
