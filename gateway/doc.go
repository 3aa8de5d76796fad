// Package gateway mirrors chat messages from a persistent gateway session to
// the downstream webhook.
//
// Messages are filtered by an optional channel allow-list and handed to a
// dispatch function as command.ForwardEventMessage values. Handler failures
// are logged and never stop the session.
package gateway
