package command

import (
	"encoding/json"
	"strings"
)

const TypeForwardEvent = "relay.command.forward_event"

// ForwardEventMessage asks for a gateway event envelope to be posted to the
// downstream webhook and awaited.
type ForwardEventMessage struct {
	Event     string
	ChannelID string
	MessageID string
	Payload   []byte
}

func (ForwardEventMessage) Type() string { return TypeForwardEvent }

func (m ForwardEventMessage) Validate() error {
	if strings.TrimSpace(m.Event) == "" {
		return commandValidationError("event", "event name is required")
	}
	if len(m.Payload) == 0 {
		return commandValidationError("payload", "payload is required")
	}
	if !json.Valid(m.Payload) {
		return commandValidationError("payload", "payload must be valid json")
	}
	return nil
}
