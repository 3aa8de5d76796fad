package command

import (
	"context"
	"net/http"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/transport"
)

type Forwarder interface {
	Configured() bool
	Forward(ctx context.Context, body []byte) (transport.ForwardResult, error)
}

type ForwardEventCommand struct {
	forwarder Forwarder
}

func NewForwardEventCommand(forwarder Forwarder) *ForwardEventCommand {
	return &ForwardEventCommand{forwarder: forwarder}
}

// Execute performs a single awaited forward. A downstream error status is
// reported as an external failure so the caller can log it.
func (c *ForwardEventCommand) Execute(ctx context.Context, msg ForwardEventMessage) error {
	if c == nil || c.forwarder == nil {
		return commandDependencyError("command: forwarder is required")
	}
	if !c.forwarder.Configured() {
		return commandDependencyError("command: forward target is not configured")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.forwarder.Forward(ctx, msg.Payload)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	if out.StatusCode < http.StatusOK || out.StatusCode >= http.StatusMultipleChoices {
		return goerrors.New("command: downstream rejected event", goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.RelayErrorUpstreamFailed).
			WithMetadata(map[string]any{
				"event":       msg.Event,
				"channel_id":  msg.ChannelID,
				"message_id":  msg.MessageID,
				"status_code": out.StatusCode,
				"delivery_id": out.DeliveryID,
			})
	}
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
