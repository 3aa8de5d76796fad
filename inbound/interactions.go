package inbound

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/transport"
)

const DetachedInteractionForward = "interaction-forward"

type Forwarder interface {
	Configured() bool
	Forward(ctx context.Context, body []byte) (transport.ForwardResult, error)
	Detach(ctx context.Context, name string, body []byte) *transport.DetachedForward
}

// InteractionHandler implements the interaction state machine: pings are
// answered with a pong, commands follow the configured forward mode and any
// other type gets a deferred acknowledgement.
type InteractionHandler struct {
	mode      core.ForwardMode
	forwarder Forwarder
	observer  *core.Observer
}

func NewInteractionHandler(mode core.ForwardMode, forwarder Forwarder, observer *core.Observer) *InteractionHandler {
	if mode == "" {
		mode = core.ForwardModeAckThenForward
	}
	if observer == nil {
		observer = core.NewObserver(nil, nil)
	}
	return &InteractionHandler{
		mode:      mode,
		forwarder: forwarder,
		observer:  observer,
	}
}

func (*InteractionHandler) Surface() string {
	return core.SurfaceInteraction
}

func (h *InteractionHandler) Mode() core.ForwardMode {
	return h.mode
}

func (h *InteractionHandler) Handle(ctx context.Context, req core.InboundRequest) (result core.InboundResult, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"provider_id": req.ProviderID,
		"mode":        string(h.mode),
	}
	defer func() {
		fields["status_code"] = result.StatusCode
		h.observer.Observe(ctx, startedAt, "interaction_dispatch", err, fields)
	}()

	var interaction core.Interaction
	if decodeErr := json.Unmarshal(req.Body, &interaction); decodeErr != nil {
		return core.InboundResult{StatusCode: http.StatusBadRequest}, inboundWrapError(
			decodeErr,
			goerrors.CategoryBadInput,
			invalidBodyMessage,
			http.StatusBadRequest,
			core.RelayErrorBadInput,
			map[string]any{"provider_id": req.ProviderID},
		)
	}
	if !interaction.HasType() {
		return core.InboundResult{StatusCode: http.StatusBadRequest}, inboundBadInput(
			invalidBodyMessage,
			map[string]any{"provider_id": req.ProviderID, "reason": "missing type"},
		)
	}
	kind := interaction.Kind()
	fields["interaction_id"] = interaction.ID
	fields["interaction_type"] = string(kind)

	switch kind {
	case core.InteractionKindHandshake:
		return respond(core.ResponseTypePong), nil
	case core.InteractionKindCommand:
		return h.handleCommand(ctx, req, fields)
	default:
		return respond(core.ResponseTypeDeferredChannelMessageWithSource), nil
	}
}

func (h *InteractionHandler) handleCommand(
	ctx context.Context,
	req core.InboundRequest,
	fields map[string]any,
) (core.InboundResult, error) {
	switch h.mode {
	case core.ForwardModeHandshakeOnly:
		return respond(core.ResponseTypeDeferredChannelMessageWithSource), nil
	case core.ForwardModeForwardAndWait:
		return h.forwardAndWait(ctx, req, fields)
	default:
		result := respond(core.ResponseTypeDeferredChannelMessageWithSource)
		if h.forwarder == nil || !h.forwarder.Configured() {
			h.observer.Log(ctx, "warn", "forward target not configured, command acknowledged only", fields)
			return result, nil
		}
		body := append([]byte(nil), req.Body...)
		forwarder := h.forwarder
		result.AfterResponse = func(afterCtx context.Context) {
			forwarder.Detach(afterCtx, DetachedInteractionForward, body)
		}
		fields["detached"] = DetachedInteractionForward
		return result, nil
	}
}

func (h *InteractionHandler) forwardAndWait(
	ctx context.Context,
	req core.InboundRequest,
	fields map[string]any,
) (core.InboundResult, error) {
	failed := core.InboundResult{StatusCode: http.StatusInternalServerError}
	if h.forwarder == nil || !h.forwarder.Configured() {
		return failed, forwardFailed(core.ErrForwardTargetMissing, fields)
	}
	res, err := h.forwarder.Forward(ctx, req.Body)
	if err != nil {
		return failed, forwardFailed(err, fields)
	}
	fields["downstream_status"] = res.StatusCode
	if !json.Valid(res.Body) {
		return failed, forwardFailed(errDownstreamNotJSON, fields)
	}
	return core.InboundResult{
		Accepted:    true,
		StatusCode:  res.StatusCode,
		Body:        res.Body,
		ContentType: "application/json",
	}, nil
}

func respond(responseType int) core.InboundResult {
	body, _ := json.Marshal(core.InteractionResponse{Type: responseType})
	return core.InboundResult{
		Accepted:    true,
		StatusCode:  http.StatusOK,
		Body:        body,
		ContentType: "application/json",
	}
}
