package inbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type DeliveryIDExtractor func(req core.InboundRequest) (string, error)

// Dispatcher verifies inbound requests and routes them to the handler
// registered for their surface. Nothing reaches a handler unverified.
type Dispatcher struct {
	Verifier          Verifier
	ExtractDeliveryID DeliveryIDExtractor

	mu       sync.RWMutex
	handlers map[string]core.InboundHandler
}

func NewDispatcher(verifier Verifier, extractor DeliveryIDExtractor) *Dispatcher {
	return &Dispatcher{
		Verifier:          verifier,
		ExtractDeliveryID: extractor,
		handlers:          map[string]core.InboundHandler{},
	}
}

func (d *Dispatcher) Register(handler core.InboundHandler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	surface := normalizeSurface(handler.Surface())
	if !isSupportedSurface(surface) {
		return inboundBadInput(
			fmt.Sprintf("inbound: unsupported surface %q", surface),
			map[string]any{"surface": surface},
		)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = map[string]core.InboundHandler{}
	}
	if _, exists := d.handlers[surface]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for surface %q", surface),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.RelayErrorBadInput,
			map[string]any{"surface": surface},
		)
	}
	d.handlers[surface] = handler
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if d == nil {
		return core.InboundResult{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.Surface = normalizeSurface(req.Surface)
	if req.ProviderID == "" {
		return core.InboundResult{}, inboundBadInput("inbound: provider id is required", map[string]any{
			"surface": req.Surface,
		})
	}
	if !isSupportedSurface(req.Surface) {
		return core.InboundResult{}, inboundBadInput(
			fmt.Sprintf("inbound: unsupported surface %q", req.Surface),
			map[string]any{"provider_id": req.ProviderID, "surface": req.Surface},
		)
	}
	if d.Verifier != nil {
		if err := d.Verifier.Verify(ctx, req); err != nil {
			verifyErr := verificationError(err, req)
			return core.InboundResult{
				Accepted:   false,
				StatusCode: core.HTTPStatus(verifyErr),
				Metadata: map[string]any{
					"provider_id": req.ProviderID,
					"surface":     req.Surface,
					"rejected":    true,
				},
			}, verifyErr
		}
	}

	req.Metadata = ensureMetadata(req.Metadata)
	if d.ExtractDeliveryID != nil {
		if deliveryID, err := d.ExtractDeliveryID(req); err == nil && deliveryID != "" {
			req.Metadata["delivery_id"] = deliveryID
		}
	}

	handler := d.handlerFor(req.Surface)
	if handler == nil {
		return core.InboundResult{}, inboundError(
			fmt.Sprintf("inbound: no handler registered for surface %q", req.Surface),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.RelayErrorNotConfigured,
			map[string]any{"provider_id": req.ProviderID, "surface": req.Surface},
		)
	}
	result, err := handler.Handle(ctx, req)
	if err != nil {
		return result, handlerError(err, req)
	}
	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["provider_id"] = req.ProviderID
	result.Metadata["surface"] = req.Surface
	if deliveryID, ok := req.Metadata["delivery_id"]; ok {
		result.Metadata["delivery_id"] = deliveryID
	}
	return result, nil
}

func (d *Dispatcher) handlerFor(surface string) core.InboundHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[surface]
}

// verificationError keeps the verifier's own classification so a missing
// header stays a 400 while a bad signature stays a 401.
func verificationError(err error, req core.InboundRequest) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return err
	}
	return inboundWrapError(
		err,
		goerrors.CategoryAuth,
		"invalid request signature",
		http.StatusUnauthorized,
		core.RelayErrorInvalidSignature,
		map[string]any{"provider_id": req.ProviderID, "surface": req.Surface},
	)
}

func handlerError(err error, req core.InboundRequest) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return err
	}
	return inboundWrapError(
		err,
		goerrors.CategoryOperation,
		"inbound: handler execution failed",
		http.StatusInternalServerError,
		core.RelayErrorOperationFailed,
		map[string]any{"provider_id": req.ProviderID, "surface": req.Surface},
	)
}

func normalizeSurface(surface string) string {
	return strings.TrimSpace(strings.ToLower(surface))
}

func isSupportedSurface(surface string) bool {
	switch surface {
	case core.SurfaceInteraction:
		return true
	default:
		return false
	}
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	return metadata
}
