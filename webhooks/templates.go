package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-relay/core"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type DeliveryIDExtractor func(req core.InboundRequest) (string, error)

type ProviderWebhookTemplate struct {
	ProviderID string
	Verifier   Verifier
	Extractor  DeliveryIDExtractor
}

func HeaderDeliveryIDExtractor(headers ...string) DeliveryIDExtractor {
	keys := append([]string(nil), headers...)
	return func(req core.InboundRequest) (string, error) {
		for _, key := range keys {
			if value := strings.TrimSpace(headerValue(req.Headers, key)); value != "" {
				return value, nil
			}
		}
		return "", fmt.Errorf("webhooks: delivery id header is missing")
	}
}

// JSONFieldDeliveryIDExtractor reads a top-level string field from a JSON body.
func JSONFieldDeliveryIDExtractor(field string) DeliveryIDExtractor {
	field = strings.TrimSpace(field)
	return func(req core.InboundRequest) (string, error) {
		if len(req.Body) == 0 {
			return "", fmt.Errorf("webhooks: body is empty")
		}
		var payload map[string]any
		if err := json.Unmarshal(req.Body, &payload); err != nil {
			return "", fmt.Errorf("webhooks: decode body: %w", err)
		}
		value, ok := payload[field].(string)
		if !ok || strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("webhooks: body field %q is missing", field)
		}
		return strings.TrimSpace(value), nil
	}
}

func ChainDeliveryIDExtractors(extractors ...DeliveryIDExtractor) DeliveryIDExtractor {
	list := append([]DeliveryIDExtractor(nil), extractors...)
	return func(req core.InboundRequest) (string, error) {
		var lastErr error
		for _, extractor := range list {
			if extractor == nil {
				continue
			}
			deliveryID, err := extractor(req)
			if err == nil && strings.TrimSpace(deliveryID) != "" {
				return strings.TrimSpace(deliveryID), nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr != nil {
			return "", lastErr
		}
		return "", fmt.Errorf("webhooks: delivery id is missing")
	}
}

// NewDiscordInteractionTemplate verifies interaction deliveries with the
// application public key and identifies them by interaction id.
func NewDiscordInteractionTemplate(publicKeyHex string) (ProviderWebhookTemplate, error) {
	verifier, err := NewEd25519Verifier(publicKeyHex)
	if err != nil {
		return ProviderWebhookTemplate{}, err
	}
	return ProviderWebhookTemplate{
		ProviderID: core.ProviderDiscord,
		Verifier:   verifier,
		Extractor: ChainDeliveryIDExtractors(
			JSONFieldDeliveryIDExtractor("id"),
			HeaderDeliveryIDExtractor("X-Request-Id"),
		),
	}, nil
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
