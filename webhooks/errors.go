package webhooks

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
)

func webhookError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func missingSignatureError(metadata map[string]any) error {
	return webhookError(
		"missing signature headers",
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.RelayErrorMissingSignature,
		metadata,
	)
}

func invalidSignatureError(metadata map[string]any) error {
	return webhookError(
		"invalid request signature",
		goerrors.CategoryAuth,
		http.StatusUnauthorized,
		core.RelayErrorInvalidSignature,
		metadata,
	)
}
