package inbound

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
)

const (
	forwardFailedMessage = "forward failed"
	invalidBodyMessage   = "invalid interaction payload"
)

var errDownstreamNotJSON = errors.New("inbound: downstream response is not json")

func inboundError(
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

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return inboundError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundBadInput(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.RelayErrorBadInput,
		metadata,
	)
}

func inboundInternal(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.RelayErrorInternal,
		metadata,
	)
}

// forwardFailed hides the downstream cause from the caller; the cause is kept
// as the wrapped source for logging.
func forwardFailed(source error, metadata map[string]any) error {
	err := goerrors.New(forwardFailedMessage, goerrors.CategoryOperation).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.RelayErrorForwardFailed)
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
