package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RelayErrorBadInput           = "RELAY_BAD_INPUT"
	RelayErrorMissingSignature   = "RELAY_MISSING_SIGNATURE"
	RelayErrorInvalidSignature   = "RELAY_INVALID_SIGNATURE"
	RelayErrorInvalidSignedLink  = "RELAY_INVALID_SIGNED_LINK"
	RelayErrorForwardFailed      = "RELAY_FORWARD_FAILED"
	RelayErrorUpstreamFailed     = "RELAY_UPSTREAM_FAILED"
	RelayErrorExternalFailure    = "RELAY_EXTERNAL_FAILURE"
	RelayErrorNotConfigured      = "RELAY_NOT_CONFIGURED"
	RelayErrorUnauthorized       = "RELAY_UNAUTHORIZED"
	RelayErrorForbidden          = "RELAY_FORBIDDEN"
	RelayErrorOperationFailed    = "RELAY_OPERATION_FAILED"
	RelayErrorInternal           = "RELAY_INTERNAL_ERROR"
	RelayErrorUnsupportedPayload = "RELAY_UNSUPPORTED_PAYLOAD"
)

// MapError converts any error into a go-errors envelope carrying an HTTP
// status code and a stable RELAY_* text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureRelayErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature") && strings.Contains(msg, "missing"):
		return newRelayError(err.Error(), goerrors.CategoryBadInput, RelayErrorMissingSignature)
	case strings.Contains(msg, "signature"):
		return newRelayError(err.Error(), goerrors.CategoryAuth, RelayErrorInvalidSignature)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newRelayError(err.Error(), goerrors.CategoryBadInput, RelayErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureRelayErrorEnvelope(mapped)
}

// HTTPStatus resolves the status code carried by err, defaulting to 500.
func HTTPStatus(err error) int {
	mapped := MapError(err)
	if mapped == nil {
		return http.StatusOK
	}
	return mapped.Code
}

func newRelayError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureRelayErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureRelayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = relayHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultRelayTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultRelayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return RelayErrorBadInput
	case goerrors.CategoryAuth:
		return RelayErrorUnauthorized
	case goerrors.CategoryAuthz:
		return RelayErrorForbidden
	case goerrors.CategoryOperation:
		return RelayErrorOperationFailed
	case goerrors.CategoryExternal:
		return RelayErrorExternalFailure
	default:
		return RelayErrorInternal
	}
}

func relayHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
