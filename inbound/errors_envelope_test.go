package inbound

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
)

func TestDispatch_VerificationFailureReturnsRichError(t *testing.T) {
	dispatcher := NewDispatcher(stubInboundVerifier{err: errors.New("invalid signature")}, nil)
	handler := &stubInboundHandler{surface: core.SurfaceInteraction, result: core.InboundResult{Accepted: true, StatusCode: 200}}
	if err := dispatcher.Register(handler); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	_, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{
		ProviderID: core.ProviderDiscord,
		Surface:    core.SurfaceInteraction,
	})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryAuth {
		t.Fatalf("expected auth category, got %q", rich.Category)
	}
	if rich.TextCode != core.RelayErrorInvalidSignature {
		t.Fatalf("expected %q text code, got %q", core.RelayErrorInvalidSignature, rich.TextCode)
	}
	if rich.Code != http.StatusUnauthorized {
		t.Fatalf("expected %d code, got %d", http.StatusUnauthorized, rich.Code)
	}
}

func TestDispatch_VerifierClassificationIsPreserved(t *testing.T) {
	missing := goerrors.New("missing signature headers", goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.RelayErrorMissingSignature)
	dispatcher := NewDispatcher(stubInboundVerifier{err: missing}, nil)

	result, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{
		ProviderID: core.ProviderDiscord,
		Surface:    core.SurfaceInteraction,
	})
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", result.StatusCode)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.RelayErrorMissingSignature {
		t.Fatalf("expected missing signature envelope, got %v", err)
	}
}

func TestDispatch_HandlerFailureReturnsRichError(t *testing.T) {
	dispatcher := NewDispatcher(nil, nil)
	handler := &stubInboundHandler{surface: core.SurfaceInteraction, err: errors.New("boom")}
	if err := dispatcher.Register(handler); err != nil {
		t.Fatalf("register handler: %v", err)
	}
	_, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{
		ProviderID: core.ProviderDiscord,
		Surface:    core.SurfaceInteraction,
	})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.RelayErrorOperationFailed || rich.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected envelope %q %d", rich.TextCode, rich.Code)
	}
}
