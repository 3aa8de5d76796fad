package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-relay/auth"
	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/transport"
)

var fixedNow = time.Unix(1_800_000_000, 0)

func newAuthenticator(t *testing.T) *auth.SignedLinkAuthenticator {
	t.Helper()
	authenticator, err := auth.NewSignedLinkAuthenticator("proxy-secret", auth.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	return authenticator
}

func newUpstream(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *transport.RESTAdapter) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, transport.NewRESTAdapter(server.Client())
}

func serve(handler http.Handler, target string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
	return recorder
}

func TestImageHandler_StreamsBytesUnmodified(t *testing.T) {
	payload := bytes.Repeat([]byte{0xff, 0xd8, 0x00, 0x10, 'J', 'F', 'I', 'F'}, 4096)
	var requestedID string
	server, adapter := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		requestedID = r.URL.Query().Get("id")
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(payload)
	})
	authenticator := newAuthenticator(t)
	handler := NewImageHandler(authenticator,
		WithStreamer(adapter),
		WithSourceURL(server.URL+"/uc?export=download&id={fid}"),
	)

	query := authenticator.SignedQuery("file 1", time.Minute)
	res := serve(handler, "/ig-image?"+query.Encode())

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if requestedID != "file 1" {
		t.Fatalf("expected upstream to receive resource id, got %q", requestedID)
	}
	if got := res.Header().Get("Content-Type"); got != ContentTypeImage {
		t.Fatalf("expected forced image content type, got %q", got)
	}
	if got := res.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}
	if !bytes.Equal(res.Body.Bytes(), payload) {
		t.Fatalf("expected byte-equal body, got %d bytes", res.Body.Len())
	}
	if got := res.Header().Get("Content-Length"); got != "" {
		t.Fatalf("expected no content length for a chunked upstream, got %q", got)
	}
}

func TestImageHandler_ExpiredLinkIsForbidden(t *testing.T) {
	called := false
	_, adapter := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	authenticator := newAuthenticator(t)
	handler := NewImageHandler(authenticator, WithStreamer(adapter))

	query := authenticator.SignedQuery("file", -time.Second)
	res := serve(handler, "/ig-image?"+query.Encode())
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
	if called {
		t.Fatalf("expected no upstream fetch for an expired link")
	}

	res = serve(handler, "/ig-image?fid=file&exp=abc&sig=00")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for malformed link, got %d", res.Code)
	}
}

func TestImageHandler_UpstreamFailureIsBadGateway(t *testing.T) {
	server, adapter := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	authenticator := newAuthenticator(t)
	handler := NewImageHandler(authenticator,
		WithStreamer(adapter),
		WithSourceURL(server.URL+"/{fid}"),
	)

	res := serve(handler, "/ig-image?"+authenticator.SignedQuery("file", time.Minute).Encode())
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "upstream fetch failed: 404") {
		t.Fatalf("expected upstream status in body, got %q", res.Body.String())
	}
}

type failingStreamer struct{}

func (failingStreamer) Stream(context.Context, core.TransportRequest) (*transport.StreamResponse, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestImageHandler_FetchErrorIsInternal(t *testing.T) {
	authenticator := newAuthenticator(t)
	handler := NewImageHandler(authenticator, WithStreamer(failingStreamer{}))

	res := serve(handler, "/ig-image?"+authenticator.SignedQuery("file", time.Minute).Encode())
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "connection refused") {
		t.Fatalf("expected error message in body, got %q", res.Body.String())
	}
}

func TestImageHandler_PropagatesContentLength(t *testing.T) {
	server, adapter := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		_, _ = io.WriteString(w, "abcde")
	})
	authenticator := newAuthenticator(t)
	handler := NewImageHandler(authenticator,
		WithStreamer(adapter),
		WithSourceURL(server.URL+"/{fid}"),
	)

	res := serve(handler, "/ig-image?"+authenticator.SignedQuery("file", time.Minute).Encode())
	if got := res.Header().Get("Content-Length"); got != "5" {
		t.Fatalf("expected propagated content length, got %q", got)
	}
}

func TestImageHandler_RejectsOtherMethods(t *testing.T) {
	handler := NewImageHandler(newAuthenticator(t))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/ig-image", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}
}

func TestSourceURLEscapesResourceID(t *testing.T) {
	handler := NewImageHandler(nil)
	got := handler.SourceURL("a&b")
	if got != "https://drive.google.com/uc?export=download&id=a%26b" {
		t.Fatalf("unexpected source url %q", got)
	}
}
