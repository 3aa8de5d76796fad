package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/auth"
	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/transport"
)

const (
	PlaceholderResourceID = "{fid}"
	ContentTypeImage      = "image/jpeg"

	forbiddenMessage = "invalid or expired link"
)

type Streamer interface {
	Stream(ctx context.Context, req core.TransportRequest) (*transport.StreamResponse, error)
}

type LinkVerifier interface {
	VerifyLink(link auth.SignedLink) bool
}

// ImageHandler streams the resource named by a signed link. Responses are
// never cached.
type ImageHandler struct {
	verifier  LinkVerifier
	streamer  Streamer
	sourceURL string
	observer  *core.Observer
}

type ImageHandlerOption func(*ImageHandler)

func WithSourceURL(template string) ImageHandlerOption {
	return func(h *ImageHandler) {
		if template = strings.TrimSpace(template); template != "" {
			h.sourceURL = template
		}
	}
}

func WithStreamer(streamer Streamer) ImageHandlerOption {
	return func(h *ImageHandler) {
		if streamer != nil {
			h.streamer = streamer
		}
	}
}

func WithObserver(observer *core.Observer) ImageHandlerOption {
	return func(h *ImageHandler) {
		if observer != nil {
			h.observer = observer
		}
	}
}

func NewImageHandler(verifier LinkVerifier, opts ...ImageHandlerOption) *ImageHandler {
	handler := &ImageHandler{
		verifier:  verifier,
		streamer:  transport.NewRESTAdapter(nil),
		sourceURL: core.DefaultImageSourceURL,
		observer:  core.NewObserver(nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

// SourceURL expands the download template for resourceID.
func (h *ImageHandler) SourceURL(resourceID string) string {
	return strings.ReplaceAll(h.sourceURL, PlaceholderResourceID, url.QueryEscape(resourceID))
}

func (h *ImageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	startedAt := time.Now()
	link := auth.ParseSignedLink(r.URL.Query())
	fields := map[string]any{
		"surface": core.SurfaceResource,
		"fid":     link.ResourceID,
	}

	if h.verifier == nil || !h.verifier.VerifyLink(link) {
		err := proxyError(forbiddenMessage, goerrors.CategoryAuthz, http.StatusForbidden, core.RelayErrorInvalidSignedLink, fields)
		h.observer.Observe(ctx, startedAt, "image_proxy", err, fields)
		http.Error(w, forbiddenMessage, http.StatusForbidden)
		return
	}

	upstream, err := h.streamer.Stream(ctx, core.TransportRequest{
		Method: http.MethodGet,
		URL:    h.SourceURL(link.ResourceID),
	})
	if err != nil {
		h.observer.Observe(ctx, startedAt, "image_proxy", err, fields)
		http.Error(w, errorText(err), http.StatusInternalServerError)
		return
	}
	defer upstream.Body.Close()

	fields["upstream_status"] = upstream.StatusCode
	if upstream.StatusCode < http.StatusOK || upstream.StatusCode >= http.StatusMultipleChoices {
		message := fmt.Sprintf("upstream fetch failed: %d", upstream.StatusCode)
		err := proxyError(message, goerrors.CategoryExternal, http.StatusBadGateway, core.RelayErrorUpstreamFailed, fields)
		h.observer.Observe(ctx, startedAt, "image_proxy", err, fields)
		http.Error(w, message, http.StatusBadGateway)
		return
	}

	header := w.Header()
	header.Set("Content-Type", ContentTypeImage)
	header.Set("Cache-Control", "no-store")
	if upstream.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(upstream.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		h.observer.Observe(ctx, startedAt, "image_proxy", nil, fields)
		return
	}

	written, copyErr := io.Copy(w, upstream.Body)
	fields["bytes"] = written
	if copyErr != nil {
		copyErr = proxyWrapError(copyErr, goerrors.CategoryExternal, "proxy: stream interrupted", http.StatusBadGateway, core.RelayErrorUpstreamFailed, fields)
	}
	h.observer.Observe(ctx, startedAt, "image_proxy", copyErr, fields)
}

// errorText renders err with its cause for the 500 body.
func errorText(err error) string {
	mapped := core.MapError(err)
	if mapped == nil {
		return http.StatusText(http.StatusInternalServerError)
	}
	text := strings.TrimSpace(mapped.Message)
	if mapped.Source != nil {
		if cause := strings.TrimSpace(mapped.Source.Error()); cause != "" && cause != text {
			text += ": " + cause
		}
	}
	if text == "" {
		text = http.StatusText(http.StatusInternalServerError)
	}
	return text
}

func proxyError(message string, category goerrors.Category, code int, textCode string, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func proxyWrapError(source error, category goerrors.Category, message string, code int, textCode string, metadata map[string]any) error {
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
