package httpapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
	"github.com/google/uuid"
)

const (
	PathInteractions = "/interactions"
	PathImage        = "/ig-image"
	PathHealth       = "/healthz"

	HeaderRequestID = "X-Request-Id"

	defaultMaxBodyBytes int64 = 1 << 20
	readHeaderTimeout         = 10 * time.Second
)

type InboundDispatcher interface {
	Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type Server struct {
	dispatcher   InboundDispatcher
	images       http.Handler
	observer     *core.Observer
	maxBodyBytes int64
	requestID    func() string

	mux        *http.ServeMux
	httpServer *http.Server
}

type ServerOption func(*Server)

// WithImageHandler mounts h on /ig-image. Without it the route is absent.
func WithImageHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.images = h
	}
}

func WithObserver(observer *core.Observer) ServerOption {
	return func(s *Server) {
		if observer != nil {
			s.observer = observer
		}
	}
}

func WithMaxBodyBytes(limit int64) ServerOption {
	return func(s *Server) {
		if limit > 0 {
			s.maxBodyBytes = limit
		}
	}
}

func WithRequestIDGenerator(generate func() string) ServerOption {
	return func(s *Server) {
		if generate != nil {
			s.requestID = generate
		}
	}
}

func NewServer(addr string, dispatcher InboundDispatcher, opts ...ServerOption) *Server {
	server := &Server{
		dispatcher:   dispatcher,
		observer:     core.NewObserver(nil, nil),
		maxBodyBytes: defaultMaxBodyBytes,
		requestID:    uuid.NewString,
		mux:          http.NewServeMux(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}
	server.routes()
	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           server.mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return server
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST "+PathInteractions, s.handleInteractions)
	s.mux.HandleFunc("GET "+PathHealth, handleHealth)
	if s.images != nil {
		s.mux.Handle("GET "+PathImage, s.images)
	}
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe blocks until the server stops. A graceful shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	s.observer.Log(context.Background(), "info", "http server listening", map[string]any{
		"addr":        s.httpServer.Addr,
		"image_proxy": s.images != nil,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Serve(listener net.Listener) error {
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
// Detached forwards are not tracked here.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startedAt := time.Now()
	requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
	if requestID == "" {
		requestID = s.requestID()
	}
	w.Header().Set(HeaderRequestID, requestID)
	fields := map[string]any{
		"request_id": requestID,
		"surface":    core.SurfaceInteraction,
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		readErr := goerrors.Wrap(err, goerrors.CategoryBadInput, "read request body").
			WithCode(status).
			WithTextCode(core.RelayErrorBadInput)
		s.writeError(w, readErr)
		s.observer.Observe(ctx, startedAt, "interaction_request", readErr, fields)
		return
	}

	if s.dispatcher == nil {
		notConfigured := goerrors.New("interactions are not configured", goerrors.CategoryInternal).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(core.RelayErrorNotConfigured)
		s.writeError(w, notConfigured)
		s.observer.Observe(ctx, startedAt, "interaction_request", notConfigured, fields)
		return
	}

	result, err := s.dispatcher.Dispatch(ctx, core.InboundRequest{
		ProviderID: core.ProviderDiscord,
		Surface:    core.SurfaceInteraction,
		Headers:    flattenHeaders(r.Header),
		Body:       body,
		Metadata:   map[string]any{"request_id": requestID},
		ReceivedAt: startedAt,
	})
	if err != nil {
		fields["status_code"] = s.writeError(w, err)
		s.observer.Observe(ctx, startedAt, "interaction_request", err, fields)
		return
	}

	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Body)))
	w.WriteHeader(status)
	_, _ = w.Write(result.Body)
	_ = http.NewResponseController(w).Flush()

	fields["status_code"] = status
	if deliveryID, ok := result.Metadata["delivery_id"]; ok {
		fields["delivery_id"] = deliveryID
	}
	s.observer.Observe(ctx, startedAt, "interaction_request", nil, fields)

	if result.AfterResponse != nil {
		result.AfterResponse(ctx)
	}
}

// writeError answers with the mapped status and the envelope message as
// plain text.
func (s *Server) writeError(w http.ResponseWriter, err error) int {
	mapped := core.MapError(err)
	status := http.StatusInternalServerError
	message := http.StatusText(status)
	if mapped != nil {
		if mapped.Code > 0 {
			status = mapped.Code
		}
		if text := strings.TrimSpace(mapped.Message); text != "" {
			message = text
		}
	}
	http.Error(w, message, status)
	return status
}

func flattenHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}
