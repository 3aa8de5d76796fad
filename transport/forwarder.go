package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
	"github.com/google/uuid"
)

const (
	HeaderDeliveryID = "X-Relay-Delivery-Id"
	HeaderSource     = "X-Relay-Source"
)

// ForwardResult is the raw downstream answer. Interpreting the body is left
// to the caller.
type ForwardResult struct {
	DeliveryID  string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Forwarder posts raw JSON payloads to the configured downstream webhook. A
// forward is a single attempt; no timeout applies unless one is configured.
type Forwarder struct {
	adapter    core.TransportAdapter
	targetURL  string
	source     string
	timeout    time.Duration
	observer   *core.Observer
	deliveryID func() string
}

type ForwarderOption func(*Forwarder)

func WithForwardTimeout(timeout time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

func WithForwardObserver(observer *core.Observer) ForwarderOption {
	return func(f *Forwarder) {
		if observer != nil {
			f.observer = observer
		}
	}
}

func WithForwardSource(source string) ForwarderOption {
	return func(f *Forwarder) {
		f.source = strings.TrimSpace(source)
	}
}

func WithDeliveryIDGenerator(generate func() string) ForwarderOption {
	return func(f *Forwarder) {
		if generate != nil {
			f.deliveryID = generate
		}
	}
}

func NewForwarder(adapter core.TransportAdapter, targetURL string, opts ...ForwarderOption) *Forwarder {
	if adapter == nil {
		adapter = NewRESTAdapter(&http.Client{})
	}
	forwarder := &Forwarder{
		adapter:    adapter,
		targetURL:  strings.TrimSpace(targetURL),
		observer:   core.NewObserver(nil, nil),
		deliveryID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(forwarder)
		}
	}
	return forwarder
}

func (f *Forwarder) Configured() bool {
	return f != nil && f.targetURL != ""
}

func (f *Forwarder) TargetURL() string {
	if f == nil {
		return ""
	}
	return f.targetURL
}

// Forward posts body unchanged with a JSON content type. Any HTTP status is
// returned as a result; only transport failures are errors.
func (f *Forwarder) Forward(ctx context.Context, body []byte) (ForwardResult, error) {
	if !f.Configured() {
		return ForwardResult{}, transportWrapError(
			core.ErrForwardTargetMissing,
			goerrors.CategoryInternal,
			"transport: forward target is not configured",
			http.StatusInternalServerError,
			nil,
		)
	}
	startedAt := time.Now()
	deliveryID := f.deliveryID()
	headers := map[string]string{
		"Content-Type":   "application/json",
		HeaderDeliveryID: deliveryID,
	}
	if f.source != "" {
		headers[HeaderSource] = f.source
	}

	res, err := f.adapter.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     f.targetURL,
		Headers: headers,
		Body:    body,
		Timeout: f.timeout,
	})
	fields := map[string]any{
		"delivery_id": deliveryID,
		"bytes":       len(body),
	}
	if err != nil {
		f.observer.Observe(ctx, startedAt, "forward", err, fields)
		return ForwardResult{DeliveryID: deliveryID}, err
	}
	fields["status_code"] = res.StatusCode
	f.observer.Observe(ctx, startedAt, "forward", nil, fields)

	return ForwardResult{
		DeliveryID:  deliveryID,
		StatusCode:  res.StatusCode,
		ContentType: headerValue(res.Headers, "Content-Type"),
		Body:        res.Body,
	}, nil
}

// Detach runs Forward in the background, detached from ctx cancellation.
// Failures are only logged; the handle exists for callers that want to wait.
func (f *Forwarder) Detach(ctx context.Context, name string, body []byte) *DetachedForward {
	if ctx == nil {
		ctx = context.Background()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "forward"
	}
	detached := &DetachedForward{
		name: name,
		done: make(chan struct{}),
	}
	payload := append([]byte(nil), body...)
	background := context.WithoutCancel(ctx)

	go func() {
		defer close(detached.done)
		defer func() {
			if recovered := recover(); recovered != nil {
				detached.setResult(ForwardResult{}, transportError(
					"transport: detached forward panicked",
					goerrors.CategoryInternal,
					http.StatusInternalServerError,
					map[string]any{"task": name, "panic": recovered},
				))
			}
			f.logDetached(background, detached)
		}()
		result, err := f.Forward(background, payload)
		detached.setResult(result, err)
	}()
	return detached
}

func (f *Forwarder) logDetached(ctx context.Context, detached *DetachedForward) {
	result, err := detached.Result()
	fields := map[string]any{
		"task":        detached.name,
		"delivery_id": result.DeliveryID,
	}
	switch {
	case err != nil:
		fields["error"] = err.Error()
		f.observer.Log(ctx, "error", "detached task failed", fields)
	case result.StatusCode >= http.StatusBadRequest:
		fields["status_code"] = result.StatusCode
		f.observer.Log(ctx, "warn", "detached task got error status", fields)
	default:
		fields["status_code"] = result.StatusCode
		f.observer.Log(ctx, "debug", "detached task completed", fields)
	}
}

// DetachedForward is a handle to a background forward.
type DetachedForward struct {
	name   string
	done   chan struct{}
	mu     sync.Mutex
	result ForwardResult
	err    error
}

func (d *DetachedForward) Name() string {
	return d.name
}

func (d *DetachedForward) Done() <-chan struct{} {
	return d.done
}

func (d *DetachedForward) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *DetachedForward) Result() (ForwardResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result, d.err
}

func (d *DetachedForward) setResult(result ForwardResult, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = result
	d.err = err
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
