package inbound

import (
	"context"
	"sync"

	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/transport"
)

type stubInboundVerifier struct {
	err error
}

func (s stubInboundVerifier) Verify(context.Context, core.InboundRequest) error {
	return s.err
}

type stubInboundHandler struct {
	surface string
	result  core.InboundResult
	err     error
	calls   int
	last    core.InboundRequest
}

func (s *stubInboundHandler) Surface() string {
	return s.surface
}

func (s *stubInboundHandler) Handle(_ context.Context, req core.InboundRequest) (core.InboundResult, error) {
	s.calls++
	s.last = req
	return s.result, s.err
}

// stubAdapter records downstream calls and answers with a fixed response.
type stubAdapter struct {
	mu       sync.Mutex
	calls    []core.TransportRequest
	response core.TransportResponse
	err      error
	called   chan struct{}
	release  chan struct{}
}

func newStubAdapter(response core.TransportResponse, err error) *stubAdapter {
	return &stubAdapter{
		response: response,
		err:      err,
		called:   make(chan struct{}, 8),
	}
}

func (*stubAdapter) Kind() string {
	return "stub"
}

func (s *stubAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return core.TransportResponse{}, ctx.Err()
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	s.called <- struct{}{}
	return s.response, s.err
}

func (s *stubAdapter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubAdapter) lastCall() core.TransportRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func newTestForwarder(adapter core.TransportAdapter, target string) *transport.Forwarder {
	return transport.NewForwarder(adapter, target)
}

func jsonResponse(status int, body string) core.TransportResponse {
	return core.TransportResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(body),
	}
}
