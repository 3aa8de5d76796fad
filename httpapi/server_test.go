package httpapi

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/inbound"
	"github.com/goliatone/go-relay/transport"
	"github.com/goliatone/go-relay/webhooks"
)

type signer struct {
	publicKeyHex string
	privateKey   ed25519.PrivateKey
}

func newSigner(t *testing.T) signer {
	t.Helper()
	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return signer{publicKeyHex: hex.EncodeToString(publicKey), privateKey: privateKey}
}

func (s signer) request(t *testing.T, url string, body string) *http.Request {
	t.Helper()
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := ed25519.Sign(s.privateKey, append([]byte(timestamp), body...))
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(webhooks.HeaderSignature, hex.EncodeToString(signature))
	req.Header.Set(webhooks.HeaderTimestamp, timestamp)
	return req
}

func newInteractionServer(t *testing.T, s signer, mode core.ForwardMode, target string, opts ...ServerOption) *httptest.Server {
	t.Helper()
	template, err := webhooks.NewDiscordInteractionTemplate(s.publicKeyHex)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	dispatcher := inbound.NewDispatcher(template.Verifier, inbound.DeliveryIDExtractor(template.Extractor))
	forwarder := transport.NewForwarder(transport.NewRESTAdapter(&http.Client{}), target)
	if err := dispatcher.Register(inbound.NewInteractionHandler(mode, forwarder, nil)); err != nil {
		t.Fatalf("register handler: %v", err)
	}
	server := httptest.NewServer(NewServer(":0", dispatcher, opts...).Handler())
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, req *http.Request) (int, string) {
	t.Helper()
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res.StatusCode, strings.TrimSpace(string(body))
}

func TestInteractions_AckIsSentBeforeForwardCompletes(t *testing.T) {
	release := make(chan struct{})
	received := make(chan []byte, 1)
	var completed atomic.Bool
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		<-release
		completed.Store(true)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(downstream.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	s := newSigner(t)
	server := newInteractionServer(t, s, core.ForwardModeAckThenForward, downstream.URL)
	payload := `{"id":"i-1","type":2,"data":{"name":"ping"}}`

	startedAt := time.Now()
	status, body := doRequest(t, s.request(t, server.URL+PathInteractions, payload))
	elapsed := time.Since(startedAt)

	if status != http.StatusOK || body != `{"type":5}` {
		t.Fatalf("expected deferred ack, got %d %q", status, body)
	}
	if completed.Load() {
		t.Fatalf("expected ack before the downstream completed")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("expected ack latency independent of downstream, took %s", elapsed)
	}

	select {
	case forwarded := <-received:
		if !bytes.Equal(forwarded, []byte(payload)) {
			t.Fatalf("expected raw body forwarded, got %q", forwarded)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected detached forward to reach downstream")
	}
	close(release)
}

func TestInteractions_PingAnsweredWithoutForward(t *testing.T) {
	var hits atomic.Int32
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(downstream.Close)

	s := newSigner(t)
	server := newInteractionServer(t, s, core.ForwardModeAckThenForward, downstream.URL)

	status, body := doRequest(t, s.request(t, server.URL+PathInteractions, `{"type":1}`))
	if status != http.StatusOK || body != `{"type":1}` {
		t.Fatalf("expected pong, got %d %q", status, body)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected zero forwards for ping")
	}
}

func TestInteractions_SignatureFailures(t *testing.T) {
	s := newSigner(t)
	server := newInteractionServer(t, s, core.ForwardModeAckThenForward, "")

	req, _ := http.NewRequest(http.MethodPost, server.URL+PathInteractions, strings.NewReader(`{"type":1}`))
	status, body := doRequest(t, req)
	if status != http.StatusBadRequest || body != "missing signature headers" {
		t.Fatalf("expected 400 missing headers, got %d %q", status, body)
	}

	tampered := s.request(t, server.URL+PathInteractions, `{"type":1}`)
	tampered.Header.Set(webhooks.HeaderTimestamp, "1")
	status, body = doRequest(t, tampered)
	if status != http.StatusUnauthorized || body != "invalid request signature" {
		t.Fatalf("expected 401 invalid signature, got %d %q", status, body)
	}
}

func TestInteractions_ForwardAndWaitRelaysDownstream(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"type":4,"data":{"content":"done"}}`)
	}))
	t.Cleanup(downstream.Close)

	s := newSigner(t)
	server := newInteractionServer(t, s, core.ForwardModeForwardAndWait, downstream.URL)

	status, body := doRequest(t, s.request(t, server.URL+PathInteractions, `{"type":2}`))
	if status != http.StatusAccepted || body != `{"type":4,"data":{"content":"done"}}` {
		t.Fatalf("expected relayed downstream answer, got %d %q", status, body)
	}
}

func TestInteractions_ForwardAndWaitFailure(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	t.Cleanup(downstream.Close)

	s := newSigner(t)
	server := newInteractionServer(t, s, core.ForwardModeForwardAndWait, downstream.URL)

	status, body := doRequest(t, s.request(t, server.URL+PathInteractions, `{"type":2}`))
	if status != http.StatusInternalServerError || body != "forward failed" {
		t.Fatalf("expected 500 forward failed, got %d %q", status, body)
	}
}

func TestInteractions_RequestIDEchoed(t *testing.T) {
	s := newSigner(t)
	template, err := webhooks.NewDiscordInteractionTemplate(s.publicKeyHex)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	dispatcher := inbound.NewDispatcher(template.Verifier, nil)
	if err := dispatcher.Register(inbound.NewInteractionHandler(core.ForwardModeHandshakeOnly, nil, nil)); err != nil {
		t.Fatalf("register: %v", err)
	}
	handler := NewServer(":0", dispatcher, WithRequestIDGenerator(func() string { return "req-1" })).Handler()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, s.request(t, "/interactions", `{"type":2}`))
	if recorder.Code != http.StatusOK || strings.TrimSpace(recorder.Body.String()) != `{"type":5}` {
		t.Fatalf("expected deferred ack, got %d %q", recorder.Code, recorder.Body.String())
	}
	if got := recorder.Header().Get(HeaderRequestID); got != "req-1" {
		t.Fatalf("expected generated request id, got %q", got)
	}
}

func TestInteractions_BodyLimit(t *testing.T) {
	s := newSigner(t)
	server := newInteractionServer(t, s, core.ForwardModeHandshakeOnly, "", WithMaxBodyBytes(8))

	status, _ := doRequest(t, s.request(t, server.URL+PathInteractions, `{"type":1,"padding":"xxxxxxxx"}`))
	if status != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", status)
	}
}

func TestHealthAndOptionalImageRoute(t *testing.T) {
	plain := NewServer(":0", nil).Handler()

	recorder := httptest.NewRecorder()
	plain.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, PathHealth, nil))
	if recorder.Code != http.StatusOK || recorder.Body.String() != "ok" {
		t.Fatalf("expected 200 ok, got %d %q", recorder.Code, recorder.Body.String())
	}

	recorder = httptest.NewRecorder()
	plain.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, PathImage, nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected image route to be absent, got %d", recorder.Code)
	}

	var imageHits atomic.Int32
	withImages := NewServer(":0", nil, WithImageHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		imageHits.Add(1)
	}))).Handler()
	recorder = httptest.NewRecorder()
	withImages.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, PathImage+"?fid=x", nil))
	if imageHits.Load() != 1 {
		t.Fatalf("expected image handler to be mounted")
	}
}

func TestInteractions_NoDispatcher(t *testing.T) {
	recorder := httptest.NewRecorder()
	NewServer(":0", nil).Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, PathInteractions, strings.NewReader("{}")))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", recorder.Code)
	}
}
