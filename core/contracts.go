package core

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	ProviderDiscord = "discord"

	SurfaceInteraction = "interaction"
	SurfaceMessage     = "message"
	SurfaceResource    = "resource"
)

// Interaction types sent by the gateway. Anything that is not a ping or an
// application command is treated as "other".
const (
	InteractionTypePing               = 1
	InteractionTypeApplicationCommand = 2
)

// Response types written back to the gateway.
const (
	ResponseTypePong                             = 1
	ResponseTypeDeferredChannelMessageWithSource = 5
)

type ForwardMode string

const (
	ForwardModeAckThenForward ForwardMode = "ack_then_forward"
	ForwardModeForwardAndWait ForwardMode = "forward_and_wait"
	ForwardModeHandshakeOnly  ForwardMode = "handshake_only"
)

type InboundRequest struct {
	ProviderID string
	Surface    string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
	ReceivedAt time.Time
}

type InboundResult struct {
	Accepted    bool
	StatusCode  int
	Body        []byte
	ContentType string
	Metadata    map[string]any
	// AfterResponse runs once the response has been written to the caller.
	AfterResponse func(ctx context.Context)
}

type InteractionKind string

const (
	InteractionKindHandshake InteractionKind = "handshake"
	InteractionKindCommand   InteractionKind = "command"
	InteractionKindOther     InteractionKind = "other"
)

// Interaction keeps the raw type value so that only numeric 1 and 2 are
// special; any other value, numeric or not, is "other".
type Interaction struct {
	ID            string          `json:"id,omitempty"`
	ApplicationID string          `json:"application_id,omitempty"`
	Type          json.RawMessage `json:"type"`
	Token         string          `json:"token,omitempty"`
}

// HasType reports whether the payload carried a non-null type.
func (i Interaction) HasType() bool {
	raw := bytes.TrimSpace(i.Type)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func (i Interaction) Kind() InteractionKind {
	raw := bytes.TrimSpace(i.Type)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return InteractionKindOther
	}
	value, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return InteractionKindOther
	}
	switch value {
	case InteractionTypePing:
		return InteractionKindHandshake
	case InteractionTypeApplicationCommand:
		return InteractionKindCommand
	default:
		return InteractionKindOther
	}
}

type InteractionResponse struct {
	Type int `json:"type"`
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type InboundVerifier interface {
	Verify(ctx context.Context, req InboundRequest) error
}

type InboundHandler interface {
	Surface() string
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
