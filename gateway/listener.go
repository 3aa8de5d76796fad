package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/command"
	"github.com/goliatone/go-relay/core"
)

// Session is the subset of *discordgo.Session the listener drives.
type Session interface {
	AddHandler(handler any) func()
	Open() error
	Close() error
}

// DispatchFunc hands a forward command to whatever executes it.
type DispatchFunc func(ctx context.Context, msg command.ForwardEventMessage) error

// NewDiscordSession creates a bot session subscribed to guild messages and
// their content.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, gatewayError(
			"gateway: bot token is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			core.RelayErrorNotConfigured,
			nil,
		)
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, gatewayWrapError(
			err,
			goerrors.CategoryInternal,
			"gateway: create session",
			http.StatusInternalServerError,
			core.RelayErrorInternal,
			nil,
		)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	return session, nil
}

type Listener struct {
	session    Session
	dispatch   DispatchFunc
	channelIDs []string
	channels   map[string]struct{}
	targetURL  string
	observer   *core.Observer
	now        func() time.Time

	mu       sync.RWMutex
	ctx      context.Context
	selfID   string
	removers []func()
	started  bool
}

type ListenerOption func(*Listener)

// WithChannelIDs restricts mirroring to the given channels. An empty list
// mirrors every channel.
func WithChannelIDs(ids []string) ListenerOption {
	return func(l *Listener) {
		l.channelIDs = core.SplitList(strings.Join(ids, ","))
	}
}

// WithTargetURL records the downstream the dispatch forwards to. Without it
// messages are only logged.
func WithTargetURL(targetURL string) ListenerOption {
	return func(l *Listener) {
		l.targetURL = strings.TrimSpace(targetURL)
	}
}

func WithObserver(observer *core.Observer) ListenerOption {
	return func(l *Listener) {
		if observer != nil {
			l.observer = observer
		}
	}
}

func WithClock(now func() time.Time) ListenerOption {
	return func(l *Listener) {
		if now != nil {
			l.now = now
		}
	}
}

func NewListener(session Session, dispatch DispatchFunc, opts ...ListenerOption) *Listener {
	listener := &Listener{
		session:  session,
		dispatch: dispatch,
		observer: core.NewObserver(nil, nil),
		now:      time.Now,
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(listener)
		}
	}
	listener.channels = make(map[string]struct{}, len(listener.channelIDs))
	for _, id := range listener.channelIDs {
		listener.channels[id] = struct{}{}
	}
	return listener
}

func (l *Listener) ChannelIDs() []string {
	return append([]string(nil), l.channelIDs...)
}

// Allowed reports whether messages from channelID are mirrored.
func (l *Listener) Allowed(channelID string) bool {
	if len(l.channels) == 0 {
		return true
	}
	_, ok := l.channels[strings.TrimSpace(channelID)]
	return ok
}

func (l *Listener) Start(ctx context.Context) error {
	if l == nil || l.session == nil {
		return gatewayError(
			"gateway: session is required",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			core.RelayErrorNotConfigured,
			nil,
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return gatewayError(
			"gateway: listener already started",
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.RelayErrorOperationFailed,
			nil,
		)
	}
	l.ctx = ctx
	l.removers = append(l.removers,
		l.session.AddHandler(l.onReady),
		l.session.AddHandler(l.onMessageCreate),
	)
	l.started = true
	l.mu.Unlock()

	if err := l.session.Open(); err != nil {
		l.removeHandlers()
		return gatewayWrapError(
			err,
			goerrors.CategoryExternal,
			"gateway: open session",
			http.StatusBadGateway,
			core.RelayErrorExternalFailure,
			nil,
		)
	}
	return nil
}

func (l *Listener) Close() error {
	if l == nil || l.session == nil {
		return nil
	}
	if !l.removeHandlers() {
		return nil
	}
	if err := l.session.Close(); err != nil {
		return gatewayWrapError(
			err,
			goerrors.CategoryExternal,
			"gateway: close session",
			http.StatusBadGateway,
			core.RelayErrorExternalFailure,
			nil,
		)
	}
	return nil
}

func (l *Listener) removeHandlers() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return false
	}
	for _, remove := range l.removers {
		if remove != nil {
			remove()
		}
	}
	l.removers = nil
	l.started = false
	return true
}

func (l *Listener) onReady(_ *discordgo.Session, ready *discordgo.Ready) {
	fields := map[string]any{
		"channel_ids": "all",
	}
	if len(l.channelIDs) > 0 {
		fields["channel_ids"] = strings.Join(l.channelIDs, ",")
	}
	if ready != nil && ready.User != nil {
		l.mu.Lock()
		l.selfID = ready.User.ID
		l.mu.Unlock()
		fields["bot_id"] = ready.User.ID
		fields["bot_username"] = ready.User.Username
	}
	l.observer.Log(l.context(), "info", "gateway session ready", fields)
}

func (l *Listener) onMessageCreate(_ *discordgo.Session, event *discordgo.MessageCreate) {
	if event == nil {
		return
	}
	ctx := l.context()
	if err := l.HandleMessage(ctx, event.Message); err != nil {
		l.observer.Log(ctx, "error", "gateway message handler failed", map[string]any{
			"error": err.Error(),
		})
	}
}

// HandleMessage filters msg and forwards its envelope. Panics raised while
// forwarding are converted into errors.
func (l *Listener) HandleMessage(ctx context.Context, msg *discordgo.Message) (err error) {
	if msg == nil {
		return gatewayError(
			"gateway: message is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			core.RelayErrorBadInput,
			nil,
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	fields := map[string]any{
		"provider_id": core.ProviderDiscord,
		"surface":     core.SurfaceMessage,
		"channel_id":  msg.ChannelID,
		"message_id":  msg.ID,
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = gatewayError(
				fmt.Sprintf("gateway: message handler panicked: %v", recovered),
				goerrors.CategoryInternal,
				http.StatusInternalServerError,
				core.RelayErrorInternal,
				fields,
			)
		}
	}()

	if !l.Allowed(msg.ChannelID) {
		return nil
	}
	if msg.Author != nil && msg.Author.ID != "" && msg.Author.ID == l.self() {
		return nil
	}

	startedAt := l.now()
	payload, err := json.Marshal(NewEnvelope(msg, startedAt))
	if err != nil {
		return gatewayWrapError(
			err,
			goerrors.CategoryInternal,
			"gateway: encode envelope",
			http.StatusInternalServerError,
			core.RelayErrorInternal,
			fields,
		)
	}
	if l.targetURL == "" || l.dispatch == nil {
		fields["bytes"] = len(payload)
		l.observer.Log(ctx, "info", "forward target not configured, message logged only", fields)
		return nil
	}

	err = l.dispatch(ctx, command.ForwardEventMessage{
		Event:     EventMessageCreate,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		Payload:   payload,
	})
	l.observer.Observe(ctx, startedAt, "gateway_forward", err, fields)
	return err
}

func (l *Listener) context() context.Context {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ctx
}

func (l *Listener) self() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selfID
}
