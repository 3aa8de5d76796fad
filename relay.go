package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goliatone/go-relay/adapters/gocommand"
	"github.com/goliatone/go-relay/auth"
	"github.com/goliatone/go-relay/command"
	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/gateway"
	"github.com/goliatone/go-relay/httpapi"
	"github.com/goliatone/go-relay/inbound"
	"github.com/goliatone/go-relay/proxy"
	"github.com/goliatone/go-relay/transport"
	"github.com/goliatone/go-relay/webhooks"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// SessionFactory opens the gateway session for a bot token.
type SessionFactory func(token string) (gateway.Session, error)

// App is a fully wired relay process.
type App struct {
	Service    *core.Service
	Dispatcher *inbound.Dispatcher
	Forwarder  *transport.Forwarder
	Server     *httpapi.Server
	Images     *proxy.ImageHandler
	Listener   *gateway.Listener
	Bus        *gocommand.Bus

	links *auth.SignedLinkAuthenticator
}

type AppOption func(*appOptions)

type appOptions struct {
	httpClient     transport.HTTPDoer
	sessionFactory SessionFactory
	dispatch       gateway.DispatchFunc
	addr           string
}

// WithHTTPClient sets the client used for downstream forwards and image
// fetches.
func WithHTTPClient(client transport.HTTPDoer) AppOption {
	return func(o *appOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func WithSessionFactory(factory SessionFactory) AppOption {
	return func(o *appOptions) {
		if factory != nil {
			o.sessionFactory = factory
		}
	}
}

// WithGatewayDispatch replaces the command bus dispatch used by the gateway
// listener.
func WithGatewayDispatch(dispatch gateway.DispatchFunc) AppOption {
	return func(o *appOptions) {
		if dispatch != nil {
			o.dispatch = dispatch
		}
	}
}

func WithListenAddr(addr string) AppOption {
	return func(o *appOptions) {
		if addr != "" {
			o.addr = addr
		}
	}
}

// Setup resolves configuration and wires the relay.
func Setup(ctx context.Context, runtime Config, opts ...Option) (*App, error) {
	return SetupWith(ctx, runtime, nil, opts...)
}

func SetupWith(ctx context.Context, runtime Config, appOpts []AppOption, opts ...Option) (*App, error) {
	service, err := core.NewService(runtime, opts...)
	if err != nil {
		return nil, err
	}
	return NewApp(ctx, service, appOpts...)
}

func NewApp(_ context.Context, service *core.Service, opts ...AppOption) (*App, error) {
	if service == nil {
		return nil, fmt.Errorf("relay: service is required")
	}
	cfg := service.Config()
	metrics := service.Dependencies().MetricsRecorder
	options := appOptions{
		httpClient:     &http.Client{},
		sessionFactory: discordSession,
		dispatch:       gateway.DispatchFunc(gocommand.ValidatedDispatch[command.ForwardEventMessage]),
		addr:           cfg.ListenAddr(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	observer := func(name string) *core.Observer {
		return core.NewObserver(service.Logger(name), metrics)
	}

	app := &App{Service: service}
	app.Forwarder = transport.NewForwarder(
		transport.NewRESTAdapter(options.httpClient),
		cfg.Forward.WebhookURL,
		transport.WithForwardSource(cfg.ServiceName),
		transport.WithForwardObserver(observer("transport")),
	)

	template, err := webhooks.NewDiscordInteractionTemplate(cfg.Interactions.PublicKey)
	if err != nil {
		return nil, err
	}
	app.Dispatcher = inbound.NewDispatcher(template.Verifier, inbound.DeliveryIDExtractor(template.Extractor))
	if err := app.Dispatcher.Register(inbound.NewInteractionHandler(
		cfg.ForwardMode(),
		app.Forwarder,
		observer("inbound"),
	)); err != nil {
		return nil, err
	}

	serverOpts := []httpapi.ServerOption{httpapi.WithObserver(observer("httpapi"))}
	if cfg.ImageProxyEnabled() {
		app.links, err = auth.NewSignedLinkAuthenticator(cfg.ImageProxy.Secret)
		if err != nil {
			return nil, err
		}
		app.Images = proxy.NewImageHandler(app.links,
			proxy.WithSourceURL(cfg.ImageProxy.SourceURL),
			proxy.WithStreamer(transport.NewRESTAdapter(options.httpClient)),
			proxy.WithObserver(observer("proxy")),
		)
		serverOpts = append(serverOpts, httpapi.WithImageHandler(app.Images))
	}
	app.Server = httpapi.NewServer(options.addr, app.Dispatcher, serverOpts...)

	if cfg.GatewayEnabled() {
		app.Bus = gocommand.NewBus(nil)
		if err := gocommand.Register[command.ForwardEventMessage](app.Bus, command.NewForwardEventCommand(app.Forwarder)); err != nil {
			return nil, err
		}
		if err := app.Bus.Adapter().Initialize(); err != nil {
			app.Bus.Close()
			return nil, err
		}
		session, err := options.sessionFactory(cfg.Gateway.Token)
		if err != nil {
			app.Bus.Close()
			return nil, err
		}
		app.Listener = gateway.NewListener(session, options.dispatch,
			gateway.WithChannelIDs(cfg.Gateway.ChannelIDs),
			gateway.WithTargetURL(app.Forwarder.TargetURL()),
			gateway.WithObserver(observer("gateway")),
		)
	}
	return app, nil
}

func discordSession(token string) (gateway.Session, error) {
	session, err := gateway.NewDiscordSession(token)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SignImageLink mints fid/exp/sig query values for the image proxy.
func (a *App) SignImageLink(resourceID string, ttl time.Duration) (url.Values, error) {
	if a == nil || a.links == nil {
		return nil, core.ErrImageProxyDisabled
	}
	return a.links.SignedQuery(resourceID, ttl), nil
}

// Start opens the gateway session when one is configured.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.Listener == nil {
		return nil
	}
	return a.Listener.Start(ctx)
}

// Run serves HTTP until ctx is cancelled or the server fails, then shuts
// down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.Server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		closeErr := a.closeBackground()
		return errors.Join(err, closeErr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops the HTTP server and closes the gateway session. Detached
// forwards still in flight are not awaited.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var serverErr error
	if a.Server != nil {
		serverErr = a.Server.Shutdown(ctx)
	}
	return errors.Join(serverErr, a.closeBackground())
}

func (a *App) closeBackground() error {
	var err error
	if a.Listener != nil {
		err = a.Listener.Close()
	}
	if a.Bus != nil {
		a.Bus.Close()
	}
	return err
}

func (a *App) shutdownTimeout() time.Duration {
	seconds := a.Service.Config().Server.ShutdownTimeoutSeconds
	if seconds <= 0 {
		seconds = core.DefaultShutdownTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}
