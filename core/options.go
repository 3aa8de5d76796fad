package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve(DefaultServiceName, nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load builds a config from the raw loader values. Validation is left to the
// options resolver so required values may still arrive from the runtime layer.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	server := map[string]any{}
	if includeZero || cfg.Server.Port > 0 {
		server["port"] = cfg.Server.Port
	}
	if includeZero || cfg.Server.ShutdownTimeoutSeconds > 0 {
		server["shutdown_timeout_seconds"] = cfg.Server.ShutdownTimeoutSeconds
	}
	setSection(layer, "server", server)

	interactions := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Interactions.PublicKey) != "" {
		interactions["public_key"] = strings.TrimSpace(cfg.Interactions.PublicKey)
	}
	if includeZero || strings.TrimSpace(cfg.Interactions.Mode) != "" {
		interactions["mode"] = strings.TrimSpace(cfg.Interactions.Mode)
	}
	setSection(layer, "interactions", interactions)

	if includeZero || strings.TrimSpace(cfg.Forward.WebhookURL) != "" {
		layer["forward"] = map[string]any{
			"webhook_url": strings.TrimSpace(cfg.Forward.WebhookURL),
		}
	}

	gateway := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Gateway.Token) != "" {
		gateway["token"] = strings.TrimSpace(cfg.Gateway.Token)
	}
	if includeZero || len(cfg.Gateway.ChannelIDs) > 0 {
		gateway["channel_ids"] = append([]string(nil), cfg.Gateway.ChannelIDs...)
	}
	setSection(layer, "gateway", gateway)

	imageProxy := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ImageProxy.Secret) != "" {
		imageProxy["secret"] = cfg.ImageProxy.Secret
	}
	if includeZero || strings.TrimSpace(cfg.ImageProxy.SourceURL) != "" {
		imageProxy["source_url"] = strings.TrimSpace(cfg.ImageProxy.SourceURL)
	}
	setSection(layer, "image_proxy", imageProxy)

	if includeZero || strings.TrimSpace(cfg.Logging.Level) != "" {
		layer["logging"] = map[string]any{
			"level": strings.TrimSpace(cfg.Logging.Level),
		}
	}
	return layer
}

func setSection(layer map[string]any, key string, section map[string]any) {
	if len(section) == 0 {
		return
	}
	layer[key] = section
}
