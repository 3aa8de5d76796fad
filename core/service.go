package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrForwardTargetMissing = errors.New("core: forward target is not configured")
	ErrImageProxyDisabled   = errors.New("core: image proxy secret is not configured")
)

// Service holds the resolved configuration and the ambient dependencies shared
// by the relay components.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	observer        *Observer
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(DefaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(DefaultServiceName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		observer:        NewObserver(logger, builder.metricsRecorder),
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	cfg := s.config
	cfg.Gateway.ChannelIDs = append([]string(nil), s.config.Gateway.ChannelIDs...)
	return cfg
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorMapper:     s.errorMapper,
	}
}

// Logger returns a named child logger when a provider is available.
func (s *Service) Logger(name string) Logger {
	if s == nil {
		return glog.Nop()
	}
	name = strings.TrimSpace(name)
	if name != "" && s.loggerProvider != nil {
		if named := s.loggerProvider.GetLogger(name); named != nil {
			return glog.Ensure(named)
		}
	}
	return glog.Ensure(s.logger)
}

func (s *Service) Observer() *Observer {
	if s == nil {
		return NewObserver(nil, nil)
	}
	return s.observer
}

// MapError applies the configured error mapper.
func (s *Service) MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return MapError(err)
	}
	return s.errorMapper(err)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		mapper = MapError
	}
	mapped := mapper(err)
	if mapped == nil {
		return fmt.Errorf("core: build service: %w", err)
	}
	return mapped
}
