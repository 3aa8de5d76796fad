package core

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultServiceName            = "relay"
	DefaultPort                   = 3000
	DefaultShutdownTimeoutSeconds = 10
	DefaultImageSourceURL         = "https://drive.google.com/uc?export=download&id={fid}"
	DefaultLogLevel               = "info"

	publicKeyHexLength = 64
)

type ServerConfig struct {
	Port                   int `koanf:"port" mapstructure:"port"`
	ShutdownTimeoutSeconds int `koanf:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
}

type InteractionsConfig struct {
	PublicKey string `koanf:"public_key" mapstructure:"public_key"`
	Mode      string `koanf:"mode" mapstructure:"mode"`
}

type ForwardConfig struct {
	WebhookURL string `koanf:"webhook_url" mapstructure:"webhook_url"`
}

type GatewayConfig struct {
	Token      string   `koanf:"token" mapstructure:"token"`
	ChannelIDs []string `koanf:"channel_ids" mapstructure:"channel_ids"`
}

type ImageProxyConfig struct {
	Secret    string `koanf:"secret" mapstructure:"secret"`
	SourceURL string `koanf:"source_url" mapstructure:"source_url"`
}

type LoggingConfig struct {
	Level string `koanf:"level" mapstructure:"level"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name"`
	Server       ServerConfig       `koanf:"server" mapstructure:"server"`
	Interactions InteractionsConfig `koanf:"interactions" mapstructure:"interactions"`
	Forward      ForwardConfig      `koanf:"forward" mapstructure:"forward"`
	Gateway      GatewayConfig      `koanf:"gateway" mapstructure:"gateway"`
	ImageProxy   ImageProxyConfig   `koanf:"image_proxy" mapstructure:"image_proxy"`
	Logging      LoggingConfig      `koanf:"logging" mapstructure:"logging"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: DefaultServiceName,
		Server: ServerConfig{
			Port:                   DefaultPort,
			ShutdownTimeoutSeconds: DefaultShutdownTimeoutSeconds,
		},
		Interactions: InteractionsConfig{
			Mode: string(ForwardModeAckThenForward),
		},
		ImageProxy: ImageProxyConfig{
			SourceURL: DefaultImageSourceURL,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("core: server.port %d is invalid", c.Server.Port)
	}
	if c.Server.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("core: server.shutdown_timeout_seconds must not be negative")
	}
	publicKey := strings.TrimSpace(c.Interactions.PublicKey)
	if publicKey == "" {
		return fmt.Errorf("core: interactions.public_key is required")
	}
	if len(publicKey) != publicKeyHexLength {
		return fmt.Errorf("core: interactions.public_key must be %d hex characters", publicKeyHexLength)
	}
	if _, err := hex.DecodeString(publicKey); err != nil {
		return fmt.Errorf("core: interactions.public_key is not valid hex")
	}
	if _, err := ParseForwardMode(c.Interactions.Mode); err != nil {
		return err
	}
	if target := strings.TrimSpace(c.Forward.WebhookURL); target != "" {
		if err := validateAbsoluteURL(target); err != nil {
			return fmt.Errorf("core: forward.webhook_url is invalid: %w", err)
		}
	}
	if source := strings.TrimSpace(c.ImageProxy.SourceURL); source != "" {
		if !strings.Contains(source, "{fid}") {
			return fmt.Errorf("core: image_proxy.source_url must contain the {fid} placeholder")
		}
	}
	return nil
}

// ForwardMode returns the parsed interactions mode. Validate guarantees it is
// one of the known modes.
func (c Config) ForwardMode() ForwardMode {
	mode, err := ParseForwardMode(c.Interactions.Mode)
	if err != nil {
		return ForwardModeAckThenForward
	}
	return mode
}

func (c Config) GatewayEnabled() bool {
	return strings.TrimSpace(c.Gateway.Token) != ""
}

func (c Config) ImageProxyEnabled() bool {
	return strings.TrimSpace(c.ImageProxy.Secret) != ""
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func ParseForwardMode(value string) (ForwardMode, error) {
	switch ForwardMode(strings.TrimSpace(strings.ToLower(value))) {
	case "", ForwardModeAckThenForward:
		return ForwardModeAckThenForward, nil
	case ForwardModeForwardAndWait:
		return ForwardModeForwardAndWait, nil
	case ForwardModeHandshakeOnly:
		return ForwardModeHandshakeOnly, nil
	default:
		return "", fmt.Errorf("core: interactions.mode %q is not supported", value)
	}
}

func validateAbsoluteURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme %q is not http(s)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
