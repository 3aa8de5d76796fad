package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	EnvPublicKey              = "DISCORD_PUBLIC_KEY"
	EnvInteractionsMode       = "INTERACTIONS_MODE"
	EnvWebhookURL             = "N8N_WEBHOOK_URL"
	EnvBotToken               = "DISCORD_BOT_TOKEN"
	EnvChannelIDs             = "DISCORD_CHANNEL_IDS"
	EnvPort                   = "PORT"
	EnvShutdownTimeoutSeconds = "SHUTDOWN_TIMEOUT_SECONDS"
	EnvImageProxySecret       = "IMAGE_PROXY_SECRET"
	EnvImageProxySourceURL    = "IMAGE_PROXY_SOURCE_URL"
	EnvLogLevel               = "LOG_LEVEL"
)

// EnvConfigLoader maps process environment variables onto the raw config
// layout consumed by CfgxConfigProvider. Unset variables are omitted so the
// defaults layer keeps its values.
type EnvConfigLoader struct {
	Lookup func(key string) (string, bool)
}

func NewEnvConfigLoader() *EnvConfigLoader {
	return &EnvConfigLoader{Lookup: os.LookupEnv}
}

func (l *EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}

	server := map[string]any{}
	if value, ok := l.lookup(EnvPort); ok {
		port, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("core: %s must be an integer: %w", EnvPort, err)
		}
		server["port"] = port
	}
	if value, ok := l.lookup(EnvShutdownTimeoutSeconds); ok {
		seconds, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("core: %s must be an integer: %w", EnvShutdownTimeoutSeconds, err)
		}
		server["shutdown_timeout_seconds"] = seconds
	}
	setSection(raw, "server", server)

	interactions := map[string]any{}
	if value, ok := l.lookup(EnvPublicKey); ok {
		interactions["public_key"] = value
	}
	if value, ok := l.lookup(EnvInteractionsMode); ok {
		interactions["mode"] = value
	}
	setSection(raw, "interactions", interactions)

	if value, ok := l.lookup(EnvWebhookURL); ok {
		raw["forward"] = map[string]any{"webhook_url": value}
	}

	gateway := map[string]any{}
	if value, ok := l.lookup(EnvBotToken); ok {
		gateway["token"] = value
	}
	if value, ok := l.lookup(EnvChannelIDs); ok {
		gateway["channel_ids"] = SplitList(value)
	}
	setSection(raw, "gateway", gateway)

	imageProxy := map[string]any{}
	if value, ok := l.lookup(EnvImageProxySecret); ok {
		imageProxy["secret"] = value
	}
	if value, ok := l.lookup(EnvImageProxySourceURL); ok {
		imageProxy["source_url"] = value
	}
	setSection(raw, "image_proxy", imageProxy)

	if value, ok := l.lookup(EnvLogLevel); ok {
		raw["logging"] = map[string]any{"level": value}
	}
	return raw, nil
}

func (l *EnvConfigLoader) lookup(key string) (string, bool) {
	lookup := os.LookupEnv
	if l != nil && l.Lookup != nil {
		lookup = l.Lookup
	}
	value, ok := lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// SplitList splits a comma separated value, dropping blanks and duplicates.
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, exists := seen[part]; exists {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
