package notification

import (
	"time"

	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
)

// FromConfig 将基础设施配置转换为通知配置，缺省项取默认值
func FromConfig(infra config.NotificationConfig) *NotificationConfig {
	cfg := DefaultNotificationConfig()
	cfg.Enabled = infra.Enabled
	if infra.QueueSize > 0 {
		cfg.QueueSize = infra.QueueSize
	}
	if infra.Workers > 0 {
		cfg.Workers = infra.Workers
	}

	r := infra.Retry
	if r.MaxAttempts > 0 {
		cfg.Retry.MaxAttempts = r.MaxAttempts
	}
	cfg.Retry.InitialInterval = millis(r.InitialIntervalMs, cfg.Retry.InitialInterval)
	cfg.Retry.MaxInterval = millis(r.MaxIntervalMs, cfg.Retry.MaxInterval)
	if r.Multiplier >= 1 {
		cfg.Retry.Multiplier = r.Multiplier
	}

	for _, wh := range infra.Webhooks {
		timeout := 10 * time.Second
		if wh.TimeoutSeconds > 0 {
			timeout = time.Duration(wh.TimeoutSeconds) * time.Second
		}
		cfg.Endpoints = append(cfg.Endpoints, NotificationEndpoint{
			Name:       wh.Name,
			URL:        wh.URL,
			Headers:    wh.Headers,
			Timeout:    timeout,
			EventTypes: wh.EventTypes,
			Enabled:    wh.Enabled,
		})
	}
	return cfg
}

func millis(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
