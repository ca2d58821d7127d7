package notification

import (
	"fmt"
	"time"
)

// NotificationEvent 通知事件
type NotificationEvent struct {
	EventID          string         `json:"event_id"`                    // 事件ID
	EventType        string         `json:"event_type"`                  // 事件类型
	VIN              string         `json:"vin"`                         // 车辆VIN
	CommandID        string         `json:"command_id,omitempty"`        // 关联的命令ID
	Owner            string         `json:"owner,omitempty"`             // 车主（仅车主通知）
	Subject          string         `json:"subject,omitempty"`           // 通知标题
	Message          string         `json:"message,omitempty"`           // 通知正文
	Timestamp        time.Time      `json:"timestamp"`                   // 时间戳
	EndpointAttempts map[string]int `json:"endpoint_attempts,omitempty"` // 每端点重试次数
}

// NotificationConfig 通知配置
type NotificationConfig struct {
	Enabled   bool                   // 是否启用
	QueueSize int                    // 队列大小
	Workers   int                    // 工作协程数
	Endpoints []NotificationEndpoint // 端点配置
	Retry     RetryConfig            // 重试配置
}

// NotificationEndpoint 通知端点
type NotificationEndpoint struct {
	Name       string            `json:"name"`        // 端点名称
	URL        string            `json:"url"`         // 端点URL
	Headers    map[string]string `json:"headers"`     // 请求头
	Timeout    time.Duration     `json:"timeout"`     // 超时时间
	EventTypes []string          `json:"event_types"` // 订阅的事件类型，为空表示全部
	Enabled    bool              `json:"enabled"`     // 是否启用
}

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts     int           // 最大重试次数
	InitialInterval time.Duration // 初始重试间隔
	MaxInterval     time.Duration // 最大重试间隔
	Multiplier      float64       // 重试间隔倍数
}

// NotificationStats 通知统计
type NotificationStats struct {
	TotalSent      int64                     `json:"total_sent"`      // 总发送数
	TotalSuccess   int64                     `json:"total_success"`   // 总成功数
	TotalFailed    int64                     `json:"total_failed"`    // 总失败数
	TotalRetried   int64                     `json:"total_retried"`   // 总重试数
	TotalPublished int64                     `json:"total_published"` // 发布到消息队列的事件数
	TotalDropped   int64                     `json:"total_dropped"`   // 队列满丢弃数
	LastUpdateTime time.Time                 `json:"last_update_time"`
	EndpointStats  map[string]*EndpointStats `json:"endpoint_stats"` // 端点统计
}

// EndpointStats 端点统计
type EndpointStats struct {
	Name         string    `json:"name"`
	TotalSent    int64     `json:"total_sent"`
	TotalSuccess int64     `json:"total_success"`
	TotalFailed  int64     `json:"total_failed"`
	LastSuccess  time.Time `json:"last_success"`
	LastFailure  time.Time `json:"last_failure"`
}

// 事件类型常量
const (
	EventTypeChargeStart      = "charge_start"       // 开始充电
	EventTypeChargeStop       = "charge_stop"        // 充电结束
	EventTypeCableReminder    = "cable_reminder"     // 未插充电枪提醒
	EventTypeACResult         = "ac_result"          // 空调命令结果
	EventTypeRemoteStopResult = "remote_stop_result" // 远程停止结果
	EventTypeChargeResult     = "charge_result"      // 充电命令结果
	EventTypeCommandTimeout   = "command_timeout"    // 命令超时
	EventTypeOwnerNotify      = "owner_notify"       // 车主通知
)

// DefaultNotificationConfig 默认通知配置
func DefaultNotificationConfig() *NotificationConfig {
	return &NotificationConfig{
		Enabled:   false,
		QueueSize: 1024,
		Workers:   4,
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			Multiplier:      2.0,
		},
	}
}

// Validate 验证配置
func (c *NotificationConfig) Validate() error {
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue_size必须大于0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers必须大于0")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier不能小于1")
	}
	for _, ep := range c.Endpoints {
		if ep.Name == "" || ep.URL == "" {
			return fmt.Errorf("端点名称和URL不能为空")
		}
	}
	return nil
}

// GetEndpointsByEvent 获取订阅指定事件类型的已启用端点
func (c *NotificationConfig) GetEndpointsByEvent(eventType string) []NotificationEndpoint {
	var out []NotificationEndpoint
	for _, ep := range c.Endpoints {
		if !ep.Enabled {
			continue
		}
		if len(ep.EventTypes) == 0 {
			out = append(out, ep)
			continue
		}
		for _, t := range ep.EventTypes {
			if t == eventType {
				out = append(out, ep)
				break
			}
		}
	}
	return out
}
