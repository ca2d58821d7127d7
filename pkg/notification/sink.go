package notification

import "context"

// Sink 告警与车主通知出口。实现必须是非阻塞的，投递在后台完成
type Sink interface {
	Alert(ctx context.Context, eventType, vin, commandID string) error
	NotifyOwner(ctx context.Context, vin, owner, subject, message string) error
}

// Publisher 事件发布者（如Kafka），与webhook端点并行接收全部事件
type Publisher interface {
	Publish(ctx context.Context, event *NotificationEvent) error
	Close() error
}

// NopSink 丢弃全部通知
type NopSink struct{}

func (NopSink) Alert(context.Context, string, string, string) error { return nil }

func (NopSink) NotifyOwner(context.Context, string, string, string, string) error { return nil }

var (
	_ Sink = NopSink{}
	_ Sink = (*NotificationService)(nil)
)
