// Package diagnostics 保存无法识别或需要留档的上行载荷，供离线分析
package diagnostics

import (
	"context"
	"fmt"

	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// 诊断数据类别
const (
	KindDJFavorite   = "dj_favorite"   // DJ收藏上传
	KindDJUnknown    = "dj_unknown"    // 无法识别的DJ动作/处理器
	KindCPUnknown    = "cp_unknown"    // 无法识别的CP请求类型
	KindUnknownFrame = "unknown_frame" // 无法识别的GDC帧
)

// Sink 诊断数据出口
type Sink interface {
	Record(ctx context.Context, kind, vin string, payload []byte) error
}

// NopSink 丢弃全部诊断数据
type NopSink struct{}

func (NopSink) Record(context.Context, string, string, []byte) error { return nil }

// LogSink 将诊断数据写入日志
type LogSink struct {
	// MaxDump 日志中十六进制输出的最大字节数
	MaxDump int
}

// Record 记录一条诊断数据
func (s LogSink) Record(_ context.Context, kind, vin string, payload []byte) error {
	dump := payload
	if s.MaxDump > 0 && len(dump) > s.MaxDump {
		dump = dump[:s.MaxDump]
	}
	logger.WithFields(logrus.Fields{
		"kind":   kind,
		"vin":    vin,
		"size":   len(payload),
		"prefix": fmt.Sprintf("%X", dump),
	}).Info("诊断数据")
	metrics.DiagnosticsRecordsTotal.WithLabelValues(kind, "success").Inc()
	return nil
}

// New 根据配置创建诊断出口
func New(ctx context.Context, cfg config.DiagnosticsConfig) (Sink, error) {
	switch cfg.Backend {
	case "", "nop":
		return NopSink{}, nil
	case "log":
		return LogSink{MaxDump: 256}, nil
	case "minio":
		sink, err := NewMinioSink(cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := sink.CheckBucket(ctx); err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unsupported diagnostics backend: %s", cfg.Backend)
	}
}
