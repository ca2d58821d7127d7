package logger

import (
	"context"

	"github.com/aceld/zinx/zlog"
	"github.com/sirupsen/logrus"
)

// ZinxLoggerAdapter 将Zinx框架内部日志接入logrus
type ZinxLoggerAdapter struct {
	entry *logrus.Entry
}

// NewZinxLoggerAdapter 创建Zinx日志适配器
func NewZinxLoggerAdapter() *ZinxLoggerAdapter {
	return &ZinxLoggerAdapter{entry: WithField("component", "zinx")}
}

func (z *ZinxLoggerAdapter) InfoF(format string, v ...interface{}) {
	z.entry.Infof(format, v...)
}

func (z *ZinxLoggerAdapter) ErrorF(format string, v ...interface{}) {
	z.entry.Errorf(format, v...)
}

func (z *ZinxLoggerAdapter) DebugF(format string, v ...interface{}) {
	z.entry.Debugf(format, v...)
}

func (z *ZinxLoggerAdapter) InfoFX(ctx context.Context, format string, v ...interface{}) {
	z.entry.WithContext(ctx).Infof(format, v...)
}

func (z *ZinxLoggerAdapter) ErrorFX(ctx context.Context, format string, v ...interface{}) {
	z.entry.WithContext(ctx).Errorf(format, v...)
}

func (z *ZinxLoggerAdapter) DebugFX(ctx context.Context, format string, v ...interface{}) {
	z.entry.WithContext(ctx).Debugf(format, v...)
}

// SetupZinxLogger 设置Zinx框架使用本日志系统
func SetupZinxLogger() {
	zlog.SetLogger(NewZinxLoggerAdapter())
}
