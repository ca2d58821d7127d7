package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TimeFormat 日志时间格式
const TimeFormat = "2006-01-02 15:04:05"

// 全局日志实例
var (
	log        = logrus.New()
	logHexDump bool
)

// Init 初始化日志系统，尊重配置文件设置
func Init(cfg *config.LoggerConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %s, %w", cfg.Level, err)
	}
	log.SetLevel(level)

	if strings.ToLower(cfg.Format) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: TimeFormat,
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: TimeFormat,
			FullTimestamp:   true,
		})
	}

	var writers []io.Writer
	if cfg.EnableConsole {
		writers = append(writers, os.Stdout)
	}

	// 文件输出按大小轮转
	if cfg.EnableFile {
		fileDir := cfg.FileDir
		if fileDir == "" {
			fileDir = "./logs"
		}
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "gateway"
		}
		if err := os.MkdirAll(fileDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(fileDir, prefix+".log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		})
	}

	if len(writers) == 0 {
		// 没有配置任何输出时默认输出到控制台
		writers = append(writers, os.Stdout)
	}
	log.SetOutput(io.MultiWriter(writers...))
	logHexDump = cfg.LogHexDump

	log.WithFields(logrus.Fields{
		"level":          cfg.Level,
		"format":         cfg.Format,
		"enable_console": cfg.EnableConsole,
		"enable_file":    cfg.EnableFile,
		"hex_dump":       cfg.LogHexDump,
	}).Info("日志系统初始化完成")

	return nil
}

// SetOutput 替换日志输出目标
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// GetLogger 获取全局日志实例
func GetLogger() *logrus.Logger {
	return log
}

// Debug 输出Debug级别日志
func Debug(args ...interface{}) {
	log.Debug(args...)
}

// Debugf 格式化输出Debug级别日志
func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// Info 输出Info级别日志
func Info(args ...interface{}) {
	log.Info(args...)
}

// Infof 格式化输出Info级别日志
func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

// Warn 输出Warn级别日志
func Warn(args ...interface{}) {
	log.Warn(args...)
}

// Warnf 格式化输出Warn级别日志
func Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

// Error 输出Error级别日志
func Error(args ...interface{}) {
	log.Error(args...)
}

// Errorf 格式化输出Error级别日志
func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// Fatal 输出Fatal级别日志
func Fatal(args ...interface{}) {
	log.Fatal(args...)
}

// WithField 添加字段到日志
func WithField(key string, value interface{}) *logrus.Entry {
	return log.WithField(key, value)
}

// WithFields 添加多个字段到日志
func WithFields(fields logrus.Fields) *logrus.Entry {
	return log.WithFields(fields)
}

// HexDump 记录二进制数据的十六进制表示（仅当logHexDump为true且日志级别为Debug时）
func HexDump(message string, data []byte) {
	if logHexDump && log.IsLevelEnabled(logrus.DebugLevel) {
		log.WithField("hex_data", fmt.Sprintf("%X", data)).Debug(message)
	}
}
