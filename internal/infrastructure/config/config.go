package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config 是应用程序配置的结构体
type Config struct {
	TCPServer     TCPServerConfig     `mapstructure:"tcpServer"`
	HTTPAPIServer HTTPAPIServerConfig `mapstructure:"httpApiServer"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Registry      RegistryConfig      `mapstructure:"registry"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Commands      CommandsConfig      `mapstructure:"commands"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Diagnostics   DiagnosticsConfig   `mapstructure:"diagnostics"`
	Carwings      CarwingsConfig      `mapstructure:"carwings"`
}

// TCPServerConfig GDC TCP服务器配置
type TCPServerConfig struct {
	Host                       string     `mapstructure:"host" yaml:"host"`
	Port                       int        `mapstructure:"port" yaml:"port"`
	Zinx                       ZinxConfig `mapstructure:"zinx" yaml:"zinx"`
	InitialReadDeadlineSeconds int        `mapstructure:"initialReadDeadlineSeconds" yaml:"initialReadDeadlineSeconds"` // 连接建立后首帧的读取超时
	DefaultReadDeadlineSeconds int        `mapstructure:"defaultReadDeadlineSeconds" yaml:"defaultReadDeadlineSeconds"` // 认证后的读取超时
	CloseOnFailure             bool       `mapstructure:"closeOnFailure" yaml:"closeOnFailure"`                         // 身份/认证失败后是否断开连接
}

// ZinxConfig Zinx框架配置
type ZinxConfig struct {
	Name             string `mapstructure:"name"`
	Version          string `mapstructure:"version"`
	MaxConn          int    `mapstructure:"maxConn"`
	WorkerPoolSize   int    `mapstructure:"workerPoolSize"`
	MaxWorkerTaskLen int    `mapstructure:"maxWorkerTaskLen"`
	MaxPacketSize    uint32 `mapstructure:"maxPacketSize"`
}

// HTTPAPIServerConfig CARWINGS HTTP服务器配置
type HTTPAPIServerConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	EndpointPath       string `mapstructure:"endpointPath"`
	ContentType        string `mapstructure:"contentType"`
	UserAgentSubstring string `mapstructure:"userAgentSubstring"`
	MetricsPath        string `mapstructure:"metricsPath"`
	MaxBodyBytes       int64  `mapstructure:"maxBodyBytes"`
	TimeoutSeconds     int    `mapstructure:"timeoutSeconds"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"poolSize"`
	MinIdleConns int    `mapstructure:"minIdleConns"`
	DialTimeout  int    `mapstructure:"dialTimeout"`
	ReadTimeout  int    `mapstructure:"readTimeout"`
	WriteTimeout int    `mapstructure:"writeTimeout"`
}

// RegistryConfig 车辆注册表配置
type RegistryConfig struct {
	Backend   string `mapstructure:"backend"` // redis | memory
	KeyPrefix string `mapstructure:"keyPrefix"`
}

// PostgresConfig 充电桩目录数据库配置
type PostgresConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	DSN                 string `mapstructure:"dsn"`
	MaxOpenConns        int    `mapstructure:"maxOpenConns"`
	MaxIdleConns        int    `mapstructure:"maxIdleConns"`
	QueryTimeoutSeconds int    `mapstructure:"queryTimeoutSeconds"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	EnableConsole bool   `mapstructure:"enableConsole"`
	EnableFile    bool   `mapstructure:"enableFile"`
	FileDir       string `mapstructure:"fileDir"`
	FilePrefix    string `mapstructure:"filePrefix"`
	MaxSizeMB     int    `mapstructure:"maxSizeMB"`
	MaxBackups    int    `mapstructure:"maxBackups"`
	MaxAgeDays    int    `mapstructure:"maxAgeDays"`
	Compress      bool   `mapstructure:"compress"`
	LogHexDump    bool   `mapstructure:"logHexDump"`
}

// CommandsConfig 远程命令配置
type CommandsConfig struct {
	TimeoutSeconds         int `mapstructure:"timeoutSeconds"`         // waiting命令未被INIT取走的超时
	ResponseTimeoutSeconds int `mapstructure:"responseTimeoutSeconds"` // 已下发命令等待结果上报的超时
	SweepIntervalSeconds   int `mapstructure:"sweepIntervalSeconds"`
}

// NotificationConfig 告警与车主通知配置
type NotificationConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	Workers   int             `mapstructure:"workers"`
	QueueSize int             `mapstructure:"queueSize"`
	Webhooks  []WebhookConfig `mapstructure:"webhooks"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

// WebhookConfig webhook端点
type WebhookConfig struct {
	Name           string            `mapstructure:"name"`
	URL            string            `mapstructure:"url"`
	Headers        map[string]string `mapstructure:"headers"`
	TimeoutSeconds int               `mapstructure:"timeoutSeconds"`
	EventTypes     []string          `mapstructure:"eventTypes"`
	Enabled        bool              `mapstructure:"enabled"`
}

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts       int     `mapstructure:"maxAttempts"`
	InitialIntervalMs int     `mapstructure:"initialIntervalMs"`
	MaxIntervalMs     int     `mapstructure:"maxIntervalMs"`
	Multiplier        float64 `mapstructure:"multiplier"`
}

// KafkaConfig 告警事件发布
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// DiagnosticsConfig 诊断数据落地配置
type DiagnosticsConfig struct {
	Backend string      `mapstructure:"backend"` // nop | log | minio
	Minio   MinioConfig `mapstructure:"minio"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"useSSL"`
}

// CarwingsConfig CARWINGS应用层配置
type CarwingsConfig struct {
	TimingSeconds      int    `mapstructure:"timingSeconds"`      // op_inf/timing 提示
	CustomChannelBase  uint16 `mapstructure:"customChannelBase"`  // 自定义频道起始ID
	RefreshMinutes     uint16 `mapstructure:"refreshMinutes"`     // 频道刷新间隔
	NearbyRadiusKm     int    `mapstructure:"nearbyRadiusKm"`     // 附近充电桩搜索半径
	ServerName         string `mapstructure:"serverName"`         // 服务器信息频道显示名
	AuthFailureMessage string `mapstructure:"authFailureMessage"` // AP认证失败提示
}

var (
	// 全局配置实例
	GlobalConfig = Default()
	mu           sync.RWMutex
)

// setDefaults 为viper设置全部默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("tcpServer.host", "0.0.0.0")
	v.SetDefault("tcpServer.port", 55230)
	v.SetDefault("tcpServer.zinx.name", "gdc-gateway")
	v.SetDefault("tcpServer.zinx.version", "V1.0")
	v.SetDefault("tcpServer.zinx.maxConn", 10000)
	v.SetDefault("tcpServer.zinx.workerPoolSize", 16)
	v.SetDefault("tcpServer.zinx.maxWorkerTaskLen", 1024)
	v.SetDefault("tcpServer.zinx.maxPacketSize", 4096)
	v.SetDefault("tcpServer.initialReadDeadlineSeconds", 30)
	v.SetDefault("tcpServer.defaultReadDeadlineSeconds", 300)
	v.SetDefault("tcpServer.closeOnFailure", false)

	v.SetDefault("httpApiServer.host", "0.0.0.0")
	v.SetDefault("httpApiServer.port", 8080)
	v.SetDefault("httpApiServer.endpointPath", "/WARCondelivbas/it-m_gw10/")
	v.SetDefault("httpApiServer.contentType", "application/x-carwings-nz")
	v.SetDefault("httpApiServer.userAgentSubstring", "NISSAN-CARWINGS")
	v.SetDefault("httpApiServer.metricsPath", "/metrics")
	v.SetDefault("httpApiServer.maxBodyBytes", 4<<20)
	v.SetDefault("httpApiServer.timeoutSeconds", 30)

	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.poolSize", 20)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", 5)
	v.SetDefault("redis.readTimeout", 3)
	v.SetDefault("redis.writeTimeout", 3)

	v.SetDefault("registry.backend", "redis")
	v.SetDefault("registry.keyPrefix", "carwings:")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.maxOpenConns", 10)
	v.SetDefault("postgres.maxIdleConns", 2)
	v.SetDefault("postgres.queryTimeoutSeconds", 5)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.enableConsole", true)
	v.SetDefault("logger.enableFile", false)
	v.SetDefault("logger.fileDir", "./logs")
	v.SetDefault("logger.filePrefix", "gateway")
	v.SetDefault("logger.maxSizeMB", 100)
	v.SetDefault("logger.maxBackups", 10)
	v.SetDefault("logger.maxAgeDays", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.logHexDump", false)

	v.SetDefault("commands.timeoutSeconds", 300)
	v.SetDefault("commands.responseTimeoutSeconds", 600)
	v.SetDefault("commands.sweepIntervalSeconds", 30)

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.workers", 4)
	v.SetDefault("notification.queueSize", 1024)
	v.SetDefault("notification.retry.maxAttempts", 3)
	v.SetDefault("notification.retry.initialIntervalMs", 1000)
	v.SetDefault("notification.retry.maxIntervalMs", 30000)
	v.SetDefault("notification.retry.multiplier", 2.0)
	v.SetDefault("notification.kafka.topic", "carwings-alerts")

	v.SetDefault("diagnostics.backend", "log")
	v.SetDefault("diagnostics.minio.bucket", "carwings-diagnostics")

	v.SetDefault("carwings.timingSeconds", 60)
	v.SetDefault("carwings.customChannelBase", 0x8000)
	v.SetDefault("carwings.refreshMinutes", 30)
	v.SetDefault("carwings.nearbyRadiusKm", 20)
	v.SetDefault("carwings.serverName", "CARWINGS Gateway")
	v.SetDefault("carwings.authFailureMessage", "Authentication failed. Please check your CARWINGS account settings.")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// Default 返回仅由默认值构成的配置
func Default() Config {
	var cfg Config
	if err := newViper().Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// Load 加载配置文件；路径为空时只使用默认值与环境变量
func Load(configPath string) error {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	mu.Lock()
	GlobalConfig = cfg
	mu.Unlock()
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Registry.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported registry backend: %s", c.Registry.Backend)
	}
	switch c.Diagnostics.Backend {
	case "nop", "log", "minio":
	default:
		return fmt.Errorf("unsupported diagnostics backend: %s", c.Diagnostics.Backend)
	}
	if c.Commands.TimeoutSeconds <= 0 || c.Commands.ResponseTimeoutSeconds <= 0 || c.Commands.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("commands timeouts and sweep interval must be positive")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres enabled without dsn")
	}
	if c.Notification.Kafka.Enabled && len(c.Notification.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled without brokers")
	}
	return nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	cfg := GlobalConfig
	return &cfg
}

// FormatHTTPAddress 格式化HTTP服务器地址为host:port格式
func FormatHTTPAddress() string {
	cfg := GetConfig().HTTPAPIServer
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// FormatTCPAddress 格式化TCP服务器地址为host:port格式
func FormatTCPAddress() string {
	cfg := GetConfig().TCPServer
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}
