package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 网关专用指标注册表
var Registry = prometheus.NewRegistry()

// 定义指标变量
var (
	// GDCFramesTotal GDC帧处理计数，result: success/failure/malformed
	GDCFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carwings_gdc_frames_total",
			Help: "Total number of GDC frames handled.",
		},
		[]string{"type", "result"},
	)

	// GDCConnections 当前GDC连接数
	GDCConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "carwings_gdc_connections",
			Help: "Number of open GDC connections.",
		},
	)

	// CarwingsRequestsTotal CARWINGS请求计数
	CarwingsRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carwings_requests_total",
			Help: "Total number of CARWINGS requests by application.",
		},
		[]string{"app", "result"},
	)

	// CarwingsRequestLatency CARWINGS请求处理耗时
	CarwingsRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carwings_request_latency_seconds",
			Help:    "Latency of CARWINGS request processing.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"app"},
	)

	// CommandTransitionsTotal 远程命令状态迁移计数
	CommandTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carwings_command_transitions_total",
			Help: "Total number of remote command state transitions.",
		},
		[]string{"from", "to"},
	)

	// CommandTimeoutsTotal 超时扫描器判定超时的命令数
	CommandTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "carwings_command_timeouts_total",
			Help: "Total number of commands expired by the sweeper.",
		},
	)

	// DiagnosticsRecordsTotal 诊断数据落地计数
	DiagnosticsRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carwings_diagnostics_records_total",
			Help: "Total number of diagnostic payloads recorded.",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		GDCFramesTotal,
		GDCConnections,
		CarwingsRequestsTotal,
		CarwingsRequestLatency,
		CommandTransitionsTotal,
		CommandTimeoutsTotal,
		DiagnosticsRecordsTotal,
	)
}

// Handler 返回暴露注册表的HTTP处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Result 将错误折算为指标标签
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
