package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/pkg/metrics"
)

// ConnectionCounter 在线GDC连接计数
type ConnectionCounter interface {
	Count() int
}

// Handlers 路由注册所需的全部处理器
type Handlers struct {
	Carwings    *CarwingsHandlers
	Commands    *CommandHandlers
	Connections ConnectionCounter
	StartedAt   time.Time
}

// HandleHealthCheck 健康检查
func (h *Handlers) HandleHealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.StartedAt).Truncate(time.Second).String(),
	}
	if h.Connections != nil {
		resp.GDCConnections = h.Connections.Count()
	}
	c.JSON(http.StatusOK, APIResponse{Code: 0, Message: "CARWINGS网关运行正常", Data: resp})
}

// RegisterRoutes 注册HTTP路由
func RegisterRoutes(r *gin.Engine, h *Handlers, cfg config.HTTPAPIServerConfig) {
	r.GET("/health", h.HandleHealthCheck)
	if cfg.MetricsPath != "" {
		r.GET(cfg.MetricsPath, gin.WrapH(metrics.Handler()))
	}

	if h.Carwings != nil {
		r.POST(cfg.EndpointPath, h.Carwings.HandleRequest)
	}

	if h.Commands != nil {
		api := r.Group("/api/v1")
		{
			api.POST("/vehicles/:vin/commands", h.Commands.HandleIssueCommand)
			api.GET("/vehicles/:vin/command", h.Commands.HandleCommandStatus)
		}
	}
}
