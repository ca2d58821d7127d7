package http

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/app/carwings"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
)

// CarwingsEngine CARWINGS请求处理引擎
type CarwingsEngine interface {
	Handle(ctx context.Context, body []byte) ([]byte, error)
}

// CarwingsHandlers CARWINGS POST端点
type CarwingsHandlers struct {
	engine CarwingsEngine
	cfg    config.HTTPAPIServerConfig
}

// NewCarwingsHandlers 创建CARWINGS处理器
func NewCarwingsHandlers(engine CarwingsEngine, cfg config.HTTPAPIServerConfig) *CarwingsHandlers {
	return &CarwingsHandlers{engine: engine, cfg: cfg}
}

// HandleRequest 处理导航单元上传的CARWINGS数据包。
// 结构性错误回复400，引擎内部错误回复500，错误时响应体为空
func (h *CarwingsHandlers) HandleRequest(c *gin.Context) {
	fields := logrus.Fields{
		"remoteAddr": c.ClientIP(),
		"userAgent":  c.Request.UserAgent(),
	}

	if c.ContentType() != h.cfg.ContentType {
		fields["contentType"] = c.ContentType()
		logger.WithFields(fields).Warn("CARWINGS请求内容类型不符")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	if h.cfg.UserAgentSubstring != "" && !strings.Contains(c.Request.UserAgent(), h.cfg.UserAgentSubstring) {
		logger.WithFields(fields).Warn("CARWINGS请求User-Agent不符")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	reader := c.Request.Body
	if h.cfg.MaxBodyBytes > 0 {
		reader = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		fields["error"] = err.Error()
		logger.WithFields(fields).Warn("读取CARWINGS请求体失败")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()
	if h.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(h.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	resp, err := h.engine.Handle(ctx, body)
	if err != nil {
		if carwings.IsClientError(err) {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, h.cfg.ContentType, resp)
}
