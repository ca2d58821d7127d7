package ports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	httpadapter "github.com/bujia-iot/carwings-gateway/internal/adapter/http"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
)

// shutdownTimeout HTTP服务器优雅关闭的最长等待
const shutdownTimeout = 5 * time.Second

// HTTPServer CARWINGS与运维HTTP服务器
type HTTPServer struct {
	srv *http.Server
}

// NewHTTPServer 创建HTTP服务器
func NewHTTPServer(cfg config.HTTPAPIServerConfig, handlers *httpadapter.Handlers) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	httpadapter.RegisterRoutes(r, handlers, cfg)

	return &HTTPServer{
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler 路由处理器，测试使用
func (s *HTTPServer) Handler() http.Handler {
	return s.srv.Handler
}

// Run 启动服务器并阻塞到ctx结束
func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP服务器启动在 %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("HTTP服务器已停止")
	return nil
}

// requestLogger 以logrus记录请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"latency":  time.Since(start).String(),
			"clientIP": c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("HTTP请求失败")
			return
		}
		entry.Debug("HTTP请求")
	}
}
