package ports

import (
	"context"
	"fmt"
	"time"

	"github.com/aceld/zinx/zconf"
	"github.com/aceld/zinx/ziface"
	"github.com/aceld/zinx/znet"
	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/app/gdc"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/zinx_server"
)

// TCPServer 封装GDC TCP服务器
type TCPServer struct {
	server  ziface.IServer
	cfg     config.TCPServerConfig
	engine  *gdc.Engine
	monitor *zinx_server.ConnectionMonitor
}

// NewTCPServer 创建新的TCP服务器实例
func NewTCPServer(cfg config.TCPServerConfig, engine *gdc.Engine, monitor *zinx_server.ConnectionMonitor) *TCPServer {
	return &TCPServer{
		cfg:     cfg,
		engine:  engine,
		monitor: monitor,
	}
}

// Run 启动服务器并阻塞到ctx结束
func (s *TCPServer) Run(ctx context.Context) error {
	if err := s.initialize(); err != nil {
		return err
	}
	s.registerRoutes()
	s.setupConnectionHooks()

	s.server.Start()
	logger.Infof("GDC TCP服务器启动在 %s:%d", s.cfg.Host, s.cfg.Port)

	<-ctx.Done()
	s.server.Stop()
	logger.Info("GDC TCP服务器已停止")
	return nil
}

// initialize 初始化Zinx配置
func (s *TCPServer) initialize() error {
	zinxCfg := s.cfg.Zinx
	logger.SetupZinxLogger()

	zconf.GlobalObject.Name = zinxCfg.Name
	zconf.GlobalObject.Host = s.cfg.Host
	zconf.GlobalObject.TCPPort = s.cfg.Port
	zconf.GlobalObject.Version = zinxCfg.Version
	zconf.GlobalObject.MaxConn = zinxCfg.MaxConn
	zconf.GlobalObject.MaxPacketSize = zinxCfg.MaxPacketSize
	zconf.GlobalObject.WorkerPoolSize = uint32(zinxCfg.WorkerPoolSize)
	zconf.GlobalObject.MaxWorkerTaskLen = uint32(zinxCfg.MaxWorkerTaskLen)

	s.server = znet.NewUserConfServer(zconf.GlobalObject)
	if s.server == nil {
		return fmt.Errorf("create zinx server failed")
	}

	s.server.SetDecoder(zinx_server.NewGDCDecoder())
	s.server.SetPacket(zinx_server.NewRawDataPack())

	logger.WithFields(logrus.Fields{
		"name":           zinxCfg.Name,
		"maxConn":        zinxCfg.MaxConn,
		"workerPoolSize": zinxCfg.WorkerPoolSize,
	}).Info("Zinx配置已加载")
	return nil
}

// registerRoutes 所有原始数据块进入同一个流路由器
func (s *TCPServer) registerRoutes() {
	router := zinx_server.NewStreamRouter(
		s.engine,
		s.monitor,
		time.Duration(s.cfg.DefaultReadDeadlineSeconds)*time.Second,
		s.cfg.CloseOnFailure,
	)
	s.server.AddRouter(zinx_server.StreamMsgID, router)
}

// setupConnectionHooks 设置连接钩子
func (s *TCPServer) setupConnectionHooks() {
	hooks := zinx_server.NewConnectionHooks(
		s.monitor,
		time.Duration(s.cfg.InitialReadDeadlineSeconds)*time.Second,
	)
	s.server.SetOnConnStart(hooks.OnConnectionStart)
	s.server.SetOnConnStop(hooks.OnConnectionStop)
}
