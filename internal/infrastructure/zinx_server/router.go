package zinx_server

import (
	"context"
	"time"

	"github.com/aceld/zinx/ziface"
	"github.com/aceld/zinx/znet"
	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/app/gdc"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/zinx_server/common"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// StreamRouter 处理一条连接上的原始数据块：重组为GDC帧，逐帧交给会话引擎并写回响应
type StreamRouter struct {
	znet.BaseRouter

	engine          *gdc.Engine
	monitor         common.IConnectionMonitor
	defaultDeadline time.Duration
	closeOnFailure  bool
	frameTimeout    time.Duration
}

// NewStreamRouter 创建路由器。
// defaultDeadline为认证后的读取超时；closeOnFailure时身份或认证失败的连接在写回失败响应后断开
func NewStreamRouter(engine *gdc.Engine, monitor common.IConnectionMonitor, defaultDeadline time.Duration, closeOnFailure bool) *StreamRouter {
	return &StreamRouter{
		engine:          engine,
		monitor:         monitor,
		defaultDeadline: defaultDeadline,
		closeOnFailure:  closeOnFailure,
		frameTimeout:    10 * time.Second,
	}
}

// Handle 主处理逻辑
func (r *StreamRouter) Handle(request ziface.IRequest) {
	conn := request.GetConnection()
	st, ok := stateOf(conn)
	if !ok {
		logger.WithField("connID", conn.GetConnID()).Error("连接缺少会话状态，断开连接")
		conn.Stop()
		return
	}

	st.mu.Lock()
	frames := st.splitter.Feed(request.GetData())
	st.mu.Unlock()

	for _, frame := range frames {
		if !r.handleFrame(conn, st, frame) {
			return
		}
	}
}

// handleFrame 返回false表示连接已关闭，不再处理后续帧
func (r *StreamRouter) handleFrame(conn ziface.IConnection, st *connState, frame []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.frameTimeout)
	defer cancel()

	sess := st.session
	boundBefore := sess.VIN() != ""

	resp, err := r.engine.HandleFrame(ctx, sess, frame)
	if len(resp) > 0 {
		if sendErr := conn.SendMsg(StreamMsgID, resp); sendErr != nil {
			logger.WithFields(logrus.Fields{
				"connID": conn.GetConnID(),
				"error":  sendErr.Error(),
			}).Warn("写回GDC响应失败")
			conn.Stop()
			return false
		}
	}

	if !boundBefore && sess.VIN() != "" {
		r.bind(conn, sess.VIN())
	}

	if err != nil && r.closeOnFailure && isAccessFailure(err) {
		logger.WithFields(logrus.Fields{
			"connID":     conn.GetConnID(),
			"remoteAddr": sess.RemoteAddr,
			"error":      err.Error(),
		}).Info("身份或认证失败，断开连接")
		conn.Stop()
		return false
	}

	if sess.Authenticated() {
		setReadDeadline(conn, r.defaultDeadline)
	}
	return true
}

// bind 记录VIN到连接的映射；同一车辆的旧连接视为已失效
func (r *StreamRouter) bind(conn ziface.IConnection, vin string) {
	conn.SetProperty(common.PropKeyVIN, vin)
	if prev, replaced := r.monitor.BindVIN(vin, conn); replaced {
		prev.Stop()
	}
}

func isAccessFailure(err error) bool {
	switch errors.CodeOf(err) {
	case errors.ErrVehicleNotFound, errors.ErrIdentityMismatch, errors.ErrAuthFailed:
		return true
	}
	return false
}
