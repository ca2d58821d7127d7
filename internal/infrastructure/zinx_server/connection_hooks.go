package zinx_server

import (
	"sync"
	"time"

	"github.com/aceld/zinx/ziface"
	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/app/gdc"
	"github.com/bujia-iot/carwings-gateway/internal/domain/gdc_protocol"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/zinx_server/common"
)

// connState 每条连接的会话与帧重组缓冲
type connState struct {
	session *gdc.Session

	mu       sync.Mutex
	splitter gdc_protocol.Splitter
}

// ConnectionHooks Zinx连接生命周期钩子
type ConnectionHooks struct {
	monitor         common.IConnectionMonitor
	initialDeadline time.Duration
}

// NewConnectionHooks 创建连接钩子，initialDeadline为连接建立后首帧的读取超时
func NewConnectionHooks(monitor common.IConnectionMonitor, initialDeadline time.Duration) *ConnectionHooks {
	return &ConnectionHooks{monitor: monitor, initialDeadline: initialDeadline}
}

// OnConnectionStart 连接建立时创建会话并设置首帧读取超时
func (h *ConnectionHooks) OnConnectionStart(conn ziface.IConnection) {
	remoteAddr := conn.RemoteAddr().String()
	setReadDeadline(conn, h.initialDeadline)

	conn.SetProperty(common.PropKeyRemoteAddr, remoteAddr)
	conn.SetProperty(common.PropKeyConnState, &connState{
		session: gdc.NewSession(conn.GetConnID(), remoteAddr),
	})
	h.monitor.OnConnectionEstablished(conn)

	logger.WithFields(logrus.Fields{
		"remoteAddr": remoteAddr,
		"connID":     conn.GetConnID(),
	}).Info("新GDC连接已建立")
}

// OnConnectionStop 连接断开
func (h *ConnectionHooks) OnConnectionStop(conn ziface.IConnection) {
	h.monitor.OnConnectionClosed(conn)

	fields := logrus.Fields{
		"connID":     conn.GetConnID(),
		"remoteAddr": conn.RemoteAddr().String(),
	}
	if st, ok := stateOf(conn); ok {
		fields["vin"] = st.session.VIN()
		fields["state"] = st.session.Current()
		st.mu.Lock()
		if n := st.splitter.Buffered(); n > 0 {
			fields["discarded"] = n
		}
		st.mu.Unlock()
	}
	logger.WithFields(fields).Info("GDC连接已断开")
}

func stateOf(conn ziface.IConnection) (*connState, bool) {
	val, err := conn.GetProperty(common.PropKeyConnState)
	if err != nil || val == nil {
		return nil, false
	}
	st, ok := val.(*connState)
	return st, ok
}

func setReadDeadline(conn ziface.IConnection, d time.Duration) {
	if d <= 0 {
		return
	}
	netConn := conn.GetConnection()
	if netConn == nil {
		return
	}
	if err := netConn.SetReadDeadline(time.Now().Add(d)); err != nil {
		logger.WithFields(logrus.Fields{
			"connID": conn.GetConnID(),
			"error":  err.Error(),
		}).Warn("设置读取超时失败")
	}
}
