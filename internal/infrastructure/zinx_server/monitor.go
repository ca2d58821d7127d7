package zinx_server

import (
	"sync"

	"github.com/aceld/zinx/ziface"
	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/zinx_server/common"
	"github.com/bujia-iot/carwings-gateway/pkg/metrics"
)

// ConnectionMonitor 维护在线连接与VIN的对应关系，实现IConnectionMonitor接口
type ConnectionMonitor struct {
	mu        sync.Mutex
	vinToConn map[string]ziface.IConnection
	connToVIN map[uint64]string
	conns     map[uint64]struct{}
}

var _ common.IConnectionMonitor = (*ConnectionMonitor)(nil)

// NewConnectionMonitor 创建连接监视器
func NewConnectionMonitor() *ConnectionMonitor {
	return &ConnectionMonitor{
		vinToConn: make(map[string]ziface.IConnection),
		connToVIN: make(map[uint64]string),
		conns:     make(map[uint64]struct{}),
	}
}

// OnConnectionEstablished 连接建立
func (m *ConnectionMonitor) OnConnectionEstablished(conn ziface.IConnection) {
	m.mu.Lock()
	m.conns[conn.GetConnID()] = struct{}{}
	m.mu.Unlock()
	metrics.GDCConnections.Inc()
}

// OnConnectionClosed 连接关闭，只移除仍指向本连接的VIN映射
func (m *ConnectionMonitor) OnConnectionClosed(conn ziface.IConnection) {
	connID := conn.GetConnID()

	m.mu.Lock()
	_, known := m.conns[connID]
	delete(m.conns, connID)
	if vin, ok := m.connToVIN[connID]; ok {
		delete(m.connToVIN, connID)
		if cur, ok := m.vinToConn[vin]; ok && cur.GetConnID() == connID {
			delete(m.vinToConn, vin)
		}
	}
	m.mu.Unlock()

	if known {
		metrics.GDCConnections.Dec()
	}
}

// BindVIN 绑定VIN到连接。
// 同一VIN已在另一条连接上时返回旧连接，由调用方决定是否断开
func (m *ConnectionMonitor) BindVIN(vin string, conn ziface.IConnection) (ziface.IConnection, bool) {
	connID := conn.GetConnID()

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, exists := m.vinToConn[vin]
	m.vinToConn[vin] = conn
	m.connToVIN[connID] = vin
	if exists && prev.GetConnID() != connID {
		delete(m.connToVIN, prev.GetConnID())
		logger.WithFields(logrus.Fields{
			"vin":       vin,
			"oldConnID": prev.GetConnID(),
			"newConnID": connID,
		}).Info("车辆重新连接")
		return prev, true
	}
	return nil, false
}

// GetConnectionByVIN 根据VIN获取连接
func (m *ConnectionMonitor) GetConnectionByVIN(vin string) (ziface.IConnection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.vinToConn[vin]
	return conn, ok
}

// GetVINByConnID 根据连接ID获取VIN
func (m *ConnectionMonitor) GetVINByConnID(connID uint64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vin, ok := m.connToVIN[connID]
	return vin, ok
}

// Count 当前连接数
func (m *ConnectionMonitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}
