// Package common 定义GDC连接层共享的属性键与监控接口
package common

import (
	"github.com/aceld/zinx/ziface"
)

// 连接属性键
const (
	PropKeyRemoteAddr = "remoteAddr" // 远程地址
	PropKeyConnState  = "gdcState"   // 会话与重组缓冲
	PropKeyVIN        = "vin"        // 已绑定的VIN
)

// IConnectionMonitor 连接监控接口，维护VIN与连接的对应关系
type IConnectionMonitor interface {
	OnConnectionEstablished(conn ziface.IConnection)
	OnConnectionClosed(conn ziface.IConnection)

	// BindVIN 绑定VIN到连接，返回同一VIN之前绑定的其他连接
	BindVIN(vin string, conn ziface.IConnection) (ziface.IConnection, bool)
	GetConnectionByVIN(vin string) (ziface.IConnection, bool)
	GetVINByConnID(connID uint64) (string, bool)
	Count() int
}
