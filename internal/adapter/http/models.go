package http

import "time"

// APIResponse 运维API统一响应结构
type APIResponse struct {
	Code    int         `json:"code"`           // 响应码，0表示成功，其余为错误码
	Message string      `json:"message"`        // 响应消息
	Data    interface{} `json:"data,omitempty"` // 响应数据
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Uptime         string    `json:"uptime"`
	GDCConnections int       `json:"gdcConnections"`
}

// IssueCommandRequest 下发命令请求
type IssueCommandRequest struct {
	Command string `json:"command" binding:"required"` // refresh | charge_start | ac_on | ac_off | locate
}

// CommandInfo 命令信息
type CommandInfo struct {
	VIN         string    `json:"vin"`
	ID          string    `json:"id"`
	Command     string    `json:"command"`
	State       string    `json:"state"`
	RequestedAt time.Time `json:"requestedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
