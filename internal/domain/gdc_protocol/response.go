package gdc_protocol

import (
	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
)

// ResponseType 包类型对应的响应类型
func ResponseType(packetType byte) byte {
	switch packetType {
	case PacketInit:
		return RespInit
	case PacketData:
		return RespData
	case PacketConfig:
		return RespConfig
	}
	return 0
}

// BuildResponse 构造8字节响应 [响应类型][状态][命令][5 × 0x00]
func BuildResponse(respType, status, command byte) []byte {
	resp := make([]byte, ResponseLen)
	resp[0] = respType
	resp[1] = status
	resp[2] = command
	return resp
}

// FailureResponse 通用失败响应；无法识别包类型时按INIT回复
func FailureResponse(packetType byte) []byte {
	rt := ResponseType(packetType)
	if rt == 0 {
		rt = RespInit
	}
	return BuildResponse(rt, StatusFailure, 0)
}

// SuccessResponse DATA/CONFIG的确认响应
func SuccessResponse(packetType byte) []byte {
	return BuildResponse(ResponseType(packetType), StatusSuccess, 0)
}

// CommandResponse INIT时下发命令的五种固定响应之一
func CommandResponse(t vehicle.CommandType) ([]byte, bool) {
	if !t.Known() {
		return nil, false
	}
	return BuildResponse(RespInit, StatusSuccess, byte(t)), true
}
