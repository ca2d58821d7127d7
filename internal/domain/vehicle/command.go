package vehicle

import (
	"fmt"
	"time"
)

// CommandType 远程命令类型
type CommandType uint8

const (
	CommandRefresh     CommandType = 1 // 刷新状态
	CommandChargeStart CommandType = 2 // 开始充电
	CommandACOn        CommandType = 3 // 开启空调
	CommandACOff       CommandType = 4 // 关闭空调
	CommandLocate      CommandType = 5 // 定位
)

var commandNames = map[CommandType]string{
	CommandRefresh:     "refresh",
	CommandChargeStart: "charge_start",
	CommandACOn:        "ac_on",
	CommandACOff:       "ac_off",
	CommandLocate:      "locate",
}

func (t CommandType) String() string {
	if n, ok := commandNames[t]; ok {
		return n
	}
	return fmt.Sprintf("command_%d", uint8(t))
}

// Known 是否为已定义的命令类型
func (t CommandType) Known() bool {
	_, ok := commandNames[t]
	return ok
}

// ParseCommandType 按名称解析命令类型
func ParseCommandType(name string) (CommandType, bool) {
	for t, n := range commandNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// CommandState 命令结果状态
type CommandState string

const (
	StateWaiting          CommandState = "waiting"
	StateAwaitingResponse CommandState = "awaiting-response"
	StateSuccess          CommandState = "success"
	StateError            CommandState = "error"
	StateTimeout          CommandState = "timeout"
)

// Terminal 终态不再改变，除非外部重新下发命令
func (s CommandState) Terminal() bool {
	return s == StateSuccess || s == StateError || s == StateTimeout
}

// Outstanding 命令仍未结束
func (s CommandState) Outstanding() bool {
	return s == StateWaiting || s == StateAwaitingResponse
}

// CanTransition 状态只能单向推进
//
//	waiting           -> awaiting-response | success | error | timeout
//	awaiting-response -> success | error | timeout
func CanTransition(from, to CommandState) bool {
	switch from {
	case StateWaiting:
		return to == StateAwaitingResponse || to == StateSuccess || to == StateError || to == StateTimeout
	case StateAwaitingResponse:
		return to == StateSuccess || to == StateError || to == StateTimeout
	}
	return false
}

// Command 一条远程命令
type Command struct {
	ID          string       `json:"id"`
	Type        CommandType  `json:"type"`
	State       CommandState `json:"state"`
	RequestedAt time.Time    `json:"requested_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// PendingCommand 扫描器使用的待处理命令
type PendingCommand struct {
	VIN     string
	Command Command
}
