package vehicle

import (
	"context"
	"time"
)

// Registry 外部车辆注册表
//
// 同一车辆上的读改写由实现负责串行化；命令状态只能通过CompareAndSetCommand推进。
type Registry interface {
	// Lookup 按VIN查询，不存在返回 ErrVehicleNotFound
	Lookup(ctx context.Context, vin string) (*Vehicle, error)
	UpdateGPS(ctx context.Context, vin string, gps GPS) error
	UpdateEV(ctx context.Context, vin string, ev EVState) error
	UpdateTCUConfig(ctx context.Context, vin string, cfg TCUConfig) error

	// Command 返回当前命令，没有命令时返回nil
	Command(ctx context.Context, vin string) (*Command, error)
	// IssueCommand 下发新命令；已有未结束命令时返回 ErrCommandConflict
	IssueCommand(ctx context.Context, vin string, t CommandType) (*Command, error)
	// CompareAndSetCommand 仅当命令ID与当前状态都匹配时推进状态，返回是否成功
	CompareAndSetCommand(ctx context.Context, vin, id string, from, to CommandState) (bool, error)
	// WaitingCommands 列出请求时间早于before且仍为waiting的命令
	WaitingCommands(ctx context.Context, before time.Time) ([]PendingCommand, error)
	// AwaitingCommands 列出下发时间（UpdatedAt）早于before且仍为awaiting-response的命令
	AwaitingCommands(ctx context.Context, before time.Time) ([]PendingCommand, error)

	CustomChannels(ctx context.Context, vin string) ([]CustomChannel, error)
}
