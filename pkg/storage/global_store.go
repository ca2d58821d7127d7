// Package storage 提供内存版车辆注册表，用于测试与 registry.backend=memory。
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// vehicleEntry 单车记录，每车一把锁
type vehicleEntry struct {
	mu sync.Mutex
	v  *vehicle.Vehicle
}

// VehicleStore 内存车辆注册表
type VehicleStore struct {
	vehicles sync.Map // VIN -> *vehicleEntry
	now      func() time.Time
}

var _ vehicle.Registry = (*VehicleStore)(nil)

// NewVehicleStore 创建内存注册表
func NewVehicleStore() *VehicleStore {
	return &VehicleStore{now: time.Now}
}

// SetClock 替换时钟，测试使用
func (s *VehicleStore) SetClock(now func() time.Time) {
	s.now = now
}

// Put 写入或替换整条车辆记录
func (s *VehicleStore) Put(v *vehicle.Vehicle) {
	s.vehicles.Store(v.VIN, &vehicleEntry{v: v.Clone()})
}

// Delete 删除车辆
func (s *VehicleStore) Delete(vin string) {
	s.vehicles.Delete(vin)
}

// Count 车辆总数
func (s *VehicleStore) Count() int {
	count := 0
	s.vehicles.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

func (s *VehicleStore) entry(vin string) (*vehicleEntry, error) {
	value, ok := s.vehicles.Load(vin)
	if !ok {
		return nil, errors.Newf(errors.ErrVehicleNotFound, "vehicle %s not registered", vin)
	}
	return value.(*vehicleEntry), nil
}

// update 在单车锁内修改记录
func (s *VehicleStore) update(vin string, fn func(v *vehicle.Vehicle) error) error {
	e, err := s.entry(vin)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.v)
}

// Lookup 按VIN查询，返回副本
func (s *VehicleStore) Lookup(_ context.Context, vin string) (*vehicle.Vehicle, error) {
	var out *vehicle.Vehicle
	err := s.update(vin, func(v *vehicle.Vehicle) error {
		out = v.Clone()
		return nil
	})
	return out, err
}

// UpdateGPS 更新定位
func (s *VehicleStore) UpdateGPS(_ context.Context, vin string, gps vehicle.GPS) error {
	return s.update(vin, func(v *vehicle.Vehicle) error {
		v.GPS = gps
		return nil
	})
}

// UpdateEV 更新电池状态
func (s *VehicleStore) UpdateEV(_ context.Context, vin string, ev vehicle.EVState) error {
	return s.update(vin, func(v *vehicle.Vehicle) error {
		v.EV = ev
		return nil
	})
}

// UpdateTCUConfig 更新TCU配置
func (s *VehicleStore) UpdateTCUConfig(_ context.Context, vin string, cfg vehicle.TCUConfig) error {
	return s.update(vin, func(v *vehicle.Vehicle) error {
		v.TCU = cfg
		return nil
	})
}

// Command 当前命令
func (s *VehicleStore) Command(_ context.Context, vin string) (*vehicle.Command, error) {
	var out *vehicle.Command
	err := s.update(vin, func(v *vehicle.Vehicle) error {
		if v.Command != nil {
			cmd := *v.Command
			out = &cmd
		}
		return nil
	})
	return out, err
}

// IssueCommand 下发新命令
func (s *VehicleStore) IssueCommand(_ context.Context, vin string, t vehicle.CommandType) (*vehicle.Command, error) {
	var out *vehicle.Command
	err := s.update(vin, func(v *vehicle.Vehicle) error {
		if v.Command != nil && v.Command.State.Outstanding() {
			return errors.Newf(errors.ErrCommandConflict, "vehicle %s has outstanding command %s", vin, v.Command.ID)
		}
		now := s.now()
		v.Command = &vehicle.Command{
			ID:          uuid.NewString(),
			Type:        t,
			State:       vehicle.StateWaiting,
			RequestedAt: now,
			UpdatedAt:   now,
		}
		cmd := *v.Command
		out = &cmd
		return nil
	})
	return out, err
}

// CompareAndSetCommand 单车锁内比较并推进命令状态
func (s *VehicleStore) CompareAndSetCommand(_ context.Context, vin, id string, from, to vehicle.CommandState) (bool, error) {
	if !vehicle.CanTransition(from, to) {
		return false, errors.Newf(errors.ErrCommandConflict, "illegal transition %s -> %s", from, to)
	}
	swapped := false
	err := s.update(vin, func(v *vehicle.Vehicle) error {
		if v.Command == nil || v.Command.ID != id || v.Command.State != from {
			return nil
		}
		v.Command.State = to
		v.Command.UpdatedAt = s.now()
		swapped = true
		return nil
	})
	return swapped, err
}

// WaitingCommands 列出超时候选命令，按请求时间排序
func (s *VehicleStore) WaitingCommands(_ context.Context, before time.Time) ([]vehicle.PendingCommand, error) {
	return s.commandsIn(vehicle.StateWaiting, func(cmd *vehicle.Command) time.Time { return cmd.RequestedAt }, before), nil
}

// AwaitingCommands 列出等待结果超时的候选命令，按下发时间排序
func (s *VehicleStore) AwaitingCommands(_ context.Context, before time.Time) ([]vehicle.PendingCommand, error) {
	return s.commandsIn(vehicle.StateAwaitingResponse, func(cmd *vehicle.Command) time.Time { return cmd.UpdatedAt }, before), nil
}

// commandsIn 处于state且at(cmd)早于before的命令
func (s *VehicleStore) commandsIn(state vehicle.CommandState, at func(*vehicle.Command) time.Time, before time.Time) []vehicle.PendingCommand {
	var pending []vehicle.PendingCommand
	s.vehicles.Range(func(key, value interface{}) bool {
		e := value.(*vehicleEntry)
		e.mu.Lock()
		if cmd := e.v.Command; cmd != nil && cmd.State == state && at(cmd).Before(before) {
			pending = append(pending, vehicle.PendingCommand{VIN: e.v.VIN, Command: *cmd})
		}
		e.mu.Unlock()
		return true
	})
	sort.Slice(pending, func(i, j int) bool {
		return at(&pending[i].Command).Before(at(&pending[j].Command))
	})
	return pending
}

// CustomChannels 车主自定义频道
func (s *VehicleStore) CustomChannels(_ context.Context, vin string) ([]vehicle.CustomChannel, error) {
	var out []vehicle.CustomChannel
	err := s.update(vin, func(v *vehicle.Vehicle) error {
		out = append([]vehicle.CustomChannel(nil), v.CustomChannels...)
		return nil
	})
	return out, err
}
