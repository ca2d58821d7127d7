package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// 车辆哈希中的字段
const (
	fieldIdentity       = "identity"
	fieldOwner          = "owner"
	fieldAuthDisabled   = "auth_disabled"
	fieldGPS            = "gps"
	fieldEV             = "ev"
	fieldTCU            = "tcu"
	fieldCommand        = "command"
	fieldCustomChannels = "custom_channels"
)

// maxTxRetries 乐观锁事务的最大重试次数
const maxTxRetries = 16

// VehicleRegistry Redis车辆注册表。
// 每车一个哈希 {prefix}vehicle:{vin}，各字段为JSON；waiting命令另记入有序集合 {prefix}commands:waiting（score为请求时间毫秒），
// awaiting-response命令记入 {prefix}commands:awaiting（score为下发时间毫秒）。
// 命令相关的读改写使用 WATCH/MULTI，保证同一命令只有一个写入者成功
type VehicleRegistry struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ vehicle.Registry = (*VehicleRegistry)(nil)

// NewVehicleRegistry 创建Redis注册表
func NewVehicleRegistry(client redis.UniversalClient, prefix string) *VehicleRegistry {
	return &VehicleRegistry{client: client, prefix: prefix, now: time.Now}
}

// SetClock 替换时钟，测试使用
func (r *VehicleRegistry) SetClock(now func() time.Time) {
	r.now = now
}

func (r *VehicleRegistry) vehicleKey(vin string) string {
	return r.prefix + "vehicle:" + vin
}

func (r *VehicleRegistry) waitingKey() string {
	return r.prefix + "commands:waiting"
}

func (r *VehicleRegistry) awaitingKey() string {
	return r.prefix + "commands:awaiting"
}

func external(op string, err error) error {
	return errors.Wrap(errors.ErrExternalFailure, op, err)
}

func notFound(vin string) error {
	return errors.Newf(errors.ErrVehicleNotFound, "vehicle %s not found", vin)
}

// Put 写入整条车辆记录（开通与运维使用）
func (r *VehicleRegistry) Put(ctx context.Context, v *vehicle.Vehicle) error {
	values := map[string]interface{}{fieldAuthDisabled: strconv.FormatBool(v.AuthDisabled)}
	for field, obj := range map[string]interface{}{
		fieldIdentity:       v.Identity,
		fieldOwner:          v.Owner,
		fieldGPS:            v.GPS,
		fieldEV:             v.EV,
		fieldTCU:            v.TCU,
		fieldCustomChannels: v.CustomChannels,
	} {
		b, err := json.Marshal(obj)
		if err != nil {
			return err
		}
		values[field] = string(b)
	}

	key := r.vehicleKey(v.VIN)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		pipe.ZRem(ctx, r.waitingKey(), v.VIN)
		pipe.ZRem(ctx, r.awaitingKey(), v.VIN)
		if v.Command != nil {
			b, err := json.Marshal(v.Command)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, key, fieldCommand, string(b))
			switch v.Command.State {
			case vehicle.StateWaiting:
				pipe.ZAdd(ctx, r.waitingKey(), redis.Z{Score: float64(v.Command.RequestedAt.UnixMilli()), Member: v.VIN})
			case vehicle.StateAwaitingResponse:
				pipe.ZAdd(ctx, r.awaitingKey(), redis.Z{Score: float64(v.Command.UpdatedAt.UnixMilli()), Member: v.VIN})
			}
		}
		return nil
	})
	if err != nil {
		return external("put vehicle", err)
	}
	return nil
}

// Lookup 按VIN查询
func (r *VehicleRegistry) Lookup(ctx context.Context, vin string) (*vehicle.Vehicle, error) {
	fields, err := r.client.HGetAll(ctx, r.vehicleKey(vin)).Result()
	if err != nil {
		return nil, external("lookup vehicle", err)
	}
	if len(fields) == 0 {
		return nil, notFound(vin)
	}

	v := &vehicle.Vehicle{}
	decode := func(field string, dst interface{}) error {
		raw, ok := fields[field]
		if !ok || raw == "" || raw == "null" {
			return nil
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return errors.Wrap(errors.ErrExternalFailure, "decode vehicle field "+field, err)
		}
		return nil
	}
	for field, dst := range map[string]interface{}{
		fieldIdentity:       &v.Identity,
		fieldOwner:          &v.Owner,
		fieldGPS:            &v.GPS,
		fieldEV:             &v.EV,
		fieldTCU:            &v.TCU,
		fieldCommand:        &v.Command,
		fieldCustomChannels: &v.CustomChannels,
	} {
		if err := decode(field, dst); err != nil {
			return nil, err
		}
	}
	v.AuthDisabled, _ = strconv.ParseBool(fields[fieldAuthDisabled])
	if v.VIN == "" {
		v.VIN = vin
	}
	return v, nil
}

// setField 仅当车辆存在时写入一个字段
func (r *VehicleRegistry) setField(ctx context.Context, vin, field string, obj interface{}) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	key := r.vehicleKey(vin)
	return r.watch(ctx, key, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return notFound(vin)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, string(b))
			return nil
		})
		return err
	})
}

// watch 以乐观锁执行事务，键在提交前被修改时重试
func (r *VehicleRegistry) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, fn, key)
		if err == nil {
			return nil
		}
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return err
		}
		return external("redis transaction", err)
	}
	return errors.New(errors.ErrExternalFailure, "redis transaction: too many conflicts")
}

func (r *VehicleRegistry) UpdateGPS(ctx context.Context, vin string, gps vehicle.GPS) error {
	return r.setField(ctx, vin, fieldGPS, gps)
}

func (r *VehicleRegistry) UpdateEV(ctx context.Context, vin string, ev vehicle.EVState) error {
	return r.setField(ctx, vin, fieldEV, ev)
}

func (r *VehicleRegistry) UpdateTCUConfig(ctx context.Context, vin string, cfg vehicle.TCUConfig) error {
	return r.setField(ctx, vin, fieldTCU, cfg)
}

// hashReader 客户端与事务共有的读操作
type hashReader interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

// readCommand 读取当前命令，事务内调用时键已被WATCH
func readCommand(ctx context.Context, tx hashReader, key, vin string) (*vehicle.Command, error) {
	exists, err := tx.Exists(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, notFound(vin)
	}
	raw, err := tx.HGet(ctx, key, fieldCommand).Result()
	if stderrors.Is(err, redis.Nil) || raw == "" || raw == "null" {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cmd vehicle.Command
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return nil, errors.Wrap(errors.ErrExternalFailure, "decode command", err)
	}
	return &cmd, nil
}

// Command 当前命令
func (r *VehicleRegistry) Command(ctx context.Context, vin string) (*vehicle.Command, error) {
	cmd, err := readCommand(ctx, r.client, r.vehicleKey(vin), vin)
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, err
		}
		return nil, external("read command", err)
	}
	return cmd, nil
}

// IssueCommand 下发新命令
func (r *VehicleRegistry) IssueCommand(ctx context.Context, vin string, t vehicle.CommandType) (*vehicle.Command, error) {
	key := r.vehicleKey(vin)
	var issued *vehicle.Command
	err := r.watch(ctx, key, func(tx *redis.Tx) error {
		cur, err := readCommand(ctx, tx, key, vin)
		if err != nil {
			return err
		}
		if cur != nil && cur.State.Outstanding() {
			return errors.Newf(errors.ErrCommandConflict, "vehicle %s already has outstanding command %s", vin, cur.ID)
		}

		now := r.now()
		cmd := &vehicle.Command{
			ID:          uuid.New().String(),
			Type:        t,
			State:       vehicle.StateWaiting,
			RequestedAt: now,
			UpdatedAt:   now,
		}
		b, err := json.Marshal(cmd)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldCommand, string(b))
			pipe.ZAdd(ctx, r.waitingKey(), redis.Z{Score: float64(now.UnixMilli()), Member: vin})
			return nil
		})
		if err == nil {
			issued = cmd
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// CompareAndSetCommand 命令ID与状态都匹配且迁移合法时推进状态
func (r *VehicleRegistry) CompareAndSetCommand(ctx context.Context, vin, id string, from, to vehicle.CommandState) (bool, error) {
	if !vehicle.CanTransition(from, to) {
		return false, errors.Newf(errors.ErrCommandConflict, "illegal command transition %s -> %s", from, to)
	}

	key := r.vehicleKey(vin)
	won := false
	err := r.watch(ctx, key, func(tx *redis.Tx) error {
		won = false
		cur, err := readCommand(ctx, tx, key, vin)
		if err != nil {
			return err
		}
		if cur == nil || cur.ID != id || cur.State != from {
			return nil
		}

		cur.State = to
		cur.UpdatedAt = r.now()
		b, err := json.Marshal(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldCommand, string(b))
			switch from {
			case vehicle.StateWaiting:
				pipe.ZRem(ctx, r.waitingKey(), vin)
			case vehicle.StateAwaitingResponse:
				pipe.ZRem(ctx, r.awaitingKey(), vin)
			}
			if to == vehicle.StateAwaitingResponse {
				pipe.ZAdd(ctx, r.awaitingKey(), redis.Z{Score: float64(cur.UpdatedAt.UnixMilli()), Member: vin})
			}
			return nil
		})
		if err == nil {
			won = true
		}
		return err
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// WaitingCommands 请求时间早于before的waiting命令，按请求时间排序
func (r *VehicleRegistry) WaitingCommands(ctx context.Context, before time.Time) ([]vehicle.PendingCommand, error) {
	return r.indexedCommands(ctx, r.waitingKey(), vehicle.StateWaiting, before)
}

// AwaitingCommands 下发时间早于before的awaiting-response命令，按下发时间排序
func (r *VehicleRegistry) AwaitingCommands(ctx context.Context, before time.Time) ([]vehicle.PendingCommand, error) {
	return r.indexedCommands(ctx, r.awaitingKey(), vehicle.StateAwaitingResponse, before)
}

// indexedCommands 按有序集合索引列出仍处于state的命令；索引只是候选，以哈希中的命令为准
func (r *VehicleRegistry) indexedCommands(ctx context.Context, index string, state vehicle.CommandState, before time.Time) ([]vehicle.PendingCommand, error) {
	vins, err := r.client.ZRangeByScore(ctx, index, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, external("list "+string(state)+" commands", err)
	}

	out := make([]vehicle.PendingCommand, 0, len(vins))
	for _, vin := range vins {
		cmd, err := r.Command(ctx, vin)
		if err != nil {
			if errors.IsErrCode(err, errors.ErrVehicleNotFound) {
				// 车辆已删除，清理索引
				r.client.ZRem(ctx, index, vin)
				continue
			}
			return nil, err
		}
		if cmd == nil || cmd.State != state {
			continue
		}
		out = append(out, vehicle.PendingCommand{VIN: vin, Command: *cmd})
	}
	return out, nil
}

// CustomChannels 车主自定义频道
func (r *VehicleRegistry) CustomChannels(ctx context.Context, vin string) ([]vehicle.CustomChannel, error) {
	v, err := r.Lookup(ctx, vin)
	if err != nil {
		return nil, err
	}
	return v.CustomChannels, nil
}
