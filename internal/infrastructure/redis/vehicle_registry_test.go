package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

func newTestRegistry(t *testing.T) (*VehicleRegistry, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := NewVehicleRegistry(client, "test:")
	reg.SetClock(func() time.Time { return now })
	return reg, mr, &now
}

func seed(t *testing.T, reg *VehicleRegistry, vin string) {
	t.Helper()
	require.NoError(t, reg.Put(context.Background(), &vehicle.Vehicle{
		Identity: vehicle.Identity{VIN: vin, TCUModel: "GDC", TCUSerial: "U1", ICCID: "8981"},
		Owner:    vehicle.Owner{Username: "alice", Email: "alice@example.com"},
		CustomChannels: []vehicle.CustomChannel{
			{Name: "home", Title: "Home", Lat: 35.6, Lon: 139.7},
		},
	}))
}

func TestRegistryLookup(t *testing.T) {
	reg, mr, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Lookup(ctx, "missing")
	assert.True(t, errors.IsErrCode(err, errors.ErrVehicleNotFound))

	seed(t, reg, "VIN1")
	v, err := reg.Lookup(ctx, "VIN1")
	require.NoError(t, err)
	assert.Equal(t, "U1", v.TCUSerial)
	assert.Equal(t, "alice", v.Owner.Username)
	assert.False(t, v.AuthDisabled)
	assert.Nil(t, v.Command)
	require.Len(t, v.CustomChannels, 1)

	channels, err := reg.CustomChannels(ctx, "VIN1")
	require.NoError(t, err)
	assert.Equal(t, "Home", channels[0].Title)

	assert.True(t, mr.Exists("test:vehicle:VIN1"))
}

func TestRegistryUpdates(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()
	seed(t, reg, "VIN1")

	require.NoError(t, reg.UpdateGPS(ctx, "VIN1", vehicle.GPS{Lat: 100, Lon: 200, Valid: true}))
	require.NoError(t, reg.UpdateEV(ctx, "VIN1", vehicle.EVState{SOC: 88, Charging: true}))
	require.NoError(t, reg.UpdateTCUConfig(ctx, "VIN1", vehicle.TCUConfig{APN: "apn.example"}))

	v, err := reg.Lookup(ctx, "VIN1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), v.GPS.Lon)
	assert.Equal(t, uint8(88), v.EV.SOC)
	assert.True(t, v.EV.Charging)
	assert.Equal(t, "apn.example", v.TCU.APN)

	err = reg.UpdateGPS(ctx, "missing", vehicle.GPS{})
	assert.True(t, errors.IsErrCode(err, errors.ErrVehicleNotFound), "不存在的车辆不应被创建")
	_, err = reg.Lookup(ctx, "missing")
	assert.Error(t, err)
}

func TestRegistryCommandLifecycle(t *testing.T) {
	reg, _, now := newTestRegistry(t)
	ctx := context.Background()
	seed(t, reg, "VIN1")

	cmd, err := reg.IssueCommand(ctx, "VIN1", vehicle.CommandChargeStart)
	require.NoError(t, err)
	assert.Equal(t, vehicle.StateWaiting, cmd.State)

	_, err = reg.IssueCommand(ctx, "VIN1", vehicle.CommandRefresh)
	assert.True(t, errors.IsErrCode(err, errors.ErrCommandConflict))

	pending, err := reg.WaitingCommands(ctx, now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, cmd.ID, pending[0].Command.ID)

	pending, err = reg.WaitingCommands(ctx, *now)
	require.NoError(t, err)
	assert.Empty(t, pending, "截止时间是开区间")

	won, err := reg.CompareAndSetCommand(ctx, "VIN1", "other-id", vehicle.StateWaiting, vehicle.StateAwaitingResponse)
	require.NoError(t, err)
	assert.False(t, won, "命令ID不匹配")

	won, err = reg.CompareAndSetCommand(ctx, "VIN1", cmd.ID, vehicle.StateWaiting, vehicle.StateAwaitingResponse)
	require.NoError(t, err)
	assert.True(t, won)

	pending, err = reg.WaitingCommands(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, pending, "离开waiting后应从索引移除")

	won, err = reg.CompareAndSetCommand(ctx, "VIN1", cmd.ID, vehicle.StateWaiting, vehicle.StateTimeout)
	require.NoError(t, err)
	assert.False(t, won)

	_, err = reg.CompareAndSetCommand(ctx, "VIN1", cmd.ID, vehicle.StateSuccess, vehicle.StateWaiting)
	assert.True(t, errors.IsErrCode(err, errors.ErrCommandConflict), "非法迁移")

	won, err = reg.CompareAndSetCommand(ctx, "VIN1", cmd.ID, vehicle.StateAwaitingResponse, vehicle.StateSuccess)
	require.NoError(t, err)
	assert.True(t, won)

	got, err := reg.Command(ctx, "VIN1")
	require.NoError(t, err)
	assert.Equal(t, vehicle.StateSuccess, got.State)

	// 终态后可以再次下发
	_, err = reg.IssueCommand(ctx, "VIN1", vehicle.CommandRefresh)
	assert.NoError(t, err)
}

func TestRegistryConcurrentCAS(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()
	seed(t, reg, "VIN1")

	cmd, err := reg.IssueCommand(ctx, "VIN1", vehicle.CommandACOn)
	require.NoError(t, err)

	targets := []vehicle.CommandState{vehicle.StateAwaitingResponse, vehicle.StateTimeout, vehicle.StateError, vehicle.StateTimeout}
	results := make([]bool, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to vehicle.CommandState) {
			defer wg.Done()
			won, err := reg.CompareAndSetCommand(ctx, "VIN1", cmd.ID, vehicle.StateWaiting, to)
			assert.NoError(t, err)
			results[i] = won
		}(i, to)
	}
	wg.Wait()

	winners := 0
	for _, won := range results {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "同一命令只能有一个写入者成功")
}

func TestRegistryPutWaitingCommand(t *testing.T) {
	reg, _, now := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Put(ctx, &vehicle.Vehicle{
		Identity: vehicle.Identity{VIN: "VIN2"},
		Command:  &vehicle.Command{ID: "c1", Type: vehicle.CommandLocate, State: vehicle.StateWaiting, RequestedAt: now.Add(-time.Hour)},
	}))

	pending, err := reg.WaitingCommands(ctx, *now)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "VIN2", pending[0].VIN)
	assert.Equal(t, vehicle.CommandLocate, pending[0].Command.Type)
}

func TestRegistryAwaitingCommandExpires(t *testing.T) {
	reg, mr, now := newTestRegistry(t)
	ctx := context.Background()
	seed(t, reg, "VIN1")

	cmd, err := reg.IssueCommand(ctx, "VIN1", vehicle.CommandACOff)
	require.NoError(t, err)
	*now = now.Add(time.Minute)
	won, err := reg.CompareAndSetCommand(ctx, "VIN1", cmd.ID, vehicle.StateWaiting, vehicle.StateAwaitingResponse)
	require.NoError(t, err)
	require.True(t, won)

	pending, err := reg.AwaitingCommands(ctx, *now)
	require.NoError(t, err)
	assert.Empty(t, pending, "截止时间是开区间")

	*now = now.Add(30 * 24 * time.Hour)
	pending, err = reg.AwaitingCommands(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, cmd.ID, pending[0].Command.ID)

	_, err = reg.IssueCommand(ctx, "VIN1", vehicle.CommandRefresh)
	assert.True(t, errors.IsErrCode(err, errors.ErrCommandConflict))

	won, err = reg.CompareAndSetCommand(ctx, "VIN1", cmd.ID, vehicle.StateAwaitingResponse, vehicle.StateTimeout)
	require.NoError(t, err)
	require.True(t, won)

	members, err := mr.ZMembers("test:commands:awaiting")
	if err == nil {
		assert.Empty(t, members, "离开awaiting-response后应从索引移除")
	}

	_, err = reg.IssueCommand(ctx, "VIN1", vehicle.CommandRefresh)
	assert.NoError(t, err, "超时后应能下发新命令")
}
