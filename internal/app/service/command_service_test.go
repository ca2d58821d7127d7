package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

func TestCommandServiceIssue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewCommandService(newStore(t, &now, "VIN1"))
	ctx := context.Background()

	cmd, err := svc.Issue(ctx, "VIN1", "ac_on")
	require.NoError(t, err)
	assert.Equal(t, vehicle.CommandACOn, cmd.Type)
	assert.Equal(t, vehicle.StateWaiting, cmd.State)
	assert.NotEmpty(t, cmd.ID, "命令应分配ID")

	status, err := svc.Status(ctx, "VIN1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, cmd.ID, status.ID)

	_, err = svc.Issue(ctx, "VIN1", "refresh")
	assert.True(t, errors.IsErrCode(err, errors.ErrCommandConflict), "未结束命令存在时应拒绝")
}

func TestCommandServiceRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewCommandService(newStore(t, &now, "VIN1"))
	ctx := context.Background()

	_, err := svc.Issue(ctx, "VIN1", "self_destruct")
	assert.True(t, errors.IsErrCode(err, errors.ErrInvalidParameter), "未知命令名应返回参数错误")

	_, err = svc.Issue(ctx, "NOPE", "refresh")
	assert.True(t, errors.IsErrCode(err, errors.ErrVehicleNotFound))

	status, err := svc.Status(ctx, "VIN1")
	require.NoError(t, err)
	assert.Nil(t, status, "没有命令时返回nil")
}
