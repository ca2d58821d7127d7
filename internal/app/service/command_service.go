package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// CommandService 远程命令下发入口（CLI与运维工具使用）
type CommandService struct {
	registry vehicle.Registry
}

// NewCommandService 创建命令服务
func NewCommandService(registry vehicle.Registry) *CommandService {
	return &CommandService{registry: registry}
}

// Issue 按名称下发命令；已有未结束命令时拒绝
func (s *CommandService) Issue(ctx context.Context, vin, name string) (*vehicle.Command, error) {
	t, ok := vehicle.ParseCommandType(name)
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidParameter, "unknown command type %q", name)
	}
	cmd, err := s.registry.IssueCommand(ctx, vin, t)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"vin":       vin,
		"commandID": cmd.ID,
		"command":   t.String(),
	}).Info("命令已创建")
	return cmd, nil
}

// Status 查询当前命令
func (s *CommandService) Status(ctx context.Context, vin string) (*vehicle.Command, error) {
	return s.registry.Command(ctx, vin)
}
