package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/pkg/metrics"
	"github.com/bujia-iot/carwings-gateway/pkg/notification"
)

// CommandTimeoutSweeper 周期性地将超时未取走的waiting命令、以及下发后迟迟没有结果上报的
// awaiting-response命令置为timeout。
// 与INIT、DATA处理共用注册表的CompareAndSetCommand，同一命令只有一方能推进
type CommandTimeoutSweeper struct {
	registry        vehicle.Registry
	sink            notification.Sink
	timeout         time.Duration
	responseTimeout time.Duration
	interval        time.Duration
	now             func() time.Time
}

// NewCommandTimeoutSweeper 创建超时扫描器
func NewCommandTimeoutSweeper(registry vehicle.Registry, sink notification.Sink, timeout, responseTimeout, interval time.Duration) *CommandTimeoutSweeper {
	if sink == nil {
		sink = notification.NopSink{}
	}
	return &CommandTimeoutSweeper{
		registry:        registry,
		sink:            sink,
		timeout:         timeout,
		responseTimeout: responseTimeout,
		interval:        interval,
		now:             time.Now,
	}
}

// SetClock 替换时钟，测试使用
func (s *CommandTimeoutSweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Run 按固定间隔扫描直到ctx结束
func (s *CommandTimeoutSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.WithFields(logrus.Fields{
		"timeout":         s.timeout.String(),
		"responseTimeout": s.responseTimeout.String(),
		"interval":        s.interval.String(),
	}).Info("命令超时扫描器已启动")

	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				logger.WithField("error", err.Error()).Error("命令超时扫描失败")
			}
		case <-ctx.Done():
			logger.Info("命令超时扫描器已停止")
			return nil
		}
	}
}

// SweepOnce 执行一次扫描，返回本次置为timeout的命令数
func (s *CommandTimeoutSweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	waiting, err := s.registry.WaitingCommands(ctx, now.Add(-s.timeout))
	if err != nil {
		return 0, fmt.Errorf("list waiting commands: %w", err)
	}
	expired := s.expire(ctx, waiting, vehicle.StateWaiting)

	awaiting, err := s.registry.AwaitingCommands(ctx, now.Add(-s.responseTimeout))
	if err != nil {
		return expired, fmt.Errorf("list awaiting commands: %w", err)
	}
	return expired + s.expire(ctx, awaiting, vehicle.StateAwaitingResponse), nil
}

// expire 将候选命令从from置为timeout，返回成功数
func (s *CommandTimeoutSweeper) expire(ctx context.Context, pending []vehicle.PendingCommand, from vehicle.CommandState) int {
	expired := 0
	for _, p := range pending {
		won, err := s.registry.CompareAndSetCommand(ctx, p.VIN, p.Command.ID, from, vehicle.StateTimeout)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"vin":       p.VIN,
				"commandID": p.Command.ID,
				"error":     err.Error(),
			}).Warn("命令超时状态写入失败")
			continue
		}
		if !won {
			// INIT或结果上报已先一步推进命令
			continue
		}

		expired++
		metrics.CommandTimeoutsTotal.Inc()
		metrics.CommandTransitionsTotal.WithLabelValues(string(from), string(vehicle.StateTimeout)).Inc()
		logger.WithFields(logrus.Fields{
			"vin":       p.VIN,
			"commandID": p.Command.ID,
			"command":   p.Command.Type.String(),
			"from":      string(from),
			"age":       s.now().Sub(p.Command.RequestedAt).String(),
		}).Info("命令已超时")

		s.emit(ctx, p, from)
	}
	return expired
}

// emit 超时告警与车主通知，失败只记录日志
func (s *CommandTimeoutSweeper) emit(ctx context.Context, p vehicle.PendingCommand, from vehicle.CommandState) {
	if err := s.sink.Alert(ctx, notification.EventTypeCommandTimeout, p.VIN, p.Command.ID); err != nil {
		logger.WithField("vin", p.VIN).WithField("error", err.Error()).Warn("超时告警投递失败")
	}

	v, err := s.registry.Lookup(ctx, p.VIN)
	if err != nil {
		return
	}
	owner := v.Owner.Email
	if owner == "" {
		owner = v.Owner.Username
	}
	if owner == "" {
		return
	}
	msg := fmt.Sprintf("Your vehicle did not respond to the %s request in time.", p.Command.Type.String())
	if from == vehicle.StateAwaitingResponse {
		msg = fmt.Sprintf("Your vehicle received the %s request but did not report a result.", p.Command.Type.String())
	}
	if err := s.sink.NotifyOwner(ctx, p.VIN, owner, "Remote command timed out", msg); err != nil {
		logger.WithField("vin", p.VIN).WithField("error", err.Error()).Warn("超时车主通知投递失败")
	}
}
