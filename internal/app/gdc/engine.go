// Package gdc 实现GDC二进制会话协议：身份门禁、认证、实时状态写入与远程命令生命周期。
package gdc

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/domain/gdc_protocol"
	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
	"github.com/bujia-iot/carwings-gateway/pkg/metrics"
	"github.com/bujia-iot/carwings-gateway/pkg/notification"
)

// Engine GDC会话引擎，无连接状态，可被所有连接共享
type Engine struct {
	registry vehicle.Registry
	sink     notification.Sink
	now      func() time.Time
}

// NewEngine 创建会话引擎
func NewEngine(registry vehicle.Registry, sink notification.Sink) *Engine {
	if sink == nil {
		sink = notification.NopSink{}
	}
	return &Engine{registry: registry, sink: sink, now: time.Now}
}

// SetClock 替换时钟，测试使用
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// HandleFrame 处理一帧并返回需要写回的响应。
// 任何失败都返回协议定义的失败响应，error仅用于日志与指标，不会写到线路上
func (e *Engine) HandleFrame(ctx context.Context, sess *Session, raw []byte) ([]byte, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	var packetType byte
	if len(raw) > 0 {
		packetType = raw[0]
	}

	resp, err := e.handle(ctx, sess, raw)
	if err != nil {
		resp = gdc_protocol.FailureResponse(packetType)
		metrics.GDCFramesTotal.WithLabelValues(gdc_protocol.PacketName(packetType), errors.CodeOf(err).String()).Inc()
		logger.WithFields(logrus.Fields{
			"connID":     sess.ConnID,
			"remoteAddr": sess.RemoteAddr,
			"packet":     gdc_protocol.PacketName(packetType),
			"error":      err.Error(),
		}).Warn("GDC帧处理失败")
		return resp, err
	}
	metrics.GDCFramesTotal.WithLabelValues(gdc_protocol.PacketName(packetType), "success").Inc()
	return resp, nil
}

func (e *Engine) handle(ctx context.Context, sess *Session, raw []byte) ([]byte, error) {
	logger.HexDump("GDC上行帧", gdc_protocol.RedactCredentials(raw))

	frame, err := gdc_protocol.ParseFrame(raw)
	if err != nil {
		return nil, err
	}

	v, err := e.authorize(ctx, sess, frame)
	if err != nil {
		return nil, err
	}

	// GPS块无论命令状态如何都更新位置
	if frame.GPS != nil {
		gps := vehicle.GPS{
			Lat:       int64(frame.GPS.Lat),
			Lon:       int64(frame.GPS.Lon),
			Valid:     frame.GPS.Valid,
			Home:      frame.GPS.Home,
			UpdatedAt: e.now(),
		}
		if err := e.registry.UpdateGPS(ctx, v.VIN, gps); err != nil {
			return nil, errors.Wrap(errors.ErrExternalFailure, "update gps", err)
		}
	}

	switch frame.Type {
	case gdc_protocol.PacketInit:
		return e.handleInit(ctx, v)
	case gdc_protocol.PacketData:
		return e.handleData(ctx, v, frame)
	case gdc_protocol.PacketConfig:
		return e.handleConfig(ctx, v, frame)
	}
	return nil, errors.Newf(errors.ErrMalformedInput, "unknown packet type 0x%02X", frame.Type)
}

// authorize 身份门禁与认证；通过前不发生任何注册表写入
func (e *Engine) authorize(ctx context.Context, sess *Session, frame *gdc_protocol.Frame) (*vehicle.Vehicle, error) {
	v, err := e.registry.Lookup(ctx, frame.Identity.VIN)
	if err != nil {
		if errors.IsErrCode(err, errors.ErrVehicleNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(errors.ErrExternalFailure, "lookup vehicle", err)
	}
	if !v.Identity.Matches(frame.Identity) {
		return nil, errors.Newf(errors.ErrIdentityMismatch, "identity mismatch for vin %s", frame.Identity.VIN)
	}
	if !sess.bind(ctx, v.VIN) {
		return nil, errors.Newf(errors.ErrIdentityMismatch, "connection bound to vin %s, got %s", sess.VIN(), v.VIN)
	}

	if v.AuthDisabled {
		sess.authenticate(ctx, "", nil)
		return v, nil
	}

	// CONFIG不携带凭据，只接受按当前密码认证过的连接上的CONFIG
	if frame.Type == gdc_protocol.PacketConfig {
		if !sess.verifiedAgainst(v.Owner.PasswordHash) {
			return nil, errors.New(errors.ErrAuthFailed, "config on unauthenticated connection")
		}
		return v, nil
	}

	if sess.sameCredentials(v.Owner.PasswordHash, frame.Username, frame.Password) {
		return v, nil
	}
	if !v.Owner.Verify(frame.Username, frame.Password) {
		return nil, errors.Newf(errors.ErrAuthFailed, "credentials rejected for vin %s", v.VIN)
	}
	sess.authenticate(ctx, v.Owner.PasswordHash, credentialDigest(v.Owner.PasswordHash, frame.Username, frame.Password))
	return v, nil
}

// handleInit 有waiting命令时下发对应的固定响应并推进到awaiting-response；否则回复通用失败
func (e *Engine) handleInit(ctx context.Context, v *vehicle.Vehicle) ([]byte, error) {
	generic := gdc_protocol.FailureResponse(gdc_protocol.PacketInit)

	cmd, err := e.registry.Command(ctx, v.VIN)
	if err != nil {
		return nil, errors.Wrap(errors.ErrExternalFailure, "read command", err)
	}
	if cmd == nil || cmd.State != vehicle.StateWaiting {
		return generic, nil
	}

	resp, known := gdc_protocol.CommandResponse(cmd.Type)
	to := vehicle.StateAwaitingResponse
	if !known {
		to = vehicle.StateError
	}

	won, err := e.registry.CompareAndSetCommand(ctx, v.VIN, cmd.ID, vehicle.StateWaiting, to)
	if err != nil {
		return nil, errors.Wrap(errors.ErrExternalFailure, "transition command", err)
	}
	if !won {
		// 扫描器已判定超时，或命令已被替换
		logger.WithFields(logrus.Fields{
			"vin":       v.VIN,
			"commandID": cmd.ID,
		}).Info("命令状态已变化，INIT按无命令处理")
		return generic, nil
	}
	metrics.CommandTransitionsTotal.WithLabelValues(string(vehicle.StateWaiting), string(to)).Inc()

	fields := logrus.Fields{
		"vin":       v.VIN,
		"commandID": cmd.ID,
		"command":   cmd.Type.String(),
		"state":     string(to),
	}
	if !known {
		logger.WithFields(fields).Warn("未知命令类型，命令置为error")
		return generic, nil
	}
	logger.WithFields(fields).Info("命令已下发")
	return resp, nil
}

// resolvers 上报包体可完成的命令类型
var resolvers = map[byte][]vehicle.CommandType{
	gdc_protocol.BodyStatus:       {vehicle.CommandRefresh, vehicle.CommandLocate},
	gdc_protocol.BodyACResult:     {vehicle.CommandACOn},
	gdc_protocol.BodyRemoteStop:   {vehicle.CommandACOff},
	gdc_protocol.BodyChargeResult: {vehicle.CommandChargeStart},
}

func (e *Engine) handleData(ctx context.Context, v *vehicle.Vehicle, frame *gdc_protocol.Frame) ([]byte, error) {
	ev := *frame.EV
	ev.UpdatedAt = e.now()
	if err := e.registry.UpdateEV(ctx, v.VIN, ev); err != nil {
		return nil, errors.Wrap(errors.ErrExternalFailure, "update ev state", err)
	}

	commandID, err := e.resolveCommand(ctx, v.VIN, frame)
	if err != nil {
		return nil, err
	}

	if gdc_protocol.IsAlertBody(frame.BodyType) {
		e.alert(ctx, gdc_protocol.BodyName(frame.BodyType), v.VIN, commandID)
	}
	switch frame.BodyType {
	case gdc_protocol.BodyChargeStop:
		e.notifyOwner(ctx, v, "Charging finished",
			fmt.Sprintf("Your vehicle has finished charging. Battery is at %d%%.", ev.SOC))
	case gdc_protocol.BodyCableReminder:
		e.notifyOwner(ctx, v, "Charging cable not connected",
			"Your vehicle is not plugged in. Connect the charging cable to charge.")
	}

	return gdc_protocol.SuccessResponse(gdc_protocol.PacketData), nil
}

// resolveCommand 用结果类包体完成awaiting-response的命令，返回被完成的命令ID
func (e *Engine) resolveCommand(ctx context.Context, vin string, frame *gdc_protocol.Frame) (string, error) {
	types, ok := resolvers[frame.BodyType]
	if !ok {
		return "", nil
	}
	cmd, err := e.registry.Command(ctx, vin)
	if err != nil {
		return "", errors.Wrap(errors.ErrExternalFailure, "read command", err)
	}
	if cmd == nil || cmd.State != vehicle.StateAwaitingResponse || !containsType(types, cmd.Type) {
		return "", nil
	}

	to := vehicle.StateSuccess
	if frame.HasResult && frame.Result != 0 {
		to = vehicle.StateError
	}
	won, err := e.registry.CompareAndSetCommand(ctx, vin, cmd.ID, vehicle.StateAwaitingResponse, to)
	if err != nil {
		return "", errors.Wrap(errors.ErrExternalFailure, "transition command", err)
	}
	if !won {
		return "", nil
	}
	metrics.CommandTransitionsTotal.WithLabelValues(string(vehicle.StateAwaitingResponse), string(to)).Inc()
	logger.WithFields(logrus.Fields{
		"vin":       vin,
		"commandID": cmd.ID,
		"command":   cmd.Type.String(),
		"state":     string(to),
	}).Info("命令已完成")
	return cmd.ID, nil
}

func containsType(types []vehicle.CommandType, t vehicle.CommandType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (e *Engine) handleConfig(ctx context.Context, v *vehicle.Vehicle, frame *gdc_protocol.Frame) ([]byte, error) {
	cfg := *frame.Config
	cfg.UpdatedAt = e.now()
	if err := e.registry.UpdateTCUConfig(ctx, v.VIN, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrExternalFailure, "update tcu config", err)
	}
	return gdc_protocol.SuccessResponse(gdc_protocol.PacketConfig), nil
}

// alert 告警投递失败只记录日志
func (e *Engine) alert(ctx context.Context, eventType, vin, commandID string) {
	if err := e.sink.Alert(ctx, eventType, vin, commandID); err != nil {
		logger.WithFields(logrus.Fields{
			"vin":   vin,
			"event": eventType,
			"error": err.Error(),
		}).Warn("告警投递失败")
	}
}

func (e *Engine) notifyOwner(ctx context.Context, v *vehicle.Vehicle, subject, message string) {
	owner := v.Owner.Email
	if owner == "" {
		owner = v.Owner.Username
	}
	if owner == "" {
		return
	}
	if err := e.sink.NotifyOwner(ctx, v.VIN, owner, subject, message); err != nil {
		logger.WithFields(logrus.Fields{
			"vin":   v.VIN,
			"error": err.Error(),
		}).Warn("车主通知投递失败")
	}
}
