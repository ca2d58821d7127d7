package gdc

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bujia-iot/carwings-gateway/internal/domain/gdc_protocol"
	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
	"github.com/bujia-iot/carwings-gateway/pkg/storage"
)

const testVIN = "SJNFAAZE0U6012345"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sinkCall struct {
	kind      string
	vin       string
	commandID string
	owner     string
	subject   string
}

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *recordingSink) Alert(_ context.Context, eventType, vin, commandID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{kind: eventType, vin: vin, commandID: commandID})
	return nil
}

func (s *recordingSink) NotifyOwner(_ context.Context, vin, owner, subject, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{kind: "owner", vin: vin, owner: owner, subject: subject})
	return nil
}

type fixture struct {
	store   *storage.VehicleStore
	sink    *recordingSink
	engine  *Engine
	builder gdc_protocol.FrameBuilder
}

func identity(vin string) vehicle.Identity {
	return vehicle.Identity{VIN: vin, TCUModel: "GDC-2011", TCUSerial: "U12345", ICCID: "89810012345678901234"}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	store := storage.NewVehicleStore()
	store.SetClock(func() time.Time { return testNow })
	store.Put(&vehicle.Vehicle{
		Identity: identity(testVIN),
		Owner:    vehicle.Owner{Username: "alice", PasswordHash: string(hash), Email: "alice@example.com"},
	})

	sink := &recordingSink{}
	engine := NewEngine(store, sink)
	engine.SetClock(func() time.Time { return testNow })

	return &fixture{
		store:  store,
		sink:   sink,
		engine: engine,
		builder: gdc_protocol.FrameBuilder{
			Identity:        identity(testVIN),
			SoftwareVersion: "2.01",
			Username:        "alice",
			Password:        "secret",
		},
	}
}

func (f *fixture) lookup(t *testing.T) *vehicle.Vehicle {
	t.Helper()
	v, err := f.store.Lookup(context.Background(), testVIN)
	require.NoError(t, err)
	return v
}

var genericInitFailure = []byte{gdc_protocol.RespInit, gdc_protocol.StatusFailure, 0, 0, 0, 0, 0, 0}

func TestInitWithoutCommand(t *testing.T) {
	f := newFixture(t)
	sess := NewSession(1, "127.0.0.1:5000")
	gps := &gdc_protocol.GPSFix{Lat: 64800000, Lon: 250560000, Valid: true}

	resp, err := f.engine.HandleFrame(context.Background(), sess, f.builder.Init(gps))
	require.NoError(t, err)
	assert.Equal(t, genericInitFailure, resp, "无命令时INIT也回复通用失败")
	assert.True(t, sess.Authenticated())
	assert.Equal(t, testVIN, sess.VIN())

	v := f.lookup(t)
	assert.Equal(t, int64(64800000), v.GPS.Lat)
	assert.True(t, v.GPS.Valid)
	assert.Equal(t, testNow, v.GPS.UpdatedAt)
}

func TestInitDeliversCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmd, err := f.store.IssueCommand(ctx, testVIN, vehicle.CommandACOn)
	require.NoError(t, err)

	sess := NewSession(1, "")
	resp, err := f.engine.HandleFrame(ctx, sess, f.builder.Init(nil))
	require.NoError(t, err)
	assert.Equal(t, []byte{gdc_protocol.RespInit, gdc_protocol.StatusSuccess, byte(vehicle.CommandACOn), 0, 0, 0, 0, 0}, resp)

	got := f.lookup(t).Command
	require.NotNil(t, got)
	assert.Equal(t, cmd.ID, got.ID)
	assert.Equal(t, vehicle.StateAwaitingResponse, got.State)

	// 命令已下发，再次INIT视为无命令
	resp, err = f.engine.HandleFrame(ctx, sess, f.builder.Init(nil))
	require.NoError(t, err)
	assert.Equal(t, genericInitFailure, resp)
}

func TestInitUnknownCommandType(t *testing.T) {
	f := newFixture(t)
	v := f.lookup(t)
	v.Command = &vehicle.Command{ID: "c-9", Type: vehicle.CommandType(9), State: vehicle.StateWaiting, RequestedAt: testNow}
	f.store.Put(v)

	resp, err := f.engine.HandleFrame(context.Background(), NewSession(1, ""), f.builder.Init(nil))
	require.NoError(t, err)
	assert.Equal(t, genericInitFailure, resp)
	assert.Equal(t, vehicle.StateError, f.lookup(t).Command.State)
}

func TestInitAfterTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmd, err := f.store.IssueCommand(ctx, testVIN, vehicle.CommandRefresh)
	require.NoError(t, err)
	won, err := f.store.CompareAndSetCommand(ctx, testVIN, cmd.ID, vehicle.StateWaiting, vehicle.StateTimeout)
	require.NoError(t, err)
	require.True(t, won)

	resp, err := f.engine.HandleFrame(ctx, NewSession(1, ""), f.builder.Init(nil))
	require.NoError(t, err)
	assert.Equal(t, genericInitFailure, resp)
	assert.Equal(t, vehicle.StateTimeout, f.lookup(t).Command.State, "超时命令不能被INIT重新打开")
}

func TestIdentityGate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *gdc_protocol.FrameBuilder)
		code   errors.ErrorCode
	}{
		{"未知VIN", func(b *gdc_protocol.FrameBuilder) { b.Identity.VIN = "UNKNOWNVIN0000000" }, errors.ErrVehicleNotFound},
		{"ICCID不一致", func(b *gdc_protocol.FrameBuilder) { b.Identity.ICCID = "89810000000000000000" }, errors.ErrIdentityMismatch},
		{"TCU序列号不一致", func(b *gdc_protocol.FrameBuilder) { b.Identity.TCUSerial = "U99999" }, errors.ErrIdentityMismatch},
		{"密码错误", func(b *gdc_protocol.FrameBuilder) { b.Password = "wrong" }, errors.ErrAuthFailed},
		{"用户名错误", func(b *gdc_protocol.FrameBuilder) { b.Username = "mallory" }, errors.ErrAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			_, err := f.store.IssueCommand(ctx, testVIN, vehicle.CommandRefresh)
			require.NoError(t, err)

			b := f.builder
			tt.mutate(&b)
			gps := &gdc_protocol.GPSFix{Lat: 1, Lon: 2, Valid: true}
			resp, err := f.engine.HandleFrame(ctx, NewSession(1, ""), b.Data(gdc_protocol.BodyStatus, gps, vehicle.EVState{SOC: 50}, 0))

			require.Error(t, err)
			assert.True(t, errors.IsErrCode(err, tt.code), "错误码不符: %v", err)
			assert.Equal(t, []byte{gdc_protocol.RespData, gdc_protocol.StatusFailure, 0, 0, 0, 0, 0, 0}, resp)

			// 不发生任何状态写入
			v := f.lookup(t)
			assert.False(t, v.GPS.Valid)
			assert.Zero(t, v.EV.SOC)
			assert.Equal(t, vehicle.StateWaiting, v.Command.State)
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	f := newFixture(t)
	v := f.lookup(t)
	v.AuthDisabled = true
	f.store.Put(v)

	b := f.builder
	b.Password = "anything"
	sess := NewSession(1, "")
	_, err := f.engine.HandleFrame(context.Background(), sess, b.Data(gdc_protocol.BodyStatus, nil, vehicle.EVState{SOC: 77}, 0))
	require.NoError(t, err)
	assert.True(t, sess.Authenticated())
	assert.Equal(t, uint8(77), f.lookup(t).EV.SOC)
}

func TestSessionBindsFirstVIN(t *testing.T) {
	f := newFixture(t)
	other := "SJNFAAZE0U6099999"
	f.store.Put(&vehicle.Vehicle{Identity: identity(other), AuthDisabled: true})

	sess := NewSession(1, "")
	_, err := f.engine.HandleFrame(context.Background(), sess, f.builder.Init(nil))
	require.NoError(t, err)

	b := f.builder
	b.Identity = identity(other)
	_, err = f.engine.HandleFrame(context.Background(), sess, b.Data(gdc_protocol.BodyStatus, nil, vehicle.EVState{SOC: 10}, 0))
	assert.True(t, errors.IsErrCode(err, errors.ErrIdentityMismatch))

	v, err := f.store.Lookup(context.Background(), other)
	require.NoError(t, err)
	assert.Zero(t, v.EV.SOC, "其他VIN的状态不应被修改")
}

func TestSessionRechecksChangedCredentials(t *testing.T) {
	f := newFixture(t)
	sess := NewSession(1, "")
	_, err := f.engine.HandleFrame(context.Background(), sess, f.builder.Init(nil))
	require.NoError(t, err)

	b := f.builder
	b.Password = "wrong"
	_, err = f.engine.HandleFrame(context.Background(), sess, b.Init(nil))
	assert.True(t, errors.IsErrCode(err, errors.ErrAuthFailed), "已认证连接上的错误凭据仍需拒绝")
}

func TestPasswordChangeInvalidatesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(1, "")
	_, err := f.engine.HandleFrame(ctx, sess, f.builder.Init(nil))
	require.NoError(t, err)
	_, err = f.engine.HandleFrame(ctx, sess, f.builder.Init(nil))
	require.NoError(t, err, "同一凭据在连接上可重复使用")

	hash, err := bcrypt.GenerateFromPassword([]byte("rotated"), bcrypt.MinCost)
	require.NoError(t, err)
	v := f.lookup(t)
	v.Owner.PasswordHash = string(hash)
	f.store.Put(v)

	_, err = f.engine.HandleFrame(ctx, sess, f.builder.Init(nil))
	assert.True(t, errors.IsErrCode(err, errors.ErrAuthFailed), "改密后旧密码不再有效")

	cfg := vehicle.TCUConfig{APN: "carwings.example"}
	_, err = f.engine.HandleFrame(ctx, sess, f.builder.Config(cfg))
	assert.True(t, errors.IsErrCode(err, errors.ErrAuthFailed), "改密后连接上的CONFIG也需重新认证")
	assert.Empty(t, f.lookup(t).TCU.APN)

	b := f.builder
	b.Password = "rotated"
	_, err = f.engine.HandleFrame(ctx, sess, b.Init(nil))
	require.NoError(t, err, "新密码可重新认证")
	_, err = f.engine.HandleFrame(ctx, sess, f.builder.Config(cfg))
	require.NoError(t, err)
	assert.Equal(t, "carwings.example", f.lookup(t).TCU.APN)
}

func TestDataResolvesCommand(t *testing.T) {
	tests := []struct {
		name    string
		command vehicle.CommandType
		body    byte
		result  byte
		state   vehicle.CommandState
	}{
		{"空调开启成功", vehicle.CommandACOn, gdc_protocol.BodyACResult, 0, vehicle.StateSuccess},
		{"空调开启失败", vehicle.CommandACOn, gdc_protocol.BodyACResult, 1, vehicle.StateError},
		{"空调关闭", vehicle.CommandACOff, gdc_protocol.BodyRemoteStop, 0, vehicle.StateSuccess},
		{"开始充电", vehicle.CommandChargeStart, gdc_protocol.BodyChargeResult, 2, vehicle.StateError},
		{"刷新", vehicle.CommandRefresh, gdc_protocol.BodyStatus, 0, vehicle.StateSuccess},
		{"类型不匹配", vehicle.CommandACOn, gdc_protocol.BodyChargeResult, 0, vehicle.StateAwaitingResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			cmd, err := f.store.IssueCommand(ctx, testVIN, tt.command)
			require.NoError(t, err)

			sess := NewSession(1, "")
			_, err = f.engine.HandleFrame(ctx, sess, f.builder.Init(nil))
			require.NoError(t, err)

			resp, err := f.engine.HandleFrame(ctx, sess, f.builder.Data(tt.body, nil, vehicle.EVState{SOC: 60}, tt.result))
			require.NoError(t, err)
			assert.Equal(t, gdc_protocol.SuccessResponse(gdc_protocol.PacketData), resp)
			assert.Equal(t, tt.state, f.lookup(t).Command.State)

			if gdc_protocol.IsAlertBody(tt.body) {
				require.NotEmpty(t, f.sink.calls)
				last := f.sink.calls[len(f.sink.calls)-1]
				assert.Equal(t, gdc_protocol.BodyName(tt.body), last.kind)
				if tt.state != vehicle.StateAwaitingResponse {
					assert.Equal(t, cmd.ID, last.commandID)
				} else {
					assert.Empty(t, last.commandID)
				}
			}
		})
	}
}

func TestDataAlertsAndOwnerNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := NewSession(1, "")

	ev := vehicle.EVState{Plugged: true, SOC: 100}
	_, err := f.engine.HandleFrame(ctx, sess, f.builder.Data(gdc_protocol.BodyStatus, nil, ev, 0))
	require.NoError(t, err)
	assert.Empty(t, f.sink.calls, "状态上报不产生告警")

	_, err = f.engine.HandleFrame(ctx, sess, f.builder.Data(gdc_protocol.BodyChargeStart, nil, ev, 0))
	require.NoError(t, err)
	_, err = f.engine.HandleFrame(ctx, sess, f.builder.Data(gdc_protocol.BodyChargeStop, nil, ev, 0))
	require.NoError(t, err)
	_, err = f.engine.HandleFrame(ctx, sess, f.builder.Data(gdc_protocol.BodyCableReminder, nil, ev, 0))
	require.NoError(t, err)

	kinds := make([]string, 0, len(f.sink.calls))
	for _, c := range f.sink.calls {
		kinds = append(kinds, c.kind)
	}
	assert.Equal(t, []string{"charge_start", "charge_stop", "owner", "cable_reminder", "owner"}, kinds)
	assert.Equal(t, "alice@example.com", f.sink.calls[2].owner)
	assert.Equal(t, "Charging finished", f.sink.calls[2].subject)

	v := f.lookup(t)
	assert.True(t, v.EV.Plugged)
	assert.Equal(t, uint8(100), v.EV.SOC)
	assert.Equal(t, testNow, v.EV.UpdatedAt)
}

func TestConfigRequiresAuthenticatedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := vehicle.TCUConfig{APN: "carwings.example", DNS1: "10.0.0.1", ServerURL: "http://gw.example/"}
	frame := f.builder.Config(cfg)

	sess := NewSession(1, "")
	resp, err := f.engine.HandleFrame(ctx, sess, frame)
	assert.True(t, errors.IsErrCode(err, errors.ErrAuthFailed))
	assert.Equal(t, []byte{gdc_protocol.RespConfig, gdc_protocol.StatusFailure, 0, 0, 0, 0, 0, 0}, resp)
	assert.Empty(t, f.lookup(t).TCU.APN)

	_, err = f.engine.HandleFrame(ctx, sess, f.builder.Init(nil))
	require.NoError(t, err)
	resp, err = f.engine.HandleFrame(ctx, sess, frame)
	require.NoError(t, err)
	assert.Equal(t, gdc_protocol.SuccessResponse(gdc_protocol.PacketConfig), resp)

	tcu := f.lookup(t).TCU
	assert.Equal(t, "carwings.example", tcu.APN)
	assert.Equal(t, "10.0.0.1", tcu.DNS1)
	assert.Equal(t, "http://gw.example/", tcu.ServerURL)
	assert.Equal(t, "2.01", tcu.SoftwareVersion)
}

func TestMalformedFrames(t *testing.T) {
	f := newFixture(t)
	sess := NewSession(1, "")

	tests := []struct {
		name string
		raw  []byte
		resp byte
	}{
		{"空帧", nil, gdc_protocol.RespInit},
		{"未知类型", []byte{0x09, 0x00, 0x00}, gdc_protocol.RespInit},
		{"INIT过短", f.builder.Init(nil)[:100], gdc_protocol.RespInit},
		{"CONFIG长度错误", f.builder.Config(vehicle.TCUConfig{})[:596], gdc_protocol.RespConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.engine.HandleFrame(context.Background(), sess, tt.raw)
			require.Error(t, err)
			assert.Equal(t, []byte{tt.resp, gdc_protocol.StatusFailure, 0, 0, 0, 0, 0, 0}, resp)
		})
	}
	assert.True(t, sess.Is(StateUnidentified), "畸形帧不改变会话状态")
}

func TestHexDumpOmitsCredentials(t *testing.T) {
	require.NoError(t, logger.Init(&config.LoggerConfig{Level: "debug", EnableConsole: true, LogHexDump: true}))
	t.Cleanup(func() {
		_ = logger.Init(&config.LoggerConfig{Level: "info", EnableConsole: true})
	})
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	f := newFixture(t)
	_, err := f.engine.HandleFrame(context.Background(), NewSession(1, ""), f.builder.Init(nil))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "GDC上行帧")
	assert.NotContains(t, out, "736563726574", "调试输出不应包含密码")
	assert.NotContains(t, out, "616C696365", "调试输出不应包含用户名")
}
