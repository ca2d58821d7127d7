// Package carwings 实现CARWINGS信封协议的应用分发：AP认证、AutoDJ频道、充电桩同步及占位应用。
package carwings

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/domain/carwings"
	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/pkg/codec"
	"github.com/bujia-iot/carwings-gateway/pkg/diagnostics"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
	"github.com/bujia-iot/carwings-gateway/pkg/metrics"
)

// Request 一次已解码的请求，交给应用处理器
type Request struct {
	XML *carwings.Request
	// Uploads XML之后的上传文件
	Uploads []codec.File
	// Vehicle 注册表中的车辆，未注册时为nil
	Vehicle *vehicle.Vehicle
	// Authenticated 身份与凭据均通过
	Authenticated bool
	Now           time.Time
}

// VIN 请求中的车辆VIN
func (r *Request) VIN() string {
	return r.XML.Auth.VIN
}

// Upload 第一个上传文件的内容，没有时返回nil
func (r *Request) Upload() []byte {
	if len(r.Uploads) == 0 {
		return nil
	}
	return r.Uploads[0].Content
}

// Handler 应用处理器，返回的文件按顺序跟在响应XML之后
type Handler interface {
	Handle(ctx context.Context, req *Request) ([]codec.File, error)
}

// HandlerFunc 函数形式的处理器
type HandlerFunc func(ctx context.Context, req *Request) ([]codec.File, error)

func (f HandlerFunc) Handle(ctx context.Context, req *Request) ([]codec.File, error) {
	return f(ctx, req)
}

// Engine CARWINGS请求引擎，无会话状态，可并发调用
type Engine struct {
	registry vehicle.Registry
	handlers map[string]Handler
	timing   int
	now      func() time.Time
}

// NewEngine 创建引擎，应用分发表在此一次性确定
func NewEngine(registry vehicle.Registry, directory carwings.ChargerDirectory, diag diagnostics.Sink, cfg config.CarwingsConfig) *Engine {
	if directory == nil {
		directory = carwings.EmptyDirectory{}
	}
	if diag == nil {
		diag = diagnostics.NopSink{}
	}
	e := &Engine{
		registry: registry,
		timing:   cfg.TimingSeconds,
		now:      time.Now,
	}
	e.handlers = map[string]Handler{
		carwings.AppAuth:    newAuthHandler(cfg.AuthFailureMessage),
		carwings.AppAutoDJ:  newAutoDJHandler(registry, directory, diag, cfg),
		carwings.AppCharger: newChargerHandler(directory, diag),
		carwings.AppPI:      ackHandler,
		carwings.AppGLS:     ackHandler,
	}
	return e
}

// SetClock 替换时钟，测试使用
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Handle 处理一个HTTP请求体并返回响应体。
// 结构性错误(ErrMalformedInput等)由调用方映射为4xx，其余为5xx
func (e *Engine) Handle(ctx context.Context, body []byte) ([]byte, error) {
	start := time.Now()
	app := "unknown"
	resp, err := e.handle(ctx, body, &app)
	metrics.CarwingsRequestsTotal.WithLabelValues(app, metrics.Result(err)).Inc()
	metrics.CarwingsRequestLatency.WithLabelValues(app).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.WithFields(logrus.Fields{
			"app":   app,
			"error": err.Error(),
		}).Warn("CARWINGS请求处理失败")
		return nil, err
	}
	return resp, nil
}

func (e *Engine) handle(ctx context.Context, body []byte, app *string) ([]byte, error) {
	files, resumeID, err := codec.Unpack(body)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New(errors.ErrMalformedInput, "empty file container")
	}

	xmlReq, err := carwings.ParseRequest(files[0].Content)
	if err != nil {
		return nil, err
	}
	name := xmlReq.AppName()
	handler, ok := e.handlers[name]
	if !ok {
		return nil, errors.Newf(errors.ErrMalformedInput, "unknown app %q", name)
	}
	*app = name

	req := &Request{XML: xmlReq, Uploads: files[1:], Now: e.now()}
	if err := e.authenticate(ctx, req); err != nil {
		return nil, err
	}

	out, err := handler.Handle(ctx, req)
	if err != nil {
		return nil, err
	}

	respXML, err := carwings.NewResponse(xmlReq.Version, name, e.timing).Marshal()
	if err != nil {
		return nil, err
	}
	respFiles := make([]codec.File, 0, len(out)+1)
	respFiles = append(respFiles, codec.File{Name: carwings.ResponseXML, Content: respXML})
	respFiles = append(respFiles, out...)

	logger.WithFields(logrus.Fields{
		"app":           name,
		"vin":           req.VIN(),
		"authenticated": req.Authenticated,
		"files":         len(respFiles),
	}).Debug("CARWINGS请求处理完成")
	return codec.Pack(respFiles, resumeID)
}

// authenticate 按VIN查注册表，核对dcm_id/sim_id与车主凭据。
// 车辆不存在或不匹配不是错误，只标记为未认证
func (e *Engine) authenticate(ctx context.Context, req *Request) error {
	auth := req.XML.Auth
	if auth.VIN == "" {
		return nil
	}
	v, err := e.registry.Lookup(ctx, auth.VIN)
	if err != nil {
		if errors.IsErrCode(err, errors.ErrVehicleNotFound) {
			return nil
		}
		return errors.Wrap(errors.ErrExternalFailure, "lookup vehicle", err)
	}
	req.Vehicle = v

	if v.TCUSerial != auth.DCMID || v.ICCID != auth.SIMID {
		logger.WithFields(logrus.Fields{
			"vin":   auth.VIN,
			"dcmID": auth.DCMID,
		}).Info("CARWINGS身份不匹配")
		return nil
	}
	if v.AuthDisabled || v.Owner.Verify(auth.UserID, auth.Password) {
		req.Authenticated = true
	}
	return nil
}

// ackHandler PI/GLS 仅确认，不返回文件
var ackHandler = HandlerFunc(func(context.Context, *Request) ([]codec.File, error) {
	return nil, nil
})

// IsClientError 判断错误是否属于请求结构问题
func IsClientError(err error) bool {
	switch errors.CodeOf(err) {
	case errors.ErrMalformedInput, errors.ErrChecksumMismatch, errors.ErrLengthMismatch,
		errors.ErrInvalidMesh, errors.ErrInvalidParameter:
		return true
	}
	return false
}
