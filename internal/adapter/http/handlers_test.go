package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bujia-iot/carwings-gateway/internal/app/service"
	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
	"github.com/bujia-iot/carwings-gateway/pkg/storage"
)

const testVIN = "SJNFAAZE0U6012345"

type engineFunc func(ctx context.Context, body []byte) ([]byte, error)

func (f engineFunc) Handle(ctx context.Context, body []byte) ([]byte, error) {
	return f(ctx, body)
}

type fixedCounter int

func (c fixedCounter) Count() int { return int(c) }

func newRouter(t *testing.T, engine CarwingsEngine, mutate func(*config.HTTPAPIServerConfig)) (*gin.Engine, config.HTTPAPIServerConfig, *storage.VehicleStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default().HTTPAPIServer
	if mutate != nil {
		mutate(&cfg)
	}

	store := storage.NewVehicleStore()
	store.Put(&vehicle.Vehicle{Identity: vehicle.Identity{VIN: testVIN}})

	r := gin.New()
	RegisterRoutes(r, &Handlers{
		Carwings:    NewCarwingsHandlers(engine, cfg),
		Commands:    NewCommandHandlers(service.NewCommandService(store)),
		Connections: fixedCounter(3),
		StartedAt:   time.Now(),
	}, cfg)
	return r, cfg, store
}

func carwingsRequest(cfg config.HTTPAPIServerConfig, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, cfg.EndpointPath, bytes.NewReader(body))
	req.Header.Set("Content-Type", cfg.ContentType)
	req.Header.Set("User-Agent", "Mozilla/4.0 (compatible; "+cfg.UserAgentSubstring+"/1.0)")
	return req
}

func TestCarwingsSuccess(t *testing.T) {
	var got []byte
	r, cfg, _ := newRouter(t, engineFunc(func(_ context.Context, body []byte) ([]byte, error) {
		got = body
		return []byte("packed-response"), nil
	}), nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, carwingsRequest(cfg, []byte("packed-request")))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cfg.ContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "packed-response", w.Body.String())
	assert.Equal(t, []byte("packed-request"), got, "请求体原样交给引擎")
}

func TestCarwingsRejections(t *testing.T) {
	called := false
	r, cfg, _ := newRouter(t, engineFunc(func(context.Context, []byte) ([]byte, error) {
		called = true
		return nil, nil
	}), func(c *config.HTTPAPIServerConfig) { c.MaxBodyBytes = 16 })

	tests := []struct {
		name   string
		mutate func(*http.Request)
		body   []byte
	}{
		{"内容类型不符", func(req *http.Request) { req.Header.Set("Content-Type", "text/xml") }, []byte("x")},
		{"User-Agent不符", func(req *http.Request) { req.Header.Set("User-Agent", "curl/8.0") }, []byte("x")},
		{"请求体超限", nil, bytes.Repeat([]byte{1}, 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := carwingsRequest(cfg, tt.body)
			if tt.mutate != nil {
				tt.mutate(req)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, w.Body.Bytes(), "错误响应体为空")
		})
	}
	assert.False(t, called, "被拒绝的请求不进入引擎")
}

func TestCarwingsEngineErrors(t *testing.T) {
	var engineErr error
	r, cfg, _ := newRouter(t, engineFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, engineErr
	}), nil)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"格式错误", errors.New(errors.ErrMalformedInput, "bad container"), http.StatusBadRequest},
		{"校验和错误", errors.New(errors.ErrChecksumMismatch, "crc"), http.StatusBadRequest},
		{"非法网格", errors.New(errors.ErrInvalidMesh, "mesh"), http.StatusBadRequest},
		{"外部失败", errors.New(errors.ErrExternalFailure, "redis down"), http.StatusInternalServerError},
		{"编码约束", errors.New(errors.ErrEncodeConstraint, "too long"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engineErr = tt.err
			w := httptest.NewRecorder()
			r.ServeHTTP(w, carwingsRequest(cfg, []byte("x")))

			assert.Equal(t, tt.status, w.Code)
			assert.Empty(t, w.Body.Bytes())
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r, cfg, _ := newRouter(t, engineFunc(func(context.Context, []byte) ([]byte, error) { return nil, nil }), nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int            `json:"code"`
		Data HealthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Data.Status)
	assert.Equal(t, 3, resp.Data.GDCConnections)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, cfg.MetricsPath, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "carwings_gdc_connections")
}

func TestCommandAPI(t *testing.T) {
	r, _, store := newRouter(t, engineFunc(func(context.Context, []byte) ([]byte, error) { return nil, nil }), nil)

	issue := func(vin, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vehicles/"+vin+"/commands", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/vehicles/"+testVIN+"/command", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "尚无命令")

	w = issue(testVIN, `{"command":"ac_on"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data CommandInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "ac_on", created.Data.Command)
	assert.Equal(t, string(vehicle.StateWaiting), created.Data.State)

	cur, err := store.Command(context.Background(), testVIN)
	require.NoError(t, err)
	assert.Equal(t, created.Data.ID, cur.ID)

	assert.Equal(t, http.StatusConflict, issue(testVIN, `{"command":"refresh"}`).Code, "已有未结束命令")
	assert.Equal(t, http.StatusBadRequest, issue(testVIN, `{"command":"fly"}`).Code, "未知命令类型")
	assert.Equal(t, http.StatusBadRequest, issue(testVIN, `{}`).Code, "缺少命令")
	assert.Equal(t, http.StatusNotFound, issue("UNKNOWNVIN", `{"command":"refresh"}`).Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/vehicles/"+testVIN+"/command", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.Data.ID)
}
