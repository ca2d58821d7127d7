package carwings

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bujia-iot/carwings-gateway/internal/domain/carwings"
	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/pkg/codec"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
	"github.com/bujia-iot/carwings-gateway/pkg/mesh"
	"github.com/bujia-iot/carwings-gateway/pkg/storage"
)

const (
	testVIN   = "SJNFAAZE0U6012345"
	testDCM   = "U12345"
	testICCID = "89810012345678901234"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type diagRecord struct {
	kind    string
	vin     string
	payload []byte
}

type recordingDiag struct {
	mu      sync.Mutex
	records []diagRecord
}

func (d *recordingDiag) Record(_ context.Context, kind, vin string, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, diagRecord{kind: kind, vin: vin, payload: append([]byte(nil), payload...)})
	return nil
}

type fakeDirectory struct {
	mu       sync.Mutex
	chargers []carwings.ChargerDetail
	batches  []int
	err      error
}

func (f *fakeDirectory) QueryBox(_ context.Context, box mesh.Box) ([]carwings.ChargerSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []carwings.ChargerSummary
	for _, c := range f.chargers {
		if box.Contains(c.Lat, c.Lon) {
			out = append(out, carwings.ChargerSummary{ID: c.ID, Lat: c.Lat, Lon: c.Lon})
		}
	}
	return out, nil
}

func (f *fakeDirectory) FetchDetails(_ context.Context, ids []uint32) ([]carwings.ChargerDetail, error) {
	f.mu.Lock()
	f.batches = append(f.batches, len(ids))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[uint32]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []carwings.ChargerDetail
	for _, c := range f.chargers {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

// failingRegistry 模拟注册表不可用
type failingRegistry struct {
	vehicle.Registry
}

func (failingRegistry) Lookup(context.Context, string) (*vehicle.Vehicle, error) {
	return nil, fmt.Errorf("connection refused")
}

type fixture struct {
	store     *storage.VehicleStore
	directory *fakeDirectory
	diag      *recordingDiag
	engine    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	store := storage.NewVehicleStore()
	store.Put(&vehicle.Vehicle{
		Identity: vehicle.Identity{VIN: testVIN, TCUModel: "GDC-2011", TCUSerial: testDCM, ICCID: testICCID},
		Owner:    vehicle.Owner{Username: "alice", PasswordHash: string(hash)},
		GPS:      vehicle.GPS{Lat: mesh.ToFixed(35.68), Lon: mesh.ToFixed(139.76), Valid: true},
		EV:       vehicle.EVState{SOC: 80, SOH: 95, Charging: true, FullIn200V: 95},
		CustomChannels: []vehicle.CustomChannel{
			{Name: "home", Title: "Café at home", Body: "Back soon", Phone: "0312345678", Lat: 35.6, Lon: 139.7},
		},
	})

	directory := &fakeDirectory{}
	diag := &recordingDiag{}
	engine := NewEngine(store, directory, diag, config.Default().Carwings)
	engine.SetClock(func() time.Time { return testNow })
	return &fixture{store: store, directory: directory, diag: diag, engine: engine}
}

type creds struct {
	vin, dcm, sim, user, password string
}

func validCreds() creds {
	return creds{vin: testVIN, dcm: testDCM, sim: testICCID, user: "alice", password: "secret"}
}

func requestXML(app string, c creds) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0"?>
<carwings version="2.2">
<aut_inf><navi_id>N1</navi_id><tel></tel><dcm_id>%s</dcm_id><sim_id>%s</sim_id><vin>%s</vin><user_id>%s</user_id><password>%s</password></aut_inf>
<bs_inf><sftwr_ver><navi>1</navi><map>1</map><dcm>1</dcm></sftwr_ver><vcl><coordinate datum="wgs84"><latitude>35.68</latitude><longitude>139.76</longitude></coordinate><odometer>1</odometer><soc>80</soc></vcl><navi_set><time_zone>9</time_zone><language>en</language><distance_unit>km</distance_unit></navi_set></bs_inf>
<sr_inf><app name="%s"/></sr_inf>
<op_inf><timing>0</timing></op_inf>
</carwings>`, c.dcm, c.sim, c.vin, c.user, c.password, app))
}

var testResumeID = codec.ResumeID{'r', 'e', 's', 'u', 'm', 'e', '-', '0', '1'}

func packRequest(t *testing.T, app string, c creds, uploads ...[]byte) []byte {
	t.Helper()
	files := []codec.File{{Name: "request.xml", Content: requestXML(app, c)}}
	for i, u := range uploads {
		files = append(files, codec.File{Name: fmt.Sprintf("UPLOAD.%03d", i), Content: u})
	}
	body, err := codec.Pack(files, testResumeID)
	require.NoError(t, err)
	return body
}

// call 发送请求并返回响应中XML之后的文件
func (f *fixture) call(t *testing.T, app string, c creds, uploads ...[]byte) []codec.File {
	t.Helper()
	resp, err := f.engine.Handle(context.Background(), packRequest(t, app, c, uploads...))
	require.NoError(t, err)

	files, rid, err := codec.Unpack(resp)
	require.NoError(t, err)
	assert.Equal(t, testResumeID, rid, "续传ID应原样回传")
	require.NotEmpty(t, files)
	assert.Equal(t, carwings.ResponseXML, files[0].Name, "响应XML必须是第一个文件")
	assert.Contains(t, string(files[0].Content), fmt.Sprintf(`<app name="%s">`, app))
	assert.Contains(t, string(files[0].Content), "<timing>60</timing>")
	return files[1:]
}

func TestAuthHandshake(t *testing.T) {
	f := newFixture(t)

	files := f.call(t, carwings.AppAuth, validCreds())
	require.Len(t, files, 1)
	assert.Equal(t, AuthResultFile, files[0].Name)
	require.Len(t, files[0].Content, 12)
	assert.Equal(t, byte(0x01), files[0].Content[11], "认证成功")
}

func TestAuthHandshakeFailures(t *testing.T) {
	cases := map[string]func(c *creds){
		"密码错误":    func(c *creds) { c.password = "wrong" },
		"用户名错误":   func(c *creds) { c.user = "bob" },
		"DCM不匹配":  func(c *creds) { c.dcm = "U99999" },
		"SIM不匹配":  func(c *creds) { c.sim = "89810000000000000000" },
		"未注册VIN":  func(c *creds) { c.vin = "SJNFAAZE0U6099999" },
		"缺少VIN":   func(c *creds) { c.vin = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			c := validCreds()
			mutate(&c)

			files := f.call(t, carwings.AppAuth, c)
			require.Len(t, files, 2)
			assert.Equal(t, byte(0x00), files[0].Content[11], "认证失败")
			assert.Equal(t, AuthMessageFile, files[1].Name)
			assert.NotEmpty(t, files[1].Content)
			assert.LessOrEqual(t, len(files[1].Content), 0x80)
			for _, b := range files[1].Content {
				assert.Less(t, b, byte(0x80), "提示文本必须是ASCII")
			}
		})
	}
}

func TestAuthDisabledSkipsCredentials(t *testing.T) {
	f := newFixture(t)
	v, err := f.store.Lookup(context.Background(), testVIN)
	require.NoError(t, err)
	v.AuthDisabled = true
	f.store.Put(v)

	c := validCreds()
	c.password = "anything"
	files := f.call(t, carwings.AppAuth, c)
	assert.Equal(t, byte(0x01), files[0].Content[11])

	c.dcm = "U99999"
	files = f.call(t, carwings.AppAuth, c)
	assert.Equal(t, byte(0x00), files[0].Content[11], "关闭认证仍需身份匹配")
}

func TestPlaceholderApps(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.call(t, carwings.AppPI, validCreds()))
	assert.Empty(t, f.call(t, carwings.AppGLS, validCreds()))
}

func TestEngineErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Handle(ctx, []byte("garbage"))
	require.Error(t, err)
	assert.True(t, IsClientError(err))

	body := packRequest(t, carwings.AppAuth, validCreds())
	body[len(body)-1] ^= 0x01
	_, err = f.engine.Handle(ctx, body)
	assert.True(t, errors.IsErrCode(err, errors.ErrChecksumMismatch))
	assert.True(t, IsClientError(err))

	_, err = f.engine.Handle(ctx, packRequest(t, "XX", validCreds()))
	assert.True(t, errors.IsErrCode(err, errors.ErrMalformedInput), "未知应用")

	empty, err := codec.Pack(nil, testResumeID)
	require.NoError(t, err)
	_, err = f.engine.Handle(ctx, empty)
	assert.True(t, IsClientError(err), "空容器")

	broken := NewEngine(failingRegistry{}, nil, nil, config.Default().Carwings)
	_, err = broken.Handle(ctx, packRequest(t, carwings.AppAuth, validCreds()))
	assert.True(t, errors.IsErrCode(err, errors.ErrExternalFailure))
	assert.False(t, IsClientError(err), "注册表故障属于服务端错误")
}

func TestResponseIsDecodable(t *testing.T) {
	f := newFixture(t)
	files := f.call(t, carwings.AppAutoDJ, validCreds(), []byte{0x02, 0x01, 0x01})
	require.Len(t, files, 1)
	assert.Equal(t, DirectoryFile, files[0].Name)
	assert.Equal(t, uint8(3), files[0].Content[0], "已认证时包含自定义文件夹")
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(files[0].Content[1:3]))
}
