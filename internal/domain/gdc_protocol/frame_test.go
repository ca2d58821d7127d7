package gdc_protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

func testBuilder() FrameBuilder {
	return FrameBuilder{
		Identity: vehicle.Identity{
			VIN:       "SJNFAAZE0U6012345",
			TCUModel:  "GDC-LEAF1",
			TCUSerial: "U000123456",
			ICCID:     "89811000000000000017",
		},
		SoftwareVersion: "2.13.0",
		VehicleCodes:    [4]byte{1, 2, 3, 4},
		Username:        "driver",
		Password:        "secret",
	}
}

func TestParseInitFrame(t *testing.T) {
	fb := testBuilder()
	raw := fb.Init(&GPSFix{Lat: 65000000, Lon: -1000, Valid: true, Home: true})
	require.Len(t, raw, MinFrameLen+lenGPS)

	f, err := ParseFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, PacketInit, f.Type)
	assert.Equal(t, fb.Identity, f.Identity)
	assert.Equal(t, "2.13.0", f.SoftwareVersion)
	assert.Equal(t, [4]byte{1, 2, 3, 4}, f.VehicleCodes)
	assert.Equal(t, "driver", f.Username)
	assert.Equal(t, "secret", f.Password)
	require.NotNil(t, f.GPS)
	assert.Equal(t, int32(65000000), f.GPS.Lat)
	assert.Equal(t, int32(-1000), f.GPS.Lon)
	assert.True(t, f.GPS.Home)
	assert.Nil(t, f.EV)
}

func TestParseDataFrame(t *testing.T) {
	ev := vehicle.EVState{
		Charging: true, Plugged: true, ClimateOn: true, Gear: 5,
		SOC: 87, SOH: 93, ChargeBars: 10, CapacityBars: 12,
		RangeACOffKm: 143, RangeACOnKm: 120, FullIn100V: 900, FullIn200V: 300, FullInQuick: 30,
	}
	raw := testBuilder().Data(BodyChargeResult, nil, ev, 0x00)
	f, err := ParseFrame(raw)
	require.NoError(t, err)
	require.NotNil(t, f.EV)
	assert.Equal(t, ev, *f.EV)
	assert.True(t, f.HasResult)
	assert.Equal(t, byte(0), f.Result)
	assert.Nil(t, f.GPS)
}

func TestEVBitLayout(t *testing.T) {
	p := []byte{0xB3, 0xAE, 0xF4, 0xA7, 0, 100, 0, 90, 0, 1, 0, 2, 0, 3}
	ev := ParseEV(p)
	assert.True(t, ev.Charging)
	assert.False(t, ev.Plugged)
	assert.True(t, ev.QuickCharging)
	assert.True(t, ev.ClimateOn)
	assert.Equal(t, uint8(3), ev.Gear)
	// 0xAEF4 = 1010111 0111101 00
	assert.Equal(t, uint8(0x57), ev.SOC)
	assert.Equal(t, uint8(0x3D), ev.SOH)
	assert.Equal(t, uint8(0xA), ev.ChargeBars)
	assert.Equal(t, uint8(0x7), ev.CapacityBars)
	assert.Equal(t, uint16(100), ev.RangeACOffKm)
	assert.Equal(t, uint16(3), ev.FullInQuick)
	assert.Equal(t, p, EncodeEV(ev))
}

func TestParseConfigFrame(t *testing.T) {
	cfg := vehicle.TCUConfig{
		DialCode:    "*99#",
		APN:         "carwings.example",
		APNUser:     "user",
		APNPassword: "pass",
		DNS1:        "8.8.8.8",
		DNS2:        "1.1.1.1",
		ServerURL:   "http://gdc.example/",
		ProxyURL:    "proxy.example",
		ProxyPort:   "8080",
	}
	raw := testBuilder().Config(cfg)
	require.Len(t, raw, ConfigFrameLen)

	f, err := ParseFrame(raw)
	require.NoError(t, err)
	require.NotNil(t, f.Config)
	cfg.SoftwareVersion = "2.13.0"
	assert.Equal(t, cfg, *f.Config)
	assert.Equal(t, "SJNFAAZE0U6012345", f.Identity.VIN)
}

func TestMalformedFrames(t *testing.T) {
	fb := testBuilder()
	initRaw := fb.Init(nil)
	dataRaw := fb.Data(BodyACResult, nil, vehicle.EVState{}, 0)
	cfgRaw := fb.Config(vehicle.TCUConfig{})

	badMarker := append([]byte(nil), cfgRaw...)
	badMarker[1] = 0x00
	badGPSFlag := append([]byte(nil), initRaw...)
	badGPSFlag[offGPSFlag] = 0x07
	badBody := append([]byte(nil), dataRaw...)
	badBody[1] = 0x09
	badTag := append([]byte(nil), cfgRaw...)
	badTag[offConfigTLV] = 0x33
	// 定长标签共占126字节，之后接两个显式标签，第二个越过帧尾
	overrun := append([]byte(nil), cfgRaw...)
	next := offConfigTLV + 126
	overrun[next], overrun[next+1] = TagServerURL, 0xFF
	next += 2 + 0xFF
	overrun[next], overrun[next+1] = TagProxyURL, 0xFF

	cases := []struct {
		name string
		raw  []byte
	}{
		{"空帧", nil},
		{"未知类型", []byte{0x09, 0, 0}},
		{"INIT过短", initRaw[:MinFrameLen-1]},
		{"GPS截断", fb.Init(&GPSFix{})[:MinFrameLen+4]},
		{"GPS标志非法", badGPSFlag},
		{"DATA缺EV块", dataRaw[:MinFrameLen+3]},
		{"DATA缺结果字节", dataRaw[:len(dataRaw)-1]},
		{"DATA未知包体", badBody},
		{"CONFIG长度不符", cfgRaw[:ConfigFrameLen-1]},
		{"CONFIG标记错误", badMarker},
		{"CONFIG未知定长标签", badTag},
		{"CONFIG显式长度越界", overrun},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ParseFrame(tc.raw)
			assert.Nil(t, f)
			require.Error(t, err)
			code := errors.CodeOf(err)
			if code != errors.ErrMalformedInput && code != errors.ErrLengthMismatch {
				t.Errorf("期望格式错误，实际错误码 %s", code)
			}
		})
	}
}

func TestRedactCredentials(t *testing.T) {
	fb := testBuilder()
	raw := fb.Init(&GPSFix{Lat: 65000000, Lon: -1000, Valid: true})
	orig := append([]byte(nil), raw...)

	red := RedactCredentials(raw)
	assert.Equal(t, orig, raw, "原始帧不应被修改")
	require.Len(t, red, len(raw))
	assert.Equal(t, make([]byte, 2*lenCredential), red[offUsername:offPassword+lenCredential], "用户名和密码字段应清零")
	assert.Equal(t, raw[:offUsername], red[:offUsername], "凭据之前的字段保留")
	assert.Equal(t, raw[offPassword+lenCredential:], red[offPassword+lenCredential:], "凭据之后的字段保留")
	assert.NotContains(t, string(red), "secret")
	assert.NotContains(t, string(red), "driver")

	short := raw[:offPassword]
	assert.Equal(t, short, RedactCredentials(short), "长度不足的帧原样返回")
}

func TestResponses(t *testing.T) {
	assert.Equal(t, []byte{0x02, 0x01, 0, 0, 0, 0, 0, 0}, FailureResponse(PacketInit))
	assert.Equal(t, []byte{0x04, 0x01, 0, 0, 0, 0, 0, 0}, FailureResponse(PacketData))
	assert.Equal(t, []byte{0x06, 0x00, 0, 0, 0, 0, 0, 0}, SuccessResponse(PacketConfig))
	assert.Equal(t, []byte{0x02, 0x01, 0, 0, 0, 0, 0, 0}, FailureResponse(0x7F))

	for ct := vehicle.CommandRefresh; ct <= vehicle.CommandLocate; ct++ {
		resp, ok := CommandResponse(ct)
		require.True(t, ok)
		assert.Equal(t, []byte{0x02, 0x00, byte(ct), 0, 0, 0, 0, 0}, resp)
	}
	_, ok := CommandResponse(vehicle.CommandType(0x30))
	assert.False(t, ok)
}

func TestMessageRouting(t *testing.T) {
	msg := NewMessage(testBuilder().Init(nil))
	assert.Equal(t, uint32(PacketInit), msg.GetMsgID())
	assert.Equal(t, uint32(MinFrameLen), msg.GetDataLen())
	m, ok := IMessageToGDCMessage(msg)
	require.True(t, ok)
	assert.Equal(t, msg, m)
}
