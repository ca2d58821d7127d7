package gdc_protocol

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/pkg/bitfield"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// GPSFix 帧内的GPS块
type GPSFix struct {
	Lat   int32
	Lon   int32
	Valid bool
	Home  bool
}

// Frame 解析后的GDC帧；整帧解析成功才会交给会话引擎，保证不完整的帧不产生任何状态写入
type Frame struct {
	Type            byte
	BodyType        byte
	Identity        vehicle.Identity
	SoftwareVersion string
	VehicleCodes    [lenCodes]byte
	Username        string
	Password        string
	GPS             *GPSFix
	EV              *vehicle.EVState
	Result          byte
	HasResult       bool
	Config          *vehicle.TCUConfig
	Raw             []byte
}

// ParseFrame 解析一帧，越界、未知类型、标记错误都返回 ErrMalformedInput
func ParseFrame(b []byte) (*Frame, error) {
	if len(b) < 1 {
		return nil, errors.New(errors.ErrMalformedInput, "empty frame")
	}
	switch b[offType] {
	case PacketInit, PacketData:
		return parseSession(b)
	case PacketConfig:
		return parseConfig(b)
	}
	return nil, errors.Newf(errors.ErrMalformedInput, "unknown packet type 0x%02X", b[offType])
}

func parseIdentity(f *Frame, b []byte) {
	f.Identity = vehicle.Identity{
		VIN:       fixedString(b[offVIN : offVIN+lenVIN]),
		TCUModel:  fixedString(b[offTCUModel : offTCUModel+lenTCUModel]),
		TCUSerial: fixedString(b[offTCUSerial : offTCUSerial+lenTCUSerial]),
		ICCID:     fixedString(b[offICCID : offICCID+lenICCID]),
	}
	f.SoftwareVersion = fixedString(b[offSoftware : offSoftware+lenSoftware])
	copy(f.VehicleCodes[:], b[offCodes:offCodes+lenCodes])
}

func parseSession(b []byte) (*Frame, error) {
	if len(b) < MinFrameLen {
		return nil, errors.Newf(errors.ErrMalformedInput, "%s frame too short: %d < %d", PacketName(b[offType]), len(b), MinFrameLen)
	}
	f := &Frame{Type: b[offType], BodyType: b[offBodyType], Raw: b}
	parseIdentity(f, b)
	f.Username = fixedString(b[offUsername : offUsername+lenCredential])
	f.Password = fixedString(b[offPassword : offPassword+lenCredential])

	pos := offGPS
	switch b[offGPSFlag] {
	case 0x00:
	case 0x01:
		if len(b) < pos+lenGPS {
			return nil, errors.Newf(errors.ErrMalformedInput, "gps block truncated: %d", len(b))
		}
		g := b[pos : pos+lenGPS]
		f.GPS = &GPSFix{
			Lat:   int32(binary.BigEndian.Uint32(g[0:4])),
			Lon:   int32(binary.BigEndian.Uint32(g[4:8])),
			Valid: g[8] != 0,
			Home:  g[9] != 0,
		}
		pos += lenGPS
	default:
		return nil, errors.Newf(errors.ErrMalformedInput, "invalid gps flag 0x%02X", b[offGPSFlag])
	}

	if f.Type != PacketData {
		return f, nil
	}
	if f.BodyType < BodyStatus || f.BodyType > BodyChargeResult {
		return nil, errors.Newf(errors.ErrMalformedInput, "unknown data body type 0x%02X", f.BodyType)
	}
	if len(b) < pos+lenEV {
		return nil, errors.Newf(errors.ErrMalformedInput, "ev block truncated: need %d have %d", pos+lenEV, len(b))
	}
	ev := ParseEV(b[pos : pos+lenEV])
	f.EV = &ev
	pos += lenEV
	if IsResultBody(f.BodyType) {
		if len(b) < pos+1 {
			return nil, errors.Newf(errors.ErrMalformedInput, "%s: missing result byte", BodyName(f.BodyType))
		}
		f.Result = b[pos]
		f.HasResult = true
	}
	return f, nil
}

// ParseEV 解码14字节EV状态块
//
//	byte0   b7充电中 b6已插枪 b5快充 b4空调 b2..0档位
//	u16@1   SOC bits15..9, SOH bits8..2
//	byte3   高4位充电格数, 低4位容量格数
//	u16@4   续航(空调关) u16@6 续航(空调开)
//	u16@8   100V充满分钟 u16@10 200V u16@12 快充
func ParseEV(p []byte) vehicle.EVState {
	flags := uint32(p[0])
	health := binary.BigEndian.Uint16(p[1:3])
	return vehicle.EVState{
		Charging:      bitfield.Bit(flags, 7),
		Plugged:       bitfield.Bit(flags, 6),
		QuickCharging: bitfield.Bit(flags, 5),
		ClimateOn:     bitfield.Bit(flags, 4),
		Gear:          bitfield.Uint8(p[0], 2, 0),
		SOC:           uint8(bitfield.Uint16(health, 15, 9)),
		SOH:           uint8(bitfield.Uint16(health, 8, 2)),
		ChargeBars:    bitfield.Uint8(p[3], 7, 4),
		CapacityBars:  bitfield.Uint8(p[3], 3, 0),
		RangeACOffKm:  binary.BigEndian.Uint16(p[4:6]),
		RangeACOnKm:   binary.BigEndian.Uint16(p[6:8]),
		FullIn100V:    binary.BigEndian.Uint16(p[8:10]),
		FullIn200V:    binary.BigEndian.Uint16(p[10:12]),
		FullInQuick:   binary.BigEndian.Uint16(p[12:14]),
	}
}

func parseConfig(b []byte) (*Frame, error) {
	if len(b) != ConfigFrameLen {
		return nil, errors.Newf(errors.ErrLengthMismatch, "config frame length: declare=%d actual=%d", ConfigFrameLen, len(b))
	}
	if b[offBodyType] != ConfigMarker {
		return nil, errors.Newf(errors.ErrMalformedInput, "config marker 0x%02X", b[offBodyType])
	}
	f := &Frame{Type: PacketConfig, BodyType: ConfigMarker, Raw: b}
	parseIdentity(f, b)
	cfg, err := parseTLV(b[offConfigTLV:])
	if err != nil {
		return nil, err
	}
	cfg.SoftwareVersion = f.SoftwareVersion
	f.Config = cfg
	return f, nil
}

// parseTLV 解析配置TLV：标签0x00结束；标签最高位置位时为 [tag][u8 len][value]，否则值长度由标签决定
func parseTLV(p []byte) (*vehicle.TCUConfig, error) {
	cfg := &vehicle.TCUConfig{}
	pos := 0
	for pos < len(p) {
		tag := p[pos]
		if tag == TagEnd {
			break
		}
		var value []byte
		if tag&tagExplicit != 0 {
			if pos+2 > len(p) {
				return nil, errors.Newf(errors.ErrMalformedInput, "tlv tag 0x%02X at %d: missing length", tag, pos)
			}
			n := int(p[pos+1])
			if pos+2+n > len(p) {
				return nil, errors.Newf(errors.ErrLengthMismatch, "tlv tag 0x%02X at %d: length %d overruns block", tag, pos, n)
			}
			value = p[pos+2 : pos+2+n]
			pos += 2 + n
		} else {
			n, ok := fixedTagLen[tag]
			if !ok {
				return nil, errors.Newf(errors.ErrMalformedInput, "tlv unknown fixed tag 0x%02X at %d", tag, pos)
			}
			if pos+1+n > len(p) {
				return nil, errors.Newf(errors.ErrLengthMismatch, "tlv tag 0x%02X at %d: overruns block", tag, pos)
			}
			value = p[pos+1 : pos+1+n]
			pos += 1 + n
		}

		switch tag {
		case TagDialCode:
			cfg.DialCode = fixedString(value)
		case TagAPN:
			cfg.APN = fixedString(value)
		case TagAPNUser:
			cfg.APNUser = fixedString(value)
		case TagAPNPassword:
			cfg.APNPassword = fixedString(value)
		case TagDNS1:
			cfg.DNS1 = net.IP(value).String()
		case TagDNS2:
			cfg.DNS2 = net.IP(value).String()
		case TagServerURL:
			cfg.ServerURL = fixedString(value)
		case TagProxyURL:
			cfg.ProxyURL = fixedString(value)
		case TagProxyPort:
			cfg.ProxyPort = fixedString(value)
		}
	}
	return cfg, nil
}

// fixedString 定长字段去掉尾部0x00与空格
func fixedString(b []byte) string {
	return strings.TrimRight(string(b), "\x00 ")
}

// Describe 日志用摘要，不包含凭据
func (f *Frame) Describe() string {
	return fmt.Sprintf("type=%s body=0x%02X vin=%s gps=%v", PacketName(f.Type), f.BodyType, f.Identity.VIN, f.GPS != nil)
}

// RedactCredentials 返回用户名与密码字段清零后的副本，供调试输出使用；
// CONFIG或长度不足的帧原样复制
func RedactCredentials(raw []byte) []byte {
	out := append([]byte(nil), raw...)
	if len(out) < offPassword+lenCredential {
		return out
	}
	if t := out[offType]; t != PacketInit && t != PacketData {
		return out
	}
	clear(out[offUsername : offPassword+lenCredential])
	return out
}
