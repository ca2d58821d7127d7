package gdc_protocol

import (
	"encoding/binary"
	"net"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/pkg/bitfield"
)

// FrameBuilder 构造GDC上行帧，供模拟器与测试使用
type FrameBuilder struct {
	Identity        vehicle.Identity
	SoftwareVersion string
	VehicleCodes    [lenCodes]byte
	Username        string
	Password        string
}

func putFixed(dst []byte, s string) {
	copy(dst, s)
}

func (fb FrameBuilder) header(packetType, bodyType byte, size int) []byte {
	b := make([]byte, size)
	b[offType] = packetType
	b[offBodyType] = bodyType
	putFixed(b[offVIN:offVIN+lenVIN], fb.Identity.VIN)
	putFixed(b[offTCUModel:offTCUModel+lenTCUModel], fb.Identity.TCUModel)
	putFixed(b[offTCUSerial:offTCUSerial+lenTCUSerial], fb.Identity.TCUSerial)
	putFixed(b[offICCID:offICCID+lenICCID], fb.Identity.ICCID)
	putFixed(b[offSoftware:offSoftware+lenSoftware], fb.SoftwareVersion)
	copy(b[offCodes:offCodes+lenCodes], fb.VehicleCodes[:])
	return b
}

func (fb FrameBuilder) session(packetType, bodyType byte, gps *GPSFix, tail []byte) []byte {
	size := MinFrameLen + len(tail)
	if gps != nil {
		size += lenGPS
	}
	b := fb.header(packetType, bodyType, size)
	putFixed(b[offUsername:offUsername+lenCredential], fb.Username)
	putFixed(b[offPassword:offPassword+lenCredential], fb.Password)
	pos := offGPS
	if gps != nil {
		b[offGPSFlag] = 0x01
		binary.BigEndian.PutUint32(b[pos:], uint32(gps.Lat))
		binary.BigEndian.PutUint32(b[pos+4:], uint32(gps.Lon))
		if gps.Valid {
			b[pos+8] = 1
		}
		if gps.Home {
			b[pos+9] = 1
		}
		pos += lenGPS
	}
	copy(b[pos:], tail)
	return b
}

// Init 构造INIT帧
func (fb FrameBuilder) Init(gps *GPSFix) []byte {
	return fb.session(PacketInit, 0x00, gps, nil)
}

// Data 构造DATA帧；结果类包体追加结果字节
func (fb FrameBuilder) Data(bodyType byte, gps *GPSFix, ev vehicle.EVState, result byte) []byte {
	tail := EncodeEV(ev)
	if IsResultBody(bodyType) {
		tail = append(tail, result)
	}
	return fb.session(PacketData, bodyType, gps, tail)
}

// Config 构造定长CONFIG帧
func (fb FrameBuilder) Config(cfg vehicle.TCUConfig) []byte {
	b := fb.header(PacketConfig, ConfigMarker, ConfigFrameLen)
	p := b[offConfigTLV:offConfigTLV]
	fixed := func(tag byte, v []byte) {
		val := make([]byte, fixedTagLen[tag])
		copy(val, v)
		p = append(p, tag)
		p = append(p, val...)
	}
	explicit := func(tag byte, v string) {
		if v == "" {
			return
		}
		p = append(p, tag, byte(len(v)))
		p = append(p, v...)
	}
	fixed(TagDialCode, []byte(cfg.DialCode))
	fixed(TagAPN, []byte(cfg.APN))
	fixed(TagAPNUser, []byte(cfg.APNUser))
	fixed(TagAPNPassword, []byte(cfg.APNPassword))
	fixed(TagDNS1, net.ParseIP(cfg.DNS1).To4())
	fixed(TagDNS2, net.ParseIP(cfg.DNS2).To4())
	explicit(TagServerURL, cfg.ServerURL)
	explicit(TagProxyURL, cfg.ProxyURL)
	explicit(TagProxyPort, cfg.ProxyPort)
	copy(b[offConfigTLV:], p)
	// 其余字节保持0x00，即结束标签
	return b
}

// EncodeEV 编码14字节EV状态块，与ParseEV互逆
func EncodeEV(ev vehicle.EVState) []byte {
	p := make([]byte, lenEV)
	var flags uint32
	if ev.Charging {
		flags |= 1 << 7
	}
	if ev.Plugged {
		flags |= 1 << 6
	}
	if ev.QuickCharging {
		flags |= 1 << 5
	}
	if ev.ClimateOn {
		flags |= 1 << 4
	}
	flags = bitfield.Put32(flags, 2, 0, uint32(ev.Gear))
	p[0] = byte(flags)
	var health uint32
	health = bitfield.Put32(health, 15, 9, uint32(ev.SOC))
	health = bitfield.Put32(health, 8, 2, uint32(ev.SOH))
	binary.BigEndian.PutUint16(p[1:3], uint16(health))
	p[3] = byte(bitfield.Put32(uint32(ev.CapacityBars&0x0F), 7, 4, uint32(ev.ChargeBars)))
	binary.BigEndian.PutUint16(p[4:6], ev.RangeACOffKm)
	binary.BigEndian.PutUint16(p[6:8], ev.RangeACOnKm)
	binary.BigEndian.PutUint16(p[8:10], ev.FullIn100V)
	binary.BigEndian.PutUint16(p[10:12], ev.FullIn200V)
	binary.BigEndian.PutUint16(p[12:14], ev.FullInQuick)
	return p
}
