package gdc_protocol

// 包类型（首字节）
const (
	PacketInit   byte = 0x01
	PacketData   byte = 0x03
	PacketConfig byte = 0x05
)

// 响应类型 = 包类型 + 1
const (
	RespInit   byte = 0x02
	RespData   byte = 0x04
	RespConfig byte = 0x06
)

// 响应状态
const (
	StatusSuccess byte = 0x00
	StatusFailure byte = 0x01
)

// ResponseLen 响应固定长度
const ResponseLen = 8

// ConfigMarker CONFIG包第2字节的标记
const ConfigMarker byte = 0x5A

// ConfigFrameLen CONFIG包固定长度
const ConfigFrameLen = 597

// 固定偏移
const (
	offType       = 0
	offBodyType   = 1
	offVIN        = 2
	offTCUModel   = 19
	offTCUSerial  = 29
	offICCID      = 39
	offSoftware   = 59
	offCodes      = 67
	offUsername   = 71
	offPassword   = 103
	offGPSFlag    = 135
	offGPS        = 136
	offConfigTLV  = 71
	lenVIN        = 17
	lenTCUModel   = 10
	lenTCUSerial  = 10
	lenICCID      = 20
	lenSoftware   = 8
	lenCodes      = 4
	lenCredential = 32
	lenGPS        = 10
	lenEV         = 14
)

// MinFrameLen INIT/DATA最小长度：到GPS标志为止
const MinFrameLen = offGPSFlag + 1

// DATA包体类型
const (
	BodyStatus        byte = 0x01 // 状态上报
	BodyChargeStart   byte = 0x02 // 充电开始
	BodyChargeStop    byte = 0x03 // 充电结束
	BodyCableReminder byte = 0x04 // 充电线提醒
	BodyACResult      byte = 0x05 // 空调命令结果
	BodyRemoteStop    byte = 0x06 // 远程停止结果
	BodyChargeResult  byte = 0x07 // 充电命令结果
)

// IsResultBody 结果类包体在EV块后带1字节结果
func IsResultBody(t byte) bool {
	return t >= BodyACResult && t <= BodyChargeResult
}

// IsAlertBody 需要产生告警事件的包体
func IsAlertBody(t byte) bool {
	return t >= BodyChargeStart && t <= BodyChargeResult
}

// BodyName 包体类型名称，用于日志与告警
func BodyName(t byte) string {
	switch t {
	case BodyStatus:
		return "status"
	case BodyChargeStart:
		return "charge_start"
	case BodyChargeStop:
		return "charge_stop"
	case BodyCableReminder:
		return "cable_reminder"
	case BodyACResult:
		return "ac_result"
	case BodyRemoteStop:
		return "remote_stop_result"
	case BodyChargeResult:
		return "charge_result"
	}
	return "unknown"
}

// PacketName 包类型名称
func PacketName(t byte) string {
	switch t {
	case PacketInit:
		return "init"
	case PacketData:
		return "data"
	case PacketConfig:
		return "config"
	}
	return "unknown"
}

// CONFIG TLV标签
const (
	TagEnd         byte = 0x00
	TagDialCode    byte = 0x01
	TagAPN         byte = 0x02
	TagAPNUser     byte = 0x03
	TagAPNPassword byte = 0x04
	TagDNS1        byte = 0x05
	TagDNS2        byte = 0x06
	TagServerURL   byte = 0x81
	TagProxyURL    byte = 0x82
	TagProxyPort   byte = 0x83

	tagExplicit byte = 0x80
)

// fixedTagLen 定长标签的值长度
var fixedTagLen = map[byte]int{
	TagDialCode:    16,
	TagAPN:         32,
	TagAPNUser:     32,
	TagAPNPassword: 32,
	TagDNS1:        4,
	TagDNS2:        4,
}
