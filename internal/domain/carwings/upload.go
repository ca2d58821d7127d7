package carwings

import (
	"encoding/binary"

	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// DJ动作
const (
	DJActionStoreFavorite uint8 = 0x01
	DJActionRequest       uint8 = 0x02
)

// DJ处理器ID
const (
	DJHandlerDirectory uint16 = 0x101
	DJHandlerChannel   uint16 = 0x102
)

// DJRequest DJ上传文件
// 格式: [u8 动作][u16 处理器][u16 频道][u16 分页偏移(可选)]
type DJRequest struct {
	Action  uint8
	Handler uint16
	Channel uint16
	Offset  uint16
	// HasChannel 上传中是否带有频道字段
	HasChannel bool
	// Payload 收藏上传时动作字节之后的原始数据
	Payload []byte
}

// ParseDJRequest 解析DJ上传文件
func ParseDJRequest(b []byte) (*DJRequest, error) {
	if len(b) < 1 {
		return nil, errors.New(errors.ErrMalformedInput, "empty dj upload")
	}
	req := &DJRequest{Action: b[0]}
	if req.Action != DJActionRequest {
		req.Payload = append([]byte(nil), b[1:]...)
		return req, nil
	}
	if len(b) < 3 {
		return nil, errors.Newf(errors.ErrMalformedInput, "dj request too short: %d", len(b))
	}
	req.Handler = binary.BigEndian.Uint16(b[1:3])
	if len(b) >= 5 {
		req.Channel = binary.BigEndian.Uint16(b[3:5])
		req.HasChannel = true
	}
	if len(b) >= 7 {
		req.Offset = binary.BigEndian.Uint16(b[5:7])
	}
	return req, nil
}

// CP请求类型
const (
	CPKindPOIDetail uint16 = 276
	CPKindMeshSync  uint16 = 277
)

// CPRequest CP上传文件
// 格式: [u16 类型][类型相关正文]
type CPRequest struct {
	Kind uint16
	Body []byte
}

// ParseCPRequest 解析CP上传文件头
func ParseCPRequest(b []byte) (*CPRequest, error) {
	if len(b) < 2 {
		return nil, errors.Newf(errors.ErrMalformedInput, "cp upload too short: %d", len(b))
	}
	return &CPRequest{Kind: binary.BigEndian.Uint16(b[:2]), Body: b[2:]}, nil
}

// IDs 解析正文中的ID数组: [u16 数量]{[u32 id]}
func (r *CPRequest) IDs() ([]uint32, error) {
	if len(r.Body) < 2 {
		return nil, errors.Newf(errors.ErrMalformedInput, "cp kind %d: missing count", r.Kind)
	}
	count := int(binary.BigEndian.Uint16(r.Body[:2]))
	rest := r.Body[2:]
	if len(rest) != count*4 {
		return nil, errors.Newf(errors.ErrLengthMismatch, "cp kind %d: declare %d ids, have %d bytes", r.Kind, count, len(rest))
	}
	ids := make([]uint32, count)
	for i := range ids {
		ids[i] = binary.BigEndian.Uint32(rest[i*4:])
	}
	return ids, nil
}
