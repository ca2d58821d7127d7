package zinx_server

import (
	"github.com/aceld/zinx/ziface"

	"github.com/bujia-iot/carwings-gateway/internal/domain/gdc_protocol"
)

// RawDataPack 实现Zinx框架的IDataPack接口。
// GDC响应是固定长度的原始字节，没有任何包头，封包时原样写出
type RawDataPack struct{}

// NewRawDataPack 创建原始封包器
func NewRawDataPack() *RawDataPack {
	return &RawDataPack{}
}

// GetHeadLen 没有包头
func (dp *RawDataPack) GetHeadLen() uint32 {
	return 0
}

// Pack 原样返回消息数据
func (dp *RawDataPack) Pack(msg ziface.IMessage) ([]byte, error) {
	return msg.GetData(), nil
}

// Unpack 以原始数据创建GDC消息
func (dp *RawDataPack) Unpack(binaryData []byte) (ziface.IMessage, error) {
	msg := gdc_protocol.NewMessage(append([]byte(nil), binaryData...))
	msg.SetMsgID(StreamMsgID)
	return msg, nil
}
