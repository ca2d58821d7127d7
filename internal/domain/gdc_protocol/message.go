package gdc_protocol

import (
	"github.com/aceld/zinx/ziface"
)

// Message 实现了Zinx框架的IMessage接口，表示一个原始GDC帧
// MsgID 取包类型字节，用于路由到对应的处理器
type Message struct {
	Id      uint32
	DataLen uint32
	Data    []byte
	RawData []byte
}

// NewMessage 以原始帧创建消息
func NewMessage(raw []byte) *Message {
	var id uint32
	if len(raw) > 0 {
		id = uint32(raw[offType])
	}
	return &Message{Id: id, DataLen: uint32(len(raw)), Data: raw, RawData: raw}
}

// GetMsgID 实现IMessage接口，获取消息ID
func (m *Message) GetMsgID() uint32 {
	return m.Id
}

// GetDataLen 实现IMessage接口，获取数据长度
func (m *Message) GetDataLen() uint32 {
	return m.DataLen
}

// GetData 实现IMessage接口，获取数据内容
func (m *Message) GetData() []byte {
	return m.Data
}

// GetRawData 实现IMessage接口，获取原始数据
func (m *Message) GetRawData() []byte {
	return m.RawData
}

// SetMsgID 实现IMessage接口，设置消息ID
func (m *Message) SetMsgID(id uint32) {
	m.Id = id
}

// SetDataLen 实现IMessage接口，设置数据长度
func (m *Message) SetDataLen(dataLen uint32) {
	m.DataLen = dataLen
}

// SetData 实现IMessage接口，设置数据内容
func (m *Message) SetData(data []byte) {
	m.Data = data
	m.DataLen = uint32(len(data))
}

// IMessageToGDCMessage 将Zinx IMessage转换为GDC Message
func IMessageToGDCMessage(msg ziface.IMessage) (*Message, bool) {
	m, ok := msg.(*Message)
	return m, ok
}
