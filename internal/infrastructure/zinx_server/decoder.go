package zinx_server

import (
	"github.com/aceld/zinx/ziface"
	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
)

// StreamMsgID 所有原始数据块路由到同一个处理器，帧重组在路由器内完成
const StreamMsgID uint32 = 1

// GDCDecoder GDC原始数据解码器
// GDC帧没有长度前缀，不能交给Zinx的长度字段解码器切分；
// 这里只把读到的数据块原样交给路由器，粘包/半包由连接上的Splitter处理
type GDCDecoder struct{}

// NewGDCDecoder 创建解码器
func NewGDCDecoder() *GDCDecoder {
	return &GDCDecoder{}
}

// GetLengthField 实现IDecoder接口，返回nil表示不按长度字段切分
func (d *GDCDecoder) GetLengthField() *ziface.LengthField {
	return nil
}

// Intercept 实现IDecoder接口，设置消息ID
func (d *GDCDecoder) Intercept(chain ziface.IChain) ziface.IcResp {
	iMessage := chain.GetIMessage()
	if iMessage == nil {
		return chain.ProceedWithIMessage(iMessage, nil)
	}

	// Zinx在连接上复用读缓冲区，交给工作池前必须复制
	data := append([]byte(nil), iMessage.GetData()...)

	iMessage.SetMsgID(StreamMsgID)
	iMessage.SetDataLen(uint32(len(data)))
	iMessage.SetData(data)

	logger.WithFields(logrus.Fields{
		"dataLen": len(data),
	}).Debug("GDCDecoder: 收到原始数据块")

	return chain.ProceedWithIMessage(iMessage, data)
}
