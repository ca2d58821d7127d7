package recordenc

import (
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// POI记录字段上限
const (
	MaxPOIName    = 0x40
	MaxPOIAddress = 0x80
	MaxPOIPhone   = 0x18
	MaxPOIHours   = 0x100
	MaxPOIBatch   = 150
)

// 接口类型标志
const (
	ConnectorJ1772    uint16 = 1 << 0
	ConnectorType2    uint16 = 1 << 1
	ConnectorCHAdeMO  uint16 = 1 << 2
	ConnectorCCS      uint16 = 1 << 3
	ConnectorDomestic uint16 = 1 << 4
)

// POI 充电桩详情记录
type POI struct {
	ID         uint32
	Name       string
	Address    string
	Coordinate [10]byte
	Connectors uint16
	UsageType  uint8
	Phone      string
	Hours      string
}

// writePOI 记录布局:
// [u32 id][str8 名称][str8 地址][10B 坐标][u16 接口标志][u8 使用类型][str8 电话][str16 营业时间]
func writePOI(w *Writer, p POI) {
	w.U32(p.ID).
		Str8("poi name", p.Name, MaxPOIName).
		Str8("poi address", p.Address, MaxPOIAddress).
		Raw(p.Coordinate[:]).
		U16(p.Connectors).
		U8(p.UsageType).
		Str8("poi phone", p.Phone, MaxPOIPhone).
		Str16("poi hours", p.Hours, MaxPOIHours)
}

// EncodePOIs 编码POI详情文件: [u16 记录数]{POI记录}
func EncodePOIs(pois []POI) ([]byte, error) {
	if len(pois) > 0xFFFF {
		return nil, errors.Newf(errors.ErrEncodeConstraint, "pois: %d exceeds 65535", len(pois))
	}
	w := NewWriter(64 * len(pois))
	w.U16(uint16(len(pois)))
	for _, p := range pois {
		writePOI(w, p)
	}
	return w.Finish()
}

// MeshCharger 网格块中的一个充电桩
type MeshCharger struct {
	ID         uint32
	Coordinate [10]byte
}

// MeshBlock 一个网格ID下的充电桩列表
type MeshBlock struct {
	MeshID   uint32
	Chargers []MeshCharger
}

// EncodeMeshBlocks 编码网格块文件: [u16 块数]{[u32 网格ID][u16 数量]{[u32 id][10B 坐标]}}
func EncodeMeshBlocks(blocks []MeshBlock) ([]byte, error) {
	if len(blocks) > 0xFFFF {
		return nil, errors.Newf(errors.ErrEncodeConstraint, "mesh blocks: %d exceeds 65535", len(blocks))
	}
	w := NewWriter(256)
	w.U16(uint16(len(blocks)))
	for _, b := range blocks {
		if len(b.Chargers) > 0xFFFF {
			return nil, errors.Newf(errors.ErrEncodeConstraint, "mesh %08X: %d chargers exceeds 65535", b.MeshID, len(b.Chargers))
		}
		w.U32(b.MeshID).U16(uint16(len(b.Chargers)))
		for _, c := range b.Chargers {
			w.U32(c.ID).Raw(c.Coordinate[:])
		}
	}
	return w.Finish()
}
