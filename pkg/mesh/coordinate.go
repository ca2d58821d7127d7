package mesh

import (
	"encoding/binary"

	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// CoordinateLen 编码后坐标长度
const CoordinateLen = 10

// DatumWGS84 坐标基准标识
const DatumWGS84 = 0x01

// EncodeCoordinate 十进制度坐标编码为10字节
// 格式: [基准 0x01][i32 纬度][i32 经度][0x00]，经纬度为1/512角秒定点值
func EncodeCoordinate(lat, lon float64) [CoordinateLen]byte {
	return EncodeFixed(ToFixed(lat), ToFixed(lon))
}

// EncodeFixed 定点坐标编码为10字节
func EncodeFixed(lat, lon int64) [CoordinateLen]byte {
	var out [CoordinateLen]byte
	out[0] = DatumWGS84
	binary.BigEndian.PutUint32(out[1:5], uint32(int32(lat)))
	binary.BigEndian.PutUint32(out[5:9], uint32(int32(lon)))
	return out
}

// DecodeCoordinate 解码10字节坐标，返回定点经纬度
func DecodeCoordinate(b []byte) (MapPoint, error) {
	if len(b) < CoordinateLen {
		return MapPoint{}, errors.Newf(errors.ErrMalformedInput, "coordinate too short: %d", len(b))
	}
	if b[0] != DatumWGS84 {
		return MapPoint{}, errors.Newf(errors.ErrMalformedInput, "unsupported datum 0x%02X", b[0])
	}
	return MapPoint{
		Lat: int64(int32(binary.BigEndian.Uint32(b[1:5]))),
		Lon: int64(int32(binary.BigEndian.Uint32(b[5:9]))),
	}, nil
}
