// Package mesh 实现旧式网格编码与经纬度之间的定点换算。
//
// 网格ID为32位打包整数：
//
//	bits 31..28  头部半字节H，判定级别 = H在4位内循环右移1位，有效值1..6
//	bits 27..20  A 一级纬度索引（有符号）
//	bits 19..12  B 一级经度索引（有符号）
//	bits 11..9   C 二级纬度（0..7）
//	bits  8..6   D 二级经度（0..7）
//	bits  5..3   E 三级纬度（0..7）
//	bits  2..0   F 三级经度（0..7）
//
// 所有坐标均为 1/512 角秒定点值（度 × 3600 × 512）。
package mesh

import (
	"github.com/bujia-iot/carwings-gateway/pkg/bitfield"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// UnitsPerDegree 每度对应的定点单位
const UnitsPerDegree = 3600 * 512

// 网格尺寸（定点单位）
const (
	PrimaryLat   = UnitsPerDegree * 40 / 60 // 40′
	PrimaryLon   = UnitsPerDegree           // 1°
	SecondaryLat = PrimaryLat / 8
	SecondaryLon = PrimaryLon / 8
	TertiaryLat  = PrimaryLat / 64
	TertiaryLon  = PrimaryLon / 64

	// LonOrigin 经度原点 100°E
	LonOrigin = 100 * UnitsPerDegree

	maxLon = 180 * UnitsPerDegree
)

// RootID 第6级（根）网格的唯一合法ID
const RootID uint32 = 0xC0000000

// PointMax 网格内偏移x/y的最大值
const PointMax = 0x7FF

const pointScale = PointMax + 1

// Level 网格判定级别
type Level uint8

const (
	LevelTertiary  Level = 1 // 三级网格
	LevelSecondary Level = 2 // 二级网格
	LevelPrimary   Level = 3 // 一级网格
	LevelBlock2    Level = 4 // 2×2一级网格块
	LevelBlock4    Level = 5 // 4×4一级网格块
	LevelRoot      Level = 6 // 根
)

// 各级别换算表，下标为级别，0号不使用
var (
	// 纬度权重 [A, C, E]
	latWeights = [7][3]int64{
		{},
		{PrimaryLat, SecondaryLat, TertiaryLat},
		{PrimaryLat, SecondaryLat, TertiaryLat},
		{PrimaryLat, SecondaryLat, TertiaryLat},
		{PrimaryLat, 0, 0},
		{PrimaryLat, 0, 0},
		{0, 0, 0},
	}
	// 经度权重 [B, D, F]
	lonWeights = [7][3]int64{
		{},
		{PrimaryLon, SecondaryLon, TertiaryLon},
		{PrimaryLon, SecondaryLon, TertiaryLon},
		{PrimaryLon, SecondaryLon, TertiaryLon},
		{PrimaryLon, 0, 0},
		{PrimaryLon, 0, 0},
		{0, 0, 0},
	}
	// 单元纬度跨度
	cellLat = [7]int64{0, TertiaryLat, SecondaryLat, PrimaryLat, 2 * PrimaryLat, 4 * PrimaryLat, 128 * PrimaryLat}
	// 单元经度跨度
	cellLon = [7]int64{0, TertiaryLon, SecondaryLon, PrimaryLon, 2 * PrimaryLon, 4 * PrimaryLon, 80 * PrimaryLon}
)

// Cell 解码后的网格单元
type Cell struct {
	ID    uint32
	Level Level
	A, B  int32
	C, D  uint8
	E, F  uint8
}

// judgeLevel 头部半字节在4位内循环右移1位
func judgeLevel(h uint32) Level {
	return Level(((h >> 1) | (h << 3)) & 0xF)
}

// headerOf 判定级别在4位内循环左移1位，得到头部半字节
func headerOf(lv Level) uint32 {
	v := uint32(lv) & 0xF
	return ((v << 1) | (v >> 3)) & 0xF
}

// Parse 解码并校验网格ID；非法ID一律拒绝，不会被当作第1级处理
func Parse(id uint32) (Cell, error) {
	lv := judgeLevel(bitfield.Uint32(id, 31, 28))
	if lv < LevelTertiary || lv > LevelRoot {
		return Cell{}, errors.Newf(errors.ErrInvalidMesh, "mesh %08X: judge level %d out of range", id, lv)
	}
	c := Cell{
		ID:    id,
		Level: lv,
		A:     bitfield.Int32(id, 27, 20),
		B:     bitfield.Int32(id, 19, 12),
		C:     uint8(bitfield.Uint32(id, 11, 9)),
		D:     uint8(bitfield.Uint32(id, 8, 6)),
		E:     uint8(bitfield.Uint32(id, 5, 3)),
		F:     uint8(bitfield.Uint32(id, 2, 0)),
	}
	if err := c.validate(); err != nil {
		return Cell{}, err
	}
	return c, nil
}

func (c Cell) validate() error {
	switch c.Level {
	case LevelRoot:
		if c.ID != RootID {
			return errors.Newf(errors.ErrInvalidMesh, "mesh %08X: root level requires %08X", c.ID, RootID)
		}
		return nil
	case LevelTertiary:
		return c.checkLonRange()
	case LevelSecondary:
		if c.E != 0 || c.F != 0 {
			return errors.Newf(errors.ErrInvalidMesh, "mesh %08X: secondary level with tertiary fields", c.ID)
		}
		return c.checkLonRange()
	}

	// 第3~5级: 不允许二级、三级子字段
	if c.C != 0 || c.D != 0 || c.E != 0 || c.F != 0 {
		return errors.Newf(errors.ErrInvalidMesh, "mesh %08X: level %d with sub-cell fields", c.ID, c.Level)
	}
	switch c.Level {
	case LevelBlock2:
		if c.A%2 != 0 || c.B%2 != 0 {
			return errors.Newf(errors.ErrInvalidMesh, "mesh %08X: 2x2 block requires even indexes", c.ID)
		}
	case LevelBlock4:
		if c.A%4 != 0 || c.B%4 != 0 {
			return errors.Newf(errors.ErrInvalidMesh, "mesh %08X: 4x4 block requires indexes aligned to 4", c.ID)
		}
	}
	return c.checkLonRange()
}

// checkLonRange 单元必须完整落在 [-180°, 180°] 内
func (c Cell) checkLonRange() error {
	_, lon := c.Base(false)
	if lon < -maxLon || lon+cellLon[c.Level] > maxLon {
		return errors.Newf(errors.ErrInvalidMesh, "mesh %08X: longitude out of range", c.ID)
	}
	return nil
}

// Base 返回单元左下角（或中心）的定点经纬度
func (c Cell) Base(center bool) (lat, lon int64) {
	lw := latWeights[c.Level]
	ow := lonWeights[c.Level]
	lat = int64(c.A)*lw[0] + int64(c.C)*lw[1] + int64(c.E)*lw[2]
	lon = LonOrigin + int64(c.B)*ow[0] + int64(c.D)*ow[1] + int64(c.F)*ow[2]
	if center {
		lat += cellLat[c.Level] / 2
		lon += cellLon[c.Level] / 2
	}
	return lat, lon
}

// Span 单元的纬度、经度跨度
func (c Cell) Span() (lat, lon int64) {
	return cellLat[c.Level], cellLon[c.Level]
}

// Box 返回单元的外包框
func (c Cell) Box() Box {
	lat, lon := c.Base(false)
	return Box{MinLat: lat, MinLon: lon, MaxLat: lat + cellLat[c.Level], MaxLon: lon + cellLon[c.Level]}
}

// MapPoint 定点经纬度
type MapPoint struct {
	Lat int64
	Lon int64
}

// Degrees 转换为十进制度
func (p MapPoint) Degrees() (lat, lon float64) {
	return ToDegrees(p.Lat), ToDegrees(p.Lon)
}

// MeshPointToMapPoint 网格内(x, y)偏移换算为定点经纬度
// x沿经度方向，y沿纬度方向，取值范围 [0, 0x7FF]
func MeshPointToMapPoint(id uint32, x, y int) (MapPoint, error) {
	if x < 0 || x > PointMax || y < 0 || y > PointMax {
		return MapPoint{}, errors.Newf(errors.ErrInvalidMesh, "mesh %08X: point (%d,%d) out of range", id, x, y)
	}
	c, err := Parse(id)
	if err != nil {
		return MapPoint{}, err
	}
	lat, lon := c.Base(false)
	return MapPoint{
		Lat: lat + int64(y)*cellLat[c.Level]/pointScale,
		Lon: lon + int64(x)*cellLon[c.Level]/pointScale,
	}, nil
}

// Encode 按级别与子字段打包网格ID，并做与Parse相同的合法性校验
func Encode(lv Level, a, b int32, c, d, e, f uint8) (uint32, error) {
	if lv < LevelTertiary || lv > LevelRoot {
		return 0, errors.Newf(errors.ErrInvalidMesh, "level %d out of range", lv)
	}
	if a < -128 || a > 127 || b < -128 || b > 127 {
		return 0, errors.Newf(errors.ErrInvalidMesh, "primary index (%d,%d) out of range", a, b)
	}
	if c > 7 || d > 7 || e > 7 || f > 7 {
		return 0, errors.New(errors.ErrInvalidMesh, "sub-cell index out of range")
	}
	var id uint32
	id = bitfield.Put32(id, 31, 28, headerOf(lv))
	id = bitfield.Put32(id, 27, 20, uint32(a))
	id = bitfield.Put32(id, 19, 12, uint32(b))
	id = bitfield.Put32(id, 11, 9, uint32(c))
	id = bitfield.Put32(id, 8, 6, uint32(d))
	id = bitfield.Put32(id, 5, 3, uint32(e))
	id = bitfield.Put32(id, 2, 0, uint32(f))
	if _, err := Parse(id); err != nil {
		return 0, err
	}
	return id, nil
}

// Locate 返回包含给定定点坐标的三级网格ID
func Locate(lat, lon int64) (uint32, error) {
	a := floorDiv(lat, PrimaryLat)
	b := floorDiv(lon-LonOrigin, PrimaryLon)
	latRem := lat - a*PrimaryLat
	lonRem := lon - LonOrigin - b*PrimaryLon
	c := latRem / SecondaryLat
	d := lonRem / SecondaryLon
	e := (latRem - c*SecondaryLat) / TertiaryLat
	f := (lonRem - d*SecondaryLon) / TertiaryLon
	if a < -128 || a > 127 || b < -128 || b > 127 {
		return 0, errors.Newf(errors.ErrInvalidMesh, "point (%d,%d) outside mesh grid", lat, lon)
	}
	return Encode(LevelTertiary, int32(a), int32(b), uint8(c), uint8(d), uint8(e), uint8(f))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ToFixed 十进制度转定点值（四舍五入）
func ToFixed(deg float64) int64 {
	v := deg * UnitsPerDegree
	if v < 0 {
		return int64(v - 0.5)
	}
	return int64(v + 0.5)
}

// ToDegrees 定点值转十进制度
func ToDegrees(v int64) float64 {
	return float64(v) / UnitsPerDegree
}
