package mesh

// Box 定点经纬度外包框，最小边闭合、最大边开放
type Box struct {
	MinLat int64
	MinLon int64
	MaxLat int64
	MaxLon int64
}

// BoundingBox 解码网格ID并返回其外包框
func BoundingBox(id uint32) (Box, error) {
	c, err := Parse(id)
	if err != nil {
		return Box{}, err
	}
	return c.Box(), nil
}

// Contains 判断定点坐标是否落在框内
func (b Box) Contains(lat, lon int64) bool {
	return lat >= b.MinLat && lat < b.MaxLat && lon >= b.MinLon && lon < b.MaxLon
}

// Union 合并两个外包框
func (b Box) Union(o Box) Box {
	return Box{
		MinLat: min(b.MinLat, o.MinLat),
		MinLon: min(b.MinLon, o.MinLon),
		MaxLat: max(b.MaxLat, o.MaxLat),
		MaxLon: max(b.MaxLon, o.MaxLon),
	}
}

// Degrees 以十进制度返回四条边
func (b Box) Degrees() (minLat, minLon, maxLat, maxLon float64) {
	return ToDegrees(b.MinLat), ToDegrees(b.MinLon), ToDegrees(b.MaxLat), ToDegrees(b.MaxLon)
}
