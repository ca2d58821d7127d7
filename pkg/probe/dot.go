package probe

import "time"

// AccelEvent 急加速/急减速事件
type AccelEvent struct {
	G          float64
	DurationMs uint16
}

// DOT 标签表，时间戳为 [u16 GPS周][u32 周内秒]
//
//	header  单例  0x80 文件头
//	drive   段首0x81  0x82 距离与车速, 0x83 车速直方图
//	track   段首0x90  0x91 航向与卫星
//	ev      段首0xA0  0xA1 急加速, 0xA2 急减速
var DOT = &Table{
	Name: "dot",
	Labels: map[byte]Label{
		0x80: {Section: "header", Size: 25, Rule: "header"},
		0x81: {Section: "drive", Size: 9, Rule: "drive_start", Head: true},
		0x82: {Section: "drive", Size: 9, Rule: "drive_distance"},
		0x83: {Section: "drive", Size: 2, Repeat: &Repeat{CountOffset: 1, CountSize: 1, ItemSize: 3}, Rule: "drive_speed_histogram"},
		0x90: {Section: "track", Size: 15, Rule: "track_point", Head: true},
		0x91: {Section: "track", Size: 6, Rule: "track_motion"},
		0xA0: {Section: "ev", Size: 10, Rule: "ev_sample", Head: true},
		0xA1: {Section: "ev", Size: 3, Repeat: &Repeat{CountOffset: 1, CountSize: 2, ItemSize: 4}, Rule: "ev_acceleration"},
		0xA2: {Section: "ev", Size: 3, Repeat: &Repeat{CountOffset: 1, CountSize: 2, ItemSize: 4}, Rule: "ev_deceleration"},
	},
	Rules: map[string]Rule{
		"header": func(r *Record, b *Block) {
			r.Set("format_version", b.U8(1))
			r.Set("vin", b.String(2, 17))
			r.Set("recorded_at", b.GPSTime(19))
		},
		"drive_start": func(r *Record, b *Block) {
			r.Set("start_time", b.GPSTime(1))
			r.Set("duration_s", b.U16(7))
		},
		"drive_distance": func(r *Record, b *Block) {
			r.Set("distance_m", b.U32(1))
			r.Set("max_speed_kmh", float64(b.U16(5))/10)
			r.Set("average_speed_kmh", float64(b.U16(7))/10)
		},
		"drive_speed_histogram": histogramRule("speed_histogram"),
		"track_point": func(r *Record, b *Block) {
			r.Set("time", b.GPSTime(1))
			r.Set("lat", float64(b.I32(7))/fixedPerDegree)
			r.Set("lon", float64(b.I32(11))/fixedPerDegree)
		},
		"track_motion": func(r *Record, b *Block) {
			r.Set("heading_deg", float64(b.U16(1))/100)
			r.Set("speed_kmh", float64(b.U16(3))/10)
			r.Set("satellites", b.U8(5))
		},
		"ev_sample": func(r *Record, b *Block) {
			r.Set("time", b.GPSTime(1))
			r.Set("soc", b.U8(7))
			r.Set("power_kw", float64(b.I16(8))/10)
		},
		"ev_acceleration": accelRule("acceleration"),
		"ev_deceleration": accelRule("deceleration"),
	},
	Singletons: map[string]bool{"header": true},
}

// accelRule 解析 [u16 计数]{[i16 千分之一g][u16 持续毫秒]}
func accelRule(field string) Rule {
	return func(r *Record, b *Block) {
		items := b.Items()
		events := make([]AccelEvent, 0, len(items))
		for _, it := range items {
			events = append(events, AccelEvent{G: float64(it.I16(0)) / 1000, DurationMs: it.U16(2)})
		}
		r.Set(field, events)
	}
}

// DecodeDOT 以当前时间解码DOT日志
func DecodeDOT(data []byte) (*Result, error) {
	return Decode(DOT, data, time.Now())
}

func init() {
	for _, t := range []*Table{CRM, DOT} {
		if err := t.Validate(); err != nil {
			panic(err)
		}
	}
}
