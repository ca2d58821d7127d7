package probe

import "time"

// 固定点坐标换算：1/512角秒
const fixedPerDegree = 3600 * 512

// HistogramBin 加速度/减速度/车速直方图的一格
type HistogramBin struct {
	Level uint8
	Count uint16
}

// ChargeEvent 充电过程中的事件
type ChargeEvent struct {
	Kind          uint8
	OffsetMinutes uint16
}

// CRM 标签表
//
//	vehicle         单例  0x01 车辆信息, 0x02 里程
//	trip            段首0x10  0x11 结束, 0x12 能耗, 0x13 加速直方图, 0x14 减速直方图, 0x15 起点
//	monthly         段首0x30  0x31 能耗统计
//	charge_history  段首0x40  0x41 结束, 0x42 充电事件
//	battery         单例  0x50 健康度, 0x51 单体电压
var CRM = &Table{
	Name: "crm",
	Labels: map[byte]Label{
		0x01: {Section: "vehicle", Size: 20, Rule: "vehicle_info"},
		0x02: {Section: "vehicle", Size: 7, Rule: "vehicle_odometer"},
		0x10: {Section: "trip", Size: 11, Rule: "trip_start", Head: true},
		0x11: {Section: "trip", Size: 13, Rule: "trip_end"},
		0x12: {Section: "trip", Size: 8, Rule: "trip_energy"},
		0x13: {Section: "trip", Size: 2, Repeat: &Repeat{CountOffset: 1, CountSize: 1, ItemSize: 3}, Rule: "trip_acceleration"},
		0x14: {Section: "trip", Size: 2, Repeat: &Repeat{CountOffset: 1, CountSize: 1, ItemSize: 3}, Rule: "trip_deceleration"},
		0x15: {Section: "trip", Size: 9, Rule: "trip_position"},
		0x30: {Section: "monthly", Size: 9, Rule: "monthly_summary", Head: true},
		0x31: {Section: "monthly", Size: 11, Rule: "monthly_energy"},
		0x40: {Section: "charge_history", Size: 9, Rule: "charge_start", Head: true},
		0x41: {Section: "charge_history", Size: 10, Rule: "charge_end"},
		0x42: {Section: "charge_history", Size: 2, Repeat: &Repeat{CountOffset: 1, CountSize: 1, ItemSize: 3}, Rule: "charge_events"},
		0x50: {Section: "battery", Size: 12, Rule: "battery_health"},
		0x51: {Section: "battery", Size: 2, Repeat: &Repeat{CountOffset: 1, CountSize: 1, ItemSize: 2}, Rule: "battery_cells"},
	},
	Rules: map[string]Rule{
		"vehicle_info": func(r *Record, b *Block) {
			r.Set("vin", b.String(1, 17))
			r.Set("model_year", b.U8(18))
			r.Set("battery_type", b.U8(19))
		},
		"vehicle_odometer": func(r *Record, b *Block) {
			r.Set("odometer_km", b.U32(1))
			r.Set("trip_count", b.U16(5))
		},
		"trip_start": func(r *Record, b *Block) {
			r.Set("start_time", b.Calendar(1))
			r.Set("start_odometer_km", b.U32(7))
		},
		"trip_end": func(r *Record, b *Block) {
			r.Set("end_time", b.Calendar(1))
			r.Set("end_odometer_km", b.U32(7))
			r.Set("distance_km", float64(b.U16(11))/10)
		},
		"trip_energy": func(r *Record, b *Block) {
			r.Set("consumed_wh", uint32(b.U16(1))*10)
			r.Set("regenerated_wh", uint32(b.U16(3))*10)
			r.Set("auxiliary_wh", uint32(b.U16(5))*10)
			r.Set("average_speed_kmh", b.U8(7))
		},
		"trip_acceleration": histogramRule("acceleration"),
		"trip_deceleration": histogramRule("deceleration"),
		"trip_position": func(r *Record, b *Block) {
			r.Set("start_lat", float64(b.I32(1))/fixedPerDegree)
			r.Set("start_lon", float64(b.I32(5))/fixedPerDegree)
		},
		"monthly_summary": func(r *Record, b *Block) {
			r.Set("year", 2000+int(b.U8(1)))
			r.Set("month", time.Month(b.U8(2)))
			r.Set("distance_km", float64(b.U32(3))/10)
			r.Set("trip_count", b.U16(7))
		},
		"monthly_energy": func(r *Record, b *Block) {
			r.Set("consumed_wh", b.U32(1))
			r.Set("regenerated_wh", b.U32(5))
			r.Set("charge_count", b.U16(9))
		},
		// 充电开始块：时间在SOC之前
		"charge_start": func(r *Record, b *Block) {
			r.Set("start_time", b.Calendar(1))
			r.Set("start_soc", b.U8(7))
			r.Set("charge_type", b.U8(8))
		},
		// 充电结束块：SOC在时间之前
		"charge_end": func(r *Record, b *Block) {
			r.Set("end_soc", b.U8(1))
			r.Set("end_time", b.Calendar(2))
			r.Set("charged_wh", uint32(b.U16(8))*10)
		},
		"charge_events": func(r *Record, b *Block) {
			items := b.Items()
			events := make([]ChargeEvent, 0, len(items))
			for _, it := range items {
				events = append(events, ChargeEvent{Kind: it.U8(0), OffsetMinutes: it.U16(1)})
			}
			r.Set("events", events)
		},
		"battery_health": func(r *Record, b *Block) {
			r.Set("soh_percent", b.U8(1))
			r.Set("capacity_kwh", float64(b.U16(2))/10)
			r.Set("cell_temp_max_c", int(b.U8(4))-40)
			r.Set("cell_temp_min_c", int(b.U8(5))-40)
			r.Set("measured_at", b.Calendar(6))
		},
		"battery_cells": func(r *Record, b *Block) {
			items := b.Items()
			cells := make([]uint16, 0, len(items))
			for _, it := range items {
				cells = append(cells, it.U16(0))
			}
			r.Set("cell_voltages_mv", cells)
		},
	},
	Singletons: map[string]bool{"vehicle": true, "battery": true},
}

// histogramRule 解析 [u8 计数]{[u8 档位][u16 次数]} 直方图
func histogramRule(field string) Rule {
	return func(r *Record, b *Block) {
		items := b.Items()
		bins := make([]HistogramBin, 0, len(items))
		for _, it := range items {
			bins = append(bins, HistogramBin{Level: it.U8(0), Count: it.U16(1)})
		}
		r.Set(field, bins)
	}
}

// DecodeCRM 以当前时间解码CRM日志
func DecodeCRM(data []byte) (*Result, error) {
	return Decode(CRM, data, time.Now())
}
