package carwings

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bujia-iot/carwings-gateway/internal/domain/carwings"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
	"github.com/bujia-iot/carwings-gateway/pkg/mesh"
	"github.com/bujia-iot/carwings-gateway/pkg/recordenc"
	"github.com/bujia-iot/carwings-gateway/pkg/textutil"
)

// 频道图标
const (
	iconInfo    uint8 = 0x01
	iconBattery uint8 = 0x02
	iconCharger uint8 = 0x03
	iconServer  uint8 = 0x04
	iconStar    uint8 = 0x05
	iconCustom  uint8 = 0x06
	iconLock    uint8 = 0x07
)

const (
	kmPerDegreeLat = 110.574
	kmPerDegreeLon = 111.320
)

func notFoundPage() *page {
	return &page{
		items: []recordenc.Item{{
			Icon:   iconInfo,
			Title1: "Channel not found",
			Text:   "This channel is not available.",
		}},
		footer: recordenc.EndFooter(),
	}
}

func notAuthorizedPage() *page {
	return &page{
		items: []recordenc.Item{{
			Icon:   iconLock,
			Title1: "Sign-in required",
			Text:   "Register this vehicle and sign in to use this channel.",
		}},
		footer: recordenc.MessageFooter("Authentication required"),
	}
}

func minutes(v uint16) string {
	if v == 0 || v == 0xFFFF {
		return "--"
	}
	return fmt.Sprintf("%d:%02d", v/60, v%60)
}

// vehicleStatus 0x0001 电池与充电状态
func (h *autoDJHandler) vehicleStatus(_ context.Context, req *Request, _ uint16) (*page, error) {
	v := req.Vehicle
	ev := v.EV

	battery := recordenc.Item{
		Icon:   iconBattery,
		Title1: "Battery",
		Title2: fmt.Sprintf("%d%%", ev.SOC),
		Text: fmt.Sprintf("Charge %d%%, health %d%%, %d/%d bars. Range %d km (A/C off), %d km (A/C on).",
			ev.SOC, ev.SOH, ev.ChargeBars, ev.CapacityBars, ev.RangeACOffKm, ev.RangeACOnKm),
	}
	if !ev.UpdatedAt.IsZero() {
		battery.Text += " Updated " + ev.UpdatedAt.UTC().Format("2006-01-02 15:04") + " UTC."
	}
	if v.GPS.Valid {
		battery.Coordinate = mesh.EncodeFixed(v.GPS.Lat, v.GPS.Lon)
		battery.Flags |= recordenc.ItemFlagNavigable
	}

	state := "Not plugged in"
	switch {
	case ev.QuickCharging:
		state = "Quick charging"
	case ev.Charging:
		state = "Charging"
	case ev.Plugged:
		state = "Plugged in"
	}
	charging := recordenc.Item{
		Icon:   iconCharger,
		Title1: "Charging",
		Title2: state,
		Text: fmt.Sprintf("Time to full: 100V %s, 200V %s, quick %s.",
			minutes(ev.FullIn100V), minutes(ev.FullIn200V), minutes(ev.FullInQuick)),
	}

	climate := recordenc.Item{Icon: iconInfo, Title1: "Climate", Title2: "Off"}
	if ev.ClimateOn {
		climate.Title2 = "On"
	}

	return &page{
		items:  []recordenc.Item{battery, charging, climate},
		footer: recordenc.RefreshFooter(h.cfg.RefreshMinutes),
	}, nil
}

// position 优先使用注册表中的有效GPS，其次使用请求XML中的坐标
func position(req *Request) (lat, lon float64, ok bool) {
	if req.Vehicle != nil && req.Vehicle.GPS.Valid {
		lat, lon = req.Vehicle.GPS.Degrees()
		return lat, lon, true
	}
	return req.XML.Position()
}

// nearbyBox 以位置为中心、半径为radiusKm的外包框
func nearbyBox(lat, lon float64, radiusKm int) mesh.Box {
	dLat := float64(radiusKm) / kmPerDegreeLat
	dLon := float64(radiusKm) / (kmPerDegreeLon * math.Max(math.Cos(lat*math.Pi/180), 0.01))
	return mesh.Box{
		MinLat: mesh.ToFixed(lat - dLat),
		MinLon: mesh.ToFixed(lon - dLon),
		MaxLat: mesh.ToFixed(lat + dLat),
		MaxLon: mesh.ToFixed(lon + dLon),
	}
}

// distanceKm 等距矩形近似，附近搜索足够
func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dy := (lat2 - lat1) * kmPerDegreeLat
	dx := (lon2 - lon1) * kmPerDegreeLon * math.Cos((lat1+lat2)/2*math.Pi/180)
	return math.Hypot(dx, dy)
}

// nearbyChargers 0x0002 附近充电桩，按距离排序分页
func (h *autoDJHandler) nearbyChargers(ctx context.Context, req *Request, offset uint16) (*page, error) {
	lat, lon, ok := position(req)
	if !ok {
		return &page{footer: recordenc.MessageFooter("Position unavailable")}, nil
	}
	centre := mesh.EncodeCoordinate(lat, lon)

	summaries, err := h.directory.QueryBox(ctx, nearbyBox(lat, lon, h.cfg.NearbyRadiusKm))
	if err != nil {
		return nil, errors.Wrap(errors.ErrExternalFailure, "query chargers", err)
	}
	dist := make(map[uint32]float64, len(summaries))
	for _, s := range summaries {
		dist[s.ID] = distanceKm(lat, lon, mesh.ToDegrees(s.Lat), mesh.ToDegrees(s.Lon))
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return dist[summaries[i].ID] < dist[summaries[j].ID]
	})

	start := int(offset)
	if start >= len(summaries) {
		return &page{footer: recordenc.MapCentreFooter(centre)}, nil
	}
	end := min(start+recordenc.MaxItems, len(summaries))

	ids := make([]uint32, 0, end-start)
	for _, s := range summaries[start:end] {
		ids = append(ids, s.ID)
	}
	details, err := h.directory.FetchDetails(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(errors.ErrExternalFailure, "fetch charger details", err)
	}
	byID := make(map[uint32]carwings.ChargerDetail, len(details))
	for _, d := range details {
		byID[d.ID] = d
	}

	p := &page{footer: recordenc.MapCentreFooter(centre)}
	for _, s := range summaries[start:end] {
		item := recordenc.Item{
			Icon:       iconCharger,
			Flags:      recordenc.ItemFlagNavigable,
			Title1:     fmt.Sprintf("Charger %d", s.ID),
			Title2:     fmt.Sprintf("%.1f km", dist[s.ID]),
			Coordinate: mesh.EncodeFixed(s.Lat, s.Lon),
		}
		if d, ok := byID[s.ID]; ok {
			item.Title1 = textutil.Legacy(d.Name, recordenc.MaxTitle)
			item.Text = textutil.Legacy(strings.TrimSpace(d.Address+" "+d.Hours), recordenc.MaxText)
			item.Phone = textutil.Legacy(d.Phone, recordenc.MaxPhone)
			if item.Phone != "" {
				item.Flags |= recordenc.ItemFlagCallable
			}
		}
		p.items = append(p.items, item)
	}
	if end < len(summaries) {
		p.footer = recordenc.NextPageFooter(uint16(end))
	}
	return p, nil
}

// serverInfo 0x0003 服务器信息
func (h *autoDJHandler) serverInfo(_ context.Context, req *Request, _ uint16) (*page, error) {
	return &page{
		items: []recordenc.Item{{
			Icon:   iconServer,
			Title1: textutil.Legacy(h.cfg.ServerName, recordenc.MaxTitle),
			Title2: "Online",
			Text:   "Server time " + req.Now.UTC().Format("2006-01-02 15:04:05") + " UTC.",
		}},
		footer: recordenc.TimestampFooter(uint32(req.Now.Unix())),
	}, nil
}

// favoritesHelp 0x0004 收藏说明
func (h *autoDJHandler) favoritesHelp(context.Context, *Request, uint16) (*page, error) {
	return &page{
		items: []recordenc.Item{{
			Icon:   iconStar,
			Title1: "Favorites",
			Text:   "Press and hold a channel in the list to store it as a favorite.",
		}},
		footer: recordenc.RedirectFooter(ChannelVehicleStatus),
	}, nil
}

// customChannel 车主自定义频道，n为相对起始ID的偏移
func (h *autoDJHandler) customChannel(ctx context.Context, req *Request, n int) (*page, error) {
	custom, err := h.registry.CustomChannels(ctx, req.VIN())
	if err != nil {
		return nil, errors.Wrap(errors.ErrExternalFailure, "load custom channels", err)
	}
	if n < 0 || n >= len(custom) {
		return notFoundPage(), nil
	}
	c := custom[n]

	title := c.Title
	if title == "" {
		title = c.Name
	}
	item := recordenc.Item{
		Icon:   iconCustom,
		Title1: textutil.Legacy(title, recordenc.MaxTitle),
		Text:   textutil.Legacy(c.Body, recordenc.MaxText),
		Phone:  textutil.Legacy(c.Phone, recordenc.MaxPhone),
	}
	if c.Lat != 0 || c.Lon != 0 {
		item.Coordinate = mesh.EncodeCoordinate(c.Lat, c.Lon)
		item.Flags |= recordenc.ItemFlagNavigable
	}
	if item.Phone != "" {
		item.Flags |= recordenc.ItemFlagCallable
	}
	return &page{
		items:  []recordenc.Item{item},
		footer: recordenc.RefreshFooter(h.cfg.RefreshMinutes),
	}, nil
}
