package carwings

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/domain/carwings"
	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/pkg/codec"
	"github.com/bujia-iot/carwings-gateway/pkg/diagnostics"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
	"github.com/bujia-iot/carwings-gateway/pkg/recordenc"
	"github.com/bujia-iot/carwings-gateway/pkg/textutil"
)

// DirectoryFile 目录响应文件名
const DirectoryFile = "DJDIR.BIN"

// 内置频道
const (
	ChannelVehicleStatus  uint16 = 0x0001
	ChannelNearbyChargers uint16 = 0x0002
	ChannelServerInfo     uint16 = 0x0003
	ChannelFavoritesHelp  uint16 = 0x0004
)

// 目录文件夹
const (
	folderVehicle uint16 = 1
	folderInfo    uint16 = 2
	folderCustom  uint16 = 3
)

// ChannelFile 频道内容文件名
func ChannelFile(id uint16) string {
	return fmt.Sprintf("DJ%04X.BIN", id)
}

// page 一页频道内容
type page struct {
	items  []recordenc.Item
	footer recordenc.Footer
}

type producer func(ctx context.Context, req *Request, offset uint16) (*page, error)

type channel struct {
	recordenc.Channel
	folder  uint16
	produce producer
}

type autoDJHandler struct {
	registry  vehicle.Registry
	directory carwings.ChargerDirectory
	diag      diagnostics.Sink
	cfg       config.CarwingsConfig

	// catalog 内置频道，按目录顺序
	catalog  []*channel
	channels map[uint16]*channel
}

func newAutoDJHandler(registry vehicle.Registry, directory carwings.ChargerDirectory, diag diagnostics.Sink, cfg config.CarwingsConfig) *autoDJHandler {
	h := &autoDJHandler{
		registry:  registry,
		directory: directory,
		diag:      diag,
		cfg:       cfg,
		channels:  make(map[uint16]*channel),
	}
	if h.cfg.CustomChannelBase == 0 {
		h.cfg.CustomChannelBase = 0x8000
	}
	h.catalog = []*channel{
		{Channel: recordenc.Channel{ID: ChannelVehicleStatus, Name: "Vehicle status", Icon: iconBattery, AuthRequired: true}, folder: folderVehicle, produce: h.vehicleStatus},
		{Channel: recordenc.Channel{ID: ChannelNearbyChargers, Name: "Nearby chargers", Icon: iconCharger, AuthRequired: true}, folder: folderVehicle, produce: h.nearbyChargers},
		{Channel: recordenc.Channel{ID: ChannelServerInfo, Name: "Server information", Icon: iconServer}, folder: folderInfo, produce: h.serverInfo},
		{Channel: recordenc.Channel{ID: ChannelFavoritesHelp, Name: "Favorites", Icon: iconStar}, folder: folderInfo, produce: h.favoritesHelp},
	}
	for _, ch := range h.catalog {
		h.channels[ch.ID] = ch
	}
	return h
}

// Handle 处理DJ上传
func (h *autoDJHandler) Handle(ctx context.Context, req *Request) ([]codec.File, error) {
	upload := req.Upload()
	if upload == nil {
		return nil, errors.New(errors.ErrMalformedInput, "dj upload missing")
	}
	dj, err := carwings.ParseDJRequest(upload)
	if err != nil {
		return nil, err
	}

	switch dj.Action {
	case carwings.DJActionStoreFavorite:
		// 收藏暂不解析，仅留档
		h.record(ctx, diagnostics.KindDJFavorite, req, upload)
		return nil, nil
	case carwings.DJActionRequest:
		switch dj.Handler {
		case carwings.DJHandlerDirectory:
			return h.directoryFiles(ctx, req)
		case carwings.DJHandlerChannel:
			if !dj.HasChannel {
				return nil, errors.New(errors.ErrMalformedInput, "dj channel request without channel id")
			}
			return h.channelFiles(ctx, req, dj.Channel, dj.Offset)
		}
	}

	h.record(ctx, diagnostics.KindDJUnknown, req, upload)
	return nil, nil
}

func (h *autoDJHandler) record(ctx context.Context, kind string, req *Request, payload []byte) {
	if err := h.diag.Record(ctx, kind, req.VIN(), payload); err != nil {
		logger.WithFields(logrus.Fields{
			"kind":  kind,
			"vin":   req.VIN(),
			"error": err.Error(),
		}).Warn("诊断数据保存失败")
	}
}

// directoryFiles 0x101: 完整目录 + 收藏
func (h *autoDJHandler) directoryFiles(ctx context.Context, req *Request) ([]codec.File, error) {
	folders := []recordenc.Folder{
		{ID: folderVehicle, Name: "Vehicle"},
		{ID: folderInfo, Name: "Information"},
	}
	for _, ch := range h.catalog {
		for i := range folders {
			if folders[i].ID == ch.folder {
				folders[i].Channels = append(folders[i].Channels, ch.Channel)
			}
		}
	}

	if req.Authenticated {
		custom, err := h.registry.CustomChannels(ctx, req.VIN())
		if err != nil {
			return nil, errors.Wrap(errors.ErrExternalFailure, "load custom channels", err)
		}
		if len(custom) > 0 {
			f := recordenc.Folder{ID: folderCustom, Name: "My channels"}
			for i, c := range custom {
				if i > 0xFF || int(h.cfg.CustomChannelBase)+i > 0xFFFF {
					break
				}
				f.Channels = append(f.Channels, recordenc.Channel{
					ID:           h.cfg.CustomChannelBase + uint16(i),
					Name:         textutil.Legacy(c.Name, recordenc.MaxDirName),
					Icon:         iconCustom,
					AuthRequired: true,
				})
			}
			folders = append(folders, f)
		}
	}

	data, err := recordenc.EncodeDirectory(folders, []uint16{ChannelVehicleStatus, ChannelNearbyChargers})
	if err != nil {
		return nil, err
	}
	return []codec.File{{Name: DirectoryFile, Content: data}}, nil
}

// channelFiles 0x102: 按频道ID分发
func (h *autoDJHandler) channelFiles(ctx context.Context, req *Request, id, offset uint16) ([]codec.File, error) {
	p, err := h.resolve(ctx, req, id, offset)
	if err != nil {
		return nil, err
	}
	data, err := recordenc.EncodeItems(p.items, p.footer)
	if err != nil {
		return nil, err
	}
	return []codec.File{{Name: ChannelFile(id), Content: data}}, nil
}

func (h *autoDJHandler) resolve(ctx context.Context, req *Request, id, offset uint16) (*page, error) {
	if id >= h.cfg.CustomChannelBase {
		if !req.Authenticated {
			return notAuthorizedPage(), nil
		}
		return h.customChannel(ctx, req, int(id-h.cfg.CustomChannelBase))
	}

	ch, ok := h.channels[id]
	if !ok {
		return notFoundPage(), nil
	}
	if ch.AuthRequired && !req.Authenticated {
		return notAuthorizedPage(), nil
	}
	return ch.produce(ctx, req, offset)
}
