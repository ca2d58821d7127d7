package carwings

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/carwings-gateway/internal/domain/carwings"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/pkg/codec"
	"github.com/bujia-iot/carwings-gateway/pkg/diagnostics"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
	"github.com/bujia-iot/carwings-gateway/pkg/mesh"
	"github.com/bujia-iot/carwings-gateway/pkg/recordenc"
	"github.com/bujia-iot/carwings-gateway/pkg/textutil"
)

const (
	MeshFile = "CPMESH.BIN"
	POIFile  = "CPPOI.BIN"
)

// connectorFlags 目录中的接口类型名到POI标志位
var connectorFlags = map[string]uint16{
	"J1772":    recordenc.ConnectorJ1772,
	"TYPE1":    recordenc.ConnectorJ1772,
	"TYPE2":    recordenc.ConnectorType2,
	"CHADEMO":  recordenc.ConnectorCHAdeMO,
	"CCS":      recordenc.ConnectorCCS,
	"CCS1":     recordenc.ConnectorCCS,
	"CCS2":     recordenc.ConnectorCCS,
	"DOMESTIC": recordenc.ConnectorDomestic,
}

// ConnectorMask 接口类型名转换为标志位，未知类型忽略
func ConnectorMask(names []string) uint16 {
	var mask uint16
	for _, n := range names {
		mask |= connectorFlags[strings.ToUpper(strings.TrimSpace(n))]
	}
	return mask
}

type chargerHandler struct {
	directory carwings.ChargerDirectory
	diag      diagnostics.Sink
}

func newChargerHandler(directory carwings.ChargerDirectory, diag diagnostics.Sink) *chargerHandler {
	return &chargerHandler{directory: directory, diag: diag}
}

// Handle 处理CP上传
func (h *chargerHandler) Handle(ctx context.Context, req *Request) ([]codec.File, error) {
	upload := req.Upload()
	if upload == nil {
		return nil, errors.New(errors.ErrMalformedInput, "cp upload missing")
	}
	cp, err := carwings.ParseCPRequest(upload)
	if err != nil {
		return nil, err
	}

	switch cp.Kind {
	case carwings.CPKindMeshSync:
		ids, err := cp.IDs()
		if err != nil {
			return nil, err
		}
		return h.meshSync(ctx, ids)
	case carwings.CPKindPOIDetail:
		ids, err := cp.IDs()
		if err != nil {
			return nil, err
		}
		return h.poiDetails(ctx, ids)
	}

	if err := h.diag.Record(ctx, diagnostics.KindCPUnknown, req.VIN(), upload); err != nil {
		logger.WithFields(logrus.Fields{
			"kind":  cp.Kind,
			"error": err.Error(),
		}).Warn("诊断数据保存失败")
	}
	return nil, nil
}

// meshSync 277: 网格ID -> 外包框并集 -> 目录查询 -> 按网格重新分桶
// 无法解析的网格ID记日志后跳过，其余网格照常应答
func (h *chargerHandler) meshSync(ctx context.Context, ids []uint32) ([]codec.File, error) {
	valid := make([]uint32, 0, len(ids))
	boxes := make([]mesh.Box, 0, len(ids))
	var envelope mesh.Box
	for _, id := range ids {
		b, err := mesh.BoundingBox(id)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"meshID": id,
				"error":  err.Error(),
			}).Warn("跳过无效网格ID")
			continue
		}
		if len(boxes) == 0 {
			envelope = b
		} else {
			envelope = envelope.Union(b)
		}
		valid = append(valid, id)
		boxes = append(boxes, b)
	}
	if len(valid) == 0 {
		data, err := recordenc.EncodeMeshBlocks(nil)
		if err != nil {
			return nil, err
		}
		return []codec.File{{Name: MeshFile, Content: data}}, nil
	}

	chargers, err := h.directory.QueryBox(ctx, envelope)
	if err != nil {
		return nil, errors.Wrap(errors.ErrExternalFailure, "query chargers", err)
	}

	buckets := make([][]recordenc.MeshCharger, len(valid))
	for _, c := range chargers {
		for i, b := range boxes {
			if b.Contains(c.Lat, c.Lon) {
				buckets[i] = append(buckets[i], recordenc.MeshCharger{ID: c.ID, Coordinate: mesh.EncodeFixed(c.Lat, c.Lon)})
				break
			}
		}
	}

	var blocks []recordenc.MeshBlock
	for i, bucket := range buckets {
		if len(bucket) > 0 {
			blocks = append(blocks, recordenc.MeshBlock{MeshID: valid[i], Chargers: bucket})
		}
	}
	data, err := recordenc.EncodeMeshBlocks(blocks)
	if err != nil {
		return nil, err
	}
	return []codec.File{{Name: MeshFile, Content: data}}, nil
}

// poiDetails 276: 分批查询详情并编码POI记录
func (h *chargerHandler) poiDetails(ctx context.Context, ids []uint32) ([]codec.File, error) {
	pois := make([]recordenc.POI, 0, len(ids))
	for start := 0; start < len(ids); start += carwings.MaxDetailBatch {
		end := min(start+carwings.MaxDetailBatch, len(ids))
		details, err := h.directory.FetchDetails(ctx, ids[start:end])
		if err != nil {
			return nil, errors.Wrap(errors.ErrExternalFailure, "fetch charger details", err)
		}
		for _, d := range details {
			pois = append(pois, toPOI(d))
		}
	}

	data, err := recordenc.EncodePOIs(pois)
	if err != nil {
		return nil, err
	}
	return []codec.File{{Name: POIFile, Content: data}}, nil
}

// toPOI 旧格式文本字段先音译再截断
func toPOI(d carwings.ChargerDetail) recordenc.POI {
	return recordenc.POI{
		ID:         d.ID,
		Name:       textutil.Legacy(d.Name, recordenc.MaxPOIName),
		Address:    textutil.Legacy(d.Address, recordenc.MaxPOIAddress),
		Coordinate: mesh.EncodeFixed(d.Lat, d.Lon),
		Connectors: ConnectorMask(d.Connectors),
		UsageType:  d.UsageType,
		Phone:      textutil.Legacy(d.Phone, recordenc.MaxPOIPhone),
		Hours:      textutil.Legacy(d.Hours, recordenc.MaxPOIHours),
	}
}
