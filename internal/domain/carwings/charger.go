package carwings

import (
	"context"

	"github.com/bujia-iot/carwings-gateway/pkg/mesh"
)

// MaxDetailBatch 单次详情查询的最大ID数
const MaxDetailBatch = 150

// ChargerSummary 外包框查询返回的充电桩摘要，坐标为1/512角秒定点值
type ChargerSummary struct {
	ID  uint32 `db:"id"`
	Lat int64  `db:"lat"`
	Lon int64  `db:"lon"`
}

// ChargerDetail 充电桩详情
type ChargerDetail struct {
	ID         uint32
	Name       string
	Address    string
	Lat        int64
	Lon        int64
	Connectors []string
	UsageType  uint8
	Phone      string
	Hours      string
}

// ChargerDirectory 外部充电桩目录
type ChargerDirectory interface {
	QueryBox(ctx context.Context, box mesh.Box) ([]ChargerSummary, error)
	// FetchDetails 按ID批量查询详情，ids不超过MaxDetailBatch；不存在的ID直接忽略
	FetchDetails(ctx context.Context, ids []uint32) ([]ChargerDetail, error)
}

// EmptyDirectory 未配置目录时使用，所有查询返回空
type EmptyDirectory struct{}

func (EmptyDirectory) QueryBox(context.Context, mesh.Box) ([]ChargerSummary, error) { return nil, nil }

func (EmptyDirectory) FetchDetails(context.Context, []uint32) ([]ChargerDetail, error) {
	return nil, nil
}
