// Package postgres 基于PostgreSQL的充电桩目录
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bujia-iot/carwings-gateway/internal/domain/carwings"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/pkg/mesh"
)

//go:embed schema.sql
var schema string

const (
	queryBoxSQL = `SELECT id, lat, lon FROM chargers
WHERE lat >= $1 AND lat < $2 AND lon >= $3 AND lon < $4
ORDER BY id`

	fetchDetailsSQL = `SELECT id, name, address, lat, lon, connectors, usage_type, phone, hours
FROM chargers WHERE id = ANY($1) ORDER BY id`
)

// Open 连接数据库并设置连接池
func Open(ctx context.Context, cfg config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed connect to database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	logger.Info("充电桩目录数据库连接成功")
	return db, nil
}

// EnsureSchema 创建充电桩表(已存在时跳过)
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed create charger schema: %w", err)
	}
	return nil
}

type summaryRow struct {
	ID  int64   `db:"id"`
	Lat float64 `db:"lat"`
	Lon float64 `db:"lon"`
}

func (r summaryRow) toSummary() carwings.ChargerSummary {
	return carwings.ChargerSummary{ID: uint32(r.ID), Lat: mesh.ToFixed(r.Lat), Lon: mesh.ToFixed(r.Lon)}
}

type detailRow struct {
	ID         int64          `db:"id"`
	Name       string         `db:"name"`
	Address    string         `db:"address"`
	Lat        float64        `db:"lat"`
	Lon        float64        `db:"lon"`
	Connectors pq.StringArray `db:"connectors"`
	UsageType  int16          `db:"usage_type"`
	Phone      string         `db:"phone"`
	Hours      string         `db:"hours"`
}

func (r detailRow) toDetail() carwings.ChargerDetail {
	return carwings.ChargerDetail{
		ID:         uint32(r.ID),
		Name:       r.Name,
		Address:    r.Address,
		Lat:        mesh.ToFixed(r.Lat),
		Lon:        mesh.ToFixed(r.Lon),
		Connectors: []string(r.Connectors),
		UsageType:  uint8(r.UsageType),
		Phone:      r.Phone,
		Hours:      r.Hours,
	}
}

// ChargerDirectory 实现 carwings.ChargerDirectory
type ChargerDirectory struct {
	db      *sqlx.DB
	timeout time.Duration
}

var _ carwings.ChargerDirectory = (*ChargerDirectory)(nil)

// NewChargerDirectory timeout为单次查询超时，0表示不限制
func NewChargerDirectory(db *sqlx.DB, timeout time.Duration) *ChargerDirectory {
	return &ChargerDirectory{db: db, timeout: timeout}
}

func (d *ChargerDirectory) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

// boxArgs 外包框转为查询参数(十进制度)
func boxArgs(box mesh.Box) []interface{} {
	minLat, minLon, maxLat, maxLon := box.Degrees()
	return []interface{}{minLat, maxLat, minLon, maxLon}
}

// QueryBox 查询外包框内的充电桩
func (d *ChargerDirectory) QueryBox(ctx context.Context, box mesh.Box) ([]carwings.ChargerSummary, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var rows []summaryRow
	if err := d.db.SelectContext(ctx, &rows, queryBoxSQL, boxArgs(box)...); err != nil {
		return nil, fmt.Errorf("query chargers by box: %w", err)
	}
	out := make([]carwings.ChargerSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toSummary())
	}
	return out, nil
}

// FetchDetails 按ID批量查询详情
func (d *ChargerDirectory) FetchDetails(ctx context.Context, ids []uint32) ([]carwings.ChargerDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > carwings.MaxDetailBatch {
		return nil, fmt.Errorf("detail batch %d exceeds %d", len(ids), carwings.MaxDetailBatch)
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}
	var rows []detailRow
	if err := d.db.SelectContext(ctx, &rows, fetchDetailsSQL, pq.Array(keys)); err != nil {
		return nil, fmt.Errorf("fetch charger details: %w", err)
	}
	out := make([]carwings.ChargerDetail, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDetail())
	}
	return out, nil
}
