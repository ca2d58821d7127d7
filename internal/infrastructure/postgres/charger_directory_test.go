package postgres

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bujia-iot/carwings-gateway/internal/domain/carwings"
	"github.com/bujia-iot/carwings-gateway/pkg/mesh"
)

var _ carwings.ChargerDirectory = (*ChargerDirectory)(nil)

func TestBoxArgs(t *testing.T) {
	id, err := mesh.Encode(mesh.LevelPrimary, 53, 39, 0, 0, 0, 0)
	require.NoError(t, err)
	box, err := mesh.BoundingBox(id)
	require.NoError(t, err)

	args := boxArgs(box)
	require.Len(t, args, 4)
	assert.InDelta(t, 53.0*40/60, args[0], 1e-9, "最小纬度")
	assert.InDelta(t, 36.0, args[1], 1e-9, "最大纬度")
	assert.InDelta(t, 139.0, args[2], 1e-9, "最小经度")
	assert.InDelta(t, 140.0, args[3], 1e-9, "最大经度")
}

func TestRowConversion(t *testing.T) {
	s := summaryRow{ID: 7, Lat: 35.5, Lon: 139.25}.toSummary()
	assert.Equal(t, uint32(7), s.ID)
	assert.Equal(t, mesh.ToFixed(35.5), s.Lat)
	assert.Equal(t, mesh.ToFixed(139.25), s.Lon)

	d := detailRow{
		ID: 9, Name: "Depot", Lat: 1, Lon: 2,
		Connectors: pq.StringArray{"CHAdeMO", "CCS"}, UsageType: 3, Hours: "24h",
	}.toDetail()
	assert.Equal(t, uint32(9), d.ID)
	assert.Equal(t, []string{"CHAdeMO", "CCS"}, d.Connectors)
	assert.Equal(t, uint8(3), d.UsageType)
	assert.Equal(t, mesh.ToFixed(2), d.Lon)
}

func TestFetchDetailsBatchLimit(t *testing.T) {
	dir := NewChargerDirectory(nil, 0)

	out, err := dir.FetchDetails(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = dir.FetchDetails(context.Background(), make([]uint32, carwings.MaxDetailBatch+1))
	assert.Error(t, err, "超过批量上限应拒绝")
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS chargers")
}
