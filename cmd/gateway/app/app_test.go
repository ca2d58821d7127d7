package app

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/pkg/mesh"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewGatewayCommand(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMeshCommand(t *testing.T) {
	out, err := run(t, "mesh", fmt.Sprintf("0x%08X", mesh.RootID))
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("mesh   %08X", mesh.RootID))
	assert.Contains(t, out, "level  6")

	out, err = run(t, "mesh", fmt.Sprintf("%d", mesh.RootID), "0", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "point")

	_, err = run(t, "mesh", "0x00000000")
	assert.Error(t, err, "非法网格ID")

	_, err = run(t, "mesh", "1", "2")
	assert.Error(t, err, "参数个数错误")
}

func TestProbeCommandRejectsUnknownType(t *testing.T) {
	_, err := run(t, "probe", "xyz", "missing.bin")
	assert.Error(t, err)
}

func TestOperatorCommandsRequireSharedRegistry(t *testing.T) {
	t.Setenv("REGISTRY_BACKEND", "memory")

	_, err := run(t, "command", "issue", "SJNFAAZE0U6012345", "refresh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process-local")
}

func TestVehicleOptionsBuild(t *testing.T) {
	id := vehicle.Identity{VIN: "SJNFAAZE0U6012345", TCUModel: "GDC-2011", TCUSerial: "U12345", ICCID: "8981"}

	o := &vehicleOptions{identity: id, username: "alice", password: "secret", email: "alice@example.com"}
	v, err := o.build()
	require.NoError(t, err)
	assert.True(t, v.Owner.Verify("alice", "secret"), "密码保存为bcrypt哈希")
	assert.NotEqual(t, "secret", v.Owner.PasswordHash)

	_, err = (&vehicleOptions{identity: id}).build()
	assert.Error(t, err, "缺少凭据")

	v, err = (&vehicleOptions{identity: id, authDisabled: true}).build()
	require.NoError(t, err)
	assert.True(t, v.AuthDisabled)
}
