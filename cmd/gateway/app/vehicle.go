package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/redis"
)

type vehicleOptions struct {
	identity     vehicle.Identity
	username     string
	password     string
	email        string
	authDisabled bool
}

func newVehicleCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "车辆注册表运维",
	}

	opts := &vehicleOptions{}
	add := &cobra.Command{
		Use:   "add",
		Short: "开通或覆盖一辆车的身份与车主凭据",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := opts.build()
			if err != nil {
				return err
			}
			registry, err := openRedisRegistry(ctx, config.GetConfig())
			if err != nil {
				return err
			}
			defer redis.Close()

			if err := registry.Put(ctx, v); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vehicle %s provisioned\n", v.VIN)
			return nil
		},
	}
	fs := add.Flags()
	fs.StringVar(&opts.identity.VIN, "vin", "", "VIN")
	fs.StringVar(&opts.identity.TCUModel, "tcu-model", "", "TCU型号")
	fs.StringVar(&opts.identity.TCUSerial, "tcu-serial", "", "TCU序列号（CARWINGS的dcm_id）")
	fs.StringVar(&opts.identity.ICCID, "iccid", "", "SIM卡ICCID（CARWINGS的sim_id）")
	fs.StringVar(&opts.username, "username", "", "车主用户名")
	fs.StringVar(&opts.password, "password", "", "车主密码，保存为bcrypt哈希")
	fs.StringVar(&opts.email, "email", "", "车主通知邮箱")
	fs.BoolVar(&opts.authDisabled, "auth-disabled", false, "跳过凭据校验")
	for _, name := range []string{"vin", "tcu-model", "tcu-serial", "iccid"} {
		_ = add.MarkFlagRequired(name)
	}

	cmd.AddCommand(add)
	return cmd
}

func (o *vehicleOptions) build() (*vehicle.Vehicle, error) {
	v := &vehicle.Vehicle{
		Identity:     o.identity,
		AuthDisabled: o.authDisabled,
		Owner:        vehicle.Owner{Username: o.username, Email: o.email},
	}
	if o.authDisabled {
		return v, nil
	}
	if o.username == "" || o.password == "" {
		return nil, fmt.Errorf("username and password are required unless --auth-disabled is set")
	}
	hash, err := vehicle.HashPassword(o.password)
	if err != nil {
		return nil, err
	}
	v.Owner.PasswordHash = hash
	return v, nil
}
