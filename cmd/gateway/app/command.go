package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bujia-iot/carwings-gateway/internal/app/service"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/redis"
)

func newCommandCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command",
		Short: "远程命令运维",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "issue <vin> refresh|charge_start|ac_on|ac_off|locate",
			Short: "下发一条waiting命令，车辆下一次INIT时取走",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := commandService(ctx)
				if err != nil {
					return err
				}
				defer redis.Close()

				issued, err := svc.Issue(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", issued.ID, issued.Type, issued.State)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status <vin>",
			Short: "查询车辆当前命令",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := commandService(ctx)
				if err != nil {
					return err
				}
				defer redis.Close()

				cur, err := svc.Status(ctx, args[0])
				if err != nil {
					return err
				}
				if cur == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "no command")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s requested=%s updated=%s\n",
					cur.ID, cur.Type, cur.State, cur.RequestedAt.Format("2006-01-02 15:04:05"), cur.UpdatedAt.Format("2006-01-02 15:04:05"))
				return nil
			},
		},
	)
	return cmd
}

func commandService(ctx context.Context) (*service.CommandService, error) {
	registry, err := openRedisRegistry(ctx, config.GetConfig())
	if err != nil {
		return nil, err
	}
	return service.NewCommandService(registry), nil
}
