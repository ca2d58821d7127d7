// Package app 实现gateway命令行：服务进程、遥测探针解码、网格换算与运维命令。
package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
)

type rootOptions struct {
	configFile string
}

// NewGatewayCommand 创建根命令
func NewGatewayCommand(ctx context.Context) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "gateway",
		Short:         "CARWINGS / GDC telematics gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "配置文件路径，为空时只使用默认值与环境变量")

	cmd.AddCommand(
		newServeCommand(ctx),
		newProbeCommand(),
		newMeshCommand(),
		newCommandCommand(ctx),
		newVehicleCommand(ctx),
	)
	return cmd
}

// load 加载配置并初始化日志
func (o *rootOptions) load() error {
	if err := config.Load(o.configFile); err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	loggerCfg := config.GetConfig().Logger
	if err := logger.Init(&loggerCfg); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	return nil
}
