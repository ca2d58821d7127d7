package app

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/bujia-iot/carwings-gateway/internal/adapter/http"
	appcarwings "github.com/bujia-iot/carwings-gateway/internal/app/carwings"
	"github.com/bujia-iot/carwings-gateway/internal/app/gdc"
	"github.com/bujia-iot/carwings-gateway/internal/app/service"
	"github.com/bujia-iot/carwings-gateway/internal/domain/carwings"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/postgres"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/redis"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/zinx_server"
	"github.com/bujia-iot/carwings-gateway/internal/ports"
	"github.com/bujia-iot/carwings-gateway/pkg/diagnostics"
	"github.com/bujia-iot/carwings-gateway/pkg/notification"
)

func newServeCommand(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动GDC TCP服务器、CARWINGS HTTP服务器与命令超时扫描器",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(ctx, config.GetConfig())
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger.Info("CARWINGS网关启动中...")

	registry, redisClient, err := openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer redis.Close()

	directory := carwings.ChargerDirectory(carwings.EmptyDirectory{})
	if cfg.Postgres.Enabled {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		directory = postgres.NewChargerDirectory(db, time.Duration(cfg.Postgres.QueryTimeoutSeconds)*time.Second)
	} else {
		logger.Warn("未启用充电桩目录，附近充电桩与POI查询将返回空结果")
	}

	diag, err := diagnostics.New(ctx, cfg.Diagnostics)
	if err != nil {
		return err
	}

	var notifyOpts []notification.Option
	if redisClient != nil {
		notifyOpts = append(notifyOpts, notification.WithRedis(redisClient))
	}
	if cfg.Notification.Kafka.Enabled {
		notifyOpts = append(notifyOpts, notification.WithPublisher(
			notification.NewKafkaPublisher(cfg.Notification.Kafka.Brokers, cfg.Notification.Kafka.Topic)))
	}
	notifier, err := notification.NewNotificationService(notification.FromConfig(cfg.Notification), notifyOpts...)
	if err != nil {
		return err
	}
	if err := notifier.Start(ctx); err != nil {
		return err
	}
	defer notifier.Stop()

	monitor := zinx_server.NewConnectionMonitor()
	tcpServer := ports.NewTCPServer(cfg.TCPServer, gdc.NewEngine(registry, notifier), monitor)
	httpServer := ports.NewHTTPServer(cfg.HTTPAPIServer, &httpadapter.Handlers{
		Carwings:    httpadapter.NewCarwingsHandlers(appcarwings.NewEngine(registry, directory, diag, cfg.Carwings), cfg.HTTPAPIServer),
		Commands:    httpadapter.NewCommandHandlers(service.NewCommandService(registry)),
		Connections: monitor,
		StartedAt:   time.Now(),
	})
	sweeper := service.NewCommandTimeoutSweeper(
		registry,
		notifier,
		time.Duration(cfg.Commands.TimeoutSeconds)*time.Second,
		time.Duration(cfg.Commands.ResponseTimeoutSeconds)*time.Second,
		time.Duration(cfg.Commands.SweepIntervalSeconds)*time.Second,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tcpServer.Run(gctx) })
	g.Go(func() error { return httpServer.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })

	err = g.Wait()
	logger.Info("CARWINGS网关已退出")
	return err
}
