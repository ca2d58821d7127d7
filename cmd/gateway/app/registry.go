package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/carwings-gateway/internal/infrastructure/redis"
	"github.com/bujia-iot/carwings-gateway/pkg/storage"
)

// openRegistry 按配置打开车辆注册表；redis后端同时返回客户端供通知重试队列使用
func openRegistry(ctx context.Context, cfg *config.Config) (vehicle.Registry, *goredis.Client, error) {
	switch cfg.Registry.Backend {
	case "memory":
		logger.Warn("使用进程内车辆注册表，数据不会持久化")
		return storage.NewVehicleStore(), nil, nil
	case "redis":
		client, err := redis.InitClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewVehicleRegistry(client, cfg.Registry.KeyPrefix), client, nil
	}
	return nil, nil, fmt.Errorf("unsupported registry backend: %s", cfg.Registry.Backend)
}

// openRedisRegistry 运维命令只能作用于共享注册表
func openRedisRegistry(ctx context.Context, cfg *config.Config) (*redis.VehicleRegistry, error) {
	if cfg.Registry.Backend != "redis" {
		return nil, fmt.Errorf("registry backend %q is process-local, use redis", cfg.Registry.Backend)
	}
	client, err := redis.InitClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	return redis.NewVehicleRegistry(client, cfg.Registry.KeyPrefix), nil
}
