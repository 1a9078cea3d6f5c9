package database

import (
	"context"
	"fmt"
	"log"

	"github.com/docchat/backend-go/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisClient 全局Redis客户端
// 承载三类数据：嵌入进度缓存、检索结果缓存、文档级分布式锁。
// 三者都可丢失重建，Redis不可用时各组件自行降级。
var RedisClient *redis.Client

func InitRedis() (*redis.Client, error) {
	cfg := config.GetAppConfig()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 启动时确认连通，之后的瞬时故障由调用方降级处理
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	RedisClient = rdb
	log.Println("✅ Redis connected successfully")
	return rdb, nil
}

func CloseRedis() error {
	if RedisClient == nil {
		return nil
	}
	return RedisClient.Close()
}
