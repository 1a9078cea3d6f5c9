package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/docchat/backend-go/internal/database"
	"github.com/docchat/backend-go/internal/di"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/services"
	"go.uber.org/zap"
)

// RootController 根控制器
type RootController struct {
	BaseController
}

func (c *RootController) Index() {
	c.JSONSuccess(map[string]string{"message": "Document Retrieval Service API"})
}

// HealthController 健康检查控制器
type HealthController struct {
	BaseController
}

// Health 检查数据库与Redis连通性
func (c *HealthController) Health() {
	ctx, cancel := context.WithTimeout(c.Ctx.Request.Context(), 3*time.Second)
	defer cancel()

	components := map[string]string{}
	healthy := true

	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil {
			if err := sqlDB.PingContext(ctx); err != nil {
				components["database"] = "unhealthy"
				healthy = false
			} else {
				components["database"] = "healthy"
			}
		}
	} else {
		components["database"] = "not configured"
		healthy = false
	}

	if database.RedisClient != nil {
		if err := database.RedisClient.Ping(ctx).Err(); err != nil {
			components["redis"] = "unhealthy"
		} else {
			components["redis"] = "healthy"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, map[string]interface{}{
		"success":    healthy,
		"components": components,
	})
}

// PipelineController 嵌入管道状态
type PipelineController struct {
	BaseController
	stats *services.StatsService
}

// Prepare 从DI容器解析统计服务
func (c *PipelineController) Prepare() {
	if err := di.Invoke(func(s *services.StatsService) {
		c.stats = s
	}); err != nil {
		logger.Error("failed to resolve stats service", zap.Error(err))
	}
}

// Stats 返回队列深度与各状态文档数
func (c *PipelineController) Stats() {
	if c.stats == nil {
		c.JSONError(http.StatusInternalServerError, "stats service unavailable")
		return
	}

	stats, err := c.stats.PipelineStats(c.Ctx.Request.Context())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(stats)
}
