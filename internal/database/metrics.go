package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// MetricsCollector 数据库指标收集器
// 周期性采样连接池状态，并按操作维度统计查询
type MetricsCollector struct {
	db              *sql.DB
	logger          *logrus.Logger
	collectInterval time.Duration

	connectionsGauge *prometheus.GaugeVec
	queriesCounter   *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	errorsCounter    *prometheus.CounterVec
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector(db *sql.DB, logger *logrus.Logger) *MetricsCollector {
	mc := &MetricsCollector{
		db:              db,
		logger:          logger,
		collectInterval: 15 * time.Second,
	}
	mc.registerMetrics()
	return mc
}

func (mc *MetricsCollector) registerMetrics() {
	mc.connectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docchat_db_connections",
			Help: "Number of database connections in different states",
		},
		[]string{"state"},
	)

	mc.queriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"operation", "table", "status"},
	)

	mc.queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docchat_db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	mc.errorsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_db_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"operation", "error_type"},
	)
}

// Start 开始收集指标，随 ctx 取消退出
func (mc *MetricsCollector) Start(ctx context.Context) {
	mc.logger.Info("Starting database metrics collection")

	go func() {
		ticker := time.NewTicker(mc.collectInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mc.collectMetrics()
			}
		}
	}()
}

func (mc *MetricsCollector) collectMetrics() {
	stats := mc.db.Stats()

	mc.connectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
	mc.connectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
	mc.connectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
	mc.connectionsGauge.WithLabelValues("wait_count").Set(float64(stats.WaitCount))

	mc.logger.WithFields(logrus.Fields{
		"idle":   stats.Idle,
		"in_use": stats.InUse,
		"open":   stats.OpenConnections,
	}).Debug("Database connection pool stats collected")
}

// RecordQuery 记录查询操作
func (mc *MetricsCollector) RecordQuery(operation, table string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		mc.errorsCounter.WithLabelValues(operation, "query_error").Inc()
	}

	mc.queriesCounter.WithLabelValues(operation, table, status).Inc()
	mc.queryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordConnectionError 记录连接错误
func (mc *MetricsCollector) RecordConnectionError(errorType string) {
	mc.errorsCounter.WithLabelValues("connection", errorType).Inc()
}

// GetStats 获取当前连接池统计信息
func (mc *MetricsCollector) GetStats() sql.DBStats {
	return mc.db.Stats()
}
