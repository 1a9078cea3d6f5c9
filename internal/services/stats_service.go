package services

import (
	"context"

	"gorm.io/gorm"

	apperrors "github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/models"
	"github.com/docchat/backend-go/internal/queue"
)

// PipelineStats 嵌入管道运行状态快照
type PipelineStats struct {
	QueueDepth  int            `json:"queue_depth"`
	ByStatus    map[string]int `json:"by_status"`
	TotalChunks int64          `json:"total_chunks"`
}

// StatsService 管道状态统计
type StatsService struct {
	db    *gorm.DB
	tasks queue.TaskQueue
}

// NewStatsService 创建统计服务
func NewStatsService(db *gorm.DB, tasks queue.TaskQueue) *StatsService {
	return &StatsService{db: db, tasks: tasks}
}

// PipelineStats 返回队列深度与各状态文档数
func (s *StatsService) PipelineStats(ctx context.Context) (*PipelineStats, error) {
	stats := &PipelineStats{
		QueueDepth: s.tasks.Depth(),
		ByStatus: map[string]int{
			models.DocStatusPending:    0,
			models.DocStatusProcessing: 0,
			models.DocStatusCompleted:  0,
			models.DocStatusFailed:     0,
		},
	}

	type statusCount struct {
		EmbeddingStatus string
		Count           int
	}
	var rows []statusCount
	err := s.db.WithContext(ctx).Model(&models.Document{}).
		Select("embedding_status, COUNT(*) as count").
		Group("embedding_status").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to aggregate document status").WithCause(err)
	}
	for _, row := range rows {
		stats.ByStatus[row.EmbeddingStatus] = row.Count
	}

	err = s.db.WithContext(ctx).Model(&models.DocumentChunk{}).Count(&stats.TotalChunks).Error
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to count chunks").WithCause(err)
	}

	return stats, nil
}
