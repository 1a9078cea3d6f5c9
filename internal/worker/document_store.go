package worker

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/models"
)

// DocumentStore 工作器对文档表的最小访问面
type DocumentStore interface {
	Get(ctx context.Context, documentID string) (*models.Document, error)
	// AcquireProcessing 以条件更新实现 pending→processing 的互斥进入，
	// 返回 false 表示文档不在 pending 状态或已被其他执行占用
	AcquireProcessing(ctx context.Context, documentID string) (bool, error)
	MarkCompleted(ctx context.Context, documentID string, chunkCount int, embeddingModel string) error
	MarkFailed(ctx context.Context, documentID, lastError string) error
	// MarkPending 把 processing 中的文档放回 pending，用于重试间隙
	MarkPending(ctx context.Context, documentID string) error
}

// GormDocumentStore 基于gorm的文档存储
type GormDocumentStore struct {
	db *gorm.DB
}

func NewGormDocumentStore(db *gorm.DB) *GormDocumentStore {
	return &GormDocumentStore{db: db}
}

func (s *GormDocumentStore) Get(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).Where("document_id = ?", documentID).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("document")
		}
		return nil, err
	}
	return &doc, nil
}

func (s *GormDocumentStore) AcquireProcessing(ctx context.Context, documentID string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("document_id = ? AND embedding_status = ?", documentID, models.DocStatusPending).
		Updates(map[string]interface{}{
			"embedding_status": models.DocStatusProcessing,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormDocumentStore) MarkCompleted(ctx context.Context, documentID string, chunkCount int, embeddingModel string) error {
	return s.db.WithContext(ctx).Model(&models.Document{}).
		Where("document_id = ?", documentID).
		Updates(map[string]interface{}{
			"embedding_status": models.DocStatusCompleted,
			"chunk_count":      chunkCount,
			"embedding_model":  embeddingModel,
			"last_error":       "",
			"updated_at":       time.Now(),
		}).Error
}

func (s *GormDocumentStore) MarkFailed(ctx context.Context, documentID, lastError string) error {
	return s.db.WithContext(ctx).Model(&models.Document{}).
		Where("document_id = ?", documentID).
		Updates(map[string]interface{}{
			"embedding_status": models.DocStatusFailed,
			"last_error":       lastError,
			"updated_at":       time.Now(),
		}).Error
}

func (s *GormDocumentStore) MarkPending(ctx context.Context, documentID string) error {
	return s.db.WithContext(ctx).Model(&models.Document{}).
		Where("document_id = ?", documentID).
		Updates(map[string]interface{}{
			"embedding_status": models.DocStatusPending,
			"updated_at":       time.Now(),
		}).Error
}
