package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/extractor"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/models"
	"github.com/docchat/backend-go/internal/queue"
	"github.com/docchat/backend-go/internal/retrieval"
	"github.com/docchat/backend-go/internal/storage"
	"github.com/docchat/backend-go/internal/worker"
)

const statusCacheTTL = 5 * time.Second

// DocumentService 文档生命周期服务：入库、触发嵌入、查询状态、删除
type DocumentService struct {
	db        *gorm.DB
	tasks     queue.TaskQueue
	extractor *extractor.Manager
	objects   storage.ObjectStore
	vectors   retrieval.VectorStore
	indexer   retrieval.FulltextIndexer
	states    *worker.StateMachine
	cache     *redis.Client
	log       *zap.Logger
}

// CreateDocumentRequest 纯文本入库请求
type CreateDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NewDocumentService 创建文档服务
func NewDocumentService(
	db *gorm.DB,
	tasks queue.TaskQueue,
	ext *extractor.Manager,
	objects storage.ObjectStore,
	vectors retrieval.VectorStore,
	indexer retrieval.FulltextIndexer,
	cache *redis.Client,
) *DocumentService {
	if ext == nil {
		ext = extractor.NewManager()
	}
	if objects == nil {
		objects = storage.NoopObjectStore{}
	}
	if indexer == nil {
		indexer = &retrieval.NoopFulltextIndexer{}
	}
	return &DocumentService{
		db:        db,
		tasks:     tasks,
		extractor: ext,
		objects:   objects,
		vectors:   vectors,
		indexer:   indexer,
		states:    worker.NewStateMachine(),
		cache:     cache,
		log:       logger.GetLogger(),
	}
}

// CreateDocument 录入纯文本文档并排队嵌入
func (s *DocumentService) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*models.Document, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperrors.NewInvalidInputError("title", "must not be empty")
	}

	doc := &models.Document{
		DocumentID:      uuid.NewString(),
		Title:           title,
		Content:         req.Content,
		ContentType:     "text/plain",
		EmbeddingStatus: models.DocStatusPending,
	}

	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		s.log.Error("failed to create document", zap.String("title", title), zap.Error(err))
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to create document").WithCause(err)
	}

	if err := s.enqueue(ctx, doc.DocumentID); err != nil {
		return nil, err
	}

	s.log.Info("document created",
		zap.String("document_id", doc.DocumentID),
		zap.String("title", title))
	return doc, nil
}

// UploadDocument 上传文件：提取文本，原始文件存对象存储，随后排队嵌入
func (s *DocumentService) UploadDocument(ctx context.Context, filename, contentType string, file io.Reader, size int64) (*models.Document, error) {
	if !s.extractor.Supports(filename) {
		return nil, apperrors.NewBusinessError(apperrors.ErrCodeInvalidFileFormat,
			fmt.Sprintf("unsupported file format: %s", filename))
	}

	// 提取与上传都需要读两遍，先整体读入
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperrors.NewBusinessError(apperrors.ErrCodeUploadFailed, "failed to read uploaded file").WithCause(err)
	}

	// 格式受支持但内容解析失败时，文档无法进入分块管道
	text, err := s.extractor.Extract(bytes.NewReader(data), filename)
	if err != nil {
		return nil, apperrors.NewChunkingError("failed to extract text from file").WithCause(err)
	}

	documentID := uuid.NewString()
	objectKey := ""
	if s.objects.Ready() {
		objectKey = storage.DocumentObjectKey(documentID, filename)
		if err := s.objects.Upload(ctx, objectKey, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
			s.log.Warn("failed to store raw file, continuing without object key",
				zap.String("document_id", documentID), zap.Error(err))
			objectKey = ""
		}
	}

	doc := &models.Document{
		DocumentID:      documentID,
		Title:           filename,
		Content:         text,
		ObjectKey:       objectKey,
		ContentType:     contentType,
		EmbeddingStatus: models.DocStatusPending,
	}

	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		s.log.Error("failed to create document", zap.String("filename", filename), zap.Error(err))
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to create document").WithCause(err)
	}

	if err := s.enqueue(ctx, documentID); err != nil {
		return nil, err
	}

	s.log.Info("document uploaded",
		zap.String("document_id", documentID),
		zap.String("filename", filename),
		zap.Int("bytes", len(data)))
	return doc, nil
}

// GetDocument 按业务ID查询文档
func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).Where("document_id = ?", documentID).First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("document")
		}
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to query document").WithCause(err)
	}
	return &doc, nil
}

// ListDocuments 分页返回文档，按创建时间倒序
func (s *DocumentService) ListDocuments(ctx context.Context, page, limit int) ([]models.Document, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Document{}).Count(&total).Error; err != nil {
		return nil, 0, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to count documents").WithCause(err)
	}

	var docs []models.Document
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to list documents").WithCause(err)
	}

	return docs, total, nil
}

// RequestEmbedding 手动触发文档嵌入
// pending 文档直接入队（队列会合并重复任务）；failed 与 completed 回到
// pending 后重新入队；processing 拒绝，避免与在途的工作器竞争。
func (s *DocumentService) RequestEmbedding(ctx context.Context, documentID string) error {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	switch doc.EmbeddingStatus {
	case models.DocStatusPending:
		// 已在排队语义内，重复任务由队列合并
	case models.DocStatusProcessing:
		// processing→pending 的边留给工作器的重试间隙，人工触发不可用
		return apperrors.NewBusinessError(apperrors.ErrCodeInvalidState, "document is already being processed")
	default:
		if !s.states.CanTransition(doc.EmbeddingStatus, models.DocStatusPending) {
			return apperrors.NewBusinessError(apperrors.ErrCodeInvalidState,
				fmt.Sprintf("cannot re-embed document in status %s", doc.EmbeddingStatus))
		}
		if err := s.db.WithContext(ctx).Model(&models.Document{}).
			Where("document_id = ?", documentID).
			Updates(map[string]interface{}{
				"embedding_status": models.DocStatusPending,
				"last_error":       "",
			}).Error; err != nil {
			return apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to reset document status").WithCause(err)
		}
		s.invalidateStatusCache(ctx, documentID)
	}

	return s.enqueue(ctx, documentID)
}

// RequestEmbeddingBatch 批量触发嵌入，返回成功入队的文档数
func (s *DocumentService) RequestEmbeddingBatch(ctx context.Context, documentIDs []string) (int, error) {
	enqueued := 0
	var lastErr error
	for _, id := range documentIDs {
		if err := s.RequestEmbedding(ctx, id); err != nil {
			s.log.Warn("failed to enqueue document",
				zap.String("document_id", id), zap.Error(err))
			lastErr = err
			continue
		}
		enqueued++
	}
	if enqueued == 0 && lastErr != nil {
		return 0, lastErr
	}
	return enqueued, nil
}

// GetEmbeddingProgress 查询嵌入进度，带短TTL的Redis缓存
func (s *DocumentService) GetEmbeddingProgress(ctx context.Context, documentID string) (*models.EmbeddingProgress, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, statusCacheKey(documentID)).Result(); err == nil {
			var progress models.EmbeddingProgress
			if json.Unmarshal([]byte(cached), &progress) == nil {
				return &progress, nil
			}
		}
	}

	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	progress := &models.EmbeddingProgress{
		DocumentID:  doc.DocumentID,
		Status:      doc.EmbeddingStatus,
		TotalChunks: doc.ChunkCount,
		LastError:   doc.LastError,
	}
	if s.vectors != nil {
		embedded, err := s.vectors.Progress(ctx, documentID)
		if err != nil {
			s.log.Warn("failed to count stored chunks",
				zap.String("document_id", documentID), zap.Error(err))
		} else {
			progress.EmbeddedChunks = embedded
		}
	}

	// 非终态变化频繁，只缓存终态
	if s.cache != nil && doc.IsTerminal() {
		if data, err := json.Marshal(progress); err == nil {
			s.cache.Set(ctx, statusCacheKey(documentID), data, statusCacheTTL)
		}
	}

	return progress, nil
}

// DownloadDocumentFile 打开文档的原始文件流，调用方负责关闭
func (s *DocumentService) DownloadDocumentFile(ctx context.Context, documentID string) (io.ReadCloser, *models.Document, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if doc.ObjectKey == "" || !s.objects.Ready() {
		return nil, nil, apperrors.NewBusinessError(apperrors.ErrCodeResourceNotFound, "document has no stored raw file")
	}

	reader, err := s.objects.Download(ctx, doc.ObjectKey)
	if err != nil {
		s.log.Error("failed to open raw file",
			zap.String("object_key", doc.ObjectKey), zap.Error(err))
		return nil, nil, apperrors.NewBusinessError(apperrors.ErrCodeExternalService, "failed to open raw file").WithCause(err)
	}
	return reader, doc, nil
}

// DocumentDownloadURL 生成原始文件的预签名下载链接
func (s *DocumentService) DocumentDownloadURL(ctx context.Context, documentID string, expires time.Duration) (string, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return "", err
	}
	if doc.ObjectKey == "" || !s.objects.Ready() {
		return "", apperrors.NewBusinessError(apperrors.ErrCodeResourceNotFound, "document has no stored raw file")
	}

	url, err := s.objects.PresignedURL(ctx, doc.ObjectKey, expires)
	if err != nil {
		return "", apperrors.NewBusinessError(apperrors.ErrCodeExternalService, "failed to presign download url").WithCause(err)
	}
	return url, nil
}

// DeleteDocument 删除文档及其全部派生数据：向量分块、全文索引、原始文件
func (s *DocumentService) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.vectors.DeleteDocumentChunks(ctx, documentID); err != nil {
		s.log.Error("failed to delete document chunks",
			zap.String("document_id", documentID), zap.Error(err))
		return err
	}

	if s.indexer.Ready() {
		if err := s.indexer.RemoveDocument(ctx, documentID); err != nil {
			s.log.Warn("failed to remove document from fulltext index",
				zap.String("document_id", documentID), zap.Error(err))
		}
	}

	if doc.ObjectKey != "" && s.objects.Ready() {
		if err := s.objects.Delete(ctx, doc.ObjectKey); err != nil {
			s.log.Warn("failed to delete raw file",
				zap.String("object_key", doc.ObjectKey), zap.Error(err))
		}
	}

	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&models.Document{}).Error; err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to delete document").WithCause(err)
	}

	s.invalidateStatusCache(ctx, documentID)
	s.log.Info("document deleted", zap.String("document_id", documentID))
	return nil
}

func (s *DocumentService) enqueue(ctx context.Context, documentID string) error {
	err := s.tasks.Enqueue(ctx, queue.Task{DocumentID: documentID})
	if err != nil {
		s.log.Error("failed to enqueue embedding task",
			zap.String("document_id", documentID), zap.Error(err))
		return apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "failed to enqueue embedding task").WithCause(err)
	}
	return nil
}

func (s *DocumentService) invalidateStatusCache(ctx context.Context, documentID string) {
	if s.cache != nil {
		s.cache.Del(ctx, statusCacheKey(documentID))
	}
}

func statusCacheKey(documentID string) string {
	return "docchat:embed_status:" + documentID
}
