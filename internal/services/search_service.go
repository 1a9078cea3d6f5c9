package services

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/models"
	"github.com/docchat/backend-go/internal/retrieval"
)

// SearchService 相似度检索服务，结果带Redis缓存
type SearchService struct {
	engine   *retrieval.Engine
	indexer  retrieval.FulltextIndexer
	cache    *redis.Client
	cacheTTL time.Duration
	log      *zap.Logger
}

// SearchRequest 检索请求
// MinScore 缺省时使用服务端默认阈值，显式传0表示不过滤
type SearchRequest struct {
	Query       string   `json:"query"`
	Limit       int      `json:"limit,omitempty"`
	MinScore    *float64 `json:"min_score,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// NewSearchService 创建检索服务。cache为nil时关闭缓存。
func NewSearchService(engine *retrieval.Engine, indexer retrieval.FulltextIndexer, cache *redis.Client, cacheTTL time.Duration) *SearchService {
	if indexer == nil {
		indexer = &retrieval.NoopFulltextIndexer{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	return &SearchService{
		engine:   engine,
		indexer:  indexer,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      logger.GetLogger(),
	}
}

// Search 向量相似度检索，命中缓存时跳过嵌入与向量查询
func (s *SearchService) Search(ctx context.Context, req SearchRequest) ([]models.SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperrors.NewValidationError("query must not be empty")
	}

	cacheKey := s.searchCacheKey(req)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var results []models.SearchResult
			if json.Unmarshal([]byte(cached), &results) == nil {
				s.log.Debug("search cache hit", zap.String("query", query))
				return results, nil
			}
		}
	}

	results, err := s.engine.Search(ctx, query, retrieval.SearchOptions{
		K:           req.Limit,
		MinScore:    req.MinScore,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(results); err == nil {
			s.cache.Set(ctx, cacheKey, data, s.cacheTTL)
		}
	}

	s.log.Info("search completed",
		zap.String("query", query),
		zap.Int("results", len(results)))
	return results, nil
}

// KeywordSearch 基于Elasticsearch的关键词检索
// 失败状态的文档没有向量但仍在全文索引中，此接口可以找到它们。
func (s *SearchService) KeywordSearch(ctx context.Context, query string, limit int) ([]retrieval.KeywordMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationError("query must not be empty")
	}
	if !s.indexer.Ready() {
		return nil, apperrors.NewBusinessError(apperrors.ErrCodeExternalService, "fulltext search is not configured")
	}

	matches, err := s.indexer.Search(ctx, query, limit)
	if err != nil {
		s.log.Error("keyword search failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}
	return matches, nil
}

// searchCacheKey 由查询参数派生缓存键，任一参数变化都会换键。
// 未指定阈值与显式0是不同的键。
func (s *SearchService) searchCacheKey(req SearchRequest) string {
	minScore := "default"
	if req.MinScore != nil {
		minScore = fmt.Sprintf("%.4f", *req.MinScore)
	}
	raw := fmt.Sprintf("%s|%d|%s|%s",
		strings.TrimSpace(req.Query), req.Limit, minScore, strings.Join(req.DocumentIDs, ","))
	return fmt.Sprintf("docchat:search:%x", md5.Sum([]byte(raw)))
}
