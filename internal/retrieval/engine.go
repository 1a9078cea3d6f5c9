package retrieval

import (
	"context"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/models"
)

// SearchOptions 检索选项
type SearchOptions struct {
	K int
	// MinScore 为nil时使用默认阈值；显式的0表示不过滤
	MinScore *float64
	// 限定检索的文档范围，空表示全库
	DocumentIDs []string
}

// Engine 检索引擎
// 固定 embed-then-search 的顺序以及查询侧的前缀约定，
// 本层不叠加额外业务逻辑。
type Engine struct {
	embedder Embedder
	store    VectorStore
	log      *zap.Logger

	defaultK        int
	defaultMinScore float64
}

// NewEngine 创建检索引擎
func NewEngine(embedder Embedder, store VectorStore, defaultK int, defaultMinScore float64) *Engine {
	if defaultK <= 0 {
		defaultK = 10
	}
	return &Engine{
		embedder:        embedder,
		store:           store,
		log:             logger.GetLogger(),
		defaultK:        defaultK,
		defaultMinScore: defaultMinScore,
	}
}

// Search 向量检索
// 没有任何结果超过阈值时返回空序列，这是正常结果而非错误
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationError("query is empty")
	}
	if !e.embedder.Ready() {
		return nil, apperrors.NewEmbeddingError("embedding provider not ready", nil)
	}

	if opts.K <= 0 {
		opts.K = e.defaultK
	}
	minScore := e.defaultMinScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	queryVector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		e.log.Error("failed to embed query", zap.Error(err))
		return nil, err
	}

	results, err := e.store.Nearest(ctx, NearestRequest{
		QueryVector:    queryVector,
		K:              opts.K,
		MinScore:       minScore,
		EmbeddingModel: e.embedder.Model(),
		DocumentIDs:    opts.DocumentIDs,
	})
	if err != nil {
		e.log.Error("vector search failed", zap.Error(err))
		return nil, err
	}

	e.log.Debug("vector search completed",
		zap.Int("results", len(results)),
		zap.Int("k", opts.K),
		zap.Float64("min_score", minScore))

	if results == nil {
		results = []models.SearchResult{}
	}
	return results, nil
}
