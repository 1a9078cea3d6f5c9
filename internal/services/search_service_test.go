package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/retrieval"
)

type fixedEmbedder struct{}

func (fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (e fixedEmbedder) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	return e.EmbedQuery(ctx, text)
}

func (e fixedEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (fixedEmbedder) Dimensions() int { return 3 }
func (fixedEmbedder) Model() string   { return "test-embed-v1" }
func (fixedEmbedder) Ready() bool     { return true }

func newTestSearchService(t *testing.T) (*SearchService, *retrieval.MemoryVectorStore) {
	t.Helper()
	store := retrieval.NewMemoryVectorStore()
	engine := retrieval.NewEngine(fixedEmbedder{}, store, 10, 0.5)
	return NewSearchService(engine, nil, nil, time.Minute), store
}

func TestSearchService_EmptyQueryRejected(t *testing.T) {
	svc, _ := newTestSearchService(t)

	_, err := svc.Search(context.Background(), SearchRequest{Query: "   "})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
}

func TestSearchService_ReturnsMatches(t *testing.T) {
	svc, store := newTestSearchService(t)
	ctx := context.Background()

	err := store.ReplaceDocumentChunks(ctx, "doc1", []retrieval.ChunkWithVector{
		{ChunkID: "doc1_0_aaaaaaaa", DocumentID: "doc1", ChunkIndex: 0, Content: "hello world", EmbeddingModel: "test-embed-v1", Embedding: []float32{1, 0, 0}},
	})
	require.NoError(t, err)

	results, err := svc.Search(ctx, SearchRequest{Query: "hello"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1", results[0].DocumentID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestSearchService_KeywordSearchUnconfigured(t *testing.T) {
	svc, _ := newTestSearchService(t)

	_, err := svc.KeywordSearch(context.Background(), "hello", 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExternalService))
}

func scoreOf(v float64) *float64 { return &v }

func TestSearchService_CacheKeyVariesWithParameters(t *testing.T) {
	svc, _ := newTestSearchService(t)

	base := svc.searchCacheKey(SearchRequest{Query: "hello", Limit: 10, MinScore: scoreOf(0.5)})
	assert.Equal(t, base, svc.searchCacheKey(SearchRequest{Query: " hello ", Limit: 10, MinScore: scoreOf(0.5)}))

	assert.NotEqual(t, base, svc.searchCacheKey(SearchRequest{Query: "hello", Limit: 20, MinScore: scoreOf(0.5)}))
	assert.NotEqual(t, base, svc.searchCacheKey(SearchRequest{Query: "hello", Limit: 10, MinScore: scoreOf(0.7)}))
	assert.NotEqual(t, base, svc.searchCacheKey(SearchRequest{Query: "hello", Limit: 10, MinScore: scoreOf(0.5), DocumentIDs: []string{"doc1"}}))

	// 未传阈值和显式传0是不同的请求，缓存键必须区分
	unset := svc.searchCacheKey(SearchRequest{Query: "hello", Limit: 10})
	assert.NotEqual(t, unset, svc.searchCacheKey(SearchRequest{Query: "hello", Limit: 10, MinScore: scoreOf(0)}))
}

func TestSearchService_ExplicitZeroMinScoreDisablesThreshold(t *testing.T) {
	svc, store := newTestSearchService(t)
	ctx := context.Background()

	// 与查询向量正交，相似度为0，低于默认阈值0.5
	err := store.ReplaceDocumentChunks(ctx, "doc1", []retrieval.ChunkWithVector{
		{ChunkID: "doc1_0_aaaaaaaa", DocumentID: "doc1", ChunkIndex: 0, Content: "orthogonal", EmbeddingModel: "test-embed-v1", Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)

	results, err := svc.Search(ctx, SearchRequest{Query: "hello"})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = svc.Search(ctx, SearchRequest{Query: "hello", MinScore: scoreOf(0)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1", results[0].DocumentID)
}
