package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/docchat/backend-go/internal/errors"
)

// stubEmbedder 返回固定向量的测试嵌入器
type stubEmbedder struct {
	queryVec   []float32
	passageVec []float32
	err        error
	// 记录收到的文本，验证前缀约定由实现内部处理
	queries  []string
	passages []string
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.queries = append(s.queries, text)
	if s.err != nil {
		return nil, s.err
	}
	return s.queryVec, nil
}

func (s *stubEmbedder) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	s.passages = append(s.passages, text)
	if s.err != nil {
		return nil, s.err
	}
	return s.passageVec, nil
}

func (s *stubEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		s.passages = append(s.passages, text)
		out[i] = s.passageVec
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return len(s.queryVec) }
func (s *stubEmbedder) Model() string   { return testModel }
func (s *stubEmbedder) Ready() bool     { return true }

func TestEngine_Search(t *testing.T) {
	store := NewMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc1", []ChunkWithVector{
		chunkWithVector("doc1", 0, "relevant text", []float32{1, 0, 0}),
		chunkWithVector("doc1", 1, "unrelated text", []float32{0, 1, 0}),
	}))

	embedder := &stubEmbedder{queryVec: []float32{1, 0, 0}}
	engine := NewEngine(embedder, store, 10, 0.5)

	results, err := engine.Search(ctx, "find relevant", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "relevant text", results[0].Content)
	assert.Equal(t, []string{"find relevant"}, embedder.queries)
}

func TestEngine_EmptyQuery(t *testing.T) {
	engine := NewEngine(&stubEmbedder{}, NewMemoryVectorStore(), 10, 0.5)

	_, err := engine.Search(context.Background(), "   ", SearchOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.IsAppError(err))
}

func TestEngine_NoMatchesIsEmptyNotError(t *testing.T) {
	embedder := &stubEmbedder{queryVec: []float32{0, 0, 1}}
	store := NewMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc1", []ChunkWithVector{
		chunkWithVector("doc1", 0, "orthogonal", []float32{1, 0, 0}),
	}))

	engine := NewEngine(embedder, store, 10, 0.5)
	results, err := engine.Search(ctx, "nothing similar", SearchOptions{})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestEngine_ExplicitZeroMinScoreReturnsAll(t *testing.T) {
	embedder := &stubEmbedder{queryVec: []float32{1, 0, 0}}
	store := NewMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc1", []ChunkWithVector{
		chunkWithVector("doc1", 0, "close match", []float32{1, 0, 0}),
		chunkWithVector("doc1", 1, "orthogonal", []float32{0, 1, 0}),
	}))

	engine := NewEngine(embedder, store, 10, 0.5)

	// 未设置阈值时使用默认值
	results, err := engine.Search(ctx, "query", SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// 显式传0关闭过滤，低分结果也返回
	zero := 0.0
	results, err = engine.Search(ctx, "query", SearchOptions{MinScore: &zero})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestEngine_DocumentFilter(t *testing.T) {
	embedder := &stubEmbedder{queryVec: []float32{1, 0, 0}}
	store := NewMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc1", []ChunkWithVector{
		chunkWithVector("doc1", 0, "doc1 text", []float32{1, 0, 0}),
	}))
	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc2", []ChunkWithVector{
		chunkWithVector("doc2", 0, "doc2 text", []float32{1, 0, 0}),
	}))

	engine := NewEngine(embedder, store, 10, 0.5)
	results, err := engine.Search(ctx, "query", SearchOptions{DocumentIDs: []string{"doc2"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc2", results[0].DocumentID)
}

func TestEngine_EmbedFailurePropagates(t *testing.T) {
	embedder := &stubEmbedder{err: apperrors.NewEmbeddingError("model unavailable", nil)}
	engine := NewEngine(embedder, NewMemoryVectorStore(), 10, 0.5)

	_, err := engine.Search(context.Background(), "query", SearchOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}
