package retrieval

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = "test-embed-v1"

func chunkWithVector(docID string, index int, content string, vec []float32) ChunkWithVector {
	return ChunkWithVector{
		ChunkID:        docID + "_" + content,
		DocumentID:     docID,
		ChunkIndex:     index,
		Content:        content,
		EmbeddingModel: testModel,
		Embedding:      vec,
	}
}

func TestMemoryVectorStore_ReplaceAndSearch(t *testing.T) {
	store := NewMemoryVectorStore()
	ctx := context.Background()

	err := store.ReplaceDocumentChunks(ctx, "doc1", []ChunkWithVector{
		chunkWithVector("doc1", 0, "alpha", []float32{1, 0, 0}),
		chunkWithVector("doc1", 1, "beta", []float32{0, 1, 0}),
	})
	require.NoError(t, err)

	results, err := store.Nearest(ctx, NearestRequest{
		QueryVector:    []float32{1, 0, 0},
		K:              10,
		MinScore:       0.5,
		EmbeddingModel: testModel,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestMemoryVectorStore_ReplaceIsTotal(t *testing.T) {
	store := NewMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc1", []ChunkWithVector{
		chunkWithVector("doc1", 0, "old", []float32{1, 0, 0}),
		chunkWithVector("doc1", 1, "stale", []float32{1, 0, 0}),
	}))

	// 替换后旧分块全部消失
	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc1", []ChunkWithVector{
		chunkWithVector("doc1", 0, "new", []float32{1, 0, 0}),
	}))

	results, err := store.Nearest(ctx, NearestRequest{
		QueryVector:    []float32{1, 0, 0},
		K:              10,
		EmbeddingModel: testModel,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Content)
}

func TestMemoryVectorStore_DeleteIsIdempotent(t *testing.T) {
	store := NewMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc1", []ChunkWithVector{
		chunkWithVector("doc1", 0, "alpha", []float32{1, 0, 0}),
	}))

	require.NoError(t, store.DeleteDocumentChunks(ctx, "doc1"))
	// 再次删除不报错
	require.NoError(t, store.DeleteDocumentChunks(ctx, "doc1"))

	results, err := store.Nearest(ctx, NearestRequest{
		QueryVector:    []float32{1, 0, 0},
		K:              10,
		EmbeddingModel: testModel,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryVectorStore_ModelFilter(t *testing.T) {
	store := NewMemoryVectorStore()
	ctx := context.Background()

	other := chunkWithVector("doc2", 0, "other-model", []float32{1, 0, 0})
	other.EmbeddingModel = "legacy-model"

	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc1", []ChunkWithVector{
		chunkWithVector("doc1", 0, "current", []float32{1, 0, 0}),
	}))
	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc2", []ChunkWithVector{other}))

	// 不同模型的向量空间不可比，结果只含当前模型的分块
	results, err := store.Nearest(ctx, NearestRequest{
		QueryVector:    []float32{1, 0, 0},
		K:              10,
		EmbeddingModel: testModel,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "current", results[0].Content)
}

func TestMemoryVectorStore_DocumentFilterAndTies(t *testing.T) {
	store := NewMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, store.ReplaceDocumentChunks(ctx, "docA", []ChunkWithVector{
		chunkWithVector("docA", 1, "a1", []float32{1, 0, 0}),
		chunkWithVector("docA", 0, "a0", []float32{1, 0, 0}),
	}))
	require.NoError(t, store.ReplaceDocumentChunks(ctx, "docB", []ChunkWithVector{
		chunkWithVector("docB", 0, "b0", []float32{1, 0, 0}),
	}))

	results, err := store.Nearest(ctx, NearestRequest{
		QueryVector:    []float32{1, 0, 0},
		K:              10,
		EmbeddingModel: testModel,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 同分时 chunk_index 升序，再按 document_id 升序
	assert.Equal(t, "a0", results[0].Content)
	assert.Equal(t, "b0", results[1].Content)
	assert.Equal(t, "a1", results[2].Content)

	// 文档过滤
	results, err = store.Nearest(ctx, NearestRequest{
		QueryVector:    []float32{1, 0, 0},
		K:              10,
		EmbeddingModel: testModel,
		DocumentIDs:    []string{"docB"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b0", results[0].Content)
}

func TestMemoryVectorStore_ReplaceIsAtomicUnderConcurrentSearch(t *testing.T) {
	store := NewMemoryVectorStore()
	ctx := context.Background()

	generation := func(content string, n int) []ChunkWithVector {
		chunks := make([]ChunkWithVector, n)
		for i := range chunks {
			chunks[i] = chunkWithVector("doc1", i, content, []float32{1, 0, 0})
		}
		return chunks
	}
	genA := generation("gen-a", 3)
	genB := generation("gen-b", 5)

	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc1", genA))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			next := genA
			if i%2 == 0 {
				next = genB
			}
			if err := store.ReplaceDocumentChunks(ctx, "doc1", next); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	// 读到的结果集必须整体属于单一代，绝不混合新旧分块
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				results, err := store.Nearest(ctx, NearestRequest{
					QueryVector:    []float32{1, 0, 0},
					K:              100,
					EmbeddingModel: testModel,
				})
				if err != nil {
					t.Error(err)
					return
				}
				if len(results) == 0 {
					continue
				}
				content := results[0].Content
				for _, res := range results {
					if res.Content != content {
						t.Errorf("mixed generations in one result set: %s and %s", content, res.Content)
						return
					}
				}
				switch content {
				case "gen-a":
					if len(results) != 3 {
						t.Errorf("partial gen-a result set: %d chunks", len(results))
						return
					}
				case "gen-b":
					if len(results) != 5 {
						t.Errorf("partial gen-b result set: %d chunks", len(results))
						return
					}
				}
			}
		}()
	}

	<-done
	wg.Wait()
}

func TestMemoryVectorStore_ProgressIsAllOrNothing(t *testing.T) {
	store := NewMemoryVectorStore()
	ctx := context.Background()

	count, err := store.Progress(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc1", []ChunkWithVector{
		chunkWithVector("doc1", 0, "alpha", []float32{1, 0, 0}),
		chunkWithVector("doc1", 1, "beta", []float32{0, 1, 0}),
	}))

	count, err = store.Progress(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.DeleteDocumentChunks(ctx, "doc1"))
	count, err = store.Progress(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryVectorStore_KLimit(t *testing.T) {
	store := NewMemoryVectorStore()
	ctx := context.Background()

	chunks := make([]ChunkWithVector, 5)
	for i := range chunks {
		chunks[i] = chunkWithVector("doc1", i, string(rune('a'+i)), []float32{1, 0, 0})
	}
	require.NoError(t, store.ReplaceDocumentChunks(ctx, "doc1", chunks))

	results, err := store.Nearest(ctx, NearestRequest{
		QueryVector:    []float32{1, 0, 0},
		K:              3,
		EmbeddingModel: testModel,
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}
