package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/docchat/backend-go/internal/models"
)

// MemoryVectorStore 内存向量存储
// 按文档持有分块快照，替换时整体换入，读写天然原子
type MemoryVectorStore struct {
	mu   sync.RWMutex
	docs map[string][]ChunkWithVector
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		docs: make(map[string][]ChunkWithVector),
	}
}

func (s *MemoryVectorStore) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []ChunkWithVector) error {
	snapshot := make([]ChunkWithVector, len(chunks))
	copy(snapshot, chunks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[documentID] = snapshot
	return nil
}

func (s *MemoryVectorStore) DeleteDocumentChunks(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	return nil
}

func (s *MemoryVectorStore) Nearest(ctx context.Context, req NearestRequest) ([]models.SearchResult, error) {
	if len(req.QueryVector) == 0 {
		return nil, nil
	}
	if req.K <= 0 {
		req.K = 10
	}

	var filter map[string]bool
	if len(req.DocumentIDs) > 0 {
		filter = make(map[string]bool, len(req.DocumentIDs))
		for _, id := range req.DocumentIDs {
			filter[id] = true
		}
	}

	queryNorm := vectorNorm(req.QueryVector)
	if queryNorm == 0 {
		return nil, nil
	}

	s.mu.RLock()
	var results []models.SearchResult
	for docID, chunks := range s.docs {
		if filter != nil && !filter[docID] {
			continue
		}
		for _, chunk := range chunks {
			if chunk.EmbeddingModel != req.EmbeddingModel {
				continue
			}
			score := cosineSimilarity(req.QueryVector, chunk.Embedding, queryNorm)
			if score < req.MinScore {
				continue
			}
			results = append(results, models.SearchResult{
				ChunkID:    chunk.ChunkID,
				DocumentID: chunk.DocumentID,
				ChunkIndex: chunk.ChunkIndex,
				Content:    chunk.Content,
				Score:      score,
			})
		}
	}
	s.mu.RUnlock()

	// 同分时按 chunk_index、document_id 保证确定性
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ChunkIndex != results[j].ChunkIndex {
			return results[i].ChunkIndex < results[j].ChunkIndex
		}
		return results[i].DocumentID < results[j].DocumentID
	})

	if len(results) > req.K {
		results = results[:req.K]
	}
	return results, nil
}

func (s *MemoryVectorStore) Progress(ctx context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[documentID]), nil
}

func (s *MemoryVectorStore) Ready() bool {
	return true
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32, normA float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot float64
	var normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (normA * math.Sqrt(normB))
}
