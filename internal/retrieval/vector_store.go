package retrieval

import (
	"context"

	"github.com/docchat/backend-go/internal/models"
)

// ChunkWithVector 携带向量的分块，写入存储的最小单元
type ChunkWithVector struct {
	ChunkID        string
	DocumentID     string
	ChunkIndex     int
	Content        string
	StartChar      int
	EndChar        int
	WordCount      int
	EmbeddingModel string
	Embedding      []float32
}

// NearestRequest 向量近邻检索请求
type NearestRequest struct {
	QueryVector []float32
	K           int
	MinScore    float64
	// 结果只返回该模型生成的向量，避免混用不同向量空间
	EmbeddingModel string
	// 可选的文档范围过滤
	DocumentIDs []string
}

// VectorStore 向量存储抽象
// ReplaceDocumentChunks 对读者而言必须原子：并发查询只能看到
// 完整的旧集合或完整的新集合，不能看到混合。
type VectorStore interface {
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []ChunkWithVector) error
	// DeleteDocumentChunks 幂等，删除不存在的文档不报错
	DeleteDocumentChunks(ctx context.Context, documentID string) error
	// Nearest 返回至多K条按相似度降序的结果，
	// 同分时按 chunk_index 升序、document_id 升序保证确定性
	Nearest(ctx context.Context, req NearestRequest) ([]models.SearchResult, error)
	// Progress 文档当前已入库的分块数。替换是原子的，
	// 所以结果只会是0或全量
	Progress(ctx context.Context, documentID string) (int, error)
	Ready() bool
}
