package retrieval

import (
	"context"
	"time"
)

// FulltextChunk 提供关键词索引用的分块结构
type FulltextChunk struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Content    string
	Title      string
	CreatedAt  time.Time
}

// KeywordMatch 关键词检索结果
type KeywordMatch struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Highlight  string  `json:"highlight,omitempty"`
}

// FulltextIndexer 关键词全文索引接口
// 向量化失败的文档仍可通过关键词检索到
type FulltextIndexer interface {
	IndexChunks(ctx context.Context, chunks []FulltextChunk) error
	RemoveDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, query string, limit int) ([]KeywordMatch, error)
	Ready() bool
}

// NoopFulltextIndexer 默认占位实现
type NoopFulltextIndexer struct{}

func (n *NoopFulltextIndexer) IndexChunks(ctx context.Context, chunks []FulltextChunk) error {
	return nil
}

func (n *NoopFulltextIndexer) RemoveDocument(ctx context.Context, documentID string) error {
	return nil
}

func (n *NoopFulltextIndexer) Search(ctx context.Context, query string, limit int) ([]KeywordMatch, error) {
	return nil, nil
}

func (n *NoopFulltextIndexer) Ready() bool {
	return false
}
