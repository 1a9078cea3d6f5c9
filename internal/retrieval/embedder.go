package retrieval

import (
	"context"
	"errors"
)

// Embedder 文本向量化接口
// 查询与文档走不同的前缀约定，检索调优模型对二者区分敏感，
// 混用会明显降低排序质量。
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedPassage(ctx context.Context, text string) ([]float32, error)
	// EmbedPassages 批量向量化，返回与输入等长且同序的向量序列
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Model() string {
	return ""
}

func (n *NoopEmbedder) Ready() bool {
	return false
}
