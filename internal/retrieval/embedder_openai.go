package retrieval

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/docchat/backend-go/internal/errors"
)

// e5 系列模型的输入前缀约定
const (
	queryPrefix   = "query: "
	passagePrefix = "passage: "
)

// OpenAIEmbedder 通过 OpenAI 兼容端点生成嵌入向量
// BaseURL 可指向本地 Ollama 的 /v1 端点
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

// OpenAIEmbedderOptions 嵌入器配置
type OpenAIEmbedderOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// NewOpenAIEmbedder 创建嵌入向量生成器
func NewOpenAIEmbedder(opts OpenAIEmbedderOptions) Embedder {
	if opts.Model == "" || opts.Dimensions <= 0 {
		return &NoopEmbedder{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      opts.Model,
		dimensions: opts.Dimensions,
		timeout:    opts.Timeout,
	}
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{queryPrefix + strings.TrimSpace(text)})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{passagePrefix + strings.TrimSpace(text)})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = passagePrefix + strings.TrimSpace(t)
	}
	return e.embed(ctx, inputs)
}

// embed 单次模型调用，超时受限；重试策略由调用方决定
func (e *OpenAIEmbedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if e.client == nil {
		return nil, apperrors.NewEmbeddingError("openai client not initialized", nil)
	}
	for _, in := range inputs {
		if strings.HasSuffix(in, ": ") {
			return nil, apperrors.NewEmbeddingError("text is empty", nil)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: inputs,
	})
	if err != nil {
		return nil, apperrors.NewEmbeddingError("embedding request failed", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, apperrors.NewEmbeddingError("embedding response length mismatch", nil)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != e.dimensions {
			return nil, apperrors.NewEmbeddingError("embedding dimension mismatch", nil)
		}
		vec := make([]float32, len(data.Embedding))
		copy(vec, data.Embedding)
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Model() string {
	return e.model
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}
