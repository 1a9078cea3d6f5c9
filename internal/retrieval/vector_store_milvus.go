package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	apperrors "github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/models"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Database   string
	VectorSize int
	UseTLS     bool
	Timeout    time.Duration
}

// milvusVectorStore 基于Milvus的向量存储，可替代pgvector实现
type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "document_chunks"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 768
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	milvusClient, err := client.NewClient(
		context.Background(),
		client.Config{
			Address:       opts.Address,
			DBName:        opts.Database,
			Username:      opts.Username,
			Password:      opts.Password,
			EnableTLSAuth: opts.UseTLS,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	store := &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
	}
	return store, nil
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "Document chunk vectors",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       "embedding_model",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "vector",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", s.vectorSize)},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	var index entity.Index
	index, err = entity.NewIndexHNSW(entity.COSINE, 8, 64)
	if err != nil {
		index, err = entity.NewIndexIvfFlat(entity.COSINE, 128)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	return s.milvusClient.LoadCollection(ctx, s.collection, false)
}

func (s *milvusVectorStore) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []ChunkWithVector) error {
	if err := s.ensureCollection(ctx); err != nil {
		return apperrors.NewStoreWriteError("milvus collection unavailable", err)
	}

	expr := fmt.Sprintf("document_id == %q", documentID)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return apperrors.NewStoreWriteError("milvus delete failed", err)
	}

	if len(chunks) > 0 {
		chunkIDs := make([]string, len(chunks))
		documentIDs := make([]string, len(chunks))
		chunkIndexes := make([]int64, len(chunks))
		contents := make([]string, len(chunks))
		embeddingModels := make([]string, len(chunks))
		vectors := make([][]float32, len(chunks))

		for i, chunk := range chunks {
			if len(chunk.Embedding) != s.vectorSize {
				return apperrors.NewStoreWriteError(
					fmt.Sprintf("chunk %s has unexpected vector size %d", chunk.ChunkID, len(chunk.Embedding)), nil)
			}
			chunkIDs[i] = chunk.ChunkID
			documentIDs[i] = chunk.DocumentID
			chunkIndexes[i] = int64(chunk.ChunkIndex)
			contents[i] = chunk.Content
			embeddingModels[i] = chunk.EmbeddingModel
			vectors[i] = chunk.Embedding
		}

		_, err := s.milvusClient.Insert(ctx, s.collection, "",
			entity.NewColumnVarChar("chunk_id", chunkIDs),
			entity.NewColumnVarChar("document_id", documentIDs),
			entity.NewColumnInt64("chunk_index", chunkIndexes),
			entity.NewColumnVarChar("content", contents),
			entity.NewColumnVarChar("embedding_model", embeddingModels),
			entity.NewColumnFloatVector("vector", s.vectorSize, vectors),
		)
		if err != nil {
			return apperrors.NewStoreWriteError("milvus insert failed", err)
		}
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		return apperrors.NewStoreWriteError("milvus flush failed", err)
	}
	return nil
}

func (s *milvusVectorStore) DeleteDocumentChunks(ctx context.Context, documentID string) error {
	if err := s.ensureCollection(ctx); err != nil {
		return apperrors.NewStoreWriteError("milvus collection unavailable", err)
	}

	expr := fmt.Sprintf("document_id == %q", documentID)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return apperrors.NewStoreWriteError("milvus delete failed", err)
	}
	return nil
}

func (s *milvusVectorStore) Nearest(ctx context.Context, req NearestRequest) ([]models.SearchResult, error) {
	if len(req.QueryVector) == 0 {
		return nil, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if req.K <= 0 {
		req.K = 10
	}

	expr := fmt.Sprintf("embedding_model == %q", req.EmbeddingModel)
	if len(req.DocumentIDs) > 0 {
		quoted := make([]string, len(req.DocumentIDs))
		for i, id := range req.DocumentIDs {
			quoted[i] = fmt.Sprintf("%q", id)
		}
		expr += fmt.Sprintf(" && document_id in [%s]", strings.Join(quoted, ", "))
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		nil,
		expr,
		[]string{"chunk_id", "document_id", "chunk_index", "content"},
		[]entity.Vector{entity.FloatVector(req.QueryVector)},
		"vector",
		entity.COSINE,
		req.K,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return nil, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}

	var chunkIDs, documentIDs, contents []string
	var chunkIndexes []int64
	for _, field := range result.Fields {
		switch field.Name() {
		case "chunk_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				chunkIDs = col.Data()
			}
		case "document_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				documentIDs = col.Data()
			}
		case "chunk_index":
			if col, ok := field.(*entity.ColumnInt64); ok {
				chunkIndexes = col.Data()
			}
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		}
	}

	results := make([]models.SearchResult, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		score := float64(0)
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		if score < req.MinScore {
			continue
		}

		item := models.SearchResult{Score: score}
		if i < len(chunkIDs) {
			item.ChunkID = chunkIDs[i]
		}
		if i < len(documentIDs) {
			item.DocumentID = documentIDs[i]
		}
		if i < len(chunkIndexes) {
			item.ChunkIndex = int(chunkIndexes[i])
		}
		if i < len(contents) {
			item.Content = contents[i]
		}
		results = append(results, item)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ChunkIndex != results[j].ChunkIndex {
			return results[i].ChunkIndex < results[j].ChunkIndex
		}
		return results[i].DocumentID < results[j].DocumentID
	})
	return results, nil
}

func (s *milvusVectorStore) Progress(ctx context.Context, documentID string) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}

	expr := fmt.Sprintf("document_id == %q", documentID)
	rs, err := s.milvusClient.Query(ctx, s.collection, nil, expr, []string{"chunk_id"})
	if err != nil {
		return 0, fmt.Errorf("milvus query failed: %w", err)
	}
	if len(rs) == 0 {
		return 0, nil
	}
	return rs[0].Len(), nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}
