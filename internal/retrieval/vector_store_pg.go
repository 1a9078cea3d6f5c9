package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/models"
)

// PgVectorStore 基于 PostgreSQL pgvector 的向量存储
// 余弦距离算子 <=> 配合 ivfflat 索引，score = 1 - distance
type PgVectorStore struct {
	db *gorm.DB
}

func NewPgVectorStore(db *gorm.DB) VectorStore {
	return &PgVectorStore{db: db}
}

// ReplaceDocumentChunks 在单个事务内先删后插，
// 读者要么看到完整旧集合要么看到完整新集合
func (s *PgVectorStore) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []ChunkWithVector) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM document_chunks WHERE document_id = ?", documentID).Error; err != nil {
			return err
		}

		for _, chunk := range chunks {
			if len(chunk.Embedding) == 0 {
				return fmt.Errorf("chunk %s has empty embedding", chunk.ChunkID)
			}
			err := tx.Exec(`
				INSERT INTO document_chunks
					(chunk_id, document_id, chunk_index, content, start_char, end_char, word_count, embedding_model, embedding, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?::vector, ?)`,
				chunk.ChunkID, chunk.DocumentID, chunk.ChunkIndex, chunk.Content,
				chunk.StartChar, chunk.EndChar, chunk.WordCount,
				chunk.EmbeddingModel, vectorLiteral(chunk.Embedding), time.Now(),
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewStoreWriteError("failed to replace document chunks", err)
	}
	return nil
}

func (s *PgVectorStore) DeleteDocumentChunks(ctx context.Context, documentID string) error {
	err := s.db.WithContext(ctx).
		Exec("DELETE FROM document_chunks WHERE document_id = ?", documentID).Error
	if err != nil {
		return apperrors.NewStoreWriteError("failed to delete document chunks", err)
	}
	return nil
}

func (s *PgVectorStore) Nearest(ctx context.Context, req NearestRequest) ([]models.SearchResult, error) {
	if len(req.QueryVector) == 0 {
		return nil, nil
	}
	if req.K <= 0 {
		req.K = 10
	}

	queryLiteral := vectorLiteral(req.QueryVector)

	query := `
		SELECT chunk_id, document_id, chunk_index, content,
		       1 - (embedding <=> ?::vector) AS score
		FROM document_chunks
		WHERE embedding IS NOT NULL
		  AND embedding_model = ?
		  AND 1 - (embedding <=> ?::vector) >= ?`
	args := []interface{}{queryLiteral, req.EmbeddingModel, queryLiteral, req.MinScore}

	if len(req.DocumentIDs) > 0 {
		query += " AND document_id IN ?"
		args = append(args, req.DocumentIDs)
	}

	query += " ORDER BY score DESC, chunk_index ASC, document_id ASC LIMIT ?"
	args = append(args, req.K)

	var results []models.SearchResult
	err := s.db.WithContext(ctx).Raw(query, args...).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}

func (s *PgVectorStore) Progress(ctx context.Context, documentID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM document_chunks WHERE document_id = ?", documentID).
		Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("chunk count failed: %w", err)
	}
	return int(count), nil
}

func (s *PgVectorStore) Ready() bool {
	return s.db != nil
}

// vectorLiteral 构造 pgvector 的文本字面量，如 [0.1,0.2]
func vectorLiteral(vec []float32) string {
	var sb strings.Builder
	sb.Grow(len(vec)*10 + 2)
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
