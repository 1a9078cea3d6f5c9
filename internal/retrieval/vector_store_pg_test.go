package retrieval

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gdb, mock
}

func TestPgVectorStore_ReplaceDocumentChunks(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewPgVectorStore(gdb)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_chunks WHERE document_id").
		WithArgs("doc1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO document_chunks").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ReplaceDocumentChunks(context.Background(), "doc1", []ChunkWithVector{
		{
			ChunkID:        "doc1_0_abcd1234",
			DocumentID:     "doc1",
			ChunkIndex:     0,
			Content:        "hello world",
			WordCount:      2,
			EmbeddingModel: "test-embed-v1",
			Embedding:      []float32{0.1, 0.2, 0.3},
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorStore_ReplaceRejectsEmptyEmbedding(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewPgVectorStore(gdb)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_chunks WHERE document_id").
		WithArgs("doc1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.ReplaceDocumentChunks(context.Background(), "doc1", []ChunkWithVector{
		{ChunkID: "doc1_0_abcd1234", DocumentID: "doc1"},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorStore_NearestQueryShape(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewPgVectorStore(gdb)

	rows := sqlmock.NewRows([]string{"chunk_id", "document_id", "chunk_index", "content", "score"}).
		AddRow("doc1_0_abcd1234", "doc1", 0, "hello world", 0.91)
	mock.ExpectQuery(`1 - \(embedding <=> (.+)::vector\) AS score`).
		WillReturnRows(rows)

	results, err := store.Nearest(context.Background(), NearestRequest{
		QueryVector:    []float32{1, 0, 0},
		K:              5,
		MinScore:       0.5,
		EmbeddingModel: "test-embed-v1",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1", results[0].DocumentID)
	assert.InDelta(t, 0.91, results[0].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorStore_NearestEmptyQueryVector(t *testing.T) {
	gdb, _ := newMockGorm(t)
	store := NewPgVectorStore(gdb)

	results, err := store.Nearest(context.Background(), NearestRequest{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPgVectorStore_Progress(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewPgVectorStore(gdb)

	rows := sqlmock.NewRows([]string{"count"}).AddRow(7)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM document_chunks WHERE document_id`).
		WithArgs("doc1").
		WillReturnRows(rows)

	count, err := store.Progress(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[1,0.5,-0.25]", vectorLiteral([]float32{1, 0.5, -0.25}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}
