package models

import (
	"time"
)

// DocumentChunk 文档分块表
// embedding 列为 pgvector 类型，gorm 侧声明为 vector(N)，
// 读写均通过原生 SQL 进行，避免驱动层序列化问题。
type DocumentChunk struct {
	ID         uint   `gorm:"primaryKey;column:id" json:"id"`
	ChunkID    string `gorm:"column:chunk_id;size:128;not null;uniqueIndex" json:"chunk_id"`
	DocumentID string `gorm:"column:document_id;size:64;not null;index" json:"document_id"`
	ChunkIndex int    `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Content    string `gorm:"type:text;not null" json:"content"`
	// 分块在原文中的字符偏移（按 rune 计）
	StartChar int `gorm:"column:start_char" json:"start_char"`
	EndChar   int `gorm:"column:end_char" json:"end_char"`
	WordCount int `gorm:"column:word_count" json:"word_count"`
	// 生成该向量的模型标识，检索时按模型过滤，
	// 保证同一结果集不混用不同模型的向量空间
	EmbeddingModel string `gorm:"column:embedding_model;size:128;not null;index" json:"embedding_model"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// SearchResult 向量检索结果
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// EmbeddingProgress 文档嵌入进度
// 分块替换是原子的，EmbeddedChunks 只会是0或TotalChunks
type EmbeddingProgress struct {
	DocumentID     string `json:"document_id"`
	Status         string `json:"status"`
	TotalChunks    int    `json:"total_chunks"`
	EmbeddedChunks int    `json:"embedded_chunks"`
	LastError      string `json:"last_error,omitempty"`
}
