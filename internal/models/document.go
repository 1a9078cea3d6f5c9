package models

import (
	"time"
)

// 文档嵌入状态机
// pending -> processing -> completed | failed
// failed 文档重新入队时回到 pending
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

// Document 文档表
type Document struct {
	ID         uint   `gorm:"primaryKey;column:id" json:"id"`
	DocumentID string `gorm:"column:document_id;size:64;not null;uniqueIndex" json:"document_id"`
	Title      string `gorm:"column:title;size:512;not null" json:"title"`
	Content    string `gorm:"type:text;column:content" json:"content,omitempty"`
	// 原始文件在对象存储中的路径，纯文本入库时为空
	ObjectKey   string `gorm:"column:object_key;size:512" json:"object_key,omitempty"`
	ContentType string `gorm:"column:content_type;size:128" json:"content_type,omitempty"`

	EmbeddingStatus string `gorm:"column:embedding_status;size:20;not null;default:pending;index" json:"embedding_status"`
	// 失败时记录最后一次错误，便于排查
	LastError string `gorm:"type:text;column:last_error" json:"last_error,omitempty"`
	// 已完成嵌入的分块数
	ChunkCount int `gorm:"column:chunk_count;default:0" json:"chunk_count"`
	// 生成当前分块向量的模型标识
	EmbeddingModel string `gorm:"column:embedding_model;size:128" json:"embedding_model,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

// IsTerminal 是否处于终态
func (d *Document) IsTerminal() bool {
	return d.EmbeddingStatus == DocStatusCompleted || d.EmbeddingStatus == DocStatusFailed
}
