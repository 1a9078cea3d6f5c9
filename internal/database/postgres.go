package database

import (
	"fmt"
	"log"

	"github.com/docchat/backend-go/internal/config"
	"github.com/docchat/backend-go/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB() (*gorm.DB, error) {
	cfg := config.GetAppConfig()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层的sql.DB设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := autoMigrate(db, cfg.Retrieval.Embedding.Dimensions); err != nil {
		log.Printf("⚠️  Database migration warning: %v", err)
	}

	DB = db
	log.Println("✅ Database connected successfully")
	return db, nil
}

// autoMigrate 自动迁移检索相关表
// document_chunks 的 embedding 列是 pgvector 类型，
// AutoMigrate 无法表达，这里手动建表并创建 ivfflat 索引。
func autoMigrate(db *gorm.DB, dimensions int) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	if err := db.AutoMigrate(&models.Document{}); err != nil {
		log.Printf("⚠️  Failed to migrate documents: %v", err)
	}

	if err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS document_chunks (
			id bigserial PRIMARY KEY,
			chunk_id varchar(128) UNIQUE NOT NULL,
			document_id varchar(64) NOT NULL,
			chunk_index integer NOT NULL,
			content text NOT NULL,
			start_char integer DEFAULT 0,
			end_char integer DEFAULT 0,
			word_count integer DEFAULT 0,
			embedding_model varchar(128) NOT NULL,
			embedding vector(%d),
			created_at timestamptz DEFAULT NOW()
		)
	`, dimensions)).Error; err != nil {
		return fmt.Errorf("failed to create document_chunks: %w", err)
	}

	db.Exec("CREATE INDEX IF NOT EXISTS idx_document_chunks_document_id ON document_chunks(document_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_document_chunks_model ON document_chunks(embedding_model)")

	// ivfflat 要求表中已有数据才能训练聚类中心，空表时创建仍然成功，
	// 但在大批量导入后应重建索引
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding
		ON document_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)
	`).Error; err != nil {
		log.Printf("⚠️  Failed to create ivfflat index: %v", err)
	}

	return nil
}

func CloseDB() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
