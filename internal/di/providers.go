package di

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"gorm.io/gorm"

	"github.com/docchat/backend-go/internal/config"
	"github.com/docchat/backend-go/internal/database"
	"github.com/docchat/backend-go/internal/extractor"
	"github.com/docchat/backend-go/internal/queue"
	"github.com/docchat/backend-go/internal/retrieval"
	"github.com/docchat/backend-go/internal/services"
	"github.com/docchat/backend-go/internal/storage"
	"github.com/docchat/backend-go/internal/worker"
)

// RegisterProviders 注册所有依赖提供者
// 基础设施（数据库、Redis、队列）由bootstrap先行初始化，
// 这里只负责把已就绪的实例与检索管道各组件接到一起。
func RegisterProviders(container *dig.Container) error {
	providers := []interface{}{
		provideConfig,
		provideDB,
		provideRedis,
		provideTaskQueue,
		provideEmbedder,
		provideVectorStore,
		provideIndexer,
		provideObjectStore,
		provideChunker,
		provideEngine,
		provideDocumentStore,
		provideLocker,
		providePipelineMetrics,
		provideWorkerPool,
		provideDocumentService,
		provideSearchService,
		services.NewStatsService,
		extractor.NewManager,
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

func provideConfig() (*config.Config, error) {
	cfg := config.GetAppConfig()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	return cfg, nil
}

func provideDB() (*gorm.DB, error) {
	if database.DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return database.DB, nil
}

// provideRedis Redis可选，未启用时返回nil，下游组件自行降级
func provideRedis(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return database.RedisClient
}

func provideTaskQueue(cfg *config.Config) (queue.TaskQueue, error) {
	if cfg.Kafka.Enabled {
		return queue.NewKafkaQueue(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	}
	return queue.NewMemoryQueue(256), nil
}

func provideEmbedder(cfg *config.Config) retrieval.Embedder {
	emb := cfg.Retrieval.Embedding
	return retrieval.NewOpenAIEmbedder(retrieval.OpenAIEmbedderOptions{
		BaseURL:    emb.BaseURL,
		APIKey:     emb.APIKey,
		Model:      emb.Model,
		Dimensions: emb.Dimensions,
		Timeout:    cfg.Retrieval.EmbedTimeoutDuration(),
	})
}

func provideVectorStore(cfg *config.Config, db *gorm.DB) (retrieval.VectorStore, error) {
	switch cfg.Retrieval.VectorStore.Provider {
	case "", "database":
		return retrieval.NewPgVectorStore(db), nil
	case "memory":
		return retrieval.NewMemoryVectorStore(), nil
	case "milvus":
		m := cfg.Retrieval.VectorStore.Milvus
		return retrieval.NewMilvusVectorStore(retrieval.MilvusOptions{
			Address:    m.Address,
			Username:   m.Username,
			Password:   m.Password,
			Collection: m.Collection,
			Database:   m.Database,
			VectorSize: cfg.Retrieval.Embedding.Dimensions,
			UseTLS:     m.TLS,
		})
	default:
		return nil, fmt.Errorf("unknown vector store provider: %s", cfg.Retrieval.VectorStore.Provider)
	}
}

func provideIndexer(cfg *config.Config) (retrieval.FulltextIndexer, error) {
	switch cfg.Retrieval.Search.Provider {
	case "", "none":
		return &retrieval.NoopFulltextIndexer{}, nil
	case "elasticsearch":
		es := cfg.Retrieval.Search.Elasticsearch
		return retrieval.NewElasticsearchIndexer(es.Addresses, es.Username, es.Password, es.APIKey, es.IndexPrefix)
	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.Retrieval.Search.Provider)
	}
}

func provideObjectStore(cfg *config.Config) (storage.ObjectStore, error) {
	if !cfg.Storage.Enabled {
		return storage.NoopObjectStore{}, nil
	}
	return storage.NewMinIOStore(cfg.Storage)
}

func provideChunker(cfg *config.Config) *retrieval.Chunker {
	return retrieval.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
}

func provideEngine(embedder retrieval.Embedder, store retrieval.VectorStore, cfg *config.Config) *retrieval.Engine {
	return retrieval.NewEngine(embedder, store, cfg.Retrieval.DefaultLimit, cfg.Retrieval.MinScore)
}

func provideDocumentStore(db *gorm.DB) worker.DocumentStore {
	return worker.NewGormDocumentStore(db)
}

// provideLocker Redis可用时用分布式锁，否则退化为进程内锁
func provideLocker(cache *redis.Client) worker.DocLocker {
	if cache != nil {
		return worker.NewRedisLocker(cache, 0)
	}
	return worker.NewLocalLocker()
}

func providePipelineMetrics() *worker.PipelineMetrics {
	return worker.NewPipelineMetrics()
}

func provideWorkerPool(
	tasks queue.TaskQueue,
	docs worker.DocumentStore,
	chunker *retrieval.Chunker,
	embedder retrieval.Embedder,
	vectors retrieval.VectorStore,
	indexer retrieval.FulltextIndexer,
	locker worker.DocLocker,
	metrics *worker.PipelineMetrics,
	cfg *config.Config,
) *worker.Pool {
	return worker.NewPool(tasks, docs, chunker, embedder, vectors, indexer, locker, metrics, worker.Options{
		Concurrency:  cfg.Retrieval.MaxConcurrent,
		BatchSize:    cfg.Retrieval.EmbeddingBatchSize,
		RetryCap:     cfg.Retrieval.RetryCap,
		PollInterval: cfg.Retrieval.PollIntervalDuration(),
	})
}

func provideDocumentService(
	db *gorm.DB,
	tasks queue.TaskQueue,
	ext *extractor.Manager,
	objects storage.ObjectStore,
	vectors retrieval.VectorStore,
	indexer retrieval.FulltextIndexer,
	cache *redis.Client,
) *services.DocumentService {
	return services.NewDocumentService(db, tasks, ext, objects, vectors, indexer, cache)
}

func provideSearchService(
	engine *retrieval.Engine,
	indexer retrieval.FulltextIndexer,
	cache *redis.Client,
	cfg *config.Config,
) *services.SearchService {
	ttl := time.Duration(cfg.Redis.SearchCacheTTL) * time.Second
	return services.NewSearchService(engine, indexer, cache, ttl)
}
