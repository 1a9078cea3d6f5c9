package worker

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/queue"
	"github.com/docchat/backend-go/internal/retrieval"
)

// Options 工作池配置
type Options struct {
	// 同时嵌入的文档数上限，这是有意的背压策略
	Concurrency int
	// 嵌入批大小
	BatchSize int
	// 重试上限，达到后文档转为 failed
	RetryCap int
	// 队列空闲轮询间隔
	PollInterval time.Duration
	// 重试退避基数，实际延迟为 RetryDelay * attempt
	RetryDelay time.Duration
}

func (o *Options) withDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.RetryCap <= 0 {
		o.RetryCap = 3
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
}

// Pool 嵌入工作池
// 从队列取任务，对每个文档：分块、批量嵌入、原子替换存储，
// 全部批次成功才写入，绝不留下半嵌入的混合状态。
type Pool struct {
	tasks    queue.TaskQueue
	docs     DocumentStore
	chunker  *retrieval.Chunker
	embedder retrieval.Embedder
	vectors  retrieval.VectorStore
	indexer  retrieval.FulltextIndexer
	locker   DocLocker
	metrics  *PipelineMetrics
	log      *zap.Logger
	opts     Options

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool 创建工作池
func NewPool(
	tasks queue.TaskQueue,
	docs DocumentStore,
	chunker *retrieval.Chunker,
	embedder retrieval.Embedder,
	vectors retrieval.VectorStore,
	indexer retrieval.FulltextIndexer,
	locker DocLocker,
	metrics *PipelineMetrics,
	opts Options,
) *Pool {
	opts.withDefaults()
	if indexer == nil {
		indexer = &retrieval.NoopFulltextIndexer{}
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Pool{
		tasks:    tasks,
		docs:     docs,
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
		indexer:  indexer,
		locker:   locker,
		metrics:  metrics,
		log:      logger.GetLogger(),
		opts:     opts,
	}
}

// Start 启动固定数量的工作协程
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.opts.Concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	p.log.Info("embedding worker pool started",
		zap.Int("concurrency", p.opts.Concurrency),
		zap.Int("batch_size", p.opts.BatchSize),
		zap.Int("retry_cap", p.opts.RetryCap))
}

// Stop 停止工作池并等待在途任务结束
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info("embedding worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := p.tasks.Dequeue(ctx, p.opts.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("dequeue failed", zap.Int("worker", id), zap.Error(err))
			continue
		}
		p.metrics.SetQueueDepth(p.tasks.Depth())
		if task == nil {
			continue
		}

		p.process(ctx, task)
	}
}

func (p *Pool) process(ctx context.Context, task *queue.Task) {
	locked, err := p.locker.TryLock(ctx, task.DocumentID)
	if err != nil {
		p.log.Error("doc lock failed", zap.String("document_id", task.DocumentID), zap.Error(err))
		p.nackLater(ctx, *task, p.opts.RetryDelay, err)
		return
	}
	if !locked {
		// 另一个执行正在处理该文档，稍后重投，不计入重试次数
		p.nackLater(ctx, *task, p.opts.RetryDelay, nil)
		return
	}
	defer p.locker.Unlock(context.Background(), task.DocumentID)

	// 下面的每条路径都会终结本次投递：完成、作废或安排新的重试任务
	defer func() {
		if err := p.tasks.Ack(context.Background(), *task); err != nil {
			p.log.Error("ack failed", zap.String("document_id", task.DocumentID), zap.Error(err))
		}
	}()

	start := time.Now()
	p.metrics.SetInFlight(1)
	defer func() {
		p.metrics.SetInFlight(-1)
		p.metrics.ObserveDuration(time.Since(start).Seconds())
	}()

	acquired, err := p.docs.AcquireProcessing(ctx, task.DocumentID)
	if err != nil {
		p.log.Error("failed to acquire processing state",
			zap.String("document_id", task.DocumentID), zap.Error(err))
		p.retryOrFail(ctx, task, err)
		return
	}
	if !acquired {
		// 文档已删除或不在 pending 状态，任务作废
		p.log.Info("task discarded, document not pending",
			zap.String("document_id", task.DocumentID))
		p.metrics.RecordOutcome("discarded")
		return
	}

	doc, err := p.docs.Get(ctx, task.DocumentID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeResourceNotFound) {
			// 获取处理权后文档即被删除
			p.log.Info("task discarded, document deleted",
				zap.String("document_id", task.DocumentID))
			p.metrics.RecordOutcome("discarded")
			return
		}
		// 瞬时读取失败不能把文档滞留在 processing
		p.retryOrFail(ctx, task, err)
		return
	}

	drafts := p.chunker.Split(doc.Content)
	if len(drafts) == 0 {
		// 空文本是合法输入：零分块，直接完成
		if err := p.vectors.DeleteDocumentChunks(ctx, task.DocumentID); err != nil {
			p.retryOrFail(ctx, task, err)
			return
		}
		if err := p.docs.MarkCompleted(ctx, task.DocumentID, 0, p.embedder.Model()); err != nil {
			p.log.Error("failed to mark completed", zap.String("document_id", task.DocumentID), zap.Error(err))
		}
		p.metrics.RecordOutcome("completed")
		p.log.Info("document embedded",
			zap.String("document_id", task.DocumentID), zap.Int("chunks", 0))
		return
	}

	chunks, err := p.embedDrafts(ctx, task.DocumentID, drafts)
	if err != nil {
		p.retryOrFail(ctx, task, err)
		return
	}

	if err := p.vectors.ReplaceDocumentChunks(ctx, task.DocumentID, chunks); err != nil {
		p.retryOrFail(ctx, task, err)
		return
	}

	// 处理期间文档可能已被删除，此时丢弃刚写入的分块
	if _, err := p.docs.Get(ctx, task.DocumentID); err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeResourceNotFound) {
			_ = p.vectors.DeleteDocumentChunks(ctx, task.DocumentID)
			_ = p.indexer.RemoveDocument(ctx, task.DocumentID)
			p.log.Info("document deleted mid flight, chunks dropped",
				zap.String("document_id", task.DocumentID))
			p.metrics.RecordOutcome("discarded")
			return
		}
		// 存在性未知时不能直接标记完成，分块替换是幂等的，可安全重试
		p.retryOrFail(ctx, task, err)
		return
	}

	if err := p.docs.MarkCompleted(ctx, task.DocumentID, len(chunks), p.embedder.Model()); err != nil {
		p.log.Error("failed to mark completed",
			zap.String("document_id", task.DocumentID), zap.Error(err))
	}
	p.indexChunks(ctx, doc.Title, chunks)

	p.metrics.RecordOutcome("completed")
	p.log.Info("document embedded",
		zap.String("document_id", task.DocumentID),
		zap.Int("chunks", len(chunks)),
		zap.Int("attempt", task.Attempt))
}

// embedDrafts 按批嵌入全部分块，任一批失败则整体失败
func (p *Pool) embedDrafts(ctx context.Context, documentID string, drafts []retrieval.ChunkDraft) ([]retrieval.ChunkWithVector, error) {
	chunks := make([]retrieval.ChunkWithVector, 0, len(drafts))

	for offset := 0; offset < len(drafts); offset += p.opts.BatchSize {
		end := offset + p.opts.BatchSize
		if end > len(drafts) {
			end = len(drafts)
		}
		batch := drafts[offset:end]

		texts := make([]string, len(batch))
		for i, draft := range batch {
			texts[i] = draft.Content
		}

		vectors, err := p.embedder.EmbedPassages(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, apperrors.NewEmbeddingError("batch result length mismatch", nil)
		}
		p.metrics.RecordBatch(len(batch))

		for i, draft := range batch {
			chunks = append(chunks, retrieval.ChunkWithVector{
				ChunkID:        chunkID(documentID, draft.ChunkIndex, draft.Content),
				DocumentID:     documentID,
				ChunkIndex:     draft.ChunkIndex,
				Content:        draft.Content,
				StartChar:      draft.StartChar,
				EndChar:        draft.EndChar,
				WordCount:      draft.WordCount,
				EmbeddingModel: p.embedder.Model(),
				Embedding:      vectors[i],
			})
		}
	}

	return chunks, nil
}

// retryOrFail 重试间隙文档回到 pending；达到上限转为 failed 并记录错误。
// 明确不可重试的错误不消耗重试次数，直接进入失败终态。
func (p *Pool) retryOrFail(ctx context.Context, task *queue.Task, cause error) {
	nextAttempt := task.Attempt + 1
	permanent := apperrors.IsAppError(cause) && !apperrors.IsTransient(cause)

	if permanent || nextAttempt >= p.opts.RetryCap {
		if err := p.docs.MarkFailed(ctx, task.DocumentID, cause.Error()); err != nil {
			p.log.Error("failed to mark failed",
				zap.String("document_id", task.DocumentID), zap.Error(err))
		}
		// 失败文档仍可被关键词检索到
		p.indexFailedDocument(ctx, task.DocumentID)
		p.metrics.RecordOutcome("failed")
		p.log.Warn("document embedding failed permanently",
			zap.String("document_id", task.DocumentID),
			zap.Int("attempts", nextAttempt),
			zap.Error(cause))
		return
	}

	if err := p.docs.MarkPending(ctx, task.DocumentID); err != nil {
		p.log.Error("failed to mark pending",
			zap.String("document_id", task.DocumentID), zap.Error(err))
	}
	p.metrics.RecordOutcome("retried")
	p.log.Warn("document embedding failed, will retry",
		zap.String("document_id", task.DocumentID),
		zap.Int("attempt", nextAttempt),
		zap.Error(cause))

	delay := time.Duration(nextAttempt) * p.opts.RetryDelay
	p.enqueueLater(ctx, queue.Task{DocumentID: task.DocumentID, Attempt: nextAttempt}, delay)
}

// nackLater 延迟重投，避免锁竞争时的热循环
func (p *Pool) nackLater(ctx context.Context, task queue.Task, delay time.Duration, cause error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		if err := p.tasks.Nack(context.Background(), task, cause); err != nil {
			p.log.Error("nack failed",
				zap.String("document_id", task.DocumentID), zap.Error(err))
		}
	}()
}

func (p *Pool) enqueueLater(ctx context.Context, task queue.Task, delay time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		if err := p.tasks.Enqueue(context.Background(), task); err != nil {
			p.log.Error("re-enqueue failed",
				zap.String("document_id", task.DocumentID), zap.Error(err))
		}
	}()
}

func (p *Pool) indexChunks(ctx context.Context, title string, chunks []retrieval.ChunkWithVector) {
	if !p.indexer.Ready() {
		return
	}
	fulltext := make([]retrieval.FulltextChunk, len(chunks))
	for i, chunk := range chunks {
		fulltext[i] = retrieval.FulltextChunk{
			ChunkID:    chunk.ChunkID,
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Content:    chunk.Content,
			Title:      title,
			CreatedAt:  time.Now(),
		}
	}
	if err := p.indexer.IndexChunks(ctx, fulltext); err != nil {
		p.log.Warn("fulltext indexing failed", zap.Error(err))
	}
}

// indexFailedDocument 向量化失败的文档按原文分块进入关键词索引
func (p *Pool) indexFailedDocument(ctx context.Context, documentID string) {
	if !p.indexer.Ready() {
		return
	}
	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		return
	}
	drafts := p.chunker.Split(doc.Content)
	fulltext := make([]retrieval.FulltextChunk, len(drafts))
	for i, draft := range drafts {
		fulltext[i] = retrieval.FulltextChunk{
			ChunkID:    chunkID(documentID, draft.ChunkIndex, draft.Content),
			DocumentID: documentID,
			ChunkIndex: draft.ChunkIndex,
			Content:    draft.Content,
			Title:      doc.Title,
			CreatedAt:  time.Now(),
		}
	}
	if err := p.indexer.IndexChunks(ctx, fulltext); err != nil {
		p.log.Warn("fulltext indexing failed", zap.Error(err))
	}
}

// chunkID 由文档ID、序号和内容指纹构成，同一内容可复现
func chunkID(documentID string, index int, content string) string {
	sum := md5.Sum([]byte(content))
	return fmt.Sprintf("%s_%d_%s", documentID, index, hex.EncodeToString(sum[:])[:8])
}
