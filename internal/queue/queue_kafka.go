package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/docchat/backend-go/internal/logger"
)

// KafkaQueue Kafka承载的任务队列
// 生产端同步写入，消费端通过consumer group回灌到内部通道。
// 位点只在 Ack/Nack 时标记：未确认的任务在崩溃或再均衡后
// 会被重新投递，重复投递由工作器的文档级互斥与状态机兜底。
type KafkaQueue struct {
	producer sarama.SyncProducer
	consumer sarama.ConsumerGroup
	topic    string
	groupID  string

	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 在途消息，键为任务凭据，Ack/Nack时据此标记位点
	inflightMu sync.Mutex
	inflight   map[string]inflightMessage
}

// inflightMessage 已出队但尚未确认的Kafka消息
type inflightMessage struct {
	session sarama.ConsumerGroupSession
	message *sarama.ConsumerMessage
}

// NewKafkaQueue 创建Kafka队列并启动消费循环
func NewKafkaQueue(brokers []string, topic, groupID string) (*KafkaQueue, error) {
	producerConfig := sarama.NewConfig()
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, producerConfig)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Consumer.Return.Errors = true
	consumerConfig.Version = sarama.V2_6_0_0

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, consumerConfig)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("创建Kafka消费者组失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &KafkaQueue{
		producer: producer,
		consumer: consumerGroup,
		topic:    topic,
		groupID:  groupID,
		tasks:    make(chan Task, 256),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]inflightMessage),
	}

	q.start()

	logger.Info("Kafka task queue initialized",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
		zap.String("group_id", groupID))
	return q, nil
}

func (q *KafkaQueue) Enqueue(ctx context.Context, task Task) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.StringEncoder(task.DocumentID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("attempt"), Value: []byte(fmt.Sprintf("%d", task.Attempt))},
		},
	}

	partition, offset, err := q.producer.SendMessage(msg)
	if err != nil {
		logger.Error("发送Kafka消息失败", zap.Error(err))
		return fmt.Errorf("发送任务失败: %w", err)
	}

	logger.Debug("任务已入队",
		zap.String("document_id", task.DocumentID),
		zap.Int("attempt", task.Attempt),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (q *KafkaQueue) Dequeue(ctx context.Context, wait time.Duration) (*Task, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case task, ok := <-q.tasks:
		if !ok {
			return nil, fmt.Errorf("queue is closed")
		}
		return &task, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack 标记消息位点，任务不再重新投递
func (q *KafkaQueue) Ack(ctx context.Context, task Task) error {
	if in, ok := q.takeInflight(task.Receipt); ok {
		in.session.MarkMessage(in.message, "")
	}
	return nil
}

// Nack 原样重新发布任务后标记原消息位点，
// 重投递由新发布的副本保证而不是依赖再均衡
func (q *KafkaQueue) Nack(ctx context.Context, task Task, cause error) error {
	in, ok := q.takeInflight(task.Receipt)

	task.Receipt = ""
	if err := q.Enqueue(ctx, task); err != nil {
		// 重新发布失败时不标记位点，消息在再均衡后仍会回来
		if ok {
			q.putInflight(receiptOf(in.message), in)
		}
		return err
	}

	if ok {
		in.session.MarkMessage(in.message, "")
	}
	if cause != nil {
		logger.Debug("任务重投",
			zap.String("document_id", task.DocumentID),
			zap.Error(cause))
	}
	return nil
}

func (q *KafkaQueue) putInflight(receipt string, in inflightMessage) {
	q.inflightMu.Lock()
	q.inflight[receipt] = in
	q.inflightMu.Unlock()
}

func (q *KafkaQueue) takeInflight(receipt string) (inflightMessage, bool) {
	if receipt == "" {
		return inflightMessage{}, false
	}
	q.inflightMu.Lock()
	defer q.inflightMu.Unlock()
	in, ok := q.inflight[receipt]
	if ok {
		delete(q.inflight, receipt)
	}
	return in, ok
}

// dropSession 再均衡后该会话的位点已失效，清掉对应的在途记录
func (q *KafkaQueue) dropSession(session sarama.ConsumerGroupSession) {
	q.inflightMu.Lock()
	defer q.inflightMu.Unlock()
	for receipt, in := range q.inflight {
		if in.session == session {
			delete(q.inflight, receipt)
		}
	}
}

func receiptOf(message *sarama.ConsumerMessage) string {
	return fmt.Sprintf("%s/%d/%d", message.Topic, message.Partition, message.Offset)
}

// Depth Kafka侧无法便宜地统计积压，返回通道内已拉取的数量
func (q *KafkaQueue) Depth() int {
	return len(q.tasks)
}

func (q *KafkaQueue) start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		handler := &taskGroupHandler{queue: q}
		for {
			select {
			case <-q.ctx.Done():
				logger.Info("Kafka消费循环停止")
				return
			default:
				if err := q.consumer.Consume(q.ctx, []string{q.topic}, handler); err != nil {
					logger.Error("消费任务失败", zap.Error(err))
					time.Sleep(5 * time.Second)
				}
			}
		}
	}()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for err := range q.consumer.Errors() {
			logger.Error("Kafka消费者错误", zap.Error(err))
		}
	}()
}

func (q *KafkaQueue) Close() error {
	q.cancel()
	if err := q.consumer.Close(); err != nil {
		logger.Error("关闭Kafka消费者失败", zap.Error(err))
	}
	q.wg.Wait()
	return q.producer.Close()
}

// taskGroupHandler 消费者组处理器，把消息解码后灌入任务通道
// 位点在 Ack/Nack 时才标记，这里只登记在途消息
type taskGroupHandler struct {
	queue *KafkaQueue
}

func (h *taskGroupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

func (h *taskGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.queue.dropSession(session)
	return nil
}

func (h *taskGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			var task Task
			if err := json.Unmarshal(message.Value, &task); err != nil {
				logger.Warn("丢弃无法解析的任务消息",
					zap.Int64("offset", message.Offset),
					zap.Error(err))
				session.MarkMessage(message, "")
				continue
			}

			receipt := receiptOf(message)
			task.Receipt = receipt
			h.queue.putInflight(receipt, inflightMessage{session: session, message: message})

			select {
			case h.queue.tasks <- task:
			case <-h.queue.ctx.Done():
				h.queue.takeInflight(receipt)
				return nil
			case <-session.Context().Done():
				h.queue.takeInflight(receipt)
				return nil
			}

		case <-session.Context().Done():
			return nil
		}
	}
}
