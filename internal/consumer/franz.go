package consumer

import (
	"context"
	stderrors "errors"
	"math"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"go.uber.org/zap"
)

// maxPollRecords 单次拉取的最大记录数
const maxPollRecords = 10000

// FranzProvider 基于franz-go的连接提供者
type FranzProvider struct {
	cfg config.KafkaConfig
}

// NewFranzProvider 创建franz-go连接提供者
func NewFranzProvider(cfg config.KafkaConfig) *FranzProvider {
	return &FranzProvider{cfg: cfg}
}

// Open 创建一个未定位的连接，Seek时才真正建立客户端
func (p *FranzProvider) Open(ctx context.Context) (Conn, error) {
	if len(p.cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeKafkaConnect, "no kafka brokers configured")
	}
	return &FranzConn{cfg: p.cfg}, nil
}

// FranzConn franz-go单分区连接
//
// 不加入消费组，直接通过ConsumePartitions定位到指定offset。
// Close可以与Pull并发调用。
type FranzConn struct {
	cfg config.KafkaConfig

	mu        sync.Mutex
	client    *kgo.Client
	topic     string
	partition int32
}

// options 构建客户端选项
func (c *FranzConn) options() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(c.cfg.Brokers...),
		kgo.FetchMaxBytes(fetchMaxBytes(c.cfg.MaxFetchBytes)),
		kgo.FetchMinBytes(1),
	}
	if c.cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(c.cfg.ClientID))
	}
	if c.cfg.FetchMaxWaitMs > 0 {
		opts = append(opts, kgo.FetchMaxWait(time.Duration(c.cfg.FetchMaxWaitMs)*time.Millisecond))
	}
	if c.cfg.DialTimeout > 0 {
		opts = append(opts, kgo.DialTimeout(time.Duration(c.cfg.DialTimeout)*time.Second))
	}
	return opts
}

// fetchMaxBytes 限制在int32范围内，非正数使用franz-go默认值
func fetchMaxBytes(n int) int32 {
	switch {
	case n <= 0:
		return 50 << 20
	case int64(n) > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(n)
	}
}

// Seek 定位到指定分区offset，已有客户端会被替换
func (c *FranzConn) Seek(ctx context.Context, topic string, partition int32, offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}

	opts := append(c.options(),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			topic: {partition: kgo.NewOffset().At(offset)},
		}),
	)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return errors.Wrap(errors.ErrCodeKafkaConnect, "failed to create kafka client", err)
	}

	// 测试连接
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return errors.Wrap(errors.ErrCodeKafkaConnect, "failed to ping kafka", err)
	}

	c.client = client
	c.topic = topic
	c.partition = partition

	logger.Debug("kafka connection positioned",
		zap.Strings("brokers", c.cfg.Brokers),
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Pull 拉取一批消息，超时未拿到数据返回空批次
func (c *FranzConn) Pull(ctx context.Context, timeout time.Duration) ([]*Message, error) {
	c.mu.Lock()
	client, topic, partition := c.client, c.topic, c.partition
	c.mu.Unlock()
	if client == nil {
		return nil, errors.New(errors.ErrCodeIllegalState, "pull before seek")
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := client.PollRecords(pollCtx, maxPollRecords)
	if fetches.IsClientClosed() {
		return nil, errors.New(errors.ErrCodeKafkaConsume, "kafka client closed")
	}

	if err := fetchError(ctx, fetches); err != nil {
		return nil, err
	}
	return messagesFor(fetches, topic, partition), nil
}

// fetchError 返回第一个需要上报的拉取错误，轮询超时不算错误
func fetchError(ctx context.Context, fetches kgo.Fetches) error {
	for _, fe := range fetches.Errors() {
		// 超时只代表暂时没有数据
		if stderrors.Is(fe.Err, context.DeadlineExceeded) && ctx.Err() == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(errors.ErrCodeKafkaConsume, "fetch error", fe.Err)
	}
	return nil
}

// messagesFor 只保留指定分区的记录
func messagesFor(fetches kgo.Fetches, topic string, partition int32) []*Message {
	var batch []*Message
	fetches.EachRecord(func(record *kgo.Record) {
		if record.Topic != topic || record.Partition != partition {
			return
		}
		batch = append(batch, &Message{
			Topic:     record.Topic,
			Partition: record.Partition,
			Offset:    record.Offset,
			Key:       record.Key,
			Value:     record.Value,
			Timestamp: record.Timestamp.UnixMilli(),
		})
	})
	return batch
}

// EarliestOffset 查询分区最早保留的offset
func (c *FranzConn) EarliestOffset(ctx context.Context, topic string, partition int32) (int64, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return 0, errors.New(errors.ErrCodeIllegalState, "earliest offset lookup before seek")
	}

	offsets, err := kadm.NewClient(client).ListStartOffsets(ctx, topic)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeKafkaOffsets, "failed to list start offsets", err)
	}
	listed, ok := offsets.Lookup(topic, partition)
	if !ok {
		return 0, errors.Newf(errors.ErrCodeKafkaOffsets, "no start offset for %s-%d", topic, partition)
	}
	if listed.Err != nil {
		return 0, errors.Wrap(errors.ErrCodeKafkaOffsets, "start offset error", listed.Err)
	}
	return listed.Offset, nil
}

// Close 关闭连接
func (c *FranzConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	c.client.Close()
	c.client = nil
	return nil
}
