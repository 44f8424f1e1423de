package offsets

import (
	"context"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/internal/split"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"go.uber.org/zap"
)

// Marker 选择最早或最新offset
type Marker int

const (
	Earliest Marker = iota
	Latest
)

func (m Marker) String() string {
	if m == Earliest {
		return "earliest"
	}
	return "latest"
}

// Resolver 查询分区offset
type Resolver interface {
	ResolveOffsets(ctx context.Context, topics []string, marker Marker) (map[split.TopicPartition]int64, error)
}

// KadmResolver 基于franz-go admin客户端的offset查询
type KadmResolver struct {
	client  *kgo.Client
	admin   *kadm.Client
	timeout time.Duration
}

// NewKadmResolver 创建offset查询器
func NewKadmResolver(cfg config.KafkaConfig) (*KadmResolver, error) {
	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...)}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.DialTimeout > 0 {
		opts = append(opts, kgo.DialTimeout(time.Duration(cfg.DialTimeout)*time.Second))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeKafkaConnect, "failed to create kafka admin client", err)
	}

	return &KadmResolver{
		client:  client,
		admin:   kadm.NewClient(client),
		timeout: time.Duration(cfg.RequestTimeout) * time.Second,
	}, nil
}

// ResolveOffsets 查询所有分区的最早或最新offset
func (r *KadmResolver) ResolveOffsets(ctx context.Context, topics []string, marker Marker) (map[split.TopicPartition]int64, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var (
		listed kadm.ListedOffsets
		err    error
	)
	if marker == Earliest {
		listed, err = r.admin.ListStartOffsets(ctx, topics...)
	} else {
		listed, err = r.admin.ListEndOffsets(ctx, topics...)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeKafkaOffsets, "failed to list "+marker.String()+" offsets", err)
	}
	if err := listed.Error(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeKafkaOffsets, "partition offset error", err)
	}

	result := make(map[split.TopicPartition]int64)
	listed.Each(func(o kadm.ListedOffset) {
		result[split.TopicPartition{Topic: o.Topic, Partition: o.Partition}] = o.Offset
	})

	logger.Info("offsets resolved",
		zap.Strings("topics", topics),
		zap.String("marker", marker.String()),
		zap.Int("partitions", len(result)),
	)
	return result, nil
}

// Close 关闭客户端
func (r *KadmResolver) Close() {
	r.client.Close()
}
