package consumer

import (
	"context"
	"time"
)

// Message Kafka消息
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp int64
}

// Conn 单分区消费连接，由一个reader独占
//
// Pull返回nil或空切片表示本次没有数据，不代表分区已读完。
type Conn interface {
	Seek(ctx context.Context, topic string, partition int32, offset int64) error
	Pull(ctx context.Context, timeout time.Duration) ([]*Message, error)
	Close() error
}

// EarliestOffsetter 可选能力：查询分区当前最早保留的offset
type EarliestOffsetter interface {
	EarliestOffset(ctx context.Context, topic string, partition int32) (int64, error)
}

// Provider 连接提供者，每次Open返回一个新的独占连接
type Provider interface {
	Open(ctx context.Context) (Conn, error)
}

// ProviderFunc 函数适配为Provider
type ProviderFunc func(ctx context.Context) (Conn, error)

// Open 调用f
func (f ProviderFunc) Open(ctx context.Context) (Conn, error) {
	return f(ctx)
}
