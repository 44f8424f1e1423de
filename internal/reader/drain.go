package reader

import (
	"context"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/internal/consumer"
	"github.com/kafka-range-reader/kafka-range-reader/internal/split"
)

// RecordFunc 处理单条记录，返回错误会中止读取
type RecordFunc func(msg *consumer.Message) error

// ReadRange 用新的读取器读完整个分片，返回产出的记录数
//
// 读取器在所有路径上都会被关闭。
func ReadRange(ctx context.Context, provider consumer.Provider, cfg config.ReaderConfig,
	rng split.PartitionRange, fn RecordFunc) (int64, error) {
	r := New(provider, cfg)
	defer r.Close()

	if err := r.Initialize(ctx, rng); err != nil {
		return 0, err
	}

	var count int64
	for {
		ok, err := r.Next(ctx)
		if err != nil {
			return count, err
		}
		if !ok {
			return count, nil
		}

		msg, err := r.Current()
		if err != nil {
			return count, err
		}
		if err := fn(msg); err != nil {
			return count, err
		}
		count++
	}
}
