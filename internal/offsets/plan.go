package offsets

import (
	"context"

	"github.com/kafka-range-reader/kafka-range-reader/internal/split"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"go.uber.org/zap"
)

// PlanOptions 分片规划选项
type PlanOptions struct {
	// MaxRecordsPerRange 大于0时将一个分区切成多个连续分片
	MaxRecordsPerRange int64
}

// Plan 根据起止offset为每个分区生成分片
func Plan(start, end map[split.TopicPartition]int64, opts PlanOptions) ([]split.PartitionRange, error) {
	var ranges []split.PartitionRange

	for tp, startOffset := range start {
		endOffset, ok := end[tp]
		if !ok {
			logger.Warn("partition has no end offset, skipping", zap.String("partition", tp.String()))
			continue
		}

		r, err := split.New(tp.Topic, tp.Partition, startOffset, endOffset)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, Subdivide(r, opts.MaxRecordsPerRange)...)
	}

	split.Sort(ranges)
	return ranges, nil
}

// Subdivide 将分片切成每段最多max条的连续分片，max<=0或空分片时原样返回
func Subdivide(r split.PartitionRange, max int64) []split.PartitionRange {
	if max <= 0 || r.Len() <= max {
		return []split.PartitionRange{r}
	}

	parts := make([]split.PartitionRange, 0, (r.Len()+max-1)/max)
	for s := r.StartOffset; s < r.EndOffset; s += max {
		e := s + max
		if e > r.EndOffset {
			e = r.EndOffset
		}
		parts = append(parts, split.PartitionRange{
			Topic:       r.Topic,
			Partition:   r.Partition,
			StartOffset: s,
			EndOffset:   e,
		})
	}
	return parts
}

// Resolve 查询earliest/latest并规划分片
func Resolve(ctx context.Context, resolver Resolver, topics []string, opts PlanOptions) ([]split.PartitionRange, error) {
	if len(topics) == 0 {
		return nil, errors.New(errors.ErrCodeKafkaOffsets, "no topics to resolve")
	}

	start, err := resolver.ResolveOffsets(ctx, topics, Earliest)
	if err != nil {
		return nil, err
	}
	end, err := resolver.ResolveOffsets(ctx, topics, Latest)
	if err != nil {
		return nil, err
	}

	return Plan(start, end, opts)
}
