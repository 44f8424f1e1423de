package split

import (
	"fmt"

	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
)

// TopicPartition 主题分区标识
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}

// PartitionRange 单个分区的读取范围 [StartOffset, EndOffset)
//
// 构造后不可修改，由分片步骤创建，只被一个reader消费一次。
type PartitionRange struct {
	Topic       string `json:"topic"`
	Partition   int32  `json:"partition"`
	StartOffset int64  `json:"start_offset"` // 包含
	EndOffset   int64  `json:"end_offset"`   // 不包含
}

// New 创建并校验分片
func New(topic string, partition int32, startOffset, endOffset int64) (PartitionRange, error) {
	r := PartitionRange{
		Topic:       topic,
		Partition:   partition,
		StartOffset: startOffset,
		EndOffset:   endOffset,
	}
	if err := r.Validate(); err != nil {
		return PartitionRange{}, err
	}
	return r, nil
}

// Validate 校验分片
func (r PartitionRange) Validate() error {
	if r.Topic == "" {
		return errors.New(errors.ErrCodeConfiguration, "partition range topic is required")
	}
	if r.Partition < 0 {
		return errors.Newf(errors.ErrCodeConfiguration, "partition range %s: negative partition", r)
	}
	if r.StartOffset < 0 {
		return errors.Newf(errors.ErrCodeConfiguration, "partition range %s: negative start offset", r)
	}
	if r.EndOffset < r.StartOffset {
		return errors.Newf(errors.ErrCodeConfiguration, "partition range %s: end offset before start offset", r)
	}
	return nil
}

// TopicPartition 返回分片所属分区
func (r PartitionRange) TopicPartition() TopicPartition {
	return TopicPartition{Topic: r.Topic, Partition: r.Partition}
}

// Len 返回分片包含的消息数
func (r PartitionRange) Len() int64 {
	return r.EndOffset - r.StartOffset
}

// IsEmpty 是否为空分片
func (r PartitionRange) IsEmpty() bool {
	return r.EndOffset == r.StartOffset
}

// Contains offset是否落在分片内
func (r PartitionRange) Contains(offset int64) bool {
	return offset >= r.StartOffset && offset < r.EndOffset
}

// Equal 判断两个分片是否相同
func (r PartitionRange) Equal(o PartitionRange) bool {
	return r == o
}

func (r PartitionRange) String() string {
	return fmt.Sprintf("%s-%d[%d,%d)", r.Topic, r.Partition, r.StartOffset, r.EndOffset)
}
