// Package kafkatest 提供基于kfake的内存Kafka集群
package kafkatest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"
)

// CreateCluster 启动单broker集群并创建topic，测试结束时关闭，返回broker地址
func CreateCluster(t testing.TB, partitions int32, topic string) []string {
	t.Helper()

	cluster, err := kfake.NewCluster(kfake.NumBrokers(1), kfake.SeedTopics(partitions, topic))
	require.NoError(t, err)
	t.Cleanup(cluster.Close)

	return cluster.ListenAddrs()
}

// Produce 向指定分区同步写入n条记录，key为key-<i>，value为{"id":<i>}
func Produce(t testing.TB, addrs []string, topic string, partition int32, n int) {
	t.Helper()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(addrs...),
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
	)
	require.NoError(t, err)
	defer client.Close()

	records := make([]*kgo.Record, n)
	for i := range records {
		records[i] = &kgo.Record{
			Topic:     topic,
			Partition: partition,
			Key:       []byte(fmt.Sprintf("key-%d", i)),
			Value:     []byte(fmt.Sprintf(`{"id":%d}`, i)),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.ProduceSync(ctx, records...).FirstErr())
}
