package offsets

import (
	"context"
	stderrors "errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kafka-range-reader/kafka-range-reader/internal/split"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

func tp(topic string, p int32) split.TopicPartition {
	return split.TopicPartition{Topic: topic, Partition: p}
}

type staticResolver struct {
	offsets map[Marker]map[split.TopicPartition]int64
	err     error
}

func (r staticResolver) ResolveOffsets(ctx context.Context, topics []string, marker Marker) (map[split.TopicPartition]int64, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.offsets[marker], nil
}

func TestPlan(t *testing.T) {
	start := map[split.TopicPartition]int64{tp("b", 0): 0, tp("a", 1): 5, tp("a", 0): 3, tp("c", 0): 1}
	end := map[split.TopicPartition]int64{tp("b", 0): 10, tp("a", 1): 5, tp("a", 0): 7}

	ranges, err := Plan(start, end, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []split.PartitionRange{
		{Topic: "a", Partition: 0, StartOffset: 3, EndOffset: 7},
		{Topic: "a", Partition: 1, StartOffset: 5, EndOffset: 5},
		{Topic: "b", Partition: 0, StartOffset: 0, EndOffset: 10},
	}, ranges)
}

func TestPlanRejectsInverted(t *testing.T) {
	_, err := Plan(
		map[split.TopicPartition]int64{tp("a", 0): 9},
		map[split.TopicPartition]int64{tp("a", 0): 3},
		PlanOptions{},
	)
	assert.True(t, errors.IsConfiguration(err))
}

func TestSubdivide(t *testing.T) {
	r := split.PartitionRange{Topic: "a", StartOffset: 10, EndOffset: 35}

	parts := Subdivide(r, 10)
	require.Len(t, parts, 3)
	assert.Equal(t, int64(10), parts[0].StartOffset)
	assert.Equal(t, int64(35), parts[2].EndOffset)

	var total int64
	for i, p := range parts {
		total += p.Len()
		if i > 0 {
			assert.Equal(t, parts[i-1].EndOffset, p.StartOffset)
		}
	}
	assert.Equal(t, r.Len(), total)

	assert.Equal(t, []split.PartitionRange{r}, Subdivide(r, 0))
	assert.Equal(t, []split.PartitionRange{r}, Subdivide(r, 25))

	empty := split.PartitionRange{Topic: "a", StartOffset: 5, EndOffset: 5}
	assert.Equal(t, []split.PartitionRange{empty}, Subdivide(empty, 10))
}

func TestResolve(t *testing.T) {
	resolver := staticResolver{offsets: map[Marker]map[split.TopicPartition]int64{
		Earliest: {tp("events", 0): 0, tp("events", 1): 5},
		Latest:   {tp("events", 0): 10, tp("events", 1): 5},
	}}

	ranges, err := Resolve(context.Background(), resolver, []string{"events"}, PlanOptions{MaxRecordsPerRange: 4})
	require.NoError(t, err)
	assert.Len(t, ranges, 4) // [0,4) [4,8) [8,10) [5,5)

	_, err = Resolve(context.Background(), resolver, nil, PlanOptions{})
	assert.Error(t, err)

	_, err = Resolve(context.Background(), staticResolver{err: stderrors.New("down")}, []string{"events"}, PlanOptions{})
	assert.EqualError(t, err, "down")
}

func TestMarkerString(t *testing.T) {
	assert.Equal(t, "earliest", Earliest.String())
	assert.Equal(t, "latest", Latest.String())
}
