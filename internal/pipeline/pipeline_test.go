package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/internal/consumer"
	"github.com/kafka-range-reader/kafka-range-reader/internal/consumer/consumertest"
	"github.com/kafka-range-reader/kafka-range-reader/internal/schema"
	"github.com/kafka-range-reader/kafka-range-reader/internal/split"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	goleak.VerifyTestMain(m)
}

// memWriter 记录写入的行，按顺序返回errs中的错误
type memWriter struct {
	mu     sync.Mutex
	rows   [][]interface{}
	writes int
	errs   []error
}

func (w *memWriter) Write(ctx context.Context, batch [][]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	call := w.writes
	w.writes++
	if call < len(w.errs) && w.errs[call] != nil {
		return w.errs[call]
	}
	w.rows = append(w.rows, batch...)
	return nil
}

func (w *memWriter) Close() error { return nil }

// offsets 返回写入行的"topic-partition-offset"，已排序
func (w *memWriter) offsets() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.rows))
	for _, row := range w.rows {
		out = append(out, fmt.Sprintf("%s-%d-%d", row[0], row[1], row[2]))
	}
	sort.Strings(out)
	return out
}

func expectedOffsets(topic string, partition int32, start, end int64) []string {
	var out []string
	for o := start; o < end; o++ {
		out = append(out, fmt.Sprintf("%s-%d-%d", topic, partition, o))
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Reader = config.ReaderConfig{RetryLimit: 2, PollTimeoutMs: 10}
	cfg.Job.Workers = 2
	cfg.Job.RangeAttempts = 2
	cfg.Batch = config.BatchConfig{MaxBatchRows: 100, MaxBatchSize: 1 << 20}
	return cfg
}

// sourceProvider 每次Open创建新的内存连接，内容按topic/partition生成
func sourceProvider(n int, batchSize int) consumer.Provider {
	return consumer.ProviderFunc(func(ctx context.Context) (consumer.Conn, error) {
		conn := consumertest.NewConn(nil, batchSize)
		conn.Source = func(topic string, partition int32) []*consumer.Message {
			return consumertest.GenerateLog(topic, partition, 0, n)
		}
		return conn, nil
	})
}

func mustRange(t *testing.T, topic string, partition int32, start, end int64) split.PartitionRange {
	t.Helper()
	r, err := split.New(topic, partition, start, end)
	require.NoError(t, err)
	return r
}

func TestRunReadsAllRanges(t *testing.T) {
	w := &memWriter{}
	job := NewJob(sourceProvider(20, 4), testConfig(), schema.NewRawMapper(), w)

	ranges := []split.PartitionRange{
		mustRange(t, "a", 0, 0, 10),
		mustRange(t, "a", 1, 5, 20),
		mustRange(t, "b", 0, 3, 3),
	}
	report, err := job.Run(context.Background(), ranges)
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Empty(t, report.Failed())
	assert.Equal(t, int64(25), report.Records())

	assert.Equal(t, int64(10), report.Results[0].Records)
	assert.Equal(t, int64(15), report.Results[1].Records)
	assert.Equal(t, int64(0), report.Results[2].Records)
	for _, res := range report.Results {
		assert.Equal(t, StatusOK, res.Status)
		assert.Equal(t, 1, res.Attempts)
	}

	var want []string
	want = append(want, expectedOffsets("a", 0, 0, 10)...)
	want = append(want, expectedOffsets("a", 1, 5, 20)...)
	sort.Strings(want)
	assert.Equal(t, want, w.offsets())

	done, failed, total := job.Progress()
	assert.Equal(t, int64(3), done)
	assert.Equal(t, int64(0), failed)
	assert.Equal(t, int64(3), total)
	assert.False(t, job.Running())
}

func TestRunRedispatchesExhaustedRange(t *testing.T) {
	stalled := consumertest.NewConn(consumertest.GenerateLog("a", 0, 0, 10), 1)
	stalled.FaultAfter = consumertest.FaultEmpty
	stalled.FaultAfterPull = 2
	healthy := consumertest.NewConn(consumertest.GenerateLog("a", 0, 0, 10), 3)
	provider := consumertest.NewProvider(stalled, healthy)

	w := &memWriter{}
	job := NewJob(provider, testConfig(), schema.NewRawMapper(), w)

	report, err := job.Run(context.Background(), []split.PartitionRange{mustRange(t, "a", 0, 0, 10)})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int64(10), res.Records)
	assert.NoError(t, res.Err)

	// 第一次尝试的部分行未写入，不会重复
	assert.Equal(t, expectedOffsets("a", 0, 0, 10), w.offsets())
	assert.Equal(t, 1, stalled.Closes())
	assert.Equal(t, 1, healthy.Closes())
}

func TestRunResumesFromCommittedOffset(t *testing.T) {
	stalled := consumertest.NewConn(consumertest.GenerateLog("a", 0, 0, 10), 1)
	stalled.FaultAfter = consumertest.FaultNull
	stalled.FaultAfterPull = 5
	healthy := consumertest.NewConn(consumertest.GenerateLog("a", 0, 0, 10), 2)
	provider := consumertest.NewProvider(stalled, healthy)

	cfg := testConfig()
	cfg.Batch.MaxBatchRows = 3
	w := &memWriter{}
	job := NewJob(provider, cfg, schema.NewRawMapper(), w)

	report, err := job.Run(context.Background(), []split.PartitionRange{mustRange(t, "a", 0, 0, 10)})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int64(10), res.Records)
	assert.Equal(t, expectedOffsets("a", 0, 0, 10), w.offsets())
}

func TestRunGivesUpAfterAttempts(t *testing.T) {
	var conns []consumer.Conn
	for i := 0; i < 2; i++ {
		c := consumertest.NewConn(nil, 1)
		c.FaultAfter = consumertest.FaultEmpty
		conns = append(conns, c)
	}
	w := &memWriter{}
	job := NewJob(consumertest.NewProvider(conns...), testConfig(), schema.NewRawMapper(), w)

	report, err := job.Run(context.Background(), []split.PartitionRange{mustRange(t, "a", 0, 0, 5)})
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, StatusFailed, failed[0].Status)
	assert.Equal(t, 2, failed[0].Attempts)
	assert.True(t, errors.IsExhaustedRetries(failed[0].Err))
	assert.Empty(t, w.offsets())

	_, failedCount, _ := job.Progress()
	assert.Equal(t, int64(1), failedCount)
}

func TestRunDoesNotRetryConfigurationErrors(t *testing.T) {
	conn := consumertest.NewConn(nil, 1)
	conn.SeekErr = stderrors.New("unknown partition")
	provider := consumertest.NewProvider(conn)

	job := NewJob(provider, testConfig(), schema.NewRawMapper(), &memWriter{})
	report, err := job.Run(context.Background(), []split.PartitionRange{mustRange(t, "a", 9, 0, 5)})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, errors.IsConfiguration(res.Err))
	assert.Equal(t, 1, provider.Opened())
}

func TestRunRetriesWriterFailure(t *testing.T) {
	w := &memWriter{errs: []error{errors.New(errors.ErrCodeDorisStreamLoad, "be unavailable")}}
	job := NewJob(sourceProvider(10, 5), testConfig(), schema.NewRawMapper(), w)

	report, err := job.Run(context.Background(), []split.PartitionRange{mustRange(t, "a", 0, 0, 10)})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, expectedOffsets("a", 0, 0, 10), w.offsets())
}

func TestRunSkipsUnmappableRecords(t *testing.T) {
	log := consumertest.GenerateLog("a", 0, 0, 4)
	log[2].Value = []byte("not json")
	conn := consumertest.NewConn(log, 10)

	mapper := schema.NewJSONMapper(schema.NewSchema([]schema.Column{
		{Name: schema.ColumnOffset, Type: "BIGINT"},
		{Name: "id", Type: "BIGINT"},
	}))
	w := &memWriter{}
	job := NewJob(consumertest.NewProvider(conn), testConfig(), mapper, w)

	report, err := job.Run(context.Background(), []split.PartitionRange{mustRange(t, "a", 0, 0, 4)})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(3), res.Records)
	assert.Equal(t, int64(1), res.Skipped)
	require.Len(t, w.rows, 3)
	assert.Equal(t, []interface{}{int64(3), int64(3)}, w.rows[2])
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewJob(sourceProvider(10, 5), testConfig(), schema.NewRawMapper(), &memWriter{})
	report, err := job.Run(ctx, []split.PartitionRange{
		mustRange(t, "a", 0, 0, 10),
		mustRange(t, "a", 1, 0, 10),
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Failed(), 2)
	for _, res := range report.Results {
		assert.Equal(t, StatusCancelled, res.Status)
		assert.Error(t, res.Err)
	}
}
