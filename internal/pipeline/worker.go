package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/kafka-range-reader/kafka-range-reader/internal/batcher"
	"github.com/kafka-range-reader/kafka-range-reader/internal/consumer"
	"github.com/kafka-range-reader/kafka-range-reader/internal/metrics"
	"github.com/kafka-range-reader/kafka-range-reader/internal/reader"
	"github.com/kafka-range-reader/kafka-range-reader/internal/split"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"go.uber.org/zap"
)

type task struct {
	index int
	rng   split.PartitionRange
}

// runWorkers 启动worker并分发分片，ctx取消后停止分发
func (j *Job) runWorkers(ctx context.Context, ranges []split.PartitionRange, results []RangeResult) {
	workers := j.jobCfg.Workers
	if workers > len(ranges) {
		workers = len(ranges)
	}

	tasks := make(chan task)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			j.worker(ctx, id, tasks, results)
		}(i)
	}

dispatch:
	for i, rng := range ranges {
		select {
		case tasks <- task{index: i, rng: rng}:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()
}

// worker 依次处理分片，批次在worker内复用
func (j *Job) worker(ctx context.Context, id int, tasks <-chan task, results []RangeResult) {
	b := batcher.NewMemoryBatcher(j.batchCfg)
	log := j.log.With(zap.Int("worker_id", id))

	for t := range tasks {
		res := j.processRange(ctx, log, b, t.rng)
		results[t.index] = res

		j.done.Add(1)
		if res.Status != StatusOK {
			j.failed.Add(1)
		}
		metrics.JobRangesPending.Dec()
		metrics.JobRanges.WithLabelValues(string(res.Status)).Inc()
		metrics.JobRangeDuration.Observe(res.Duration.Seconds())
	}
}

// processRange 读取一个分片，失败且可重试时从已写入位置重新分发
func (j *Job) processRange(ctx context.Context, log *zap.Logger, b batcher.Batcher, rng split.PartitionRange) RangeResult {
	start := time.Now()
	res := RangeResult{Range: rng}
	remaining := rng

	for res.Attempts < j.jobCfg.RangeAttempts {
		res.Attempts++

		u := &rangeUnit{ctx: ctx, job: j, batcher: b, committed: remaining.StartOffset, last: remaining.StartOffset}
		_, err := reader.ReadRange(ctx, j.provider, j.readerCfg, remaining, u.add)
		if err == nil {
			err = u.flush(ctx)
		}
		res.Records += u.records
		res.Skipped += u.skipped

		if err == nil {
			res.Status = StatusOK
			res.Err = nil
			break
		}

		// 丢弃失败尝试中尚未写入的行
		b.Flush()
		res.Status = StatusFailed
		res.Err = err
		if ctx.Err() != nil {
			res.Status = StatusCancelled
			break
		}
		if !errors.IsRetryable(err) || res.Attempts >= j.jobCfg.RangeAttempts {
			break
		}

		remaining.StartOffset = u.committed
		log.Warn("range attempt failed, re-dispatching",
			zap.String("range", rng.String()),
			zap.Int64("resume_offset", remaining.StartOffset),
			zap.Int("attempt", res.Attempts),
			zap.Error(err),
		)
	}

	res.Duration = time.Since(start)
	if res.Status == StatusOK {
		log.Info("range completed",
			zap.String("range", rng.String()),
			zap.Int64("records", res.Records),
			zap.Int64("skipped", res.Skipped),
			zap.Int("attempts", res.Attempts),
			zap.Duration("duration", res.Duration),
		)
	} else {
		log.Error("range failed",
			zap.String("range", rng.String()),
			zap.Int("attempts", res.Attempts),
			zap.Error(res.Err),
		)
	}
	return res
}

// rangeUnit 单次尝试的写入进度
//
// committed之前的记录已经写入，重新分发时从committed开始读。
type rangeUnit struct {
	ctx     context.Context
	job     *Job
	batcher batcher.Batcher

	committed int64
	last      int64
	pending   int64
	pendingSk int64
	records   int64
	skipped   int64
}

// add 映射记录并加入批次，批次满时写入
func (u *rangeUnit) add(msg *consumer.Message) error {
	u.last = msg.Offset + 1

	row, err := u.job.mapper.MapMessage(msg)
	if err != nil {
		u.job.log.Warn("failed to map record, skipping",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		metrics.ReaderRecordsDiscarded.WithLabelValues(msg.Topic, "unmappable").Inc()
		u.pendingSk++
		return nil
	}

	u.pending++
	if u.batcher.Add(row) {
		return u.flush(u.ctx)
	}
	return nil
}

// flush 写入当前批次并推进committed
func (u *rangeUnit) flush(ctx context.Context) error {
	batch := u.batcher.Flush()
	if len(batch) > 0 {
		start := time.Now()
		if err := u.job.writer.Write(ctx, batch); err != nil {
			metrics.BatchFlushTotal.WithLabelValues("failed").Inc()
			return err
		}
		metrics.BatchFlushTotal.WithLabelValues("success").Inc()
		metrics.BatchSizeRows.Observe(float64(len(batch)))
		metrics.BatchFlushDuration.Observe(time.Since(start).Seconds())
	}

	u.committed = u.last
	u.records += u.pending
	u.skipped += u.pendingSk
	u.pending, u.pendingSk = 0, 0
	return nil
}
