package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/internal/consumer"
	"github.com/kafka-range-reader/kafka-range-reader/internal/metrics"
	"github.com/kafka-range-reader/kafka-range-reader/internal/schema"
	"github.com/kafka-range-reader/kafka-range-reader/internal/split"
	"github.com/kafka-range-reader/kafka-range-reader/internal/writer"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"go.uber.org/zap"
)

// Status 分片处理结果
type Status string

const (
	StatusOK        Status = "ok"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// RangeResult 单个分片的处理结果
type RangeResult struct {
	Range    split.PartitionRange
	Status   Status
	Records  int64 // 已写入的行数
	Skipped  int64 // 映射失败被跳过的记录数
	Attempts int
	Duration time.Duration
	Err      error
}

// Report 作业报告，Results与输入分片一一对应
type Report struct {
	Results  []RangeResult
	Duration time.Duration
}

// Failed 返回未成功的分片
func (r *Report) Failed() []RangeResult {
	var failed []RangeResult
	for _, res := range r.Results {
		if res.Status != StatusOK {
			failed = append(failed, res)
		}
	}
	return failed
}

// Records 返回写入总行数
func (r *Report) Records() int64 {
	var n int64
	for _, res := range r.Results {
		n += res.Records
	}
	return n
}

// Job 分片作业：固定数量的worker，每个分片一个读取器
type Job struct {
	provider  consumer.Provider
	readerCfg config.ReaderConfig
	jobCfg    config.JobConfig
	batchCfg  config.BatchConfig
	mapper    *schema.Mapper
	writer    writer.Writer
	log       *zap.Logger

	running atomic.Bool
	total   atomic.Int64
	done    atomic.Int64
	failed  atomic.Int64
}

// NewJob 创建作业
func NewJob(provider consumer.Provider, cfg *config.Config, mapper *schema.Mapper, w writer.Writer) *Job {
	return &Job{
		provider:  provider,
		readerCfg: cfg.Reader,
		jobCfg:    cfg.Job,
		batchCfg:  cfg.Batch,
		mapper:    mapper,
		writer:    w,
		log:       logger.Named("job"),
	}
}

// Run 处理全部分片，分片失败记录在报告中；只有ctx取消时返回错误
func (j *Job) Run(ctx context.Context, ranges []split.PartitionRange) (*Report, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, errors.New(errors.ErrCodeIllegalState, "job is already running")
	}
	defer j.running.Store(false)

	start := time.Now()
	report := &Report{Results: make([]RangeResult, len(ranges))}
	for i, rng := range ranges {
		report.Results[i] = RangeResult{Range: rng, Status: StatusCancelled}
	}

	j.total.Store(int64(len(ranges)))
	j.done.Store(0)
	j.failed.Store(0)
	metrics.JobRangesPending.Set(float64(len(ranges)))

	j.log.Info("job started",
		zap.Int("ranges", len(ranges)),
		zap.Int("workers", j.jobCfg.Workers),
	)

	j.runWorkers(ctx, ranges, report.Results)
	report.Duration = time.Since(start)

	for i := range report.Results {
		if report.Results[i].Status == StatusCancelled && report.Results[i].Err == nil {
			report.Results[i].Err = ctx.Err()
		}
	}
	metrics.JobRangesPending.Set(0)

	j.log.Info("job finished",
		zap.Int("ranges", len(ranges)),
		zap.Int("failed", len(report.Failed())),
		zap.Int64("records", report.Records()),
		zap.Duration("duration", report.Duration),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// Progress 返回已完成分片数、失败分片数和总数
func (j *Job) Progress() (done, failed, total int64) {
	return j.done.Load(), j.failed.Load(), j.total.Load()
}

// Running 作业是否在运行
func (j *Job) Running() bool {
	return j.running.Load()
}
