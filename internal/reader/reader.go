package reader

import (
	"context"
	"sync"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/internal/consumer"
	"github.com/kafka-range-reader/kafka-range-reader/internal/metrics"
	"github.com/kafka-range-reader/kafka-range-reader/internal/split"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/utils"
	"go.uber.org/zap"
)

// RecordReader 拉取式记录迭代接口
type RecordReader interface {
	Initialize(ctx context.Context, r split.PartitionRange) error
	Next(ctx context.Context) (bool, error)
	CurrentKey() ([]byte, error)
	CurrentValue() ([]byte, error)
	Close() error
}

var _ RecordReader = (*BoundedReader)(nil)

// BoundedReader 有界分区读取器
//
// 按offset顺序恰好产出[StartOffset, EndOffset)内的每条记录一次。
// 空拉取视为暂时无数据，连续空拉取超过RetryLimit次后失败，
// 是否读完只由nextOffset == EndOffset决定。
// 单个goroutine驱动；Close可以从其他goroutine调用。
type BoundedReader struct {
	provider consumer.Provider
	cfg      config.ReaderConfig
	log      *zap.Logger

	mu    sync.Mutex
	state State
	conn  consumer.Conn
	err   error

	rng        split.PartitionRange
	nextOffset int64
	buffer     []*consumer.Message
	current    *consumer.Message
	emptyPolls int
	backoff    *utils.Backoff

	closeCtx    context.Context
	closeCancel context.CancelFunc
}

// New 创建读取器，每个分片一个实例
func New(provider consumer.Provider, cfg config.ReaderConfig) *BoundedReader {
	closeCtx, closeCancel := context.WithCancel(context.Background())
	return &BoundedReader{
		provider:    provider,
		cfg:         cfg,
		log:         logger.Named("reader"),
		state:       StateUninitialized,
		backoff:     utils.NewBackoff(cfg.BackoffMin(), cfg.BackoffMax()),
		closeCtx:    closeCtx,
		closeCancel: closeCancel,
	}
}

// Initialize 绑定分片，打开连接并定位到StartOffset
func (r *BoundedReader) Initialize(ctx context.Context, rng split.PartitionRange) error {
	r.mu.Lock()
	if r.state != StateUninitialized {
		st := r.state
		r.mu.Unlock()
		return errors.Newf(errors.ErrCodeIllegalState, "initialize called in state %s", st)
	}
	r.mu.Unlock()

	if err := rng.Validate(); err != nil {
		return r.fail(err)
	}

	log := r.logger().With(
		zap.String("topic", rng.Topic),
		zap.Int32("partition", rng.Partition),
		zap.Int64("start_offset", rng.StartOffset),
		zap.Int64("end_offset", rng.EndOffset),
	)
	r.mu.Lock()
	r.rng = rng
	r.nextOffset = rng.StartOffset
	r.log = log
	r.mu.Unlock()

	conn, err := r.provider.Open(ctx)
	if err != nil {
		return r.fail(errors.Wrap(errors.ErrCodeConfiguration, "failed to open connection", err))
	}

	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		r.closeConn(conn)
		return errors.New(errors.ErrCodeIllegalState, "reader closed during initialize")
	}
	r.conn = conn
	r.mu.Unlock()
	metrics.ReaderActive.Inc()

	if err := conn.Seek(ctx, rng.Topic, rng.Partition, rng.StartOffset); err != nil {
		return r.fail(errors.Wrap(errors.ErrCodeConfiguration, "failed to seek to start offset", err))
	}

	if r.cfg.ClampToEarliest && !rng.IsEmpty() {
		if err := r.clampToEarliest(ctx, conn); err != nil {
			return r.fail(err)
		}
	}

	r.setState(StateReady)
	r.log.Debug("reader initialized")
	return nil
}

// clampToEarliest 起始offset已被清理时从最早保留offset开始读
func (r *BoundedReader) clampToEarliest(ctx context.Context, conn consumer.Conn) error {
	eo, ok := conn.(consumer.EarliestOffsetter)
	if !ok {
		return nil
	}

	earliest, err := eo.EarliestOffset(ctx, r.rng.Topic, r.rng.Partition)
	if err != nil {
		// 查询失败不影响读取，由后续拉取暴露真实问题
		r.log.Warn("failed to look up earliest offset", zap.Error(err))
		return nil
	}
	if earliest <= r.rng.StartOffset {
		return nil
	}

	if earliest >= r.rng.EndOffset {
		r.log.Warn("range fully purged from partition, nothing to read",
			zap.Int64("earliest_offset", earliest),
		)
		r.nextOffset = r.rng.EndOffset
		return nil
	}

	r.log.Warn("start offset purged, reading from earliest retained offset",
		zap.Int64("earliest_offset", earliest),
	)
	r.nextOffset = earliest
	if err := conn.Seek(ctx, r.rng.Topic, r.rng.Partition, earliest); err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, "failed to seek to earliest offset", err)
	}
	return nil
}

// Next 产出下一条记录
//
// 返回false且err为nil表示分片已读完；重试耗尽返回ExhaustedRetries错误。
func (r *BoundedReader) Next(ctx context.Context) (bool, error) {
	switch st := r.State(); st {
	case StateUninitialized:
		return false, errors.New(errors.ErrCodeIllegalState, "next called before initialize")
	case StateClosed:
		return false, errors.New(errors.ErrCodeIllegalState, "next called on closed reader")
	case StateFailed:
		return false, r.failure()
	case StateExhausted:
		return false, nil
	}

	for {
		if r.nextOffset >= r.rng.EndOffset {
			r.exhaust()
			return false, nil
		}

		if msg := r.popBuffered(); msg != nil {
			if msg.Offset > r.nextOffset {
				r.log.Debug("offset gap in partition",
					zap.Int64("expected_offset", r.nextOffset),
					zap.Int64("offset", msg.Offset),
				)
			}
			r.current = msg
			r.nextOffset = msg.Offset + 1
			r.setState(StateAdvancing)

			metrics.ReaderRecordsRead.WithLabelValues(r.rng.Topic).Inc()
			metrics.ReaderBytesRead.WithLabelValues(r.rng.Topic).Add(float64(len(msg.Value)))
			return true, nil
		}

		if err := r.pullOnce(ctx); err != nil {
			return false, err
		}
	}
}

// pullOnce 拉取一批并更新重试计数，未到上限时等待退避
func (r *BoundedReader) pullOnce(ctx context.Context) error {
	conn, err := r.activeConn()
	if err != nil {
		return err
	}

	pullCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.closeCtx, cancel)
	defer stop()

	batch, err := conn.Pull(pullCtx, r.cfg.PollTimeout())
	if r.closeCtx.Err() != nil {
		return errors.New(errors.ErrCodeIllegalState, "reader closed while pulling")
	}
	if err != nil {
		metrics.ReaderPulls.WithLabelValues(r.rng.Topic, "error").Inc()
		if ctx.Err() != nil {
			return r.fail(ctx.Err())
		}
		return r.fail(errors.Wrap(errors.ErrCodeKafkaConsume, "pull failed", err))
	}

	if r.accept(batch) > 0 {
		metrics.ReaderPulls.WithLabelValues(r.rng.Topic, "data").Inc()
		r.emptyPolls = 0
		r.backoff.Reset()
		return nil
	}

	metrics.ReaderPulls.WithLabelValues(r.rng.Topic, "empty").Inc()
	r.emptyPolls++
	if r.emptyPolls > r.cfg.RetryLimit {
		metrics.ReaderRetriesExhausted.WithLabelValues(r.rng.Topic).Inc()
		r.log.Error("retries exhausted before reaching end offset",
			zap.Int64("stalled_offset", r.nextOffset),
			zap.Int("empty_polls", r.emptyPolls),
		)
		return r.fail(errors.Newf(errors.ErrCodeExhaustedRetries,
			"no data for %s-%d at offset %d after %d empty polls (end offset %d)",
			r.rng.Topic, r.rng.Partition, r.nextOffset, r.emptyPolls, r.rng.EndOffset))
	}

	r.setState(StateRetrying)
	r.log.Debug("empty poll, retrying",
		zap.Int64("offset", r.nextOffset),
		zap.Int("empty_polls", r.emptyPolls),
		zap.Int("retry_limit", r.cfg.RetryLimit),
	)

	if err := r.backoff.Wait(ctx, r.closeCtx.Done()); err != nil {
		if r.closeCtx.Err() != nil {
			return errors.New(errors.ErrCodeIllegalState, "reader closed while retrying")
		}
		return r.fail(err)
	}
	return nil
}

// accept 缓存批次中落在[nextOffset, EndOffset)内的记录，返回缓存条数
func (r *BoundedReader) accept(batch []*consumer.Message) int {
	threshold := r.nextOffset
	accepted := 0

	for _, msg := range batch {
		if msg == nil {
			continue
		}
		if msg.Offset < threshold {
			metrics.ReaderRecordsDiscarded.WithLabelValues(r.rng.Topic, "duplicate").Inc()
			continue
		}
		if msg.Offset >= r.rng.EndOffset {
			// 超出分片的部分直接丢弃，属于其他分片
			metrics.ReaderRecordsDiscarded.WithLabelValues(r.rng.Topic, "beyond_end").Inc()
			continue
		}
		r.buffer = append(r.buffer, msg)
		threshold = msg.Offset + 1
		accepted++
	}
	return accepted
}

func (r *BoundedReader) popBuffered() *consumer.Message {
	if len(r.buffer) == 0 {
		return nil
	}
	msg := r.buffer[0]
	r.buffer[0] = nil
	r.buffer = r.buffer[1:]
	return msg
}

// Current 返回最近一次Next产出的记录
func (r *BoundedReader) Current() (*consumer.Message, error) {
	if st := r.State(); st != StateAdvancing || r.current == nil {
		return nil, errors.Newf(errors.ErrCodeIllegalState, "no current record in state %s", st)
	}
	return r.current, nil
}

// CurrentKey 返回当前记录的key
func (r *BoundedReader) CurrentKey() ([]byte, error) {
	msg, err := r.Current()
	if err != nil {
		return nil, err
	}
	return msg.Key, nil
}

// CurrentValue 返回当前记录的value
func (r *BoundedReader) CurrentValue() ([]byte, error) {
	msg, err := r.Current()
	if err != nil {
		return nil, err
	}
	return msg.Value, nil
}

// Close 释放连接，可重复调用，可在重试等待中从其他goroutine调用
func (r *BoundedReader) Close() error {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return nil
	}
	prev := r.state
	r.state = StateClosed
	conn := r.conn
	r.conn = nil
	log := r.log
	r.mu.Unlock()

	r.closeCancel()

	if conn != nil {
		r.closeConn(conn)
		metrics.ReaderActive.Dec()
	}

	log.Debug("reader closed", zap.String("previous_state", prev.String()))
	return nil
}

// closeConn 关闭连接，失败只记录日志
func (r *BoundedReader) closeConn(conn consumer.Conn) {
	if err := conn.Close(); err != nil {
		r.logger().Warn("failed to close connection", zap.Error(err))
	}
}

func (r *BoundedReader) logger() *zap.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log
}

// State 返回当前状态
func (r *BoundedReader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Range 返回绑定的分片
func (r *BoundedReader) Range() split.PartitionRange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng
}

// Position 返回下一条待读offset
func (r *BoundedReader) Position() int64 {
	return r.nextOffset
}

// Progress 返回已读比例，空分片为1
func (r *BoundedReader) Progress() float64 {
	if r.rng.Len() == 0 {
		return 1
	}
	return float64(r.nextOffset-r.rng.StartOffset) / float64(r.rng.Len())
}

// Err 返回导致失败的错误
func (r *BoundedReader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *BoundedReader) activeConn() (consumer.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed || r.conn == nil {
		return nil, errors.New(errors.ErrCodeIllegalState, "reader closed")
	}
	return r.conn, nil
}

func (r *BoundedReader) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	r.state = s
}

func (r *BoundedReader) exhaust() {
	r.current = nil
	r.setState(StateExhausted)
	r.log.Debug("range exhausted")
}

// fail 进入Failed状态并记录错误
func (r *BoundedReader) fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
	if r.state != StateClosed {
		r.state = StateFailed
	}
	if r.err == nil {
		r.err = err
	}
	return err
}

func (r *BoundedReader) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
