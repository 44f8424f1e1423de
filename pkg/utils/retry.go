package utils

import (
	"context"
	"errors"
	"time"
)

// ErrStopped 等待过程中收到停止信号
var ErrStopped = errors.New("stopped while waiting")

// Backoff 指数退避，非并发安全
type Backoff struct {
	Min time.Duration
	Max time.Duration

	current time.Duration
}

// NewBackoff 创建指数退避
func NewBackoff(min, max time.Duration) *Backoff {
	if max < min {
		max = min
	}
	return &Backoff{Min: min, Max: max}
}

// Next 返回下一次等待时长并翻倍
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Min
	}
	d := b.current
	b.current *= 2
	if b.current > b.Max {
		b.current = b.Max
	}
	return d
}

// Reset 重置到最小值
func (b *Backoff) Reset() {
	b.current = 0
}

// Wait 等待下一次退避时长，ctx取消或stop关闭时提前返回
func (b *Backoff) Wait(ctx context.Context, stop <-chan struct{}) error {
	d := b.Next()
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return ErrStopped
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return ErrStopped
	case <-timer.C:
		return nil
	}
}

// RetryFunc 重试函数类型，attempt从0开始
type RetryFunc func(attempt int) error

// Retry 重试执行函数，最多执行maxRetries+1次
func Retry(ctx context.Context, maxRetries int, backoff *Backoff, fn RetryFunc) error {
	var err error

	for i := 0; i <= maxRetries; i++ {
		err = fn(i)
		if err == nil {
			return nil
		}

		// 最后一次重试失败，直接返回
		if i == maxRetries {
			return err
		}

		if werr := backoff.Wait(ctx, nil); werr != nil {
			return werr
		}
	}

	return err
}
