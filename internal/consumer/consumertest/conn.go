// Package consumertest 提供可编排拉取结果的测试连接
package consumertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kafka-range-reader/kafka-range-reader/internal/consumer"
)

// Fault 单次拉取注入的结果
type Fault int

const (
	// FaultNone 正常返回数据
	FaultNone Fault = iota
	// FaultNull 返回nil
	FaultNull
	// FaultEmpty 返回空切片
	FaultEmpty
)

// GenerateLog 生成offset从start开始的n条消息
func GenerateLog(topic string, partition int32, start int64, n int) []*consumer.Message {
	msgs := make([]*consumer.Message, 0, n)
	for i := 0; i < n; i++ {
		offset := start + int64(i)
		msgs = append(msgs, &consumer.Message{
			Topic:     topic,
			Partition: partition,
			Offset:    offset,
			Key:       []byte(fmt.Sprintf("key-%d", offset)),
			Value:     []byte(fmt.Sprintf(`{"id":%d}`, offset)),
			Timestamp: 1700000000000 + offset,
		})
	}
	return msgs
}

// Conn 内存分区连接，按Faults注入空拉取
type Conn struct {
	// Log 分区内容，offset递增
	Log []*consumer.Message
	// Source 非空时Seek按topic/partition取分区内容
	Source func(topic string, partition int32) []*consumer.Message
	// BatchSize 每次拉取返回的最大条数，<=0时为1
	BatchSize int
	// Faults 第i次拉取（从0开始）注入的结果
	Faults map[int]Fault
	// FaultAfter 之后的每次拉取都注入该结果，FaultNone表示不注入
	FaultAfter     Fault
	FaultAfterPull int
	// Earliest 最早保留offset，<0表示不支持查询
	Earliest int64

	SeekErr error
	PullErr error
	CloseErr error

	mu       sync.Mutex
	position int64
	pulls    int
	seeks    int
	closes   int
}

// NewConn 创建内存连接
func NewConn(log []*consumer.Message, batchSize int) *Conn {
	return &Conn{
		Log:       log,
		BatchSize: batchSize,
		Faults:    make(map[int]Fault),
		Earliest:  -1,
	}
}

// Seek 定位
func (c *Conn) Seek(ctx context.Context, topic string, partition int32, offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seeks++
	if c.SeekErr != nil {
		return c.SeekErr
	}
	if c.Source != nil {
		c.Log = c.Source(topic, partition)
	}
	c.position = offset
	return nil
}

// Pull 拉取
func (c *Conn) Pull(ctx context.Context, timeout time.Duration) ([]*consumer.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pull := c.pulls
	c.pulls++

	if c.PullErr != nil {
		return nil, c.PullErr
	}

	fault := c.Faults[pull]
	if fault == FaultNone && c.FaultAfter != FaultNone && pull >= c.FaultAfterPull {
		fault = c.FaultAfter
	}
	switch fault {
	case FaultNull:
		return nil, nil
	case FaultEmpty:
		return []*consumer.Message{}, nil
	}

	size := c.BatchSize
	if size <= 0 {
		size = 1
	}

	var batch []*consumer.Message
	for _, msg := range c.Log {
		if msg.Offset < c.position {
			continue
		}
		batch = append(batch, msg)
		if len(batch) == size {
			break
		}
	}
	if len(batch) > 0 {
		c.position = batch[len(batch)-1].Offset + 1
	}
	return batch, nil
}

// Close 关闭
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return c.CloseErr
}

// Pulls 返回拉取次数
func (c *Conn) Pulls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulls
}

// Seeks 返回定位次数
func (c *Conn) Seeks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seeks
}

// Closes 返回关闭次数
func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// EarliestConn 支持最早offset查询的内存连接
type EarliestConn struct {
	*Conn
}

// EarliestOffset 返回Earliest
func (c EarliestConn) EarliestOffset(ctx context.Context, topic string, partition int32) (int64, error) {
	return c.Conn.Earliest, nil
}

// Provider 每次Open按顺序返回Conns中的连接
type Provider struct {
	Conns   []consumer.Conn
	OpenErr error

	mu     sync.Mutex
	opened int
}

// NewProvider 创建测试Provider
func NewProvider(conns ...consumer.Conn) *Provider {
	return &Provider{Conns: conns}
}

// Open 返回下一个连接
func (p *Provider) Open(ctx context.Context) (consumer.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	if p.opened >= len(p.Conns) {
		return nil, fmt.Errorf("no more test connections (opened %d)", p.opened)
	}
	conn := p.Conns[p.opened]
	p.opened++
	return conn, nil
}

// Opened 返回Open次数
func (p *Provider) Opened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}
