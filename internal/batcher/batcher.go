package batcher

import (
	"sync"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
)

// Batcher 批次管理器接口
type Batcher interface {
	Add(row []interface{}) (full bool)
	Flush() [][]interface{}
	Size() int
	Bytes() int
}

// MemoryBatcher 内存批次实现，按行数和字节数限制
type MemoryBatcher struct {
	cfg         config.BatchConfig
	rows        [][]interface{}
	currentSize int
	mu          sync.Mutex
}

// NewMemoryBatcher 创建内存批次管理器
func NewMemoryBatcher(cfg config.BatchConfig) *MemoryBatcher {
	return &MemoryBatcher{
		cfg:  cfg,
		rows: make([][]interface{}, 0, min(cfg.MaxBatchRows, 4096)),
	}
}

// Add 添加行，返回批次是否已满
func (b *MemoryBatcher) Add(row []interface{}) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rows = append(b.rows, row)
	b.currentSize += estimateRowSize(row)

	return len(b.rows) >= b.cfg.MaxBatchRows || b.currentSize >= b.cfg.MaxBatchSize
}

// Flush 取出当前批次并重置
func (b *MemoryBatcher) Flush() [][]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.rows) == 0 {
		return nil
	}

	batch := make([][]interface{}, len(b.rows))
	copy(batch, b.rows)

	for i := range b.rows {
		b.rows[i] = nil
	}
	b.rows = b.rows[:0]
	b.currentSize = 0

	return batch
}

// Size 返回当前行数
func (b *MemoryBatcher) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

// Bytes 返回当前估算字节数
func (b *MemoryBatcher) Bytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentSize
}

// estimateRowSize 估算行大小
func estimateRowSize(row []interface{}) int {
	size := 0
	for _, v := range row {
		switch val := v.(type) {
		case string:
			size += len(val)
		case []byte:
			size += len(val)
		default:
			size += 8
		}
	}
	return size
}
