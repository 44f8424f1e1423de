package writer

import (
	"context"
	"os"
	"sync"

	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/pool"
	"go.uber.org/zap"
)

// FileWriter 以JSON Lines追加写入本地文件
type FileWriter struct {
	path    string
	columns []string

	mu   sync.Mutex
	file *os.File
	rows int64
}

// NewFileWriter 创建文件写入器
func NewFileWriter(path string, columns []string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileWrite, "failed to open output file", err)
	}
	return &FileWriter{path: path, columns: columns, file: f}, nil
}

// Write 写入一批行
func (w *FileWriter) Write(ctx context.Context, batch [][]interface{}) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := BuildJSONLines(batch, w.columns)
	defer pool.PutBuffer(buf)
	buf.WriteByte('\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return errors.New(errors.ErrCodeFileWrite, "file writer closed")
	}
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return errors.Wrap(errors.ErrCodeFileWrite, "failed to write rows", err)
	}
	w.rows += int64(len(batch))

	logger.Debug("rows written to file",
		zap.String("path", w.path),
		zap.Int("rows", len(batch)),
	)
	return nil
}

// Close 同步并关闭文件
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil

	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(errors.ErrCodeFileWrite, "failed to sync output file", err)
	}
	logger.Info("output file closed", zap.String("path", w.path), zap.Int64("rows", w.rows))
	return f.Close()
}
