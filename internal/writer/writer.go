package writer

import (
	"context"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
)

// Writer 行写入器接口，需并发安全
type Writer interface {
	Write(ctx context.Context, batch [][]interface{}) error
	Close() error
}

// New 按sink.type创建写入器
func New(cfg *config.Config, columns []string) (Writer, error) {
	switch cfg.Sink.Type {
	case "doris":
		if len(cfg.Doris.FEHosts) == 0 {
			return nil, errors.New(errors.ErrCodeConfigValidate, "doris.fe_hosts is required for doris sink")
		}
		return NewStreamLoadWriter(cfg.Doris, columns), nil
	case "file":
		w, err := NewFileWriter(cfg.Sink.FilePath, columns)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, errors.Newf(errors.ErrCodeConfigValidate, "unknown sink type %q", cfg.Sink.Type)
	}
}
