package config

import (
	"fmt"
	"math"

	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
)

// Validate 验证配置
func Validate(cfg *Config) error {
	// Kafka
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New(errors.ErrCodeConfigValidate, "kafka.brokers is required")
	}
	if len(cfg.Kafka.Topics) == 0 && cfg.Job.ManifestPath == "" {
		return errors.New(errors.ErrCodeConfigValidate, "kafka.topics is required unless job.manifest_path is set")
	}
	if cfg.Kafka.MaxFetchBytes <= 0 || int64(cfg.Kafka.MaxFetchBytes) > math.MaxInt32 {
		return errors.New(errors.ErrCodeConfigValidate, "kafka.max_fetch_bytes must be between 1 and 2147483647")
	}

	// Reader
	if cfg.Reader.RetryLimit < 0 {
		return errors.New(errors.ErrCodeConfigValidate, "reader.retry_limit must not be negative")
	}
	if cfg.Reader.PollTimeoutMs <= 0 {
		return errors.New(errors.ErrCodeConfigValidate, "reader.poll_timeout_ms must be positive")
	}
	if cfg.Reader.BackoffMinMs < 0 || cfg.Reader.BackoffMaxMs < cfg.Reader.BackoffMinMs {
		return errors.New(errors.ErrCodeConfigValidate, "reader.backoff_max_ms must be >= reader.backoff_min_ms >= 0")
	}

	// Job
	if cfg.Job.Workers <= 0 {
		return errors.New(errors.ErrCodeConfigValidate, "job.workers must be positive")
	}
	if cfg.Job.RangeAttempts <= 0 {
		return errors.New(errors.ErrCodeConfigValidate, "job.range_attempts must be positive")
	}
	if cfg.Job.MaxRecordsPerRange < 0 {
		return errors.New(errors.ErrCodeConfigValidate, "job.max_records_per_range must not be negative")
	}

	// Sink
	switch cfg.Sink.Type {
	case "file":
		if cfg.Sink.FilePath == "" {
			return errors.New(errors.ErrCodeConfigValidate, "sink.file_path is required when sink.type is 'file'")
		}
	case "doris":
		if err := validateDoris(cfg); err != nil {
			return err
		}
	default:
		return errors.New(errors.ErrCodeConfigValidate, "sink.type must be 'doris' or 'file'")
	}

	// Schema
	switch cfg.Schema.Mode {
	case "raw":
	case "auto":
		if cfg.Sink.Type != "doris" {
			return errors.New(errors.ErrCodeConfigValidate, "schema.mode 'auto' requires sink.type 'doris'")
		}
	case "manual":
		if len(cfg.Schema.Manual.Columns) == 0 {
			return errors.New(errors.ErrCodeConfigValidate, "schema.manual.columns is required when mode is 'manual'")
		}
	default:
		return errors.New(errors.ErrCodeConfigValidate, "schema.mode must be 'raw', 'auto' or 'manual'")
	}

	// 批次
	if cfg.Batch.MaxBatchRows <= 0 {
		return errors.New(errors.ErrCodeConfigValidate, "batch.max_batch_rows must be positive")
	}
	if cfg.Batch.MaxBatchSize <= 0 {
		return errors.New(errors.ErrCodeConfigValidate, "batch.max_batch_size must be positive")
	}

	// 监控与pprof
	if cfg.Metrics.Enabled && cfg.Metrics.Port <= 0 {
		return errors.New(errors.ErrCodeConfigValidate, "metrics.port must be positive when enabled")
	}
	if cfg.Pprof.Enabled && cfg.Pprof.Port <= 0 {
		return errors.New(errors.ErrCodeConfigValidate, "pprof.port must be positive when enabled")
	}
	if cfg.Metrics.Enabled && cfg.Pprof.Enabled && cfg.Metrics.Port == cfg.Pprof.Port {
		return errors.New(errors.ErrCodeConfigValidate, "metrics.port and pprof.port cannot be the same")
	}

	return nil
}

func validateDoris(cfg *Config) error {
	if len(cfg.Doris.FEHosts) == 0 {
		return errors.New(errors.ErrCodeConfigValidate, "doris.fe_hosts is required")
	}
	if cfg.Doris.Database == "" {
		return errors.New(errors.ErrCodeConfigValidate, "doris.database is required")
	}
	if cfg.Doris.Table == "" {
		return errors.New(errors.ErrCodeConfigValidate, "doris.table is required")
	}
	if cfg.Doris.User == "" {
		return errors.New(errors.ErrCodeConfigValidate, "doris.user is required")
	}
	if cfg.Doris.QueryPort <= 0 {
		cfg.Doris.QueryPort = 9030 // 默认值
	}
	if cfg.Doris.MaxRetries < 0 {
		return errors.New(errors.ErrCodeConfigValidate, "doris.max_retries must not be negative")
	}
	return nil
}

// String 返回配置的字符串表示（隐藏敏感信息）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Kafka: %v %v, Reader: retry_limit=%d, Job: workers=%d, Sink: %s, Schema: %s}",
		c.Kafka.Brokers,
		c.Kafka.Topics,
		c.Reader.RetryLimit,
		c.Job.Workers,
		c.Sink.Type,
		c.Schema.Mode,
	)
}
