package config

import (
	"time"

	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
)

// Config 全局配置
type Config struct {
	Kafka   KafkaConfig   `yaml:"kafka"`
	Reader  ReaderConfig  `yaml:"reader"`
	Job     JobConfig     `yaml:"job"`
	Sink    SinkConfig    `yaml:"sink"`
	Doris   DorisConfig   `yaml:"doris"`
	Schema  SchemaConfig  `yaml:"schema"`
	Batch   BatchConfig   `yaml:"batch"`
	Log     logger.Config `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Pprof   PprofConfig   `yaml:"pprof"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	Topics         []string `yaml:"topics"`
	ClientID       string   `yaml:"client_id"`
	MaxFetchBytes  int      `yaml:"max_fetch_bytes"`
	FetchMaxWaitMs int      `yaml:"fetch_max_wait_ms"`
	DialTimeout    int      `yaml:"dial_timeout"`    // 秒
	RequestTimeout int      `yaml:"request_timeout"` // 秒，offset查询超时
}

// ReaderConfig 分区读取器配置
type ReaderConfig struct {
	RetryLimit      int  `yaml:"retry_limit"` // 连续空拉取后允许的重试次数
	PollTimeoutMs   int  `yaml:"poll_timeout_ms"`
	BackoffMinMs    int  `yaml:"backoff_min_ms"`
	BackoffMaxMs    int  `yaml:"backoff_max_ms"`
	ClampToEarliest bool `yaml:"clamp_to_earliest"` // 起始offset已被清理时从最早offset开始
}

// PollTimeout 单次拉取超时
func (c ReaderConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMs) * time.Millisecond
}

// BackoffMin 空拉取后的最小等待
func (c ReaderConfig) BackoffMin() time.Duration {
	return time.Duration(c.BackoffMinMs) * time.Millisecond
}

// BackoffMax 空拉取后的最大等待
func (c ReaderConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// JobConfig 作业配置
type JobConfig struct {
	Workers            int    `yaml:"workers"`               // 并发读取分片数
	RangeAttempts      int    `yaml:"range_attempts"`        // 单个分片最多尝试次数
	MaxRecordsPerRange int64  `yaml:"max_records_per_range"` // 0表示每个分区一个分片
	ManifestPath       string `yaml:"manifest_path"`
}

// SinkConfig 输出配置
type SinkConfig struct {
	Type     string `yaml:"type"` // doris, file
	FilePath string `yaml:"file_path"`
}

// DorisConfig Doris配置
type DorisConfig struct {
	FEHosts    []string `yaml:"fe_hosts"`
	QueryPort  int      `yaml:"query_port"`
	Database   string   `yaml:"database"`
	Table      string   `yaml:"table"`
	User       string   `yaml:"user"`
	Password   string   `yaml:"password"`
	Timeout    int      `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
}

// BatchConfig 批次配置
type BatchConfig struct {
	MaxBatchRows int `yaml:"max_batch_rows"`
	MaxBatchSize int `yaml:"max_batch_size"`
}

// SchemaConfig Schema配置
type SchemaConfig struct {
	Mode   string             `yaml:"mode"` // raw, auto, manual
	Manual ManualSchemaConfig `yaml:"manual"`
}

// ManualSchemaConfig 手动Schema配置
type ManualSchemaConfig struct {
	Columns []ColumnConfig `yaml:"columns"`
}

// ColumnConfig 列配置
type ColumnConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// PprofConfig pprof配置
type PprofConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			ClientID:       "kafka-range-reader",
			MaxFetchBytes:  1048576, // 1MB
			FetchMaxWaitMs: 500,
			DialTimeout:    10,
			RequestTimeout: 30,
		},
		Reader: ReaderConfig{
			RetryLimit:      5,
			PollTimeoutMs:   1000,
			BackoffMinMs:    50,
			BackoffMaxMs:    1000,
			ClampToEarliest: true,
		},
		Job: JobConfig{
			Workers:       4,
			RangeAttempts: 2,
		},
		Sink: SinkConfig{
			Type:     "file",
			FilePath: "records.jsonl",
		},
		Doris: DorisConfig{
			FEHosts:    []string{"127.0.0.1:8030"},
			QueryPort:  9030,
			User:       "root",
			Timeout:    600,
			MaxRetries: 3,
		},
		Schema: SchemaConfig{
			Mode: "raw",
		},
		Batch: BatchConfig{
			MaxBatchRows: 10000,
			MaxBatchSize: 10485760, // 10MB
		},
		Log: logger.Config{
			Level:          "info",
			Output:         "stdout",
			Format:         "json",
			EnableSampling: true,
			MaxSize:        100,
			MaxAge:         7,
			MaxBackups:     10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Pprof: PprofConfig{
			Enabled: false,
			Port:    6060,
		},
	}
}
