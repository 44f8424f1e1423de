package config

import (
	"os"
	"strings"

	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load 从文件加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to read config file", err)
	}
	return Parse(data)
}

// Parse 解析YAML配置，未配置的字段保留默认值
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to parse config file", err)
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv 从环境变量覆盖部署相关及敏感信息
func applyEnv(cfg *Config) {
	if brokers := os.Getenv("RANGE_READER_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if password := os.Getenv("DORIS_PASSWORD"); password != "" {
		cfg.Doris.Password = password
	}
}
