package split

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
)

// ManifestVersion 当前清单格式版本
const ManifestVersion = 1

// Manifest 分片清单，持久化到作业配置中，每个分片对应一个工作单元
type Manifest struct {
	Version   int              `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	Ranges    []PartitionRange `json:"ranges"`
}

// NewManifest 创建分片清单，按topic/partition/start排序
func NewManifest(ranges []PartitionRange) *Manifest {
	sorted := make([]PartitionRange, len(ranges))
	copy(sorted, ranges)
	Sort(sorted)

	return &Manifest{
		Version:   ManifestVersion,
		CreatedAt: time.Now().UTC(),
		Ranges:    sorted,
	}
}

// Sort 按topic、partition、起始offset排序
func Sort(ranges []PartitionRange) {
	sort.Slice(ranges, func(i, j int) bool {
		a, b := ranges[i], ranges[j]
		if a.Topic != b.Topic {
			return a.Topic < b.Topic
		}
		if a.Partition != b.Partition {
			return a.Partition < b.Partition
		}
		if a.StartOffset != b.StartOffset {
			return a.StartOffset < b.StartOffset
		}
		return a.EndOffset < b.EndOffset
	})
}

// Validate 校验清单中每个分片
//
// 同一分区可以有多个分片，但不能重复，非空分片之间不能重叠。
func (m *Manifest) Validate() error {
	if m.Version != ManifestVersion {
		return errors.Newf(errors.ErrCodeManifestDecode, "unsupported manifest version %d", m.Version)
	}

	sorted := make([]PartitionRange, len(m.Ranges))
	copy(sorted, m.Ranges)
	Sort(sorted)

	seen := make(map[PartitionRange]struct{}, len(sorted))
	last := make(map[TopicPartition]PartitionRange, len(sorted))
	for _, r := range sorted {
		if err := r.Validate(); err != nil {
			return errors.Wrap(errors.ErrCodeManifestDecode, "invalid range in manifest", err)
		}
		if _, ok := seen[r]; ok {
			return errors.Newf(errors.ErrCodeManifestDecode, "duplicate range %s", r)
		}
		seen[r] = struct{}{}

		if r.IsEmpty() {
			continue
		}
		tp := r.TopicPartition()
		if prev, ok := last[tp]; ok && r.StartOffset < prev.EndOffset {
			return errors.Newf(errors.ErrCodeManifestDecode, "ranges %s and %s overlap", prev, r)
		}
		last[tp] = r
	}
	return nil
}

// Encode 编码清单
func Encode(m *Manifest) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestEncode, "refusing to encode invalid manifest", err)
	}
	data, err := sonic.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestEncode, "failed to marshal manifest", err)
	}
	return data, nil
}

// Decode 解码清单，非法分片直接拒绝
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestDecode, "failed to unmarshal manifest", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// WriteFile 原子写入清单文件
func WriteFile(path string, m *Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeManifestEncode, "failed to create temp manifest", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(errors.ErrCodeManifestEncode, "failed to write manifest", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeManifestEncode, "failed to close manifest", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(errors.ErrCodeManifestEncode, "failed to rename manifest", err)
	}
	return nil
}

// ReadFile 读取清单文件
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestDecode, "failed to read manifest", err)
	}
	return Decode(data)
}
