package split

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
)

func TestManifestEncodeDecode(t *testing.T) {
	m := NewManifest([]PartitionRange{
		{Topic: "events", Partition: 1, StartOffset: 0, EndOffset: 10},
		{Topic: "events", Partition: 0, StartOffset: 5, EndOffset: 5},
		{Topic: "audit", Partition: 0, StartOffset: 3, EndOffset: 7},
	})

	data, err := Encode(m)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []PartitionRange{
		{Topic: "audit", Partition: 0, StartOffset: 3, EndOffset: 7},
		{Topic: "events", Partition: 0, StartOffset: 5, EndOffset: 5},
		{Topic: "events", Partition: 1, StartOffset: 0, EndOffset: 10},
	}, decoded.Ranges)
	assert.Equal(t, ManifestVersion, decoded.Version)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
	}{
		{name: "not json", data: `{`},
		{name: "missing version", data: `{"ranges":[]}`},
		{name: "end before start", data: `{"version":1,"ranges":[{"topic":"t","partition":0,"start_offset":9,"end_offset":3}]}`},
		{name: "negative partition", data: `{"version":1,"ranges":[{"topic":"t","partition":-1,"start_offset":0,"end_offset":3}]}`},
		{name: "overlap", data: `{"version":1,"ranges":[
			{"topic":"t","partition":0,"start_offset":0,"end_offset":5},
			{"topic":"t","partition":0,"start_offset":4,"end_offset":8}]}`},
		{name: "duplicate", data: `{"version":1,"ranges":[
			{"topic":"t","partition":0,"start_offset":0,"end_offset":5},
			{"topic":"t","partition":0,"start_offset":0,"end_offset":5}]}`},
		{name: "duplicate empty", data: `{"version":1,"ranges":[
			{"topic":"t","partition":0,"start_offset":5,"end_offset":5},
			{"topic":"t","partition":0,"start_offset":5,"end_offset":5}]}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeManifestDecode))
		})
	}
}

func TestDecodeAdjacentRanges(t *testing.T) {
	m, err := Decode([]byte(`{"version":1,"ranges":[
		{"topic":"t","partition":0,"start_offset":5,"end_offset":8},
		{"topic":"t","partition":0,"start_offset":0,"end_offset":5}]}`))
	require.NoError(t, err)
	assert.Len(t, m.Ranges, 2)

	// 空分片与相邻或包含它的分片不冲突，与排序无关
	for _, data := range []string{
		`{"version":1,"ranges":[{"topic":"t","partition":0,"start_offset":5,"end_offset":5},{"topic":"t","partition":0,"start_offset":5,"end_offset":8}]}`,
		`{"version":1,"ranges":[{"topic":"t","partition":0,"start_offset":5,"end_offset":8},{"topic":"t","partition":0,"start_offset":5,"end_offset":5}]}`,
		`{"version":1,"ranges":[{"topic":"t","partition":0,"start_offset":0,"end_offset":8},{"topic":"t","partition":0,"start_offset":6,"end_offset":6}]}`,
	} {
		_, err := Decode([]byte(data))
		assert.NoError(t, err, data)
	}
}

func TestManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := NewManifest([]PartitionRange{{Topic: "events", Partition: 0, StartOffset: 0, EndOffset: 10}})

	require.NoError(t, WriteFile(path, m))
	read, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m.Ranges, read.Ranges)

	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"ranges":[{"topic":"","partition":0,"start_offset":0,"end_offset":1}]}`), 0o644))
	_, err = ReadFile(path)
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
