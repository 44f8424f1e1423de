package writer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/internal/consumer"
	"github.com/kafka-range-reader/kafka-range-reader/internal/schema"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/pool"
)

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

var columns = []string{"topic", "offset", "value", "ok", "score", "extra"}

func TestBuildJSONLines(t *testing.T) {
	buf := BuildJSONLines([][]interface{}{
		{"events", int64(1), `{"a":"b"}`, true, 1.5, nil},
		{"events", int64(2), "line\nbreak", false, 2.0, []int{1}},
	}, columns)
	defer pool.PutBuffer(buf)

	assert.Equal(t,
		`{"topic":"events","offset":1,"value":"{\"a\":\"b\"}","ok":true,"score":1.5,"extra":null}`+"\n"+
			`{"topic":"events","offset":2,"value":"line\nbreak","ok":false,"score":2,"extra":[1]}`,
		buf.String())
}

func TestRawBinaryRoundTrip(t *testing.T) {
	msg := &consumer.Message{
		Topic:     "events",
		Offset:    5,
		Key:       []byte{0xc3},
		Value:     []byte{0xff, 0xfe, 0x00, 0x01, 'a'},
		Timestamp: 1700000000000,
	}
	mapper := schema.NewRawMapper()
	row, err := mapper.MapMessage(msg)
	require.NoError(t, err)

	buf := BuildJSONLines([][]interface{}{row}, mapper.GetSchema().ColumnNames())
	defer pool.PutBuffer(buf)

	var decoded map[string]interface{}
	require.NoError(t, sonic.Unmarshal(buf.Bytes(), &decoded))

	key, err := schema.DecodeBytes(decoded["key"].(string), decoded["key_encoding"].(string))
	require.NoError(t, err)
	assert.Equal(t, msg.Key, key)

	value, err := schema.DecodeBytes(decoded["value"].(string), decoded["value_encoding"].(string))
	require.NoError(t, err)
	assert.Equal(t, msg.Value, value)
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := NewFileWriter(path, []string{"offset"})
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), [][]interface{}{{int64(0)}, {int64(1)}}))
	require.NoError(t, w.Write(context.Background(), nil))
	require.NoError(t, w.Write(context.Background(), [][]interface{}{{int64(2)}}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"offset\":0}\n{\"offset\":1}\n{\"offset\":2}\n", string(data))

	err = w.Write(context.Background(), [][]interface{}{{int64(3)}})
	assert.Equal(t, errors.ErrCodeFileWrite, errors.CodeOf(err))
}

func newTestStreamLoadWriter(srv *httptest.Server, maxRetries int) *StreamLoadWriter {
	w := NewStreamLoadWriter(config.DorisConfig{
		FEHosts:    []string{strings.TrimPrefix(srv.URL, "http://")},
		Database:   "ods",
		Table:      "events",
		User:       "root",
		Timeout:    5,
		MaxRetries: maxRetries,
	}, []string{"offset"})
	w.backoff = time.Millisecond
	return w
}

func TestStreamLoadSuccess(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/ods/events/_stream_load", r.URL.Path)
		assert.Equal(t, "json", r.Header.Get("format"))
		assert.NotEmpty(t, r.Header.Get("label"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Basic "))
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		_, _ = rw.Write([]byte(`{"Status":"Success","NumberLoadedRows":2}`))
	}))
	defer srv.Close()

	w := newTestStreamLoadWriter(srv, 0)
	defer w.Close()
	require.NoError(t, w.Write(context.Background(), [][]interface{}{{int64(7)}, {int64(8)}}))
	assert.Equal(t, "{\"offset\":7}\n{\"offset\":8}", body)
}

func TestStreamLoadRetriesWithSameLabel(t *testing.T) {
	var calls atomic.Int32
	labels := make(chan string, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		labels <- r.Header.Get("label")
		if calls.Add(1) < 3 {
			_, _ = rw.Write([]byte(`{"Status":"Fail","Message":"too many versions"}`))
			return
		}
		_, _ = rw.Write([]byte(`{"Status":"Label Already Exists","ExistingJobStatus":"FINISHED"}`))
	}))
	defer srv.Close()

	w := newTestStreamLoadWriter(srv, 3)
	require.NoError(t, w.Write(context.Background(), [][]interface{}{{int64(1)}}))
	assert.Equal(t, int32(3), calls.Load())

	first := <-labels
	assert.Equal(t, first, <-labels)
	assert.Equal(t, first, <-labels)
}

func TestStreamLoadGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := newTestStreamLoadWriter(srv, 1)
	err := w.Write(context.Background(), [][]interface{}{{int64(1)}})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, errors.ErrCodeDorisStreamLoad, errors.CodeOf(err))
}

func TestNewWriter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sink.FilePath = filepath.Join(t.TempDir(), "out.jsonl")
	w, err := New(cfg, []string{"a"})
	require.NoError(t, err)
	assert.IsType(t, &FileWriter{}, w)
	require.NoError(t, w.Close())

	cfg.Sink.Type = "doris"
	w, err = New(cfg, []string{"a"})
	require.NoError(t, err)
	assert.IsType(t, &StreamLoadWriter{}, w)

	cfg.Sink.Type = "kafka"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}
