package writer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/internal/metrics"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/pool"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/utils"
	"go.uber.org/zap"
)

// StreamLoadWriter Stream Load写入器
type StreamLoadWriter struct {
	cfg        config.DorisConfig
	httpClient *http.Client
	authHeader string
	columns    []string
	scheme     string

	seq     atomic.Int64
	backoff time.Duration
}

// NewStreamLoadWriter 创建Stream Load写入器
func NewStreamLoadWriter(cfg config.DorisConfig, columns []string) *StreamLoadWriter {
	client := &http.Client{
		Timeout: time.Duration(cfg.Timeout) * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 50,
			MaxConnsPerHost:     100,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   false, // Doris使用HTTP/1.1
			WriteBufferSize:     32 * 1024,
			ReadBufferSize:      32 * 1024,
		},
		// FE会307重定向到BE，重定向时保留认证头
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			if len(via) > 0 {
				req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
			}
			return nil
		},
	}

	auth := base64.StdEncoding.EncodeToString([]byte(cfg.User + ":" + cfg.Password))

	return &StreamLoadWriter{
		cfg:        cfg,
		httpClient: client,
		authHeader: "Basic " + auth,
		columns:    columns,
		scheme:     "http",
		backoff:    time.Second,
	}
}

// Write 写入数据到Doris，同一批次重试使用相同label保证幂等
func (w *StreamLoadWriter) Write(ctx context.Context, batch [][]interface{}) error {
	if len(batch) == 0 {
		return nil
	}

	startTime := time.Now()
	label := fmt.Sprintf("range_reader_%d_%d", startTime.UnixNano(), w.seq.Add(1))

	jsonBuf := BuildJSONLines(batch, w.columns)
	defer pool.PutBuffer(jsonBuf)

	err := utils.Retry(ctx, w.cfg.MaxRetries, utils.NewBackoff(w.backoff, 30*time.Second), func(attempt int) error {
		if attempt > 0 {
			metrics.DorisStreamLoadRetries.Inc()
		}
		err := w.doStreamLoad(ctx, w.cfg.FEHosts[attempt%len(w.cfg.FEHosts)], label, jsonBuf.Bytes(), len(batch))
		if err != nil {
			logger.Warn("stream load failed",
				zap.String("label", label),
				zap.Error(err),
				zap.Int("retry", attempt),
				zap.Int("max_retries", w.cfg.MaxRetries),
			)
		}
		return err
	})
	if err != nil {
		metrics.DorisStreamLoadTotal.WithLabelValues("failed").Inc()
		return errors.Wrap(errors.ErrCodeDorisStreamLoad, "stream load failed after retries", err)
	}

	metrics.DorisStreamLoadTotal.WithLabelValues("success").Inc()
	logger.Info("stream load success",
		zap.String("label", label),
		zap.Int("rows", len(batch)),
		zap.Int("size_bytes", jsonBuf.Len()),
		zap.Duration("duration", time.Since(startTime)),
	)
	return nil
}

// doStreamLoad 执行一次Stream Load请求
func (w *StreamLoadWriter) doStreamLoad(ctx context.Context, feHost, label string, data []byte, rowCount int) error {
	url := fmt.Sprintf("%s://%s/api/%s/%s/_stream_load", w.scheme, feHost, w.cfg.Database, w.cfg.Table)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(errors.ErrCodeDorisStreamLoad, "failed to create request", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	req.Header.Set("Authorization", w.authHeader)
	req.Header.Set("Expect", "100-continue")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("label", label)
	req.Header.Set("format", "json")
	req.Header.Set("read_json_by_line", "true")

	logger.Debug("sending stream load request",
		zap.String("url", url),
		zap.Int("rows", rowCount),
		zap.Int("size_bytes", len(data)),
	)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDorisConnect, "failed to send request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDorisStreamLoad, "failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.ErrCodeDorisStreamLoad, "stream load http status %d: %s", resp.StatusCode, body)
	}

	var result StreamLoadResult
	if err := sonic.Unmarshal(body, &result); err != nil {
		return errors.Wrap(errors.ErrCodeDorisStreamLoad, "failed to parse response", err)
	}

	switch result.Status {
	case "Success", "Publish Timeout":
	case "Label Already Exists":
		// 上一次尝试已经成功提交
		if result.ExistingJobStatus == "FINISHED" || result.ExistingJobStatus == "VISIBLE" {
			logger.Info("stream load label already committed", zap.String("label", label))
			return nil
		}
		return errors.Newf(errors.ErrCodeDorisStreamLoad, "label %s exists with status %s", label, result.ExistingJobStatus)
	default:
		logger.Error("stream load failed", zap.Any("result", result))
		return errors.Newf(errors.ErrCodeDorisStreamLoad, "stream load failed: %s, message: %s", result.Status, result.Message)
	}

	metrics.DorisRowsLoaded.Add(float64(result.NumberLoadedRows))
	metrics.DorisRowsFiltered.Add(float64(result.NumberFilteredRows))
	logger.Debug("stream load response",
		zap.String("status", result.Status),
		zap.Int64("loaded_rows", result.NumberLoadedRows),
		zap.Int64("filtered_rows", result.NumberFilteredRows),
		zap.Int("load_time_ms", result.LoadTimeMs),
	)
	return nil
}

// Close 关闭写入器
func (w *StreamLoadWriter) Close() error {
	w.httpClient.CloseIdleConnections()
	return nil
}

// StreamLoadResult Stream Load响应结果
type StreamLoadResult struct {
	TxnID              int64  `json:"TxnId"`
	Label              string `json:"Label"`
	Status             string `json:"Status"`
	ExistingJobStatus  string `json:"ExistingJobStatus"`
	Message            string `json:"Message"`
	NumberTotalRows    int64  `json:"NumberTotalRows"`
	NumberLoadedRows   int64  `json:"NumberLoadedRows"`
	NumberFilteredRows int64  `json:"NumberFilteredRows"`
	LoadBytes          int64  `json:"LoadBytes"`
	LoadTimeMs         int    `json:"LoadTimeMs"`
	ErrorURL           string `json:"ErrorURL"`
}
