package server

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"go.uber.org/zap"
)

// ProgressSource 作业进度
type ProgressSource interface {
	Running() bool
	Progress() (done, failed, total int64)
}

// Server HTTP服务器
type Server struct {
	metricsServer *http.Server
	pprofServer   *http.Server
	progress      ProgressSource
}

// NewServer 创建HTTP服务器
func NewServer(cfg *config.Config, progress ProgressSource) *Server {
	s := &Server{progress: progress}

	// Metrics服务器
	if cfg.Metrics.Enabled {
		s.metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: s.Handler(cfg.Metrics.Path),
		}
	}

	// Pprof服务器
	if cfg.Pprof.Enabled {
		s.pprofServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Pprof.Port),
			Handler: http.DefaultServeMux, // pprof已自动注册到DefaultServeMux
		}
	}

	return s
}

// Handler 返回metrics、健康检查和进度路由
func (s *Server) Handler(metricsPath string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/progress", s.progressHandler)
	return mux
}

// Start 启动服务器
func (s *Server) Start() error {
	if s.metricsServer != nil {
		go func() {
			logger.Info("starting metrics server", zap.String("addr", s.metricsServer.Addr))
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	if s.pprofServer != nil {
		go func() {
			logger.Info("starting pprof server", zap.String("addr", s.pprofServer.Addr))
			if err := s.pprofServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("pprof server error", zap.Error(err))
			}
		}()
	}

	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown pprof server", zap.Error(err))
		}
	}

	return nil
}

// healthHandler 健康检查
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readyHandler 作业运行中才算就绪
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil || !s.progress.Running() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Not Ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

type progressBody struct {
	Running bool  `json:"running"`
	Done    int64 `json:"done"`
	Failed  int64 `json:"failed"`
	Total   int64 `json:"total"`
}

// progressHandler 返回分片完成情况
func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	var body progressBody
	if s.progress != nil {
		body.Running = s.progress.Running()
		body.Done, body.Failed, body.Total = s.progress.Progress()
	}

	data, err := sonic.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
