package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/internal/consumer"
	"github.com/kafka-range-reader/kafka-range-reader/internal/offsets"
	"github.com/kafka-range-reader/kafka-range-reader/internal/pipeline"
	"github.com/kafka-range-reader/kafka-range-reader/internal/schema"
	"github.com/kafka-range-reader/kafka-range-reader/internal/server"
	"github.com/kafka-range-reader/kafka-range-reader/internal/signal"
	"github.com/kafka-range-reader/kafka-range-reader/internal/split"
	"github.com/kafka-range-reader/kafka-range-reader/internal/writer"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"go.uber.org/zap"
)

var (
	configPath   = flag.String("config", "configs/config.yaml", "config file path")
	manifestPath = flag.String("manifest", "", "split manifest path, overrides job.manifest_path")
	planOnly     = flag.Bool("plan-only", false, "resolve offsets, write the manifest and exit")
	version      = "1.0.0"
)

func main() {
	flag.Parse()

	fmt.Printf("Range-Reader v%s\n", version)
	fmt.Printf("Loading config from: %s\n", *configPath)

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *manifestPath != "" {
		cfg.Job.ManifestPath = *manifestPath
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Log); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(cfg))
}

// run 执行作业并返回进程退出码
func run(cfg *config.Config) int {
	defer logger.Sync()

	logger.Info("range-reader starting",
		zap.String("version", version),
		zap.String("config", cfg.String()),
	)

	// 3. 创建上下文，收到信号时取消
	ctx, cancel := signal.WithShutdown(context.Background())
	defer cancel()

	// 4. 确定分片
	ranges, err := loadRanges(ctx, cfg)
	if err != nil {
		logger.Error("failed to determine partition ranges", zap.Error(err))
		return 1
	}
	logger.Info("partition ranges ready", zap.Int("ranges", len(ranges)))

	if *planOnly {
		if cfg.Job.ManifestPath == "" {
			data, err := split.Encode(split.NewManifest(ranges))
			if err != nil {
				logger.Error("failed to encode manifest", zap.Error(err))
				return 1
			}
			fmt.Println(string(data))
		}
		return 0
	}

	// 5. 创建Mapper
	mapper, err := schema.NewMapperFromConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to init schema", zap.Error(err))
		return 1
	}
	logger.Info("schema initialized", zap.String("schema", mapper.GetSchema().String()))

	// 6. 创建Writer
	w, err := writer.New(cfg, mapper.GetSchema().ColumnNames())
	if err != nil {
		logger.Error("failed to create writer", zap.Error(err))
		return 1
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Error("failed to close writer", zap.Error(err))
		}
	}()

	// 7. 创建作业
	job := pipeline.NewJob(consumer.NewFranzProvider(cfg.Kafka), cfg, mapper, w)

	// 8. 启动HTTP服务器
	srv := server.NewServer(cfg, job)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		return 1
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Stop(shutdownCtx)
	}()

	// 9. 运行作业
	report, err := job.Run(ctx, ranges)
	if err != nil {
		logger.Warn("job interrupted", zap.Error(err))
	}

	failed := report.Failed()
	for _, res := range failed {
		logger.Error("range not completed",
			zap.String("range", res.Range.String()),
			zap.String("status", string(res.Status)),
			zap.Int("attempts", res.Attempts),
			zap.Error(res.Err),
		)
	}

	logger.Info("range-reader finished",
		zap.Int("ranges", len(report.Results)),
		zap.Int("failed", len(failed)),
		zap.Int64("records", report.Records()),
		zap.Duration("duration", report.Duration),
	)

	if err != nil || len(failed) > 0 {
		return 1
	}
	return 0
}

// loadRanges 读取已有清单，否则查询offset规划分片并写入清单
func loadRanges(ctx context.Context, cfg *config.Config) ([]split.PartitionRange, error) {
	path := cfg.Job.ManifestPath
	if path != "" && !*planOnly {
		if _, err := os.Stat(path); err == nil {
			m, err := split.ReadFile(path)
			if err != nil {
				return nil, err
			}
			logger.Info("loaded split manifest",
				zap.String("path", path),
				zap.Time("created_at", m.CreatedAt),
			)
			return m.Ranges, nil
		}
	}

	resolver, err := offsets.NewKadmResolver(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	defer resolver.Close()

	ranges, err := offsets.Resolve(ctx, resolver, cfg.Kafka.Topics, offsets.PlanOptions{
		MaxRecordsPerRange: cfg.Job.MaxRecordsPerRange,
	})
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err := split.WriteFile(path, split.NewManifest(ranges)); err != nil {
			return nil, err
		}
		logger.Info("split manifest written", zap.String("path", path), zap.Int("ranges", len(ranges)))
	}
	return ranges, nil
}
