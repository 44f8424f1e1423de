package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 分区读取指标
	ReaderRecordsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_records_read_total",
			Help: "Total number of records yielded by partition readers",
		},
		[]string{"topic"},
	)

	ReaderBytesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_bytes_read_total",
			Help: "Total value bytes yielded by partition readers",
		},
		[]string{"topic"},
	)

	ReaderPulls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_pulls_total",
			Help: "Total number of pulls issued to the underlying connection",
		},
		[]string{"topic", "result"}, // result: data, empty, error
	)

	ReaderRecordsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_records_discarded_total",
			Help: "Records dropped because they were outside the range or already yielded",
		},
		[]string{"topic", "reason"}, // reason: duplicate, beyond_end
	)

	ReaderRetriesExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_retries_exhausted_total",
			Help: "Total number of ranges that failed after exhausting empty poll retries",
		},
		[]string{"topic"},
	)

	ReaderActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reader_active",
			Help: "Number of initialized readers not yet closed",
		},
	)

	// 作业指标
	JobRanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_ranges_total",
			Help: "Total number of ranges processed by status",
		},
		[]string{"status"}, // ok, failed, retried
	)

	JobRangeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "job_range_duration_seconds",
			Help:    "Time to drain one partition range",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	JobRangesPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "job_ranges_pending",
			Help: "Ranges not yet completed in the current job",
		},
	)

	// 批次处理指标
	BatchFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_flush_total",
			Help: "Total number of batch flushes",
		},
		[]string{"status"},
	)

	BatchSizeRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_size_rows",
			Help:    "Batch size in rows",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
		},
	)

	BatchFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_flush_duration_seconds",
			Help:    "Batch flush duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Doris写入指标
	DorisStreamLoadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doris_stream_load_total",
			Help: "Total number of stream load requests",
		},
		[]string{"status"},
	)

	DorisRowsLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doris_rows_loaded_total",
			Help: "Total number of rows loaded to Doris",
		},
	)

	DorisRowsFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doris_rows_filtered_total",
			Help: "Total number of rows filtered by Doris",
		},
	)

	DorisStreamLoadRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doris_stream_load_retries_total",
			Help: "Total number of stream load retries",
		},
	)

	// 字段映射指标
	FieldTypeConversionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_type_conversion_errors_total",
			Help: "Total number of field type conversion errors",
		},
		[]string{"field", "to_type"},
	)
)
