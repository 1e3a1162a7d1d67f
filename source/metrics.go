package source

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	methodMmap = "mmap"
	methodRead = "read"

	reasonOpen       = "open"
	reasonTooLarge   = "too_large"
	reasonDecompress = "decompress"
)

type metrics struct {
	loads       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	bytesLoaded prometheus.Counter
	duration    prometheus.Histogram
	saves       prometheus.Counter
	bytesSaved  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		loads: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "streamfmt_source_loads_total",
			Help: "Total number of documents loaded, by method.",
		}, []string{"method"}),
		failures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "streamfmt_source_load_failures_total",
			Help: "Total number of documents that failed to load, by reason.",
		}, []string{"reason"}),
		bytesLoaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "streamfmt_source_bytes_loaded_total",
			Help: "Total number of document bytes made resident, after decompression.",
		}),
		duration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "streamfmt_source_load_duration_seconds",
			Help:    "Time taken to make a document resident.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		saves: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "streamfmt_source_saves_total",
			Help: "Total number of documents saved.",
		}),
		bytesSaved: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "streamfmt_source_bytes_saved_total",
			Help: "Total number of formatted bytes written, before compression.",
		}),
	}
}
