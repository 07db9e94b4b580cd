// Package metrics provides Prometheus metrics for remote operations,
// open documents, and mirror sync.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote store operation metrics
	remoteOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdman_remote_operations_total",
			Help: "Total remote store operations",
		},
		[]string{"operation", "status"},
	)

	remoteOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mdman_remote_operation_duration_seconds",
			Help:    "Remote store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Content transfer metrics
	transferBytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mdman_transfer_bytes_downloaded_total",
			Help: "Total bytes read from the remote store",
		},
	)

	transferBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mdman_transfer_bytes_uploaded_total",
			Help: "Total bytes written to the remote store",
		},
	)

	// Document overlay metrics
	documentsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mdman_documents_open",
			Help: "Number of currently open virtual documents",
		},
	)

	documentSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdman_document_saves_total",
			Help: "Total document save attempts",
		},
		[]string{"status"},
	)

	// Tree transaction metrics
	treeTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdman_tree_transactions_total",
			Help: "Total tree transactions (create, delete, rename, copy, move)",
		},
		[]string{"operation", "status"},
	)

	// Disk cache metrics
	cacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mdman_cache_size_bytes",
			Help: "Current size of the document disk cache",
		},
	)

	cacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mdman_cache_evictions_total",
			Help: "Total cache entries evicted",
		},
	)

	// Mirror sync metrics
	syncFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdman_sync_files_total",
			Help: "Total files processed by mirror sync",
		},
		[]string{"status"},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mdman_sync_duration_seconds",
			Help:    "Duration of a full mirror sync pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	syncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mdman_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful mirror sync pass",
		},
	)

	// Event broadcaster metrics
	subscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mdman_event_subscribers_active",
			Help: "Number of active event subscribers",
		},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdman_events_total",
			Help: "Total events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRemoteOperation records one remote store operation.
func RecordRemoteOperation(operation string, duration time.Duration, success bool) {
	remoteOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	remoteOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDownload records bytes read from the remote store.
func RecordDownload(bytes int64) {
	transferBytesDownloaded.Add(float64(bytes))
}

// RecordUpload records bytes written to the remote store.
func RecordUpload(bytes int64) {
	transferBytesUploaded.Add(float64(bytes))
}

// SetDocumentsOpen sets the number of open virtual documents.
func SetDocumentsOpen(count int64) {
	documentsOpen.Set(float64(count))
}

// RecordDocumentSave records a document save attempt.
func RecordDocumentSave(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	documentSavesTotal.WithLabelValues(status).Inc()
}

// RecordTreeTransaction records a tree transaction outcome.
func RecordTreeTransaction(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	treeTransactionsTotal.WithLabelValues(operation, status).Inc()
}

// SetCacheSize sets the current disk cache size.
func SetCacheSize(bytes int64) {
	cacheSizeBytes.Set(float64(bytes))
}

// RecordCacheEviction records one evicted cache entry.
func RecordCacheEviction() {
	cacheEvictionsTotal.Inc()
}

// RecordSyncFile records one file processed by mirror sync.
func RecordSyncFile(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	syncFilesTotal.WithLabelValues(status).Inc()
}

// RecordSyncPass records a completed mirror sync pass.
func RecordSyncPass(duration time.Duration, success bool) {
	syncDuration.Observe(duration.Seconds())
	if success {
		syncLastSuccess.SetToCurrentTime()
	}
}

// SetSubscribersActive sets the number of active event subscribers.
func SetSubscribersActive(count int64) {
	subscribersActive.Set(float64(count))
}

// RecordEvent records an event publication.
func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}
