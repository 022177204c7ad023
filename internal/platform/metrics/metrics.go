package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics shared across the gateway's services.
type Metrics struct {
	RegistrationsTotal       prometheus.Counter
	DuplicateSubmissions     prometheus.Counter
	ContentPutRetries        prometheus.Counter
	OrphanedContent          prometheus.Counter
	IndexRetryQueueDepth     prometheus.Gauge
	AccessCacheHits          prometheus.Counter
	AccessCacheMisses        prometheus.Counter
	AccessCacheInvalidations prometheus.Counter
	CaseLinks                prometheus.Counter
	LinkRepairs              prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RegistrationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_registrations_total",
			Help: "Total number of evidence registrations committed to the ledger",
		}),
		DuplicateSubmissions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_duplicate_submissions_total",
			Help: "Submissions converged onto a prior registration via the idempotency ledger",
		}),
		ContentPutRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_content_put_retries_total",
			Help: "Retries of content store staging during registration",
		}),
		OrphanedContent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_orphaned_content_total",
			Help: "Content staged successfully but orphaned by a failed ledger registration",
		}),
		IndexRetryQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "custodia_index_retry_queue_depth",
			Help: "Projection upserts waiting for background retry",
		}),
		AccessCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_access_cache_hits_total",
			Help: "Access decisions served from the local cache",
		}),
		AccessCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_access_cache_misses_total",
			Help: "Access decisions resolved against the ledger",
		}),
		AccessCacheInvalidations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_access_cache_invalidations_total",
			Help: "Proactive cache invalidations after grant/revoke",
		}),
		CaseLinks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_case_links_total",
			Help: "Evidence-to-case links created in the index",
		}),
		LinkRepairs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_link_repairs_total",
			Help: "Asymmetric case links repaired opportunistically on read",
		}),
	}
}
