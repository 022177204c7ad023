package registration

import (
	"context"
	"log/slog"
	"time"

	"custodia/internal/index"
	"custodia/internal/platform/metrics"
)

const (
	retryQueueCapacity = 256
	retryAttempts      = 5
	retryBaseDelay     = 2 * time.Second
)

// IndexRetryWorker re-drives projection upserts that failed inline during
// registration. The ledger write already succeeded by the time anything lands
// here, so each task is pure convergence work: retried with backoff and, on
// exhaustion, logged for offline reconciliation instead of erroring anywhere.
type IndexRetryWorker struct {
	store   index.Store
	queue   chan index.EvidenceProjection
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewIndexRetryWorker(store index.Store, logger *slog.Logger, m *metrics.Metrics) *IndexRetryWorker {
	return &IndexRetryWorker{
		store:   store,
		queue:   make(chan index.EvidenceProjection, retryQueueCapacity),
		logger:  logger,
		metrics: m,
	}
}

// Enqueue hands a projection to the worker without blocking the request path.
// A full queue is logged and dropped; the projection remains reconstructible
// from the ledger.
func (w *IndexRetryWorker) Enqueue(projection index.EvidenceProjection) {
	select {
	case w.queue <- projection:
		w.metrics.IndexRetryQueueDepth.Inc()
	default:
		w.logger.Error("index retry queue full, dropping projection",
			"evidence_id", projection.EvidenceID)
	}
}

// Run drains the queue until the context is cancelled.
func (w *IndexRetryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case projection := <-w.queue:
			w.metrics.IndexRetryQueueDepth.Dec()
			w.process(ctx, projection)
		}
	}
}

func (w *IndexRetryWorker) process(ctx context.Context, projection index.EvidenceProjection) {
	delay := retryBaseDelay
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err := w.store.UpsertEvidence(ctx, projection); err == nil {
			w.logger.Info("projection upsert recovered",
				"evidence_id", projection.EvidenceID, "attempt", attempt)
			return
		} else if ctx.Err() != nil {
			return
		} else {
			w.logger.Warn("projection upsert retry failed",
				"evidence_id", projection.EvidenceID, "attempt", attempt, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
	w.logger.Error("projection upsert abandoned, needs reconciliation",
		"evidence_id", projection.EvidenceID)
}
