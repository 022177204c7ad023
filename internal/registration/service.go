// Package registration drives the evidence registration pipeline: stage
// content in the content-addressed store, register the canonical record on
// the ledger, then project it into the off-chain index. Writes are ordered
// content→ledger→index because content and ledger mutations are hard to undo
// while the index upsert is idempotent and safely retriable.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"custodia/internal/content"
	"custodia/internal/events"
	"custodia/internal/index"
	"custodia/internal/ledger"
	"custodia/internal/platform/metrics"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

const (
	putBaseDelay     = 500 * time.Millisecond
	gatePollInterval = 200 * time.Millisecond
	gatePollAttempts = 25
)

// Submission is one registration request.
type Submission struct {
	Content      []byte
	OriginalName string
	MimeType     string
	Owner        string
	DisplayName  string
	Description  string
}

// Result reports the canonical record and whether the submission converged
// onto a prior registration.
type Result struct {
	Record    ledger.Record
	Duplicate bool
}

// Coordinator guarantees at-most-one successful registration per submission
// fingerprint, across retries, concurrent requests, and client disconnects.
type Coordinator struct {
	content     content.Store
	ledger      ledger.Client
	store       index.Store
	idempotency IdempotencyLedger
	retry       *IndexRetryWorker
	events      events.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer

	flight      singleflight.Group
	callTimeout time.Duration
	putAttempts int
}

func NewCoordinator(
	contentStore content.Store,
	ledgerClient ledger.Client,
	indexStore index.Store,
	idempotency IdempotencyLedger,
	retry *IndexRetryWorker,
	publisher events.Publisher,
	logger *slog.Logger,
	m *metrics.Metrics,
	callTimeout time.Duration,
	putAttempts int,
) *Coordinator {
	return &Coordinator{
		content:     contentStore,
		ledger:      ledgerClient,
		store:       indexStore,
		idempotency: idempotency,
		retry:       retry,
		events:      publisher,
		logger:      logger,
		metrics:     m,
		tracer:      otel.Tracer("custodia/internal/registration"),
		callTimeout: callTimeout,
		putAttempts: putAttempts,
	}
}

// Register runs the full pipeline. Once the first external write starts the
// pipeline runs to completion server-side even if the caller disconnects, so
// a client retry against the same fingerprint converges instead of
// duplicating state.
func (c *Coordinator) Register(ctx context.Context, submission Submission) (Result, error) {
	if err := validateSubmission(submission); err != nil {
		return Result{}, err
	}
	fingerprint := Fingerprint(submission.Owner, submission.DisplayName, submission.Content)

	if prior, err := c.priorResult(ctx, fingerprint, submission.Owner); err == nil {
		c.metrics.DuplicateSubmissions.Inc()
		return Result{Record: prior, Duplicate: true}, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		c.logger.WarnContext(ctx, "idempotency fast-path lookup failed", "error", err)
	}

	value, err, shared := c.flight.Do(fingerprint, func() (any, error) {
		// Detached so a dropped client connection cannot abort writes that
		// may already be irreversible.
		return c.register(context.WithoutCancel(ctx), fingerprint, submission)
	})
	if err != nil {
		return Result{}, err
	}
	record := value.(ledger.Record)
	if shared {
		c.metrics.DuplicateSubmissions.Inc()
	}
	return Result{Record: record, Duplicate: shared}, nil
}

func (c *Coordinator) register(ctx context.Context, fingerprint string, submission Submission) (ledger.Record, error) {
	acquired, err := c.idempotency.Acquire(ctx, fingerprint)
	if err != nil {
		return ledger.Record{}, dErrors.New(dErrors.CodeUnavailable, "idempotency ledger unavailable")
	}
	if !acquired {
		// Another instance holds the gate; wait for its mapping.
		return c.awaitPrior(ctx, fingerprint, submission.Owner)
	}

	contentID, err := c.stageContent(ctx, submission)
	if err != nil {
		c.releaseGate(ctx, fingerprint)
		return ledger.Record{}, err
	}

	record, err := c.registerOnLedger(ctx, contentID, submission)
	if err != nil {
		c.releaseGate(ctx, fingerprint)
		return ledger.Record{}, err
	}

	c.projectIntoIndex(ctx, record)

	if err := c.idempotency.Record(ctx, fingerprint, record.EvidenceID); err != nil {
		// The registration itself succeeded; a lost mapping only costs
		// dedup for the TTL window.
		c.logger.ErrorContext(ctx, "failed to record idempotency mapping",
			"evidence_id", record.EvidenceID, "error", err)
		c.releaseGate(ctx, fingerprint)
	}

	c.publishRegistered(ctx, record)
	c.metrics.RegistrationsTotal.Inc()
	c.logger.InfoContext(ctx, "evidence registered",
		"evidence_id", record.EvidenceID,
		"content_id", record.ContentID,
		"owner", record.Owner,
	)
	return record, nil
}

// stageContent pins the bytes with bounded exponential backoff. Exhaustion
// aborts before any ledger mutation.
func (c *Coordinator) stageContent(ctx context.Context, submission Submission) (string, error) {
	ctx, span := c.tracer.Start(ctx, "registration.content_put")
	defer span.End()

	var lastErr error
	delay := putBaseDelay
	for attempt := 1; attempt <= c.putAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		contentID, err := c.content.Put(callCtx, submission.Content, submission.OriginalName, submission.MimeType)
		cancel()
		if err == nil {
			return contentID, nil
		}
		lastErr = err
		if attempt < c.putAttempts {
			c.metrics.ContentPutRetries.Inc()
			c.logger.WarnContext(ctx, "content store put failed, retrying",
				"attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return "", dErrors.New(dErrors.CodeContentStoreUnavailable, "content staging aborted")
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	span.RecordError(lastErr)
	c.logger.ErrorContext(ctx, "content store unavailable", "error", lastErr)
	return "", dErrors.New(dErrors.CodeContentStoreUnavailable, "content store unavailable")
}

// registerOnLedger commits the canonical record. Not retried: the ledger does
// not guarantee register is idempotent, and the staged content is already
// addressable. A failure here orphans that content for the reclamation sweep.
func (c *Coordinator) registerOnLedger(ctx context.Context, contentID string, submission Submission) (ledger.Record, error) {
	ctx, span := c.tracer.Start(ctx, "registration.ledger_register")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	record, err := c.ledger.Register(callCtx, ledger.RegisterParams{
		ContentID:    contentID,
		OriginalName: submission.OriginalName,
		MimeType:     submission.MimeType,
		DisplayName:  submission.DisplayName,
		Description:  submission.Description,
		Owner:        submission.Owner,
	})
	if err != nil {
		span.RecordError(err)
		c.metrics.OrphanedContent.Inc()
		c.logger.ErrorContext(ctx, "ledger registration failed, content orphaned",
			"content_id", contentID, "owner", submission.Owner, "error", err)
		return ledger.Record{}, dErrors.New(dErrors.CodeRegistrationFailed, "ledger registration failed")
	}
	return record, nil
}

// projectIntoIndex upserts the projection. The ledger record is already
// authoritative, so an index failure is queued for background retry and never
// fails the registration.
func (c *Coordinator) projectIntoIndex(ctx context.Context, record ledger.Record) {
	ctx, span := c.tracer.Start(ctx, "registration.index_upsert")
	defer span.End()

	projection := index.EvidenceProjection{
		EvidenceID:   record.EvidenceID,
		ContentID:    record.ContentID,
		OriginalName: record.OriginalName,
		MimeType:     record.MimeType,
		DisplayName:  record.DisplayName,
		Description:  record.Description,
		Owner:        record.Owner,
		RegisteredAt: record.RegisteredAt,
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if err := c.store.UpsertEvidence(callCtx, projection); err != nil {
		span.RecordError(err)
		c.logger.WarnContext(ctx, "inline projection upsert failed, queueing retry",
			"evidence_id", record.EvidenceID, "error", err)
		c.retry.Enqueue(projection)
	}
}

// awaitPrior polls for the mapping a concurrent holder is about to record.
func (c *Coordinator) awaitPrior(ctx context.Context, fingerprint, owner string) (ledger.Record, error) {
	for attempt := 0; attempt < gatePollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ledger.Record{}, ctx.Err()
		case <-time.After(gatePollInterval):
		}
		record, err := c.priorResult(ctx, fingerprint, owner)
		if err == nil {
			c.metrics.DuplicateSubmissions.Inc()
			return record, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return ledger.Record{}, dErrors.New(dErrors.CodeUnavailable, "idempotency ledger unavailable")
		}
	}
	return ledger.Record{}, dErrors.New(dErrors.CodeConflict, "registration already in progress for this submission")
}

func (c *Coordinator) priorResult(ctx context.Context, fingerprint, owner string) (ledger.Record, error) {
	evidenceID, err := c.idempotency.Find(ctx, fingerprint)
	if err != nil {
		return ledger.Record{}, err
	}
	record, err := c.ledger.Get(ctx, evidenceID, owner)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("read prior registration %d: %w", evidenceID, err)
	}
	return record, nil
}

func (c *Coordinator) releaseGate(ctx context.Context, fingerprint string) {
	if err := c.idempotency.Release(ctx, fingerprint); err != nil {
		c.logger.WarnContext(ctx, "failed to release registration gate", "error", err)
	}
}

func (c *Coordinator) publishRegistered(ctx context.Context, record ledger.Record) {
	err := c.events.Publish(ctx, events.Envelope{
		Kind:       events.KindRegistered,
		EvidenceID: record.EvidenceID,
		Owner:      record.Owner,
		OccurredAt: record.RegisteredAt,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to publish registration event",
			"evidence_id", record.EvidenceID, "error", err)
	}
}

func validateSubmission(submission Submission) error {
	switch {
	case len(submission.Content) == 0:
		return dErrors.New(dErrors.CodeBadRequest, "content is required")
	case submission.Owner == "":
		return dErrors.New(dErrors.CodeBadRequest, "owner is required")
	case submission.DisplayName == "":
		return dErrors.New(dErrors.CodeBadRequest, "display name is required")
	case submission.OriginalName == "":
		return dErrors.New(dErrors.CodeBadRequest, "original file name is required")
	}
	return nil
}
