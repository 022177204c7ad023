// Package access resolves read/grant/revoke requests against the ledger. The
// ledger is the sole source of truth for every decision; the local cache only
// bounds latency, with its TTL capping the staleness window.
package access

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"custodia/internal/events"
	"custodia/internal/ledger"
	"custodia/internal/platform/metrics"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

// enumerationConcurrency bounds parallel per-id ledger reads during
// accessible-evidence listing.
const enumerationConcurrency = 4

// Reconciler answers access questions and applies access mutations.
type Reconciler struct {
	ledger  ledger.Client
	cache   Cache
	events  events.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewReconciler(ledgerClient ledger.Client, cache Cache, publisher events.Publisher, logger *slog.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		ledger:  ledgerClient,
		cache:   cache,
		events:  publisher,
		logger:  logger,
		metrics: m,
	}
}

// CanRead reports whether principal may read the evidence item. Decisions are
// cached with a short TTL; any failure to resolve against the ledger is a
// denial, never an ambiguous success.
func (r *Reconciler) CanRead(ctx context.Context, evidenceID int64, principal string) (bool, error) {
	if evidenceID <= 0 || principal == "" {
		return false, dErrors.New(dErrors.CodeBadRequest, "evidence id and principal are required")
	}

	allowed, err := r.cache.Find(ctx, evidenceID, principal)
	if err == nil {
		r.metrics.AccessCacheHits.Inc()
		return allowed, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		// Cache trouble must not widen access; resolve against the ledger.
		r.logger.WarnContext(ctx, "access cache lookup failed", "error", err)
	}
	r.metrics.AccessCacheMisses.Inc()

	_, err = r.ledger.Get(ctx, evidenceID, principal)
	switch {
	case err == nil:
		allowed = true
	case errors.Is(err, sentinel.ErrAccessDenied):
		allowed = false
	case errors.Is(err, sentinel.ErrNotFound):
		return false, dErrors.New(dErrors.CodeNotFound, "evidence not found")
	default:
		// Fail closed.
		return false, dErrors.New(dErrors.CodeUnavailable, "ledger unavailable")
	}

	if err := r.cache.Save(ctx, evidenceID, principal, allowed); err != nil {
		r.logger.WarnContext(ctx, "failed to cache access decision", "error", err)
	}
	return allowed, nil
}

// Grant gives grantee read access. The ownership pre-check here is a fast
// path; the ledger re-checks it authoritatively.
func (r *Reconciler) Grant(ctx context.Context, evidenceID int64, owner, grantee string) error {
	if err := validateMutation(evidenceID, owner, grantee); err != nil {
		return err
	}
	if err := r.checkOwnership(ctx, evidenceID, owner); err != nil {
		return err
	}
	if err := r.ledger.Grant(ctx, evidenceID, owner, grantee); err != nil {
		return translateMutationErr(err)
	}
	r.afterMutation(ctx, events.KindGranted, evidenceID, owner, grantee)
	return nil
}

// Revoke removes grantee's read access. Revoking a never-granted principal is
// a no-op success.
func (r *Reconciler) Revoke(ctx context.Context, evidenceID int64, owner, target string) error {
	if err := validateMutation(evidenceID, owner, target); err != nil {
		return err
	}
	if err := r.checkOwnership(ctx, evidenceID, owner); err != nil {
		return err
	}
	if err := r.ledger.Revoke(ctx, evidenceID, owner, target); err != nil {
		return translateMutationErr(err)
	}
	r.afterMutation(ctx, events.KindRevoked, evidenceID, owner, target)
	return nil
}

// AccessibleEvidence lists the records principal can read right now. The
// listing is best-effort and point-in-time, not a snapshot: items that fail
// authorization between the id listing and the per-id fetch are silently
// excluded.
func (r *Reconciler) AccessibleEvidence(ctx context.Context, principal string) ([]ledger.Record, error) {
	if principal == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "principal is required")
	}

	ids, err := r.ledger.AccessibleIDs(ctx, principal)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "ledger unavailable")
	}

	var (
		mu      sync.Mutex
		records []ledger.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enumerationConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			record, err := r.ledger.Get(gctx, id, principal)
			if err != nil {
				// Revoked or removed mid-enumeration; skip.
				return nil
			}
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(records, func(i, j int) bool { return records[i].EvidenceID < records[j].EvidenceID })
	return records, nil
}

// Get fetches one record as the given principal, access-checked by the ledger.
func (r *Reconciler) Get(ctx context.Context, evidenceID int64, principal string) (ledger.Record, error) {
	if evidenceID <= 0 || principal == "" {
		return ledger.Record{}, dErrors.New(dErrors.CodeBadRequest, "evidence id and principal are required")
	}
	record, err := r.ledger.Get(ctx, evidenceID, principal)
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, sentinel.ErrAccessDenied):
		return ledger.Record{}, dErrors.New(dErrors.CodeAccessDenied, "access denied")
	case errors.Is(err, sentinel.ErrNotFound):
		return ledger.Record{}, dErrors.New(dErrors.CodeNotFound, "evidence not found")
	default:
		return ledger.Record{}, dErrors.New(dErrors.CodeUnavailable, "ledger unavailable")
	}
}

// AllEvidence scans every registered item and returns the subset readable by
// the viewer. Per-id denials are skipped; the scan is best-effort.
func (r *Reconciler) AllEvidence(ctx context.Context, viewer string) ([]ledger.Record, error) {
	if viewer == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "viewer is required")
	}
	count, err := r.ledger.Count(ctx)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "ledger unavailable")
	}

	var (
		mu      sync.Mutex
		records []ledger.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enumerationConcurrency)
	for id := int64(1); id <= count; id++ {
		g.Go(func() error {
			record, err := r.ledger.Get(gctx, id, viewer)
			if err != nil {
				return nil
			}
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(records, func(i, j int) bool { return records[i].EvidenceID < records[j].EvidenceID })
	return records, nil
}

// EventLog returns the ledger event history for one evidence item.
func (r *Reconciler) EventLog(ctx context.Context, evidenceID int64) ([]ledger.Event, error) {
	if evidenceID <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "evidence id is required")
	}
	log, err := r.ledger.EventLog(ctx, evidenceID)
	switch {
	case err == nil:
		return log, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.New(dErrors.CodeNotFound, "no events for this evidence")
	default:
		return nil, dErrors.New(dErrors.CodeUnavailable, "ledger unavailable")
	}
}

// Role returns the principal's ledger role.
func (r *Reconciler) Role(ctx context.Context, principal string) (ledger.Role, error) {
	if principal == "" {
		return ledger.RoleNone, dErrors.New(dErrors.CodeBadRequest, "principal is required")
	}
	role, err := r.ledger.Role(ctx, principal)
	if err != nil {
		return ledger.RoleNone, dErrors.New(dErrors.CodeUnavailable, "ledger unavailable")
	}
	return role, nil
}

// AssignRole sets a principal's role; the ledger enforces that only admins may
// assign.
func (r *Reconciler) AssignRole(ctx context.Context, admin, principal string, role ledger.Role) error {
	if admin == "" || principal == "" {
		return dErrors.New(dErrors.CodeBadRequest, "admin and principal are required")
	}
	if !role.Valid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid role")
	}
	err := r.ledger.AssignRole(ctx, admin, principal, role)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrAccessDenied):
		return dErrors.New(dErrors.CodeAccessDenied, "only admins may assign roles")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeBadRequest, "invalid role")
	default:
		return dErrors.New(dErrors.CodeOperationFailed, "role assignment failed")
	}
}

func (r *Reconciler) checkOwnership(ctx context.Context, evidenceID int64, owner string) error {
	record, err := r.ledger.Get(ctx, evidenceID, owner)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "evidence not found")
	case errors.Is(err, sentinel.ErrAccessDenied):
		return dErrors.New(dErrors.CodeAccessDenied, "caller is not the evidence owner")
	case err != nil:
		return dErrors.New(dErrors.CodeUnavailable, "ledger unavailable")
	case record.Owner != owner:
		return dErrors.New(dErrors.CodeAccessDenied, "caller is not the evidence owner")
	}
	return nil
}

// afterMutation invalidates cached decisions for the item and emits the
// mutation event; both are freshness optimizations and never fail the call.
func (r *Reconciler) afterMutation(ctx context.Context, kind events.Kind, evidenceID int64, owner, principal string) {
	if err := r.cache.Invalidate(ctx, evidenceID); err != nil {
		r.logger.WarnContext(ctx, "failed to invalidate access cache",
			"evidence_id", evidenceID, "error", err)
	}
	r.metrics.AccessCacheInvalidations.Inc()

	if err := r.events.Publish(ctx, events.Envelope{
		Kind:       kind,
		EvidenceID: evidenceID,
		Owner:      owner,
		Principal:  principal,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		r.logger.WarnContext(ctx, "failed to publish access event",
			"kind", kind, "evidence_id", evidenceID, "error", err)
	}
}

func validateMutation(evidenceID int64, owner, principal string) error {
	if evidenceID <= 0 || owner == "" || principal == "" {
		return dErrors.New(dErrors.CodeBadRequest, "evidence id, owner, and principal are required")
	}
	return nil
}

func translateMutationErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrAccessDenied):
		return dErrors.New(dErrors.CodeAccessDenied, "ledger refused the mutation")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "evidence not found")
	default:
		return dErrors.New(dErrors.CodeOperationFailed, "ledger mutation failed")
	}
}
