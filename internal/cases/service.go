// Package cases maintains the many-to-many grouping of evidence into
// investigative cases. The relation lives only in the index and carries no
// authorization weight, which is what makes lazy symmetry repair tolerable.
package cases

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"custodia/internal/index"
	"custodia/internal/platform/metrics"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

// Linker creates cases and keeps the evidence↔case relation symmetric.
type Linker struct {
	store   index.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewLinker(store index.Store, logger *slog.Logger, m *metrics.Metrics) *Linker {
	return &Linker{store: store, logger: logger, metrics: m}
}

// CreateCase opens a new empty case owned by owner.
func (l *Linker) CreateCase(ctx context.Context, title, description, owner string) (index.Case, error) {
	if title == "" || owner == "" {
		return index.Case{}, dErrors.New(dErrors.CodeBadRequest, "title and owner are required")
	}
	c := index.Case{
		CaseID:      uuid.NewString(),
		Title:       title,
		Description: description,
		Owner:       owner,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.store.SaveCase(ctx, c); err != nil {
		return index.Case{}, dErrors.New(dErrors.CodeUnavailable, "index unavailable")
	}
	return c, nil
}

// GetCase returns one case, repairing any asymmetric links it surfaces.
func (l *Linker) GetCase(ctx context.Context, caseID string) (index.Case, error) {
	if caseID == "" {
		return index.Case{}, dErrors.New(dErrors.CodeBadRequest, "case id is required")
	}
	c, err := l.store.FindCase(ctx, caseID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return index.Case{}, dErrors.New(dErrors.CodeNotFound, "case not found")
	}
	if err != nil {
		return index.Case{}, dErrors.New(dErrors.CodeUnavailable, "index unavailable")
	}
	l.repairCaseLinks(ctx, c)
	return c, nil
}

// CasesForOwner lists the owner's cases.
func (l *Linker) CasesForOwner(ctx context.Context, owner string) ([]index.Case, error) {
	if owner == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner is required")
	}
	list, err := l.store.ListCasesByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "index unavailable")
	}
	return list, nil
}

// EvidenceForOwner lists the owner's evidence projections, repairing any
// dangling case back-references found along the way.
func (l *Linker) EvidenceForOwner(ctx context.Context, owner string) ([]index.EvidenceProjection, error) {
	if owner == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner is required")
	}
	list, err := l.store.ListEvidenceByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "index unavailable")
	}
	for _, projection := range list {
		l.repairEvidenceLinks(ctx, projection)
	}
	return list, nil
}

// LinkEvidenceToCase records membership on both sides. Idempotent: linking an
// already-linked pair succeeds without duplicating the relation. The two
// writes are sequential; a failure between them leaves a transient asymmetry
// that read paths repair lazily.
func (l *Linker) LinkEvidenceToCase(ctx context.Context, evidenceID int64, caseID string) error {
	if evidenceID <= 0 || caseID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "evidence id and case id are required")
	}

	projection, err := l.store.FindEvidence(ctx, evidenceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "evidence not found in index")
	}
	if err != nil {
		return dErrors.New(dErrors.CodeUnavailable, "index unavailable")
	}
	c, err := l.store.FindCase(ctx, caseID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "case not found")
	}
	if err != nil {
		return dErrors.New(dErrors.CodeUnavailable, "index unavailable")
	}

	if slices.Contains(c.EvidenceIDs, evidenceID) && slices.Contains(projection.CaseIDs, caseID) {
		return nil
	}

	if err := l.store.AddEvidenceIDToCase(ctx, caseID, evidenceID); err != nil {
		return dErrors.New(dErrors.CodeOperationFailed, "failed to link evidence to case")
	}
	if err := l.store.AddCaseIDToEvidence(ctx, evidenceID, caseID); err != nil {
		// First write landed; the next read of either side heals this.
		l.logger.WarnContext(ctx, "case link left asymmetric, will repair on read",
			"case_id", caseID, "evidence_id", evidenceID, "error", err)
		return dErrors.New(dErrors.CodeOperationFailed, "failed to link evidence to case")
	}
	l.metrics.CaseLinks.Inc()
	return nil
}

// repairCaseLinks re-adds the back-reference on every member projection that
// lost it. Best-effort: repair failures are logged, never surfaced.
func (l *Linker) repairCaseLinks(ctx context.Context, c index.Case) {
	for _, evidenceID := range c.EvidenceIDs {
		projection, err := l.store.FindEvidence(ctx, evidenceID)
		if err != nil {
			continue
		}
		if slices.Contains(projection.CaseIDs, c.CaseID) {
			continue
		}
		if err := l.store.AddCaseIDToEvidence(ctx, evidenceID, c.CaseID); err != nil {
			l.logger.WarnContext(ctx, "failed to repair case link",
				"case_id", c.CaseID, "evidence_id", evidenceID, "error", err)
			continue
		}
		l.metrics.LinkRepairs.Inc()
		l.logger.InfoContext(ctx, "repaired asymmetric case link",
			"case_id", c.CaseID, "evidence_id", evidenceID)
	}
}

// repairEvidenceLinks mirrors repairCaseLinks from the evidence side.
func (l *Linker) repairEvidenceLinks(ctx context.Context, projection index.EvidenceProjection) {
	for _, caseID := range projection.CaseIDs {
		c, err := l.store.FindCase(ctx, caseID)
		if err != nil {
			continue
		}
		if slices.Contains(c.EvidenceIDs, projection.EvidenceID) {
			continue
		}
		if err := l.store.AddEvidenceIDToCase(ctx, caseID, projection.EvidenceID); err != nil {
			l.logger.WarnContext(ctx, "failed to repair case link",
				"case_id", caseID, "evidence_id", projection.EvidenceID, "error", err)
			continue
		}
		l.metrics.LinkRepairs.Inc()
		l.logger.InfoContext(ctx, "repaired asymmetric case link",
			"case_id", caseID, "evidence_id", projection.EvidenceID)
	}
}
