package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"custodia/internal/index"
	"custodia/internal/ledger"
	"custodia/pkg/platform/sentinel"
)

// DecisionCache is the slice of the access-decision cache the syncer needs.
type DecisionCache interface {
	Invalidate(ctx context.Context, evidenceID int64) error
}

// Syncer applies ledger mutation events to the off-chain state. The ledger
// stays the source of truth throughout: a registration event triggers a fresh
// read of the canonical record rather than trusting the event payload, and
// grant/revoke events only invalidate cached decisions.
type Syncer struct {
	ledger ledger.Client
	store  index.Store
	cache  DecisionCache
	logger *slog.Logger
}

func NewSyncer(ledgerClient ledger.Client, store index.Store, cache DecisionCache, logger *slog.Logger) *Syncer {
	return &Syncer{
		ledger: ledgerClient,
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// Apply folds one event into the index and cache. Idempotent: replaying a
// registration upserts the same projection, and invalidation of an absent
// cache entry is a no-op.
func (s *Syncer) Apply(ctx context.Context, envelope Envelope) error {
	switch envelope.Kind {
	case KindRegistered:
		return s.applyRegistered(ctx, envelope)
	case KindGranted, KindRevoked:
		if err := s.cache.Invalidate(ctx, envelope.EvidenceID); err != nil {
			return fmt.Errorf("invalidate cached decisions: %w", err)
		}
		return nil
	default:
		s.logger.Warn("ignoring unknown event kind", "kind", envelope.Kind)
		return nil
	}
}

func (s *Syncer) applyRegistered(ctx context.Context, envelope Envelope) error {
	record, err := s.ledger.Get(ctx, envelope.EvidenceID, envelope.Owner)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Event outran ledger finality or the owner in the event is
			// stale; the next replay converges.
			s.logger.Warn("registered event for unknown ledger record",
				"evidence_id", envelope.EvidenceID)
			return nil
		}
		return fmt.Errorf("read ledger record: %w", err)
	}
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
	if err := s.store.UpsertEvidence(ctx, projection); err != nil {
		return fmt.Errorf("upsert projection: %w", err)
	}
	return nil
}
