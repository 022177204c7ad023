// Package index persists the off-chain searchable projections: evidence
// metadata mirrored from the ledger, and the investigative cases grouping it.
// Everything here is a derived view; the index is never consulted for an
// access decision and is rebuildable by replaying ledger events.
package index

import (
	"context"
	"time"
)

// EvidenceProjection mirrors a ledger record plus the back-reference set of
// case identifiers. Version counts upserts, matching the ledger replay depth.
type EvidenceProjection struct {
	EvidenceID   int64
	ContentID    string
	OriginalName string
	MimeType     string
	DisplayName  string
	Description  string
	Owner        string
	Version      int
	CaseIDs      []string
	RegisteredAt time.Time
}

// Case is an index-owned grouping of evidence.
type Case struct {
	CaseID      string
	Title       string
	Description string
	Owner       string
	EvidenceIDs []int64
	CreatedAt   time.Time
}

// Store is the document-store contract consumed by the registration
// coordinator and the case linker. Implementations return sentinel.ErrNotFound
// for unknown identifiers. The two link operations are single-document writes
// and individually idempotent; cross-document symmetry is the case linker's
// concern, not the store's.
type Store interface {
	UpsertEvidence(ctx context.Context, projection EvidenceProjection) error
	FindEvidence(ctx context.Context, evidenceID int64) (EvidenceProjection, error)
	ListEvidenceByOwner(ctx context.Context, owner string) ([]EvidenceProjection, error)
	DeleteEvidence(ctx context.Context, evidenceID int64) error

	SaveCase(ctx context.Context, c Case) error
	FindCase(ctx context.Context, caseID string) (Case, error)
	ListCasesByOwner(ctx context.Context, owner string) ([]Case, error)
	DeleteCase(ctx context.Context, caseID string) error

	// AddEvidenceIDToCase appends evidenceID to the case's membership set if
	// absent; a no-op when already present.
	AddEvidenceIDToCase(ctx context.Context, caseID string, evidenceID int64) error
	// AddCaseIDToEvidence appends caseID to the projection's back-reference
	// set if absent; a no-op when already present.
	AddCaseIDToEvidence(ctx context.Context, evidenceID int64, caseID string) error
}
