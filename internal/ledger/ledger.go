// Package ledger defines the client contract for the append-only evidence
// ledger. The ledger owns the authoritative copy of evidence records, access
// grants, and principal roles; everything else in the gateway is a derived
// view. Responses are modeled as explicit typed results with sentinel errors
// for denied/not-found so callers handle every variant exhaustively.
package ledger

import (
	"context"
	"time"
)

// Role is a ledger-owned principal role.
type Role int

const (
	RoleNone Role = iota
	RoleInvestigator
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleInvestigator:
		return "investigator"
	case RoleAdmin:
		return "admin"
	default:
		return "none"
	}
}

// Valid reports whether r is an assignable role.
func (r Role) Valid() bool {
	return r == RoleInvestigator || r == RoleAdmin
}

// Record is the canonical evidence record. EvidenceID is assigned exactly
// once, by the ledger, and is immutable thereafter.
type Record struct {
	EvidenceID   int64
	ContentID    string
	OriginalName string
	MimeType     string
	DisplayName  string
	Description  string
	Owner        string
	RegisteredAt time.Time
}

// RegisterParams carries the inputs to a ledger registration. The ledger
// assigns the evidence identifier and timestamp.
type RegisterParams struct {
	ContentID    string
	OriginalName string
	MimeType     string
	DisplayName  string
	Description  string
	Owner        string
}

// EventKind tags entries in the ledger's event log.
type EventKind string

const (
	EventRegistered    EventKind = "evidence_registered"
	EventAccessGranted EventKind = "access_granted"
	EventAccessRevoked EventKind = "access_revoked"
)

// Event is one entry of the per-evidence event log.
type Event struct {
	EvidenceID int64
	Kind       EventKind
	// Principal is the affected principal for grant/revoke/role events,
	// empty for registrations.
	Principal string
	At        time.Time
}

// Client invokes ledger operations and waits for finality. Implementations
// return sentinel.ErrAccessDenied, sentinel.ErrNotFound, or
// sentinel.ErrUnavailable (optionally wrapped) for the expected failure modes.
type Client interface {
	// Register appends a new evidence record. Not guaranteed idempotent:
	// callers must not retry blindly.
	Register(ctx context.Context, params RegisterParams) (Record, error)

	// Get fetches a record as the given principal, enforcing read access.
	Get(ctx context.Context, evidenceID int64, asPrincipal string) (Record, error)

	// Grant and Revoke mutate the access relation. Both are idempotent and
	// both re-check that owner actually owns the evidence.
	Grant(ctx context.Context, evidenceID int64, owner, grantee string) error
	Revoke(ctx context.Context, evidenceID int64, owner, target string) error

	// AccessibleIDs lists evidence readable by the principal at this moment.
	AccessibleIDs(ctx context.Context, principal string) ([]int64, error)

	// Count returns the highest assigned evidence identifier.
	Count(ctx context.Context) (int64, error)

	// EventLog returns the event history for one evidence item.
	EventLog(ctx context.Context, evidenceID int64) ([]Event, error)

	// Role returns the principal's role; RoleNone if never assigned.
	Role(ctx context.Context, principal string) (Role, error)

	// AssignRole sets a principal's role. Only admins may assign.
	AssignRole(ctx context.Context, admin, principal string, role Role) error
}
