// Package events carries ledger mutation notifications between the gateway's
// write paths and the off-chain sync consumer. The stream is strictly a
// freshness optimization: the index and cache can always be rebuilt from the
// ledger, so publishing is best-effort and consumers tolerate duplicates.
package events

import (
	"context"
	"time"
)

// Kind tags a ledger mutation.
type Kind string

const (
	KindRegistered Kind = "evidence.registered"
	KindGranted    Kind = "access.granted"
	KindRevoked    Kind = "access.revoked"
)

// Envelope is the wire shape of one mutation notification.
type Envelope struct {
	Kind       Kind      `json:"kind"`
	EvidenceID int64     `json:"evidenceId"`
	Owner      string    `json:"owner,omitempty"`
	Principal  string    `json:"principal,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher emits mutation notifications.
type Publisher interface {
	Publish(ctx context.Context, envelope Envelope) error
}

// Nop discards events; used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }
