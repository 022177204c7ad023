package registration

import (
	"context"
	"sync"
	"time"

	"custodia/pkg/platform/sentinel"
)

// IdempotencyLedger maps submission fingerprints to committed evidence ids
// and doubles as a per-fingerprint mutual-exclusion gate. Entries expire after
// a short TTL; the gate is held from before the first external write until the
// mapping is durably recorded, so concurrent identical submissions converge
// on one evidence id.
type IdempotencyLedger interface {
	// Find returns the evidence id previously recorded for the fingerprint,
	// or sentinel.ErrNotFound.
	Find(ctx context.Context, fingerprint string) (int64, error)
	// Acquire claims the registration gate for the fingerprint. It returns
	// false when another registration currently holds it.
	Acquire(ctx context.Context, fingerprint string) (bool, error)
	// Release frees a gate that did not reach Record.
	Release(ctx context.Context, fingerprint string) error
	// Record stores the fingerprint→id mapping and frees the gate.
	Record(ctx context.Context, fingerprint string, evidenceID int64) error
}

type idempotencyEntry struct {
	evidenceID int64
	inFlight   bool
	storedAt   time.Time
}

// MemoryIdempotency is the in-process idempotency ledger for
// single-instance deployments and tests. Expired entries are evicted on read
// so the map does not grow without bound in a long-lived process.
type MemoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	ttl     time.Duration
}

func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	return &MemoryIdempotency{
		entries: make(map[string]idempotencyEntry),
		ttl:     ttl,
	}
}

func (m *MemoryIdempotency) Find(_ context.Context, fingerprint string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[fingerprint]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	if time.Since(entry.storedAt) >= m.ttl {
		delete(m.entries, fingerprint)
		return 0, sentinel.ErrNotFound
	}
	if entry.inFlight {
		return 0, sentinel.ErrNotFound
	}
	return entry.evidenceID, nil
}

func (m *MemoryIdempotency) Acquire(_ context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[fingerprint]
	if ok && time.Since(entry.storedAt) < m.ttl {
		return false, nil
	}
	m.entries[fingerprint] = idempotencyEntry{inFlight: true, storedAt: time.Now()}
	return true, nil
}

func (m *MemoryIdempotency) Release(_ context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[fingerprint]; ok && entry.inFlight {
		delete(m.entries, fingerprint)
	}
	return nil
}

func (m *MemoryIdempotency) Record(_ context.Context, fingerprint string, evidenceID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[fingerprint] = idempotencyEntry{evidenceID: evidenceID, storedAt: time.Now()}
	return nil
}
