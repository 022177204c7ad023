package ledger

import (
	"context"
	"sync"
	"time"

	"custodia/pkg/platform/sentinel"
)

// Memory is an in-process ledger used in tests and when no ledger node is
// configured. It reproduces the ledger's contract faithfully: monotonic
// identifier assignment, owner-implicit access, idempotent grant/revoke, and
// an append-only event log.
type Memory struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]Record
	grants  map[int64]map[string]bool
	roles   map[string]Role
	events  []Event
}

// NewMemory builds an empty in-memory ledger. Seed admins are granted
// RoleAdmin so role assignment has a root of trust.
func NewMemory(seedAdmins ...string) *Memory {
	m := &Memory{
		nextID:  1,
		records: make(map[int64]Record),
		grants:  make(map[int64]map[string]bool),
		roles:   make(map[string]Role),
	}
	for _, admin := range seedAdmins {
		m.roles[admin] = RoleAdmin
	}
	return m
}

func (m *Memory) Register(_ context.Context, params RegisterParams) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := Record{
		EvidenceID:   m.nextID,
		ContentID:    params.ContentID,
		OriginalName: params.OriginalName,
		MimeType:     params.MimeType,
		DisplayName:  params.DisplayName,
		Description:  params.Description,
		Owner:        params.Owner,
		RegisteredAt: time.Now().UTC(),
	}
	m.records[record.EvidenceID] = record
	m.grants[record.EvidenceID] = make(map[string]bool)
	m.events = append(m.events, Event{
		EvidenceID: record.EvidenceID,
		Kind:       EventRegistered,
		At:         record.RegisteredAt,
	})
	m.nextID++
	return record, nil
}

func (m *Memory) Get(_ context.Context, evidenceID int64, asPrincipal string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[evidenceID]
	if !ok {
		return Record{}, sentinel.ErrNotFound
	}
	if record.Owner != asPrincipal && !m.grants[evidenceID][asPrincipal] {
		return Record{}, sentinel.ErrAccessDenied
	}
	return record, nil
}

func (m *Memory) Grant(_ context.Context, evidenceID int64, owner, grantee string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[evidenceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if record.Owner != owner {
		return sentinel.ErrAccessDenied
	}
	if m.grants[evidenceID][grantee] {
		// Granting an already-granted principal is a no-op success.
		return nil
	}
	m.grants[evidenceID][grantee] = true
	m.events = append(m.events, Event{
		EvidenceID: evidenceID,
		Kind:       EventAccessGranted,
		Principal:  grantee,
		At:         time.Now().UTC(),
	})
	return nil
}

func (m *Memory) Revoke(_ context.Context, evidenceID int64, owner, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[evidenceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if record.Owner != owner {
		return sentinel.ErrAccessDenied
	}
	if !m.grants[evidenceID][target] {
		// Revoking an ungranted principal is a no-op success.
		return nil
	}
	delete(m.grants[evidenceID], target)
	m.events = append(m.events, Event{
		EvidenceID: evidenceID,
		Kind:       EventAccessRevoked,
		Principal:  target,
		At:         time.Now().UTC(),
	})
	return nil
}

func (m *Memory) AccessibleIDs(_ context.Context, principal string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for id := int64(1); id < m.nextID; id++ {
		record, ok := m.records[id]
		if !ok {
			continue
		}
		if record.Owner == principal || m.grants[id][principal] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextID - 1, nil
}

func (m *Memory) EventLog(_ context.Context, evidenceID int64) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.records[evidenceID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	var events []Event
	for _, event := range m.events {
		if event.EvidenceID == evidenceID {
			events = append(events, event)
		}
	}
	return events, nil
}

func (m *Memory) Role(_ context.Context, principal string) (Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roles[principal], nil
}

func (m *Memory) AssignRole(_ context.Context, admin, principal string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !role.Valid() {
		return sentinel.ErrInvalidState
	}
	if m.roles[admin] != RoleAdmin {
		return sentinel.ErrAccessDenied
	}
	m.roles[principal] = role
	return nil
}
