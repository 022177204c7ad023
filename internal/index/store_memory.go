package index

import (
	"context"
	"slices"
	"sort"
	"sync"

	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps projections in process memory. Used in tests and when
// no Postgres DSN is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	evidence map[int64]EvidenceProjection
	cases    map[string]Case
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		evidence: make(map[int64]EvidenceProjection),
		cases:    make(map[string]Case),
	}
}

func (s *InMemoryStore) UpsertEvidence(_ context.Context, projection EvidenceProjection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.evidence[projection.EvidenceID]; ok {
		// Preserve the back-reference set across upserts; the ledger knows
		// nothing about cases.
		projection.CaseIDs = existing.CaseIDs
		projection.Version = existing.Version + 1
	} else {
		projection.Version = 1
	}
	projection.CaseIDs = slices.Clone(projection.CaseIDs)
	s.evidence[projection.EvidenceID] = projection
	return nil
}

func (s *InMemoryStore) FindEvidence(_ context.Context, evidenceID int64) (EvidenceProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projection, ok := s.evidence[evidenceID]
	if !ok {
		return EvidenceProjection{}, sentinel.ErrNotFound
	}
	projection.CaseIDs = slices.Clone(projection.CaseIDs)
	return projection, nil
}

func (s *InMemoryStore) ListEvidenceByOwner(_ context.Context, owner string) ([]EvidenceProjection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []EvidenceProjection
	for _, projection := range s.evidence {
		if projection.Owner == owner {
			projection.CaseIDs = slices.Clone(projection.CaseIDs)
			out = append(out, projection)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EvidenceID < out[j].EvidenceID })
	return out, nil
}

func (s *InMemoryStore) DeleteEvidence(_ context.Context, evidenceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.evidence[evidenceID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.evidence, evidenceID)
	return nil
}

func (s *InMemoryStore) SaveCase(_ context.Context, c Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.EvidenceIDs = slices.Clone(c.EvidenceIDs)
	s.cases[c.CaseID] = c
	return nil
}

func (s *InMemoryStore) FindCase(_ context.Context, caseID string) (Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[caseID]
	if !ok {
		return Case{}, sentinel.ErrNotFound
	}
	c.EvidenceIDs = slices.Clone(c.EvidenceIDs)
	return c, nil
}

func (s *InMemoryStore) ListCasesByOwner(_ context.Context, owner string) ([]Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Case
	for _, c := range s.cases {
		if c.Owner == owner {
			c.EvidenceIDs = slices.Clone(c.EvidenceIDs)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) DeleteCase(_ context.Context, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cases[caseID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.cases, caseID)
	return nil
}

func (s *InMemoryStore) AddEvidenceIDToCase(_ context.Context, caseID string, evidenceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[caseID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if slices.Contains(c.EvidenceIDs, evidenceID) {
		return nil
	}
	c.EvidenceIDs = append(slices.Clone(c.EvidenceIDs), evidenceID)
	s.cases[caseID] = c
	return nil
}

func (s *InMemoryStore) AddCaseIDToEvidence(_ context.Context, evidenceID int64, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	projection, ok := s.evidence[evidenceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if slices.Contains(projection.CaseIDs, caseID) {
		return nil
	}
	projection.CaseIDs = append(slices.Clone(projection.CaseIDs), caseID)
	s.evidence[evidenceID] = projection
	return nil
}
