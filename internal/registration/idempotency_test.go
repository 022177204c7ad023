package registration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/pkg/platform/sentinel"
)

type MemoryIdempotencySuite struct {
	suite.Suite
	ledger *MemoryIdempotency
	ctx    context.Context
}

func (s *MemoryIdempotencySuite) SetupTest() {
	s.ledger = NewMemoryIdempotency(time.Minute)
	s.ctx = context.Background()
}

func TestMemoryIdempotencySuite(t *testing.T) {
	suite.Run(t, new(MemoryIdempotencySuite))
}

func (s *MemoryIdempotencySuite) TestFindUnknownFingerprint() {
	_, err := s.ledger.Find(s.ctx, "fp")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryIdempotencySuite) TestRecordThenFind() {
	s.Require().NoError(s.ledger.Record(s.ctx, "fp", 7))
	id, err := s.ledger.Find(s.ctx, "fp")
	s.Require().NoError(err)
	s.Equal(int64(7), id)
}

func (s *MemoryIdempotencySuite) TestGateExcludesConcurrentHolders() {
	acquired, err := s.ledger.Acquire(s.ctx, "fp")
	s.Require().NoError(err)
	s.True(acquired)

	again, err := s.ledger.Acquire(s.ctx, "fp")
	s.Require().NoError(err)
	s.False(again)

	// An in-flight gate is not a committed mapping.
	_, err = s.ledger.Find(s.ctx, "fp")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryIdempotencySuite) TestReleaseFreesGate() {
	acquired, err := s.ledger.Acquire(s.ctx, "fp")
	s.Require().NoError(err)
	s.True(acquired)

	s.Require().NoError(s.ledger.Release(s.ctx, "fp"))

	acquired, err = s.ledger.Acquire(s.ctx, "fp")
	s.Require().NoError(err)
	s.True(acquired)
}

func (s *MemoryIdempotencySuite) TestRecordFreesGateAndCommits() {
	acquired, err := s.ledger.Acquire(s.ctx, "fp")
	s.Require().NoError(err)
	s.True(acquired)

	s.Require().NoError(s.ledger.Record(s.ctx, "fp", 3))

	id, err := s.ledger.Find(s.ctx, "fp")
	s.Require().NoError(err)
	s.Equal(int64(3), id)

	// A committed mapping blocks new registrations for the TTL window.
	acquired, err = s.ledger.Acquire(s.ctx, "fp")
	s.Require().NoError(err)
	s.False(acquired)
}

func (s *MemoryIdempotencySuite) TestExpiry() {
	short := NewMemoryIdempotency(10 * time.Millisecond)
	s.Require().NoError(short.Record(s.ctx, "fp", 3))

	time.Sleep(20 * time.Millisecond)

	_, err := short.Find(s.ctx, "fp")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	acquired, err := short.Acquire(s.ctx, "fp")
	s.Require().NoError(err)
	s.True(acquired)
}

func (s *MemoryIdempotencySuite) TestExpiredMappingsEvictedOnRead() {
	short := NewMemoryIdempotency(10 * time.Millisecond)
	s.Require().NoError(short.Record(s.ctx, "fp", 3))

	time.Sleep(20 * time.Millisecond)

	_, err := short.Find(s.ctx, "fp")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	short.mu.Lock()
	defer short.mu.Unlock()
	s.Empty(short.entries)
}
