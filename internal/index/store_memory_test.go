package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) newProjection(evidenceID int64, owner string) EvidenceProjection {
	return EvidenceProjection{
		EvidenceID:   evidenceID,
		ContentID:    "bafy-test",
		OriginalName: "report.pdf",
		MimeType:     "application/pdf",
		DisplayName:  "Report",
		Owner:        owner,
		RegisteredAt: time.Now().UTC(),
	}
}

func (s *InMemoryStoreSuite) TestUpsertPreservesLinksAndBumpsVersion() {
	projection := s.newProjection(1, "alice")
	s.Require().NoError(s.store.UpsertEvidence(s.ctx, projection))
	s.Require().NoError(s.store.SaveCase(s.ctx, Case{CaseID: "c1", Title: "Case", Owner: "alice"}))
	s.Require().NoError(s.store.AddCaseIDToEvidence(s.ctx, 1, "c1"))

	// Replay of the registration event must not wipe the back-references.
	projection.DisplayName = "Report v2"
	s.Require().NoError(s.store.UpsertEvidence(s.ctx, projection))

	got, err := s.store.FindEvidence(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("Report v2", got.DisplayName)
	s.Equal([]string{"c1"}, got.CaseIDs)
	s.Equal(2, got.Version)
}

func (s *InMemoryStoreSuite) TestFindEvidenceNotFound() {
	_, err := s.store.FindEvidence(s.ctx, 404)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestListEvidenceByOwnerSorted() {
	s.Require().NoError(s.store.UpsertEvidence(s.ctx, s.newProjection(2, "alice")))
	s.Require().NoError(s.store.UpsertEvidence(s.ctx, s.newProjection(1, "alice")))
	s.Require().NoError(s.store.UpsertEvidence(s.ctx, s.newProjection(3, "bob")))

	list, err := s.store.ListEvidenceByOwner(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(int64(1), list[0].EvidenceID)
	s.Equal(int64(2), list[1].EvidenceID)
}

func (s *InMemoryStoreSuite) TestLinkOperationsAreIdempotent() {
	s.Require().NoError(s.store.UpsertEvidence(s.ctx, s.newProjection(1, "alice")))
	s.Require().NoError(s.store.SaveCase(s.ctx, Case{CaseID: "c1", Title: "Case", Owner: "alice"}))

	s.Require().NoError(s.store.AddEvidenceIDToCase(s.ctx, "c1", 1))
	s.Require().NoError(s.store.AddEvidenceIDToCase(s.ctx, "c1", 1))
	s.Require().NoError(s.store.AddCaseIDToEvidence(s.ctx, 1, "c1"))
	s.Require().NoError(s.store.AddCaseIDToEvidence(s.ctx, 1, "c1"))

	c, err := s.store.FindCase(s.ctx, "c1")
	s.Require().NoError(err)
	s.Equal([]int64{1}, c.EvidenceIDs)

	projection, err := s.store.FindEvidence(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal([]string{"c1"}, projection.CaseIDs)
}

func (s *InMemoryStoreSuite) TestLinkTargetsMustExist() {
	s.Require().ErrorIs(s.store.AddEvidenceIDToCase(s.ctx, "ghost", 1), sentinel.ErrNotFound)
	s.Require().ErrorIs(s.store.AddCaseIDToEvidence(s.ctx, 1, "ghost"), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestDeletes() {
	s.Require().NoError(s.store.UpsertEvidence(s.ctx, s.newProjection(1, "alice")))
	s.Require().NoError(s.store.DeleteEvidence(s.ctx, 1))
	s.Require().ErrorIs(s.store.DeleteEvidence(s.ctx, 1), sentinel.ErrNotFound)

	s.Require().NoError(s.store.SaveCase(s.ctx, Case{CaseID: "c1", Owner: "alice"}))
	s.Require().NoError(s.store.DeleteCase(s.ctx, "c1"))
	s.Require().ErrorIs(s.store.DeleteCase(s.ctx, "c1"), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestReturnedSlicesAreCopies() {
	s.Require().NoError(s.store.UpsertEvidence(s.ctx, s.newProjection(1, "alice")))
	s.Require().NoError(s.store.SaveCase(s.ctx, Case{CaseID: "c1", Owner: "alice"}))
	s.Require().NoError(s.store.AddCaseIDToEvidence(s.ctx, 1, "c1"))

	got, err := s.store.FindEvidence(s.ctx, 1)
	s.Require().NoError(err)
	got.CaseIDs[0] = "tampered"

	again, err := s.store.FindEvidence(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal([]string{"c1"}, again.CaseIDs)
}
