package review

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kone-m/karite/internal/repositories/candidate"
	"github.com/kone-m/karite/pkg/models"
)

type fakeStore struct {
	candidates map[string]*models.DuplicateCandidate
	transition struct {
		called bool
		deny   bool
	}
}

func newFakeStore(candidates ...*models.DuplicateCandidate) *fakeStore {
	s := &fakeStore{candidates: map[string]*models.DuplicateCandidate{}}
	for _, c := range candidates {
		s.candidates[c.ID] = c
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id string) (*models.DuplicateCandidate, error) {
	return s.candidates[id], nil
}

func (s *fakeStore) List(_ context.Context, _ candidate.Filter) ([]models.DuplicateCandidate, int, error) {
	out := []models.DuplicateCandidate{}
	for _, c := range s.candidates {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (s *fakeStore) Stats(_ context.Context) (*models.CandidateStats, error) {
	return &models.CandidateStats{Total: len(s.candidates)}, nil
}

func (s *fakeStore) TransitionStatus(_ context.Context, id, newStatus string, decision *models.ReviewDecision) (bool, error) {
	s.transition.called = true
	if s.transition.deny {
		return false, nil
	}
	c, ok := s.candidates[id]
	if !ok || c.Status != models.CandidateStatusPending {
		return false, nil
	}
	c.Status = newStatus
	decision.CandidateID = id
	c.Decisions = append(c.Decisions, *decision)
	return true, nil
}

type fakeMerger struct {
	survivingID string
	mergedID    string
	calls       int
	err         error
}

func (m *fakeMerger) ExecuteMerge(_ context.Context, survivingID, mergedID string) error {
	m.calls++
	m.survivingID = survivingID
	m.mergedID = mergedID
	return m.err
}

func pendingCandidate(id string) *models.DuplicateCandidate {
	return &models.DuplicateCandidate{
		ID:           id,
		RecordID1:    "rec-1",
		RecordID2:    "rec-2",
		ClientType:   models.ClientTypeIndividual,
		OverallScore: 94,
		Status:       models.CandidateStatusPending,
	}
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestManager(store Store, merger *fakeMerger) *Manager {
	return NewManager(store, merger, nil, nil, testLogger())
}

func strPtr(s string) *string { return &s }

func TestManager_Decide_Confirm(t *testing.T) {
	c := pendingCandidate("cand-1")
	store := newFakeStore(c)
	manager := newTestManager(store, &fakeMerger{})

	decided, err := manager.Decide(context.Background(), DecisionRequest{
		CandidateID:  "cand-1",
		ReviewerID:   "reviewer-7",
		DecisionType: models.DecisionTypeConfirm,
		Comments:     "same person, visited branch",
	})
	require.NoError(t, err)

	assert.Equal(t, models.CandidateStatusConfirmed, decided.Status)
	require.Len(t, decided.Decisions, 1)
	assert.Equal(t, "reviewer-7", decided.Decisions[0].ReviewerID)
	assert.Equal(t, models.DecisionTypeConfirm, decided.Decisions[0].DecisionType)
}

func TestManager_Decide_SecondDecisionRejected(t *testing.T) {
	c := pendingCandidate("cand-1")
	store := newFakeStore(c)
	manager := newTestManager(store, &fakeMerger{})

	_, err := manager.Decide(context.Background(), DecisionRequest{
		CandidateID: "cand-1", ReviewerID: "reviewer-1", DecisionType: models.DecisionTypeConfirm,
	})
	require.NoError(t, err)

	_, err = manager.Decide(context.Background(), DecisionRequest{
		CandidateID: "cand-1", ReviewerID: "reviewer-2", DecisionType: models.DecisionTypeReject, Comments: "not the same",
	})
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	assert.Equal(t, models.CandidateStatusConfirmed, c.Status, "stored decision must be unchanged")
	assert.Len(t, c.Decisions, 1)
}

func TestManager_Decide_ConcurrentDecisionLosesRace(t *testing.T) {
	c := pendingCandidate("cand-1")
	store := newFakeStore(c)
	store.transition.deny = true
	manager := newTestManager(store, &fakeMerger{})

	_, err := manager.Decide(context.Background(), DecisionRequest{
		CandidateID: "cand-1", ReviewerID: "reviewer-1", DecisionType: models.DecisionTypeConfirm,
	})
	assert.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestManager_Decide_Validation(t *testing.T) {
	store := newFakeStore(pendingCandidate("cand-1"))
	manager := newTestManager(store, &fakeMerger{})

	cases := []struct {
		name string
		req  DecisionRequest
	}{
		{"missing reviewer", DecisionRequest{CandidateID: "cand-1", DecisionType: models.DecisionTypeConfirm}},
		{"unknown decision type", DecisionRequest{CandidateID: "cand-1", ReviewerID: "r", DecisionType: "undo"}},
		{"reject without comments", DecisionRequest{CandidateID: "cand-1", ReviewerID: "r", DecisionType: models.DecisionTypeReject}},
		{"merge without surviving record", DecisionRequest{CandidateID: "cand-1", ReviewerID: "r", DecisionType: models.DecisionTypeMerge}},
		{"merge with outsider surviving record", DecisionRequest{CandidateID: "cand-1", ReviewerID: "r", DecisionType: models.DecisionTypeMerge, SurvivingRecordID: strPtr("rec-9")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := manager.Decide(context.Background(), tc.req)
			assert.ErrorIs(t, err, ErrInvalidDecision)
			assert.False(t, store.transition.called)
		})
	}
}

func TestManager_Decide_NotFound(t *testing.T) {
	manager := newTestManager(newFakeStore(), &fakeMerger{})

	_, err := manager.Decide(context.Background(), DecisionRequest{
		CandidateID: "cand-404", ReviewerID: "r", DecisionType: models.DecisionTypeConfirm,
	})
	assert.ErrorIs(t, err, ErrCandidateNotFound)
}

func TestManager_Decide_Merge(t *testing.T) {
	t.Run("merge calls registry before committing", func(t *testing.T) {
		c := pendingCandidate("cand-1")
		store := newFakeStore(c)
		merger := &fakeMerger{}
		manager := newTestManager(store, merger)

		decided, err := manager.Decide(context.Background(), DecisionRequest{
			CandidateID:       "cand-1",
			ReviewerID:        "reviewer-1",
			DecisionType:      models.DecisionTypeMerge,
			SurvivingRecordID: strPtr("rec-2"),
		})
		require.NoError(t, err)

		assert.Equal(t, models.CandidateStatusMerged, decided.Status)
		assert.Equal(t, 1, merger.calls)
		assert.Equal(t, "rec-2", merger.survivingID)
		assert.Equal(t, "rec-1", merger.mergedID)
	})

	t.Run("failed merge leaves candidate pending", func(t *testing.T) {
		c := pendingCandidate("cand-1")
		store := newFakeStore(c)
		merger := &fakeMerger{err: assert.AnError}
		manager := newTestManager(store, merger)

		_, err := manager.Decide(context.Background(), DecisionRequest{
			CandidateID:       "cand-1",
			ReviewerID:        "reviewer-1",
			DecisionType:      models.DecisionTypeMerge,
			SurvivingRecordID: strPtr("rec-1"),
		})
		assert.ErrorIs(t, err, ErrMergeFailed)
		assert.Equal(t, models.CandidateStatusPending, c.Status)
		assert.False(t, store.transition.called, "terminal state must not commit after a failed merge")

		// retry succeeds once the registry recovers
		merger.err = nil
		decided, err := manager.Decide(context.Background(), DecisionRequest{
			CandidateID:       "cand-1",
			ReviewerID:        "reviewer-1",
			DecisionType:      models.DecisionTypeMerge,
			SurvivingRecordID: strPtr("rec-1"),
		})
		require.NoError(t, err)
		assert.Equal(t, models.CandidateStatusMerged, decided.Status)
	})
}
