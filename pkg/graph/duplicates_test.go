package graph

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kone-m/karite/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestDuplicateService_ClusterWithoutGraph(t *testing.T) {
	ctx := context.Background()

	t.Run("NilService", func(t *testing.T) {
		var service *DuplicateService

		ids, err := service.Cluster(ctx, "rec-1")
		require.Error(t, err)
		assert.Nil(t, ids)
	})

	t.Run("NilClient", func(t *testing.T) {
		service := NewDuplicateService(nil, noopLogger())

		ids, err := service.Cluster(ctx, "rec-1")
		require.Error(t, err)
		assert.Nil(t, ids)
	})
}

func TestDuplicateService_ProjectDecisionWithoutGraph(t *testing.T) {
	ctx := context.Background()
	candidate := &models.DuplicateCandidate{
		ID:         "cand-1",
		RecordID1:  "rec-1",
		RecordID2:  "rec-2",
		ClientType: models.ClientTypeIndividual,
		Status:     models.CandidateStatusConfirmed,
	}
	decision := &models.ReviewDecision{
		CandidateID:  "cand-1",
		ReviewerID:   "agent-007",
		DecisionType: models.DecisionTypeConfirm,
	}

	assert.NotPanics(t, func() {
		var service *DuplicateService
		service.ProjectDecision(ctx, candidate, decision)
	})

	assert.NotPanics(t, func() {
		NewDuplicateService(nil, noopLogger()).ProjectDecision(ctx, candidate, decision)
	})
}
