// Package review owns the candidate lifecycle after detection: the
// pending to terminal state machine and the read side serving the
// reviewer UI.
package review

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/kone-m/karite/internal/repositories/candidate"
	"github.com/kone-m/karite/pkg/events"
	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/registry"
	"github.com/kone-m/karite/pkg/tracing"
)

// Store is the candidate persistence surface the review side depends
// on
type Store interface {
	Get(ctx context.Context, id string) (*models.DuplicateCandidate, error)
	List(ctx context.Context, filter candidate.Filter) ([]models.DuplicateCandidate, int, error)
	Stats(ctx context.Context) (*models.CandidateStats, error)
	TransitionStatus(ctx context.Context, candidateID, newStatus string, decision *models.ReviewDecision) (bool, error)
}

// DecisionProjector receives terminal decisions for secondary
// projections (the duplicate graph). Projection is best-effort and
// runs after commit.
type DecisionProjector interface {
	ProjectDecision(ctx context.Context, c *models.DuplicateCandidate, decision *models.ReviewDecision)
}

// DecisionRequest is one reviewer decision on a candidate
type DecisionRequest struct {
	CandidateID       string
	ReviewerID        string
	DecisionType      string
	Comments          string
	SurvivingRecordID *string
}

// Manager applies reviewer decisions to candidates
type Manager struct {
	store     Store
	merger    registry.MergeExecutor
	emitter   *events.Emitter
	projector DecisionProjector
	logger    ectologger.Logger
}

// NewManager creates a new lifecycle manager. The projector may be
// nil.
func NewManager(store Store, merger registry.MergeExecutor, emitter *events.Emitter, projector DecisionProjector, logger ectologger.Logger) *Manager {
	return &Manager{
		store:     store,
		merger:    merger,
		emitter:   emitter,
		projector: projector,
		logger:    logger,
	}
}

// Decide applies one terminal decision to a pending candidate. For
// merges the registry merge runs first and the terminal state commits
// only on its success, so a failed merge leaves the candidate pending
// and retryable. The compare-and-set on status guarantees at most one
// decision ever lands, even under concurrent reviewers.
func (m *Manager) Decide(ctx context.Context, req DecisionRequest) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Manager.Decide")
	defer span.End()

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id":  req.CandidateID,
		"reviewer_id":   req.ReviewerID,
		"decision_type": req.DecisionType,
	})

	newStatus, err := m.validate(req)
	if err != nil {
		return nil, err
	}

	c, err := m.store.Get(ctx, req.CandidateID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCandidateNotFound, req.CandidateID)
	}
	if c.Status != models.CandidateStatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrAlreadyDecided, c.Status)
	}

	if req.DecisionType == models.DecisionTypeMerge {
		if *req.SurvivingRecordID != c.RecordID1 && *req.SurvivingRecordID != c.RecordID2 {
			return nil, fmt.Errorf("%w: surviving record %s is not part of the pair", ErrInvalidDecision, *req.SurvivingRecordID)
		}

		mergedID := c.RecordID1
		if mergedID == *req.SurvivingRecordID {
			mergedID = c.RecordID2
		}

		if err := m.merger.ExecuteMerge(ctx, *req.SurvivingRecordID, mergedID); err != nil {
			log.WithError(err).Error("Registry merge failed, candidate stays pending")
			return nil, fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
	}

	decision := &models.ReviewDecision{
		ReviewerID:        req.ReviewerID,
		DecisionType:      req.DecisionType,
		Comments:          req.Comments,
		SurvivingRecordID: req.SurvivingRecordID,
	}

	applied, err := m.store.TransitionStatus(ctx, c.ID, newStatus, decision)
	if err != nil {
		return nil, err
	}
	if !applied {
		// lost the race against a concurrent reviewer
		return nil, fmt.Errorf("%w: concurrent decision", ErrAlreadyDecided)
	}

	c.Status = newStatus
	c.Decisions = append(c.Decisions, *decision)

	m.emitter.EmitCandidateDecided(ctx, c, decision)
	if m.projector != nil {
		m.projector.ProjectDecision(ctx, c, decision)
	}

	log.Info("Candidate decision applied")
	return c, nil
}

func (m *Manager) validate(req DecisionRequest) (string, error) {
	if req.ReviewerID == "" {
		return "", fmt.Errorf("%w: reviewer id is required", ErrInvalidDecision)
	}

	newStatus, ok := models.StatusForDecision(req.DecisionType)
	if !ok {
		return "", fmt.Errorf("%w: unknown decision type %q", ErrInvalidDecision, req.DecisionType)
	}

	if req.DecisionType == models.DecisionTypeReject && req.Comments == "" {
		return "", fmt.Errorf("%w: rejection requires comments", ErrInvalidDecision)
	}
	if req.DecisionType == models.DecisionTypeMerge && (req.SurvivingRecordID == nil || *req.SurvivingRecordID == "") {
		return "", fmt.Errorf("%w: merge requires a surviving record id", ErrInvalidDecision)
	}

	return newStatus, nil
}
