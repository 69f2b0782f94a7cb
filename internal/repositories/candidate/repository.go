// Package candidate persists duplicate candidates and their review
// decisions. The unique index on (client_type, record_id_1,
// record_id_2) is the authoritative backstop for the one-candidate-
// per-pair invariant; the status guard on update enforces at-most-one
// decision.
package candidate

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/kone-m/karite/pkg/database"
	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/tracing"
)

// Repository handles duplicate candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const allColumns = `id, record_id_1, record_id_2, client_type, agency_code, overall_score,
	matching_fields, status, run_id, created_at, updated_at`

const decisionColumns = `id, candidate_id, reviewer_id, decision_type, comments, surviving_record_id, decided_at`

// Filter narrows List and Count results. Zero values mean "any".
type Filter struct {
	ClientType models.ClientType
	Status     string
	MinScore   int
	MaxScore   int
	Limit      int
	Offset     int
}

// Create inserts a pending candidate. Returns false without error when
// the pair already has a candidate, so re-runs are idempotent.
func (r *Repository) Create(ctx context.Context, candidate *models.DuplicateCandidate) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	candidate.RecordID1, candidate.RecordID2 = models.OrderPair(candidate.RecordID1, candidate.RecordID2)
	candidate.Status = models.CandidateStatusPending
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	query := `
		INSERT INTO duplicate_candidates (
			id, record_id_1, record_id_2, client_type, agency_code, overall_score,
			matching_fields, status, run_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (client_type, record_id_1, record_id_2) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		candidate.ID, candidate.RecordID1, candidate.RecordID2, candidate.ClientType, candidate.AgencyCode,
		candidate.OverallScore, candidate.MatchingFields, candidate.Status, candidate.RunID,
		candidate.CreatedAt, candidate.UpdatedAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_id_1": candidate.RecordID1,
			"record_id_2": candidate.RecordID2,
		}).Error("Failed to create duplicate candidate")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create duplicate candidate")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// Get retrieves a candidate by ID with its decisions. Returns nil when
// not found.
func (r *Repository) Get(ctx context.Context, id string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(allColumns)
	sb.From("duplicate_candidates")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var candidate models.DuplicateCandidate
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get duplicate candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate candidate")
	}

	decisions, err := r.decisions(ctx, id)
	if err != nil {
		return nil, err
	}
	candidate.Decisions = decisions

	return &candidate, nil
}

// GetByPair retrieves the candidate covering an unordered record pair,
// regardless of status. Returns nil when the pair has never been
// surfaced.
func (r *Repository) GetByPair(ctx context.Context, clientType models.ClientType, recordIDA, recordIDB string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetByPair")
	defer span.End()

	id1, id2 := models.OrderPair(recordIDA, recordIDB)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(allColumns)
	sb.From("duplicate_candidates")
	sb.Where(
		sb.Equal("client_type", clientType),
		sb.Equal("record_id_1", id1),
		sb.Equal("record_id_2", id2),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var candidate models.DuplicateCandidate
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get candidate by pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get candidate by pair")
	}

	return &candidate, nil
}

// PairKeys returns the set of record pairs already covered by a
// candidate of any status, keyed "id1|id2" with ids in canonical
// order. Detection uses it to skip already-surfaced pairs.
func (r *Repository) PairKeys(ctx context.Context, clientType models.ClientType) (map[string]struct{}, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.PairKeys")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("record_id_1", "record_id_2")
	sb.From("duplicate_candidates")
	sb.Where(sb.Equal("client_type", clientType))

	query, args := sb.Build()
	var pairs []struct {
		RecordID1 string `db:"record_id_1"`
		RecordID2 string `db:"record_id_2"`
	}
	if err := r.db.SelectContext(ctx, &pairs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load candidate pair keys")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load candidate pairs")
	}

	keys := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		keys[p.RecordID1+"|"+p.RecordID2] = struct{}{}
	}
	return keys, nil
}

// List returns candidates matching the filter, newest first, plus the
// total count ignoring limit/offset.
func (r *Repository) List(ctx context.Context, filter Filter) ([]models.DuplicateCandidate, int, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(allColumns)
	sb.From("duplicate_candidates")
	applyFilter(sb, filter)
	sb.OrderBy("overall_score DESC", "created_at DESC")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}

	query, args := sb.Build()
	var candidates []models.DuplicateCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list duplicate candidates")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate candidates")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("duplicate_candidates")
	applyFilter(cb, filter)

	query, args = cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count duplicate candidates")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count duplicate candidates")
	}

	return candidates, total, nil
}

func applyFilter(sb *sqlbuilder.SelectBuilder, filter Filter) {
	where := []string{}
	if filter.ClientType != "" {
		where = append(where, sb.Equal("client_type", filter.ClientType))
	}
	if filter.Status != "" {
		where = append(where, sb.Equal("status", filter.Status))
	}
	if filter.MinScore > 0 {
		where = append(where, sb.GreaterEqualThan("overall_score", filter.MinScore))
	}
	if filter.MaxScore > 0 {
		where = append(where, sb.LessEqualThan("overall_score", filter.MaxScore))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
}

// Stats aggregates candidate counts by status plus the high confidence
// count (score at or above the high boundary).
func (r *Repository) Stats(ctx context.Context) (*models.CandidateStats, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Stats")
	defer span.End()

	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'confirmed') AS confirmed,
			COUNT(*) FILTER (WHERE status = 'rejected') AS rejected,
			COUNT(*) FILTER (WHERE status = 'merged') AS merged,
			COUNT(*) FILTER (WHERE status = 'pending' AND overall_score >= $1) AS high_confidence
		FROM duplicate_candidates
	`

	var stats models.CandidateStats
	if err := r.db.GetContext(ctx, &stats, query, models.ConfidenceHighMin); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to aggregate candidate stats")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate candidate stats")
	}

	return &stats, nil
}

// TransitionStatus atomically moves a pending candidate to a terminal
// status and records the decision in the same transaction. Returns
// false without error when the candidate is no longer pending, leaving
// it untouched.
func (r *Repository) TransitionStatus(ctx context.Context, candidateID, newStatus string, decision *models.ReviewDecision) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.TransitionStatus")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": candidateID,
		"new_status":   newStatus,
	})

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE duplicate_candidates
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, newStatus, now, candidateID, models.CandidateStatusPending)
	if err != nil {
		log.WithError(err).Error("Failed to transition candidate status")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to transition candidate status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	decision.CandidateID = candidateID
	decision.DecidedAt = now

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO review_decisions (id, candidate_id, reviewer_id, decision_type, comments, surviving_record_id, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, decision.ID, decision.CandidateID, decision.ReviewerID, decision.DecisionType, decision.Comments, decision.SurvivingRecordID, decision.DecidedAt); err != nil {
		log.WithError(err).Error("Failed to record review decision")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to record review decision")
	}

	if err := tx.Commit(ctx); err != nil {
		log.WithError(err).Error("Failed to commit decision transaction")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit decision")
	}

	log.Info("Candidate decided")
	return true, nil
}

func (r *Repository) decisions(ctx context.Context, candidateID string) ([]models.ReviewDecision, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(decisionColumns)
	sb.From("review_decisions")
	sb.Where(sb.Equal("candidate_id", candidateID))
	sb.OrderBy("decided_at ASC")

	query, args := sb.Build()
	decisions := []models.ReviewDecision{}
	if err := r.db.SelectContext(ctx, &decisions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidateID}).Error("Failed to load review decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load review decisions")
	}
	return decisions, nil
}
