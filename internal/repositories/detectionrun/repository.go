// Package detectionrun persists detection run records and their
// progress counters.
package detectionrun

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

// Repository handles detection run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new detection run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const allColumns = `id, client_type, status, min_score, processed, detected, skipped, started_at, finished_at`

// Create records the start of a run
func (r *Repository) Create(ctx context.Context, clientType models.ClientType, minScore int) (*models.DetectionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "detectionrun.Repository.Create")
	defer span.End()

	run := &models.DetectionRun{
		ID:         uuid.NewString(),
		ClientType: clientType,
		Status:     models.RunStatusRunning,
		MinScore:   minScore,
		StartedAt:  time.Now().UTC(),
	}

	query := `
		INSERT INTO detection_runs (id, client_type, status, min_score, processed, detected, skipped, started_at)
		VALUES ($1, $2, $3, $4, 0, 0, 0, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, run.ID, run.ClientType, run.Status, run.MinScore, run.StartedAt); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create detection run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create detection run")
	}

	return run, nil
}

// Finish stores the final counters and terminal status of a run
func (r *Repository) Finish(ctx context.Context, run *models.DetectionRun) error {
	ctx, span := tracing.StartSpan(ctx, "detectionrun.Repository.Finish")
	defer span.End()

	now := time.Now().UTC()
	run.FinishedAt = &now

	query := `
		UPDATE detection_runs
		SET status = $1, processed = $2, detected = $3, skipped = $4, finished_at = $5
		WHERE id = $6
	`
	if _, err := r.db.ExecContext(ctx, query, run.Status, run.Processed, run.Detected, run.Skipped, run.FinishedAt, run.ID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Failed to finish detection run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish detection run")
	}

	return nil
}

// Get retrieves a run by ID. Returns nil when not found.
func (r *Repository) Get(ctx context.Context, id string) (*models.DetectionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "detectionrun.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(allColumns)
	sb.From("detection_runs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var run models.DetectionRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get detection run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get detection run")
	}

	return &run, nil
}

// List returns recent runs, newest first
func (r *Repository) List(ctx context.Context, limit int) ([]models.DetectionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "detectionrun.Repository.List")
	defer span.End()

	if limit < 1 {
		limit = 20
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(allColumns)
	sb.From("detection_runs")
	sb.OrderBy("started_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	runs := []models.DetectionRun{}
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list detection runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list detection runs")
	}

	return runs, nil
}
