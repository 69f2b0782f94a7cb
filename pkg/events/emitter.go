// Package events emits deduplication lifecycle events. Emission is
// best-effort: a Kafka failure is logged, never propagated into the
// detection or review flow.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/kone-m/karite/pkg/kafka"
	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/tracing"
)

// Emitter publishes candidate and run lifecycle events
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter. A nil producer disables
// emission entirely.
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitCandidateDetected emits candidate.detected for a freshly
// generated pending candidate
func (e *Emitter) EmitCandidateDetected(ctx context.Context, candidate *models.DuplicateCandidate) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCandidateDetected")
	defer span.End()

	e.publish(ctx, candidate, "candidate.detected", nil)
}

// EmitCandidateDecided emits candidate.confirmed, candidate.rejected
// or candidate.merged depending on the decision
func (e *Emitter) EmitCandidateDecided(ctx context.Context, candidate *models.DuplicateCandidate, decision *models.ReviewDecision) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCandidateDecided")
	defer span.End()

	e.publish(ctx, candidate, "candidate."+candidate.Status, decision)
}

// EmitRunFinished emits detection.completed or detection.aborted
func (e *Emitter) EmitRunFinished(ctx context.Context, run *models.DetectionRun) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunFinished")
	defer span.End()

	if e == nil || e.producer == nil {
		return
	}

	eventType := "detection.completed"
	if run.Status == models.RunStatusAborted {
		eventType = "detection.aborted"
	}

	event := &kafka.RunEvent{
		EventType:  eventType,
		RunID:      run.ID,
		ClientType: string(run.ClientType),
		Processed:  run.Processed,
		Detected:   run.Detected,
		Skipped:    run.Skipped,
	}

	if err := e.producer.PublishRunEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id": run.ID,
		}).Error("Failed to emit run event")
	}
}

func (e *Emitter) publish(ctx context.Context, candidate *models.DuplicateCandidate, eventType string, decision *models.ReviewDecision) {
	if e == nil || e.producer == nil {
		return
	}

	event := &kafka.CandidateEvent{
		EventType:      eventType,
		CandidateID:    candidate.ID,
		RecordID1:      candidate.RecordID1,
		RecordID2:      candidate.RecordID2,
		ClientType:     string(candidate.ClientType),
		OverallScore:   candidate.OverallScore,
		Confidence:     string(candidate.Confidence()),
		RunID:          candidate.RunID,
		MatchingFields: candidate.MatchingFields.Data,
	}
	if decision != nil {
		event.ReviewerID = decision.ReviewerID
		if decision.SurvivingRecordID != nil {
			event.SurvivingID = *decision.SurvivingRecordID
		}
	}

	if err := e.producer.PublishCandidateEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"candidate_id": candidate.ID,
			"event_type":   eventType,
		}).Error("Failed to emit candidate event")
	}
}
