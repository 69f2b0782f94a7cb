// Package detection runs bounded duplicate detection batches over the
// client registry: block by phonetic key, compare pairs within each
// block, persist surviving pairs as pending candidates.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/kone-m/karite/pkg/database"
	"github.com/kone-m/karite/pkg/events"
	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/registry"
	"github.com/kone-m/karite/pkg/scoring"
	"github.com/kone-m/karite/pkg/tracing"
)

const (
	// DefaultWorkerCount is the default number of concurrent block workers
	DefaultWorkerCount = 4

	// DefaultMinScore is the low confidence boundary; pairs scoring
	// under it are never surfaced
	DefaultMinScore = models.ConfidenceMediumMin
)

// CandidateStore is the write side of the candidate repository used
// during a run
type CandidateStore interface {
	Create(ctx context.Context, candidate *models.DuplicateCandidate) (bool, error)
	PairKeys(ctx context.Context, clientType models.ClientType) (map[string]struct{}, error)
}

// RunStore records detection run progress
type RunStore interface {
	Create(ctx context.Context, clientType models.ClientType, minScore int) (*models.DetectionRun, error)
	Finish(ctx context.Context, run *models.DetectionRun) error
}

// Options tune one detection run. Zero values fall back to the engine
// configuration.
type Options struct {
	BatchSize int
	MinScore  int
}

// Config holds engine configuration
type Config struct {
	MaxRecordsPerRun int
	MinScore         int
	WorkerCount      int
	BlockByAgency    bool
}

// Engine generates duplicate candidates
type Engine struct {
	source     registry.Source
	candidates CandidateStore
	runs       RunStore
	comparator *scoring.Comparator
	scorer     *scoring.Scorer
	emitter    *events.Emitter
	logger     ectologger.Logger
	cfg        Config
}

// NewEngine creates a new detection engine
func NewEngine(
	source registry.Source,
	candidates CandidateStore,
	runs RunStore,
	comparator *scoring.Comparator,
	emitter *events.Emitter,
	logger ectologger.Logger,
	cfg Config,
) *Engine {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}

	return &Engine{
		source:     source,
		candidates: candidates,
		runs:       runs,
		comparator: comparator,
		scorer:     scoring.NewScorer(),
		emitter:    emitter,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run executes one bounded detection batch. When the registry becomes
// unreachable mid-fetch the records fetched so far are still scored
// and the run finishes as aborted with partial counts; candidates
// generated before the failure are always kept.
func (e *Engine) Run(ctx context.Context, clientType models.ClientType, opts Options) (*models.DetectionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "detection.Engine.Run")
	defer span.End()

	if !clientType.Valid() {
		return nil, fmt.Errorf("unknown client type %q", clientType)
	}

	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = e.cfg.MinScore
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > e.cfg.MaxRecordsPerRun {
		batchSize = e.cfg.MaxRecordsPerRun
	}

	run, err := e.runs.Create(ctx, clientType, minScore)
	if err != nil {
		return nil, err
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":      run.ID,
		"client_type": clientType,
		"batch_size":  batchSize,
		"min_score":   minScore,
	})
	log.Info("Detection run started")

	fetched, fetchErr := e.source.FetchRecords(ctx, clientType, batchSize)
	if fetched == nil {
		fetched = &registry.FetchResult{}
	}
	if fetchErr != nil && !errors.Is(fetchErr, registry.ErrUnavailable) {
		run.Status = models.RunStatusAborted
		_ = e.runs.Finish(ctx, run)
		return run, fetchErr
	}

	run.Processed = len(fetched.Records)
	run.Skipped = fetched.Skipped

	if len(fetched.Records) > 0 {
		existing, err := e.candidates.PairKeys(ctx, clientType)
		if err != nil {
			run.Status = models.RunStatusAborted
			_ = e.runs.Finish(ctx, run)
			return run, err
		}

		detected, err := e.scoreBlocks(ctx, run, e.partition(clientType, fetched.Records), existing, minScore)
		if err != nil {
			run.Status = models.RunStatusAborted
			_ = e.runs.Finish(ctx, run)
			return run, err
		}
		run.Detected = detected
	}

	run.Status = models.RunStatusCompleted
	if fetchErr != nil {
		run.Status = models.RunStatusAborted
	}

	if err := e.runs.Finish(ctx, run); err != nil {
		return run, err
	}
	e.emitter.EmitRunFinished(ctx, run)

	log.WithFields(map[string]any{
		"processed": run.Processed,
		"detected":  run.Detected,
		"skipped":   run.Skipped,
		"status":    run.Status,
	}).Info("Detection run finished")

	if fetchErr != nil {
		return run, fetchErr
	}
	return run, nil
}

// partition groups records into comparison blocks. Records only ever
// compete against records sharing a block, which bounds the pairwise
// work.
func (e *Engine) partition(clientType models.ClientType, records []*models.ClientRecord) map[string][]*models.ClientRecord {
	nameField := models.BlockingField(clientType)

	blocks := make(map[string][]*models.ClientRecord)
	for _, record := range records {
		name, _ := record.Field(nameField)

		agency := "*"
		if e.cfg.BlockByAgency {
			agency = record.AgencyCode
		}

		key := e.scorer.PhoneticKey(name) + "|" + string(clientType) + "|" + agency
		blocks[key] = append(blocks[key], record)
	}
	return blocks
}

func (e *Engine) scoreBlocks(
	ctx context.Context,
	run *models.DetectionRun,
	blocks map[string][]*models.ClientRecord,
	existing map[string]struct{},
	minScore int,
) (int, error) {
	workerCount := e.cfg.WorkerCount
	if workerCount > len(blocks) {
		workerCount = len(blocks)
	}
	if workerCount < 1 {
		return 0, nil
	}

	blockChan := make(chan []*models.ClientRecord, len(blocks))
	for _, block := range blocks {
		blockChan <- block
	}
	close(blockChan)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		detected int
		firstErr error
	)

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for block := range blockChan {
				count, err := e.scoreBlock(ctx, run, block, existing, minScore)
				mu.Lock()
				detected += count
				if err != nil && firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return detected, firstErr
}

// scoreBlock compares every unordered pair in one block exactly once.
// Pairs already covered by a candidate of any status are skipped, so
// re-runs never resurface reviewed pairs.
func (e *Engine) scoreBlock(
	ctx context.Context,
	run *models.DetectionRun,
	block []*models.ClientRecord,
	existing map[string]struct{},
	minScore int,
) (int, error) {
	detected := 0

	for i := 0; i < len(block); i++ {
		for j := i + 1; j < len(block); j++ {
			record1, record2 := block[i], block[j]
			if record1.ID == record2.ID {
				continue
			}

			id1, id2 := models.OrderPair(record1.ID, record2.ID)
			if _, done := existing[id1+"|"+id2]; done {
				continue
			}

			comparison, ok := e.comparator.Compare(record1, record2)
			if !ok || comparison.OverallScore < minScore {
				continue
			}

			candidate := &models.DuplicateCandidate{
				RecordID1:      id1,
				RecordID2:      id2,
				ClientType:     record1.ClientType,
				AgencyCode:     record1.AgencyCode,
				OverallScore:   comparison.OverallScore,
				MatchingFields: database.JSONB[[]string]{Data: comparison.MatchingFields},
				RunID:          run.ID,
			}

			inserted, err := e.candidates.Create(ctx, candidate)
			if err != nil {
				return detected, err
			}
			if inserted {
				detected++
				e.emitter.EmitCandidateDetected(ctx, candidate)
			}
		}
	}

	return detected, nil
}
