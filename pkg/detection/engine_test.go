package detection

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/registry"
	"github.com/kone-m/karite/pkg/scoring"
)

type fakeSource struct {
	records []*models.ClientRecord
	skipped int
	err     error
}

func (f *fakeSource) FetchRecords(_ context.Context, _ models.ClientType, limit int) (*registry.FetchResult, error) {
	records := f.records
	if len(records) > limit {
		records = records[:limit]
	}
	return &registry.FetchResult{Records: records, Skipped: f.skipped}, f.err
}

func (f *fakeSource) GetRecord(_ context.Context, id string) (*models.ClientRecord, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, registry.ErrRecordNotFound
}

type fakeCandidateStore struct {
	candidates map[string]*models.DuplicateCandidate
}

func newFakeCandidateStore() *fakeCandidateStore {
	return &fakeCandidateStore{candidates: map[string]*models.DuplicateCandidate{}}
}

func (f *fakeCandidateStore) Create(_ context.Context, c *models.DuplicateCandidate) (bool, error) {
	key := c.RecordID1 + "|" + c.RecordID2
	if _, ok := f.candidates[key]; ok {
		return false, nil
	}
	c.Status = models.CandidateStatusPending
	f.candidates[key] = c
	return true, nil
}

func (f *fakeCandidateStore) PairKeys(_ context.Context, _ models.ClientType) (map[string]struct{}, error) {
	keys := make(map[string]struct{}, len(f.candidates))
	for key := range f.candidates {
		keys[key] = struct{}{}
	}
	return keys, nil
}

type fakeRunStore struct {
	finished []*models.DetectionRun
}

func (f *fakeRunStore) Create(_ context.Context, clientType models.ClientType, minScore int) (*models.DetectionRun, error) {
	return &models.DetectionRun{ID: fmt.Sprintf("run-%d", len(f.finished)+1), ClientType: clientType, Status: models.RunStatusRunning, MinScore: minScore}, nil
}

func (f *fakeRunStore) Finish(_ context.Context, run *models.DetectionRun) error {
	f.finished = append(f.finished, run)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func individual(id, nom, nid, dna string) *models.ClientRecord {
	fields := map[string]string{}
	if nom != "" {
		fields[models.FieldNom] = nom
	}
	if nid != "" {
		fields[models.FieldNID] = nid
	}
	if dna != "" {
		fields[models.FieldDateNaissance] = dna
	}
	return &models.ClientRecord{ID: id, ClientType: models.ClientTypeIndividual, AgencyCode: "001", Fields: fields}
}

func newTestEngine(source registry.Source, store CandidateStore, runs RunStore) *Engine {
	comparator := scoring.NewComparator(models.FieldWeightSpec{
		Individual: map[string]models.FieldWeight{
			models.FieldNom:           {Weight: 2, MatchThreshold: models.DefaultMatchThreshold},
			models.FieldNID:           {Weight: 2, MatchThreshold: 100},
			models.FieldDateNaissance: {Weight: 1, MatchThreshold: models.DefaultMatchThreshold},
		},
	}, 2)

	return NewEngine(source, store, runs, comparator, nil, testLogger(), Config{
		MaxRecordsPerRun: 1000,
		MinScore:         DefaultMinScore,
		WorkerCount:      2,
	})
}

func TestEngine_Run_DetectsDuplicatePair(t *testing.T) {
	source := &fakeSource{records: []*models.ClientRecord{
		individual("rec-2", "OUEDRAOGO", "BF12345", "1980-05-15"),
		individual("rec-1", "OUEDRAOGO", "BF12346", "1980-05-15"),
		individual("rec-3", "ZONGO", "BF99999", "1990-01-01"),
	}}
	store := newFakeCandidateStore()
	runs := &fakeRunStore{}

	run, err := newTestEngine(source, store, runs).Run(context.Background(), models.ClientTypeIndividual, Options{})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Processed)
	assert.Equal(t, 1, run.Detected)

	candidate, ok := store.candidates["rec-1|rec-2"]
	require.True(t, ok, "pair must be stored in canonical order")
	assert.Equal(t, models.CandidateStatusPending, candidate.Status)
	assert.Equal(t, 94, candidate.OverallScore)
	assert.ElementsMatch(t, []string{models.FieldNom, models.FieldDateNaissance}, candidate.MatchingFields.Data)
	assert.Equal(t, run.ID, candidate.RunID)
}

func TestEngine_Run_IsIdempotent(t *testing.T) {
	source := &fakeSource{records: []*models.ClientRecord{
		individual("rec-1", "OUEDRAOGO", "BF12345", "1980-05-15"),
		individual("rec-2", "OUEDRAOGO", "BF12346", "1980-05-15"),
	}}
	store := newFakeCandidateStore()
	runs := &fakeRunStore{}
	engine := newTestEngine(source, store, runs)

	first, err := engine.Run(context.Background(), models.ClientTypeIndividual, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Detected)

	second, err := engine.Run(context.Background(), models.ClientTypeIndividual, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Detected, "unchanged data must not produce duplicate candidates")
	assert.Len(t, store.candidates, 1)
}

func TestEngine_Run_MinScoreFilter(t *testing.T) {
	// same phonetic block but only the birth date agrees
	source := &fakeSource{records: []*models.ClientRecord{
		individual("rec-1", "DIALLO", "BF11111", "1980-05-15"),
		individual("rec-2", "DALEY", "CI99999", "1980-05-15"),
	}}
	store := newFakeCandidateStore()
	runs := &fakeRunStore{}

	run, err := newTestEngine(source, store, runs).Run(context.Background(), models.ClientTypeIndividual, Options{MinScore: 90})
	require.NoError(t, err)

	assert.Equal(t, 0, run.Detected)
	assert.Empty(t, store.candidates)
}

func TestEngine_Run_DifferentBlocksNeverCompared(t *testing.T) {
	source := &fakeSource{records: []*models.ClientRecord{
		individual("rec-1", "OUEDRAOGO", "BF12345", "1980-05-15"),
		individual("rec-2", "ZONGO", "BF12346", "1980-05-15"),
	}}
	store := newFakeCandidateStore()
	runs := &fakeRunStore{}

	run, err := newTestEngine(source, store, runs).Run(context.Background(), models.ClientTypeIndividual, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, run.Detected)
}

func TestEngine_Run_RegistryUnavailableKeepsPartialCounts(t *testing.T) {
	source := &fakeSource{
		records: []*models.ClientRecord{
			individual("rec-1", "OUEDRAOGO", "BF12345", "1980-05-15"),
			individual("rec-2", "OUEDRAOGO", "BF12346", "1980-05-15"),
		},
		err: fmt.Errorf("fetching page 2: %w", registry.ErrUnavailable),
	}
	store := newFakeCandidateStore()
	runs := &fakeRunStore{}

	run, err := newTestEngine(source, store, runs).Run(context.Background(), models.ClientTypeIndividual, Options{})
	require.ErrorIs(t, err, registry.ErrUnavailable)

	assert.Equal(t, models.RunStatusAborted, run.Status)
	assert.Equal(t, 2, run.Processed)
	assert.Equal(t, 1, run.Detected, "candidates generated before the failure are kept")
	require.Len(t, runs.finished, 1)
}

func TestEngine_Run_InvalidClientType(t *testing.T) {
	engine := newTestEngine(&fakeSource{}, newFakeCandidateStore(), &fakeRunStore{})

	_, err := engine.Run(context.Background(), models.ClientType("partnership"), Options{})
	assert.Error(t, err)
}

func TestEngine_Run_CountsSkippedRecords(t *testing.T) {
	source := &fakeSource{
		records: []*models.ClientRecord{individual("rec-1", "OUEDRAOGO", "BF12345", "1980-05-15")},
		skipped: 3,
	}
	runs := &fakeRunStore{}

	run, err := newTestEngine(source, newFakeCandidateStore(), runs).Run(context.Background(), models.ClientTypeIndividual, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, run.Skipped)
}
