package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kone-m/karite/internal/repositories/candidate"
	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/registry"
	"github.com/kone-m/karite/pkg/scoring"
)

type captureStore struct {
	fakeStore
	lastFilter candidate.Filter
}

func (s *captureStore) List(ctx context.Context, filter candidate.Filter) ([]models.DuplicateCandidate, int, error) {
	s.lastFilter = filter
	return s.fakeStore.List(ctx, filter)
}

type fakeRecordSource struct {
	records map[string]*models.ClientRecord
}

func (f *fakeRecordSource) FetchRecords(_ context.Context, _ models.ClientType, _ int) (*registry.FetchResult, error) {
	return &registry.FetchResult{}, nil
}

func (f *fakeRecordSource) GetRecord(_ context.Context, id string) (*models.ClientRecord, error) {
	if r, ok := f.records[id]; ok {
		return r, nil
	}
	return nil, registry.ErrRecordNotFound
}

func testComparator() *scoring.Comparator {
	return scoring.NewComparator(models.DefaultFieldWeightSpec(), 2)
}

func TestQueryService_List_ConfidenceRanges(t *testing.T) {
	store := &captureStore{fakeStore: *newFakeStore()}
	service := NewQueryService(store, &fakeRecordSource{}, testComparator(), testLogger())

	cases := []struct {
		confidence models.ConfidenceBucket
		minScore   int
		maxScore   int
	}{
		{models.ConfidenceVeryHigh, 90, 0},
		{models.ConfidenceHigh, 75, 89},
		{models.ConfidenceMedium, 60, 74},
		{models.ConfidenceLow, 0, 59},
	}

	for _, tc := range cases {
		t.Run(string(tc.confidence), func(t *testing.T) {
			_, err := service.List(context.Background(), ListFilter{Confidence: tc.confidence})
			require.NoError(t, err)
			assert.Equal(t, tc.minScore, store.lastFilter.MinScore)
			assert.Equal(t, tc.maxScore, store.lastFilter.MaxScore)
		})
	}

	t.Run("unknown bucket", func(t *testing.T) {
		_, err := service.List(context.Background(), ListFilter{Confidence: "extreme"})
		assert.Error(t, err)
	})

	t.Run("passes through type and status", func(t *testing.T) {
		_, err := service.List(context.Background(), ListFilter{
			ClientType: models.ClientTypeCorporate,
			Status:     models.CandidateStatusPending,
			Limit:      25,
		})
		require.NoError(t, err)
		assert.Equal(t, models.ClientTypeCorporate, store.lastFilter.ClientType)
		assert.Equal(t, models.CandidateStatusPending, store.lastFilter.Status)
		assert.Equal(t, 25, store.lastFilter.Limit)
	})
}

func TestQueryService_Detail(t *testing.T) {
	c := pendingCandidate("cand-1")
	source := &fakeRecordSource{records: map[string]*models.ClientRecord{
		"rec-1": {ID: "rec-1", ClientType: models.ClientTypeIndividual, Fields: map[string]string{
			models.FieldNom: "OUEDRAOGO", models.FieldNID: "BF12345", models.FieldDateNaissance: "1980-05-15",
		}},
		"rec-2": {ID: "rec-2", ClientType: models.ClientTypeIndividual, Fields: map[string]string{
			models.FieldNom: "OUEDRAOGO", models.FieldNID: "BF12346", models.FieldDateNaissance: "1980-05-15",
		}},
	}}
	service := NewQueryService(newFakeStore(c), source, testComparator(), testLogger())

	t.Run("resolves records and field comparisons", func(t *testing.T) {
		detail, err := service.Detail(context.Background(), "cand-1")
		require.NoError(t, err)

		assert.Equal(t, "cand-1", detail.Candidate.ID)
		require.NotNil(t, detail.Record1)
		require.NotNil(t, detail.Record2)
		require.NotEmpty(t, detail.FieldComparisons)

		byField := map[string]scoring.FieldComparison{}
		for _, fc := range detail.FieldComparisons {
			byField[fc.Field] = fc
		}
		assert.Equal(t, 100, byField[models.FieldNom].Score)
		assert.True(t, byField[models.FieldNom].Matched)
		assert.Equal(t, 86, byField[models.FieldNID].Score)
		assert.False(t, byField[models.FieldNID].Matched, "identity field requires an exact match")
		assert.Equal(t, "BF12345", byField[models.FieldNID].Value1)
	})

	t.Run("vanished record leaves slot empty", func(t *testing.T) {
		delete(source.records, "rec-2")
		detail, err := service.Detail(context.Background(), "cand-1")
		require.NoError(t, err)
		assert.NotNil(t, detail.Record1)
		assert.Nil(t, detail.Record2)
		assert.Empty(t, detail.FieldComparisons)
	})

	t.Run("unknown candidate", func(t *testing.T) {
		_, err := service.Detail(context.Background(), "cand-404")
		assert.ErrorIs(t, err, ErrCandidateNotFound)
	})
}

func TestQueryService_Stats(t *testing.T) {
	store := newFakeStore(pendingCandidate("cand-1"), pendingCandidate("cand-2"))
	service := NewQueryService(store, &fakeRecordSource{}, testComparator(), testLogger())

	stats, err := service.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
}
