package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/kone-m/karite/internal/repositories/candidate"
	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/registry"
	"github.com/kone-m/karite/pkg/scoring"
	"github.com/kone-m/karite/pkg/tracing"
)

// ListFilter narrows candidate listings for the reviewer UI
type ListFilter struct {
	ClientType models.ClientType
	Status     string
	Confidence models.ConfidenceBucket
	Limit      int
	Offset     int
}

// CandidateList is one page of candidates
type CandidateList struct {
	Items []models.DuplicateCandidate `json:"items"`
	Total int                         `json:"total"`
}

// CandidateDetail is the full review view of one candidate: both
// records as they stand in the registry today and the per-field
// comparison recomputed from them.
type CandidateDetail struct {
	Candidate        *models.DuplicateCandidate `json:"candidate"`
	Record1          *models.ClientRecord       `json:"record1,omitempty"`
	Record2          *models.ClientRecord       `json:"record2,omitempty"`
	FieldComparisons []scoring.FieldComparison  `json:"field_comparisons,omitempty"`
}

// QueryService is the read side of candidate review
type QueryService struct {
	store      Store
	source     registry.Source
	comparator *scoring.Comparator
	logger     ectologger.Logger
}

// NewQueryService creates a new query service
func NewQueryService(store Store, source registry.Source, comparator *scoring.Comparator, logger ectologger.Logger) *QueryService {
	return &QueryService{
		store:      store,
		source:     source,
		comparator: comparator,
		logger:     logger,
	}
}

// List returns candidates matching the filter, highest score first.
// The confidence filter translates to the score range of the tier.
func (s *QueryService) List(ctx context.Context, filter ListFilter) (*CandidateList, error) {
	ctx, span := tracing.StartSpan(ctx, "review.QueryService.List")
	defer span.End()

	repoFilter := candidate.Filter{
		ClientType: filter.ClientType,
		Status:     filter.Status,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}

	switch filter.Confidence {
	case "":
	case models.ConfidenceVeryHigh:
		repoFilter.MinScore = models.ConfidenceVeryHighMin
	case models.ConfidenceHigh:
		repoFilter.MinScore = models.ConfidenceHighMin
		repoFilter.MaxScore = models.ConfidenceVeryHighMin - 1
	case models.ConfidenceMedium:
		repoFilter.MinScore = models.ConfidenceMediumMin
		repoFilter.MaxScore = models.ConfidenceHighMin - 1
	case models.ConfidenceLow:
		repoFilter.MaxScore = models.ConfidenceMediumMin - 1
	default:
		return nil, fmt.Errorf("unknown confidence bucket %q", filter.Confidence)
	}

	items, total, err := s.store.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	return &CandidateList{Items: items, Total: total}, nil
}

// Detail resolves one candidate with both registry records and a
// fresh field-by-field comparison. A record that has since vanished
// from the registry (merged away) leaves its slot nil rather than
// failing the view.
func (s *QueryService) Detail(ctx context.Context, id string) (*CandidateDetail, error) {
	ctx, span := tracing.StartSpan(ctx, "review.QueryService.Detail")
	defer span.End()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCandidateNotFound, id)
	}

	detail := &CandidateDetail{Candidate: c}

	detail.Record1, err = s.resolveRecord(ctx, c.RecordID1)
	if err != nil {
		return nil, err
	}
	detail.Record2, err = s.resolveRecord(ctx, c.RecordID2)
	if err != nil {
		return nil, err
	}

	if detail.Record1 != nil && detail.Record2 != nil {
		comparison, _ := s.comparator.Compare(detail.Record1, detail.Record2)
		detail.FieldComparisons = comparison.Fields
	}

	return detail, nil
}

// Stats summarizes the candidate store
func (s *QueryService) Stats(ctx context.Context) (*models.CandidateStats, error) {
	ctx, span := tracing.StartSpan(ctx, "review.QueryService.Stats")
	defer span.End()

	return s.store.Stats(ctx)
}

func (s *QueryService) resolveRecord(ctx context.Context, id string) (*models.ClientRecord, error) {
	record, err := s.source.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrRecordNotFound) {
			s.logger.WithContext(ctx).WithFields(map[string]any{"record_id": id}).Debug("record no longer in registry")
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
