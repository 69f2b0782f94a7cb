package scoring

import (
	"math"
	"sort"

	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/normalizers"
)

// FieldComparison is the per-field outcome exposed to reviewers: both
// raw values are kept for audit display, the score is computed on the
// normalized ones.
type FieldComparison struct {
	Field   string `json:"field"`
	Value1  string `json:"value1"`
	Value2  string `json:"value2"`
	Score   int    `json:"score"`
	Matched bool   `json:"matched"`
}

// RecordComparison aggregates the field comparisons of one record pair
type RecordComparison struct {
	OverallScore     int               `json:"overallScore"`
	MatchingFields   []string          `json:"matchingFields"`
	Fields           []FieldComparison `json:"fields"`
	ComparableFields int               `json:"comparableFields"`
}

// Comparator compares two records field by field under a weight spec
// and combines the results into one overall score
type Comparator struct {
	scorer              *Scorer
	weights             models.FieldWeightSpec
	minComparableFields int
}

// NewComparator creates a new Comparator
func NewComparator(weights models.FieldWeightSpec, minComparableFields int) *Comparator {
	return &Comparator{
		scorer:              NewScorer(),
		weights:             weights,
		minComparableFields: minComparableFields,
	}
}

// CompareField compares one named field of two records. A field absent
// on either side scores 0 and is never matched; absence is not
// agreement.
func (c *Comparator) CompareField(field string, weight models.FieldWeight, record1, record2 *models.ClientRecord) FieldComparison {
	value1, ok1 := record1.Field(field)
	value2, ok2 := record2.Field(field)

	result := FieldComparison{
		Field:  field,
		Value1: value1,
		Value2: value2,
	}

	if !ok1 || !ok2 {
		return result
	}

	result.Score = c.scorer.Similarity(normalizers.Canonical(value1), normalizers.Canonical(value2))
	result.Matched = result.Score >= weight.MatchThreshold
	return result
}

// Compare compares two records over every field in the weight spec for
// their client type. Fields absent on both sides are excluded from the
// weighted average entirely. Pairs with fewer comparable fields than
// the configured minimum are discarded, the second return value is
// false for those.
func (c *Comparator) Compare(record1, record2 *models.ClientRecord) (*RecordComparison, bool) {
	fieldWeights := c.weights.ForType(record1.ClientType)

	names := make([]string, 0, len(fieldWeights))
	for name := range fieldWeights {
		names = append(names, name)
	}
	sort.Strings(names)

	comparison := &RecordComparison{
		MatchingFields: []string{},
		Fields:         make([]FieldComparison, 0, len(names)),
	}

	var weightedSum, totalWeight float64

	for _, name := range names {
		_, ok1 := record1.Field(name)
		_, ok2 := record2.Field(name)
		if !ok1 && !ok2 {
			continue
		}

		weight := fieldWeights[name]
		fieldResult := c.CompareField(name, weight, record1, record2)
		comparison.Fields = append(comparison.Fields, fieldResult)

		weightedSum += weight.Weight * float64(fieldResult.Score)
		totalWeight += weight.Weight

		if ok1 && ok2 {
			comparison.ComparableFields++
		}
		if fieldResult.Matched {
			comparison.MatchingFields = append(comparison.MatchingFields, name)
		}
	}

	if comparison.ComparableFields < c.minComparableFields {
		return comparison, false
	}

	if totalWeight > 0 {
		comparison.OverallScore = int(math.Round(weightedSum / totalWeight))
	}

	return comparison, true
}
