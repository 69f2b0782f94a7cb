package models

import (
	"encoding/json"
	"fmt"
)

// DefaultMatchThreshold is the per-field score at or above which a
// field counts as matched.
const DefaultMatchThreshold = 85

// FieldWeight is the comparison weight and match threshold for one
// named field. Identity fields carry a threshold of 100 so a single
// transposed digit never counts as agreement.
type FieldWeight struct {
	Weight         float64 `json:"weight"`
	MatchThreshold int     `json:"match_threshold"`
}

// FieldWeightSpec maps field names to weights, per client type.
type FieldWeightSpec struct {
	Individual map[string]FieldWeight `json:"individual"`
	Corporate  map[string]FieldWeight `json:"corporate"`
}

// ForType returns the weighted field set for a client type.
func (s FieldWeightSpec) ForType(t ClientType) map[string]FieldWeight {
	if t == ClientTypeCorporate {
		return s.Corporate
	}
	return s.Individual
}

// DefaultFieldWeightSpec returns the weights the back-office uses when
// no override is configured.
func DefaultFieldWeightSpec() FieldWeightSpec {
	return FieldWeightSpec{
		Individual: map[string]FieldWeight{
			FieldNom:           {Weight: 3, MatchThreshold: DefaultMatchThreshold},
			FieldPrenom:        {Weight: 2, MatchThreshold: DefaultMatchThreshold},
			FieldNID:           {Weight: 2, MatchThreshold: 100},
			FieldDateNaissance: {Weight: 2, MatchThreshold: DefaultMatchThreshold},
			FieldNomMere:       {Weight: 1, MatchThreshold: DefaultMatchThreshold},
			FieldTelephone:     {Weight: 1, MatchThreshold: DefaultMatchThreshold},
			FieldEmail:         {Weight: 1, MatchThreshold: DefaultMatchThreshold},
		},
		Corporate: map[string]FieldWeight{
			FieldRaisonSociale: {Weight: 3, MatchThreshold: DefaultMatchThreshold},
			FieldRCCM:          {Weight: 2, MatchThreshold: 100},
			FieldTelephone:     {Weight: 1, MatchThreshold: DefaultMatchThreshold},
			FieldEmail:         {Weight: 1, MatchThreshold: DefaultMatchThreshold},
		},
	}
}

// ParseFieldWeightSpec parses a JSON override of the weight spec and
// validates that every weight is positive.
func ParseFieldWeightSpec(raw string) (FieldWeightSpec, error) {
	var spec FieldWeightSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return FieldWeightSpec{}, fmt.Errorf("failed to parse field weight spec: %w", err)
	}
	for _, fields := range []map[string]FieldWeight{spec.Individual, spec.Corporate} {
		for name, fw := range fields {
			if fw.Weight <= 0 {
				return FieldWeightSpec{}, fmt.Errorf("field %q has non-positive weight %v", name, fw.Weight)
			}
			if fw.MatchThreshold <= 0 || fw.MatchThreshold > 100 {
				return FieldWeightSpec{}, fmt.Errorf("field %q has match threshold %d outside (0,100]", name, fw.MatchThreshold)
			}
		}
	}
	return spec, nil
}
