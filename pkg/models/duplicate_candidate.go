package models

import (
	"time"

	"github.com/kone-m/karite/pkg/database"
)

// CandidateStatus constants. Pending is the only non-terminal state;
// confirmed, rejected and merged are immutable once reached.
const (
	CandidateStatusPending   = "pending"
	CandidateStatusConfirmed = "confirmed"
	CandidateStatusRejected  = "rejected"
	CandidateStatusMerged    = "merged"
)

// TerminalStatus reports whether a status accepts no further decisions.
func TerminalStatus(status string) bool {
	return status == CandidateStatusConfirmed ||
		status == CandidateStatusRejected ||
		status == CandidateStatusMerged
}

// DecisionType constants for reviewer decisions.
const (
	DecisionTypeConfirm = "confirm"
	DecisionTypeReject  = "reject"
	DecisionTypeMerge   = "merge"
)

// StatusForDecision maps a decision type onto the terminal status it
// produces.
func StatusForDecision(decisionType string) (string, bool) {
	switch decisionType {
	case DecisionTypeConfirm:
		return CandidateStatusConfirmed, true
	case DecisionTypeReject:
		return CandidateStatusRejected, true
	case DecisionTypeMerge:
		return CandidateStatusMerged, true
	default:
		return "", false
	}
}

// DuplicateCandidate is a system-proposed pair of records suspected to
// represent the same client. RecordID1 < RecordID2 always holds, so an
// unordered pair maps to exactly one row.
type DuplicateCandidate struct {
	ID             string                   `json:"id" db:"id"`
	RecordID1      string                   `json:"record_id_1" db:"record_id_1"`
	RecordID2      string                   `json:"record_id_2" db:"record_id_2"`
	ClientType     ClientType               `json:"client_type" db:"client_type"`
	AgencyCode     string                   `json:"agency_code" db:"agency_code"`
	OverallScore   int                      `json:"overall_score" db:"overall_score"`
	MatchingFields database.JSONB[[]string] `json:"matching_fields" db:"matching_fields"`
	Status         string                   `json:"status" db:"status"`
	RunID          string                   `json:"run_id" db:"run_id"`
	CreatedAt      time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at" db:"updated_at"`

	// Decisions is loaded alongside the candidate; empty while pending.
	Decisions []ReviewDecision `json:"decisions,omitempty" db:"-"`
}

// Confidence returns the derived confidence bucket for the candidate.
func (c *DuplicateCandidate) Confidence() ConfidenceBucket {
	return BucketForScore(c.OverallScore)
}

// OrderPair returns the two record IDs in canonical order.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// ReviewDecision is the audit record of a reviewer's terminal decision
// on a candidate. At most one exists per candidate.
type ReviewDecision struct {
	ID                string    `json:"id" db:"id"`
	CandidateID       string    `json:"candidate_id" db:"candidate_id"`
	ReviewerID        string    `json:"reviewer_id" db:"reviewer_id"`
	DecisionType      string    `json:"decision_type" db:"decision_type"`
	Comments          string    `json:"comments" db:"comments"`
	SurvivingRecordID *string   `json:"surviving_record_id,omitempty" db:"surviving_record_id"`
	DecidedAt         time.Time `json:"decided_at" db:"decided_at"`
}

// ConfidenceBucket is a human-readable tier derived from the overall
// score at read time; it is never stored.
type ConfidenceBucket string

const (
	ConfidenceVeryHigh ConfidenceBucket = "very_high"
	ConfidenceHigh     ConfidenceBucket = "high"
	ConfidenceMedium   ConfidenceBucket = "medium"
	ConfidenceLow      ConfidenceBucket = "low"
)

// Tier boundaries, inclusive on the lower bound.
const (
	ConfidenceVeryHighMin = 90
	ConfidenceHighMin     = 75
	ConfidenceMediumMin   = 60
)

// BucketForScore buckets an overall score into a confidence tier.
func BucketForScore(score int) ConfidenceBucket {
	switch {
	case score >= ConfidenceVeryHighMin:
		return ConfidenceVeryHigh
	case score >= ConfidenceHighMin:
		return ConfidenceHigh
	case score >= ConfidenceMediumMin:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// CandidateStats summarizes the candidate store for the review UI.
type CandidateStats struct {
	Total          int `json:"total" db:"total"`
	Pending        int `json:"pending" db:"pending"`
	Confirmed      int `json:"confirmed" db:"confirmed"`
	Rejected       int `json:"rejected" db:"rejected"`
	Merged         int `json:"merged" db:"merged"`
	HighConfidence int `json:"high_confidence" db:"high_confidence"`
}
