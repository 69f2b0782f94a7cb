// Package registry talks to the external client registry that owns the
// records being deduplicated. Detection only ever reads from it; the
// one write path is the merge call issued after a reviewer decision.
package registry

import (
	"context"
	"errors"

	"github.com/kone-m/karite/pkg/models"
)

// ErrUnavailable marks the registry as unreachable. A detection run
// that hits it keeps the candidates generated so far and reports
// partial counts instead of failing wholesale.
var ErrUnavailable = errors.New("client registry unavailable")

// ErrRecordNotFound is returned when a record id is unknown to the
// registry, typically because it was merged away after the candidate
// was generated.
var ErrRecordNotFound = errors.New("client record not found")

// ErrMergeRejected is returned when the registry refuses a merge. The
// candidate stays pending so the decision can be retried.
var ErrMergeRejected = errors.New("registry rejected merge")

// FetchResult is one page-bounded batch of records. Skipped counts
// records that failed validation and were dropped without aborting the
// fetch.
type FetchResult struct {
	Records []*models.ClientRecord
	Skipped int
}

// Source streams client records for detection runs and resolves single
// records for candidate detail views.
type Source interface {
	FetchRecords(ctx context.Context, clientType models.ClientType, limit int) (*FetchResult, error)
	GetRecord(ctx context.Context, id string) (*models.ClientRecord, error)
}

// MergeExecutor performs the registry-side merge of a confirmed
// duplicate pair. It is called before the candidate is marked merged;
// an error here must leave the candidate pending.
type MergeExecutor interface {
	ExecuteMerge(ctx context.Context, survivingRecordID, mergedRecordID string) error
}
