package review

import "errors"

// ErrCandidateNotFound is returned when the candidate id is unknown.
var ErrCandidateNotFound = errors.New("candidate not found")

// ErrAlreadyDecided is returned when a decision targets a candidate
// that has already left pending. The stored decision is never
// overwritten.
var ErrAlreadyDecided = errors.New("candidate already decided")

// ErrInvalidDecision marks a malformed decision request: missing
// reviewer, unknown decision type, missing rejection comments, or a
// surviving record outside the pair.
var ErrInvalidDecision = errors.New("invalid decision")

// ErrMergeFailed is returned when the registry merge call fails. The
// candidate stays pending and the decision can be retried.
var ErrMergeFailed = errors.New("merge execution failed")
