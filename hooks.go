package dealmatcher

import (
	"context"
	"time"
)

// ============================================================================
// Attempt Hook Context Types
// ============================================================================

// AttemptContext identifies one matching attempt
type AttemptContext struct {
	Ctx       context.Context
	AttemptID string
	Request   MatchingRequest
	Timestamp time.Time
}

// PageContext describes one page fetched during an attempt
type PageContext struct {
	AttemptContext
	// Page is the 1-based number of the page within the attempt.
	Page           int
	PageRequest    PageRequest
	OffersReturned int
	Duration       time.Duration
}

// AttemptResultContext contains the result of a finished attempt
type AttemptResultContext struct {
	AttemptContext
	Result   MatchResult
	Pages    int
	Duration time.Duration
}

// AttemptFailureContext contains the error that aborted an attempt
type AttemptFailureContext struct {
	AttemptContext
	Error    error
	Pages    int
	Duration time.Duration
}

// ============================================================================
// Attempt Hook Function Types
// ============================================================================

// OnAttemptStartHook is called before the first page of an attempt is requested.
// Any error returned will be logged but will not affect the attempt
type OnAttemptStartHook func(AttemptContext) error

// OnPageFetchedHook is called after every successful page request.
// Any error returned will be logged but will not affect the attempt
type OnPageFetchedHook func(PageContext) error

// OnAttemptEndHook is called when an attempt returns a result, fulfilled or not.
// Any error returned will be logged but will not affect the result
type OnAttemptEndHook func(AttemptResultContext) error

// OnAttemptFailureHook is called when an attempt is aborted by an error.
// Any error returned will be logged; the attempt error is returned unchanged
type OnAttemptFailureHook func(AttemptFailureContext) error
