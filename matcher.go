package dealmatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	logutil "github.com/Lucky4Angel/deal/internal/logging"
)

// DefaultMaxPageSize is the largest `first` the indexer accepts per level.
const DefaultMaxPageSize = 1000

// computeUnitsPerPeer is the compute unit page size: a deal may take at most
// one unit from a peer, so more would only be discarded.
const computeUnitsPerPeer = 1

// Matcher selects compute units for deals from an indexer.
// It is immutable after construction and safe for concurrent use; every
// attempt owns its own cursor and result state.
type Matcher struct {
	indexer     Indexer
	maxPageSize int
	logger      logr.Logger
	newID       func() string

	startHooks   []OnAttemptStartHook
	pageHooks    []OnPageFetchedHook
	endHooks     []OnAttemptEndHook
	failureHooks []OnAttemptFailureHook
}

// MatcherOption configures the matcher
type MatcherOption func(*Matcher)

// WithMaxPageSize sets the per-level page size limit of the indexer
func WithMaxPageSize(n int) MatcherOption {
	return func(m *Matcher) {
		if n > 0 {
			m.maxPageSize = n
		}
	}
}

// WithLogger sets the fallback logger used when the context carries none
func WithLogger(logger logr.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// WithAttemptIDGenerator overrides how attempt ids are generated
func WithAttemptIDGenerator(gen func() string) MatcherOption {
	return func(m *Matcher) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithOnAttemptStart registers a hook run when an attempt starts
func WithOnAttemptStart(hook OnAttemptStartHook) MatcherOption {
	return func(m *Matcher) {
		m.startHooks = append(m.startHooks, hook)
	}
}

// WithOnPageFetched registers a hook run after each fetched page
func WithOnPageFetched(hook OnPageFetchedHook) MatcherOption {
	return func(m *Matcher) {
		m.pageHooks = append(m.pageHooks, hook)
	}
}

// WithOnAttemptEnd registers a hook run when an attempt returns a result
func WithOnAttemptEnd(hook OnAttemptEndHook) MatcherOption {
	return func(m *Matcher) {
		m.endHooks = append(m.endHooks, hook)
	}
}

// WithOnAttemptFailure registers a hook run when an attempt fails
func WithOnAttemptFailure(hook OnAttemptFailureHook) MatcherOption {
	return func(m *Matcher) {
		m.failureHooks = append(m.failureHooks, hook)
	}
}

// NewMatcher creates a matcher reading from indexer
func NewMatcher(indexer Indexer, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		indexer:     indexer,
		maxPageSize: DefaultMaxPageSize,
		logger:      logr.Discard(),
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Match walks indexer pages until req.TargetWorkers compute units are found
// or the eligible data is exhausted. It takes at most one unit per peer and
// returns units grouped by offer in first-seen order.
//
// Exhausting the data below req.MinWorkers is not an error: the result is
// empty and not fulfilled. Fetcher errors abort the attempt and are returned
// wrapped; nothing is retried.
func (m *Matcher) Match(ctx context.Context, req MatchingRequest) (*MatchResult, error) {
	if req.TargetWorkers == 0 {
		logutil.FromContext(ctx, m.logger).V(logutil.VERBOSE).Info("No compute units to match, returning empty result", "dealId", req.DealID)
		return emptyResult(), nil
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	at := m.begin(ctx, req)

	filters := BuildFilters(req)
	liveness := filters.Peer.Liveness
	offersLimit := min(req.TargetWorkers, m.maxPageSize)
	peersLimit := min(req.MaxWorkersPerProvider, m.maxPageSize)

	acc := newAccumulator()
	var cur cursor
	for !cur.exhausted() {
		if err := ctx.Err(); err != nil {
			return nil, at.fail(err)
		}

		pageReq := PageRequest{
			Filters:      filters,
			Offers:       Window{Offset: cur.offset(levelOffers), Limit: offersLimit},
			Peers:        Window{Offset: cur.offset(levelPeers), Limit: peersLimit},
			ComputeUnits: Window{Offset: cur.offset(levelComputeUnits), Limit: computeUnitsPerPeer},
		}
		fetchStart := time.Now()
		offers, err := m.indexer.FetchOffers(ctx, pageReq)
		if err != nil {
			return nil, at.fail(fmt.Errorf("failed to fetch offers page: %w", err))
		}
		at.page(pageReq, len(offers), time.Since(fetchStart))

		if len(offers) == 0 {
			break
		}

		for _, offer := range offers {
			slot := acc.slot(offer.ID)

			// Every peer of this offer was filtered out at the current peer
			// offset: move to the next offer page and start its peers over.
			if len(offer.Peers) == 0 {
				cur = cur.skip(levelOffers, m.maxPageSize)
				break
			}

			for _, peer := range offer.Peers {
				// The indexer may lag the chain; a peer whose commitment is no
				// longer live would be rejected on submission.
				if liveness != nil && !liveness.Active(peer.Commitment) {
					at.logger.V(logutil.DEBUG).Info("Skipping peer without a live capacity commitment", "peerId", peer.ID, "offerId", offer.ID)
				} else {
					for _, unit := range peer.ComputeUnits {
						if !acc.add(slot, peer.ID, unit.ID) {
							break
						}
						if acc.matched == req.TargetWorkers {
							return at.end(acc.result(true)), nil
						}
					}
				}
				cur = cur.advance(levelComputeUnits, len(peer.ComputeUnits), m.maxPageSize)
			}

			if cur.isReached(levelComputeUnits) {
				cur = cur.advance(levelPeers, len(offer.Peers), m.maxPageSize)
			}
		}

		if cur.isReached(levelPeers) {
			cur = cur.advance(levelOffers, len(offers), m.maxPageSize)
		}
	}

	if acc.matched < req.MinWorkers {
		at.logger.Info("Matched fewer compute units than the deal minimum, dropping partial match",
			"matched", acc.matched, "minWorkers", req.MinWorkers)
		return at.end(emptyResult()), nil
	}
	return at.end(acc.result(false)), nil
}

// MatchDeal resolves the deal's current configuration and matches it.
func (m *Matcher) MatchDeal(ctx context.Context, dealID string) (*MatchResult, error) {
	req, err := m.ResolveForDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	return m.Match(ctx, req)
}

// ============================================================================
// Attempt bookkeeping
// ============================================================================

type attempt struct {
	m       *Matcher
	info    AttemptContext
	logger  logr.Logger
	started time.Time
	pages   int
}

func (m *Matcher) begin(ctx context.Context, req MatchingRequest) *attempt {
	now := time.Now()
	info := AttemptContext{
		Ctx:       ctx,
		AttemptID: m.newID(),
		Request:   req,
		Timestamp: now,
	}
	at := &attempt{
		m:       m,
		info:    info,
		logger:  logutil.FromContext(ctx, m.logger).WithValues("attemptId", info.AttemptID, "dealId", req.DealID),
		started: now,
	}

	at.logger.V(logutil.VERBOSE).Info("Matching attempt started",
		"targetWorkers", req.TargetWorkers,
		"minWorkers", req.MinWorkers,
		"maxWorkersPerProvider", req.MaxWorkersPerProvider,
		"currentEpoch", req.CurrentEpoch,
		"providerScope", ScopeFor(req).String())
	if req.TargetWorkers > m.maxPageSize {
		at.logger.Info("Target workers exceed the indexer page size, consider matching in smaller batches",
			"targetWorkers", req.TargetWorkers, "maxPageSize", m.maxPageSize)
	}

	for _, hook := range m.startHooks {
		if err := hook(info); err != nil {
			at.logger.Error(err, "Attempt start hook failed")
		}
	}
	return at
}

func (at *attempt) page(req PageRequest, offers int, d time.Duration) {
	at.pages++
	at.logger.V(logutil.DEBUG).Info("Fetched offers page",
		"page", at.pages,
		"offersOffset", req.Offers.Offset,
		"peersOffset", req.Peers.Offset,
		"computeUnitsOffset", req.ComputeUnits.Offset,
		"offers", offers,
		"duration", d)

	pc := PageContext{
		AttemptContext: at.info,
		Page:           at.pages,
		PageRequest:    req,
		OffersReturned: offers,
		Duration:       d,
	}
	for _, hook := range at.m.pageHooks {
		if err := hook(pc); err != nil {
			at.logger.Error(err, "Page fetched hook failed")
		}
	}
}

func (at *attempt) end(res *MatchResult) *MatchResult {
	d := time.Since(at.started)
	at.logger.V(logutil.VERBOSE).Info("Matching attempt finished",
		"fulfilled", res.Fulfilled,
		"offers", len(res.Offers),
		"computeUnits", res.MatchedCount(),
		"pages", at.pages,
		"duration", d)
	at.logger.V(logutil.TRACE).Info("Matching result", "result", res)

	rc := AttemptResultContext{
		AttemptContext: at.info,
		Result:         *res,
		Pages:          at.pages,
		Duration:       d,
	}
	for _, hook := range at.m.endHooks {
		if err := hook(rc); err != nil {
			at.logger.Error(err, "Attempt end hook failed")
		}
	}
	return res
}

func (at *attempt) fail(err error) error {
	d := time.Since(at.started)
	at.logger.Error(err, "Matching attempt failed", "pages", at.pages, "duration", d)

	fc := AttemptFailureContext{
		AttemptContext: at.info,
		Error:          err,
		Pages:          at.pages,
		Duration:       d,
	}
	for _, hook := range at.m.failureHooks {
		if hookErr := hook(fc); hookErr != nil {
			at.logger.Error(hookErr, "Attempt failure hook failed")
		}
	}
	return err
}
