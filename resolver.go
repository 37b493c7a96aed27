package dealmatcher

import (
	"context"
	"fmt"
	"math/big"
)

// ResolveForDeal reads the deal from the indexer and derives the matching
// request for its remaining worker slots.
func (m *Matcher) ResolveForDeal(ctx context.Context, dealID string) (MatchingRequest, error) {
	id := NormalizeID(dealID)

	snap, err := m.indexer.FetchDeal(ctx, id)
	if err != nil {
		return MatchingRequest{}, fmt.Errorf("failed to fetch deal %s: %w", id, err)
	}
	if snap == nil || snap.Deal == nil {
		return MatchingRequest{}, NewMatchError(ErrCodeDealNotFound,
			fmt.Sprintf("deal not found. Searched for: %s", dealID),
			map[string]interface{}{"dealId": dealID})
	}
	if snap.Network == nil || snap.Network.EpochDuration <= 0 || snap.BlockTimestamp == nil {
		return MatchingRequest{}, NewMatchError(ErrCodeInconsistentIndexerState,
			"indexer has no network epoch parameters or block timestamp, retry later",
			map[string]interface{}{"dealId": id})
	}

	deal := snap.Deal
	joined := deal.JoinedComputeUnits
	target := deal.TargetWorkers - joined
	if target <= 0 {
		return MatchingRequest{}, NewMatchError(ErrCodeDealAlreadyMatched,
			fmt.Sprintf("deal already has target number of compute units matched. Deal Id: %s Target workers: %d", id, deal.TargetWorkers),
			map[string]interface{}{
				"dealId":             id,
				"targetWorkers":      deal.TargetWorkers,
				"joinedComputeUnits": joined,
			})
	}
	minWorkers := max(deal.MinWorkers-joined, 0)

	if deal.Effectors == nil {
		return MatchingRequest{}, NewMatchError(ErrCodeEffectorDataMissing,
			fmt.Sprintf("effectors of deal %s are missing in the indexer", id),
			map[string]interface{}{"dealId": id})
	}
	if deal.PricePerWorkerEpoch == nil {
		return MatchingRequest{}, NewMatchError(ErrCodeInconsistentIndexerState,
			fmt.Sprintf("price per worker epoch of deal %s is missing in the indexer", id),
			map[string]interface{}{"dealId": id})
	}

	allow, deny, err := ProviderAccessLists(deal.ProvidersAccessType, deal.ProvidersAccessList)
	if err != nil {
		return MatchingRequest{}, NewMatchError(ErrCodeInconsistentIndexerState, err.Error(),
			map[string]interface{}{"dealId": id})
	}

	return MatchingRequest{
		DealID:                id,
		PricePerWorkerEpoch:   new(big.Int).Set(deal.PricePerWorkerEpoch),
		Effectors:             append([]string{}, deal.Effectors...),
		PaymentToken:          NormalizeID(deal.PaymentToken),
		TargetWorkers:         target,
		MinWorkers:            minWorkers,
		MaxWorkersPerProvider: deal.MaxWorkersPerProvider,
		CurrentEpoch:          CalculateEpoch(*snap.BlockTimestamp, snap.Network.InitTimestamp, snap.Network.EpochDuration),
		ProvidersAllowList:    allow,
		ProvidersDenyList:     deny,
	}, nil
}
