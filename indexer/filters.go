package indexer

import (
	"strconv"

	dealmatcher "github.com/Lucky4Angel/deal"
)

// filter is a Graph-style where clause.
type filter = map[string]interface{}

// pageVariables serializes a page request into OffersQuery variables.
func pageVariables(req dealmatcher.PageRequest) map[string]interface{} {
	return map[string]interface{}{
		"filters":             offerWhere(req.Filters.Offer),
		"offset":              req.Offers.Offset,
		"limit":               req.Offers.Limit,
		"peersFilters":        peerWhere(req.Filters.Peer),
		"peersOffset":         req.Peers.Offset,
		"peersLimit":          req.Peers.Limit,
		"computeUnitsFilters": computeUnitWhere(req.Filters.ComputeUnit),
		"computeUnitsOffset":  req.ComputeUnits.Offset,
		"computeUnitsLimit":   req.ComputeUnits.Limit,
	}
}

func offerWhere(f dealmatcher.OfferFilter) filter {
	where := filter{
		"paymentToken":             f.PaymentToken,
		"computeUnitsAvailable_gt": f.MinAvailableUnits - 1,
	}
	if f.MaxPricePerEpoch != nil {
		where["pricePerEpoch_lte"] = f.MaxPricePerEpoch.String()
	}
	if len(f.Effectors) > 0 {
		where["effectors_"] = filter{"effector_in": f.Effectors}
	}

	switch f.ProviderScope {
	case dealmatcher.ProviderScopeAllowList:
		where["provider_"] = filter{"id_in": f.Providers}
	case dealmatcher.ProviderScopeDenyList:
		where["provider_"] = filter{"id_not_in": f.Providers}
	}

	// Nested commitment fields can't be filtered on from the offer, so the
	// peer entity carries denormalized copies of them.
	if l := f.PeerLiveness; l != nil {
		epoch := epochString(l.Epoch)
		where["peers_"] = filter{
			"deleted":                            false,
			"currentCapacityCommitment_not":      nil,
			"currentCCCollateralDepositedAt_lte": epoch,
			"currentCCEndEpoch_gt":               epoch,
			"currentCCNextCCFailedEpoch_gt":      epoch,
		}
	}
	return where
}

func peerWhere(f dealmatcher.PeerFilter) filter {
	own := filter{}
	if f.ExcludeDeleted {
		own["deleted"] = false
	}
	if f.RequireFreeUnit {
		own["computeUnits_"] = filter{"deal": nil, "deleted": false}
	}
	if l := f.Liveness; l != nil {
		epoch := epochString(l.Epoch)
		statuses := make([]string, len(l.ExcludedStatuses))
		for i, s := range l.ExcludedStatuses {
			statuses[i] = string(s)
		}
		own["currentCapacityCommitment_not"] = nil
		own["currentCapacityCommitment_"] = filter{
			"startEpoch_lte":       epoch,
			"endEpoch_gt":          epoch,
			"nextCCFailedEpoch_gt": epoch,
			"deleted":              false,
			"status_not_in":        statuses,
		}
	}

	and := []filter{own}
	if f.NotJoinedDeal != "" {
		and = append(and, filter{
			"or": []filter{
				{"joinedDeals_": filter{"deal_not": f.NotJoinedDeal}},
				{"isAnyJoinedDeals": false},
			},
		})
	}
	return filter{"and": and}
}

func computeUnitWhere(f dealmatcher.ComputeUnitFilter) filter {
	where := filter{}
	if f.Unassigned {
		where["deal"] = nil
	}
	if f.ExcludeDeleted {
		where["deleted"] = false
	}
	return where
}

// Epochs are BigInt in the indexer schema and are sent as strings.
func epochString(epoch int64) string {
	return strconv.FormatInt(epoch, 10)
}
