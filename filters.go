package dealmatcher

import (
	"math/big"
	"strings"
)

// ProviderScope selects how providers are constrained for an attempt.
type ProviderScope int

const (
	// ProviderScopeOpen accepts any provider with a live capacity commitment.
	ProviderScopeOpen ProviderScope = iota
	// ProviderScopeAllowList accepts only listed providers and skips the
	// capacity commitment liveness checks.
	ProviderScopeAllowList
	// ProviderScopeDenyList rejects listed providers; liveness still applies.
	ProviderScopeDenyList
)

func (s ProviderScope) String() string {
	switch s {
	case ProviderScopeAllowList:
		return "allow-list"
	case ProviderScopeDenyList:
		return "deny-list"
	default:
		return "open"
	}
}

// ExcludedCommitmentStatuses can never back a matchable compute unit.
var ExcludedCommitmentStatuses = []CommitmentStatus{
	CommitmentWaitDelegation,
	CommitmentRemoved,
	CommitmentFailed,
}

// Liveness requires a peer's current capacity commitment to be active at
// Epoch: present, started, not ended, not failed, not deleted and not in an
// excluded status.
type Liveness struct {
	Epoch            int64
	ExcludedStatuses []CommitmentStatus
}

// OfferFilter constrains offers.
type OfferFilter struct {
	MaxPricePerEpoch *big.Int
	// PaymentToken is lowercased; the indexer stores token ids lowercased.
	PaymentToken      string
	MinAvailableUnits int
	// Effectors is empty when the deal has no effector constraint.
	Effectors     []string
	ProviderScope ProviderScope
	// Providers is the allow list or the deny list depending on ProviderScope.
	Providers []string
	// PeerLiveness is applied to the offer's peers; nil under an allow list.
	PeerLiveness *Liveness
}

// PeerFilter constrains the peers nested under an offer.
type PeerFilter struct {
	ExcludeDeleted bool
	// RequireFreeUnit asks for at least one unassigned, non-deleted unit.
	RequireFreeUnit bool
	// NotJoinedDeal excludes peers already joined to this deal.
	NotJoinedDeal string
	// Liveness is nil under an allow list.
	Liveness *Liveness
}

// ComputeUnitFilter constrains the compute units nested under a peer.
type ComputeUnitFilter struct {
	Unassigned     bool
	ExcludeDeleted bool
}

// Filters are the eligibility predicates for every page of one attempt.
// They mirror the checks of Market.matchDeal, so anything accepted here is
// accepted on submission.
type Filters struct {
	Offer       OfferFilter
	Peer        PeerFilter
	ComputeUnit ComputeUnitFilter
}

// ScopeFor returns the provider scope of a request. A non-empty allow list
// always wins over the deny list.
func ScopeFor(req MatchingRequest) ProviderScope {
	switch {
	case len(req.ProvidersAllowList) > 0:
		return ProviderScopeAllowList
	case len(req.ProvidersDenyList) > 0:
		return ProviderScopeDenyList
	default:
		return ProviderScopeOpen
	}
}

// BuildFilters derives the eligibility filters of an attempt from its request.
func BuildFilters(req MatchingRequest) Filters {
	scope := ScopeFor(req)

	offer := OfferFilter{
		PaymentToken:      strings.ToLower(req.PaymentToken),
		MinAvailableUnits: 1,
		ProviderScope:     scope,
	}
	if req.PricePerWorkerEpoch != nil {
		offer.MaxPricePerEpoch = new(big.Int).Set(req.PricePerWorkerEpoch)
	}
	if len(req.Effectors) > 0 {
		offer.Effectors = append([]string(nil), req.Effectors...)
	}

	peer := PeerFilter{
		ExcludeDeleted:  true,
		RequireFreeUnit: true,
		NotJoinedDeal:   NormalizeID(req.DealID),
	}

	switch scope {
	case ProviderScopeAllowList:
		offer.Providers = normalizeIDs(req.ProvidersAllowList)
	case ProviderScopeDenyList:
		offer.Providers = normalizeIDs(req.ProvidersDenyList)
	}

	if scope != ProviderScopeAllowList {
		offer.PeerLiveness = newLiveness(req.CurrentEpoch)
		peer.Liveness = newLiveness(req.CurrentEpoch)
	}

	return Filters{
		Offer: offer,
		Peer:  peer,
		ComputeUnit: ComputeUnitFilter{
			Unassigned:     true,
			ExcludeDeleted: true,
		},
	}
}

func newLiveness(epoch int64) *Liveness {
	return &Liveness{
		Epoch:            epoch,
		ExcludedStatuses: append([]CommitmentStatus(nil), ExcludedCommitmentStatuses...),
	}
}

// Active reports whether a commitment satisfies the liveness window.
// A nil commitment is never active.
func (l *Liveness) Active(cc *CapacityCommitment) bool {
	if cc == nil {
		return false
	}
	if cc.StartEpoch > l.Epoch || cc.EndEpoch <= l.Epoch || cc.NextFailureEpoch <= l.Epoch {
		return false
	}
	for _, s := range l.ExcludedStatuses {
		if cc.Status == s {
			return false
		}
	}
	return true
}
