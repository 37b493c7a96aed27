package dealmatcher

import (
	"math/big"
)

// MatchingRequest describes one matching attempt for a deal.
// It is never modified by the matcher.
type MatchingRequest struct {
	DealID              string   `json:"dealId"`
	PricePerWorkerEpoch *big.Int `json:"pricePerWorkerEpoch"`
	// Effectors is the set of effector CIDs an offer must support (any of).
	// Empty means no constraint.
	Effectors    []string `json:"effectors"`
	PaymentToken string   `json:"paymentToken"`
	// TargetWorkers is the number of worker slots still to fill.
	TargetWorkers int `json:"targetWorkers"`
	// MinWorkers is the floor below which a partial result is useless on-chain.
	MinWorkers            int   `json:"minWorkers"`
	MaxWorkersPerProvider int   `json:"maxWorkersPerProvider"`
	CurrentEpoch          int64 `json:"currentEpoch"`
	// ProvidersAllowList overrides the deny list and the capacity commitment
	// liveness checks when non-empty.
	ProvidersAllowList []string `json:"providersAllowList"`
	ProvidersDenyList  []string `json:"providersDenyList"`
}

// Validate performs basic validation on a matching request
func (r MatchingRequest) Validate() error {
	if r.DealID == "" {
		return NewMatchError(ErrCodeInvalidRequest, "deal id is required", nil)
	}
	if r.PaymentToken == "" {
		return NewMatchError(ErrCodeInvalidRequest, "payment token is required", nil)
	}
	if r.PricePerWorkerEpoch == nil || r.PricePerWorkerEpoch.Sign() < 0 {
		return NewMatchError(ErrCodeInvalidRequest, "price per worker epoch must be a non-negative integer", nil)
	}
	if r.TargetWorkers < 0 || r.MinWorkers < 0 || r.MaxWorkersPerProvider < 0 {
		return NewMatchError(ErrCodeInvalidRequest, "worker counts must not be negative", map[string]interface{}{
			"targetWorkers":         r.TargetWorkers,
			"minWorkers":            r.MinWorkers,
			"maxWorkersPerProvider": r.MaxWorkersPerProvider,
		})
	}
	return nil
}

// CommitmentStatus is a capacity commitment status as stored by the indexer.
// Active and Inactive are derived from epochs on-chain and are not stored.
type CommitmentStatus string

const (
	CommitmentWaitDelegation CommitmentStatus = "WaitDelegation"
	CommitmentWaitStart      CommitmentStatus = "WaitStart"
	CommitmentActive         CommitmentStatus = "Active"
	CommitmentInactive       CommitmentStatus = "Inactive"
	CommitmentFailed         CommitmentStatus = "Failed"
	CommitmentRemoved        CommitmentStatus = "Removed"
)

// CapacityCommitment is the epoch window a peer's units are pledged for.
type CapacityCommitment struct {
	ID               string           `json:"id"`
	StartEpoch       int64            `json:"startEpoch"`
	EndEpoch         int64            `json:"endEpoch"`
	NextFailureEpoch int64            `json:"nextFailureEpoch"`
	Status           CommitmentStatus `json:"status"`
}

// ComputeUnit is the atomic allocatable slot of a peer.
type ComputeUnit struct {
	ID     string `json:"id"`
	PeerID string `json:"peerId"`
}

// Peer holds the eligible compute units returned for one page.
type Peer struct {
	ID           string              `json:"id"`
	ProviderID   string              `json:"providerId"`
	Commitment   *CapacityCommitment `json:"commitment,omitempty"`
	ComputeUnits []ComputeUnit       `json:"computeUnits"`
}

// Offer holds the eligible peers returned for one page.
type Offer struct {
	ID            string   `json:"id"`
	PricePerEpoch *big.Int `json:"pricePerEpoch"`
	PaymentToken  string   `json:"paymentToken"`
	Effectors     []string `json:"effectors"`
	ProviderID    string   `json:"providerId"`
	Peers         []Peer   `json:"peers"`
}

// MatchResult mirrors the arguments of Market.matchDeal:
// offers[i] is matched with computeUnitsPerOffers[i].
type MatchResult struct {
	Offers                []string   `json:"offers"`
	ComputeUnitsPerOffers [][]string `json:"computeUnitsPerOffers"`
	Fulfilled             bool       `json:"fulfilled"`
}

// MatchedCount returns the number of matched compute units.
func (r *MatchResult) MatchedCount() int {
	n := 0
	for _, units := range r.ComputeUnitsPerOffers {
		n += len(units)
	}
	return n
}

func emptyResult() *MatchResult {
	return &MatchResult{
		Offers:                []string{},
		ComputeUnitsPerOffers: [][]string{},
		Fulfilled:             false,
	}
}

// NetworkParams are the network-wide epoch settings of the core contract.
type NetworkParams struct {
	InitTimestamp int64
	EpochDuration int64
}

// DealRecord is the deal configuration as indexed.
type DealRecord struct {
	ID                    string
	TargetWorkers         int
	MinWorkers            int
	MaxWorkersPerProvider int
	// JoinedComputeUnits is the number of compute units already added to the deal.
	JoinedComputeUnits  int
	PricePerWorkerEpoch *big.Int
	PaymentToken        string
	// Effectors is nil when the indexer has no effector data for the deal.
	Effectors           []string
	ProvidersAccessType AccessType
	ProvidersAccessList []string
}

// DealSnapshot is a deal read together with the indexer state needed for
// epoch arithmetic. Deal is nil when no such deal exists.
type DealSnapshot struct {
	Deal           *DealRecord
	BlockTimestamp *int64
	Network        *NetworkParams
}
