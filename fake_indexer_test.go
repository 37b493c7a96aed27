package dealmatcher

import (
	"context"
	"fmt"
	"math/big"
)

// fakeIndexer serves a pre-filtered dataset, honouring the three windows of
// every page request the way the indexer does.
type fakeIndexer struct {
	offers   []Offer
	requests []PageRequest

	// failOn makes the n-th page request (1-based) return err.
	failOn int
	err    error

	snapshot  *DealSnapshot
	dealErr   error
	dealCalls []string
}

func (f *fakeIndexer) FetchOffers(ctx context.Context, req PageRequest) ([]Offer, error) {
	f.requests = append(f.requests, req)
	if f.err != nil && len(f.requests) >= f.failOn {
		return nil, f.err
	}

	var out []Offer
	for _, o := range window(f.offers, req.Offers) {
		page := o
		page.Peers = []Peer{}
		for _, p := range window(o.Peers, req.Peers) {
			peer := p
			peer.ComputeUnits = window(p.ComputeUnits, req.ComputeUnits)
			page.Peers = append(page.Peers, peer)
		}
		out = append(out, page)
	}
	return out, nil
}

func (f *fakeIndexer) FetchDeal(ctx context.Context, dealID string) (*DealSnapshot, error) {
	f.dealCalls = append(f.dealCalls, dealID)
	return f.snapshot, f.dealErr
}

func window[T any](items []T, w Window) []T {
	if w.Offset >= len(items) || w.Limit <= 0 {
		return []T{}
	}
	end := min(len(items), w.Offset+w.Limit)
	return items[w.Offset:end]
}

// pagesIndexer replays fixed pages regardless of the request.
type pagesIndexer struct {
	pages    [][]Offer
	requests []PageRequest
}

func (p *pagesIndexer) FetchOffers(ctx context.Context, req PageRequest) ([]Offer, error) {
	p.requests = append(p.requests, req)
	i := len(p.requests) - 1
	if i >= len(p.pages) {
		return []Offer{}, nil
	}
	return p.pages[i], nil
}

func (p *pagesIndexer) FetchDeal(ctx context.Context, dealID string) (*DealSnapshot, error) {
	return nil, fmt.Errorf("not supported")
}

// offer builds an offer whose peers each carry the given number of units.
// Peer ids are "<offer>-p<i>", unit ids "<peer>-u<j>".
func offer(id string, unitsPerPeer ...int) Offer {
	o := Offer{
		ID:            id,
		PricePerEpoch: big.NewInt(1),
		PaymentToken:  "0xtoken",
		ProviderID:    "0xprovider",
		Peers:         []Peer{},
	}
	for i, n := range unitsPerPeer {
		peerID := fmt.Sprintf("%s-p%d", id, i+1)
		p := Peer{ID: peerID, ProviderID: o.ProviderID, Commitment: liveCommitment(), ComputeUnits: []ComputeUnit{}}
		for j := 0; j < n; j++ {
			p.ComputeUnits = append(p.ComputeUnits, ComputeUnit{ID: fmt.Sprintf("%s-u%d", peerID, j+1), PeerID: peerID})
		}
		o.Peers = append(o.Peers, p)
	}
	return o
}

// liveCommitment is active for every epoch the tests match at.
func liveCommitment() *CapacityCommitment {
	return &CapacityCommitment{
		ID:               "0xcc",
		StartEpoch:       1,
		EndEpoch:         1000,
		NextFailureEpoch: 1000,
		Status:           CommitmentActive,
	}
}

func testRequest(target, minWorkers int) MatchingRequest {
	return MatchingRequest{
		DealID:                "0x00000000000000000000000000000000000000aa",
		PricePerWorkerEpoch:   big.NewInt(100),
		Effectors:             []string{},
		PaymentToken:          "0xToken",
		TargetWorkers:         target,
		MinWorkers:            minWorkers,
		MaxWorkersPerProvider: 10,
		CurrentEpoch:          42,
		ProvidersAllowList:    []string{},
		ProvidersDenyList:     []string{},
	}
}
