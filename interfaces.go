package dealmatcher

import "context"

// Window is one level's offset/limit pair.
type Window struct {
	Offset int
	Limit  int
}

// PageRequest asks for one page of offers with nested peers and nested
// compute units. Each level is paged independently.
type PageRequest struct {
	Filters      Filters
	Offers       Window
	Peers        Window
	ComputeUnits Window
}

// PageFetcher returns one page of eligible offers. Each offer carries its
// eligible peers and each peer its eligible compute units, truncated to the
// level limits of the request, in indexer order.
type PageFetcher interface {
	FetchOffers(ctx context.Context, req PageRequest) ([]Offer, error)
}

// DealReader reads a deal together with the indexer's latest block timestamp
// and network epoch parameters. A missing deal is reported through a nil
// DealSnapshot.Deal, not an error.
type DealReader interface {
	FetchDeal(ctx context.Context, dealID string) (*DealSnapshot, error)
}

// Indexer is the data source of a Matcher.
type Indexer interface {
	PageFetcher
	DealReader
}
