package indexer

// offersQuery fetches one page across all three levels. Peers and compute
// units are nested pages with their own where/first/skip.
const offersQuery = `query OffersQuery(
  $filters: Offer_filter
  $offset: Int
  $limit: Int
  $peersFilters: Peer_filter
  $peersOffset: Int
  $peersLimit: Int
  $computeUnitsFilters: ComputeUnit_filter
  $computeUnitsOffset: Int
  $computeUnitsLimit: Int
) {
  offers(where: $filters, first: $limit, skip: $offset) {
    id
    pricePerEpoch
    paymentToken { id }
    provider { id }
    effectors { effector { id } }
    peers(where: $peersFilters, first: $peersLimit, skip: $peersOffset) {
      id
      currentCapacityCommitment {
        id
        startEpoch
        endEpoch
        nextCCFailedEpoch
        status
      }
      computeUnits(where: $computeUnitsFilters, first: $computeUnitsLimit, skip: $computeUnitsOffset) {
        id
      }
    }
  }
}`

// dealQuery reads a deal together with the block time and epoch parameters
// the current epoch is derived from.
const dealQuery = `query DealQuery($id: ID!, $maxUnits: Int) {
  deal(id: $id) {
    id
    targetWorkers
    minWorkers
    maxWorkersPerProvider
    pricePerWorkerEpoch
    paymentToken { id }
    effectors { effector { id } }
    providersAccessType
    providersAccessList { provider { id } }
    addedComputeUnits(first: $maxUnits) { id }
  }
  _meta { block { timestamp } }
  graphNetworks(first: 1) {
    initTimestamp
    coreEpochDuration
  }
}`

// dealComputeUnitsQuery pages the deal's added compute units past the first
// page returned with dealQuery.
const dealComputeUnitsQuery = `query DealComputeUnitsQuery($id: ID!, $first: Int, $skip: Int) {
  deal(id: $id) {
    addedComputeUnits(first: $first, skip: $skip) { id }
  }
}`

type idRef struct {
	ID string `json:"id"`
}

type effectorRef struct {
	Effector idRef `json:"effector"`
}

type commitmentData struct {
	ID                string `json:"id"`
	StartEpoch        string `json:"startEpoch"`
	EndEpoch          string `json:"endEpoch"`
	NextCCFailedEpoch string `json:"nextCCFailedEpoch"`
	Status            string `json:"status"`
}

type peerData struct {
	ID                        string          `json:"id"`
	CurrentCapacityCommitment *commitmentData `json:"currentCapacityCommitment"`
	ComputeUnits              []idRef         `json:"computeUnits"`
}

type offerData struct {
	ID            string        `json:"id"`
	PricePerEpoch string        `json:"pricePerEpoch"`
	PaymentToken  idRef         `json:"paymentToken"`
	Provider      idRef         `json:"provider"`
	Effectors     []effectorRef `json:"effectors"`
	Peers         []peerData    `json:"peers"`
}

type offersResponse struct {
	Offers []offerData `json:"offers"`
}

type accessEntry struct {
	Provider idRef `json:"provider"`
}

type dealData struct {
	ID                    string        `json:"id"`
	TargetWorkers         int           `json:"targetWorkers"`
	MinWorkers            int           `json:"minWorkers"`
	MaxWorkersPerProvider int           `json:"maxWorkersPerProvider"`
	PricePerWorkerEpoch   *string       `json:"pricePerWorkerEpoch"`
	PaymentToken          *idRef        `json:"paymentToken"`
	Effectors             []effectorRef `json:"effectors"`
	ProvidersAccessType   int           `json:"providersAccessType"`
	ProvidersAccessList   []accessEntry `json:"providersAccessList"`
	AddedComputeUnits     []idRef       `json:"addedComputeUnits"`
}

type dealResponse struct {
	Deal *dealData `json:"deal"`
	Meta *struct {
		Block struct {
			Timestamp *int64 `json:"timestamp"`
		} `json:"block"`
	} `json:"_meta"`
	GraphNetworks []struct {
		InitTimestamp     string `json:"initTimestamp"`
		CoreEpochDuration *int64 `json:"coreEpochDuration"`
	} `json:"graphNetworks"`
}

type dealComputeUnitsResponse struct {
	Deal *struct {
		AddedComputeUnits []idRef `json:"addedComputeUnits"`
	} `json:"deal"`
}
