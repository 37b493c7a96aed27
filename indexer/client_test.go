package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	dealmatcher "github.com/Lucky4Angel/deal"
)

const dealID = "0x00000000000000000000000000000000000000aa"

// graphQLServer answers every request with body and records the request bodies.
func graphQLServer(t *testing.T, status int, body string, seen *[][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		if seen != nil {
			*seen = append(*seen, raw)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(&Config{URL: url, MaxPageSize: 100})
	require.NoError(t, err)
	return c
}

func testPageRequest() dealmatcher.PageRequest {
	req := dealmatcher.MatchingRequest{
		DealID:                dealID,
		PricePerWorkerEpoch:   big.NewInt(1_000_000),
		Effectors:             []string{"bafkeffector"},
		PaymentToken:          "0xTOKEN",
		TargetWorkers:         3,
		MaxWorkersPerProvider: 2,
		CurrentEpoch:          42,
		ProvidersAllowList:    []string{},
		ProvidersDenyList:     []string{"0xbad"},
	}
	return dealmatcher.PageRequest{
		Filters:      dealmatcher.BuildFilters(req),
		Offers:       dealmatcher.Window{Offset: 0, Limit: 3},
		Peers:        dealmatcher.Window{Offset: 2, Limit: 2},
		ComputeUnits: dealmatcher.Window{Offset: 0, Limit: 1},
	}
}

const offersBody = `{"data":{"offers":[{
	"id":"0xoffer",
	"pricePerEpoch":"500",
	"paymentToken":{"id":"0xtoken"},
	"provider":{"id":"0xprovider"},
	"effectors":[{"effector":{"id":"bafkeffector"}}],
	"peers":[{
		"id":"0xpeer",
		"currentCapacityCommitment":{"id":"0xcc","startEpoch":"10","endEpoch":"100","nextCCFailedEpoch":"50","status":"Active"},
		"computeUnits":[{"id":"0xcu"}]
	},{
		"id":"0xpeer2",
		"currentCapacityCommitment":null,
		"computeUnits":[]
	}]
}]}}`

func TestFetchOffers(t *testing.T) {
	var seen [][]byte
	srv := graphQLServer(t, http.StatusOK, offersBody, &seen)
	c := newTestClient(t, srv.URL)

	offers, err := c.FetchOffers(context.Background(), testPageRequest())
	require.NoError(t, err)
	require.Len(t, offers, 1)

	o := offers[0]
	assert.Equal(t, "0xoffer", o.ID)
	assert.Equal(t, int64(500), o.PricePerEpoch.Int64())
	assert.Equal(t, "0xprovider", o.ProviderID)
	assert.Equal(t, []string{"bafkeffector"}, o.Effectors)
	require.Len(t, o.Peers, 2)

	p := o.Peers[0]
	assert.Equal(t, "0xprovider", p.ProviderID)
	require.NotNil(t, p.Commitment)
	assert.Equal(t, dealmatcher.CapacityCommitment{
		ID: "0xcc", StartEpoch: 10, EndEpoch: 100, NextFailureEpoch: 50, Status: dealmatcher.CommitmentActive,
	}, *p.Commitment)
	assert.Equal(t, []dealmatcher.ComputeUnit{{ID: "0xcu", PeerID: "0xpeer"}}, p.ComputeUnits)

	assert.Nil(t, o.Peers[1].Commitment)
	assert.NotNil(t, o.Peers[1].ComputeUnits)
	assert.Empty(t, o.Peers[1].ComputeUnits)

	require.Len(t, seen, 1)
	vars := gjson.GetBytes(seen[0], "variables")
	assert.Equal(t, "OffersQuery", gjson.GetBytes(seen[0], "operationName").String())
	assert.Equal(t, int64(3), vars.Get("limit").Int())
	assert.Equal(t, int64(2), vars.Get("peersOffset").Int())
	assert.Equal(t, int64(1), vars.Get("computeUnitsLimit").Int())
}

func TestFetchOffersVariables(t *testing.T) {
	var seen [][]byte
	srv := graphQLServer(t, http.StatusOK, `{"data":{"offers":[]}}`, &seen)
	c := newTestClient(t, srv.URL)

	offers, err := c.FetchOffers(context.Background(), testPageRequest())
	require.NoError(t, err)
	assert.Empty(t, offers)

	vars := gjson.GetBytes(seen[0], "variables")

	filters := vars.Get("filters")
	assert.Equal(t, "1000000", filters.Get("pricePerEpoch_lte").String())
	assert.Equal(t, "0xtoken", filters.Get("paymentToken").String())
	assert.Equal(t, int64(0), filters.Get("computeUnitsAvailable_gt").Int())
	assert.Equal(t, `["bafkeffector"]`, filters.Get("effectors_.effector_in").Raw)
	assert.Equal(t, `["0xbad"]`, filters.Get("provider_.id_not_in").Raw)
	assert.Equal(t, "42", filters.Get("peers_.currentCCEndEpoch_gt").String())
	assert.Equal(t, gjson.String, filters.Get("peers_.currentCCEndEpoch_gt").Type)
	assert.Equal(t, gjson.Null, filters.Get("peers_.currentCapacityCommitment_not").Type)

	own := vars.Get("peersFilters.and.0")
	assert.False(t, own.Get("deleted").Bool())
	assert.Equal(t, gjson.Null, own.Get("computeUnits_.deal").Type)
	assert.Equal(t, "42", own.Get("currentCapacityCommitment_.startEpoch_lte").String())
	assert.Equal(t, `["WaitDelegation","Removed","Failed"]`, own.Get("currentCapacityCommitment_.status_not_in").Raw)

	joined := vars.Get("peersFilters.and.1.or")
	assert.Equal(t, dealID, joined.Get("0.joinedDeals_.deal_not").String())
	assert.False(t, joined.Get("1.isAnyJoinedDeals").Bool())

	cu := vars.Get("computeUnitsFilters")
	assert.Equal(t, gjson.Null, cu.Get("deal").Type)
	assert.Equal(t, gjson.False, cu.Get("deleted").Type)
}

func TestFetchOffersAllowListSkipsLiveness(t *testing.T) {
	var seen [][]byte
	srv := graphQLServer(t, http.StatusOK, `{"data":{"offers":[]}}`, &seen)
	c := newTestClient(t, srv.URL)

	req := testPageRequest()
	req.Filters.Offer.ProviderScope = dealmatcher.ProviderScopeAllowList
	req.Filters.Offer.Providers = []string{"0xgood"}
	req.Filters.Offer.PeerLiveness = nil
	req.Filters.Peer.Liveness = nil

	_, err := c.FetchOffers(context.Background(), req)
	require.NoError(t, err)

	vars := gjson.GetBytes(seen[0], "variables")
	assert.Equal(t, `["0xgood"]`, vars.Get("filters.provider_.id_in").Raw)
	assert.False(t, vars.Get("filters.peers_").Exists())
	assert.False(t, vars.Get("peersFilters.and.0.currentCapacityCommitment_").Exists())
}

func TestFetchOffersRejectsOversizedPage(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0")
	req := testPageRequest()
	req.Peers.Limit = 101

	_, err := c.FetchOffers(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds indexer maximum")
}

func TestQueryGraphQLErrors(t *testing.T) {
	srv := graphQLServer(t, http.StatusOK, `{"errors":[{"message":"bad filter"},{"message":"again"}],"data":null}`, nil)
	c := newTestClient(t, srv.URL)

	_, err := c.FetchOffers(context.Background(), testPageRequest())
	var gqlErr *GraphQLError
	require.True(t, errors.As(err, &gqlErr))
	assert.Equal(t, "OffersQuery", gqlErr.Operation)
	assert.Equal(t, []string{"bad filter", "again"}, gqlErr.Messages)
}

func TestQueryNonOK(t *testing.T) {
	srv := graphQLServer(t, http.StatusInternalServerError, "boom", nil)
	c := newTestClient(t, srv.URL)

	_, err := c.FetchOffers(context.Background(), testPageRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(500)")
}

func TestQueryRetriesOnRateLimit(t *testing.T) {
	defer func(d time.Duration) { queryRetryBaseDelay = d }(queryRetryBaseDelay)
	queryRetryBaseDelay = time.Millisecond

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"offers":[]}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchOffers(context.Background(), testPageRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueryGivesUpAfterRetries(t *testing.T) {
	defer func(d time.Duration) { queryRetryBaseDelay = d }(queryRetryBaseDelay)
	queryRetryBaseDelay = time.Millisecond

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchOffers(context.Background(), testPageRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(429)")
	assert.Equal(t, int32(queryRetries), calls.Load())
}

const dealBody = `{"data":{
	"deal":{
		"id":"0x00000000000000000000000000000000000000aa",
		"targetWorkers":4,
		"minWorkers":2,
		"maxWorkersPerProvider":3,
		"pricePerWorkerEpoch":"1000",
		"paymentToken":{"id":"0xtoken"},
		"effectors":[{"effector":{"id":"bafk1"}},{"effector":{"id":"bafk2"}}],
		"providersAccessType":2,
		"providersAccessList":[{"provider":{"id":"0xbad"}}],
		"addedComputeUnits":[{"id":"0xcu1"}]
	},
	"_meta":{"block":{"timestamp":1000}},
	"graphNetworks":[{"initTimestamp":"100","coreEpochDuration":60}]
}}`

func TestFetchDeal(t *testing.T) {
	var seen [][]byte
	srv := graphQLServer(t, http.StatusOK, dealBody, &seen)
	c := newTestClient(t, srv.URL)

	snap, err := c.FetchDeal(context.Background(), "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)

	require.NotNil(t, snap.Deal)
	d := snap.Deal
	assert.Equal(t, 4, d.TargetWorkers)
	assert.Equal(t, 2, d.MinWorkers)
	assert.Equal(t, 3, d.MaxWorkersPerProvider)
	assert.Equal(t, 1, d.JoinedComputeUnits)
	assert.Equal(t, int64(1000), d.PricePerWorkerEpoch.Int64())
	assert.Equal(t, "0xtoken", d.PaymentToken)
	assert.Equal(t, []string{"bafk1", "bafk2"}, d.Effectors)
	assert.Equal(t, dealmatcher.AccessBlacklist, d.ProvidersAccessType)
	assert.Equal(t, []string{"0xbad"}, d.ProvidersAccessList)

	require.NotNil(t, snap.BlockTimestamp)
	assert.Equal(t, int64(1000), *snap.BlockTimestamp)
	assert.Equal(t, &dealmatcher.NetworkParams{InitTimestamp: 100, EpochDuration: 60}, snap.Network)

	var sent struct {
		Variables map[string]interface{} `json:"variables"`
	}
	require.NoError(t, json.Unmarshal(seen[0], &sent))
	assert.Equal(t, dealID, sent.Variables["id"])
}

func TestFetchDealPagesJoinedComputeUnits(t *testing.T) {
	units := func(from, n int) string {
		refs := make([]string, 0, n)
		for i := range n {
			refs = append(refs, fmt.Sprintf(`{"id":"0xcu%d"}`, from+i))
		}
		return "[" + strings.Join(refs, ",") + "]"
	}

	var skips []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		vars := gjson.GetBytes(raw, "variables")
		switch gjson.GetBytes(raw, "operationName").String() {
		case "DealQuery":
			assert.Equal(t, int64(2), vars.Get("maxUnits").Int())
			_, _ = fmt.Fprintf(w, `{"data":{"deal":{"id":"0xaa","targetWorkers":10,"pricePerWorkerEpoch":"1","effectors":[],"addedComputeUnits":%s},"graphNetworks":[]}}`, units(0, 2))
		case "DealComputeUnitsQuery":
			skip := vars.Get("skip").Int()
			skips = append(skips, skip)
			assert.Equal(t, dealID, vars.Get("id").String())
			assert.Equal(t, int64(2), vars.Get("first").Int())
			n := 2
			if skip >= 4 {
				n = 1
			}
			_, _ = fmt.Fprintf(w, `{"data":{"deal":{"addedComputeUnits":%s}}}`, units(int(skip), n))
		default:
			t.Errorf("unexpected operation in %s", raw)
		}
	}))
	defer srv.Close()

	c, err := NewClient(&Config{URL: srv.URL, MaxPageSize: 2})
	require.NoError(t, err)

	snap, err := c.FetchDeal(context.Background(), dealID)
	require.NoError(t, err)
	require.NotNil(t, snap.Deal)
	assert.Equal(t, 5, snap.Deal.JoinedComputeUnits)
	assert.Equal(t, []int64{2, 4}, skips)
}

func TestFetchDealMissingPieces(t *testing.T) {
	t.Run("no deal", func(t *testing.T) {
		srv := graphQLServer(t, http.StatusOK, `{"data":{"deal":null,"_meta":{"block":{"timestamp":1}},"graphNetworks":[]}}`, nil)
		snap, err := newTestClient(t, srv.URL).FetchDeal(context.Background(), dealID)
		require.NoError(t, err)
		assert.Nil(t, snap.Deal)
		assert.Nil(t, snap.Network)
	})

	t.Run("null effectors", func(t *testing.T) {
		srv := graphQLServer(t, http.StatusOK,
			`{"data":{"deal":{"id":"0xaa","targetWorkers":1,"pricePerWorkerEpoch":"1","effectors":null},"graphNetworks":[]}}`, nil)
		snap, err := newTestClient(t, srv.URL).FetchDeal(context.Background(), dealID)
		require.NoError(t, err)
		require.NotNil(t, snap.Deal)
		assert.Nil(t, snap.Deal.Effectors)
		assert.Nil(t, snap.BlockTimestamp)
	})

	t.Run("empty effectors", func(t *testing.T) {
		srv := graphQLServer(t, http.StatusOK,
			`{"data":{"deal":{"id":"0xaa","targetWorkers":1,"pricePerWorkerEpoch":"1","effectors":[]},"graphNetworks":[]}}`, nil)
		snap, err := newTestClient(t, srv.URL).FetchDeal(context.Background(), dealID)
		require.NoError(t, err)
		assert.NotNil(t, snap.Deal.Effectors)
		assert.Empty(t, snap.Deal.Effectors)
	})
}

func TestClientWithMatcher(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		raw, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(raw, "operationName").String() == "DealQuery" {
			_, _ = w.Write([]byte(dealBody))
			return
		}
		_, _ = w.Write([]byte(offersBody))
	}))
	defer srv.Close()

	c, err := NewClient(&Config{URL: srv.URL})
	require.NoError(t, err)
	m := dealmatcher.NewMatcher(c, dealmatcher.WithMaxPageSize(c.MaxPageSize()))

	res, err := m.MatchDeal(context.Background(), dealID)
	require.NoError(t, err)
	// One unit already joined: target 3, minimum 1. The single eligible unit
	// satisfies the minimum only.
	assert.False(t, res.Fulfilled)
	assert.Equal(t, []string{"0xoffer"}, res.Offers)
	assert.Equal(t, [][]string{{"0xcu"}}, res.ComputeUnitsPerOffers)
	assert.Equal(t, 2, calls)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(&Config{Network: NetworkStage})
	require.NoError(t, err)
	assert.Equal(t, "https://graph-node.fluence.dev/subgraphs/name/fluence-deal-contracts", c.URL())
	assert.Equal(t, dealmatcher.DefaultMaxPageSize, c.MaxPageSize())

	_, err = NewClient(&Config{Network: NetworkKras})
	assert.Error(t, err)

	_, err = NewClient(nil)
	assert.Error(t, err)
}

func TestURLForNetwork(t *testing.T) {
	for _, network := range []string{NetworkTestnet, NetworkStage, NetworkLocal} {
		url, err := URLForNetwork(network)
		require.NoError(t, err, network)
		assert.NotEmpty(t, url)
	}

	_, err := URLForNetwork(NetworkKras)
	assert.ErrorContains(t, err, "not deployed")

	_, err = URLForNetwork("mainnet")
	assert.ErrorContains(t, err, "unknown network")
}
