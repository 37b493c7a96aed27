package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	dealmatcher "github.com/Lucky4Angel/deal"
	logutil "github.com/Lucky4Angel/deal/internal/logging"
)

// ============================================================================
// GraphQL Indexer Client
// ============================================================================

// Client reads offers and deals from a Graph-style GraphQL indexer.
// Implements dealmatcher.Indexer.
type Client struct {
	url         string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxPageSize int
	logger      logr.Logger
}

// Config configures the indexer client
type Config struct {
	// URL is the GraphQL endpoint. When empty it is derived from Network.
	URL string

	// Network selects a known deployment (optional when URL is set)
	Network string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration

	// MaxPageSize is the largest `first` the indexer accepts (optional, defaults to 1000)
	MaxPageSize int

	// RequestsPerSecond limits outgoing requests (optional, unlimited when 0)
	RequestsPerSecond float64

	// Burst is the rate limiter burst (optional, defaults to 1)
	Burst int

	// Logger is used when the request context carries none (optional)
	Logger logr.Logger
}

// queryRetries is the number of attempts for a query on 429 rate limit errors
const queryRetries = 3

// queryRetryBaseDelay is the base delay for exponential backoff on retries
var queryRetryBaseDelay = 1 * time.Second

// NewClient creates a new indexer client
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = &Config{}
	}

	url := config.URL
	if url == "" {
		var err error
		if url, err = URLForNetwork(config.Network); err != nil {
			return nil, err
		}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	maxPageSize := config.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = dealmatcher.DefaultMaxPageSize
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), max(config.Burst, 1))
	}

	logger := config.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	return &Client{
		url:         url,
		httpClient:  httpClient,
		limiter:     limiter,
		maxPageSize: maxPageSize,
		logger:      logger.WithName("indexer"),
	}, nil
}

// URL returns the GraphQL endpoint
func (c *Client) URL() string {
	return c.url
}

// MaxPageSize returns the largest page the client requests per level
func (c *Client) MaxPageSize() int {
	return c.maxPageSize
}

// ============================================================================
// dealmatcher.Indexer Implementation
// ============================================================================

// FetchOffers fetches one page of eligible offers with their nested peer and
// compute unit pages.
func (c *Client) FetchOffers(ctx context.Context, req dealmatcher.PageRequest) ([]dealmatcher.Offer, error) {
	for name, w := range map[string]dealmatcher.Window{
		"offers":        req.Offers,
		"peers":         req.Peers,
		"compute units": req.ComputeUnits,
	} {
		if w.Limit > c.maxPageSize {
			return nil, fmt.Errorf("%s page limit %d exceeds indexer maximum %d", name, w.Limit, c.maxPageSize)
		}
	}

	var resp offersResponse
	if err := c.query(ctx, "OffersQuery", offersQuery, pageVariables(req), &resp); err != nil {
		return nil, err
	}

	offers := make([]dealmatcher.Offer, 0, len(resp.Offers))
	for _, o := range resp.Offers {
		offer, err := o.toOffer()
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// FetchDeal reads a deal snapshot. A missing deal yields a snapshot with a
// nil Deal, not an error.
func (c *Client) FetchDeal(ctx context.Context, dealID string) (*dealmatcher.DealSnapshot, error) {
	id := strings.ToLower(dealID)
	vars := map[string]interface{}{
		"id":       id,
		"maxUnits": c.maxPageSize,
	}

	var resp dealResponse
	if err := c.query(ctx, "DealQuery", dealQuery, vars, &resp); err != nil {
		return nil, err
	}
	snap, err := resp.toSnapshot()
	if err != nil {
		return nil, err
	}

	if snap.Deal != nil && snap.Deal.JoinedComputeUnits >= c.maxPageSize {
		joined, err := c.countAddedComputeUnits(ctx, id, snap.Deal.JoinedComputeUnits)
		if err != nil {
			return nil, err
		}
		snap.Deal.JoinedComputeUnits = joined
	}
	return snap, nil
}

// countAddedComputeUnits keeps paging the deal's added compute units from
// offset counted until a short page.
func (c *Client) countAddedComputeUnits(ctx context.Context, id string, counted int) (int, error) {
	for {
		vars := map[string]interface{}{
			"id":    id,
			"first": c.maxPageSize,
			"skip":  counted,
		}
		var resp dealComputeUnitsResponse
		if err := c.query(ctx, "DealComputeUnitsQuery", dealComputeUnitsQuery, vars, &resp); err != nil {
			return 0, fmt.Errorf("failed to count deal compute units: %w", err)
		}
		if resp.Deal == nil {
			return counted, nil
		}
		n := len(resp.Deal.AddedComputeUnits)
		counted += n
		if n < c.maxPageSize {
			return counted, nil
		}
	}
}

// ============================================================================
// Transport
// ============================================================================

type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLError is returned when the indexer answers with a GraphQL errors list
type GraphQLError struct {
	Operation string
	Messages  []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("indexer %s failed: %s", e.Operation, strings.Join(e.Messages, "; "))
}

// query posts a GraphQL operation and decodes its data into out.
// Retries up to 3 times with exponential backoff on 429 rate limit errors.
func (c *Client) query(ctx context.Context, operation, query string, vars map[string]interface{}, out interface{}) error {
	logger := logutil.FromContext(ctx, c.logger).WithValues("operation", operation)

	body, err := json.Marshal(graphQLRequest{Query: query, OperationName: operation, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", operation, err)
	}
	logger.V(logutil.TRACE).Info("Indexer request", "variables", vars)

	var lastErr error
	for attempt := range queryRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request failed: %w", operation, err)
		}

		responseBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return decodeData(operation, responseBody, out)
		}

		lastErr = fmt.Errorf("indexer %s failed (%d): %s", operation, resp.StatusCode, string(responseBody))

		// Retry on 429 with exponential backoff, except on the last attempt
		if resp.StatusCode == http.StatusTooManyRequests && attempt < queryRetries-1 {
			delay := queryRetryBaseDelay * time.Duration(1<<uint(attempt))
			logger.V(logutil.DEBUG).Info("Indexer rate limited, backing off", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		return lastErr
	}

	return lastErr
}

func decodeData(operation string, body []byte, out interface{}) error {
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("indexer %s returned invalid JSON", operation)
	}

	if errs := gjson.GetBytes(body, "errors"); errs.Exists() && len(errs.Array()) > 0 {
		gqlErr := &GraphQLError{Operation: operation}
		for _, e := range errs.Array() {
			msg := e.Get("message").String()
			if msg == "" {
				msg = e.Raw
			}
			gqlErr.Messages = append(gqlErr.Messages, msg)
		}
		return gqlErr
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return fmt.Errorf("indexer %s returned no data", operation)
	}
	if err := json.Unmarshal([]byte(data.Raw), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

// ============================================================================
// Conversion
// ============================================================================

func (o offerData) toOffer() (dealmatcher.Offer, error) {
	price, ok := new(big.Int).SetString(o.PricePerEpoch, 10)
	if !ok {
		return dealmatcher.Offer{}, fmt.Errorf("offer %s: invalid pricePerEpoch %q", o.ID, o.PricePerEpoch)
	}

	offer := dealmatcher.Offer{
		ID:            o.ID,
		PricePerEpoch: price,
		PaymentToken:  o.PaymentToken.ID,
		ProviderID:    o.Provider.ID,
		Effectors:     effectorIDs(o.Effectors),
		Peers:         make([]dealmatcher.Peer, 0, len(o.Peers)),
	}
	for _, p := range o.Peers {
		peer := dealmatcher.Peer{
			ID:           p.ID,
			ProviderID:   o.Provider.ID,
			ComputeUnits: make([]dealmatcher.ComputeUnit, 0, len(p.ComputeUnits)),
		}
		if cc := p.CurrentCapacityCommitment; cc != nil {
			commitment, err := cc.toCommitment()
			if err != nil {
				return dealmatcher.Offer{}, fmt.Errorf("peer %s: %w", p.ID, err)
			}
			peer.Commitment = commitment
		}
		for _, cu := range p.ComputeUnits {
			peer.ComputeUnits = append(peer.ComputeUnits, dealmatcher.ComputeUnit{ID: cu.ID, PeerID: p.ID})
		}
		offer.Peers = append(offer.Peers, peer)
	}
	return offer, nil
}

func (cc commitmentData) toCommitment() (*dealmatcher.CapacityCommitment, error) {
	var epochs [3]int64
	for i, raw := range []string{cc.StartEpoch, cc.EndEpoch, cc.NextCCFailedEpoch} {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("capacity commitment %s: invalid epoch %q: %w", cc.ID, raw, err)
		}
		epochs[i] = v
	}
	return &dealmatcher.CapacityCommitment{
		ID:               cc.ID,
		StartEpoch:       epochs[0],
		EndEpoch:         epochs[1],
		NextFailureEpoch: epochs[2],
		Status:           dealmatcher.CommitmentStatus(cc.Status),
	}, nil
}

func (r dealResponse) toSnapshot() (*dealmatcher.DealSnapshot, error) {
	snap := &dealmatcher.DealSnapshot{}

	if r.Meta != nil {
		snap.BlockTimestamp = r.Meta.Block.Timestamp
	}
	if len(r.GraphNetworks) > 0 && r.GraphNetworks[0].CoreEpochDuration != nil {
		n := r.GraphNetworks[0]
		initTS, err := strconv.ParseInt(n.InitTimestamp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid network initTimestamp %q: %w", n.InitTimestamp, err)
		}
		snap.Network = &dealmatcher.NetworkParams{InitTimestamp: initTS, EpochDuration: *n.CoreEpochDuration}
	}

	d := r.Deal
	if d == nil {
		return snap, nil
	}

	deal := &dealmatcher.DealRecord{
		ID:                    d.ID,
		TargetWorkers:         d.TargetWorkers,
		MinWorkers:            d.MinWorkers,
		MaxWorkersPerProvider: d.MaxWorkersPerProvider,
		JoinedComputeUnits:    len(d.AddedComputeUnits),
		ProvidersAccessType:   dealmatcher.AccessType(d.ProvidersAccessType),
	}
	if d.PricePerWorkerEpoch != nil {
		price, ok := new(big.Int).SetString(*d.PricePerWorkerEpoch, 10)
		if !ok {
			return nil, fmt.Errorf("deal %s: invalid pricePerWorkerEpoch %q", d.ID, *d.PricePerWorkerEpoch)
		}
		deal.PricePerWorkerEpoch = price
	}
	if d.PaymentToken != nil {
		deal.PaymentToken = d.PaymentToken.ID
	}
	if d.Effectors != nil {
		deal.Effectors = effectorIDs(d.Effectors)
	}
	for _, entry := range d.ProvidersAccessList {
		deal.ProvidersAccessList = append(deal.ProvidersAccessList, entry.Provider.ID)
	}

	snap.Deal = deal
	return snap, nil
}

func effectorIDs(refs []effectorRef) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.Effector.ID)
	}
	return ids
}
