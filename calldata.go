package dealmatcher

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MatchDealABI is the Market.matchDeal fragment the MatchResult layout follows.
const MatchDealABI = `[{
	"type": "function",
	"name": "matchDeal",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "deal", "type": "address"},
		{"name": "offers", "type": "bytes32[]"},
		{"name": "computeUnits", "type": "bytes32[][]"}
	],
	"outputs": []
}]`

var matchDealABI = mustParseABI(MatchDealABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid matchDeal ABI: %v", err))
	}
	return parsed
}

// PackMatchDeal ABI-encodes a matchDeal call for the given deal and result.
// Only fulfilled or otherwise non-empty results can be submitted.
func PackMatchDeal(dealID string, result *MatchResult) ([]byte, error) {
	if !common.IsHexAddress(dealID) {
		return nil, NewMatchError(ErrCodeInvalidRequest, fmt.Sprintf("invalid deal address: %s", dealID), nil)
	}
	if result == nil || len(result.Offers) == 0 {
		return nil, NewMatchError(ErrCodeInvalidRequest, "nothing to match: result is empty", nil)
	}
	if len(result.Offers) != len(result.ComputeUnitsPerOffers) {
		return nil, NewMatchError(ErrCodeInvalidRequest,
			fmt.Sprintf("offers (%d) and compute unit lists (%d) are not aligned", len(result.Offers), len(result.ComputeUnitsPerOffers)), nil)
	}

	offers := make([][32]byte, len(result.Offers))
	computeUnits := make([][][32]byte, len(result.Offers))
	for i, offerID := range result.Offers {
		id, err := parseBytes32(offerID)
		if err != nil {
			return nil, fmt.Errorf("offer %d: %w", i, err)
		}
		offers[i] = id

		units := make([][32]byte, len(result.ComputeUnitsPerOffers[i]))
		for j, unitID := range result.ComputeUnitsPerOffers[i] {
			uid, err := parseBytes32(unitID)
			if err != nil {
				return nil, fmt.Errorf("offer %d compute unit %d: %w", i, j, err)
			}
			units[j] = uid
		}
		computeUnits[i] = units
	}

	return matchDealABI.Pack("matchDeal", common.HexToAddress(dealID), offers, computeUnits)
}

func parseBytes32(id string) ([32]byte, error) {
	var out [32]byte
	raw, err := hexutil.Decode(id)
	if err != nil {
		return out, NewMatchError(ErrCodeInvalidRequest, fmt.Sprintf("invalid bytes32 id %q: %v", id, err), nil)
	}
	if len(raw) != len(out) {
		return out, NewMatchError(ErrCodeInvalidRequest, fmt.Sprintf("invalid bytes32 id %q: %d bytes", id, len(raw)), nil)
	}
	copy(out[:], raw)
	return out, nil
}
