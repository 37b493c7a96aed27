package dealmatcher

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeID lowercases an indexer entity id. Hex addresses are
// round-tripped through common.Address so that checksummed and unprefixed
// forms map to the same id.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if common.IsHexAddress(id) {
		return strings.ToLower(common.HexToAddress(id).Hex())
	}
	return strings.ToLower(id)
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, NormalizeID(id))
	}
	return out
}
