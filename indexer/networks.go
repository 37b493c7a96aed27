package indexer

import "fmt"

// Known network names.
const (
	NetworkKras    = "kras"
	NetworkTestnet = "testnet"
	NetworkStage   = "stage"
	NetworkLocal   = "local"
)

var networkURLs = map[string]string{
	NetworkTestnet: "https://api.thegraph.com/subgraphs/name/alcibiadescleinias/fluence-deal-contracts",
	NetworkStage:   "https://graph-node.fluence.dev/subgraphs/name/fluence-deal-contracts",
	NetworkLocal:   "http://localhost:8000/subgraphs/name/fluence-deal-contracts",
}

// URLForNetwork returns the indexer endpoint deployed for network.
func URLForNetwork(network string) (string, error) {
	if network == NetworkKras {
		return "", fmt.Errorf("indexer for %s is not deployed", network)
	}
	url, ok := networkURLs[network]
	if !ok {
		return "", fmt.Errorf("unknown network: %q", network)
	}
	return url, nil
}
