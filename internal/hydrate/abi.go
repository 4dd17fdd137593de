package hydrate

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// viewerABIJSON declares the single aggregator method the Hydrator
// calls: viewPair(address[]) -> uint112[]. Defining the ABI inline with
// abi.JSON, rather than generating a binding, mirrors the raw-ABI-call
// idiom used for batched reads against multicall-style aggregator
// contracts elsewhere in the retrieval pack's DEX-watcher reference
// code.
const viewerABIJSON = `[
	{
		"constant": true,
		"inputs": [{"name": "pairs", "type": "address[]"}],
		"name": "viewPair",
		"outputs": [{"name": "", "type": "uint112[]"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var viewerABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(viewerABIJSON))
	if err != nil {
		panic("hydrate: malformed viewer ABI: " + err.Error())
	}
	viewerABI = parsed
}
