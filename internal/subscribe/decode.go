package subscribe

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/RedBird96/detect-amm-imbalance/internal/arberr"
	"github.com/RedBird96/detect-amm-imbalance/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// syncEventSignature is the Sync(uint112,uint112) event signature whose
// Keccak-256 hash is topic0 of every Sync log.
const syncEventSignature = "Sync(uint112,uint112)"

// SyncTopic is computed once at package init and used as the filter
// topic for every subscription batch.
var SyncTopic = crypto.Keccak256Hash([]byte(syncEventSignature))

const syncEventABIJSON = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "reserve0", "type": "uint112"},
			{"indexed": false, "name": "reserve1", "type": "uint112"}
		],
		"name": "Sync",
		"type": "event"
	}
]`

var syncEventABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(syncEventABIJSON))
	if err != nil {
		panic("subscribe: malformed Sync event ABI: " + err.Error())
	}
	syncEventABI = parsed
}

// SyncEvent is a decoded Sync(uint112, uint112) log.
type SyncEvent struct {
	Pool     domain.Address
	Reserve0 *domain.Uint256
	Reserve1 *domain.Uint256
	TxHash   common.Hash
}

// DecodeSync decodes log as Sync(uint112, uint112). Undecodable logs
// return a DecodeError; callers log and skip.
func DecodeSync(log types.Log) (SyncEvent, error) {
	var raw struct {
		Reserve0 *big.Int
		Reserve1 *big.Int
	}
	if err := syncEventABI.UnpackIntoInterface(&raw, "Sync", log.Data); err != nil {
		return SyncEvent{}, &arberr.DecodeError{Cause: fmt.Errorf("unpack Sync: %w", err)}
	}
	if raw.Reserve0 == nil || raw.Reserve1 == nil {
		return SyncEvent{}, &arberr.DecodeError{Cause: fmt.Errorf("Sync log missing reserves")}
	}

	r0, r1 := new(domain.Uint256), new(domain.Uint256)
	if overflow := r0.SetFromBig(raw.Reserve0); overflow {
		return SyncEvent{}, &arberr.DecodeError{Cause: fmt.Errorf("reserve0 overflows uint256")}
	}
	if overflow := r1.SetFromBig(raw.Reserve1); overflow {
		return SyncEvent{}, &arberr.DecodeError{Cause: fmt.Errorf("reserve1 overflows uint256")}
	}

	poolAddr, err := domain.ParseAddress(strings.ToLower(log.Address.Hex()))
	if err != nil {
		return SyncEvent{}, &arberr.DecodeError{Cause: err}
	}

	return SyncEvent{
		Pool:     poolAddr,
		Reserve0: r0,
		Reserve1: r1,
		TxHash:   log.TxHash,
	}, nil
}
