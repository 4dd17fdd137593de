package subscribe

import (
	"math/big"
	"testing"

	"github.com/RedBird96/detect-amm-imbalance/internal/arberr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestDecodeSyncRoundTrips(t *testing.T) {
	r0 := big.NewInt(12345)
	r1 := big.NewInt(67890)

	data, err := syncEventABI.Events["Sync"].Inputs.Pack(r0, r1)
	require.NoError(t, err)

	lg := types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Data:    data,
		TxHash:  common.HexToHash("0xaaaa"),
	}

	event, err := DecodeSync(lg)
	require.NoError(t, err)
	require.Equal(t, r0, event.Reserve0.ToBig())
	require.Equal(t, r1, event.Reserve1.ToBig())
	require.Equal(t, "0x1111111111111111111111111111111111111111", event.Pool.Hex())
	require.Equal(t, lg.TxHash, event.TxHash)
}

func TestDecodeSyncRejectsMalformedData(t *testing.T) {
	lg := types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Data:    []byte{0x01, 0x02},
	}
	_, err := DecodeSync(lg)
	require.Error(t, err)
	var decodeErr *arberr.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}
