package entrypoint

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/bundle-sender/sender"
)

func TestContract_GetSendBundleTransaction(t *testing.T) {
	addr := common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	c := New(addr, 1)

	op := &sender.UserOperation{
		Sender:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Nonce:    common.BigToHash(big.NewInt(3)),
		CallData: []byte{0xde, 0xad, 0xbe, 0xef},
	}
	bundle := []sender.AggregatedOps{{Ops: []*sender.UserOperation{op}}}

	fees := sender.NewGasFees(100, 2)
	txdata, err := c.GetSendBundleTransaction(context.Background(), bundle, common.HexToAddress("0x2222222222222222222222222222222222222222"), 500_000, fees)
	require.NoError(t, err)

	assert.Equal(t, &addr, txdata.To)
	assert.Equal(t, uint64(500_000), txdata.Gas)
	assert.Equal(t, uint64(1), txdata.ChainID.Uint64())
	assert.Equal(t, handleOpsSelector[:], txdata.Data[:4])
	assert.Equal(t, uint64(0), txdata.Nonce, "nonce is left for the caller to fill in")
}

func TestContract_EmptyBundleStillPacks(t *testing.T) {
	c := New(common.HexToAddress("0x3333333333333333333333333333333333333333"), 5)
	txdata, err := c.GetSendBundleTransaction(context.Background(), nil, common.Address{}, 21_000, sender.NewGasFees(1, 1))
	require.NoError(t, err)
	assert.Equal(t, handleOpsSelector[:], txdata.Data[:4])
}
