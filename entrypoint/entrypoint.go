// Package entrypoint implements sender.EntryPoint against a deployed
// ERC-4337 entry point contract, building the handleOps calldata and
// wrapping it in an EIP-1559 transaction envelope.
package entrypoint

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/NethermindEth/bundle-sender/sender"
)

// packedOp is the Go-side shape abi.Arguments.Pack expects for the
// handleOps tuple[] argument: field order and types must match the
// component list below exactly.
type packedOp struct {
	Sender    common.Address
	Nonce     *big.Int
	CallData  []byte
	Paymaster common.Address
	Factory   common.Address
}

var handleOpsArguments = abi.Arguments{
	{Type: mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "sender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "callData", Type: "bytes"},
		{Name: "paymaster", Type: "address"},
		{Name: "factory", Type: "address"},
	})},
	{Type: mustType("address", nil)},
}

var handleOpsSelector = methodSelector("handleOps((address,uint256,bytes,address,address)[],address)")

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("entrypoint: building abi type %q: %v", t, err))
	}
	return typ
}

func methodSelector(signature string) [4]byte {
	var out [4]byte
	copy(out[:], crypto.Keccak256([]byte(signature))[:4])
	return out
}

// Contract is a sender.EntryPoint backed by a deployed handleOps-compatible
// contract at Address.
type Contract struct {
	address common.Address
	chainID uint64
}

// New returns a Contract bound to the entry point deployed at address.
func New(address common.Address, chainID uint64) *Contract {
	return &Contract{address: address, chainID: chainID}
}

// Address implements sender.EntryPoint.
func (c *Contract) Address() common.Address { return c.address }

// GetSendBundleTransaction packs the bundle's operations into a single
// handleOps call and returns the unsigned transaction data. The nonce is
// left unset (0); the caller fills it in before wrapping with
// types.NewTx.
func (c *Contract) GetSendBundleTransaction(ctx context.Context, opsPerAggregator []sender.AggregatedOps, beneficiary common.Address, gas uint64, fees sender.GasFees) (*types.DynamicFeeTx, error) {
	calldata, err := c.packHandleOps(opsPerAggregator, beneficiary)
	if err != nil {
		return nil, fmt.Errorf("packing handleOps calldata: %w", err)
	}

	return &types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(c.chainID),
		To:        &c.address,
		Gas:       gas,
		GasFeeCap: fees.MaxFeePerGas.ToBig(),
		GasTipCap: fees.MaxPriorityFeePerGas.ToBig(),
		Data:      calldata,
	}, nil
}

func (c *Contract) packHandleOps(opsPerAggregator []sender.AggregatedOps, beneficiary common.Address) ([]byte, error) {
	packed := make([]packedOp, 0)
	for _, group := range opsPerAggregator {
		for _, op := range group.Ops {
			packed = append(packed, packedOp{
				Sender:    op.Sender,
				Nonce:     new(big.Int).SetBytes(op.Nonce[:]),
				CallData:  op.CallData,
				Paymaster: addrOrZero(op.Paymaster),
				Factory:   addrOrZero(op.Factory),
			})
		}
	}

	args, err := handleOpsArguments.Pack(packed, beneficiary)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, handleOpsSelector[:]...), args...), nil
}

func addrOrZero(a *common.Address) common.Address {
	if a == nil {
		return common.Address{}
	}
	return *a
}

var _ sender.EntryPoint = (*Contract)(nil)
