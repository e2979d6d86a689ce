package sender

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// AggregatedOps groups the operations that share a single (possibly nil)
// aggregator, the unit the entry point's handleOps-equivalent call expects.
type AggregatedOps struct {
	Aggregator *common.Address
	Ops        []*UserOperation
}

// ExpectedStorage is a pre-submission snapshot of contract storage slots a
// bundle's execution relies on, handed to the tracker so it can simulate
// against the anticipated state before broadcasting a replacement.
type ExpectedStorage map[common.Address]map[common.Hash]common.Hash

// Bundle is the proposer's candidate for the next submission: an ordered set
// of operations grouped by aggregator, plus whatever the proposer rejected
// along the way.
type Bundle struct {
	OpsPerAggregator []AggregatedOps
	GasEstimate      uint64
	GasFees          GasFees
	ExpectedStorage  ExpectedStorage
	RejectedOps      []*UserOperation
	RejectedEntities []Entity
}

// IsEmpty reports whether the bundle contains zero accepted operations.
func (b *Bundle) IsEmpty() bool {
	return b.opCount() == 0
}

func (b *Bundle) opCount() int {
	n := 0
	for _, group := range b.OpsPerAggregator {
		n += len(group.Ops)
	}
	return n
}

// OpHashes computes the op hash for every included operation, in bundle
// iteration order, against the given entry point and chain id.
func (b *Bundle) OpHashes(entryPoint common.Address, chainID uint64) []common.Hash {
	hashes := make([]common.Hash, 0, b.opCount())
	for _, group := range b.OpsPerAggregator {
		for _, op := range group.Ops {
			hashes = append(hashes, op.OpHash(entryPoint, chainID))
		}
	}
	return hashes
}

// BundleTx is the transient, single-iteration envelope produced by bundle
// construction: the unsigned transaction, the storage the
// tracker should simulate against, and the op hashes included, in order.
type BundleTx struct {
	Tx              *types.Transaction
	ExpectedStorage ExpectedStorage
	OpHashes        []common.Hash
}

// CurrentFees reads back the fees actually carried by the built envelope,
// which may exceed the floor that was requested: the
// proposer or entry point is free to round up.
func (b *BundleTx) CurrentFees() GasFees {
	maxFee, _ := uint256.FromBig(b.Tx.GasFeeCap())
	tip, _ := uint256.FromBig(b.Tx.GasTipCap())
	return GasFees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}
}
