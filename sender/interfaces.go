package sender

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockWatcher awaits a strictly greater block number than the last one
// observed, used to pace the automatic-mode outer loop.
type BlockWatcher interface {
	WaitForNewBlockNumber(ctx context.Context, lastBlockNumber uint64, pollInterval time.Duration) (uint64, error)
}

// BundleProposer produces a candidate Bundle given an optional fee floor.
// May return an empty bundle; must never return a bundle whose fees fall
// below the floor.
type BundleProposer interface {
	MakeBundle(ctx context.Context, requiredFees *GasFees) (*Bundle, error)
}

// OperationPool is the remote service holding candidate user operations.
// remove_ops/remove_entities are idempotent.
type OperationPool interface {
	RemoveOps(ctx context.Context, entryPoint common.Address, hashes []common.Hash) error
	RemoveEntities(ctx context.Context, entryPoint common.Address, entities []Entity) error
}

// EntryPoint builds the calldata-shaped transaction envelope for a bundle.
// The returned tx data carries no nonce (Nonce: 0); the caller sets Nonce
// before wrapping it with types.NewTx.
type EntryPoint interface {
	Address() common.Address
	GetSendBundleTransaction(ctx context.Context, opsPerAggregator []AggregatedOps, beneficiary common.Address, gas uint64, fees GasFees) (*types.DynamicFeeTx, error)
}

// TransactionTracker owns the signer's nonce, submits transactions, and
// reports their fate. Signing of the transaction is delegated to the
// tracker; the core never holds a private key.
type TransactionTracker interface {
	// GetNonceAndRequiredFees returns the nonce to use for the next
	// submission and, if a transaction is already in flight for it, the
	// minimum fees any replacement must meet or exceed.
	GetNonceAndRequiredFees(ctx context.Context) (nonce uint64, requiredFees *GasFees, err error)

	// SendTransaction submits tx. It may resolve synchronously to a
	// TrackerUpdate if a prior transaction's fate became known mid-submit.
	SendTransaction(ctx context.Context, tx *BundleTx) (SendResult, error)

	// WaitForUpdate blocks until the tracker can classify the outstanding
	// submission.
	WaitForUpdate(ctx context.Context) (TrackerUpdate, error)

	// CheckForUpdateNow is a non-blocking poll, used once per block before
	// a new attempt starts.
	CheckForUpdateNow(ctx context.Context) (*TrackerUpdate, error)
}
