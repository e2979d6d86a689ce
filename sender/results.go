package sender

import (
	"github.com/ethereum/go-ethereum/common"
)

// SendBundleResultKind discriminates the closed set of terminal outcomes an
// outer iteration of the sender loop can produce. Modeled as a tagged
// union (kind + payload fields) rather than an interface hierarchy.
type SendBundleResultKind uint8

const (
	ResultSuccess SendBundleResultKind = iota
	ResultNoOperationsInitially
	ResultNoOperationsAfterFeeIncreases
	ResultStalledAtMaxFeeIncreases
	ResultError
)

// SendBundleResult is the terminal value of one call to
// sendBundleWithIncreasingGasFees.
type SendBundleResult struct {
	Kind SendBundleResultKind

	// ResultSuccess (Attempt is also set for ResultNoOperationsAfterFeeIncreases)
	Block   uint64
	Attempt uint64
	TxHash  common.Hash

	// ResultNoOperationsAfterFeeIncreases / ResultStalledAtMaxFeeIncreases
	InitialOpCount int

	// ResultError
	Err error
}

func successResult(block, attempt uint64, txHash common.Hash) SendBundleResult {
	return SendBundleResult{Kind: ResultSuccess, Block: block, Attempt: attempt, TxHash: txHash}
}

func noOperationsInitially() SendBundleResult {
	return SendBundleResult{Kind: ResultNoOperationsInitially}
}

func noOperationsAfterFeeIncreases(initialOpCount int, attempt uint64) SendBundleResult {
	return SendBundleResult{Kind: ResultNoOperationsAfterFeeIncreases, InitialOpCount: initialOpCount, Attempt: attempt}
}

func stalledAtMaxFeeIncreases(initialOpCount int) SendBundleResult {
	return SendBundleResult{Kind: ResultStalledAtMaxFeeIncreases, InitialOpCount: initialOpCount}
}

func errorResult(err error) SendBundleResult {
	return SendBundleResult{Kind: ResultError, Err: err}
}

// TrackerUpdateKind discriminates the tracker's classification of the
// currently tracked nonce.
type TrackerUpdateKind uint8

const (
	UpdateMined TrackerUpdateKind = iota
	UpdateStillPendingAfterWait
	UpdateLatestTxDropped
	UpdateNonceUsedForOtherTx
)

// TrackerUpdate is the tracker's report on the fate of the signer's current
// nonce, produced by both the blocking wait and the non-blocking poll.
type TrackerUpdate struct {
	Kind TrackerUpdateKind

	// UpdateMined
	TxHash  common.Hash
	Nonce   uint64
	Fees    GasFees
	Block   uint64
	Attempt uint64

	// UpdateLatestTxDropped / UpdateNonceUsedForOtherTx carry Nonce above.
}

func minedUpdate(txHash common.Hash, nonce uint64, fees GasFees, block, attempt uint64) TrackerUpdate {
	return TrackerUpdate{Kind: UpdateMined, TxHash: txHash, Nonce: nonce, Fees: fees, Block: block, Attempt: attempt}
}

// SendResultKind discriminates whether TransactionTracker.SendTransaction
// resolved synchronously or handed back an in-flight transaction hash.
type SendResultKind uint8

const (
	SendResultTxHash SendResultKind = iota
	SendResultTrackerUpdate
)

// SendResult is the outcome of one call to TransactionTracker.SendTransaction.
type SendResult struct {
	Kind    SendResultKind
	TxHash  common.Hash
	Update  *TrackerUpdate
}
