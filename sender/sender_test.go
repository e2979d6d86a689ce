package sender_test

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NethermindEth/bundle-sender/sender"
	"github.com/NethermindEth/bundle-sender/tracker"
)

// --- fakes -------------------------------------------------------------

type fakeBlockWatcher struct{}

func (fakeBlockWatcher) WaitForNewBlockNumber(ctx context.Context, last uint64, poll time.Duration) (uint64, error) {
	return last + 1, nil
}

type fakeEntryPoint struct {
	addr common.Address
}

func (f fakeEntryPoint) Address() common.Address { return f.addr }

func (f fakeEntryPoint) GetSendBundleTransaction(ctx context.Context, ops []sender.AggregatedOps, beneficiary common.Address, gas uint64, fees sender.GasFees) (*types.DynamicFeeTx, error) {
	return &types.DynamicFeeTx{
		To:        &f.addr,
		Gas:       gas,
		GasFeeCap: fees.MaxFeePerGas.ToBig(),
		GasTipCap: fees.MaxPriorityFeePerGas.ToBig(),
	}, nil
}

type fakePool struct {
	mu              sync.Mutex
	removedOps      [][]common.Hash
	removedEntities [][]sender.Entity
}

func (p *fakePool) RemoveOps(ctx context.Context, entryPoint common.Address, hashes []common.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removedOps = append(p.removedOps, append([]common.Hash(nil), hashes...))
	return nil
}

func (p *fakePool) RemoveEntities(ctx context.Context, entryPoint common.Address, entities []sender.Entity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removedEntities = append(p.removedEntities, append([]sender.Entity(nil), entities...))
	return nil
}

// scriptedProposer hands back one *sender.Bundle per call, in order. When a
// bundle's GasFees is left zero-valued, the required-fees floor (or a
// default) is substituted, mirroring how GreedyProposer always meets the
// floor exactly.
type scriptedProposer struct {
	mu       sync.Mutex
	bundles  []*sender.Bundle
	fallback sender.GasFees
	idx      int
}

func (p *scriptedProposer) MakeBundle(ctx context.Context, requiredFees *sender.GasFees) (*sender.Bundle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx >= len(p.bundles) {
		return nil, fmt.Errorf("scripted proposer: no bundle for call %d", p.idx)
	}
	b := p.bundles[p.idx]
	p.idx++
	if b.GasFees.MaxFeePerGas == nil {
		if requiredFees != nil {
			b.GasFees = *requiredFees
		} else {
			b.GasFees = p.fallback
		}
	}
	return b, nil
}

func opWith(addr common.Address, nonce uint64) *sender.UserOperation {
	var b [32]byte
	binary.BigEndian.PutUint64(b[24:], nonce)
	return &sender.UserOperation{Sender: addr, Nonce: common.Hash(b), CallData: []byte{0x01}}
}

func oneOpBundle(gasEstimate uint64, op *sender.UserOperation) *sender.Bundle {
	return &sender.Bundle{
		OpsPerAggregator: []sender.AggregatedOps{{Ops: []*sender.UserOperation{op}}},
		GasEstimate:      gasEstimate,
	}
}

// --- harness -------------------------------------------------------------

const testPollInterval = 10 * time.Millisecond

func newTestLoop(t *testing.T, settings sender.Settings, tr sender.TransactionTracker, proposer sender.BundleProposer, pool sender.OperationPool, ep sender.EntryPoint) *sender.BundleSenderLoop {
	t.Helper()
	return sender.New(sender.Config{
		ID:           "test-builder",
		Beneficiary:  common.HexToAddress("0xbeef000000000000000000000000000000beef"),
		ChainID:      1,
		Settings:     settings,
		PollInterval: testPollInterval,
	}, fakeBlockWatcher{}, tr, proposer, pool, ep)
}

// runOneManualIteration flips the loop into manual mode, submits one
// SendBundleRequest, and returns the single reply the loop delivers for it.
func runOneManualIteration(t *testing.T, loop *sender.BundleSenderLoop) (sender.SendBundleResult, []sender.WithEntryPoint[sender.BuilderEvent]) {
	t.Helper()

	events := make(chan sender.WithEntryPoint[sender.BuilderEvent], 16)
	sub := loop.Events().Subscribe(events)
	defer sub.Unsubscribe()

	loop.SetManualBundlingMode(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	reply := make(chan sender.SendBundleResult, 1)
	loop.SubmitManualBundleRequest(sender.SendBundleRequest{ReplyTo: reply})

	var result sender.SendBundleResult
	select {
	case result = <-reply:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bundle result")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	var collected []sender.WithEntryPoint[sender.BuilderEvent]
drain:
	for {
		select {
		case ev := <-events:
			collected = append(collected, ev)
		default:
			break drain
		}
	}

	return result, collected
}

// --- S1: mine on first attempt -------------------------------------------

func TestBundleSenderLoop_MinesOnFirstAttempt(t *testing.T) {
	txHash := common.HexToHash("0x01")
	op := opWith(common.HexToAddress("0xaaaa000000000000000000000000000000aaaa"), 0)

	proposer := &scriptedProposer{bundles: []*sender.Bundle{oneOpBundle(100_000, op)}, fallback: sender.NewGasFees(10, 1)}
	tr := &tracker.FakeTracker{
		Nonce:       5,
		SendResults: []sender.SendResult{{Kind: sender.SendResultTxHash, TxHash: txHash}},
		WaitUpdates: []sender.TrackerUpdate{{Kind: sender.UpdateMined, TxHash: txHash, Nonce: 5, Block: 1000, Attempt: 0}},
	}
	pool := &fakePool{}
	ep := fakeEntryPoint{addr: common.HexToAddress("0xe9e9000000000000000000000000000000e9e9")}

	loop := newTestLoop(t, sender.Settings{ReplacementFeePercentIncrease: 20, MaxFeeIncreases: 3}, tr, proposer, pool, ep)
	result, events := runOneManualIteration(t, loop)

	require.Equal(t, sender.ResultSuccess, result.Kind)
	assert.Equal(t, uint64(1000), result.Block)
	assert.Equal(t, uint64(0), result.Attempt)
	assert.Equal(t, txHash, result.TxHash)

	require.Len(t, tr.Sent, 1)
	assert.Equal(t, uint64(110_000), tr.Sent[0].Tx.Gas(), "gas must be ceil(100_000 * 1.10)")

	var sawFormed, sawMined bool
	for _, e := range events {
		switch e.Event.Kind {
		case sender.EventFormedBundle:
			sawFormed = true
			require.NotNil(t, e.Event.FormedBundle)
			assert.Equal(t, txHash, e.Event.FormedBundle.TxHash)
		case sender.EventTransactionMined:
			sawMined = true
			assert.Equal(t, txHash, e.Event.TxHash)
		}
	}
	assert.True(t, sawFormed, "expected a formed_bundle event")
	assert.True(t, sawMined, "expected a transaction_mined event")
}

// --- S2: escalate then mine -----------------------------------------------

func TestBundleSenderLoop_EscalatesFeesThenMines(t *testing.T) {
	h0 := common.HexToHash("0x01")
	h1 := common.HexToHash("0x02")
	op := opWith(common.HexToAddress("0xaaaa000000000000000000000000000000aaaa"), 0)

	proposer := &scriptedProposer{
		bundles: []*sender.Bundle{
			oneOpBundle(100_000, op),
			oneOpBundle(100_000, op),
		},
		fallback: sender.NewGasFees(10, 1),
	}
	tr := &tracker.FakeTracker{
		Nonce: 5,
		SendResults: []sender.SendResult{
			{Kind: sender.SendResultTxHash, TxHash: h0},
			{Kind: sender.SendResultTxHash, TxHash: h1},
		},
		WaitUpdates: []sender.TrackerUpdate{
			{Kind: sender.UpdateStillPendingAfterWait},
			{Kind: sender.UpdateMined, TxHash: h1, Nonce: 5, Block: 1001, Attempt: 1},
		},
	}
	pool := &fakePool{}
	ep := fakeEntryPoint{addr: common.HexToAddress("0xe9e9000000000000000000000000000000e9e9")}

	loop := newTestLoop(t, sender.Settings{ReplacementFeePercentIncrease: 20, MaxFeeIncreases: 3}, tr, proposer, pool, ep)
	result, _ := runOneManualIteration(t, loop)

	require.Equal(t, sender.ResultSuccess, result.Kind)
	assert.Equal(t, uint64(1), result.Attempt)

	require.Len(t, tr.Sent, 2)
	first := tr.Sent[0].CurrentFees()
	second := tr.Sent[1].CurrentFees()

	assert.True(t, second.GreaterOrEqual(first))
	assert.GreaterOrEqual(t, second.MaxFeePerGas.Uint64(), uint64(12), "ceil(10 * 1.20)")
	assert.GreaterOrEqual(t, second.MaxPriorityFeePerGas.Uint64(), uint64(2), "ceil(1 * 1.20)")
}

// --- S3: starve out after rejections --------------------------------------

func TestBundleSenderLoop_NoOperationsAfterFeeIncreases(t *testing.T) {
	h0 := common.HexToHash("0x01")
	ops := []*sender.UserOperation{
		opWith(common.HexToAddress("0xaaaa000000000000000000000000000000aaaa"), 0),
		opWith(common.HexToAddress("0xbbbb000000000000000000000000000000bbbb"), 0),
		opWith(common.HexToAddress("0xcccc000000000000000000000000000000cccc"), 0),
	}
	nonEmpty := &sender.Bundle{
		OpsPerAggregator: []sender.AggregatedOps{{Ops: ops}},
		GasEstimate:      300_000,
	}
	empty := &sender.Bundle{}

	proposer := &scriptedProposer{bundles: []*sender.Bundle{nonEmpty, empty}, fallback: sender.NewGasFees(10, 1)}
	tr := &tracker.FakeTracker{
		Nonce:       7,
		SendResults: []sender.SendResult{{Kind: sender.SendResultTxHash, TxHash: h0}},
		WaitUpdates: []sender.TrackerUpdate{{Kind: sender.UpdateStillPendingAfterWait}},
	}
	pool := &fakePool{}
	ep := fakeEntryPoint{addr: common.HexToAddress("0xe9e9000000000000000000000000000000e9e9")}

	loop := newTestLoop(t, sender.Settings{ReplacementFeePercentIncrease: 10, MaxFeeIncreases: 3}, tr, proposer, pool, ep)
	result, events := runOneManualIteration(t, loop)

	require.Equal(t, sender.ResultNoOperationsAfterFeeIncreases, result.Kind)
	assert.Equal(t, 3, result.InitialOpCount)
	assert.Equal(t, uint64(1), result.Attempt)

	var sawEmptyFormed bool
	for _, e := range events {
		if e.Event.Kind == sender.EventFormedBundle && e.Event.FormedBundle == nil {
			sawEmptyFormed = true
		}
	}
	assert.True(t, sawEmptyFormed, "expected a formed_bundle event with tx_hash=None")
}

// --- S4: never any operations ----------------------------------------------

func TestBundleSenderLoop_NoOperationsInitially(t *testing.T) {
	proposer := &scriptedProposer{bundles: []*sender.Bundle{{}}, fallback: sender.NewGasFees(10, 1)}
	tr := &tracker.FakeTracker{Nonce: 1}
	pool := &fakePool{}
	ep := fakeEntryPoint{addr: common.HexToAddress("0xe9e9000000000000000000000000000000e9e9")}

	loop := newTestLoop(t, sender.Settings{ReplacementFeePercentIncrease: 10, MaxFeeIncreases: 3}, tr, proposer, pool, ep)
	result, _ := runOneManualIteration(t, loop)

	require.Equal(t, sender.ResultNoOperationsInitially, result.Kind)
	assert.Empty(t, tr.Sent, "no operations means no submission")
}

// --- S5: external nonce collision ------------------------------------------

func TestBundleSenderLoop_NonceUsedForOtherTx(t *testing.T) {
	h0 := common.HexToHash("0x01")
	op := opWith(common.HexToAddress("0xaaaa000000000000000000000000000000aaaa"), 0)

	proposer := &scriptedProposer{bundles: []*sender.Bundle{oneOpBundle(100_000, op)}, fallback: sender.NewGasFees(10, 1)}
	tr := &tracker.FakeTracker{
		Nonce:       5,
		SendResults: []sender.SendResult{{Kind: sender.SendResultTxHash, TxHash: h0}},
		WaitUpdates: []sender.TrackerUpdate{{Kind: sender.UpdateNonceUsedForOtherTx, Nonce: 5}},
	}
	pool := &fakePool{}
	ep := fakeEntryPoint{addr: common.HexToAddress("0xe9e9000000000000000000000000000000e9e9")}

	loop := newTestLoop(t, sender.Settings{ReplacementFeePercentIncrease: 10, MaxFeeIncreases: 3}, tr, proposer, pool, ep)
	result, events := runOneManualIteration(t, loop)

	require.Equal(t, sender.ResultError, result.Kind)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, sender.ErrNonceUsedForOtherTx)

	var sawNonceUsed bool
	for _, e := range events {
		if e.Event.Kind == sender.EventNonceUsedForOtherTransaction {
			sawNonceUsed = true
			assert.Equal(t, uint64(5), e.Event.NonceLow64)
		}
	}
	assert.True(t, sawNonceUsed)
}

// --- S6: rejections recorded even without a bundle --------------------------

func TestBundleSenderLoop_RemovesRejectedWithoutBundle(t *testing.T) {
	rejectedOp1 := &sender.UserOperation{Sender: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	rejectedOp2 := &sender.UserOperation{Sender: common.HexToAddress("0x2222222222222222222222222222222222222222")}
	rejectedEntity := sender.Entity{Kind: sender.EntityKindPaymaster, Address: common.HexToAddress("0x3333333333333333333333333333333333333333")}

	bundle := &sender.Bundle{
		RejectedOps:      []*sender.UserOperation{rejectedOp1, rejectedOp2},
		RejectedEntities: []sender.Entity{rejectedEntity},
	}

	proposer := &scriptedProposer{bundles: []*sender.Bundle{bundle}, fallback: sender.NewGasFees(10, 1)}
	tr := &tracker.FakeTracker{Nonce: 1}
	pool := &fakePool{}
	ep := fakeEntryPoint{addr: common.HexToAddress("0xe9e9000000000000000000000000000000e9e9")}

	loop := newTestLoop(t, sender.Settings{ReplacementFeePercentIncrease: 10, MaxFeeIncreases: 3}, tr, proposer, pool, ep)
	result, _ := runOneManualIteration(t, loop)

	require.Equal(t, sender.ResultNoOperationsInitially, result.Kind)

	require.Len(t, pool.removedOps, 1)
	assert.ElementsMatch(t, []common.Hash{
		rejectedOp1.OpHash(ep.addr, 1),
		rejectedOp2.OpHash(ep.addr, 1),
	}, pool.removedOps[0])

	require.Len(t, pool.removedEntities, 1)
	assert.Equal(t, []sender.Entity{rejectedEntity}, pool.removedEntities[0])
}
