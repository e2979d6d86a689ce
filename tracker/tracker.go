package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/NethermindEth/bundle-sender/sender"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// Signer signs a built transaction. Kept as a narrow capability so the
// tracker never needs to know how keys are held.
type Signer interface {
	SignTx(ctx context.Context, from common.Address, tx *types.Transaction) (*types.Transaction, error)
}

// EthTracker is a TransactionTracker backed by a live go-ethereum JSON-RPC
// endpoint. It tracks a single outstanding submission for one signer
// address at a time, grounded on ethclient/ethclient_rollup.go's
// batch-RPC dialing conventions and node/node_rollup.go's
// Dial-then-log-on-error pattern.
type EthTracker struct {
	client *ethclient.Client
	rpc    *rpc.Client
	signer Signer
	from   common.Address

	mu      sync.Mutex
	current *outstanding
}

type outstanding struct {
	tx     *types.Transaction
	nonce  uint64
	fees   sender.GasFees
	sentAt uint64
}

// Dial connects to endpoint and returns a ready EthTracker, logging and
// returning the dial error on failure (mirrors node.RegisterEthClient's
// Dial/log convention).
func Dial(endpoint string, from common.Address, signer Signer) (*EthTracker, error) {
	rpcClient, err := rpc.Dial(endpoint)
	if err != nil {
		log.Error("unable to connect to ETH RPC endpoint", "url", endpoint, "err", err)
		return nil, err
	}
	return &EthTracker{
		client: ethclient.NewClient(rpcClient),
		rpc:    rpcClient,
		signer: signer,
		from:   from,
	}, nil
}

func (t *EthTracker) GetNonceAndRequiredFees(ctx context.Context) (uint64, *sender.GasFees, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		required := t.current.fees.IncreaseByPercent(0)
		return t.current.nonce, &required, nil
	}

	nonce, err := t.client.PendingNonceAt(ctx, t.from)
	if err != nil {
		return 0, nil, fmt.Errorf("fetching pending nonce: %w", err)
	}
	return nonce, nil, nil
}

func (t *EthTracker) SendTransaction(ctx context.Context, bundleTx *sender.BundleTx) (sender.SendResult, error) {
	signed, err := t.signer.SignTx(ctx, t.from, bundleTx.Tx)
	if err != nil {
		return sender.SendResult{}, fmt.Errorf("signing bundle transaction: %w", err)
	}

	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return sender.SendResult{}, fmt.Errorf("broadcasting bundle transaction: %w", err)
	}

	t.mu.Lock()
	t.current = &outstanding{tx: signed, nonce: signed.Nonce(), fees: bundleTx.CurrentFees()}
	t.mu.Unlock()

	return sender.SendResult{Kind: sender.SendResultTxHash, TxHash: signed.Hash()}, nil
}

// WaitForUpdate makes a single receipt check for the tracked transaction
// and returns without waiting for further blocks: a transaction with no
// receipt yet is reported as UpdateStillPendingAfterWait at once.
func (t *EthTracker) WaitForUpdate(ctx context.Context) (sender.TrackerUpdate, error) {
	return t.pollOnce(ctx, true)
}

func (t *EthTracker) CheckForUpdateNow(ctx context.Context) (*sender.TrackerUpdate, error) {
	update, err := t.pollOnce(ctx, false)
	if err != nil {
		return nil, err
	}
	if update.Kind == sender.UpdateStillPendingAfterWait {
		return nil, nil
	}
	return &update, nil
}

// pollOnce checks the receipt for the currently tracked transaction once
// and returns at once; it does not wait for blocks, and the block argument
// does not change what it does. A missing receipt or a failed lookup is
// reported as UpdateStillPendingAfterWait.
func (t *EthTracker) pollOnce(ctx context.Context, block bool) (sender.TrackerUpdate, error) {
	t.mu.Lock()
	cur := t.current
	t.mu.Unlock()

	if cur == nil {
		return sender.TrackerUpdate{Kind: sender.UpdateStillPendingAfterWait}, nil
	}

	receipt, err := t.client.TransactionReceipt(ctx, cur.tx.Hash())
	if err != nil {
		return sender.TrackerUpdate{Kind: sender.UpdateStillPendingAfterWait}, nil
	}

	chainNonce, err := t.client.NonceAt(ctx, t.from, nil)
	if err != nil {
		return sender.TrackerUpdate{}, fmt.Errorf("reading chain nonce: %w", err)
	}
	if chainNonce > cur.nonce && receipt == nil {
		t.mu.Lock()
		t.current = nil
		t.mu.Unlock()
		return sender.TrackerUpdate{Kind: sender.UpdateNonceUsedForOtherTx, Nonce: cur.nonce}, nil
	}

	if receipt != nil {
		t.mu.Lock()
		t.current = nil
		t.mu.Unlock()
		fees := cur.fees
		return sender.TrackerUpdate{
			Kind:   sender.UpdateMined,
			TxHash: cur.tx.Hash(),
			Nonce:  cur.nonce,
			Fees:   fees,
			Block:  receipt.BlockNumber.Uint64(),
		}, nil
	}

	return sender.TrackerUpdate{Kind: sender.UpdateStillPendingAfterWait}, nil
}

var _ sender.TransactionTracker = (*EthTracker)(nil)
