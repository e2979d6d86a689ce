// Package tracker provides TransactionTracker implementations: EthTracker,
// backed by a live go-ethereum JSON-RPC endpoint, and FakeTracker, an
// in-memory double used by the sender package's scenario tests.
package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/NethermindEth/bundle-sender/sender"
)

// FakeTracker is a scriptable sender.TransactionTracker: each call to
// SendTransaction consumes one entry from SendResults (in order), and each
// call to WaitForUpdate consumes one entry from WaitUpdates. It exists so
// the sender package's tests can drive every branch of the escalation
// protocol without a real chain.
type FakeTracker struct {
	mu sync.Mutex

	Nonce        uint64
	RequiredFees *sender.GasFees

	SendResults []sender.SendResult
	WaitUpdates []sender.TrackerUpdate
	PollUpdates []*sender.TrackerUpdate

	Sent []*sender.BundleTx

	sendIdx int
	waitIdx int
	pollIdx int
}

func (f *FakeTracker) GetNonceAndRequiredFees(ctx context.Context) (uint64, *sender.GasFees, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Nonce, f.RequiredFees, nil
}

func (f *FakeTracker) SendTransaction(ctx context.Context, tx *sender.BundleTx) (sender.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, tx)
	if f.sendIdx >= len(f.SendResults) {
		return sender.SendResult{}, fmt.Errorf("fake tracker: no scripted SendResult for call %d", f.sendIdx)
	}
	r := f.SendResults[f.sendIdx]
	f.sendIdx++
	return r, nil
}

func (f *FakeTracker) WaitForUpdate(ctx context.Context) (sender.TrackerUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.waitIdx >= len(f.WaitUpdates) {
		return sender.TrackerUpdate{}, fmt.Errorf("fake tracker: no scripted TrackerUpdate for call %d", f.waitIdx)
	}
	u := f.WaitUpdates[f.waitIdx]
	f.waitIdx++
	return u, nil
}

func (f *FakeTracker) CheckForUpdateNow(ctx context.Context) (*sender.TrackerUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollIdx >= len(f.PollUpdates) {
		return nil, nil
	}
	u := f.PollUpdates[f.pollIdx]
	f.pollIdx++
	return u, nil
}

var _ sender.TransactionTracker = (*FakeTracker)(nil)
