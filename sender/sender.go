// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package sender implements the bundle sender loop: the per-builder control
// loop that packages user operations into transactions, submits them to an
// entry point, and replaces them with fee-bumped transactions until they are
// mined, abandoned, or preempted.
package sender

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// ErrNonceUsedForOtherTx is surfaced when the tracker reports that an
// external transaction consumed the signer's tracked nonce. The outer loop
// treats this as fatal to the current escalation sequence so it re-reads
// the nonce on the next block.
var ErrNonceUsedForOtherTx = errors.New("nonce used by a transaction outside the bundler's control")

// Config is the static identity a BundleSenderLoop is parameterized by.
type Config struct {
	ID           string
	Beneficiary  common.Address
	ChainID      uint64
	Settings     Settings
	PollInterval time.Duration
}

// BundleSenderLoop is the long-lived control loop that turns pooled
// operations into mined transactions for one builder. It is generic over
// its five capability collaborators so tests can supply in-memory fakes
// for all of them.
type BundleSenderLoop struct {
	cfg Config

	blockWatcher BlockWatcher
	tracker      TransactionTracker
	proposer     BundleProposer
	pool         OperationPool
	entryPoint   EntryPoint

	events  *EventEmitter
	metrics *builderMetrics

	manualBundlingMode atomic.Bool
	sendBundleRequests chan SendBundleRequest
}

// New constructs a BundleSenderLoop. The returned loop starts in automatic
// mode; call SetManualBundlingMode(true) to switch.
func New(cfg Config, blockWatcher BlockWatcher, tracker TransactionTracker, proposer BundleProposer, pool OperationPool, entryPoint EntryPoint) *BundleSenderLoop {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &BundleSenderLoop{
		cfg:                cfg,
		blockWatcher:       blockWatcher,
		tracker:            tracker,
		proposer:           proposer,
		pool:               pool,
		entryPoint:         entryPoint,
		events:             &EventEmitter{},
		metrics:            newBuilderMetrics(cfg.ID),
		sendBundleRequests: make(chan SendBundleRequest, 1),
	}
}

// Events returns the broadcast feed of builder events for this loop.
func (s *BundleSenderLoop) Events() *EventEmitter { return s.events }

// SetManualBundlingMode flips the shared atomic mode flag an external
// controller (e.g. an RPC handler) uses to switch between automatic
// per-block submission and manual, request-driven submission.
func (s *BundleSenderLoop) SetManualBundlingMode(manual bool) {
	s.manualBundlingMode.Store(manual)
}

// SubmitManualBundleRequest enqueues req for the next manual-mode iteration.
// It is the caller's responsibility to read exactly one reply from
// req.ReplyTo.
func (s *BundleSenderLoop) SubmitManualBundleRequest(req SendBundleRequest) {
	s.sendBundleRequests <- req
}

// Run is the outer control loop. It never returns except when
// ctx is canceled, which implementers may wire up for structured shutdown
//.
func (s *BundleSenderLoop) Run(ctx context.Context) error {
	var lastBlockNumber uint64
	var pendingResponse *SendBundleRequest

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if s.manualBundlingMode.Load() {
			req, ok, err := s.awaitManualRequestOrTimeout(ctx)
			if err != nil {
				return err
			}
			if !ok {
				// poll-interval timeout: re-check mode and loop.
				continue
			}
			pendingResponse = &req
		}

		newBlock, err := s.blockWatcher.WaitForNewBlockNumber(ctx, lastBlockNumber, s.cfg.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("block watcher failed", "builder", s.cfg.ID, "err", err)
			continue
		}
		lastBlockNumber = newBlock

		s.checkForAndLogTransactionUpdate(ctx)

		result := s.sendBundleWithIncreasingGasFees(ctx)
		s.classifyAndLog(result)

		if pendingResponse != nil {
			if !pendingResponse.reply(result) {
				log.Warn("manual bundle caller gone, discarding result", "builder", s.cfg.ID)
			}
			pendingResponse = nil
		}
	}
}

// awaitManualRequestOrTimeout blocks for at most PollInterval for a manual
// request to arrive.
func (s *BundleSenderLoop) awaitManualRequestOrTimeout(ctx context.Context) (SendBundleRequest, bool, error) {
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return SendBundleRequest{}, false, ctx.Err()
	case req := <-s.sendBundleRequests:
		return req, true, nil
	case <-timer.C:
		return SendBundleRequest{}, false, nil
	}
}

// checkForAndLogTransactionUpdate is a passive, non-blocking poll: it runs
// once per block, before a new attempt starts, so transactions mined
// silently between iterations are surfaced.
func (s *BundleSenderLoop) checkForAndLogTransactionUpdate(ctx context.Context) {
	update, err := s.tracker.CheckForUpdateNow(ctx)
	if err != nil {
		log.Error("failed to poll transaction tracker", "builder", s.cfg.ID, "err", err)
		return
	}
	if update == nil {
		return
	}
	s.logUpdate(*update)
}

// sendBundleWithIncreasingGasFees is the fee-escalation inner protocol
//.
func (s *BundleSenderLoop) sendBundleWithIncreasingGasFees(ctx context.Context) SendBundleResult {
	nonce, requiredFees, err := s.tracker.GetNonceAndRequiredFees(ctx)
	if err != nil {
		return errorResult(fmt.Errorf("getting nonce and required fees: %w", err))
	}

	var initialOpCount *int

	for attempt := uint64(0); attempt <= s.cfg.Settings.MaxFeeIncreases; attempt++ {
		bundleTx, err := s.getBundleTx(ctx, nonce, requiredFees)
		if err != nil {
			return errorResult(fmt.Errorf("building bundle: %w", err))
		}

		if bundleTx == nil {
			s.events.emit(s.entryPoint.Address(), BuilderEvent{
				BuilderID:        s.cfg.ID,
				Kind:             EventFormedBundle,
				FormedBundle:     nil,
				NonceLow64:       nonce,
				FeeIncreaseCount: attempt,
				RequiredFees:     requiredFees,
			})
			if initialOpCount == nil {
				return noOperationsInitially()
			}
			s.metrics.txnsAbandoned.Inc(1)
			return noOperationsAfterFeeIncreases(*initialOpCount, attempt)
		}

		if initialOpCount == nil {
			n := len(bundleTx.OpHashes)
			initialOpCount = &n
		}

		currentFees := bundleTx.CurrentFees()

		s.metrics.txnsSent.Inc(1)
		s.metrics.recordFees(currentFees)

		sendResult, err := s.tracker.SendTransaction(ctx, bundleTx)
		if err != nil {
			return errorResult(fmt.Errorf("sending transaction: %w", err))
		}

		var update TrackerUpdate
		switch sendResult.Kind {
		case SendResultTrackerUpdate:
			update = *sendResult.Update
		case SendResultTxHash:
			s.events.emit(s.entryPoint.Address(), BuilderEvent{
				BuilderID: s.cfg.ID,
				Kind:      EventFormedBundle,
				FormedBundle: &FormedBundlePayload{
					TxHash:   sendResult.TxHash,
					Tx:       bundleTx,
					OpHashes: bundleTx.OpHashes,
				},
				NonceLow64:       nonce,
				FeeIncreaseCount: attempt,
				RequiredFees:     requiredFees,
			})
			u, err := s.tracker.WaitForUpdate(ctx)
			if err != nil {
				return errorResult(fmt.Errorf("waiting for transaction update: %w", err))
			}
			update = u
		}

		switch update.Kind {
		case UpdateMined:
			s.events.emit(s.entryPoint.Address(), BuilderEvent{
				BuilderID:   s.cfg.ID,
				Kind:        EventTransactionMined,
				TxHash:      update.TxHash,
				NonceLow64:  update.Nonce,
				BlockNumber: update.Block,
			})
			s.metrics.txnsSuccess.Inc(1)
			return successResult(update.Block, update.Attempt, update.TxHash)

		case UpdateStillPendingAfterWait:
			log.Info("transaction still pending after wait", "builder", s.cfg.ID, "nonce", nonce, "attempt", attempt)

		case UpdateLatestTxDropped:
			s.events.emit(s.entryPoint.Address(), BuilderEvent{
				BuilderID:  s.cfg.ID,
				Kind:       EventLatestTransactionDropped,
				NonceLow64: update.Nonce,
			})
			s.metrics.txnsDropped.Inc(1)
			log.Warn("latest transaction dropped", "builder", s.cfg.ID, "nonce", update.Nonce)

		case UpdateNonceUsedForOtherTx:
			s.events.emit(s.entryPoint.Address(), BuilderEvent{
				BuilderID:  s.cfg.ID,
				Kind:       EventNonceUsedForOtherTransaction,
				NonceLow64: update.Nonce,
			})
			s.metrics.txnsNonceUsed.Inc(1)
			return errorResult(fmt.Errorf("%w: nonce %d", ErrNonceUsedForOtherTx, update.Nonce))
		}

		bumped := currentFees.IncreaseByPercent(s.cfg.Settings.ReplacementFeePercentIncrease)
		requiredFees = &bumped
		s.metrics.feeIncreases.Inc(1)
	}

	initial := 0
	if initialOpCount != nil {
		initial = *initialOpCount
	}
	s.metrics.txnsAbandoned.Inc(1)
	return stalledAtMaxFeeIncreases(initial)
}

// getBundleTx asks the proposer for a candidate bundle, removes whatever
// it rejected from the pool, and — if the bundle is non-empty — asks the
// entry point to build the transaction envelope.
func (s *BundleSenderLoop) getBundleTx(ctx context.Context, nonce uint64, requiredFees *GasFees) (*BundleTx, error) {
	bundle, err := s.proposer.MakeBundle(ctx, requiredFees)
	if err != nil {
		return nil, fmt.Errorf("proposer: %w", err)
	}

	s.removeRejected(ctx, bundle)

	if bundle.IsEmpty() {
		log.Info("no operations for bundle at this fee floor",
			"builder", s.cfg.ID,
			"rejected_ops", len(bundle.RejectedOps),
			"rejected_entities", len(bundle.RejectedEntities))
		return nil, nil
	}

	inflatedGas := inflateGasEstimate(bundle.GasEstimate)

	txdata, err := s.entryPoint.GetSendBundleTransaction(ctx, bundle.OpsPerAggregator, s.cfg.Beneficiary, inflatedGas, bundle.GasFees)
	if err != nil {
		return nil, fmt.Errorf("entry point: %w", err)
	}
	txdata.Nonce = nonce
	tx := types.NewTx(txdata)

	return &BundleTx{
		Tx:              tx,
		ExpectedStorage: bundle.ExpectedStorage,
		OpHashes:        bundle.OpHashes(s.entryPoint.Address(), s.cfg.ChainID),
	}, nil
}

// removeRejected joins the two pool-removal calls concurrently: both complete before the caller proceeds to decide whether
// the bundle is empty. Failures are logged but non-fatal.
func (s *BundleSenderLoop) removeRejected(ctx context.Context, bundle *Bundle) {
	if len(bundle.RejectedOps) == 0 && len(bundle.RejectedEntities) == 0 {
		return
	}

	hashes := make([]common.Hash, len(bundle.RejectedOps))
	for i, op := range bundle.RejectedOps {
		hashes[i] = op.OpHash(s.entryPoint.Address(), s.cfg.ChainID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(hashes) == 0 {
			return nil
		}
		if err := s.pool.RemoveOps(gctx, s.entryPoint.Address(), hashes); err != nil {
			log.Error("failed to remove rejected ops from pool", "builder", s.cfg.ID, "err", err)
		}
		return nil
	})
	g.Go(func() error {
		if len(bundle.RejectedEntities) == 0 {
			return nil
		}
		if err := s.pool.RemoveEntities(gctx, s.entryPoint.Address(), bundle.RejectedEntities); err != nil {
			log.Error("failed to remove rejected entities from pool", "builder", s.cfg.ID, "err", err)
		}
		return nil
	})
	_ = g.Wait() // errors already logged above; removal failures are non-fatal.
}

func (s *BundleSenderLoop) logUpdate(update TrackerUpdate) {
	switch update.Kind {
	case UpdateMined:
		log.Info("transaction mined (observed between iterations)", "builder", s.cfg.ID, "tx", update.TxHash, "block", update.Block)
		s.metrics.txnsSuccess.Inc(1)
	case UpdateLatestTxDropped:
		log.Warn("latest transaction dropped (observed between iterations)", "builder", s.cfg.ID, "nonce", update.Nonce)
		s.metrics.txnsDropped.Inc(1)
	case UpdateNonceUsedForOtherTx:
		log.Warn("nonce used by external transaction (observed between iterations)", "builder", s.cfg.ID, "nonce", update.Nonce)
		s.metrics.txnsNonceUsed.Inc(1)
	}
}

func (s *BundleSenderLoop) classifyAndLog(result SendBundleResult) {
	switch result.Kind {
	case ResultSuccess:
		log.Info("bundle mined", "builder", s.cfg.ID, "block", result.Block, "attempt", result.Attempt, "tx", result.TxHash)
	case ResultNoOperationsInitially:
		log.Debug("no operations available", "builder", s.cfg.ID)
	case ResultNoOperationsAfterFeeIncreases:
		log.Info("ran out of operations after fee increases", "builder", s.cfg.ID, "initial_ops", result.InitialOpCount, "attempt", result.Attempt)
	case ResultStalledAtMaxFeeIncreases:
		log.Warn("stalled at max fee increases", "builder", s.cfg.ID, "initial_ops", result.InitialOpCount)
	case ResultError:
		log.Error("bundle send failed", "builder", s.cfg.ID, "err", result.Err)
		s.metrics.txnsFailed.Inc(1)
	}
}
