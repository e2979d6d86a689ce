// Package proposer provides GreedyProposer, a reference sender.BundleProposer
// that packs pooled operations into a bundle under a fixed gas budget.
package proposer

import (
	"bytes"
	"context"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	"github.com/NethermindEth/bundle-sender/estimation"
	"github.com/NethermindEth/bundle-sender/sender"
)

// OperationSource supplies the candidate pool the proposer packs from,
// shaped to match pool.LocalPool.Pending.
type OperationSource interface {
	Pending() map[common.Address][]*sender.UserOperation
}

// Config is the static packing policy GreedyProposer is parameterized by.
type Config struct {
	GasLimit    uint64
	DefaultFees sender.GasFees
}

// GreedyProposer greedily fills a bundle under a fixed gas budget, sorting
// each sender's operations by nonce and packing them in that order,
// grounded on miner.commitVectorFeeTransactions/sortTxsByNonces: the same
// core.GasPool bookkeeping, rebuilt around user operations instead of pooled
// transactions. An operation that does not fit the remaining gas is skipped
// (and left pooled) while later ones are still tried; packing stops once
// less than params.TxGas remains.
type GreedyProposer struct {
	cfg       Config
	source    OperationSource
	estimator estimation.GasEstimator
}

// New constructs a GreedyProposer pulling candidates from source and
// estimating gas with estimator.
func New(cfg Config, source OperationSource, estimator estimation.GasEstimator) *GreedyProposer {
	return &GreedyProposer{cfg: cfg, source: source, estimator: estimator}
}

// MakeBundle implements sender.BundleProposer. It never returns a bundle
// whose fees fall below requiredFees: when requiredFees is non-nil it is
// carried through verbatim as the bundle's GasFees, since this proposer
// always pays exactly the required floor rather than bidding above it.
func (p *GreedyProposer) MakeBundle(ctx context.Context, requiredFees *sender.GasFees) (*sender.Bundle, error) {
	fees := p.cfg.DefaultFees
	if requiredFees != nil {
		fees = *requiredFees
	}

	ordered := sortOpsByNonce(p.source.Pending())

	gasPool := new(core.GasPool).AddGas(p.cfg.GasLimit)

	groups := make(map[common.Address]*sender.AggregatedOps)
	var order []*common.Address
	var rejectedOps []*sender.UserOperation
	var rejectedEntities []sender.Entity
	var total uint64

	for _, op := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if gasPool.Gas() < params.TxGas {
			log.Trace("not enough gas left for another operation", "have", gasPool.Gas())
			break
		}

		estimate, err := p.estimator.EstimateOpGas(ctx, op, nil)
		if err != nil {
			log.Debug("rejecting operation that failed gas estimation", "sender", op.Sender, "err", err)
			rejectedOps = append(rejectedOps, op)
			rejectedEntities = append(rejectedEntities, op.Entities()...)
			continue
		}
		need := estimate.Total()

		if gasPool.Gas() < need {
			log.Trace("operation does not fit remaining gas budget", "sender", op.Sender, "need", need, "have", gasPool.Gas())
			continue
		}

		if err := gasPool.SubGas(need); err != nil {
			rejectedOps = append(rejectedOps, op)
			rejectedEntities = append(rejectedEntities, op.Entities()...)
			continue
		}
		total += need

		key := op.Aggregator
		groupKey := aggregatorKey(key)
		group, ok := groups[groupKey]
		if !ok {
			group = &sender.AggregatedOps{Aggregator: key}
			groups[groupKey] = group
			order = append(order, key)
		}
		group.Ops = append(group.Ops, op)
	}

	opsPerAggregator := make([]sender.AggregatedOps, 0, len(order))
	for _, key := range order {
		opsPerAggregator = append(opsPerAggregator, *groups[aggregatorKey(key)])
	}

	return &sender.Bundle{
		OpsPerAggregator: opsPerAggregator,
		GasEstimate:      total,
		GasFees:          fees,
		RejectedOps:      rejectedOps,
		RejectedEntities: rejectedEntities,
	}, nil
}

func aggregatorKey(a *common.Address) common.Address {
	if a == nil {
		return common.Address{}
	}
	return *a
}

// sortOpsByNonce flattens the pool's per-sender grouping into a single
// ordered slice, each sender's own operations kept in ascending nonce
// order, mirroring sortTxsByNonces's flatten-then-sort shape.
func sortOpsByNonce(pending map[common.Address][]*sender.UserOperation) []*sender.UserOperation {
	addrs := make([]common.Address, 0, len(pending))
	for addr := range pending {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b common.Address) int { return bytes.Compare(a[:], b[:]) })

	ordered := make([]*sender.UserOperation, 0, len(pending))
	for _, addr := range addrs {
		ops := append([]*sender.UserOperation(nil), pending[addr]...)
		slices.SortFunc(ops, func(a, b *sender.UserOperation) int {
			return bytes.Compare(a.Nonce[:], b.Nonce[:])
		})
		ordered = append(ordered, ops...)
	}
	return ordered
}

var _ sender.BundleProposer = (*GreedyProposer)(nil)
