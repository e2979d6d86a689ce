// Package pool provides sender.OperationPool implementations: LocalPool, an
// in-memory pool adapted from go-ethereum's VectorFeePoolDummy reference
// subpool, and RemoteClient, a cloneable client for a remote op-pool
// service.
package pool

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/NethermindEth/bundle-sender/sender"
)

// NewOpsEvent is sent on discoverFeed/insertFeed whenever operations are
// added to the pool, mirroring core.NewTxsEvent's role in
// VectorFeePoolDummy.
type NewOpsEvent struct {
	Ops []*sender.UserOperation
}

// LocalPool is an in-memory sender.OperationPool and proposer.OperationSource,
// a direct adaptation of
// core/txpool/tx_vectorfee_pool.go's VectorFeePoolDummy: same
// mutex-guarded maps, same discover/insert event.Feed pair, same
// log.Trace texture, rebuilt around *sender.UserOperation instead of
// *types.Transaction.
type LocalPool struct {
	lock sync.RWMutex

	entryPoint common.Address
	chainID    uint64

	ops          map[common.Hash]*sender.UserOperation
	opsByAddress map[common.Address][]*sender.UserOperation
	bannedEntities mapset.Set[common.Address]

	discoverFeed event.Feed
	insertFeed   event.Feed
}

// NewLocalPool constructs an empty pool for the given entry point/chain.
func NewLocalPool(entryPoint common.Address, chainID uint64) *LocalPool {
	return &LocalPool{
		entryPoint:     entryPoint,
		chainID:        chainID,
		ops:            make(map[common.Hash]*sender.UserOperation),
		opsByAddress:   make(map[common.Address][]*sender.UserOperation),
		bannedEntities: mapset.NewSet[common.Address](),
	}
}

// Add enqueues ops into the pool, skipping any whose sender is currently
// banned or whose hash is already known (mirrors VectorFeePoolDummy.Add's
// dedup-then-fan-out shape).
func (p *LocalPool) Add(ops []*sender.UserOperation) {
	if len(ops) == 0 {
		return
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	accepted := make([]*sender.UserOperation, 0, len(ops))
	for _, op := range ops {
		if p.bannedEntities.Contains(op.Sender) {
			log.Trace("rejecting operation from banned sender", "sender", op.Sender)
			continue
		}
		h := op.OpHash(p.entryPoint, p.chainID)
		if _, exists := p.ops[h]; exists {
			continue
		}
		p.ops[h] = op
		p.opsByAddress[op.Sender] = append(p.opsByAddress[op.Sender], op)
		accepted = append(accepted, op)
		log.Trace("pooled new user operation", "hash", h, "sender", op.Sender)
	}

	if len(accepted) > 0 {
		p.insertFeed.Send(NewOpsEvent{Ops: accepted})
		p.discoverFeed.Send(NewOpsEvent{Ops: accepted})
	}
}

// Pending returns every operation currently held, grouped by sender
// (mirrors VectorFeePoolDummy.Pending's per-address grouping). It applies no
// ban filter of its own. Add rejects only operations whose sender is banned,
// so an operation added later with a banned paymaster, factory or aggregator
// is held and returned here.
func (p *LocalPool) Pending() map[common.Address][]*sender.UserOperation {
	p.lock.RLock()
	defer p.lock.RUnlock()

	result := make(map[common.Address][]*sender.UserOperation, len(p.opsByAddress))
	for addr, ops := range p.opsByAddress {
		cp := make([]*sender.UserOperation, len(ops))
		copy(cp, ops)
		result[addr] = cp
	}
	return result
}

// RemoveOps implements sender.OperationPool.
func (p *LocalPool) RemoveOps(ctx context.Context, entryPoint common.Address, hashes []common.Hash) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, h := range hashes {
		op, ok := p.ops[h]
		if !ok {
			continue // idempotent: already removed.
		}
		delete(p.ops, h)
		p.removeFromAddressIndex(op)
	}
	return nil
}

// RemoveEntities implements sender.OperationPool: bans each entity's
// address and evicts any pooled operation touching it.
func (p *LocalPool) RemoveEntities(ctx context.Context, entryPoint common.Address, entities []sender.Entity) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, e := range entities {
		p.bannedEntities.Add(e.Address)
	}

	for h, op := range p.ops {
		for _, e := range op.Entities() {
			if p.bannedEntities.Contains(e.Address) {
				delete(p.ops, h)
				p.removeFromAddressIndex(op)
				break
			}
		}
	}
	return nil
}

func (p *LocalPool) removeFromAddressIndex(op *sender.UserOperation) {
	txs := p.opsByAddress[op.Sender]
	for i, candidate := range txs {
		if candidate == op {
			txs[i] = txs[len(txs)-1]
			p.opsByAddress[op.Sender] = txs[:len(txs)-1]
			break
		}
	}
	if len(p.opsByAddress[op.Sender]) == 0 {
		delete(p.opsByAddress, op.Sender)
	}
}

// SubscribeNewOps subscribes to newly inserted operations.
func (p *LocalPool) SubscribeNewOps(ch chan<- NewOpsEvent) event.Subscription {
	return p.insertFeed.Subscribe(ch)
}

var _ sender.OperationPool = (*LocalPool)(nil)
