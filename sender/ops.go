package sender

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// EntityKind discriminates the role a banished address played in a
// rejected user operation.
type EntityKind uint8

const (
	EntityKindSender EntityKind = iota
	EntityKindPaymaster
	EntityKindFactory
	EntityKindAggregator
)

func (k EntityKind) String() string {
	switch k {
	case EntityKindSender:
		return "sender"
	case EntityKindPaymaster:
		return "paymaster"
	case EntityKindFactory:
		return "factory"
	case EntityKindAggregator:
		return "aggregator"
	default:
		return "unknown"
	}
}

// Entity identifies an address implicated in an operation, used for
// pool-level banishment of repeat offenders.
type Entity struct {
	Kind    EntityKind
	Address common.Address
}

// UserOperation is an opaque ERC-4337 operation payload. Only the fields the
// sender loop needs to reason about are modeled here; validation,
// simulation and ABI-encoding of the inner call data are external
// concerns.
type UserOperation struct {
	Sender   common.Address
	Nonce    common.Hash
	CallData []byte

	Paymaster *common.Address
	Factory   *common.Address
	Aggregator *common.Address
}

// OpHash returns the deterministic identifier the pool and the entry point
// agree on: keccak256 over (op, entry point address, chain id).
func (op *UserOperation) OpHash(entryPoint common.Address, chainID uint64) common.Hash {
	enc, _ := rlp.EncodeToBytes(struct {
		Sender     common.Address
		Nonce      common.Hash
		CallData   []byte
		Paymaster  common.Address
		Factory    common.Address
		Aggregator common.Address
		EntryPoint common.Address
		ChainID    uint64
	}{
		Sender:     op.Sender,
		Nonce:      op.Nonce,
		CallData:   op.CallData,
		Paymaster:  addressOrZero(op.Paymaster),
		Factory:    addressOrZero(op.Factory),
		Aggregator: addressOrZero(op.Aggregator),
		EntryPoint: entryPoint,
		ChainID:    chainID,
	})
	return crypto.Keccak256Hash(enc)
}

func addressOrZero(a *common.Address) common.Address {
	if a == nil {
		return common.Address{}
	}
	return *a
}

// Entities returns the distinct entities referenced by this operation, used
// when the proposer needs to derive a rejected-entity list from a rejected
// operation.
func (op *UserOperation) Entities() []Entity {
	entities := []Entity{{Kind: EntityKindSender, Address: op.Sender}}
	if op.Paymaster != nil {
		entities = append(entities, Entity{Kind: EntityKindPaymaster, Address: *op.Paymaster})
	}
	if op.Factory != nil {
		entities = append(entities, Entity{Kind: EntityKindFactory, Address: *op.Factory})
	}
	if op.Aggregator != nil {
		entities = append(entities, Entity{Kind: EntityKindAggregator, Address: *op.Aggregator})
	}
	return entities
}
