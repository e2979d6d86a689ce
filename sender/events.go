package sender

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// BuilderEventKind discriminates the closed set of events the sender loop
// broadcasts.
type BuilderEventKind uint8

const (
	EventFormedBundle BuilderEventKind = iota
	EventTransactionMined
	EventLatestTransactionDropped
	EventNonceUsedForOtherTransaction
)

// FormedBundlePayload is the payload of EventFormedBundle when a bundle was
// actually submitted (tx_hash, tx, op_hashes); nil when the bundle was
// empty.
type FormedBundlePayload struct {
	TxHash   common.Hash
	Tx       *BundleTx
	OpHashes []common.Hash
}

// BuilderEvent is the broadcast payload, tagged by Kind. Modeled as a
// struct-with-kind rather than an interface hierarchy.
type BuilderEvent struct {
	BuilderID string
	Kind      BuilderEventKind

	// EventFormedBundle (NonceLow64 is also set on the other three kinds)
	FormedBundle     *FormedBundlePayload // nil if the bundle was empty
	NonceLow64       uint64
	FeeIncreaseCount uint64
	RequiredFees     *GasFees

	// EventTransactionMined
	TxHash      common.Hash
	BlockNumber uint64
}

// WithEntryPoint wraps an event with the entry point address it pertains
// to, so a single broadcast fan-out can serve senders targeting different
// entry points.
type WithEntryPoint[T any] struct {
	EntryPoint common.Address
	Event      T
}

// EventEmitter broadcasts builder events to every subscriber. It is backed
// by go-ethereum's event.Feed: each emit waits until every current
// subscriber has received the event, so a subscriber that stops reading its
// channel holds up the sender loop. With no subscribers, emit returns at
// once.
type EventEmitter struct {
	feed event.Feed
}

// Subscribe registers ch to receive future events. Mirrors
// core/txpool/tx_vectorfee_pool.go's SubscribeTransactions pattern.
func (e *EventEmitter) Subscribe(ch chan<- WithEntryPoint[BuilderEvent]) event.Subscription {
	return e.feed.Subscribe(ch)
}

func (e *EventEmitter) emit(entryPoint common.Address, ev BuilderEvent) {
	e.feed.Send(WithEntryPoint[BuilderEvent]{EntryPoint: entryPoint, Event: ev})
}
