package main

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// keySigner is the simplest tracker.Signer: an in-process ECDSA key. A
// production deployment would swap this for a remote signer; the sender
// loop and tracker never know the difference.
type keySigner struct {
	key    *ecdsa.PrivateKey
	signer types.Signer
}

func newKeySigner(key *ecdsa.PrivateKey, chainID uint64) *keySigner {
	return &keySigner{
		key:    key,
		signer: types.NewLondonSigner(new(big.Int).SetUint64(chainID)),
	}
}

func (s *keySigner) SignTx(ctx context.Context, from common.Address, tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, s.signer, s.key)
}
