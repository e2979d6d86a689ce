package main

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

// rpcBlockWatcher implements sender.BlockWatcher by polling the execution
// client's head block number.
type rpcBlockWatcher struct {
	client *ethclient.Client
}

func (w *rpcBlockWatcher) WaitForNewBlockNumber(ctx context.Context, lastBlockNumber uint64, pollInterval time.Duration) (uint64, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		n, err := w.client.BlockNumber(ctx)
		if err == nil && n > lastBlockNumber {
			return n, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}
