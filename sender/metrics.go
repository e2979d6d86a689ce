package sender

import (
	"fmt"

	"github.com/ethereum/go-ethereum/metrics"
)

// builderMetrics is the per-BundleSenderLoop metrics set. go-ethereum's
// metrics package has no label dimension, so each builder gets its own
// named counters/gauges, the same way miner/worker.go names counters per
// feature rather than per instance.
type builderMetrics struct {
	txnsSent      metrics.Counter
	txnsSuccess   metrics.Counter
	txnsDropped   metrics.Counter
	txnsAbandoned metrics.Counter
	txnsFailed    metrics.Counter
	txnsNonceUsed metrics.Counter
	feeIncreases  metrics.Counter

	currentMaxFee         metrics.Gauge
	currentMaxPriorityFee metrics.Gauge
}

func newBuilderMetrics(builderID string) *builderMetrics {
	name := func(base string) string { return fmt.Sprintf("bundler/%s/%s", builderID, base) }
	return &builderMetrics{
		txnsSent:              metrics.NewRegisteredCounter(name("bundle_txns_sent"), nil),
		txnsSuccess:           metrics.NewRegisteredCounter(name("bundle_txns_success"), nil),
		txnsDropped:           metrics.NewRegisteredCounter(name("bundle_txns_dropped"), nil),
		txnsAbandoned:         metrics.NewRegisteredCounter(name("bundle_txns_abandoned"), nil),
		txnsFailed:            metrics.NewRegisteredCounter(name("bundle_txns_failed"), nil),
		txnsNonceUsed:         metrics.NewRegisteredCounter(name("bundle_txns_nonce_used"), nil),
		feeIncreases:          metrics.NewRegisteredCounter(name("bundle_fee_increases"), nil),
		currentMaxFee:         metrics.NewRegisteredGauge(name("current_max_fee"), nil),
		currentMaxPriorityFee: metrics.NewRegisteredGauge(name("current_max_priority_fee"), nil),
	}
}

func (m *builderMetrics) recordFees(fees GasFees) {
	m.currentMaxFee.Update(int64(fees.MaxFeePerGas.Uint64()))
	m.currentMaxPriorityFee.Update(int64(fees.MaxPriorityFeePerGas.Uint64()))
}
