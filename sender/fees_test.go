package sender

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGasFees_IncreaseByPercent_ZeroIsIdentity(t *testing.T) {
	fees := NewGasFees(100, 10)
	bumped := fees.IncreaseByPercent(0)
	assert.Equal(t, fees.MaxFeePerGas.Uint64(), bumped.MaxFeePerGas.Uint64())
	assert.Equal(t, fees.MaxPriorityFeePerGas.Uint64(), bumped.MaxPriorityFeePerGas.Uint64())
}

func TestGasFees_IncreaseByPercent_RoundsUp(t *testing.T) {
	fees := NewGasFees(10, 1)
	bumped := fees.IncreaseByPercent(20)
	assert.Equal(t, uint64(12), bumped.MaxFeePerGas.Uint64())
	assert.Equal(t, uint64(2), bumped.MaxPriorityFeePerGas.Uint64(), "ceil(1 * 1.20) = 2")
}

func TestGasFees_IncreaseByPercent_MonotoneInPercent(t *testing.T) {
	fees := NewGasFees(1000, 100)
	low := fees.IncreaseByPercent(5)
	high := fees.IncreaseByPercent(50)
	assert.True(t, high.GreaterOrEqual(low))
}

func TestGasFees_GreaterOrEqual(t *testing.T) {
	a := NewGasFees(10, 2)
	b := NewGasFees(10, 1)
	assert.True(t, a.GreaterOrEqual(b))
	assert.False(t, b.GreaterOrEqual(a))
	assert.True(t, a.GreaterOrEqual(a))
}

func TestInflateGasEstimate_RoundsUpByTenPercent(t *testing.T) {
	assert.Equal(t, uint64(110_000), inflateGasEstimate(100_000))
	assert.Equal(t, uint64(112), inflateGasEstimate(101), "ceil(101 * 1.10) = 112")
}
