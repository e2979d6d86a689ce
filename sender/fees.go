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

package sender

import (
	"github.com/holiman/uint256"
)

// GasFees is the EIP-1559 fee pair a replacement transaction must meet or
// exceed to supersede a prior in-flight submission.
type GasFees struct {
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
}

// NewGasFees builds a GasFees pair from plain uint64 values, convenient for
// tests and for settings loaded from TOML/CLI flags.
func NewGasFees(maxFee, maxPriorityFee uint64) GasFees {
	return GasFees{
		MaxFeePerGas:         uint256.NewInt(maxFee),
		MaxPriorityFeePerGas: uint256.NewInt(maxPriorityFee),
	}
}

// Copy returns a deep copy so callers can mutate the result without
// aliasing the receiver.
func (f GasFees) Copy() GasFees {
	return GasFees{
		MaxFeePerGas:         new(uint256.Int).Set(f.MaxFeePerGas),
		MaxPriorityFeePerGas: new(uint256.Int).Set(f.MaxPriorityFeePerGas),
	}
}

// IncreaseByPercent raises both fee fields by ceil(v*(100+percent)/100), the
// replacement-fee bump applied between escalation attempts.
func (f GasFees) IncreaseByPercent(percent uint64) GasFees {
	return GasFees{
		MaxFeePerGas:         ceilMulDiv(f.MaxFeePerGas, 100+percent, 100),
		MaxPriorityFeePerGas: ceilMulDiv(f.MaxPriorityFeePerGas, 100+percent, 100),
	}
}

// GreaterOrEqual reports whether every field of f is >= the corresponding
// field of other. Used by property tests to assert fee monotonicity across
// an escalation sequence.
func (f GasFees) GreaterOrEqual(other GasFees) bool {
	return f.MaxFeePerGas.Cmp(other.MaxFeePerGas) >= 0 &&
		f.MaxPriorityFeePerGas.Cmp(other.MaxPriorityFeePerGas) >= 0
}

func ceilMulDiv(v *uint256.Int, mul, div uint64) *uint256.Int {
	num := new(uint256.Int).Mul(v, uint256.NewInt(mul))
	d := uint256.NewInt(div)
	q, r := new(uint256.Int).DivMod(num, d, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// gasEstimateOverheadPercent is the fixed overhead the entry point build
// step applies on top of the proposer's raw gas estimate.
const gasEstimateOverheadPercent = 10

func inflateGasEstimate(gasEstimate uint64) uint64 {
	num := gasEstimate * (100 + gasEstimateOverheadPercent)
	q := num / 100
	if num%100 != 0 {
		q++
	}
	return q
}
