// Package estimation describes the gas-estimation boundary the sender loop
// and its proposer consume: the GasEstimator contract and the settings that
// constrain its results. Estimation internals (simulation, tracing) are out
// of scope — only the contract lives here.
package estimation

import (
	"context"
	"fmt"

	"github.com/NethermindEth/bundle-sender/sender"
)

// MinCallGasLimit is the floor MaxCallGas must meet, following
// consensus/misc/eip7706's style of naming protocol-level minimums as
// package constants rather than magic numbers.
const MinCallGasLimit = 21_000

// Settings constrains the gas estimator's results.
type Settings struct {
	MaxVerificationGas        uint64
	MaxCallGas                uint64
	MaxSimulateHandleOpsGas   uint64
	ValidationEstimationGasFee uint64
}

// Validate reports a human-readable reason the settings are unusable, or
// ("", true) if they're fine — grounded on
// consensus/misc/eip7706.MakeSureEIP7706FieldsAreNonNil's named-check
// style: one sentinel condition per line, a string reason rather than a
// generic error.
func (s Settings) Validate() (reason string, ok bool) {
	if s.MaxCallGas < MinCallGasLimit {
		return fmt.Sprintf("max call gas %d is below the minimum of %d", s.MaxCallGas, MinCallGasLimit), false
	}
	if s.MaxVerificationGas == 0 {
		return "max verification gas must be non-zero", false
	}
	if s.MaxSimulateHandleOpsGas == 0 {
		return "max simulate handle ops gas must be non-zero", false
	}
	return "", true
}

// GasEstimate is the estimator's output for one operation.
type GasEstimate struct {
	PreVerificationGas  uint64
	VerificationGasLimit uint64
	CallGasLimit        uint64
}

// Total sums the three components, the figure the proposer packs against
// its block gas budget.
func (e GasEstimate) Total() uint64 {
	return e.PreVerificationGas + e.VerificationGasLimit + e.CallGasLimit
}

// ErrorKind discriminates the closed set of ways estimation can fail.
type ErrorKind uint8

const (
	ErrValidationRevert ErrorKind = iota
	ErrCallRevertMessage
	ErrCallRevertBytes
	ErrOther
)

// EstimationError is a tagged union over the four estimator failure modes;
// reported verbatim to RPC callers, never consumed by the sender loop
// itself.
type EstimationError struct {
	Kind    ErrorKind
	Message string
	Data    []byte
}

func (e *EstimationError) Error() string {
	switch e.Kind {
	case ErrValidationRevert:
		return fmt.Sprintf("validation reverted: %s", e.Message)
	case ErrCallRevertMessage:
		return fmt.Sprintf("call reverted: %s", e.Message)
	case ErrCallRevertBytes:
		return fmt.Sprintf("call reverted with %d bytes of data", len(e.Data))
	default:
		return fmt.Sprintf("gas estimation failed: %s", e.Message)
	}
}

// StateOverride is a set of pre-estimation storage overrides, keyed by
// contract address and then by slot, the estimator-side counterpart of
// sender.ExpectedStorage.
type StateOverride = sender.ExpectedStorage

// GasEstimator estimates the gas an operation needs to validate and
// execute. Implementations own simulation and tracing; only the contract
// is defined here.
type GasEstimator interface {
	EstimateOpGas(ctx context.Context, op *sender.UserOperation, overrides StateOverride) (GasEstimate, error)
}
