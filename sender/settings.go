package sender

import "fmt"

// Settings is the immutable configuration the sender loop is parameterized
// with for its lifetime.
type Settings struct {
	// ReplacementFeePercentIncrease is the percentage bump applied to the
	// previously-sent fees when an attempt falls through to a replacement.
	ReplacementFeePercentIncrease uint64

	// MaxFeeIncreases bounds the number of replacement attempts within one
	// escalation sequence.
	MaxFeeIncreases uint64
}

// Validate reports a human-readable reason the settings are unusable, or
// ("", true) if they're fine. Named-check style rather than a generic
// error, matching consensus/misc/eip7706's validation idiom.
func (s Settings) Validate() (reason string, ok bool) {
	// both fields are unsigned, so "negative" checks are unrepresentable;
	// the only meaningful bound is that callers didn't wire in a
	// nonsensical escalation percentage.
	if s.ReplacementFeePercentIncrease > 10_000 {
		return fmt.Sprintf("replacement fee percent increase %d is implausibly large", s.ReplacementFeePercentIncrease), false
	}
	return "", true
}
