package services

import "math"

const DefaultFeeRate = 0.10

// FeePolicy computes the platform fee withheld from a payout. Amounts are minor units.
type FeePolicy struct {
	Rate float64
	// ApplyToPartial controls whether partial dispute outcomes are charged a fee.
	ApplyToPartial bool
}

func DefaultFeePolicy() FeePolicy {
	return FeePolicy{Rate: DefaultFeeRate, ApplyToPartial: true}
}

func (p FeePolicy) rate() float64 {
	if p.Rate < 0 || p.Rate >= 1 || math.IsNaN(p.Rate) {
		return DefaultFeeRate
	}
	return p.Rate
}

// Split returns the fee and the net payout for amount.
func (p FeePolicy) Split(amount int64, partial bool) (fee int64, net int64) {
	if amount <= 0 {
		return 0, 0
	}
	if partial && !p.ApplyToPartial {
		return 0, amount
	}
	fee = int64(math.Round(float64(amount) * p.rate()))
	if fee > amount {
		fee = amount
	}
	return fee, amount - fee
}
