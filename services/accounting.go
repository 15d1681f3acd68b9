package services

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// StakeMultiplierPeriod normalizes stake durations, 30 days in seconds
	StakeMultiplierPeriod = 2_592_000

	// MaxStakeSlots bounds the stake slots scanned per account
	MaxStakeSlots = 10
)

// multiplier gained per full normalization period
var stakeMultiplierRate = decimal.RequireFromString("0.05")

// StakeMultiplier returns 1 + 0.05 * stakeSeconds / 2_592_000 rounded to two
// decimals. It mirrors the reward pool's display multiplier.
func StakeMultiplier(stakeSeconds uint64) decimal.Decimal {
	duration := decimal.NewFromBigInt(new(big.Int).SetUint64(stakeSeconds), 0)

	return decimal.NewFromInt(1).
		Add(stakeMultiplierRate.Mul(duration).Div(decimal.NewFromInt(StakeMultiplierPeriod))).
		Round(2)
}

// QuoteTokens converts a native amount into sale tokens at the current pool
// ratio. An empty native pool quotes zero.
func QuoteTokens(nativeAmount, poolToken, poolNative *big.Int) *big.Int {
	if nativeAmount == nil || poolToken == nil || poolNative == nil || poolNative.Sign() == 0 {
		return new(big.Int)
	}

	out := new(big.Int).Mul(nativeAmount, poolToken)
	return out.Quo(out, poolNative)
}

// IsMatured reports whether a stake started at startTime for stakeTime
// seconds can be withdrawn at now.
func IsMatured(now, startTime, stakeTime uint64) bool {
	return now >= startTime && now-startTime >= stakeTime
}
