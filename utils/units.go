package utils

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// NativeDecimals is the decimal precision of every supported chain's native asset
const NativeDecimals = 18

// MaxUint256 is the largest amount a contract call can carry.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ErrAmountOverflow is returned for amounts that do not fit in a uint256.
var ErrAmountOverflow = errors.New("amount exceeds uint256")

// ParseUnits converts a decimal amount string into its base-unit integer using
// decimals of precision. Excess fractional digits are rejected.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, errors.Wrap(err, "invalid amount")
	}

	scaled := value.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, errors.Errorf("amount %s has more than %d decimals", amount, decimals)
	}

	units := scaled.BigInt()
	if units.Cmp(MaxUint256) > 0 {
		return nil, errors.Wrapf(ErrAmountOverflow, "amount %s", amount)
	}

	return units, nil
}

// FormatUnits renders a base-unit integer as a decimal string. Whole values keep
// a trailing ".0", so one ether formats as "1.0".
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0.0"
	}

	out := decimal.NewFromBigInt(value, -int32(decimals)).String()
	if !strings.Contains(out, ".") {
		out += ".0"
	}

	return out
}

// ToFixedPoint encodes v as an integer scaled by 10^decimals, truncating extra digits.
func ToFixedPoint(v decimal.Decimal, decimals uint8) *big.Int {
	return v.Shift(int32(decimals)).Truncate(0).BigInt()
}
