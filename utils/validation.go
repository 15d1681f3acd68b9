package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Multiplier bounds accepted by the token sale
var (
	MinSaleMultiplier = decimal.NewFromInt(1)
	MaxSaleMultiplier = decimal.RequireFromString("1.8")
)

var (
	// Address regex pattern (basic Ethereum address format)
	addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// Amount regex pattern (positive number, can include decimals)
	amountRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// ValidateAmount checks that amount is a non-negative decimal string
func ValidateAmount(amount string) error {
	if amount == "" {
		return errors.New("amount cannot be empty")
	}

	// Remove any whitespace
	amount = strings.TrimSpace(amount)

	if !amountRegex.MatchString(amount) {
		return errors.New("invalid amount format")
	}

	return nil
}

// ValidateMultiplier checks a sale multiplier against the protocol bounds
func ValidateMultiplier(multiplier decimal.Decimal) error {
	if multiplier.LessThan(MinSaleMultiplier) || multiplier.GreaterThan(MaxSaleMultiplier) {
		return fmt.Errorf("multiplier %s out of range [%s, %s]",
			multiplier.String(), MinSaleMultiplier.StringFixed(1), MaxSaleMultiplier.StringFixed(1))
	}
	return nil
}

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(address string) bool {
	return addressRegex.MatchString(address)
}

// EqualAddresses compares two addresses ignoring hex case
func EqualAddresses(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
