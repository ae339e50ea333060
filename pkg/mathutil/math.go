package mathutil

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	// BigOne represents a single bitcoin as number of satoshis.
	BigOne = uint64(math.Pow10(8))
	// BigOneDecimal represents a single bitcoin (precision 8) as decimal.Decimal.
	BigOneDecimal = decimal.NewFromInt(int64(BigOne))
	// MaxSafeSatoshis is the biggest amount that survives a round trip through
	// a float64 JSON number, 2^53-1.
	MaxSafeSatoshis = uint64(1<<53 - 1)

	maxSafeDecimal = decimal.NewFromInt(int64(MaxSafeSatoshis))
)

var (
	// ErrNegativeAmount ...
	ErrNegativeAmount = errors.New("amount must not be negative")
	// ErrSubSatoshiAmount ...
	ErrSubSatoshiAmount = errors.New("amount must not have more than 8 decimal places")
	// ErrUnsafeAmount ...
	ErrUnsafeAmount = errors.New("amount exceeds max safe integer range")
)

// ToSatoshis converts the given BTC amount to satoshis.
// Negative, sub-satoshi and out of range amounts are rejected.
func ToSatoshis(btc decimal.Decimal) (uint64, error) {
	if btc.IsNegative() {
		return 0, ErrNegativeAmount
	}
	sats := btc.Mul(BigOneDecimal)
	if !sats.Equal(sats.Truncate(0)) {
		return 0, ErrSubSatoshiAmount
	}
	if sats.GreaterThan(maxSafeDecimal) {
		return 0, ErrUnsafeAmount
	}
	return uint64(sats.IntPart()), nil
}

// ToBTC converts an amount in satoshis to its BTC decimal representation.
func ToBTC(sats uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(sats)).Div(BigOneDecimal)
}
