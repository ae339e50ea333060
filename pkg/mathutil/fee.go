package mathutil

import (
	"github.com/shopspring/decimal"
)

var vbytesPerKvB = decimal.NewFromInt(1000)

// FeeRateFromBTCPerKvB converts a fee rate given in BTC/kvB, as returned by
// the node's fee estimator, to sats/vbyte rounding up. The result is never
// lower than 1 sat/vbyte.
func FeeRateFromBTCPerKvB(btcPerKvB decimal.Decimal) uint64 {
	rate := btcPerKvB.Mul(BigOneDecimal).Div(vbytesPerKvB).Ceil()
	if !rate.IsPositive() {
		return 1
	}
	return uint64(rate.IntPart())
}

// MulCeil returns ceil(amount * multiplier).
func MulCeil(amount uint64, multiplier float64) uint64 {
	res := decimal.NewFromInt(int64(amount)).Mul(decimal.NewFromFloat(multiplier)).Ceil()
	if res.IsNegative() {
		return 0
	}
	return uint64(res.IntPart())
}
