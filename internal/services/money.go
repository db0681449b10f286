package services

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// WeiDecimals is the fixed scale between display currency units and on-chain units.
const WeiDecimals = 18

// ToWei converts a decimal currency amount into on-chain units, rounding half
// away from zero at the 18th fractional digit.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(WeiDecimals).Round(0).BigInt()
}

// FromWei converts on-chain units back into a decimal currency amount.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -WeiDecimals)
}

// DecimalFromFloat converts a stored floating point price using its shortest
// decimal representation, so 100.1 stays 100.1 rather than its binary expansion.
// NaN and infinities have no decimal form and become zero.
func DecimalFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
