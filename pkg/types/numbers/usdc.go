package numbers

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// USDC has 6 decimals, so one cent is 10^4 base units.
const BaseUnitsPerCent = 10_000

var baseUnitsPerCent = big.NewInt(BaseUnitsPerCent)

func CentsToBaseUnits(cents int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(cents), baseUnitsPerCent)
}

// BaseUnitsToCents floors to whole cents. Values beyond int64 saturate.
func BaseUnitsToCents(baseUnits *big.Int) int64 {
	if baseUnits == nil || baseUnits.Sign() <= 0 {
		return 0
	}
	cents := new(big.Int).Quo(baseUnits, baseUnitsPerCent)
	if !cents.IsInt64() {
		return int64(^uint64(0) >> 1)
	}
	return cents.Int64()
}

// BpsOf returns floor(value * bps / 10000).
func BpsOf(value int64, bps int64) int64 {
	if value <= 0 || bps <= 0 {
		return 0
	}
	product := new(big.Int).Mul(big.NewInt(value), big.NewInt(bps))
	return product.Quo(product, big.NewInt(10_000)).Int64()
}

// FormatCents renders cents as dollars, e.g. 1500 -> "$15.00".
func FormatCents(cents int64) string {
	d := decimal.New(cents, -2)
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// FormatBaseUnits renders raw token units as dollars with full precision trimmed to cents.
func FormatBaseUnits(baseUnits *big.Int) string {
	if baseUnits == nil {
		return "$0.00"
	}
	d := decimal.NewFromBigInt(baseUnits, -6)
	return "$" + d.RoundDown(2).StringFixed(2)
}
