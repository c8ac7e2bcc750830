package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// BpsDenominator is 100% in basis points.
const BpsDenominator = 10000

// BpsRatio renders a basis-point value as an exact decimal ratio, e.g.
// 15000 -> 1.5. For display only; circuit arithmetic stays in integers.
func BpsRatio(bps uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(bps), 0).Shift(-4)
}
